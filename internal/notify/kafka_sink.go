package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	kafka "github.com/segmentio/kafka-go"
)

// KafkaWriter is the subset of *kafka.Writer the secondary sink needs.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaSink mirrors every published Event onto a Kafka topic, for external
// consumers that want progress history outside the HTTP SSE surface,
// grounded on the teacher's kafka producer construction.
type KafkaSink struct {
	writer KafkaWriter
	topic  string
}

// NewKafkaSink builds a KafkaSink from broker addresses.
func NewKafkaSink(brokers, topic string) (*KafkaSink, error) {
	brokers = strings.TrimSpace(brokers)
	if brokers == "" {
		return nil, fmt.Errorf("notify: kafka brokers cannot be empty")
	}
	brokerList := strings.Split(brokers, ",")
	for i, b := range brokerList {
		brokerList[i] = strings.TrimSpace(b)
	}
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokerList...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	return &KafkaSink{writer: w, topic: topic}, nil
}

// Forward publishes ev to the configured topic, keyed by jobId so a single
// partition carries one job's ordered history.
func (k *KafkaSink) Forward(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("notify: marshal event for kafka: %w", err)
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.JobID),
		Value: payload,
	})
}
