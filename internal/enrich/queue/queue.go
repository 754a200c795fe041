// Package queue is the durable work queue (C9): one QueueMessage per
// cleansed Item, delivered at-least-once with a per-message visibility
// timeout that the worker pool extends on Throttled and otherwise lets
// expire or deletes on terminal outcomes.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"semanticpipe/internal/pipeline"
)

// Message is a pipeline.QueueMessage plus the receipt handle the backing
// queue needs to delete or extend visibility for this delivery.
type Message struct {
	pipeline.QueueMessage
	ReceiptHandle string `json:"-"`
}

// Queue is the durable work queue abstraction the worker pool polls.
type Queue interface {
	// Send publishes one message per cleansed item.
	Send(ctx context.Context, msg Message) error
	// Receive long-polls for up to max messages.
	Receive(ctx context.Context, max int) ([]Message, error)
	// Delete acknowledges successful processing, removing the message.
	Delete(ctx context.Context, receiptHandle string) error
	// ExtendVisibility postpones redelivery by delay, used on Throttled.
	ExtendVisibility(ctx context.Context, receiptHandle string, delay time.Duration) error
}

// Decode parses a raw message body into a Message, leaving ReceiptHandle
// unset for the caller to fill in from the transport envelope.
func Decode(body []byte) (Message, error) {
	var m Message
	err := json.Unmarshal(body, &m.QueueMessage)
	return m, err
}

// Encode serializes a Message body for publishing.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m.QueueMessage)
}
