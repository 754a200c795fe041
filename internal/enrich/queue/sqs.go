package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSQueue implements Queue over AWS SQS, long-polling with a 20s wait time
// so idle workers don't hot-loop, grounded on the teacher's AWS SDK v2
// client-construction pattern (objectstore.NewS3Store) applied to the SQS
// client family.
type SQSQueue struct {
	client              *sqs.Client
	url                 string
	visibilityTimeoutSec int32
}

// NewSQSQueue builds an SQSQueue bound to queueURL with the given default
// per-message visibility timeout.
func NewSQSQueue(ctx context.Context, queueURL string, visibilityTimeoutSec int32) (*SQSQueue, error) {
	if queueURL == "" {
		return nil, fmt.Errorf("queue: queueUrl is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue: load aws config: %w", err)
	}
	if visibilityTimeoutSec <= 0 {
		visibilityTimeoutSec = 300
	}
	return &SQSQueue{
		client:               sqs.NewFromConfig(awsCfg),
		url:                  queueURL,
		visibilityTimeoutSec: visibilityTimeoutSec,
	}, nil
}

func (q *SQSQueue) Send(ctx context.Context, msg Message) error {
	body, err := Encode(msg)
	if err != nil {
		return fmt.Errorf("queue: encode message: %w", err)
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.url),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("queue: sqs send: %w", err)
	}
	return nil
}

func (q *SQSQueue) Receive(ctx context.Context, max int) ([]Message, error) {
	if max <= 0 || max > 10 {
		max = 10
	}
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.url),
		MaxNumberOfMessages:  int32(max),
		WaitTimeSeconds:      20,
		VisibilityTimeout:    q.visibilityTimeoutSec,
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		return nil, fmt.Errorf("queue: sqs receive: %w", err)
	}
	msgs := make([]Message, 0, len(out.Messages))
	for _, raw := range out.Messages {
		m, err := Decode([]byte(aws.ToString(raw.Body)))
		if err != nil {
			// malformed body: drop by deleting immediately per §4.7 step 1
			q.Delete(ctx, aws.ToString(raw.ReceiptHandle))
			continue
		}
		m.ReceiptHandle = aws.ToString(raw.ReceiptHandle)
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (q *SQSQueue) Delete(ctx context.Context, receiptHandle string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.url),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		var notFound *sqstypes.ReceiptHandleIsInvalid
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("queue: sqs delete: %w", err)
	}
	return nil
}

func (q *SQSQueue) ExtendVisibility(ctx context.Context, receiptHandle string, delay time.Duration) error {
	_, err := q.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(q.url),
		ReceiptHandle:     aws.String(receiptHandle),
		VisibilityTimeout: int32(delay.Seconds()),
	})
	if err != nil {
		return fmt.Errorf("queue: sqs extend visibility: %w", err)
	}
	return nil
}
