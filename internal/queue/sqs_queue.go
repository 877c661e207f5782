package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSAPI is the subset of the SQS client the queue uses.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSOptions configures the SQS client.
type SQSOptions struct {
	Region string
	// Endpoint overrides the service URL (e.g. LocalStack).
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// NewSQSClient loads the default AWS config and applies opts.
func NewSQSClient(ctx context.Context, opts SQSOptions) (*sqs.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	}), nil
}

// SQSQueue is a Queue backed by an SQS queue. Visibility timeout and redrive
// are configured on the queue itself; Visibility here only overrides the
// queue default on receive when set.
type SQSQueue struct {
	Client     SQSAPI
	URL        string
	Visibility time.Duration
	WaitTime   time.Duration
}

// NewSQSQueue returns a queue for url.
func NewSQSQueue(client SQSAPI, url string, visibility, wait time.Duration) *SQSQueue {
	return &SQSQueue{Client: client, URL: url, Visibility: visibility, WaitTime: wait}
}

// Publish implements Queue.
func (q *SQSQueue) Publish(ctx context.Context, body []byte) (string, error) {
	out, err := q.Client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.URL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return "", fmt.Errorf("sqs send: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}

// Receive implements Queue. SQS caps a single receive at 10 messages and a
// long poll at 20 seconds.
func (q *SQSQueue) Receive(ctx context.Context, max int) ([]Message, error) {
	if max <= 0 {
		max = 1
	}
	if max > 10 {
		max = 10
	}
	in := &sqs.ReceiveMessageInput{
		QueueUrl:                    aws.String(q.URL),
		MaxNumberOfMessages:         int32(max),
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{types.MessageSystemAttributeNameApproximateReceiveCount},
	}
	if q.Visibility > 0 {
		in.VisibilityTimeout = int32(q.Visibility / time.Second)
	}
	if q.WaitTime > 0 {
		w := q.WaitTime / time.Second
		if w > 20 {
			w = 20
		}
		in.WaitTimeSeconds = int32(w)
	}

	out, err := q.Client.ReceiveMessage(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("sqs receive: %w", err)
	}

	msgs := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		count := 1
		if raw, ok := m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				count = n
			}
		}
		msgs = append(msgs, Message{
			ID:           aws.ToString(m.MessageId),
			Body:         []byte(aws.ToString(m.Body)),
			ReceiveCount: count,
			Receipt:      aws.ToString(m.ReceiptHandle),
		})
	}
	return msgs, nil
}

// Ack implements Queue.
func (q *SQSQueue) Ack(ctx context.Context, m Message) error {
	if m.Receipt == "" {
		return ErrStaleReceipt
	}
	_, err := q.Client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.URL),
		ReceiptHandle: aws.String(m.Receipt),
	})
	if err != nil {
		var inv *types.ReceiptHandleIsInvalid
		if errors.As(err, &inv) {
			return ErrStaleReceipt
		}
		return fmt.Errorf("sqs delete: %w", err)
	}
	return nil
}

var _ Queue = (*SQSQueue)(nil)
