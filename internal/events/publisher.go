// Package events publishes address status changes to SQS so other
// services can react to bounces and complaints.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/ignite/mailguard/internal/config"
	"github.com/ignite/mailguard/internal/domain"
)

// SQSAPI is the subset of the SQS client used here.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Publisher sends one SQS message per status change. A Publisher without
// a queue URL drops everything.
type Publisher struct {
	client   SQSAPI
	queueURL string
}

// New builds a publisher from config. It returns a no-op publisher when no
// queue is configured.
func New(ctx context.Context, cfg config.EventsConfig) (*Publisher, error) {
	if cfg.SQSQueueURL == "" {
		return &Publisher{}, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewPublisher(sqs.NewFromConfig(awsCfg), cfg.SQSQueueURL), nil
}

// NewPublisher wraps an existing client.
func NewPublisher(client SQSAPI, queueURL string) *Publisher {
	return &Publisher{client: client, queueURL: queueURL}
}

// Enabled reports whether messages are actually sent.
func (p *Publisher) Enabled() bool {
	return p.client != nil && p.queueURL != ""
}

// Notify publishes c. It satisfies webhook.Notifier.
func (p *Publisher) Notify(ctx context.Context, c domain.StatusChange) error {
	if !p.Enabled() {
		return nil
	}
	body, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal status change: %w", err)
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"status": {DataType: aws.String("String"), StringValue: aws.String(string(c.Status))},
			"event":  {DataType: aws.String("String"), StringValue: aws.String(string(c.Event))},
		},
	})
	if err != nil {
		return fmt.Errorf("publish status change: %w", err)
	}
	return nil
}
