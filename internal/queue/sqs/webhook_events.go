package sqsqueue

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"recruit/internal/providers/messenger"
)

// WebhookEvent is an internal envelope for Messenger callbacks.
// Keep it small; SQS has a 256KB message size limit.
type WebhookEvent struct {
	Provider string          `json:"provider"`
	Event    messenger.Event `json:"event"`
}

type WebhookProducer struct {
	SQS      API
	QueueURL string
}

func (p *WebhookProducer) Enqueue(ctx context.Context, ev WebhookEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = p.SQS.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: str(string(body)),
	})
	return err
}

type WebhookHandler func(ctx context.Context, ev WebhookEvent) error

// WebhookConsumer drains inbound Messenger events.
type WebhookConsumer struct {
	Consumer
}

func (c *WebhookConsumer) PollConcurrent(ctx context.Context, workers int, handler WebhookHandler) error {
	if workers <= 0 {
		workers = 1
	}
	return pollConcurrent(ctx, &c.Consumer, workers, handler)
}
