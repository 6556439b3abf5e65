package sqsqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// API is the subset of the SQS client used by producers and consumers.
type API interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

const defaultGroupBuckets = 1024

type Producer struct {
	SQS      API
	QueueURL string
	// GroupBuckets caps the number of FIFO message groups. Messages of one
	// thread always share a group, so per-thread ordering holds.
	GroupBuckets int
}

// OutboundJob asks the worker to deliver one stored outbound message.
type OutboundJob struct {
	MessageID      string `json:"messageId"`
	ThreadID       string `json:"threadId"`
	IdempotencyKey string `json:"idempotencyKey"`
}

func (p *Producer) EnqueueOutbound(ctx context.Context, job OutboundJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}

	groupID := messageGroupIDBucketed(job.ThreadID, p.GroupBuckets)
	dedupID := job.ThreadID + ":" + job.IdempotencyKey
	_, err = p.SQS.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:               &p.QueueURL,
		MessageBody:            str(string(body)),
		MessageGroupId:         str(groupID),
		MessageDeduplicationId: str(dedupHash(dedupID)),
	})
	return err
}

func messageGroupIDBucketed(threadID string, buckets int) string {
	if buckets <= 0 {
		buckets = defaultGroupBuckets
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(threadID))
	return fmt.Sprintf("thread-%04d", h.Sum32()%uint32(buckets))
}

// SQS dedup ids are limited to 128 chars.
func dedupHash(s string) string {
	if len(s) <= 128 {
		return s
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return fmt.Sprintf("%016x", h.Sum64())
}

func str(s string) *string { return &s }
