package worker

import (
	"context"
	"log/slog"
	"time"

	"recruit/internal/domain"
	"recruit/internal/providers/messenger"
	sqsqueue "recruit/internal/queue/sqs"
	"recruit/internal/store"
	"recruit/internal/util"
)

type InboundStore interface {
	GetPage(ctx context.Context, pageID string) (domain.Page, bool, error)
	ApplyInbound(ctx context.Context, in store.InboundMessage) (string, error)
	InsertDeliveryEvent(ctx context.Context, in store.DeliveryEvent) error
	MarkDeliveredByProviderMsgID(ctx context.Context, provider string, providerMsgIDs []string, now time.Time) (int64, error)
}

// InboundProcessor applies queued Messenger webhook events. Every event is
// recorded; candidate messages also advance thread and candidate timestamps,
// which is what reopens the messaging window.
type InboundProcessor struct {
	Store InboundStore
	// NewThreadID defaults to util.NewThreadID.
	NewThreadID func() string
	// Now defaults to util.NowUTC.
	Now func() time.Time
}

func (p *InboundProcessor) Process(ctx context.Context, ev sqsqueue.WebhookEvent) error {
	// Make DB work bounded. Errors cause SQS redrive.
	dbCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	e := ev.Event
	switch e.Kind {
	case messenger.EventMessage:
		_, found, err := p.Store.GetPage(dbCtx, e.PageID)
		if err != nil {
			return err
		}
		if !found {
			slog.Warn("inbound message for unknown page, recording only", "page_id", e.PageID, "psid", e.PSID)
			break
		}
		threadID, err := p.Store.ApplyInbound(dbCtx, store.InboundMessage{
			NewThreadID:   p.newThreadID(),
			PageID:        e.PageID,
			PSID:          e.PSID,
			ProviderMsgID: e.MessageID,
			Text:          e.Text,
			ReceivedAt:    p.occurredAt(e),
		})
		if err != nil {
			return err
		}
		slog.Info("inbound message applied", "thread_id", threadID, "page_id", e.PageID, "message_id", e.MessageID)

	case messenger.EventDelivery:
		if len(e.MessageIDs) > 0 {
			n, err := p.Store.MarkDeliveredByProviderMsgID(dbCtx, ev.Provider, e.MessageIDs, p.now())
			if err != nil {
				return err
			}
			// Pages also deliver messages sent from other tools; those have no row here.
			if n == 0 {
				slog.Debug("delivery receipt matched no submitted message", "page_id", e.PageID, "mids", e.MessageIDs)
			}
		}
	}

	occurred := p.occurredAt(e)
	return p.Store.InsertDeliveryEvent(dbCtx, store.DeliveryEvent{
		Provider:      ev.Provider,
		PageID:        e.PageID,
		PSID:          e.PSID,
		ProviderMsgID: firstMessageID(e),
		Kind:          string(e.Kind),
		Payload:       e,
		OccurredAt:    &occurred,
	})
}

func (p *InboundProcessor) occurredAt(e messenger.Event) time.Time {
	if e.OccurredAt.IsZero() || e.OccurredAt.Unix() == 0 {
		return p.now()
	}
	return e.OccurredAt.UTC()
}

func (p *InboundProcessor) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return util.NowUTC()
}

func (p *InboundProcessor) newThreadID() string {
	if p.NewThreadID != nil {
		return p.NewThreadID()
	}
	return util.NewThreadID()
}

func firstMessageID(e messenger.Event) string {
	if e.MessageID != "" {
		return e.MessageID
	}
	if len(e.MessageIDs) > 0 {
		return e.MessageIDs[0]
	}
	return ""
}
