package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"recruit/internal/domain"
	"recruit/internal/messaging"
	"recruit/internal/observability"
	sqsqueue "recruit/internal/queue/sqs"
	"recruit/internal/store"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type Store interface {
	FindMessageByIdempotency(ctx context.Context, threadID, idemKey string) (store.IdempotencyResult, error)
	InsertMessage(ctx context.Context, in store.MessageInsert) error
	MarkMessageState(ctx context.Context, in store.MessageStateUpdate) error
	GetMessage(ctx context.Context, msgID string) (store.Message, bool, error)
	GetThread(ctx context.Context, threadID string) (domain.Thread, error)
	GetPage(ctx context.Context, pageID string) (domain.Page, bool, error)
}

type Queue interface {
	EnqueueOutbound(ctx context.Context, job sqsqueue.OutboundJob) error
}

type MessagingService struct {
	Store  Store
	Queue  Queue
	Policy messaging.Policy
}

// SendState loads a thread and its page and evaluates the messaging window.
// An unknown page evaluates as blocked.
func (s *MessagingService) SendState(ctx context.Context, threadID string, role domain.ActorRole, now time.Time) (domain.SendState, domain.Thread, error) {
	th, err := s.Store.GetThread(ctx, threadID)
	if err != nil {
		return "", domain.Thread{}, err
	}
	var page *domain.Page
	p, found, err := s.Store.GetPage(ctx, th.PageID)
	if err != nil {
		return "", domain.Thread{}, err
	}
	if found {
		page = &p
	}

	state, err := s.Policy.Evaluate(&th, page, role, now)
	if err != nil {
		return "", domain.Thread{}, err
	}
	observability.SendStates.WithLabelValues(string(state)).Inc()
	return state, th, nil
}

// Evaluate runs the policy on caller-supplied entities without touching the store.
func (s *MessagingService) Evaluate(thread *domain.Thread, page *domain.Page, role domain.ActorRole, now time.Time) (domain.SendState, error) {
	state, err := s.Policy.Evaluate(thread, page, role, now)
	if err != nil {
		return "", err
	}
	observability.SendStates.WithLabelValues(string(state)).Inc()
	return state, nil
}

func (s *MessagingService) CreateAndEnqueue(ctx context.Context, req domain.SendMessageRequest, messageID string, now time.Time) (domain.CreateResponse, error) {
	if err := validate.Struct(req); err != nil {
		return domain.CreateResponse{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	// 1) idempotency
	if res, err := s.Store.FindMessageByIdempotency(ctx, req.ThreadID, req.IdempotencyKey); err != nil {
		return domain.CreateResponse{}, err
	} else if res.Found {
		return domain.CreateResponse{MessageID: res.MessageID, State: res.State, SendState: domain.SendState(res.SendState)}, nil
	}

	// 2) messaging window
	state, _, err := s.SendState(ctx, req.ThreadID, req.ActorRole, now)
	if err != nil {
		return domain.CreateResponse{}, err
	}

	insert := store.MessageInsert{
		ID:        messageID,
		ThreadID:  req.ThreadID,
		IdemKey:   req.IdempotencyKey,
		ActorRole: string(req.ActorRole),
		Actor:     req.Actor,
		Text:      req.Text,
		SendState: string(state),
		Now:       now,
	}

	// 3) send rules for the state
	dispatch, err := messaging.CheckSend(state, req.ActorRole, req.Tag)
	if err != nil {
		reason := messaging.RejectReason(err)
		observability.SendRejected.WithLabelValues("api", reason).Inc()
		insert.State = string(domain.StateRejected)
		insert.LastError = reason
		insert.Tag = string(req.Tag)
		if err := s.Store.InsertMessage(ctx, insert); err != nil {
			return domain.CreateResponse{}, err
		}
		return domain.CreateResponse{MessageID: messageID, State: insert.State, SendState: state, Reason: reason}, nil
	}

	// 4) create message row
	insert.State = string(domain.StateQueued)
	insert.MessagingType = dispatch.MessagingType
	insert.Tag = string(dispatch.Tag)
	if err := s.Store.InsertMessage(ctx, insert); err != nil {
		return domain.CreateResponse{}, err
	}

	// 5) enqueue
	if err := s.Queue.EnqueueOutbound(ctx, sqsqueue.OutboundJob{
		MessageID:      messageID,
		ThreadID:       req.ThreadID,
		IdempotencyKey: req.IdempotencyKey,
	}); err != nil {
		observability.Enqueues.WithLabelValues("outbound", "error").Inc()
		_ = s.Store.MarkMessageState(ctx, store.MessageStateUpdate{
			ID: messageID, State: string(domain.StateFailed), LastError: "enqueue_failed", Now: now,
		})
		return domain.CreateResponse{}, err
	}
	observability.Enqueues.WithLabelValues("outbound", "ok").Inc()

	return domain.CreateResponse{MessageID: messageID, State: insert.State, SendState: state}, nil
}

func (s *MessagingService) GetMessage(ctx context.Context, msgID string) (store.Message, bool, error) {
	return s.Store.GetMessage(ctx, msgID)
}
