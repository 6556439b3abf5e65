package worker

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"recruit/internal/domain"
	"recruit/internal/messaging"
	"recruit/internal/observability"
	"recruit/internal/providers/messenger"
	sqsqueue "recruit/internal/queue/sqs"
	"recruit/internal/store"
	"recruit/internal/util"
)

type Store interface {
	GetMessageForWorker(ctx context.Context, msgID string) (store.MessageForWorker, error)
	ClaimMessage(ctx context.Context, msgID string, now time.Time, staleAfter time.Duration) (bool, error)
	GetThread(ctx context.Context, threadID string) (domain.Thread, error)
	GetPage(ctx context.Context, pageID string) (domain.Page, bool, error)
	InsertAttempt(ctx context.Context, in store.ProviderAttempt) error
	SetProviderDetails(ctx context.Context, in store.ProviderDetailsUpdate) error
	MarkMessageState(ctx context.Context, in store.MessageStateUpdate) error
	RecordOutbound(ctx context.Context, in store.OutboundSent) error
}

type Sender interface {
	SendMessage(ctx context.Context, req messenger.SendRequest) (messenger.SendResponse, int, []byte, error)
}

type Processor struct {
	Store      Store
	Sender     Sender
	Limiter    *rate.Limiter
	Breaker    *gobreaker.CircuitBreaker
	Policy     messaging.Policy
	StaleAfter time.Duration

	// Backoff defaults to messenger.Backoff.
	Backoff func(attempt int) time.Duration
	// Now defaults to util.NowUTC.
	Now func() time.Time
}

const maxAttempts = 3

func (p *Processor) Process(ctx context.Context, job sqsqueue.OutboundJob) error {
	msg, err := p.Store.GetMessageForWorker(ctx, job.MessageID)
	if errors.Is(err, store.ErrNotFound) {
		slog.Warn("worker message not found, dropping job", "message_id", job.MessageID)
		return nil
	}
	if err != nil {
		return err
	}

	// Idempotent consumer: skip final or already submitted with a provider id
	if domain.MessageState(msg.State).Terminal() {
		return nil
	}
	if msg.ProviderMsgID != "" && msg.State == string(domain.StateSubmitted) {
		return nil
	}

	claimed, err := p.Store.ClaimMessage(ctx, job.MessageID, p.now(), p.StaleAfter)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	// The window may have closed while the job sat in the queue.
	thread, err := p.Store.GetThread(ctx, msg.ThreadID)
	if err != nil {
		return err
	}
	page, found, err := p.Store.GetPage(ctx, thread.PageID)
	if err != nil {
		return err
	}
	var pagePtr *domain.Page
	if found {
		pagePtr = &page
	}
	role := domain.ActorRole(msg.ActorRole)
	state, err := p.Policy.Evaluate(&thread, pagePtr, role, p.now())
	if err != nil {
		return err
	}
	dispatch, err := messaging.CheckSend(state, role, domain.MessageTag(msg.Tag))
	if err != nil {
		reason := messaging.RejectReason(err)
		observability.SendRejected.WithLabelValues("worker", reason).Inc()
		slog.Info("worker send rejected by messaging window",
			"message_id", job.MessageID, "thread_id", msg.ThreadID, "send_state", state, "reason", reason)
		return p.Store.MarkMessageState(ctx, store.MessageStateUpdate{
			ID: job.MessageID, State: string(domain.StateRejected), LastError: reason, Now: p.now(),
		})
	}

	req := messenger.SendRequest{
		PageAccessToken: page.AccessToken,
		RecipientPSID:   thread.RecipientPSID,
		Text:            msg.Text,
		MessagingType:   dispatch.MessagingType,
		Tag:             string(dispatch.Tag),
	}
	reqLog := map[string]any{
		"threadId": msg.ThreadID, "pageId": thread.PageID,
		"messagingType": req.MessagingType, "tag": req.Tag, "sendState": string(state),
	}

	var lastErr error
	start := time.Now()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		// 1) Rate limit before calling the Send API (per pod)
		if p.Limiter != nil {
			waitCtx, cancelWait := context.WithTimeout(ctx, 2*time.Second)
			err := p.Limiter.Wait(waitCtx)
			cancelWait()
			if err != nil {
				observability.MessengerSend.WithLabelValues("rate_limited_local", "0").Inc()
				lastErr = err
				p.sleep(ctx, 200*time.Millisecond)
				continue
			}
		}

		// 2) Circuit breaker wraps the Send API call
		res, err := p.executeWithBreaker(ctx, req)

		// 3) Breaker open: fail fast and let SQS redrive later
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			observability.MessengerSend.WithLabelValues("cb_open", "0").Inc()
			return err
		}

		if err == nil {
			observability.MessengerSend.WithLabelValues("ok", strconv.Itoa(res.httpStatus)).Inc()
			observability.MessengerLatency.Observe(time.Since(start).Seconds())

			_ = p.Store.InsertAttempt(ctx, store.ProviderAttempt{
				MessageID:     job.MessageID,
				Provider:      messenger.Provider,
				ProviderMsgID: res.resp.MessageID,
				HTTPStatus:    res.httpStatus,
				RequestJSON:   reqLog,
				ResponseJSON:  jsonRaw(res.raw),
			})

			now := p.now()
			if err := p.Store.SetProviderDetails(ctx, store.ProviderDetailsUpdate{
				ID:            job.MessageID,
				Provider:      messenger.Provider,
				ProviderMsgID: res.resp.MessageID,
				State:         string(domain.StateSubmitted),
				Now:           now,
			}); err != nil {
				return err
			}
			return p.Store.RecordOutbound(ctx, store.OutboundSent{ThreadID: msg.ThreadID, SentAt: now})
		}

		lastErr = err

		var httpStatus int
		var raw []byte
		var ce callError
		if errors.As(err, &ce) {
			httpStatus = ce.httpStatus
			raw = ce.raw
		}
		errCode := ""
		var ae *messenger.APIError
		if errors.As(err, &ae) {
			errCode = strconv.Itoa(ae.Code)
		}

		observability.MessengerSend.WithLabelValues("error", strconv.Itoa(httpStatus)).Inc()

		_ = p.Store.InsertAttempt(ctx, store.ProviderAttempt{
			MessageID:    job.MessageID,
			Provider:     messenger.Provider,
			HTTPStatus:   httpStatus,
			ErrorCode:    errCode,
			ErrorMsg:     err.Error(),
			RequestJSON:  reqLog,
			ResponseJSON: jsonRaw(raw),
		})

		if !messenger.ShouldRetry(err, httpStatus) {
			_ = p.Store.MarkMessageState(ctx, store.MessageStateUpdate{
				ID: job.MessageID, State: string(domain.StateFailed), LastError: "messenger_non_retryable", Now: p.now(),
			})
			return err
		}

		p.sleep(ctx, p.backoff(attempt))
	}

	_ = p.Store.MarkMessageState(ctx, store.MessageStateUpdate{
		ID: job.MessageID, State: string(domain.StateFailed), LastError: "messenger_retry_exhausted", Now: p.now(),
	})
	return lastErr
}

func (p *Processor) executeWithBreaker(ctx context.Context, req messenger.SendRequest) (sendResult, error) {
	call := func() (any, error) {
		reqCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
		defer cancel()

		resp, httpStatus, raw, callErr := p.Sender.SendMessage(reqCtx, req)
		if callErr != nil {
			return nil, callError{err: callErr, httpStatus: httpStatus, raw: raw}
		}
		return sendResult{resp: resp, httpStatus: httpStatus, raw: raw}, nil
	}

	var (
		res any
		err error
	)
	if p.Breaker == nil {
		res, err = call()
	} else {
		res, err = p.Breaker.Execute(call)
	}
	if err != nil {
		return sendResult{}, err
	}
	return res.(sendResult), nil
}

func (p *Processor) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return util.NowUTC()
}

func (p *Processor) backoff(attempt int) time.Duration {
	if p.Backoff != nil {
		return p.Backoff(attempt)
	}
	return messenger.Backoff(attempt)
}

func (p *Processor) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func jsonRaw(b []byte) any { return map[string]any{"raw": string(b)} }

type sendResult struct {
	resp       messenger.SendResponse
	httpStatus int
	raw        []byte
}

type callError struct {
	err        error
	httpStatus int
	raw        []byte
}

func (e callError) Error() string { return e.err.Error() }
func (e callError) Unwrap() error { return e.err }
