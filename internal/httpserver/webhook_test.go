package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"recruit/internal/providers/messenger"
	sqsqueue "recruit/internal/queue/sqs"
)

type captureQueue struct {
	events []sqsqueue.WebhookEvent
	err    error
}

func (q *captureQueue) Enqueue(ctx context.Context, ev sqsqueue.WebhookEvent) error {
	if q.err != nil {
		return q.err
	}
	q.events = append(q.events, ev)
	return nil
}

const inboundBody = `{"object":"page","entry":[{"id":"p1","time":1760000000000,"messaging":[` +
	`{"sender":{"id":"psid-1"},"recipient":{"id":"p1"},"timestamp":1760000000000,"message":{"mid":"m1","text":"こんにちは"}},` +
	`{"sender":{"id":"psid-1"},"recipient":{"id":"p1"},"timestamp":1760000001000,"delivery":{"mids":["m0"]}}]}]}`

func webhookRouter(q WebhookQueue) *mux.Router {
	r := mux.NewRouter()
	(&Webhook{Queue: q, AppSecret: "shh", VerifyToken: "vt"}).Register(r)
	return r
}

func TestWebhookEnqueuesSignedEvents(t *testing.T) {
	q := &captureQueue{}
	r := webhookRouter(q)

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/messenger", strings.NewReader(inboundBody))
	req.Header.Set(messenger.SignatureHeader, messenger.Sign("shh", []byte(inboundBody)))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(q.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(q.events))
	}
	if q.events[0].Event.Kind != messenger.EventMessage || q.events[0].Event.PSID != "psid-1" || q.events[0].Provider != messenger.Provider {
		t.Fatalf("unexpected first event %+v", q.events[0])
	}
	if q.events[1].Event.Kind != messenger.EventDelivery {
		t.Fatalf("expected delivery event, got %s", q.events[1].Event.Kind)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	q := &captureQueue{}
	r := webhookRouter(q)

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/messenger", strings.NewReader(inboundBody))
	req.Header.Set(messenger.SignatureHeader, messenger.Sign("other", []byte(inboundBody)))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if len(q.events) != 0 {
		t.Fatalf("unsigned events must not be enqueued")
	}
}

func TestWebhookQueueFailure(t *testing.T) {
	r := webhookRouter(&captureQueue{err: errors.New("sqs down")})

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/messenger", strings.NewReader(inboundBody))
	req.Header.Set(messenger.SignatureHeader, messenger.Sign("shh", []byte(inboundBody)))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 so Messenger retries, got %d", rec.Code)
	}
}

func TestWebhookSubscription(t *testing.T) {
	r := webhookRouter(&captureQueue{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/v1/webhooks/messenger?hub.mode=subscribe&hub.verify_token=vt&hub.challenge=42", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "42" {
		t.Fatalf("expected challenge echo, got %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/v1/webhooks/messenger?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=42", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}
