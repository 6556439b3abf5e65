package httpserver

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"recruit/internal/observability"
	"recruit/internal/providers/messenger"
	sqsqueue "recruit/internal/queue/sqs"
)

const maxWebhookBody = 1 << 20

type WebhookQueue interface {
	Enqueue(ctx context.Context, ev sqsqueue.WebhookEvent) error
}

// Webhook receives Messenger callbacks and hands them to the processor queue.
// Nothing is written to the database on this path.
type Webhook struct {
	Queue       WebhookQueue
	AppSecret   string
	VerifyToken string
}

func (w *Webhook) Register(r *mux.Router) {
	r.HandleFunc("/v1/webhooks/messenger", w.handleSubscribe).Methods(http.MethodGet)
	r.HandleFunc("/v1/webhooks/messenger", w.handleEvents).Methods(http.MethodPost)
}

func (w *Webhook) handleSubscribe(rw http.ResponseWriter, r *http.Request) {
	challenge, ok := messenger.VerifySubscription(w.VerifyToken, r.URL.Query())
	if !ok {
		http.Error(rw, ErrInvalidSignature, http.StatusForbidden)
		return
	}
	rw.Header().Set("Content-Type", "text/plain")
	_, _ = io.WriteString(rw, challenge)
}

func (w *Webhook) handleEvents(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(rw, ErrInvalidJSON, http.StatusBadRequest)
		return
	}
	if !messenger.VerifySignature(w.AppSecret, body, r.Header.Get(messenger.SignatureHeader)) {
		http.Error(rw, ErrInvalidSignature, http.StatusUnauthorized)
		return
	}

	events, err := messenger.ParseEvents(body)
	if err != nil {
		http.Error(rw, ErrInvalidJSON, http.StatusBadRequest)
		return
	}

	for _, ev := range events {
		observability.WebhookEvents.WithLabelValues(string(ev.Kind)).Inc()
		if err := w.Queue.Enqueue(r.Context(), sqsqueue.WebhookEvent{
			Provider: messenger.Provider,
			Event:    ev,
		}); err != nil {
			observability.Enqueues.WithLabelValues("webhook", "error").Inc()
			slog.Error("webhook enqueue failed", "err", err, "kind", ev.Kind, "page_id", ev.PageID, "psid", ev.PSID)
			http.Error(rw, ErrDependency, http.StatusInternalServerError)
			return
		}
		observability.Enqueues.WithLabelValues("webhook", "ok").Inc()
	}
	rw.WriteHeader(http.StatusOK)
}
