package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "recruit_api_requests_total", Help: "API requests"},
		[]string{"endpoint", "status"},
	)
	SendStates = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "recruit_send_state_evaluations_total", Help: "Messaging window evaluations by resulting state"},
		[]string{"state"},
	)
	SendRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "recruit_send_rejected_total", Help: "Outbound messages rejected by the messaging window"},
		[]string{"stage", "reason"},
	)
	Enqueues = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "recruit_enqueue_total", Help: "SQS enqueue results"},
		[]string{"queue", "result"},
	)
	MessengerSend = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "messenger_send_total", Help: "Messenger Send API outcomes"},
		[]string{"result", "http_status"},
	)
	MessengerLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "messenger_send_latency_seconds", Help: "Messenger Send API latency"},
	)
	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "messenger_webhook_events_total", Help: "Webhook events"},
		[]string{"kind"},
	)
	WorklistDelay = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "recruit_worklist_candidates_total", Help: "Classified worklist candidates by delay tier"},
		[]string{"delay"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(APIRequests, SendStates, SendRejected, Enqueues, MessengerSend, MessengerLatency, WebhookEvents, WorklistDelay)
}
