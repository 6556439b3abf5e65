package store

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

type Message struct {
	ID             string
	ThreadID       string
	IdempotencyKey string
	ActorRole      string
	Actor          string
	Text           string
	MessagingType  string
	Tag            string
	SendState      string
	State          string
	Provider       string
	ProviderMsgID  string
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type IdempotencyResult struct {
	MessageID string
	State     string
	SendState string
	Found     bool
}

type MessageInsert struct {
	ID            string
	ThreadID      string
	IdemKey       string
	ActorRole     string
	Actor         string
	Text          string
	MessagingType string
	Tag           string
	SendState     string
	State         string
	LastError     string
	Now           time.Time
}

type MessageStateUpdate struct {
	ID        string
	State     string
	LastError string
	Now       time.Time
}

type ProviderDetailsUpdate struct {
	ID            string
	Provider      string
	ProviderMsgID string
	State         string
	Now           time.Time
}

type MessageForWorker struct {
	ThreadID      string
	ActorRole     string
	Text          string
	MessagingType string
	Tag           string
	State         string
	ProviderMsgID string
	CreatedAt     time.Time
}

type ProviderAttempt struct {
	MessageID     string
	Provider      string
	ProviderMsgID string
	HTTPStatus    int
	ErrorCode     string
	ErrorMsg      string
	RequestJSON   any
	ResponseJSON  any
}

type DeliveryEvent struct {
	Provider      string
	PageID        string
	PSID          string
	ProviderMsgID string
	Kind          string
	Payload       any
	OccurredAt    *time.Time
}

// InboundMessage is a candidate-originated message applied to thread and candidate state.
type InboundMessage struct {
	NewThreadID   string
	PageID        string
	PSID          string
	ProviderMsgID string
	Text          string
	ReceivedAt    time.Time
}

// OutboundSent records a submitted outbound message against its thread.
type OutboundSent struct {
	ThreadID string
	SentAt   time.Time
}

// CandidateQuery narrows the candidates loaded for a worklist. Limit caps the
// rows read; zero reads every match.
type CandidateQuery struct {
	OwnerCA  string
	Statuses []string
	Limit    int
}
