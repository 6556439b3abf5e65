package domain

import "errors"

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrMissingFields      = errors.New("missing required fields")
	ErrMalformedTimestamp = errors.New("malformed timestamp")
)

// SendState is the permission level for outbound messaging on a thread.
type SendState string

const (
	SendBlocked     SendState = "blocked"
	SendActive      SendState = "active"
	SendHumanAgent  SendState = "human_agent"
	SendRequiresTag SendState = "requires_tag"
)

// ActorRole identifies who is attempting to send.
type ActorRole string

const (
	RoleAdmin  ActorRole = "admin"
	RoleCA     ActorRole = "ca"
	RoleSystem ActorRole = "system"
)

func (r ActorRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleCA, RoleSystem:
		return true
	}
	return false
}

// Human reports whether a person (not an automation) is behind the send.
func (r ActorRole) Human() bool {
	return r == RoleAdmin || r == RoleCA
}

// MessageTag is a pre-approved Messenger template tag.
type MessageTag string

const (
	TagConfirmedEventUpdate MessageTag = "CONFIRMED_EVENT_UPDATE"
	TagAccountUpdate        MessageTag = "ACCOUNT_UPDATE"
	TagPostPurchaseUpdate   MessageTag = "POST_PURCHASE_UPDATE"
	TagHumanAgent           MessageTag = "HUMAN_AGENT"
)

// Approved reports whether the tag may unlock a send outside the messaging window.
// HUMAN_AGENT is applied automatically and is not accepted from callers.
func (t MessageTag) Approved() bool {
	switch t {
	case TagConfirmedEventUpdate, TagAccountUpdate, TagPostPurchaseUpdate:
		return true
	}
	return false
}

type MessageState string

const (
	StateQueued     MessageState = "queued"
	StateProcessing MessageState = "processing"
	StateRejected   MessageState = "rejected"
	StateSubmitted  MessageState = "submitted"
	StateDelivered  MessageState = "delivered"
	StateFailed     MessageState = "failed"
)

// Terminal states are never picked up again by the worker.
func (s MessageState) Terminal() bool {
	return s == StateRejected || s == StateDelivered || s == StateFailed
}

type SendMessageRequest struct {
	ThreadID       string     `json:"threadId" validate:"required"`
	IdempotencyKey string     `json:"idempotencyKey" validate:"required,max=128"`
	ActorRole      ActorRole  `json:"actorRole" validate:"required,oneof=admin ca system"`
	Actor          string     `json:"actor,omitempty"`
	Text           string     `json:"text" validate:"required,max=2000"`
	Tag            MessageTag `json:"tag,omitempty"`
}

type CreateResponse struct {
	MessageID string    `json:"messageId"`
	State     string    `json:"state"`
	SendState SendState `json:"sendState"`
	Reason    string    `json:"reason,omitempty"`
}
