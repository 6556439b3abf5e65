package messaging

import (
	"errors"
	"log/slog"
	"time"

	"recruit/internal/domain"
)

const (
	// StandardWindow is the free-form reply window after the last inbound message.
	StandardWindow = 24 * time.Hour
	// HumanAgentWindow is the extended window for sends by a human agent.
	HumanAgentWindow = 7 * 24 * time.Hour
)

var (
	ErrBlocked        = errors.New("page not connected or token expired")
	ErrTagRequired    = errors.New("message tag required outside messaging window")
	ErrInvalidTag     = errors.New("message tag not approved")
	ErrHumanAgentOnly = errors.New("only a human agent may send in the human agent window")
)

// Policy classifies threads into send states. The zero value is ready to use.
type Policy struct {
	Logger *slog.Logger
}

func (p Policy) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// Evaluate returns the send state of thread at now. The role does not change
// the state; it is applied by CheckSend when a concrete send is attempted.
//
// An unparseable inbound time counts as zero elapsed and logs a warning. An
// unparseable token expiry is the exception and blocks the page, since a page
// whose token cannot be shown to be live never yields a sendable state.
func (p Policy) Evaluate(thread *domain.Thread, page *domain.Page, role domain.ActorRole, now time.Time) (domain.SendState, error) {
	if thread == nil {
		return "", domain.ErrInvalidInput
	}

	if page == nil || !page.Connected {
		return domain.SendBlocked, nil
	}
	if !page.TokenExpiresAt.IsZero() {
		exp, err := page.TokenExpiresAt.Time()
		if err != nil {
			p.logger().Warn("page token expiry unparseable, treating page as blocked",
				"page_id", page.PageID, "token_expires_at", string(page.TokenExpiresAt), "role", role)
			return domain.SendBlocked, nil
		}
		if !exp.After(now) {
			return domain.SendBlocked, nil
		}
	}

	if thread.LastInboundAt.IsZero() {
		return domain.SendRequiresTag, nil
	}
	in, err := thread.LastInboundAt.Time()
	if err != nil {
		p.logger().Warn("thread last inbound unparseable, treating elapsed as zero",
			"thread_id", thread.ID, "last_inbound_at", string(thread.LastInboundAt))
		in = now
	}

	elapsed := now.Sub(in)
	switch {
	case elapsed <= StandardWindow:
		return domain.SendActive, nil
	case elapsed <= HumanAgentWindow:
		return domain.SendHumanAgent, nil
	default:
		return domain.SendRequiresTag, nil
	}
}

// Evaluate runs the zero-value Policy.
func Evaluate(thread *domain.Thread, page *domain.Page, role domain.ActorRole, now time.Time) (domain.SendState, error) {
	return Policy{}.Evaluate(thread, page, role, now)
}

// Dispatch describes how an accepted message goes out on Messenger.
type Dispatch struct {
	MessagingType string
	Tag           domain.MessageTag
}

const (
	MessagingTypeResponse   = "RESPONSE"
	MessagingTypeMessageTag = "MESSAGE_TAG"
)

// CheckSend decides whether a message from role with the optional tag may be
// sent in state, and how it must be dispatched.
func CheckSend(state domain.SendState, role domain.ActorRole, tag domain.MessageTag) (Dispatch, error) {
	switch state {
	case domain.SendActive:
		return Dispatch{MessagingType: MessagingTypeResponse}, nil
	case domain.SendHumanAgent:
		if !role.Human() {
			return Dispatch{}, ErrHumanAgentOnly
		}
		return Dispatch{MessagingType: MessagingTypeMessageTag, Tag: domain.TagHumanAgent}, nil
	case domain.SendRequiresTag:
		if tag == "" {
			return Dispatch{}, ErrTagRequired
		}
		if !tag.Approved() {
			return Dispatch{}, ErrInvalidTag
		}
		return Dispatch{MessagingType: MessagingTypeMessageTag, Tag: tag}, nil
	default:
		return Dispatch{}, ErrBlocked
	}
}

// RejectReason maps a CheckSend error to a short metrics/storage label.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, ErrBlocked):
		return "blocked"
	case errors.Is(err, ErrTagRequired):
		return "tag_required"
	case errors.Is(err, ErrInvalidTag):
		return "invalid_tag"
	case errors.Is(err, ErrHumanAgentOnly):
		return "human_agent_only"
	default:
		return "unknown"
	}
}
