package urgency

import (
	"log/slog"
	"math"
	"time"

	"recruit/internal/domain"
)

type DelayTier string

const (
	DelayNormal   DelayTier = "normal"
	DelayWarning  DelayTier = "warning"
	DelayDanger   DelayTier = "danger"
	DelayCritical DelayTier = "critical"
	DelayExcluded DelayTier = "excluded"
)

func (d DelayTier) Valid() bool {
	switch d {
	case DelayNormal, DelayWarning, DelayDanger, DelayCritical, DelayExcluded:
		return true
	}
	return false
}

type PriorityTier string

const (
	PriorityOverdue  PriorityTier = "overdue"
	PriorityCritical PriorityTier = "critical"
	PriorityDanger   PriorityTier = "danger"
	PriorityWarning  PriorityTier = "warning"
	PriorityNormal   PriorityTier = "normal"
	PriorityNone     PriorityTier = "none"
)

type ColorTier string

const (
	ColorNone  ColorTier = "none"
	ColorAmber ColorTier = "amber"
	ColorRed   ColorTier = "red"
)

const (
	delayWarningAfter  = 6 * time.Hour
	delayDangerAfter   = 24 * time.Hour
	delayCriticalAfter = 72 * time.Hour

	highlightAmberAt = 6 * time.Hour
	highlightRedAt   = 24 * time.Hour
)

// Classification bundles every signal derived from one candidate snapshot.
type Classification struct {
	CandidateID      string       `json:"candidateId"`
	Delay            DelayTier    `json:"delay"`
	Priority         PriorityTier `json:"priority"`
	RequiresResponse bool         `json:"requiresResponse"`
	Highlight        ColorTier    `json:"highlight"`
}

// Classifier derives urgency signals from candidates.
//
// A timestamp that fails to parse counts as zero elapsed time and logs a
// warning. The zero value is ready to use.
type Classifier struct {
	Logger *slog.Logger
}

func (c Classifier) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Classify computes all signals. A nil candidate is ErrInvalidInput.
func (c Classifier) Classify(cand *domain.Candidate, now time.Time) (Classification, error) {
	if cand == nil {
		return Classification{}, domain.ErrInvalidInput
	}
	return Classification{
		CandidateID:      cand.ID,
		Delay:            c.delay(cand, now),
		Priority:         c.priority(cand, now),
		RequiresResponse: requiresResponse(cand),
		Highlight:        c.highlight(cand, now),
	}, nil
}

func (c Classifier) ClassifyDelay(cand *domain.Candidate, now time.Time) (DelayTier, error) {
	if cand == nil {
		return "", domain.ErrInvalidInput
	}
	return c.delay(cand, now), nil
}

func (c Classifier) ClassifyPriority(cand *domain.Candidate, now time.Time) (PriorityTier, error) {
	if cand == nil {
		return "", domain.ErrInvalidInput
	}
	return c.priority(cand, now), nil
}

// RequiresResponse applies the explicit override when set; otherwise the
// last message must be inbound and judged action-required. The two are never blended.
func RequiresResponse(cand *domain.Candidate) (bool, error) {
	if cand == nil {
		return false, domain.ErrInvalidInput
	}
	return requiresResponse(cand), nil
}

func (c Classifier) HighlightColor(cand *domain.Candidate, now time.Time) (ColorTier, error) {
	if cand == nil {
		return "", domain.ErrInvalidInput
	}
	return c.highlight(cand, now), nil
}

func (c Classifier) delay(cand *domain.Candidate, now time.Time) DelayTier {
	if !cand.CandidateStatus.DelayTracked() {
		return DelayExcluded
	}
	h := c.sinceLastInbound(cand, now)
	switch {
	case h <= delayWarningAfter:
		return DelayNormal
	case h <= delayDangerAfter:
		return DelayWarning
	case h <= delayCriticalAfter:
		return DelayDanger
	default:
		return DelayCritical
	}
}

func (c Classifier) priority(cand *domain.Candidate, now time.Time) PriorityTier {
	if cand.NextScheduledDate.IsZero() {
		return PriorityNone
	}
	next, err := cand.NextScheduledDate.Time()
	if err != nil {
		c.logger().Warn("unparseable timestamp, treating elapsed as zero",
			"candidate_id", cand.ID, "field", "nextScheduledDate", "value", string(cand.NextScheduledDate))
		next = now
	}

	d := int(math.Floor(next.Sub(now).Hours() / 24))
	switch {
	case d < 0:
		return PriorityOverdue
	case d == 0:
		return PriorityCritical
	case d <= 2:
		return PriorityDanger
	case d <= 6:
		return PriorityWarning
	default:
		return PriorityNormal
	}
}

func requiresResponse(cand *domain.Candidate) bool {
	if cand.RequiresResponse != nil {
		return *cand.RequiresResponse
	}
	return cand.LastMessageAIJudgment == domain.JudgmentActionRequired &&
		cand.LastMessageDirection == domain.DirectionIn
}

func (c Classifier) highlight(cand *domain.Candidate, now time.Time) ColorTier {
	if !requiresResponse(cand) {
		return ColorNone
	}
	h := c.sinceLastInbound(cand, now)
	switch {
	case h >= highlightRedAt:
		return ColorRed
	case h >= highlightAmberAt:
		return ColorAmber
	default:
		return ColorNone
	}
}

func (c Classifier) sinceLastInbound(cand *domain.Candidate, now time.Time) time.Duration {
	if cand.LastMessageReceivedAt.IsZero() {
		return 0
	}
	t, err := cand.LastMessageReceivedAt.Time()
	if err != nil {
		c.logger().Warn("unparseable timestamp, treating elapsed as zero",
			"candidate_id", cand.ID, "field", "lastMessageReceivedAt", "value", string(cand.LastMessageReceivedAt))
		return 0
	}
	return now.Sub(t)
}
