package domain

// CandidateStatus is a pipeline stage.
type CandidateStatus string

const (
	StatusUnlinked            CandidateStatus = "紐付け前"
	StatusNew                 CandidateStatus = "新規"
	StatusContacting          CandidateStatus = "連絡中"
	StatusInterviewScheduling CandidateStatus = "面接調整中"
	StatusInterviewScheduled  CandidateStatus = "面接確定"
	StatusAwaitingResult      CandidateStatus = "結果待ち"
	StatusOffered             CandidateStatus = "内定"
	StatusHired               CandidateStatus = "入社確定"
	StatusDeclined            CandidateStatus = "辞退"
)

var candidateStatuses = []CandidateStatus{
	StatusUnlinked,
	StatusNew,
	StatusContacting,
	StatusInterviewScheduling,
	StatusInterviewScheduled,
	StatusAwaitingResult,
	StatusOffered,
	StatusHired,
	StatusDeclined,
}

func CandidateStatuses() []CandidateStatus {
	out := make([]CandidateStatus, len(candidateStatuses))
	copy(out, candidateStatuses)
	return out
}

func (s CandidateStatus) Valid() bool {
	for _, v := range candidateStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// DelayTracked is false for stages where no reply is owed by the agency.
func (s CandidateStatus) DelayTracked() bool {
	return s != StatusUnlinked && s != StatusAwaitingResult
}

// AIJudgment is the intent classification of the last inbound message.
type AIJudgment string

const (
	JudgmentActionRequired AIJudgment = "action-required"
	JudgmentInformational  AIJudgment = "informational"
	JudgmentNoReplyNeeded  AIJudgment = "no-reply-needed"
)

func (j AIJudgment) Valid() bool {
	switch j {
	case "", JudgmentActionRequired, JudgmentInformational, JudgmentNoReplyNeeded:
		return true
	}
	return false
}

type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

type Candidate struct {
	ID                    string          `json:"id"`
	Name                  string          `json:"name,omitempty"`
	OwnerCA               string          `json:"ownerCA,omitempty"`
	CandidateStatus       CandidateStatus `json:"candidateStatus"`
	LastMessageReceivedAt Timestamp       `json:"lastMessageReceivedAt,omitempty"`
	NextScheduledDate     Timestamp       `json:"nextScheduledDate,omitempty"`
	RequiresResponse      *bool           `json:"requiresResponse,omitempty"`
	LastMessageAIJudgment AIJudgment      `json:"lastMessageAIJudgment,omitempty"`
	LastMessageDirection  Direction       `json:"lastMessageDirection,omitempty"`
}

func (c *Candidate) Validate() error {
	if c == nil || c.ID == "" {
		return ErrInvalidInput
	}
	if !c.CandidateStatus.Valid() {
		return ErrInvalidInput
	}
	if !c.LastMessageAIJudgment.Valid() {
		return ErrInvalidInput
	}
	switch c.LastMessageDirection {
	case "", DirectionIn, DirectionOut:
	default:
		return ErrInvalidInput
	}
	return nil
}
