package domain

// WorklistFilter narrows a candidate worklist. It is persisted per user.
type WorklistFilter struct {
	OwnerCA              string            `json:"ownerCA,omitempty"`
	Statuses             []CandidateStatus `json:"statuses,omitempty"`
	RequiresResponseOnly bool              `json:"requiresResponseOnly,omitempty"`
	DelayTiers           []string          `json:"delayTiers,omitempty"`
	Limit                int               `json:"limit,omitempty" validate:"gte=0,lte=1000"`
}

func (f WorklistFilter) Validate() error {
	for _, s := range f.Statuses {
		if !s.Valid() {
			return ErrInvalidInput
		}
	}
	if f.Limit < 0 {
		return ErrInvalidInput
	}
	return nil
}
