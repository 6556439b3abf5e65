package domain

// Thread is a Messenger conversation with one candidate through one page.
type Thread struct {
	ID            string    `json:"id"`
	PageID        string    `json:"pageId"`
	CandidateID   string    `json:"candidateId,omitempty"`
	RecipientPSID string    `json:"recipientPsid,omitempty"`
	LastMessageAt Timestamp `json:"lastMessageAt,omitempty"`
	LastInboundAt Timestamp `json:"lastInboundAt,omitempty"`
	OwnerCA       string    `json:"ownerCA,omitempty"`
}

// Validate checks that the last inbound message is not newer than the last message.
func (t *Thread) Validate() error {
	if t == nil || t.ID == "" {
		return ErrInvalidInput
	}
	if t.LastInboundAt.IsZero() || t.LastMessageAt.IsZero() {
		return nil
	}
	in, err := t.LastInboundAt.Time()
	if err != nil {
		return err
	}
	last, err := t.LastMessageAt.Time()
	if err != nil {
		return err
	}
	if in.After(last) {
		return ErrInvalidInput
	}
	return nil
}

// Page is a connected Messenger page.
type Page struct {
	PageID         string    `json:"pageId"`
	Connected      bool      `json:"connected"`
	TokenExpiresAt Timestamp `json:"tokenExpiresAt,omitempty"`
	AccessToken    string    `json:"-"`
}
