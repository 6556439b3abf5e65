package service

import (
	"context"
	"fmt"
	"time"

	"recruit/internal/domain"
	"recruit/internal/observability"
	"recruit/internal/store"
	"recruit/internal/urgency"
)

type CandidateStore interface {
	ListCandidates(ctx context.Context, q store.CandidateQuery) ([]domain.Candidate, error)
}

// SettingsStore persists per-user worklist preferences.
type SettingsStore interface {
	GetWorklistFilter(ctx context.Context, userID string) (domain.WorklistFilter, bool, error)
	SaveWorklistFilter(ctx context.Context, userID string, f domain.WorklistFilter) error
}

// scanCap bounds the candidates classified for one worklist. Urgency is
// computed in Go, so every matching row is read before the limit applies.
const scanCap = 20000

type WorklistService struct {
	Candidates CandidateStore
	Settings   SettingsStore
	Classifier urgency.Classifier
	MaxRows    int
	// ScanCap overrides scanCap when positive.
	ScanCap int
}

type Worklist struct {
	Filter  domain.WorklistFilter `json:"filter"`
	Entries []urgency.Entry       `json:"entries"`
}

// List builds the sorted worklist. A nil override uses the user's saved filter.
func (s *WorklistService) List(ctx context.Context, userID string, override *domain.WorklistFilter, now time.Time) (Worklist, error) {
	var f domain.WorklistFilter
	if override != nil {
		f = *override
	} else if userID != "" && s.Settings != nil {
		saved, _, err := s.Settings.GetWorklistFilter(ctx, userID)
		if err != nil {
			return Worklist{}, err
		}
		f = saved
	}
	if err := validateFilter(f); err != nil {
		return Worklist{}, err
	}

	maxScan := s.scanCap()
	q := store.CandidateQuery{OwnerCA: f.OwnerCA, Limit: maxScan + 1}
	for _, st := range f.Statuses {
		q.Statuses = append(q.Statuses, string(st))
	}
	cands, err := s.Candidates.ListCandidates(ctx, q)
	if err != nil {
		return Worklist{}, err
	}
	if len(cands) > maxScan {
		return Worklist{}, fmt.Errorf("%w: more than %d candidates match, narrow the filter", domain.ErrInvalidInput, maxScan)
	}

	entries := s.Classifier.SortWorklist(cands, now)
	entries = applyFilter(entries, f)
	if n := s.limit(f.Limit); len(entries) > n {
		entries = entries[:n]
	}
	for _, e := range entries {
		observability.WorklistDelay.WithLabelValues(string(e.Classification.Delay)).Inc()
	}
	if entries == nil {
		entries = []urgency.Entry{}
	}
	return Worklist{Filter: f, Entries: entries}, nil
}

// Classify validates and classifies caller-supplied snapshots, returning them in worklist order.
func (s *WorklistService) Classify(ctx context.Context, cands []domain.Candidate, now time.Time) ([]urgency.Entry, error) {
	for i := range cands {
		if err := cands[i].Validate(); err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
	}
	return s.Classifier.SortWorklist(cands, now), nil
}

func (s *WorklistService) GetFilter(ctx context.Context, userID string) (domain.WorklistFilter, error) {
	if userID == "" {
		return domain.WorklistFilter{}, domain.ErrInvalidInput
	}
	f, _, err := s.Settings.GetWorklistFilter(ctx, userID)
	return f, err
}

func (s *WorklistService) SaveFilter(ctx context.Context, userID string, f domain.WorklistFilter) error {
	if userID == "" {
		return domain.ErrInvalidInput
	}
	if err := validateFilter(f); err != nil {
		return err
	}
	return s.Settings.SaveWorklistFilter(ctx, userID, f)
}

func (s *WorklistService) limit(requested int) int {
	maxRows := s.MaxRows
	if maxRows <= 0 {
		maxRows = 500
	}
	if requested <= 0 || requested > maxRows {
		return maxRows
	}
	return requested
}

func (s *WorklistService) scanCap() int {
	if s.ScanCap > 0 {
		return s.ScanCap
	}
	return scanCap
}

func validateFilter(f domain.WorklistFilter) error {
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if err := f.Validate(); err != nil {
		return err
	}
	for _, d := range f.DelayTiers {
		if !urgency.DelayTier(d).Valid() {
			return fmt.Errorf("%w: unknown delay tier %q", domain.ErrInvalidInput, d)
		}
	}
	return nil
}

func applyFilter(entries []urgency.Entry, f domain.WorklistFilter) []urgency.Entry {
	if !f.RequiresResponseOnly && len(f.DelayTiers) == 0 {
		return entries
	}
	tiers := map[urgency.DelayTier]bool{}
	for _, d := range f.DelayTiers {
		tiers[urgency.DelayTier(d)] = true
	}
	out := entries[:0]
	for _, e := range entries {
		if f.RequiresResponseOnly && !e.Classification.RequiresResponse {
			continue
		}
		if len(tiers) > 0 && !tiers[e.Classification.Delay] {
			continue
		}
		out = append(out, e)
	}
	return out
}
