package urgency

import (
	"sort"
	"time"

	"recruit/internal/domain"
)

var priorityRank = map[PriorityTier]int{
	PriorityOverdue:  0,
	PriorityCritical: 1,
	PriorityDanger:   2,
	PriorityWarning:  3,
	PriorityNormal:   4,
	PriorityNone:     5,
}

var delayRank = map[DelayTier]int{
	DelayCritical: 0,
	DelayDanger:   1,
	DelayWarning:  2,
	DelayNormal:   3,
	DelayExcluded: 4,
}

func PriorityRank(p PriorityTier) int { return priorityRank[p] }

func DelayRank(d DelayTier) int { return delayRank[d] }

// Less orders by priority rank, then delay rank.
func Less(a, b Classification) bool {
	pa, pb := priorityRank[a.Priority], priorityRank[b.Priority]
	if pa != pb {
		return pa < pb
	}
	return delayRank[a.Delay] < delayRank[b.Delay]
}

// Entry is a candidate paired with its classification.
type Entry struct {
	Candidate      domain.Candidate `json:"candidate"`
	Classification Classification   `json:"classification"`
}

// SortEntries sorts in place; entries equal on both keys keep their input order.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return Less(entries[i].Classification, entries[j].Classification)
	})
}

// SortWorklist classifies and orders candidates. The input slice is not modified.
func (c Classifier) SortWorklist(cands []domain.Candidate, now time.Time) []Entry {
	out := make([]Entry, 0, len(cands))
	for i := range cands {
		cl, _ := c.Classify(&cands[i], now)
		out = append(out, Entry{Candidate: cands[i], Classification: cl})
	}
	SortEntries(out)
	return out
}
