package service

import (
	"context"
	"errors"
	"sort"
	"sync"

	"recruit/internal/domain"
	sqsqueue "recruit/internal/queue/sqs"
	"recruit/internal/store"
)

type fakeStore struct {
	mu       sync.Mutex
	threads  map[string]domain.Thread
	pages    map[string]domain.Page
	messages map[string]store.MessageInsert
	states   map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		threads:  map[string]domain.Thread{},
		pages:    map[string]domain.Page{},
		messages: map[string]store.MessageInsert{},
		states:   map[string]string{},
	}
}

func (f *fakeStore) FindMessageByIdempotency(ctx context.Context, threadID, idemKey string) (store.IdempotencyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, m := range f.messages {
		if m.ThreadID == threadID && m.IdemKey == idemKey {
			return store.IdempotencyResult{MessageID: id, State: f.states[id], SendState: m.SendState, Found: true}, nil
		}
	}
	return store.IdempotencyResult{}, nil
}

func (f *fakeStore) InsertMessage(ctx context.Context, in store.MessageInsert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[in.ID] = in
	f.states[in.ID] = in.State
	return nil
}

func (f *fakeStore) MarkMessageState(ctx context.Context, in store.MessageStateUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[in.ID] = in.State
	return nil
}

func (f *fakeStore) GetMessage(ctx context.Context, msgID string) (store.Message, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[msgID]
	if !ok {
		return store.Message{}, false, nil
	}
	return store.Message{ID: msgID, ThreadID: m.ThreadID, State: f.states[msgID]}, true, nil
}

func (f *fakeStore) GetThread(ctx context.Context, threadID string) (domain.Thread, error) {
	th, ok := f.threads[threadID]
	if !ok {
		return domain.Thread{}, store.ErrNotFound
	}
	return th, nil
}

func (f *fakeStore) GetPage(ctx context.Context, pageID string) (domain.Page, bool, error) {
	p, ok := f.pages[pageID]
	return p, ok, nil
}

type fakeQueue struct {
	jobs []sqsqueue.OutboundJob
	err  error
}

func (q *fakeQueue) EnqueueOutbound(ctx context.Context, job sqsqueue.OutboundJob) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type fakeCandidates struct {
	cands []domain.Candidate
	last  store.CandidateQuery
}

// ListCandidates reads rows in id order and honours Limit, as the pg store does.
func (f *fakeCandidates) ListCandidates(ctx context.Context, q store.CandidateQuery) ([]domain.Candidate, error) {
	f.last = q
	out := make([]domain.Candidate, len(f.cands))
	copy(out, f.cands)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

type fakeSettings struct {
	filters map[string]domain.WorklistFilter
}

func (f *fakeSettings) GetWorklistFilter(ctx context.Context, userID string) (domain.WorklistFilter, bool, error) {
	v, ok := f.filters[userID]
	return v, ok, nil
}

func (f *fakeSettings) SaveWorklistFilter(ctx context.Context, userID string, v domain.WorklistFilter) error {
	if f.filters == nil {
		f.filters = map[string]domain.WorklistFilter{}
	}
	f.filters[userID] = v
	return nil
}

var errQueueDown = errors.New("queue down")
