package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"recruit/internal/domain"
	"recruit/internal/providers/messenger"
	sqsqueue "recruit/internal/queue/sqs"
	"recruit/internal/store"
)

var testNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu        sync.Mutex
	msg       store.MessageForWorker
	thread    domain.Thread
	page      domain.Page
	pageFound bool
	claim     bool
	state     string
	lastErr   string
	provider  string
	attempts  []store.ProviderAttempt
	outbound  []store.OutboundSent
}

func newFakeStore(inboundAgo time.Duration) *fakeStore {
	in := domain.TimestampOf(testNow.Add(-inboundAgo))
	return &fakeStore{
		msg:       store.MessageForWorker{ThreadID: "thr_1", ActorRole: "ca", Text: "hi", MessagingType: "RESPONSE", State: "queued"},
		thread:    domain.Thread{ID: "thr_1", PageID: "p1", RecipientPSID: "psid-1", LastInboundAt: in, LastMessageAt: in},
		page:      domain.Page{PageID: "p1", Connected: true, AccessToken: "page-token"},
		pageFound: true,
		claim:     true,
		state:     "queued",
	}
}

func (f *fakeStore) GetMessageForWorker(ctx context.Context, id string) (store.MessageForWorker, error) {
	return f.msg, nil
}

func (f *fakeStore) ClaimMessage(ctx context.Context, id string, now time.Time, staleAfter time.Duration) (bool, error) {
	if f.claim {
		f.state = "processing"
	}
	return f.claim, nil
}

func (f *fakeStore) GetThread(ctx context.Context, id string) (domain.Thread, error) {
	return f.thread, nil
}

func (f *fakeStore) GetPage(ctx context.Context, id string) (domain.Page, bool, error) {
	return f.page, f.pageFound, nil
}

func (f *fakeStore) InsertAttempt(ctx context.Context, in store.ProviderAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, in)
	return nil
}

func (f *fakeStore) SetProviderDetails(ctx context.Context, in store.ProviderDetailsUpdate) error {
	f.state = in.State
	f.provider = in.ProviderMsgID
	return nil
}

func (f *fakeStore) MarkMessageState(ctx context.Context, in store.MessageStateUpdate) error {
	f.state = in.State
	f.lastErr = in.LastError
	return nil
}

func (f *fakeStore) RecordOutbound(ctx context.Context, in store.OutboundSent) error {
	f.outbound = append(f.outbound, in)
	return nil
}

type fakeSender struct {
	calls []messenger.SendRequest
	errs  []error
	codes []int
}

func (s *fakeSender) SendMessage(ctx context.Context, req messenger.SendRequest) (messenger.SendResponse, int, []byte, error) {
	i := len(s.calls)
	s.calls = append(s.calls, req)
	if i < len(s.errs) && s.errs[i] != nil {
		return messenger.SendResponse{}, s.codes[i], []byte(`{"error":{}}`), s.errs[i]
	}
	return messenger.SendResponse{RecipientID: req.RecipientPSID, MessageID: "m_ok"}, 200, []byte(`{}`), nil
}

func newProcessor(st *fakeStore, sender *fakeSender) *Processor {
	return &Processor{
		Store:   st,
		Sender:  sender,
		Backoff: func(int) time.Duration { return 0 },
		Now:     func() time.Time { return testNow },
	}
}

func TestProcessSubmits(t *testing.T) {
	st := newFakeStore(time.Hour)
	sender := &fakeSender{}

	if err := newProcessor(st, sender).Process(context.Background(), sqsqueue.OutboundJob{MessageID: "msg_1"}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(sender.calls) != 1 {
		t.Fatalf("expected one send, got %d", len(sender.calls))
	}
	req := sender.calls[0]
	if req.PageAccessToken != "page-token" || req.RecipientPSID != "psid-1" || req.MessagingType != "RESPONSE" {
		t.Fatalf("unexpected send request %+v", req)
	}
	if st.state != "submitted" || st.provider != "m_ok" {
		t.Fatalf("expected submitted with provider id, got %s %s", st.state, st.provider)
	}
	if len(st.outbound) != 1 || st.outbound[0].ThreadID != "thr_1" {
		t.Fatalf("expected outbound recorded, got %+v", st.outbound)
	}
}

func TestProcessWindowClosedSinceEnqueue(t *testing.T) {
	st := newFakeStore(9 * 24 * time.Hour)
	sender := &fakeSender{}

	if err := newProcessor(st, sender).Process(context.Background(), sqsqueue.OutboundJob{MessageID: "msg_1"}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(sender.calls) != 0 {
		t.Fatalf("expected no send once the window closed")
	}
	if st.state != "rejected" || st.lastErr != "tag_required" {
		t.Fatalf("expected rejected/tag_required, got %s/%s", st.state, st.lastErr)
	}
}

func TestProcessHumanAgentTagAtSendTime(t *testing.T) {
	st := newFakeStore(3 * 24 * time.Hour)
	sender := &fakeSender{}

	if err := newProcessor(st, sender).Process(context.Background(), sqsqueue.OutboundJob{MessageID: "msg_1"}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(sender.calls) != 1 || sender.calls[0].Tag != "HUMAN_AGENT" || sender.calls[0].MessagingType != "MESSAGE_TAG" {
		t.Fatalf("expected HUMAN_AGENT tagged send, got %+v", sender.calls)
	}
}

func TestProcessPageDisconnected(t *testing.T) {
	st := newFakeStore(time.Hour)
	st.pageFound = false

	if err := newProcessor(st, &fakeSender{}).Process(context.Background(), sqsqueue.OutboundJob{MessageID: "msg_1"}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if st.state != "rejected" || st.lastErr != "blocked" {
		t.Fatalf("expected rejected/blocked, got %s/%s", st.state, st.lastErr)
	}
}

func TestProcessSkipsTerminalAndUnclaimed(t *testing.T) {
	st := newFakeStore(time.Hour)
	st.msg.State = "delivered"
	sender := &fakeSender{}
	if err := newProcessor(st, sender).Process(context.Background(), sqsqueue.OutboundJob{MessageID: "msg_1"}); err != nil {
		t.Fatalf("process: %v", err)
	}

	st = newFakeStore(time.Hour)
	st.claim = false
	if err := newProcessor(st, sender).Process(context.Background(), sqsqueue.OutboundJob{MessageID: "msg_1"}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(sender.calls) != 0 {
		t.Fatalf("expected no sends, got %d", len(sender.calls))
	}
}

func TestProcessRetriesTransient(t *testing.T) {
	st := newFakeStore(time.Hour)
	sender := &fakeSender{
		errs:  []error{&messenger.APIError{Code: 2, Message: "temporary"}},
		codes: []int{500},
	}

	if err := newProcessor(st, sender).Process(context.Background(), sqsqueue.OutboundJob{MessageID: "msg_1"}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(sender.calls) != 2 || len(st.attempts) != 2 {
		t.Fatalf("expected retry then success, calls=%d attempts=%d", len(sender.calls), len(st.attempts))
	}
	if st.attempts[0].ErrorCode != "2" {
		t.Fatalf("expected error code recorded, got %q", st.attempts[0].ErrorCode)
	}
	if st.state != "submitted" {
		t.Fatalf("expected submitted, got %s", st.state)
	}
}

func TestProcessNonRetryableFails(t *testing.T) {
	st := newFakeStore(time.Hour)
	perm := &messenger.APIError{Code: 100, Message: "invalid parameter"}
	sender := &fakeSender{errs: []error{perm}, codes: []int{400}}

	err := newProcessor(st, sender).Process(context.Background(), sqsqueue.OutboundJob{MessageID: "msg_1"})
	if !errors.Is(err, perm) {
		t.Fatalf("expected api error, got %v", err)
	}
	if st.state != "failed" || st.lastErr != "messenger_non_retryable" {
		t.Fatalf("expected failed/messenger_non_retryable, got %s/%s", st.state, st.lastErr)
	}
}

func TestProcessRetryExhausted(t *testing.T) {
	st := newFakeStore(time.Hour)
	transient := &messenger.APIError{Code: 1, Message: "unknown"}
	sender := &fakeSender{errs: []error{transient, transient, transient}, codes: []int{503, 503, 503}}

	if err := newProcessor(st, sender).Process(context.Background(), sqsqueue.OutboundJob{MessageID: "msg_1"}); err == nil {
		t.Fatalf("expected error after retries")
	}
	if len(sender.calls) != maxAttempts || st.lastErr != "messenger_retry_exhausted" {
		t.Fatalf("calls=%d lastErr=%s", len(sender.calls), st.lastErr)
	}
}
