package messaging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"recruit/internal/domain"
)

var now = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func connected() *domain.Page {
	return &domain.Page{PageID: "p1", Connected: true}
}

func threadWithInbound(ago time.Duration) *domain.Thread {
	in := domain.TimestampOf(now.Add(-ago))
	return &domain.Thread{ID: "th1", PageID: "p1", LastInboundAt: in, LastMessageAt: in}
}

func TestEvaluateActiveWindow(t *testing.T) {
	got, err := Evaluate(threadWithInbound(2*time.Hour), connected(), domain.RoleCA, now)
	if err != nil {
		t.Fatalf("unexpected err %v", err)
	}
	if got != domain.SendActive {
		t.Fatalf("expected active, got %s", got)
	}
}

func TestEvaluateTagRequired(t *testing.T) {
	got, _ := Evaluate(threadWithInbound(10*24*time.Hour), connected(), domain.RoleCA, now)
	if got != domain.SendRequiresTag {
		t.Fatalf("expected requires_tag, got %s", got)
	}

	got, _ = Evaluate(&domain.Thread{ID: "th2", PageID: "p1"}, connected(), domain.RoleCA, now)
	if got != domain.SendRequiresTag {
		t.Fatalf("expected requires_tag without inbound, got %s", got)
	}
}

func TestEvaluateBoundaries(t *testing.T) {
	cases := []struct {
		ago  time.Duration
		want domain.SendState
	}{
		{0, domain.SendActive},
		{24 * time.Hour, domain.SendActive},
		{24*time.Hour + time.Second, domain.SendHumanAgent},
		{7 * 24 * time.Hour, domain.SendHumanAgent},
		{7*24*time.Hour + time.Second, domain.SendRequiresTag},
		{-time.Hour, domain.SendActive},
	}
	for _, tc := range cases {
		got, err := Evaluate(threadWithInbound(tc.ago), connected(), domain.RoleCA, now)
		if err != nil {
			t.Fatalf("ago=%s: unexpected err %v", tc.ago, err)
		}
		if got != tc.want {
			t.Fatalf("ago=%s: expected %s, got %s", tc.ago, tc.want, got)
		}
	}
}

func TestEvaluateBlockedDominates(t *testing.T) {
	th := threadWithInbound(time.Hour)

	got, _ := Evaluate(th, &domain.Page{PageID: "p1", Connected: false}, domain.RoleAdmin, now)
	if got != domain.SendBlocked {
		t.Fatalf("expected blocked for disconnected page, got %s", got)
	}

	got, _ = Evaluate(th, nil, domain.RoleAdmin, now)
	if got != domain.SendBlocked {
		t.Fatalf("expected blocked for missing page, got %s", got)
	}

	expired := connected()
	expired.TokenExpiresAt = domain.TimestampOf(now)
	got, _ = Evaluate(th, expired, domain.RoleAdmin, now)
	if got != domain.SendBlocked {
		t.Fatalf("expected blocked when token expires exactly now, got %s", got)
	}

	valid := connected()
	valid.TokenExpiresAt = domain.TimestampOf(now.Add(time.Minute))
	got, _ = Evaluate(th, valid, domain.RoleAdmin, now)
	if got != domain.SendActive {
		t.Fatalf("expected active with unexpired token, got %s", got)
	}
}

func TestEvaluateNilThread(t *testing.T) {
	_, err := Evaluate(nil, connected(), domain.RoleCA, now)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestEvaluateMalformedTimestamps(t *testing.T) {
	th := &domain.Thread{ID: "th1", LastInboundAt: "garbage"}
	got, err := Evaluate(th, connected(), domain.RoleCA, now)
	if err != nil {
		t.Fatalf("malformed inbound must not fail, got %v", err)
	}
	if got != domain.SendActive {
		t.Fatalf("expected active for zero elapsed, got %s", got)
	}

	page := connected()
	page.TokenExpiresAt = "soon"
	got, _ = Evaluate(threadWithInbound(time.Hour), page, domain.RoleCA, now)
	if got != domain.SendBlocked {
		t.Fatalf("expected blocked for unparseable expiry, got %s", got)
	}
}

func TestEvaluateMalformedInboundLogsWarning(t *testing.T) {
	var buf bytes.Buffer
	p := Policy{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	th := &domain.Thread{ID: "th7", LastInboundAt: "2026-13-45"}

	got, err := p.Evaluate(th, connected(), domain.RoleCA, now)
	if err != nil || got != domain.SendActive {
		t.Fatalf("expected active, got %s %v", got, err)
	}
	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "thread_id=th7") {
		t.Fatalf("expected warning for thread, got %q", out)
	}
}

func TestEvaluateIdempotent(t *testing.T) {
	th := threadWithInbound(30 * time.Hour)
	a, _ := Evaluate(th, connected(), domain.RoleCA, now)
	b, _ := Evaluate(th, connected(), domain.RoleCA, now)
	if a != b {
		t.Fatalf("expected identical results, got %s and %s", a, b)
	}
}

func TestCheckSend(t *testing.T) {
	d, err := CheckSend(domain.SendActive, domain.RoleSystem, "")
	if err != nil || d.MessagingType != MessagingTypeResponse {
		t.Fatalf("active: expected RESPONSE, got %+v %v", d, err)
	}

	d, err = CheckSend(domain.SendHumanAgent, domain.RoleCA, "")
	if err != nil || d.Tag != domain.TagHumanAgent {
		t.Fatalf("human_agent: expected HUMAN_AGENT tag, got %+v %v", d, err)
	}
	if _, err := CheckSend(domain.SendHumanAgent, domain.RoleSystem, ""); !errors.Is(err, ErrHumanAgentOnly) {
		t.Fatalf("human_agent system: expected ErrHumanAgentOnly, got %v", err)
	}

	if _, err := CheckSend(domain.SendRequiresTag, domain.RoleCA, ""); !errors.Is(err, ErrTagRequired) {
		t.Fatalf("requires_tag: expected ErrTagRequired, got %v", err)
	}
	if _, err := CheckSend(domain.SendRequiresTag, domain.RoleCA, domain.TagHumanAgent); !errors.Is(err, ErrInvalidTag) {
		t.Fatalf("requires_tag: expected ErrInvalidTag, got %v", err)
	}
	d, err = CheckSend(domain.SendRequiresTag, domain.RoleCA, domain.TagConfirmedEventUpdate)
	if err != nil || d.MessagingType != MessagingTypeMessageTag || d.Tag != domain.TagConfirmedEventUpdate {
		t.Fatalf("requires_tag: expected tagged dispatch, got %+v %v", d, err)
	}

	if _, err := CheckSend(domain.SendBlocked, domain.RoleAdmin, domain.TagAccountUpdate); !errors.Is(err, ErrBlocked) {
		t.Fatalf("blocked: expected ErrBlocked, got %v", err)
	}
}

func TestRejectReason(t *testing.T) {
	if got := RejectReason(ErrTagRequired); got != "tag_required" {
		t.Fatalf("expected tag_required, got %s", got)
	}
	if got := RejectReason(errors.New("x")); got != "unknown" {
		t.Fatalf("expected unknown, got %s", got)
	}
}
