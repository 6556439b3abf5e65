package domain

import (
	"errors"
	"testing"
	"time"
)

func TestTimestampParse(t *testing.T) {
	want := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	cases := []Timestamp{
		"2026-03-01T09:30:00Z",
		"2026-03-01T18:30:00+09:00",
		"2026-03-01T09:30:00",
		"2026-03-01 09:30:00",
	}
	for _, ts := range cases {
		got, err := ts.Time()
		if err != nil {
			t.Fatalf("%q: unexpected err %v", ts, err)
		}
		if !got.Equal(want) {
			t.Fatalf("%q: expected %s, got %s", ts, want, got)
		}
	}
}

func TestTimestampEmptyAndMalformed(t *testing.T) {
	got, err := Timestamp("  ").Time()
	if err != nil || !got.IsZero() {
		t.Fatalf("expected zero time and nil err, got %s %v", got, err)
	}

	_, err = Timestamp("next tuesday").Time()
	if !errors.Is(err, ErrMalformedTimestamp) {
		t.Fatalf("expected ErrMalformedTimestamp, got %v", err)
	}
}

func TestTimestampOfRoundTrip(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 500, time.UTC)
	got, err := TimestampOf(now).Time()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !got.Equal(now) {
		t.Fatalf("expected %s, got %s", now, got)
	}
	if TimestampOf(time.Time{}) != "" {
		t.Fatalf("expected empty timestamp for zero time")
	}
}

func TestThreadValidate(t *testing.T) {
	th := &Thread{ID: "th1", LastInboundAt: "2026-01-02T00:00:00Z", LastMessageAt: "2026-01-01T00:00:00Z"}
	if err := th.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for inbound after last message, got %v", err)
	}

	th.LastMessageAt = "2026-01-03T00:00:00Z"
	if err := th.Validate(); err != nil {
		t.Fatalf("unexpected err %v", err)
	}

	var nilThread *Thread
	if err := nilThread.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for nil thread, got %v", err)
	}
}

func TestCandidateStatusSets(t *testing.T) {
	if StatusUnlinked.DelayTracked() || StatusAwaitingResult.DelayTracked() {
		t.Fatalf("excluded statuses must not be delay tracked")
	}
	if !StatusContacting.DelayTracked() {
		t.Fatalf("active status must be delay tracked")
	}
	if CandidateStatus("unknown").Valid() {
		t.Fatalf("unknown status must be invalid")
	}
}

func TestCandidateValidate(t *testing.T) {
	c := &Candidate{ID: "c1", CandidateStatus: StatusNew, LastMessageDirection: "sideways"}
	if err := c.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	c.LastMessageDirection = DirectionIn
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected err %v", err)
	}
}

func TestTagApproval(t *testing.T) {
	if TagHumanAgent.Approved() {
		t.Fatalf("HUMAN_AGENT must not be accepted from callers")
	}
	if !TagConfirmedEventUpdate.Approved() {
		t.Fatalf("CONFIRMED_EVENT_UPDATE must be approved")
	}
}
