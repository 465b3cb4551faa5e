package signal

import (
	"context"
	"testing"
	"time"

	"github.com/ashlineldridge/metron/internal/plan"
)

func TestSignallerEmitsInOrderWithSeqBase(t *testing.T) {
	p, err := plan.New([]plan.Segment{{Kind: plan.Fixed, FromRPS: 1000, Duration: 50 * time.Millisecond}})
	if err != nil {
		t.Fatalf("plan.New: %v", err)
	}
	start := time.Now()
	s := New(p, Cooperative, start, 42, 8)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	var got []Signal
	for sig := range s.Out() {
		got = append(got, sig)
	}
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) == 0 {
		t.Fatalf("expected at least one signal")
	}
	for i, sig := range got {
		if i > 0 && sig.Seq <= got[i-1].Seq {
			t.Fatalf("seq not strictly increasing at %d: %d <= %d", i, sig.Seq, got[i-1].Seq)
		}
		if sig.Seq < 42 {
			t.Fatalf("seq %d below seqBase 42", sig.Seq)
		}
	}
}

func TestSignallerCancellation(t *testing.T) {
	p, err := plan.New([]plan.Segment{{Kind: plan.Fixed, FromRPS: 10, Forever: true}})
	if err != nil {
		t.Fatalf("plan.New: %v", err)
	}
	s := New(p, Blocking, time.Now(), 0, 4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	go func() {
		for range s.Out() {
		}
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected context error on cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancellation")
	}
}

func TestSignallerRecordsSkippedWhenBehindSchedule(t *testing.T) {
	p, err := plan.New([]plan.Segment{{Kind: plan.Fixed, FromRPS: 10000, Duration: time.Second}})
	if err != nil {
		t.Fatalf("plan.New: %v", err)
	}
	// Start time far in the past: the whole plan is already overdue, so the
	// Signaller should skip ahead rather than burst out thousands of signals.
	start := time.Now().Add(-10 * time.Second)
	s := New(p, Cooperative, start, 0, 4)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	count := 0
	for range s.Out() {
		count++
	}
	<-done

	skipped, _ := s.Counters()
	if skipped == 0 {
		t.Fatalf("expected skipped instants when starting far behind schedule")
	}
	if count >= 10000 {
		t.Fatalf("expected far fewer than the full plan to be emitted, got %d", count)
	}
}
