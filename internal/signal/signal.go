// Package signal emits dispatch [Signal]s for a [plan.Plan] at its
// scheduled instants, with minimal jitter and without coordinated
// omission: a Signal always carries the instant it was *supposed* to fire
// at, even when the runtime only gets around to sending it late.
package signal

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/ashlineldridge/metron/internal/plan"
)

// Strategy selects how the Signaller waits between instants.
type Strategy string

const (
	// Blocking pins a dedicated OS thread and spin-sleeps for the final
	// slice of each wait, trading a thread for the tightest timing.
	Blocking Strategy = "blocking"
	// Cooperative waits on a plain timer inside the normal goroutine
	// scheduler, at the cost of scheduler jitter.
	Cooperative Strategy = "cooperative"
)

// Signal is the unit of work handed from the Signaller to the Coordinator.
type Signal struct {
	Seq         uint64
	ScheduledAt time.Time
	SegmentID   uint32
}

// Signaller walks a Plan's instant sequence and publishes one Signal per
// instant onto its output channel, in seq order.
type Signaller struct {
	plan     *plan.Plan
	strategy Strategy
	start    time.Time
	seqBase  uint64
	out      chan Signal

	nextSeq atomic.Uint64
	skipped atomic.Uint64
	overrun atomic.Uint64
}

// New constructs a Signaller for the given plan. start is the wall-clock
// instant that plan-offset zero corresponds to; seqBase is the first Seq
// value this Signaller will emit (nonzero when chaining SLO-search rounds
// onto a prior round's sequence space). capacity bounds the output channel;
// a small multiple of the worker count keeps Workers fed without buffering
// far ahead of the dispatch deadline.
func New(p *plan.Plan, strategy Strategy, start time.Time, seqBase uint64, capacity int) *Signaller {
	if capacity < 1 {
		capacity = 1
	}
	s := &Signaller{
		plan:     p,
		strategy: strategy,
		start:    start,
		seqBase:  seqBase,
		out:      make(chan Signal, capacity),
	}
	s.nextSeq.Store(seqBase)
	return s
}

// Out returns the channel Signals are published on. It is closed when the
// plan is exhausted or the run is cancelled.
func (s *Signaller) Out() <-chan Signal {
	return s.out
}

// Counters reports how many instants were skipped to avoid a catch-up
// burst, and how many sends observed a full channel (signal-channel
// backpressure, i.e. the Coordinator falling behind).
func (s *Signaller) Counters() (skipped, overrun uint64) {
	return s.skipped.Load(), s.overrun.Load()
}

// NextSeq returns the seq value that would be assigned to the next instant,
// for handing off to a following Signaller round. Before Run is called it
// equals seqBase; it advances as instants are emitted.
func (s *Signaller) NextSeq() uint64 {
	return s.nextSeq.Load()
}

// Run drives the Signaller until the plan is exhausted or ctx is
// cancelled, then closes the output channel. It returns the context error,
// if any.
func (s *Signaller) Run(ctx context.Context) error {
	if s.strategy == Blocking {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	defer close(s.out)

	cursor := s.plan.Cursor(0)
	sleep := timerSleep
	if s.strategy == Blocking {
		sleep = preciseSleep
	}

	for {
		local, k, ok := cursor.Next()
		if !ok {
			return nil
		}
		target := s.start.Add(local)

		// Don't catch up by bursting: if we're already more than one
		// instant's worth behind, skip ahead to the next unmissed instant.
		if now := time.Now(); now.Sub(target) > s.instantPeriod(local) {
			skipped := cursor.SkipTo(now.Sub(s.start))
			s.skipped.Add(skipped + 1) // +1 for the instant we just read
			continue
		}

		if err := sleep(ctx, target); err != nil {
			return err
		}

		segIdx, _ := s.plan.SegmentIndexAt(local)
		sig := Signal{Seq: s.seqBase + k, ScheduledAt: target, SegmentID: uint32(segIdx)}
		s.nextSeq.Store(sig.Seq + 1)

		select {
		case s.out <- sig:
		default:
			s.overrun.Add(1)
			select {
			case s.out <- sig:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// instantPeriod estimates the local inter-instant spacing near offset t,
// used to decide whether the Signaller has fallen more than one instant
// behind schedule.
func (s *Signaller) instantPeriod(t time.Duration) time.Duration {
	rate, ok := s.plan.RateAt(t)
	if !ok || rate <= 0 {
		return time.Second
	}
	return time.Duration(float64(time.Second) / rate)
}

func preciseSleep(ctx context.Context, until time.Time) error {
	for {
		remaining := time.Until(until)
		if remaining <= 0 {
			return nil
		}
		if remaining > 2*time.Millisecond {
			t := time.NewTimer(remaining - time.Millisecond)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			}
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		runtime.Gosched()
	}
}

func timerSleep(ctx context.Context, until time.Time) error {
	d := time.Until(until)
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
