// Package plan turns a piecewise rate schedule into a monotonic sequence of
// scheduled dispatch instants.
//
// A [Plan] is a pure value: given a segment list it answers questions about
// rate and timing without running anything. A Plan is never mutated: SLO
// search builds a fresh Plan for each round instead of reaching into live
// goroutines.
package plan

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// RateKind distinguishes a fixed-rate segment from a linear ramp.
type RateKind int

const (
	// Fixed holds a constant rate for the whole segment.
	Fixed RateKind = iota
	// Ramp varies linearly between FromRPS and ToRPS over the segment.
	Ramp
)

// Segment is one piece of a [Plan]: a duration and a rate specification.
type Segment struct {
	Kind RateKind
	// FromRPS is the rate for a Fixed segment, or the starting rate of a Ramp.
	FromRPS float64
	// ToRPS is only meaningful for Ramp; ignored for Fixed.
	ToRPS float64
	// Duration is the segment length; it must be positive unless Forever is
	// set, in which case it is ignored.
	Duration time.Duration
	// Forever makes the segment unbounded: only legal on the last segment of
	// a Plan, and only for a Fixed segment.
	Forever bool
}

// rate returns the instantaneous rate at local offset t within the segment.
func (s Segment) rate(t time.Duration) float64 {
	if s.Kind == Fixed {
		return s.FromRPS
	}
	d := s.Duration.Seconds()
	if d <= 0 {
		return s.FromRPS
	}
	frac := t.Seconds() / d
	if frac < 0 {
		frac = 0
	} else if frac > 1 {
		frac = 1
	}
	return s.FromRPS + (s.ToRPS-s.FromRPS)*frac
}

// cumulativeCount returns C(t), the number of instants expected in [0, t)
// for a segment started at local time 0 — the closed form of integrating
// rate(t) from 0 to t.
func (s Segment) cumulativeCount(t time.Duration) float64 {
	tSec := t.Seconds()
	if s.Kind == Fixed {
		return s.FromRPS * tSec
	}
	d := s.Duration.Seconds()
	if d <= 0 {
		return s.FromRPS * tSec
	}
	a := (s.ToRPS - s.FromRPS) / (2 * d)
	return s.FromRPS*tSec + a*tSec*tSec
}

// nthInstant solves the cumulative-count integral for the k-th instant
// (k counted from 0, local to the segment): the positive root of
// C(t) = k.
func (s Segment) nthInstant(k float64) time.Duration {
	b := s.FromRPS
	var a float64
	if s.Kind == Ramp && s.Duration > 0 {
		a = (s.ToRPS - s.FromRPS) / (2 * s.Duration.Seconds())
	}
	var tSec float64
	if a == 0 {
		if b <= 0 {
			return 0
		}
		tSec = k / b
	} else {
		disc := b*b + 4*a*k
		if disc < 0 {
			disc = 0
		}
		tSec = (-b + math.Sqrt(disc)) / (2 * a)
	}
	if tSec < 0 {
		tSec = 0
	}
	return time.Duration(tSec * float64(time.Second))
}

// expectedCount returns the (real-valued) number of instants the segment is
// expected to emit over its full duration. Infinite for a Forever segment.
func (s Segment) expectedCount() float64 {
	if s.Forever {
		return math.Inf(1)
	}
	return s.cumulativeCount(s.Duration)
}

// count returns the integer number of instants strictly within [0, Duration)
// that the segment emits — ceil(expectedCount), consistent with the rule
// that an instant landing exactly on the boundary belongs to the next
// segment.
func (s Segment) count() int64 {
	ec := s.expectedCount()
	if math.IsInf(ec, 1) {
		return math.MaxInt64
	}
	c := math.Ceil(ec - 1e-9)
	if c < 0 {
		c = 0
	}
	return int64(c)
}

func (s Segment) validate(last bool) error {
	if s.Forever {
		if !last {
			return errors.New("plan: forever duration only permitted on the last segment")
		}
		if s.Kind != Fixed {
			return errors.New("plan: forever duration only permitted on a fixed-rate segment")
		}
		return nil
	}
	if s.Duration <= 0 {
		return errors.New("plan: segment duration must be positive")
	}
	if s.Kind == Fixed && s.FromRPS <= 0 {
		return errors.New("plan: fixed segment rate must be positive")
	}
	if s.Kind == Ramp && (s.FromRPS < 0 || s.ToRPS < 0) {
		return errors.New("plan: ramp rates must be non-negative")
	}
	return nil
}

// Duration reports a Plan's total duration, with Finite=false if the Plan
// never ends (its last segment is Forever).
type Duration struct {
	Value time.Duration
	Finite bool
}

// Plan is an ordered, finite list of segments describing target request
// rate over time. It is immutable once constructed.
type Plan struct {
	segments []Segment
	// cumCount[i] is the number of instants emitted by segments[0:i].
	cumCount []float64
	// starts[i] is the absolute offset (from plan start) at which segments[i] begins.
	starts []time.Duration
}

// New validates and constructs a Plan from an ordered segment list.
func New(segments []Segment) (*Plan, error) {
	if len(segments) == 0 {
		return nil, errors.New("plan: at least one segment is required")
	}
	p := &Plan{
		segments: append([]Segment(nil), segments...),
		cumCount: make([]float64, len(segments)+1),
		starts:   make([]time.Duration, len(segments)),
	}
	var offset time.Duration
	for i, seg := range p.segments {
		if err := seg.validate(i == len(p.segments)-1); err != nil {
			return nil, fmt.Errorf("plan: segment %d: %w", i, err)
		}
		p.starts[i] = offset
		p.cumCount[i+1] = p.cumCount[i] + float64(seg.count())
		if !seg.Forever {
			offset += seg.Duration
		}
	}
	return p, nil
}

// Duration returns the Plan's total span.
func (p *Plan) Duration() Duration {
	last := p.segments[len(p.segments)-1]
	if last.Forever {
		return Duration{Finite: false}
	}
	total := p.starts[len(p.starts)-1] + last.Duration
	return Duration{Value: total, Finite: true}
}

// RateAt returns the instantaneous target rate at offset t from plan start.
func (p *Plan) RateAt(t time.Duration) (float64, bool) {
	idx, local, ok := p.locate(t)
	if !ok {
		return 0, false
	}
	return p.segments[idx].rate(local), true
}

// SegmentIndexAt returns the index of the segment containing offset t, for
// tagging a dispatched [signal.Signal] with the segment it was scheduled
// under.
func (p *Plan) SegmentIndexAt(t time.Duration) (int, bool) {
	idx, _, ok := p.locate(t)
	return idx, ok
}

// locate finds the segment containing offset t, returning its index and the
// local offset within that segment.
func (p *Plan) locate(t time.Duration) (idx int, local time.Duration, ok bool) {
	if t < 0 {
		t = 0
	}
	for i, seg := range p.segments {
		start := p.starts[i]
		if t < start {
			continue
		}
		if seg.Forever {
			return i, t - start, true
		}
		end := start + seg.Duration
		if t < end || (i == len(p.segments)-1 && t == end) {
			return i, t - start, true
		}
	}
	return 0, 0, false
}

// NthInstant returns the absolute offset (from plan start) of the k-th
// scheduled instant (k counted from 0 across the whole plan), or ok=false
// if the plan has fewer than k+1 instants.
func (p *Plan) NthInstant(k uint64) (offset time.Duration, ok bool) {
	kf := float64(k)
	for i, seg := range p.segments {
		if kf < p.cumCount[i+1] || seg.Forever {
			local := seg.nthInstant(kf - p.cumCount[i])
			return p.starts[i] + local, true
		}
	}
	return 0, false
}

// TotalInstants returns the number of instants emitted over the full plan,
// or ok=false if the plan is unbounded (ends in a Forever segment).
func (p *Plan) TotalInstants() (count uint64, ok bool) {
	last := p.segments[len(p.segments)-1]
	if last.Forever {
		return 0, false
	}
	return uint64(p.cumCount[len(p.cumCount)-1]), true
}

// Cursor walks a Plan's instant sequence from a starting index, in order,
// lazily computing each instant on demand rather than materializing the
// whole sequence up front.
type Cursor struct {
	plan *Plan
	next uint64
}

// Cursor returns an iterator starting at the k-th instant.
func (p *Plan) Cursor(k uint64) *Cursor {
	return &Cursor{plan: p, next: k}
}

// Next returns the next scheduled instant's plan-relative offset and its
// sequence number, advancing the cursor. ok is false once the plan is
// exhausted.
func (c *Cursor) Next() (offset time.Duration, seq uint64, ok bool) {
	offset, ok = c.plan.NthInstant(c.next)
	if !ok {
		return 0, 0, false
	}
	seq = c.next
	c.next++
	return offset, seq, true
}

// SkipTo advances the cursor to the smallest instant strictly greater than
// the given offset, returning how many instants were skipped. Used by the
// Signaller to avoid bursting after falling behind.
func (c *Cursor) SkipTo(offset time.Duration) (skipped uint64) {
	for {
		next, ok := c.plan.NthInstant(c.next)
		if !ok || next > offset {
			return skipped
		}
		c.next++
		skipped++
	}
}
