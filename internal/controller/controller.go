// Package controller implements Metron's closed-loop SLO search: the
// feedback algorithm that finds the maximum request rate compliant with a
// latency objective by running successive fixed-rate rounds and adjusting
// the rate from each round's Segment Report.
package controller

import (
	"github.com/ashlineldridge/metron/internal/config"
	"github.com/ashlineldridge/metron/internal/log"
	"github.com/ashlineldridge/metron/internal/telemetry"
)

type phase int

const (
	probing phase = iota
	bisecting
	done
)

// Result is the SLO search's outcome once the Controller reaches done.
type Result struct {
	// Found reports whether any rate satisfied the SLO. False only when the
	// very first probe, at the configured minimum rate, was non-compliant.
	Found bool
	// MaxCompliantRate is r_lo: the highest rate observed to be compliant.
	// Meaningless when Found is false.
	MaxCompliantRate float64
	Rounds           int
}

// Controller drives SLO search one round at a time. Engine glue is
// responsible for actually running a round's Plan and handing the resulting
// telemetry.SegmentReport back via Observe; the Controller never touches a
// Plan, Signaller, or Sink directly.
type Controller struct {
	cfg                 config.SLOConfig
	noLatencyCorrection bool
	log                 log.Logger

	ph       phase
	round    int
	current  float64
	rLo, rHi float64
	foundAny bool
	result   Result
}

// New returns a Controller ready to run its first round at cfg.RateMin.
// noLatencyCorrection selects which latency series the compliance check
// reads: corrected (the default) or actual, sent-to-done latency.
func New(cfg config.SLOConfig, noLatencyCorrection bool, logger log.Logger) *Controller {
	if logger == nil {
		logger = log.Nop
	}
	return &Controller{cfg: cfg, noLatencyCorrection: noLatencyCorrection, log: logger, current: cfg.RateMin}
}

// Done reports whether the search has reached a final verdict.
func (c *Controller) Done() bool { return c.ph == done }

// CurrentRate is the rate the next round should run at. Only meaningful
// while !Done().
func (c *Controller) CurrentRate() float64 { return c.current }

// Round returns the 1-based index of the round about to run. Once Done, it
// is one more than the number of rounds run (Result().Rounds).
func (c *Controller) Round() int { return c.round + 1 }

// Result returns the search's final verdict. Only meaningful once Done().
func (c *Controller) Result() Result {
	c.result.Rounds = c.round
	return c.result
}

// Observe feeds the Segment Report for the round just completed at
// CurrentRate and advances the search: exponential probe from r_min, then
// binary bisection between the last compliant and first non-compliant
// rate.
func (c *Controller) Observe(report telemetry.SegmentReport) {
	c.round++
	compliant := c.compliant(report)
	c.log.Debugf("controller: round %d rate=%.1f compliant=%v success_rate=%.4f q=%s",
		c.round, c.current, compliant, report.SuccessRate, report.DefaultQuantile(c.cfg.Quantile*100, c.noLatencyCorrection))

	switch c.ph {
	case probing:
		c.observeProbe(compliant)
	case bisecting:
		c.observeBisect(compliant)
	}
}

func (c *Controller) observeProbe(compliant bool) {
	if !compliant {
		if !c.foundAny {
			c.result = Result{Found: false}
			c.ph = done
			return
		}
		c.rHi = c.current
		c.ph = bisecting
		c.current = (c.rLo + c.rHi) / 2
		return
	}

	c.foundAny = true
	c.rLo = c.current
	if c.current >= c.cfg.RateMax || c.round >= c.cfg.MaxRounds {
		c.finish()
		return
	}

	next := c.current * 2
	if next > c.cfg.RateMax {
		next = c.cfg.RateMax
	}
	c.current = next
}

func (c *Controller) observeBisect(compliant bool) {
	if compliant {
		c.rLo = c.current
	} else {
		c.rHi = c.current
	}

	if (c.rHi-c.rLo)/c.rLo < c.cfg.Epsilon || c.round >= c.cfg.MaxRounds {
		c.finish()
		return
	}
	c.current = (c.rLo + c.rHi) / 2
}

func (c *Controller) finish() {
	c.result = Result{Found: true, MaxCompliantRate: c.rLo}
	c.ph = done
}

// compliant applies the tie-break rule: both the latency and success-rate
// thresholds must hold, or the segment fails.
func (c *Controller) compliant(report telemetry.SegmentReport) bool {
	if report.SuccessRate < c.cfg.MinSuccessRate {
		return false
	}
	q := report.DefaultQuantile(c.cfg.Quantile*100, c.noLatencyCorrection)
	return q <= c.cfg.Threshold
}
