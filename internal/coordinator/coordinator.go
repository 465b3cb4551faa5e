// Package coordinator fans dispatch signals out to a pool of Client Workers,
// owning the no-queue-per-worker backpressure policy and the
// stop-on-client-error / stop-on-non-2xx shutdown trips.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ashlineldridge/metron/internal/errs"
	"github.com/ashlineldridge/metron/internal/log"
	"github.com/ashlineldridge/metron/internal/signal"
	"github.com/ashlineldridge/metron/internal/telemetry"
	"github.com/ashlineldridge/metron/internal/worker"
)

// Config is the Coordinator's shutdown and trip policy.
type Config struct {
	// StopOnClientError trips a graceful shutdown the first time a Sample
	// carries a client-side (transport) error.
	StopOnClientError bool
	// StopOnNon2xx trips a graceful shutdown the first time a Sample
	// carries a non-2xx HTTP status.
	StopOnNon2xx bool
	// ShutdownGrace bounds how long in-flight Workers are given to finish
	// once dispatch stops, before their requests are force-cancelled.
	ShutdownGrace time.Duration
	// BurstLimiter, if set, gates how fast worker slots are handed out: a
	// token bucket sized to smooth clumped wakeups (several instants ready
	// in the same scheduler tick) without altering the Plan's intended
	// steady-state rate, which the Signaller already paces independently.
	BurstLimiter *rate.Limiter
}

// Coordinator owns a fixed pool of Workers and dispatches signals to
// whichever is next free.
type Coordinator struct {
	workers []*worker.Worker
	cfg     Config
	logger  log.Logger
}

// New returns a Coordinator over the given Workers.
func New(workers []*worker.Worker, cfg Config, logger log.Logger) *Coordinator {
	if logger == nil {
		logger = log.Nop
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 5 * time.Second
	}
	return &Coordinator{workers: workers, cfg: cfg, logger: logger}
}

// Run consumes signals until the channel closes or ctx is cancelled,
// handing each to a free Worker in seq order, and returns once every
// dispatched Worker has finished (within the shutdown grace window).
//
// A non-nil error distinguishes why Run stopped: a trip policy firing
// returns a *errs.Error carrying the triggering Kind; external cancellation
// returns ctx.Err() wrapped as errs.Cancelled.
func (c *Coordinator) Run(ctx context.Context, signals <-chan signal.Signal) error {
	// runCtx governs in-flight requests. It is deliberately not tied
	// directly to ctx: per the shutdown contract, a trip or external
	// cancellation stops new dispatch immediately but gives in-flight
	// Workers a grace window to finish before being force-cancelled.
	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	slots := make(chan *worker.Worker, len(c.workers))
	for _, w := range c.workers {
		slots <- w
	}

	// g fans each dispatched Worker out into its own goroutine and fans the
	// outcomes back in: the first non-nil error any Worker returns cancels
	// gctx, which the dispatch loop polls to stop accepting new signals.
	g, gctx := errgroup.WithContext(ctx)

	dispatchErr := c.dispatch(ctx, gctx, signals, slots, runCtx, g)
	if dispatchErr == nil {
		dispatchErr = ctx.Err()
	}

	done := make(chan struct{})
	var tripErr error
	go func() {
		tripErr = g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(c.cfg.ShutdownGrace):
		runCancel()
		<-done
	}

	if tripErr != nil {
		c.logger.Warnf("coordinator: %v", tripErr)
		return tripErr
	}
	if dispatchErr != nil {
		return errs.Wrap(errs.Cancelled, dispatchErr, "coordinator stopped accepting signals")
	}
	return nil
}

func (c *Coordinator) dispatch(
	ctx context.Context,
	gctx context.Context,
	signals <-chan signal.Signal,
	slots chan *worker.Worker,
	runCtx context.Context,
	g *errgroup.Group,
) error {
	for {
		select {
		case <-gctx.Done():
			return nil
		default:
		}
		select {
		case sig, ok := <-signals:
			if !ok {
				return nil
			}
			var w *worker.Worker
			select {
			case w = <-slots:
			case <-ctx.Done():
				return ctx.Err()
			}
			if c.cfg.BurstLimiter != nil {
				if err := c.cfg.BurstLimiter.Wait(ctx); err != nil {
					slots <- w
					return ctx.Err()
				}
			}
			g.Go(func() error {
				defer func() { slots <- w }()
				sample := w.Handle(runCtx, sig)
				return c.checkTrip(sample)
			})
		case <-gctx.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Coordinator) checkTrip(sample telemetry.Sample) error {
	if c.cfg.StopOnClientError && sample.Status.IsClientError() {
		return errs.New(errs.TargetError, fmt.Sprintf("stop-on-client-error: seq %d (%s)", sample.Seq, sample.Status.ClientError))
	}
	if c.cfg.StopOnNon2xx && !sample.Status.IsClientError() && !sample.Status.IsSuccess() {
		return errs.New(errs.ProtocolError, fmt.Sprintf("stop-on-non-2xx: seq %d (status %d)", sample.Seq, sample.Status.Code))
	}
	return nil
}
