// Package engine wires the Plan, Signaller, Coordinator, Workers,
// Telemetry Sink, and Controller into a runnable test: Plan feeds a
// Signaller, which drives a Coordinator dispatching to Workers, which
// publish Samples to a Sink; in SLO-search mode a Controller reads the
// Sink's reports back into the next round's Plan.
package engine

import (
	"context"
	"errors"
	"io"
	"net/http"
	"runtime"
	"time"

	"golang.org/x/time/rate"

	"github.com/ashlineldridge/metron/internal/config"
	"github.com/ashlineldridge/metron/internal/controller"
	"github.com/ashlineldridge/metron/internal/coordinator"
	"github.com/ashlineldridge/metron/internal/dashboard"
	"github.com/ashlineldridge/metron/internal/errs"
	"github.com/ashlineldridge/metron/internal/httpclient"
	"github.com/ashlineldridge/metron/internal/log"
	"github.com/ashlineldridge/metron/internal/plan"
	"github.com/ashlineldridge/metron/internal/pool"
	"github.com/ashlineldridge/metron/internal/report"
	"github.com/ashlineldridge/metron/internal/signal"
	"github.com/ashlineldridge/metron/internal/telemetry"
	"github.com/ashlineldridge/metron/internal/tracing"
	"github.com/ashlineldridge/metron/internal/worker"
)

// burstSlotsPerWorker bounds how many worker slots the Coordinator's
// BurstLimiter will hand out in a single scheduler tick, per worker: high
// enough that it never throttles the Plan's intended steady-state rate,
// just the clumped wakeups that land many instants in the same tick.
const burstSlotsPerWorker = 20

// signalChanFactor sets the signal channel's capacity as a small multiple
// of the worker count.
const signalChanFactor = 4

// sinkCapacity bounds the telemetry channel, sized for burst tolerance
// rather than steady-state throughput.
const sinkCapacity = 4096

// telemetryDropAfter is how long a Worker's Publish call waits for a full
// Sink before counting a drop.
const telemetryDropAfter = 50 * time.Millisecond

// Result is what a run produces: the final aggregate report, the SLO
// search's verdict (zero value in open-loop mode), and the Sink's retained
// samples. The report writer renders Report and SLOResult only.
type Result struct {
	Report    telemetry.SegmentReport
	Samples   []telemetry.Sample
	Skipped   uint64
	Overrun   uint64
	SLOResult controller.Result
	HadSLO    bool
}

// Engine runs a single Metron test end to end.
type Engine struct {
	cfg    *config.Config
	logger log.Logger

	progressInterval time.Duration
	progressWriter   io.Writer

	dashboardEnabled  bool
	dashboardInterval time.Duration
	dashboardCancel   func()
}

// New returns an Engine for the given resolved configuration.
func New(cfg *config.Config, logger log.Logger) *Engine {
	if logger == nil {
		logger = log.Nop
	}
	return &Engine{cfg: cfg, logger: logger}
}

// EnableProgress makes Run print a live cumulative-totals line to w at the
// given interval for the duration of the test.
func (e *Engine) EnableProgress(interval time.Duration, w io.Writer) {
	e.progressInterval = interval
	e.progressWriter = w
}

// EnableDashboard makes Run display a live Bubble Tea TUI instead of the
// plain progress line. cancel is invoked if the user quits the dashboard
// (q or ctrl+c) before the run would otherwise finish.
func (e *Engine) EnableDashboard(interval time.Duration, cancel func()) {
	e.dashboardEnabled = true
	e.dashboardInterval = interval
	e.dashboardCancel = cancel
}

// Run executes the configured mode (open-loop or SLO search) and returns
// once the run completes, is tripped by a stop-on policy, or ctx is
// cancelled.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	spec, err := httpclient.NewSpec(e.cfg)
	if err != nil {
		return Result{}, errs.Wrap(errs.ConfigError, err, "build request spec")
	}

	client := httpclient.NewClient(e.cfg.Timeout, e.cfg.Connections)
	sink := telemetry.NewSink(sinkCapacity, true, e.logger)

	sinkCtx, sinkCancel := context.WithCancel(context.Background())
	defer sinkCancel()
	go sink.Run(sinkCtx)

	if e.dashboardEnabled {
		dash := dashboard.New(sink, dashboard.Config{
			Targets:    e.cfg.Targets,
			Controller: e.cfg.Controller,
			Workers:    e.workerCount(),
			RunTag:     e.cfg.RunTag,
		}, e.dashboardInterval, e.dashboardCancel)
		dash.Start()
		defer dash.Stop()
	} else if e.progressWriter != nil {
		progress := report.NewProgressReporter(sink, e.progressInterval, e.progressWriter)
		progress.Start()
		defer progress.Stop()
	}

	tracer, err := tracing.Init(ctx, e.cfg.OTLPEndpoint)
	if err != nil {
		return Result{}, errs.Wrap(errs.LocalResourceError, err, "initialize tracing")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracer.Shutdown(shutdownCtx)
	}()

	numWorkers := e.workerCount()
	workers := e.buildWorkers(numWorkers, client, spec, sink, tracer)
	coordCfg := coordinator.Config{
		StopOnClientError: e.cfg.StopOnClientError,
		StopOnNon2xx:      e.cfg.StopOnNon2xx,
		ShutdownGrace:     e.cfg.ShutdownGrace,
		BurstLimiter:      rate.NewLimiter(rate.Limit(numWorkers*burstSlotsPerWorker), numWorkers),
	}

	var runErr error
	var sloResult controller.Result
	var skipped, overrun uint64
	hadSLO := e.cfg.Controller == config.ControllerSLOSearch

	if hadSLO {
		sloResult, skipped, overrun, runErr = e.runSLOSearch(ctx, workers, coordCfg, sink)
	} else {
		skipped, overrun, runErr = e.runOpenLoop(ctx, workers, coordCfg, sink)
	}

	sink.Close()
	<-sink.Drained()
	report, samples := sink.FinalReport()

	result := Result{Report: report, Samples: samples, Skipped: skipped, Overrun: overrun, SLOResult: sloResult, HadSLO: hadSLO}
	return result, runErr
}

func (e *Engine) runOpenLoop(ctx context.Context, workers []*worker.Worker, coordCfg coordinator.Config, sink *telemetry.Sink) (skipped, overrun uint64, err error) {
	segments, err := config.ParseSegments(e.cfg.Rates, e.cfg.Durations)
	if err != nil {
		return 0, 0, errs.Wrap(errs.ConfigError, err, "parse plan segments")
	}
	p, err := plan.New(segments)
	if err != nil {
		return 0, 0, errs.Wrap(errs.ConfigError, err, "build plan")
	}

	coord := coordinator.New(workers, coordCfg, e.logger)
	return e.runPlanOnce(ctx, coord, sink, p, 0, len(workers))
}

func (e *Engine) runSLOSearch(ctx context.Context, workers []*worker.Worker, coordCfg coordinator.Config, sink *telemetry.Sink) (controller.Result, uint64, uint64, error) {
	ctrl := controller.New(e.cfg.SLO, e.cfg.NoLatencyCorrection, e.logger)
	coord := coordinator.New(workers, coordCfg, e.logger)

	var seqBase, totalSkipped, totalOverrun uint64
	for !ctrl.Done() {
		if ctx.Err() != nil {
			return controller.Result{}, totalSkipped, totalOverrun, errs.Wrap(errs.Cancelled, ctx.Err(), "slo search cancelled")
		}

		curRate := ctrl.CurrentRate()
		p, err := plan.New([]plan.Segment{{Kind: plan.Fixed, FromRPS: curRate, Duration: e.cfg.SLO.Window}})
		if err != nil {
			return controller.Result{}, totalSkipped, totalOverrun, errs.Wrap(errs.ControllerError, err, "build round plan")
		}

		e.logger.Infof("slo-search: round %d at %.1f rps for %s", ctrl.Round(), curRate, e.cfg.SLO.Window)
		skipped, overrun, err := e.runPlanOnce(ctx, coord, sink, p, seqBase, len(workers))
		totalSkipped += skipped
		totalOverrun += overrun
		if err != nil {
			return controller.Result{}, totalSkipped, totalOverrun, err
		}
		seqBase += mustTotalInstants(p)

		ctrl.Observe(sink.SegmentReport())
	}

	result := ctrl.Result()
	if !result.Found {
		return result, totalSkipped, totalOverrun, errs.New(errs.ControllerError, "slo search found no compliant rate at the minimum configured rate")
	}
	return result, totalSkipped, totalOverrun, nil
}

func mustTotalInstants(p *plan.Plan) uint64 {
	n, ok := p.TotalInstants()
	if !ok {
		return 0
	}
	return n
}

func (e *Engine) runPlanOnce(ctx context.Context, coord *coordinator.Coordinator, sink *telemetry.Sink, p *plan.Plan, seqBase uint64, numWorkers int) (skipped, overrun uint64, err error) {
	strategy := signal.Cooperative
	if e.cfg.Signaller == config.SignallerBlocking {
		strategy = signal.Blocking
	}

	capacity := numWorkers * signalChanFactor
	sig := signal.New(p, strategy, time.Now(), seqBase, capacity)

	sigCtx, sigCancel := context.WithCancel(ctx)
	defer sigCancel()

	sigErrCh := make(chan error, 1)
	go func() { sigErrCh <- sig.Run(sigCtx) }()

	coordErr := coord.Run(ctx, sig.Out())
	sigCancel()
	sigErr := <-sigErrCh

	skipped, overrun = sig.Counters()
	sink.RecordSkipped(skipped)

	if coordErr != nil {
		return skipped, overrun, coordErr
	}
	if sigErr != nil && !errors.Is(sigErr, context.Canceled) {
		return skipped, overrun, errs.Wrap(errs.LocalResourceError, sigErr, "signaller failed")
	}
	return skipped, overrun, nil
}

func (e *Engine) buildWorkers(n int, client *http.Client, spec *httpclient.Spec, sink *telemetry.Sink, tracer *tracing.Provider) []*worker.Worker {
	workers := make([]*worker.Worker, n)
	for i := range workers {
		// Each Worker gets its own slot pool: --connections is per Worker.
		slots := pool.New(maxInt(e.cfg.Connections, 1))
		workers[i] = worker.New(i, client, spec, slots, sink, telemetryDropAfter, e.logger, tracer.Tracer())
	}
	return workers
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (e *Engine) workerCount() int {
	if e.cfg.SingleThreaded {
		return 1
	}
	if e.cfg.WorkerThreads > 0 {
		return e.cfg.WorkerThreads
	}
	return runtime.NumCPU()
}
