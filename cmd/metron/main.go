package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/mattn/go-isatty"
	"github.com/oklog/ulid/v2"

	"github.com/ashlineldridge/metron/internal/config"
	"github.com/ashlineldridge/metron/internal/engine"
	"github.com/ashlineldridge/metron/internal/errs"
	"github.com/ashlineldridge/metron/internal/log"
	"github.com/ashlineldridge/metron/internal/report"
)

const progressInterval = time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(errs.ExitCode(err))
	}
}

func run(args []string) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return errs.Wrap(errs.ConfigError, err, "validate configuration")
	}

	level, err := log.ParseLevel(string(cfg.LogLevel))
	if err != nil {
		return errs.Wrap(errs.ConfigError, err, "parse log level")
	}
	logger := log.New(level)

	runID := ulid.Make()
	logger.Infof("run %s starting: %d target(s), controller=%s", runID, len(cfg.Targets), cfg.Controller)

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	eng := engine.New(cfg, logger)
	if cfg.Dashboard {
		if isatty.IsTerminal(os.Stdout.Fd()) {
			eng.EnableDashboard(progressInterval, cancel)
		} else {
			// Non-interactive terminal (piped output, CI log): the TUI would
			// just emit garbled escape codes, fall back to a plain line.
			eng.EnableProgress(progressInterval, os.Stdout)
			defer fmt.Fprintln(os.Stdout)
		}
	}

	result, runErr := eng.Run(ctx)
	if runErr != nil {
		switch errs.KindOf(runErr) {
		case errs.ControllerError, errs.Cancelled:
			// A search that found no compliant rate, or a run cancelled by
			// SIGINT/SIGTERM (the only way to end --duration=forever), still
			// produced a drained report worth printing before returning the
			// error for the exit code.
		default:
			return runErr
		}
	}

	res := report.Result{
		Report:              result.Report,
		SLOResult:           result.SLOResult,
		HadSLO:              result.HadSLO,
		RunTag:              cfg.RunTag,
		NoLatencyCorrection: cfg.NoLatencyCorrection,
	}

	if cfg.JSONOutput != "" {
		if err := writeLocked(cfg.JSONOutput, func(w *os.File) error {
			return report.WriteJSON(w, res)
		}); err != nil {
			return errs.Wrap(errs.LocalResourceError, err, "write JSON report")
		}
	} else {
		report.WriteText(os.Stdout, res)
	}

	if cfg.HTMLOutput != "" {
		if err := writeLocked(cfg.HTMLOutput, func(w *os.File) error {
			return report.GenerateHTML(w, res)
		}); err != nil {
			return errs.Wrap(errs.LocalResourceError, err, "write HTML report")
		}
		fmt.Fprintf(os.Stderr, "\nHTML report written to %s\n", cfg.HTMLOutput)
	}

	return runErr
}

// writeLocked creates path and writes to it under an exclusive file lock,
// so two concurrent Metron runs targeting the same report path don't
// interleave their output.
func writeLocked(path string, write func(*os.File) error) error {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("acquire lock for %s: %w", path, err)
	}
	defer lock.Unlock()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	return write(f)
}
