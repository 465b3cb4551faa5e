package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "metron",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Plan flags (open-loop mode)
	flags.StringSlice("rate", nil, "Target rate per segment: n (fixed) or n:m (ramp); repeatable/comma-separated")
	flags.StringSlice("duration", nil, "Duration per segment, parallel to --rate; 'forever' on the last fixed segment")

	// Request spec flags
	flags.StringSlice("target", nil, "Target URL (repeatable); round-robin assigned by sequence number")
	flags.String("http-method", "", "HTTP method; defaults to GET, or POST if a payload is set")
	flags.String("payload", "", "Inline request payload")
	flags.String("payload-file", "", "Path to file containing the request payload")
	flags.StringSlice("header", nil, "Request header in K:V form (repeatable)")

	// Concurrency & pacing flags
	flags.Int("worker-threads", 0, "Number of worker threads (0 = core count); mutually exclusive with --single-threaded")
	flags.Bool("single-threaded", false, "Run the Coordinator and Workers on a single thread")
	flags.Int("connections", 1, "HTTP/1.1 connections per Worker")
	flags.String("signaller", string(SignallerBlocking), "Signaller strategy: blocking or cooperative")
	flags.Bool("no-latency-correction", false, "Report actual latency instead of scheduling-corrected latency")
	flags.Duration("timeout", 30*time.Second, "Per-request timeout")
	flags.Duration("shutdown-grace", 5*time.Second, "Time to let in-flight requests finish after the Plan ends or is cancelled")

	// Policy flags
	flags.Bool("stop-on-client-error", false, "Stop the run on the first client error")
	flags.Bool("stop-on-non2xx", false, "Stop the run on the first non-2xx response")

	// Controller flags
	flags.String("controller", string(ControllerOpenLoop), "Controller mode: open-loop or slo-search")
	flags.Float64("slo-quantile", 0.999, "Latency quantile the SLO search holds to")
	flags.Duration("slo-threshold", 0, "Maximum allowed latency at --slo-quantile")
	flags.Float64("slo-min-success-rate", 0.995, "Minimum fraction of 2xx responses per round for it to be compliant")
	flags.Float64("slo-rate-min", 0, "Lower bound of the SLO search's rate range")
	flags.Float64("slo-rate-max", 0, "Upper bound of the SLO search's rate range")
	flags.Duration("slo-window", 10*time.Second, "Observation window per SLO search round")
	flags.Float64("slo-epsilon", 0.05, "SLO search bisection stop ratio (r_hi-r_lo)/r_lo")
	flags.Int("slo-max-rounds", 20, "Maximum number of SLO search rounds")

	// Output flags
	flags.String("log-level", string(LogInfo), "Log level: off, info, debug, warn, error")
	flags.String("json-output", "", "Write a JSON report to the given file path")
	flags.String("html-output", "", "Write an HTML report to the given file path")
	flags.Bool("dashboard", false, "Show a live terminal dashboard")
	flags.String("run-tag", "", "Freeform tag stamped on the telemetry stream and report")
	flags.String("otlp-endpoint", "", "gRPC endpoint to export telemetry spans to via OTLP (disabled if empty)")
	flags.String("config", "", "Path to a YAML configuration file")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config,
// overriding values already populated from a config file. Only flags the
// user actually set on the command line are applied.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("rate") {
		v, err := fs.GetStringSlice("rate")
		if err != nil {
			return err
		}
		cfg.Rates = v
	}
	if fs.Changed("duration") {
		v, err := fs.GetStringSlice("duration")
		if err != nil {
			return err
		}
		cfg.Durations = v
	}
	if fs.Changed("target") {
		v, err := fs.GetStringSlice("target")
		if err != nil {
			return err
		}
		cfg.Targets = v
	}
	if fs.Changed("http-method") {
		v, err := fs.GetString("http-method")
		if err != nil {
			return err
		}
		cfg.Method = strings.ToUpper(v)
	}
	if fs.Changed("payload") {
		v, err := fs.GetString("payload")
		if err != nil {
			return err
		}
		cfg.Payload = v
	}
	if fs.Changed("payload-file") {
		v, err := fs.GetString("payload-file")
		if err != nil {
			return err
		}
		cfg.PayloadFile = v
	}
	if fs.Changed("header") {
		v, err := fs.GetStringSlice("header")
		if err != nil {
			return err
		}
		headers, err := ParseHeaders(v)
		if err != nil {
			return err
		}
		cfg.Headers = headers
	}
	if fs.Changed("worker-threads") {
		v, err := fs.GetInt("worker-threads")
		if err != nil {
			return err
		}
		cfg.WorkerThreads = v
	}
	if fs.Changed("single-threaded") {
		v, err := fs.GetBool("single-threaded")
		if err != nil {
			return err
		}
		cfg.SingleThreaded = v
	}
	if fs.Changed("connections") {
		v, err := fs.GetInt("connections")
		if err != nil {
			return err
		}
		cfg.Connections = v
	}
	if fs.Changed("signaller") {
		v, err := fs.GetString("signaller")
		if err != nil {
			return err
		}
		cfg.Signaller = SignallerStrategy(v)
	}
	if fs.Changed("no-latency-correction") {
		v, err := fs.GetBool("no-latency-correction")
		if err != nil {
			return err
		}
		cfg.NoLatencyCorrection = v
	}
	if fs.Changed("timeout") {
		v, err := fs.GetDuration("timeout")
		if err != nil {
			return err
		}
		cfg.Timeout = v
	}
	if fs.Changed("shutdown-grace") {
		v, err := fs.GetDuration("shutdown-grace")
		if err != nil {
			return err
		}
		cfg.ShutdownGrace = v
	}
	if fs.Changed("stop-on-client-error") {
		v, err := fs.GetBool("stop-on-client-error")
		if err != nil {
			return err
		}
		cfg.StopOnClientError = v
	}
	if fs.Changed("stop-on-non2xx") {
		v, err := fs.GetBool("stop-on-non2xx")
		if err != nil {
			return err
		}
		cfg.StopOnNon2xx = v
	}
	if fs.Changed("controller") {
		v, err := fs.GetString("controller")
		if err != nil {
			return err
		}
		cfg.Controller = ControllerMode(v)
	}
	if fs.Changed("slo-quantile") {
		v, err := fs.GetFloat64("slo-quantile")
		if err != nil {
			return err
		}
		cfg.SLO.Quantile = v
	}
	if fs.Changed("slo-threshold") {
		v, err := fs.GetDuration("slo-threshold")
		if err != nil {
			return err
		}
		cfg.SLO.Threshold = v
	}
	if fs.Changed("slo-min-success-rate") {
		v, err := fs.GetFloat64("slo-min-success-rate")
		if err != nil {
			return err
		}
		cfg.SLO.MinSuccessRate = v
	}
	if fs.Changed("slo-rate-min") {
		v, err := fs.GetFloat64("slo-rate-min")
		if err != nil {
			return err
		}
		cfg.SLO.RateMin = v
	}
	if fs.Changed("slo-rate-max") {
		v, err := fs.GetFloat64("slo-rate-max")
		if err != nil {
			return err
		}
		cfg.SLO.RateMax = v
	}
	if fs.Changed("slo-window") {
		v, err := fs.GetDuration("slo-window")
		if err != nil {
			return err
		}
		cfg.SLO.Window = v
	}
	if fs.Changed("slo-epsilon") {
		v, err := fs.GetFloat64("slo-epsilon")
		if err != nil {
			return err
		}
		cfg.SLO.Epsilon = v
	}
	if fs.Changed("slo-max-rounds") {
		v, err := fs.GetInt("slo-max-rounds")
		if err != nil {
			return err
		}
		cfg.SLO.MaxRounds = v
	}
	if fs.Changed("log-level") {
		v, err := fs.GetString("log-level")
		if err != nil {
			return err
		}
		cfg.LogLevel = LogLevel(v)
	}
	if fs.Changed("json-output") {
		v, err := fs.GetString("json-output")
		if err != nil {
			return err
		}
		cfg.JSONOutput = v
	}
	if fs.Changed("html-output") {
		v, err := fs.GetString("html-output")
		if err != nil {
			return err
		}
		cfg.HTMLOutput = v
	}
	if fs.Changed("dashboard") {
		v, err := fs.GetBool("dashboard")
		if err != nil {
			return err
		}
		cfg.Dashboard = v
	}
	if fs.Changed("run-tag") {
		v, err := fs.GetString("run-tag")
		if err != nil {
			return err
		}
		cfg.RunTag = v
	}
	if fs.Changed("otlp-endpoint") {
		v, err := fs.GetString("otlp-endpoint")
		if err != nil {
			return err
		}
		cfg.OTLPEndpoint = v
	}
	return nil
}
