// Package config defines Metron's configuration surface and the layered
// loader (flags and an optional config file) that produces it. Environment
// variables are not read.
package config

import (
	"fmt"
	"strings"
	"time"
)

// SignallerStrategy selects how the Signaller paces dispatch.
type SignallerStrategy string

const (
	SignallerBlocking    SignallerStrategy = "blocking"
	SignallerCooperative SignallerStrategy = "cooperative"
)

// ControllerMode selects whether the run follows a fixed Plan or searches
// for the maximum rate that holds an SLO.
type ControllerMode string

const (
	ControllerOpenLoop ControllerMode = "open-loop"
	ControllerSLOSearch ControllerMode = "slo-search"
)

// LogLevel mirrors the --log-level flag.
type LogLevel string

const (
	LogOff   LogLevel = "off"
	LogInfo  LogLevel = "info"
	LogDebug LogLevel = "debug"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// RateSegment is one comma-separated element of --rate paired with the
// corresponding element of --duration: either a fixed rate ("n") or a ramp
// ("n:m"), and either a fixed duration or "forever".
type RateSegment struct {
	FromRPS  float64
	ToRPS    float64
	IsRamp   bool
	Duration time.Duration
	Forever  bool
}

// SLOConfig configures the Controller's SLO-search mode.
type SLOConfig struct {
	Quantile       float64       `mapstructure:"quantile"`
	Threshold      time.Duration `mapstructure:"threshold"`
	MinSuccessRate float64       `mapstructure:"min_success_rate"`
	RateMin        float64       `mapstructure:"rate_min"`
	RateMax        float64       `mapstructure:"rate_max"`
	Window         time.Duration `mapstructure:"window"`
	Epsilon        float64       `mapstructure:"epsilon"`
	MaxRounds      int           `mapstructure:"max_rounds"`
}

// Config is the fully-resolved configuration for a Metron run, after flags
// and an optional config file have been merged by the Loader.
type Config struct {
	ConfigFile string `mapstructure:"-"`

	// Plan (open-loop mode only)
	Rates     []string      `mapstructure:"rate"`
	Durations []string      `mapstructure:"duration"`

	// Request spec
	Targets     []string          `mapstructure:"target"`
	Method      string            `mapstructure:"http_method"`
	Payload     string            `mapstructure:"payload"`
	PayloadFile string            `mapstructure:"payload_file"`
	Headers     map[string]string `mapstructure:"header"`

	// Concurrency & pacing
	WorkerThreads   int               `mapstructure:"worker_threads"`
	SingleThreaded  bool              `mapstructure:"single_threaded"`
	Connections     int               `mapstructure:"connections"`
	Signaller       SignallerStrategy `mapstructure:"signaller"`
	NoLatencyCorrection bool          `mapstructure:"no_latency_correction"`
	Timeout         time.Duration     `mapstructure:"timeout"`
	ShutdownGrace   time.Duration     `mapstructure:"shutdown_grace"`

	// Policy
	StopOnClientError bool `mapstructure:"stop_on_client_error"`
	StopOnNon2xx      bool `mapstructure:"stop_on_non2xx"`

	// Controller
	Controller ControllerMode `mapstructure:"controller"`
	SLO        SLOConfig      `mapstructure:"slo"`

	// Observability / output
	LogLevel    LogLevel `mapstructure:"log_level"`
	JSONOutput  string   `mapstructure:"json_output"`
	HTMLOutput  string   `mapstructure:"html_output"`
	Dashboard   bool     `mapstructure:"dashboard"`
	RunTag      string   `mapstructure:"run_tag"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
}

// ValidationError aggregates every configuration problem found by Validate,
// so the CLI can report them all at once instead of one at a time.
type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("invalid configuration: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

// Validate checks field-level invariants that don't require parsing (rate
// and duration string parsing, and the segments they produce, is validated
// by ParseSegments instead).
func (c Config) Validate() error {
	var issues []string

	if len(c.Targets) == 0 {
		issues = append(issues, "at least one --target is required")
	}

	if c.WorkerThreads > 0 && c.SingleThreaded {
		issues = append(issues, "--worker-threads and --single-threaded are mutually exclusive")
	}
	if c.SingleThreaded && c.Signaller == SignallerBlocking {
		issues = append(issues, "--single-threaded is incompatible with --signaller=blocking")
	}
	if c.Connections < 0 {
		issues = append(issues, "--connections must be >= 0")
	}
	if c.Signaller != "" && c.Signaller != SignallerBlocking && c.Signaller != SignallerCooperative {
		issues = append(issues, fmt.Sprintf("--signaller %q is not one of blocking, cooperative", c.Signaller))
	}
	if c.Timeout < 0 {
		issues = append(issues, "--timeout must be >= 0")
	}
	if c.ShutdownGrace < 0 {
		issues = append(issues, "--shutdown-grace must be >= 0")
	}
	if strings.TrimSpace(c.Payload) != "" && strings.TrimSpace(c.PayloadFile) != "" {
		issues = append(issues, "--payload and --payload-file are mutually exclusive")
	}

	switch c.LogLevel {
	case "", LogOff, LogInfo, LogDebug, LogWarn, LogError:
	default:
		issues = append(issues, fmt.Sprintf("--log-level %q is not one of off, info, debug, warn, error", c.LogLevel))
	}

	switch c.Method {
	case "", "GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS", "TRACE", "CONNECT":
	default:
		issues = append(issues, fmt.Sprintf("--http-method %q is not a supported method", c.Method))
	}

	switch c.Controller {
	case "", ControllerOpenLoop:
		if len(c.Rates) != len(c.Durations) {
			issues = append(issues, fmt.Sprintf("--rate and --duration must have the same number of segments (%d != %d)", len(c.Rates), len(c.Durations)))
		}
		if len(c.Rates) == 0 {
			issues = append(issues, "--rate is required in open-loop mode")
		}
	case ControllerSLOSearch:
		if c.SLO.RateMin <= 0 || c.SLO.RateMax <= c.SLO.RateMin {
			issues = append(issues, "--slo-rate-min must be > 0 and less than --slo-rate-max")
		}
		if c.SLO.Threshold <= 0 {
			issues = append(issues, "--slo-threshold must be > 0")
		}
		if c.SLO.Quantile <= 0 || c.SLO.Quantile >= 1 {
			issues = append(issues, "--slo-quantile must be in (0, 1)")
		}
		if c.SLO.Window <= 0 {
			issues = append(issues, "--slo-window must be > 0")
		}
	default:
		issues = append(issues, fmt.Sprintf("--controller %q is not one of open-loop, slo-search", c.Controller))
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}
