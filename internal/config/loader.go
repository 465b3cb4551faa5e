package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and an optional config file to
// produce a Config, layering flag defaults, then the config file, then
// explicit flag overrides.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	configPath := flagSet.Lookup("config").Value.String()
	if len(args) == 0 && configPath == "" {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}

	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	settings := cfgViper.AllSettings()

	cfg := &Config{
		Headers:     map[string]string{},
		Timeout:     30 * time.Second,
		Connections: 1,
		Signaller:   SignallerBlocking,
		Controller:  ControllerOpenLoop,
		LogLevel:    LogInfo,
		ConfigFile:  configPath,
		SLO: SLOConfig{
			Quantile:       0.999,
			MinSuccessRate: 0.995,
			Window:         10 * time.Second,
			Epsilon:        0.05,
			MaxRounds:      20,
		},
	}

	if err := applyConfigSettings(cfg, settings); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}
	cfg.Method = strings.ToUpper(strings.TrimSpace(cfg.Method))
	if cfg.Method == "" {
		if strings.TrimSpace(cfg.Payload) != "" || strings.TrimSpace(cfg.PayloadFile) != "" {
			cfg.Method = "POST"
		} else {
			cfg.Method = "GET"
		}
	}

	return cfg, nil
}

// applyConfigSettings applies settings decoded from a YAML config file to
// the Config struct. Instead of viper.Unmarshal's reflection-based decode,
// each known key is looked up and coerced explicitly, so a value of the
// wrong type is reported as an error. Keys that match no field are ignored
// without an error.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "rate"); ok {
		v, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("rate: %w", err)
		}
		cfg.Rates = v
	}
	if raw, ok := lookupSetting(settings, "duration"); ok {
		v, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("duration: %w", err)
		}
		cfg.Durations = v
	}
	if raw, ok := lookupSetting(settings, "target"); ok {
		v, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("target: %w", err)
		}
		cfg.Targets = v
	}
	if raw, ok := lookupSetting(settings, "http_method", "method"); ok {
		v, err := asString(raw)
		if err != nil {
			return fmt.Errorf("http_method: %w", err)
		}
		cfg.Method = v
	}
	if raw, ok := lookupSetting(settings, "payload"); ok {
		v, err := asString(raw)
		if err != nil {
			return fmt.Errorf("payload: %w", err)
		}
		cfg.Payload = v
	}
	if raw, ok := lookupSetting(settings, "payload_file"); ok {
		v, err := asString(raw)
		if err != nil {
			return fmt.Errorf("payload_file: %w", err)
		}
		cfg.PayloadFile = v
	}
	if raw, ok := lookupSetting(settings, "header", "headers"); ok {
		v, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("header: %w", err)
		}
		cfg.Headers = v
	}
	if raw, ok := lookupSetting(settings, "worker_threads"); ok {
		v, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("worker_threads: %w", err)
		}
		cfg.WorkerThreads = v
	}
	if raw, ok := lookupSetting(settings, "single_threaded"); ok {
		v, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("single_threaded: %w", err)
		}
		cfg.SingleThreaded = v
	}
	if raw, ok := lookupSetting(settings, "connections"); ok {
		v, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("connections: %w", err)
		}
		cfg.Connections = v
	}
	if raw, ok := lookupSetting(settings, "signaller"); ok {
		v, err := asString(raw)
		if err != nil {
			return fmt.Errorf("signaller: %w", err)
		}
		cfg.Signaller = SignallerStrategy(v)
	}
	if raw, ok := lookupSetting(settings, "no_latency_correction"); ok {
		v, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("no_latency_correction: %w", err)
		}
		cfg.NoLatencyCorrection = v
	}
	if raw, ok := lookupSetting(settings, "timeout"); ok {
		v, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		cfg.Timeout = v
	}
	if raw, ok := lookupSetting(settings, "shutdown_grace"); ok {
		v, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("shutdown_grace: %w", err)
		}
		cfg.ShutdownGrace = v
	}
	if raw, ok := lookupSetting(settings, "stop_on_client_error"); ok {
		v, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("stop_on_client_error: %w", err)
		}
		cfg.StopOnClientError = v
	}
	if raw, ok := lookupSetting(settings, "stop_on_non2xx"); ok {
		v, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("stop_on_non2xx: %w", err)
		}
		cfg.StopOnNon2xx = v
	}
	if raw, ok := lookupSetting(settings, "controller"); ok {
		v, err := asString(raw)
		if err != nil {
			return fmt.Errorf("controller: %w", err)
		}
		cfg.Controller = ControllerMode(v)
	}
	if raw, ok := lookupSetting(settings, "slo"); ok {
		m, ok := raw.(map[string]interface{})
		if !ok {
			return fmt.Errorf("slo: expected a map, got %T", raw)
		}
		if err := applySLOSettings(&cfg.SLO, m); err != nil {
			return err
		}
	}
	if raw, ok := lookupSetting(settings, "log_level"); ok {
		v, err := asString(raw)
		if err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
		cfg.LogLevel = LogLevel(v)
	}
	if raw, ok := lookupSetting(settings, "json_output"); ok {
		v, err := asString(raw)
		if err != nil {
			return fmt.Errorf("json_output: %w", err)
		}
		cfg.JSONOutput = v
	}
	if raw, ok := lookupSetting(settings, "html_output"); ok {
		v, err := asString(raw)
		if err != nil {
			return fmt.Errorf("html_output: %w", err)
		}
		cfg.HTMLOutput = v
	}
	if raw, ok := lookupSetting(settings, "dashboard"); ok {
		v, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
		cfg.Dashboard = v
	}
	if raw, ok := lookupSetting(settings, "run_tag"); ok {
		v, err := asString(raw)
		if err != nil {
			return fmt.Errorf("run_tag: %w", err)
		}
		cfg.RunTag = v
	}
	if raw, ok := lookupSetting(settings, "otlp_endpoint"); ok {
		v, err := asString(raw)
		if err != nil {
			return fmt.Errorf("otlp_endpoint: %w", err)
		}
		cfg.OTLPEndpoint = v
	}

	return nil
}

func applySLOSettings(slo *SLOConfig, settings map[string]interface{}) error {
	if raw, ok := lookupSetting(settings, "quantile"); ok {
		v, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("slo.quantile: %w", err)
		}
		slo.Quantile = v
	}
	if raw, ok := lookupSetting(settings, "threshold"); ok {
		v, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("slo.threshold: %w", err)
		}
		slo.Threshold = v
	}
	if raw, ok := lookupSetting(settings, "min_success_rate"); ok {
		v, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("slo.min_success_rate: %w", err)
		}
		slo.MinSuccessRate = v
	}
	if raw, ok := lookupSetting(settings, "rate_min"); ok {
		v, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("slo.rate_min: %w", err)
		}
		slo.RateMin = v
	}
	if raw, ok := lookupSetting(settings, "rate_max"); ok {
		v, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("slo.rate_max: %w", err)
		}
		slo.RateMax = v
	}
	if raw, ok := lookupSetting(settings, "window"); ok {
		v, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("slo.window: %w", err)
		}
		slo.Window = v
	}
	if raw, ok := lookupSetting(settings, "epsilon"); ok {
		v, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("slo.epsilon: %w", err)
		}
		slo.Epsilon = v
	}
	if raw, ok := lookupSetting(settings, "max_rounds"); ok {
		v, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("slo.max_rounds: %w", err)
		}
		slo.MaxRounds = v
	}
	return nil
}
