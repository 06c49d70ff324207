package config

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers the harness flags on a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// configureFlags sets up the harness flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Load control flags
	flags.IntP("concurrency", "c", 1, "Number of concurrent workers")
	flags.DurationP("duration", "d", 0, "How long to run the test (e.g. 30s, 1m)")
	flags.IntP("iterations", "n", 0, "Total number of iterations across all workers (0 means unlimited)")
	flags.Float64P("rate", "r", 0, "Iterations per second limit (0 means unlimited)")
	flags.String("rate-scope", string(RateScopeGlobal), "Apply the rate limit to all workers together (global) or to each worker (per-worker)")
	flags.String("arrival-model", string(ArrivalModelUniform), "Arrival model to use when pacing iterations (uniform or poisson)")
	flags.Duration("ramp-up", 0, "Spread worker start over this window")
	flags.Duration("warmup", 0, "Exclude iterations started within this window from statistics")
	flags.Duration("graceful-shutdown", 5*time.Second, "Max time to wait for in-flight iterations after the test ends (0 waits, negative cancels immediately)")

	// Output flags
	flags.StringP("output", "o", string(OutputText), "Report format: text, json or yaml")
	flags.Bool("dashboard", false, "Show live terminal dashboard with metrics")
	flags.BoolP("quiet", "q", false, "Suppress the progress line")
	flags.Duration("progress-interval", time.Second, "How often the progress line is refreshed")
	flags.Bool("log-errors", false, "Log each failed iteration to stderr")
	flags.String("history-file", "", "Append the run summary as a JSON line to this file")
	flags.String("config", "", "Path to configuration file (JSON, YAML or TOML)")

	// Threshold flags
	flags.StringSlice("threshold", nil, "Performance thresholds (repeatable, e.g., 'latency:p95 < 500')")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP endpoint for iteration spans (host:port)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Float64("tracing-sample-rate", 1.0, "Fraction of iterations to trace (0.0 to 1.0)")
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("concurrency") {
		val, err := fs.GetInt("concurrency")
		if err != nil {
			return err
		}
		cfg.Concurrency = val
	}
	if fs.Changed("duration") {
		val, err := fs.GetDuration("duration")
		if err != nil {
			return err
		}
		cfg.Duration = val
	}
	if fs.Changed("iterations") {
		val, err := fs.GetInt("iterations")
		if err != nil {
			return err
		}
		cfg.Iterations = val
	}
	if fs.Changed("rate") {
		val, err := fs.GetFloat64("rate")
		if err != nil {
			return err
		}
		cfg.Rate = val
	}
	if fs.Changed("rate-scope") {
		val, err := fs.GetString("rate-scope")
		if err != nil {
			return err
		}
		cfg.RateScope = RateScope(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("arrival-model") {
		val, err := fs.GetString("arrival-model")
		if err != nil {
			return err
		}
		cfg.Arrival.Model = ArrivalModel(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("ramp-up") {
		val, err := fs.GetDuration("ramp-up")
		if err != nil {
			return err
		}
		cfg.RampUp = val
	}
	if fs.Changed("warmup") {
		val, err := fs.GetDuration("warmup")
		if err != nil {
			return err
		}
		cfg.Warmup = val
	}
	if fs.Changed("graceful-shutdown") {
		val, err := fs.GetDuration("graceful-shutdown")
		if err != nil {
			return err
		}
		cfg.GracefulShutdown = val
	}
	if fs.Changed("output") {
		val, err := fs.GetString("output")
		if err != nil {
			return err
		}
		cfg.Output = OutputFormat(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("dashboard") {
		val, err := fs.GetBool("dashboard")
		if err != nil {
			return err
		}
		cfg.Dashboard = val
	}
	if fs.Changed("quiet") {
		val, err := fs.GetBool("quiet")
		if err != nil {
			return err
		}
		cfg.Quiet = val
	}
	if fs.Changed("progress-interval") {
		val, err := fs.GetDuration("progress-interval")
		if err != nil {
			return err
		}
		cfg.ProgressInterval = val
	}
	if fs.Changed("log-errors") {
		val, err := fs.GetBool("log-errors")
		if err != nil {
			return err
		}
		cfg.LogErrors = val
	}
	if fs.Changed("history-file") {
		val, err := fs.GetString("history-file")
		if err != nil {
			return err
		}
		cfg.HistoryFile = strings.TrimSpace(val)
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}
	if fs.Changed("tracing-endpoint") {
		val, err := fs.GetString("tracing-endpoint")
		if err != nil {
			return err
		}
		cfg.Tracing.Endpoint = strings.TrimSpace(val)
	}
	if fs.Changed("tracing-protocol") {
		val, err := fs.GetString("tracing-protocol")
		if err != nil {
			return err
		}
		cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	return nil
}
