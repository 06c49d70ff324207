package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/0x-wen/rlt/bench"
	"github.com/0x-wen/rlt/internal/config"
	"github.com/0x-wen/rlt/internal/dashboard"
	"github.com/0x-wen/rlt/internal/output"
	"github.com/0x-wen/rlt/internal/threshold"
	"github.com/0x-wen/rlt/internal/tracing"
	"github.com/0x-wen/rlt/metrics"
	"github.com/0x-wen/rlt/runner"
)

// ErrThresholdsFailed is returned by Run when at least one threshold fails.
var ErrThresholdsFailed = errors.New("thresholds failed")

const tracingShutdownTimeout = 5 * time.Second

// Env carries what Run needs beyond the configuration.
type Env struct {
	Workload string    // shown on the dashboard and recorded in the history file
	Stdout   io.Writer // report destination, defaults to os.Stdout
	Stderr   io.Writer // progress and failure log destination, defaults to os.Stderr
}

func (e Env) stdout() io.Writer {
	if e.Stdout == nil {
		return os.Stdout
	}
	return e.Stdout
}

func (e Env) stderr() io.Writer {
	if e.Stderr == nil {
		return os.Stderr
	}
	return e.Stderr
}

// RegisterFlags registers the harness flags on cmd.
func RegisterFlags(cmd *cobra.Command) {
	config.RegisterFlags(cmd)
}

// LoadConfig reads the harness configuration from cmd's parsed flags and the
// optional config file, and validates it.
func LoadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RunnerOptions maps a configuration onto runner options.
func RunnerOptions(cfg *config.Config) runner.Options {
	opts := runner.Options{
		Concurrency:  cfg.Concurrency,
		Duration:     cfg.Duration,
		Rate:         cfg.Rate,
		RateScope:    toRunnerRateScope(cfg.RateScope),
		Arrival:      toRunnerArrivalModel(cfg.Arrival.Model),
		LoadPatterns: toRunnerLoadPatterns(cfg.LoadPatterns),
		RampUp:       cfg.RampUp,
		Warmup:       cfg.Warmup,
		GracePeriod:  cfg.GracefulShutdown,
	}
	if cfg.Iterations > 0 {
		opts.Iterations = uint64(cfg.Iterations)
	}
	return opts
}

// Run executes suite under cfg and reports the outcome. The summary is printed
// even when the run ends with a fatal error.
func Run[S any](ctx context.Context, cfg *config.Config, suite bench.Suite[S], env Env) error {
	if ctx == nil {
		ctx = context.Background()
	}
	stdout, stderr := env.stdout(), env.stderr()

	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	provider, err := tracing.Init(ctx, cfg.Tracing, env.Workload)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), tracingShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(stderr, "[rlt] tracing shutdown: %v\n", err)
		}
	}()

	opts := RunnerOptions(cfg)
	if provider.Enabled() {
		opts.Tracer = provider.Tracer()
	}
	if cfg.LogErrors {
		opts.FailureLogger = NewFailureLogger(stderr)
	}

	r := runner.New(opts, suite)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	stopLive, err := startLiveView(cfg, env, r.Snapshot, r.Stop)
	if err != nil {
		return err
	}
	runSpan := tracing.StartRunSpan(ctx, opts.Tracer, r.RunID(), env.Workload)
	summary, runErr := r.Run(ctx)
	stopLive()
	tracing.EndRunSpan(runSpan, summary, runErr)

	results := threshold.NewEvaluator(thresholds).Evaluate(summary)

	if err := printReport(stdout, cfg.Output, summary, results); err != nil {
		return err
	}
	if cfg.HistoryFile != "" && cfg.Output == config.OutputText {
		prev, ok, err := output.PreviousRun(cfg.HistoryFile, env.Workload)
		switch {
		case err != nil:
			fmt.Fprintf(stderr, "[rlt] history: %v\n", err)
		case ok:
			output.PrintComparison(stdout, prev, summary)
		}
	}

	if cfg.HistoryFile != "" {
		entry := output.HistoryEntry{
			Timestamp:  time.Now().UTC(),
			Workload:   env.Workload,
			Passed:     runErr == nil && threshold.AllPassed(results),
			Summary:    summary,
			Thresholds: results,
		}
		if err := output.AppendHistory(cfg.HistoryFile, entry); err != nil {
			fmt.Fprintf(stderr, "[rlt] history: %v\n", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	if !threshold.AllPassed(results) {
		failed := 0
		for _, res := range results {
			if !res.Pass {
				failed++
			}
		}
		return fmt.Errorf("%w: %d of %d", ErrThresholdsFailed, failed, len(results))
	}
	return nil
}

func startLiveView(cfg *config.Config, env Env, snapshot func() metrics.Summary, stop func()) (func(), error) {
	if cfg.Dashboard {
		dash, err := dashboard.New(snapshot, dashboard.RunInfo{
			Workload:    env.Workload,
			Concurrency: cfg.Concurrency,
			Duration:    cfg.Duration,
			Iterations:  cfg.Iterations,
			Rate:        cfg.Rate,
			RateScope:   string(cfg.RateScope),
			Arrival:     string(cfg.Arrival.Model),
			Patterns:    len(cfg.LoadPatterns),
			ConfigFile:  cfg.ConfigFile,
		}, stop)
		if err != nil {
			return nil, err
		}
		dash.Start()
		return dash.Stop, nil
	}
	if cfg.Quiet {
		return func() {}, nil
	}
	progress := output.NewProgressReporter(snapshot, cfg.ProgressInterval, env.stderr())
	progress.Start()
	return progress.Stop, nil
}

func printReport(w io.Writer, format config.OutputFormat, summary metrics.Summary, results []threshold.Result) error {
	switch format {
	case config.OutputJSON:
		return output.PrintJSONReport(w, summary, results)
	case config.OutputYAML:
		return output.PrintYAMLReport(w, summary, results)
	default:
		output.PrintReport(w, summary, results)
		return nil
	}
}

func toRunnerRateScope(scope config.RateScope) runner.RateScope {
	if scope == config.RateScopePerWorker {
		return runner.RateScopePerWorker
	}
	return runner.RateScopeGlobal
}

func toRunnerArrivalModel(model config.ArrivalModel) runner.ArrivalModel {
	if model == config.ArrivalModelPoisson {
		return runner.ArrivalModelPoisson
	}
	return runner.ArrivalModelUniform
}

func toRunnerLoadPatterns(patterns []config.LoadPattern) []runner.LoadPattern {
	if len(patterns) == 0 {
		return nil
	}
	result := make([]runner.LoadPattern, len(patterns))
	for i, p := range patterns {
		result[i] = runner.LoadPattern{
			Name:     p.Name,
			Type:     runner.LoadPatternType(p.Type),
			FromRPS:  p.FromRPS,
			ToRPS:    p.ToRPS,
			Duration: p.Duration,
			Steps:    toRunnerLoadSteps(p.Steps),
			RPS:      p.RPS,
		}
	}
	return result
}

func toRunnerLoadSteps(steps []config.LoadStep) []runner.LoadStep {
	if len(steps) == 0 {
		return nil
	}
	result := make([]runner.LoadStep, len(steps))
	for i, s := range steps {
		result[i] = runner.LoadStep{
			RPS:      s.RPS,
			Duration: s.Duration,
		}
	}
	return result
}
