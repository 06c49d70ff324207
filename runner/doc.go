// Package runner provides the load test execution engine for rlt.
//
// The runner package orchestrates a [bench.Suite] across a fixed pool of workers:
//   - Configurable concurrency with optional staggered ramp-up
//   - Duration, iteration budget and load-plan termination (first one wins)
//   - Rate limiting, shared across workers or per worker
//   - Multiple arrival models (uniform, Poisson)
//   - Dynamic load patterns (ramp, step, spike)
//   - Warmup excluded from statistics and a bounded drain on stop
//
// # Basic Usage
//
//	r := runner.New[*http.Client](runner.Options{
//		Concurrency: 10,
//		Duration:    time.Minute,
//		Rate:        100,
//	}, mySuite)
//	summary, err := r.Run(ctx)
//
// [Runner.Stop] may be called from any goroutine, including before Run, and
// [Runner.Snapshot] returns live statistics while the run is in progress.
//
// # Lifecycle
//
// A run moves through [PhaseIdle], [PhaseRunning], optionally [PhaseCancelled],
// [PhaseDraining] and [PhaseFinished]. Stopping never interrupts an iteration:
// workers check for the stop signal between iterations, and in-flight iterations
// keep a context that is only cancelled once [Options.GracePeriod] expires.
//
// # Rate Limiting & Arrival Models
//
//   - [ArrivalModelUniform]: permits at fixed intervals from a token bucket of size one,
//     so time lost to slow iterations is never made up with a burst
//   - [ArrivalModelPoisson]: exponentially distributed gaps around the target rate
//
// # Error Handling
//
// Iteration errors are data: they are recorded and the run goes on. A Bench
// error wrapping [bench.ErrStateUnusable], or a panic, retires the worker.
// Invalid options yield a [*ConfigError] before anything starts, and a run in
// which no worker is left yields a [*FatalError] together with the partial summary.
package runner
