package runner_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"golang.org/x/time/rate"

	"github.com/0x-wen/rlt/bench"
	"github.com/0x-wen/rlt/metrics"
	"github.com/0x-wen/rlt/runner"
)

// fakeSuite simulates a workload with fixed latency.
type fakeSuite struct {
	latency  time.Duration
	fail     func(info bench.IterInfo) error
	stateErr func(id uint32) error

	calls     atomic.Int64
	overlap   atomic.Bool
	disorder  atomic.Bool
	teardowns atomic.Int64
}

type fakeState struct {
	busy    atomic.Bool
	lastSeq int64
}

func (f *fakeSuite) State(ctx context.Context, id uint32) (*fakeState, error) {
	if f.stateErr != nil {
		if err := f.stateErr(id); err != nil {
			return nil, err
		}
	}
	return &fakeState{lastSeq: -1}, nil
}

func (f *fakeSuite) Bench(ctx context.Context, s *fakeState, info bench.IterInfo) (bench.IterReport, error) {
	f.calls.Add(1)
	if !s.busy.CompareAndSwap(false, true) {
		f.overlap.Store(true)
	}
	defer s.busy.Store(false)
	if int64(info.WorkerSeq) != s.lastSeq+1 {
		f.disorder.Store(true)
	}
	s.lastSeq = int64(info.WorkerSeq)

	start := time.Now()
	if f.latency > 0 {
		timer := time.NewTimer(f.latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return bench.IterReport{}, ctx.Err()
		}
	}
	if f.fail != nil {
		if err := f.fail(info); err != nil {
			return bench.IterReport{}, err
		}
	}
	return bench.IterReport{
		Duration: time.Since(start),
		Status:   bench.StatusFromHTTP(200),
		Bytes:    10,
	}, nil
}

func (f *fakeSuite) Teardown(ctx context.Context, s *fakeState, info bench.IterInfo) error {
	f.teardowns.Add(1)
	return nil
}

func TestRunnerDurationScenario(t *testing.T) {
	suite := &fakeSuite{latency: 10 * time.Millisecond}
	r := runner.New[*fakeState](runner.Options{
		Concurrency: 4,
		Duration:    time.Second,
	}, suite)

	start := time.Now()
	s, err := r.Run(context.Background())
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed < time.Second || elapsed > 1500*time.Millisecond {
		t.Fatalf("duration enforcement off: %s", elapsed)
	}
	// At most 100 sequential 10ms iterations per worker fit in a second.
	if s.Iterations < 200 || s.Iterations > 408 {
		t.Fatalf("expected roughly 400 iterations, got %d", s.Iterations)
	}
	if s.Errors != 0 || s.ErrorRate != 0 {
		t.Fatalf("expected no errors, got %d (%f)", s.Errors, s.ErrorRate)
	}
	if s.Latency.Mean < 10*time.Millisecond {
		t.Fatalf("mean latency %s below workload latency", s.Latency.Mean)
	}
	if s.Bytes != s.Iterations*10 {
		t.Fatalf("expected %d bytes, got %d", s.Iterations*10, s.Bytes)
	}
	if suite.overlap.Load() {
		t.Fatal("iterations overlapped within a worker")
	}
	if r.Phase() != runner.PhaseFinished {
		t.Fatalf("expected finished phase, got %s", r.Phase())
	}
}

func TestRunnerAlternatingFailures(t *testing.T) {
	suite := &fakeSuite{
		fail: func(info bench.IterInfo) error {
			if info.RunnerSeq%2 == 1 {
				return errors.New("odd iteration")
			}
			return nil
		},
	}
	r := runner.New[*fakeState](runner.Options{Concurrency: 3, Iterations: 100}, suite)
	s, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("iteration errors must not abort the run: %v", err)
	}
	if s.Iterations != 100 {
		t.Fatalf("expected 100 iterations, got %d", s.Iterations)
	}
	if s.Errors != 50 || s.ErrorRate != 0.5 {
		t.Fatalf("expected 50 errors at rate 0.5, got %d at %f", s.Errors, s.ErrorRate)
	}
	if s.ErrorKinds["odd iteration"] != 50 {
		t.Fatalf("unexpected error kinds: %v", s.ErrorKinds)
	}
}

func TestRunnerAllWorkersFailStartup(t *testing.T) {
	suite := &fakeSuite{stateErr: func(uint32) error { return errors.New("dial failed") }}
	r := runner.New[*fakeState](runner.Options{Concurrency: 4, Duration: 10 * time.Second}, suite)

	start := time.Now()
	s, err := r.Run(context.Background())
	if time.Since(start) > 2*time.Second {
		t.Fatal("run did not end once every worker failed")
	}
	if !errors.Is(err, runner.ErrAllWorkersFailed) {
		t.Fatalf("expected ErrAllWorkersFailed, got %v", err)
	}
	if !runner.IsFatal(err) {
		t.Fatalf("expected a fatal error, got %T", err)
	}
	if s.Iterations != 0 {
		t.Fatalf("expected zero iterations, got %d", s.Iterations)
	}
	if s.StartupFailures() != 4 {
		t.Fatalf("expected 4 startup failures, got %d", s.StartupFailures())
	}
	if suite.calls.Load() != 0 {
		t.Fatal("bench must not run without state")
	}
}

func TestRunnerPartialStartupFailure(t *testing.T) {
	suite := &fakeSuite{stateErr: func(id uint32) error {
		if id == 0 {
			return errors.New("dial failed")
		}
		return nil
	}}
	r := runner.New[*fakeState](runner.Options{Concurrency: 3, Iterations: 30}, suite)
	s, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Iterations != 30 {
		t.Fatalf("expected 30 iterations, got %d", s.Iterations)
	}
	if s.Workers[0].Iterations != 0 || !s.Workers[0].Faulted {
		t.Fatalf("failed worker must not iterate: %+v", s.Workers[0])
	}
	if s.StartupFailures() != 1 {
		t.Fatalf("expected 1 startup failure, got %d", s.StartupFailures())
	}
}

func TestRunnerSingleWorkerIsSequential(t *testing.T) {
	var seen []bench.IterInfo
	var mu sync.Mutex
	suite := &fakeSuite{fail: func(info bench.IterInfo) error {
		mu.Lock()
		seen = append(seen, info)
		mu.Unlock()
		return nil
	}}
	r := runner.New[*fakeState](runner.Options{Concurrency: 1, Iterations: 20}, suite)
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seen) != 20 {
		t.Fatalf("expected 20 iterations, got %d", len(seen))
	}
	for i, info := range seen {
		if info.WorkerSeq != uint64(i) || info.RunnerSeq != uint64(i) {
			t.Fatalf("iteration %d has seq %d/%d", i, info.WorkerSeq, info.RunnerSeq)
		}
		if i > 0 && info.Elapsed < seen[i-1].Elapsed {
			t.Fatalf("elapsed went backwards at %d", i)
		}
	}
	if suite.disorder.Load() {
		t.Fatal("worker sequence numbers out of order")
	}
}

func TestRunnerStopBoundsInflight(t *testing.T) {
	suite := &fakeSuite{latency: 50 * time.Millisecond}
	r := runner.New[*fakeState](runner.Options{Concurrency: 4, Duration: time.Minute}, suite)

	go func() {
		time.Sleep(120 * time.Millisecond)
		r.Stop()
		r.Stop()
	}()

	start := time.Now()
	s, err := r.Run(context.Background())
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("cancellation is not an error: %v", err)
	}
	// Stop at 120ms plus at most one 50ms iteration per worker.
	if elapsed > 400*time.Millisecond {
		t.Fatalf("drain took too long: %s", elapsed)
	}
	if !s.Cancelled {
		t.Fatal("expected summary to be marked cancelled")
	}
	if s.Iterations != suite.calls.Load() {
		t.Fatalf("every started iteration must be recorded: %d vs %d", s.Iterations, suite.calls.Load())
	}
	if s.Errors != 0 {
		t.Fatalf("in-flight iterations should complete normally, got %d errors", s.Errors)
	}
}

func TestRunnerContextCancel(t *testing.T) {
	suite := &fakeSuite{latency: 20 * time.Millisecond}
	r := runner.New[*fakeState](runner.Options{Concurrency: 2, Duration: time.Minute}, suite)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	s, err := r.Run(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > 300*time.Millisecond {
		t.Fatalf("context cancellation not honoured: %s", time.Since(start))
	}
	if !s.Cancelled || s.Iterations == 0 {
		t.Fatalf("expected a cancelled run with iterations, got %+v", s)
	}
	// In-flight iterations finish on their own context.
	if s.Errors != 0 {
		t.Fatalf("expected no errors, got %d", s.Errors)
	}
}

func TestRunnerDeadlineBeforeNextPermit(t *testing.T) {
	suite := &fakeSuite{}
	r := runner.New[*fakeState](runner.Options{Concurrency: 2, Iterations: 100, Rate: 0.5}, suite)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	start := time.Now()
	s, err := r.Run(ctx)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("deadline should cancel the run, got %v", err)
	}
	if elapsed < 250*time.Millisecond {
		t.Fatalf("run returned before the deadline: %s", elapsed)
	}
	if !s.Cancelled {
		t.Fatal("expected cancelled summary")
	}
	if s.Iterations != 1 {
		t.Fatalf("expected only the first permit to be used, got %d iterations", s.Iterations)
	}
}

func TestRunnerStopBeforeRun(t *testing.T) {
	suite := &fakeSuite{}
	r := runner.New[*fakeState](runner.Options{Concurrency: 2, Duration: time.Minute}, suite)
	r.Stop()

	start := time.Now()
	s, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("pre-stopped run did not return promptly")
	}
	if !s.Cancelled {
		t.Fatal("expected cancelled summary")
	}
}

func TestRateLimiterCapsThroughput(t *testing.T) {
	suite := &fakeSuite{}
	r := runner.New[*fakeState](runner.Options{
		Concurrency: 8,
		Duration:    time.Second,
		Rate:        100,
	}, suite)
	s, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Iterations < 85 || s.Iterations > 110 {
		t.Fatalf("expected about 100 iterations at 100/s, got %d", s.Iterations)
	}
	if s.IterationsPerSec < 80 || s.IterationsPerSec > 115 {
		t.Fatalf("unexpected throughput %f", s.IterationsPerSec)
	}
}

func TestPerWorkerRateScope(t *testing.T) {
	suite := &fakeSuite{}
	r := runner.New[*fakeState](runner.Options{
		Concurrency: 3,
		Duration:    time.Second,
		Rate:        20,
		RateScope:   runner.RateScopePerWorker,
	}, suite)
	s, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Iterations < 45 || s.Iterations > 66 {
		t.Fatalf("expected about 60 iterations, got %d", s.Iterations)
	}
	for _, w := range s.Workers {
		if w.Iterations < 15 || w.Iterations > 22 {
			t.Fatalf("worker %d ran %d iterations, want about 20", w.ID, w.Iterations)
		}
	}
}

func TestInjectedLimiterFactory(t *testing.T) {
	var built atomic.Int32
	suite := &fakeSuite{}
	r := runner.New[*fakeState](runner.Options{
		Concurrency: 2,
		Iterations:  5,
		Rate:        1000,
		LimiterFactory: func(rps float64) *rate.Limiter {
			built.Add(1)
			return rate.NewLimiter(rate.Limit(rps), 1)
		},
	}, suite)
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if built.Load() != 1 {
		t.Fatalf("expected one shared limiter, got %d", built.Load())
	}
}

func TestRunnerBudgetIsExact(t *testing.T) {
	tests := []struct {
		name string
		opts runner.Options
	}{
		{"unthrottled", runner.Options{Concurrency: 8, Iterations: 137}},
		{"throttled", runner.Options{Concurrency: 4, Iterations: 20, Rate: 200}},
		{"poisson", runner.Options{Concurrency: 4, Iterations: 20, Rate: 500, Arrival: runner.ArrivalModelPoisson, RandomSeed: 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			suite := &fakeSuite{latency: time.Millisecond}
			r := runner.New[*fakeState](tt.opts, suite)
			s, err := r.Run(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			want := int64(tt.opts.Iterations)
			if s.Iterations != want || suite.calls.Load() != want {
				t.Fatalf("expected exactly %d iterations, recorded %d, ran %d", want, s.Iterations, suite.calls.Load())
			}
		})
	}
}

func TestRunnerWorkerTotals(t *testing.T) {
	suite := &fakeSuite{latency: 2 * time.Millisecond}
	r := runner.New[*fakeState](runner.Options{Concurrency: 5, Duration: 300 * time.Millisecond}, suite)
	s, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Workers) != 5 {
		t.Fatalf("expected 5 worker rows, got %d", len(s.Workers))
	}
	var sum int64
	for _, w := range s.Workers {
		sum += w.Iterations
		if w.Busy > s.Duration+50*time.Millisecond {
			t.Fatalf("worker %d busy %s exceeds run duration %s", w.ID, w.Busy, s.Duration)
		}
	}
	if sum != s.Iterations {
		t.Fatalf("per-worker sum %d != total %d", sum, s.Iterations)
	}
	if suite.teardowns.Load() != 5 {
		t.Fatalf("expected 5 teardowns, got %d", suite.teardowns.Load())
	}
}

// inflatedSuite reports far more time than its iterations take.
type inflatedSuite struct{}

func (inflatedSuite) State(ctx context.Context, id uint32) (struct{}, error) { return struct{}{}, nil }

func (inflatedSuite) Bench(ctx context.Context, _ struct{}, info bench.IterInfo) (bench.IterReport, error) {
	return bench.IterReport{Duration: time.Hour, Status: bench.StatusOK()}, nil
}

func TestRunnerClampsReportedDuration(t *testing.T) {
	start := time.Now()
	r := runner.New[struct{}](runner.Options{Concurrency: 1, Iterations: 5}, inflatedSuite{})
	s, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wall := time.Since(start)
	if s.Latency.Max > wall {
		t.Fatalf("max latency %s exceeds wall time %s", s.Latency.Max, wall)
	}
	if len(s.Workers) != 1 || s.Workers[0].Busy > wall {
		t.Fatalf("worker busy time exceeds wall time %s: %+v", wall, s.Workers)
	}
}

func TestRunnerGracePeriodCancelsInflight(t *testing.T) {
	suite := &fakeSuite{latency: 10 * time.Second}
	r := runner.New[*fakeState](runner.Options{
		Concurrency: 2,
		Duration:    50 * time.Millisecond,
		GracePeriod: 50 * time.Millisecond,
	}, suite)

	start := time.Now()
	s, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("grace period not enforced: %s", time.Since(start))
	}
	if s.Iterations != 2 || s.Errors != 2 {
		t.Fatalf("expected 2 cancelled iterations, got %d (%d errors)", s.Iterations, s.Errors)
	}
	if s.ErrorKinds["Context canceled"] != 2 {
		t.Fatalf("unexpected error kinds: %v", s.ErrorKinds)
	}
}

func TestRunnerNegativeGraceCancelsImmediately(t *testing.T) {
	suite := &fakeSuite{latency: 10 * time.Second}
	r := runner.New[*fakeState](runner.Options{
		Concurrency: 1,
		Duration:    50 * time.Millisecond,
		GracePeriod: -1,
	}, suite)
	start := time.Now()
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("in-flight iteration not cancelled: %s", time.Since(start))
	}
}

func TestRunnerUnusableStateRetiresWorkers(t *testing.T) {
	suite := &fakeSuite{fail: func(info bench.IterInfo) error {
		return bench.Unusable(errors.New("connection reset"))
	}}
	r := runner.New[*fakeState](runner.Options{Concurrency: 3, Duration: 10 * time.Second}, suite)

	start := time.Now()
	s, err := r.Run(context.Background())
	if time.Since(start) > 2*time.Second {
		t.Fatal("run did not end once every worker retired")
	}
	if !errors.Is(err, runner.ErrNoActiveWorkers) {
		t.Fatalf("expected ErrNoActiveWorkers, got %v", err)
	}
	if s.Iterations != 3 || s.Errors != 3 {
		t.Fatalf("expected each worker to record its failed iteration, got %d/%d", s.Iterations, s.Errors)
	}
	if len(s.WorkerFaults) != 3 {
		t.Fatalf("expected 3 worker faults, got %+v", s.WorkerFaults)
	}
	for _, f := range s.WorkerFaults {
		if f.Stage != metrics.StageIteration {
			t.Fatalf("unexpected fault stage %q", f.Stage)
		}
	}
}

func TestRunnerRecoversPanics(t *testing.T) {
	suite := &fakeSuite{latency: time.Millisecond, fail: func(info bench.IterInfo) error {
		if info.WorkerID == 1 {
			panic("boom")
		}
		return nil
	}}
	r := runner.New[*fakeState](runner.Options{Concurrency: 2, Iterations: 40}, suite)
	s, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("a single panicking worker must not abort the run: %v", err)
	}
	if s.Iterations != 40 {
		t.Fatalf("expected 40 iterations, got %d", s.Iterations)
	}
	if s.Errors != 1 || s.ErrorKinds["Workload panic"] != 1 {
		t.Fatalf("expected one recorded panic, got %d errors %v", s.Errors, s.ErrorKinds)
	}
	if !s.Workers[1].Faulted {
		t.Fatal("panicking worker should be marked faulted")
	}
}

func TestRunnerWarmupExcluded(t *testing.T) {
	suite := &fakeSuite{latency: 10 * time.Millisecond}
	r := runner.New[*fakeState](runner.Options{
		Concurrency: 1,
		Duration:    400 * time.Millisecond,
		Warmup:      200 * time.Millisecond,
	}, suite)
	s, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Iterations >= suite.calls.Load() {
		t.Fatalf("warmup iterations were recorded: %d of %d", s.Iterations, suite.calls.Load())
	}
	if s.Iterations > 21 {
		t.Fatalf("expected at most ~20 measured iterations, got %d", s.Iterations)
	}
	if s.Duration > 300*time.Millisecond {
		t.Fatalf("measured window should exclude warmup, got %s", s.Duration)
	}
}

func TestRunnerRampUpStaggersWorkers(t *testing.T) {
	var mu sync.Mutex
	first := map[uint32]time.Duration{}
	suite := &fakeSuite{fail: func(info bench.IterInfo) error {
		mu.Lock()
		if _, ok := first[info.WorkerID]; !ok {
			first[info.WorkerID] = info.Elapsed
		}
		mu.Unlock()
		return nil
	}, latency: time.Millisecond}
	r := runner.New[*fakeState](runner.Options{
		Concurrency: 4,
		Duration:    400 * time.Millisecond,
		RampUp:      200 * time.Millisecond,
	}, suite)
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first[0] > 50*time.Millisecond {
		t.Fatalf("worker 0 should start at once, started at %s", first[0])
	}
	if first[3] < 150*time.Millisecond {
		t.Fatalf("worker 3 should start after 150ms, started at %s", first[3])
	}
}

func TestRunnerLoadPatternEndsRun(t *testing.T) {
	suite := &fakeSuite{}
	r := runner.New[*fakeState](runner.Options{
		Concurrency: 2,
		LoadPatterns: []runner.LoadPattern{
			{Type: runner.LoadPatternTypeSpike, RPS: 50, Duration: 300 * time.Millisecond},
		},
	}, suite)
	start := time.Now()
	s, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if took := time.Since(start); took < 290*time.Millisecond || took > time.Second {
		t.Fatalf("run took %s, want it to stop when the 300ms plan ends", took)
	}
	if s.Iterations == 0 || s.Iterations > 25 {
		t.Fatalf("expected about 15 iterations, got %d", s.Iterations)
	}
}

func TestRunnerSnapshotDuringRun(t *testing.T) {
	suite := &fakeSuite{latency: time.Millisecond}
	r := runner.New[*fakeState](runner.Options{Concurrency: 4, Duration: 300 * time.Millisecond}, suite)
	if s := r.Snapshot(); s.Iterations != 0 || s.RunID != r.RunID() {
		t.Fatalf("unexpected snapshot before run: %+v", s)
	}

	done := make(chan struct{})
	var last atomic.Int64
	go func() {
		for {
			select {
			case <-done:
				return
			default:
				snap := r.Snapshot()
				if snap.Iterations < last.Load() {
					t.Errorf("snapshot went backwards: %d < %d", snap.Iterations, last.Load())
				}
				last.Store(snap.Iterations)
				time.Sleep(5 * time.Millisecond)
			}
		}
	}()
	s, err := r.Run(context.Background())
	close(done)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Iterations < last.Load() {
		t.Fatalf("final %d behind snapshot %d", s.Iterations, last.Load())
	}
	if after := r.Snapshot(); after.Iterations != s.Iterations {
		t.Fatalf("snapshot after finish %d != final %d", after.Iterations, s.Iterations)
	}
}

func TestRunnerInvalidOptions(t *testing.T) {
	r := runner.New[*fakeState](runner.Options{Concurrency: 0}, &fakeSuite{})
	_, err := r.Run(context.Background())
	var cfgErr *runner.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigError, got %v", err)
	}
	if len(cfgErr.Issues()) != 2 {
		t.Fatalf("expected 2 issues, got %v", cfgErr.Issues())
	}
	if r.Phase() != runner.PhaseIdle {
		t.Fatalf("invalid run must not start, phase %s", r.Phase())
	}
}

func TestRunnerRunTwice(t *testing.T) {
	r := runner.New[*fakeState](runner.Options{Concurrency: 1, Iterations: 1}, &fakeSuite{})
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.Run(context.Background()); !errors.Is(err, runner.ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestRunnerEmitsIterationSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	suite := &fakeSuite{}
	r := runner.New[*fakeState](runner.Options{
		Concurrency: 2,
		Iterations:  6,
		Tracer:      tp.Tracer("test"),
	}, suite)
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	spans := exporter.GetSpans()
	if len(spans) != 6 {
		t.Fatalf("expected 6 spans, got %d", len(spans))
	}
	if spans[0].Name != "rlt.iteration" {
		t.Fatalf("unexpected span name %q", spans[0].Name)
	}
	for _, span := range spans {
		found := false
		for _, attr := range span.Attributes {
			if attr.Key == "rlt.run_id" {
				found = attr.Value.AsString() == r.RunID()
			}
		}
		if !found {
			t.Fatalf("span %s lacks rlt.run_id %s", span.SpanContext.SpanID(), r.RunID())
		}
	}
}

type recordingLogger struct {
	mu   sync.Mutex
	errs []error
}

func (l *recordingLogger) LogFailure(err error) {
	l.mu.Lock()
	l.errs = append(l.errs, err)
	l.mu.Unlock()
}

func TestRunnerLogsFailures(t *testing.T) {
	logger := &recordingLogger{}
	suite := &fakeSuite{fail: func(info bench.IterInfo) error {
		if info.RunnerSeq < 3 {
			return errors.New("bad response")
		}
		return nil
	}}
	r := runner.New[*fakeState](runner.Options{Concurrency: 1, Iterations: 10, FailureLogger: logger}, suite)
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(logger.errs) != 3 {
		t.Fatalf("expected 3 logged failures, got %d", len(logger.errs))
	}
	var werr *runner.WorkerError
	if !errors.As(logger.errs[0], &werr) || werr.Stage != metrics.StageIteration {
		t.Fatalf("expected a WorkerError for the iteration stage, got %v", logger.errs[0])
	}
}
