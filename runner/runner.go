package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/0x-wen/rlt/bench"
	"github.com/0x-wen/rlt/metrics"
)

// patternTick is how often a load plan re-targets the rate controllers.
const patternTick = 100 * time.Millisecond

// Runner drives a Suite: it owns the workers, the rate controllers and the
// aggregator of one run.
type Runner[S any] struct {
	opt   Options
	suite bench.Suite[S]
	plan  *loadPlan
	agg   *metrics.Aggregator

	phase    atomic.Int32
	stopOnce sync.Once
	stopCh   chan struct{}

	clock atomic.Pointer[runClock] // nil before Run

	claimed   atomic.Uint64
	completed atomic.Uint64
	budgetCh  chan struct{}
	budgetOne sync.Once
}

type runClock struct {
	start   time.Time
	measure time.Time // start of the recorded window, after warmup
}

// New builds a Runner. Options are validated when Run is called.
func New[S any](opt Options, suite bench.Suite[S]) *Runner[S] {
	opt.normalize()
	return &Runner[S]{
		opt:      opt,
		suite:    suite,
		plan:     compileLoadPlan(opt.LoadPatterns),
		agg:      metrics.NewAggregator(opt.Concurrency),
		stopCh:   make(chan struct{}),
		budgetCh: make(chan struct{}),
	}
}

// Phase reports where the run is in its lifecycle.
func (r *Runner[S]) Phase() Phase {
	return Phase(r.phase.Load())
}

// Stop requests cancellation. It is safe to call any number of times, before,
// during or after Run. In-flight iterations finish; no new ones start.
func (r *Runner[S]) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

func (r *Runner[S]) stopped() bool {
	select {
	case <-r.stopCh:
		return true
	default:
		return false
	}
}

// RunID identifies this run in every summary it produces.
func (r *Runner[S]) RunID() string {
	return r.agg.RunID()
}

// Snapshot returns live statistics. It is safe to call concurrently with Run.
func (r *Runner[S]) Snapshot() metrics.Summary {
	return r.agg.Snapshot(r.measured(time.Now()))
}

// Run executes the suite until a stop condition and returns the final summary.
// The summary is returned even when err is a *FatalError.
func (r *Runner[S]) Run(ctx context.Context) (metrics.Summary, error) {
	if r.suite == nil {
		return metrics.Summary{}, &ConfigError{issues: []string{"a suite is required"}}
	}
	if err := r.opt.validate(); err != nil {
		return metrics.Summary{}, err
	}
	if !r.phase.CompareAndSwap(int32(PhaseIdle), int32(PhaseRunning)) {
		return metrics.Summary{}, ErrAlreadyStarted
	}

	start := time.Now()
	r.clock.Store(&runClock{start: start, measure: start.Add(r.opt.Warmup)})

	// halt is the stop broadcast; iterCtx outlives it so in-flight iterations
	// only see cancellation when the grace period runs out.
	haltCtx, halt := context.WithCancel(ctx)
	defer halt()
	iterCtx, forceCancel := context.WithCancel(context.WithoutCancel(ctx))
	defer forceCancel()

	controllers := r.buildControllers()
	planDone := make(chan struct{})
	if r.plan != nil {
		go r.followLoadPlan(haltCtx, start, controllers, planDone)
	}

	var startupFailures atomic.Int64
	var wg sync.WaitGroup
	wg.Add(r.opt.Concurrency)
	for i := 0; i < r.opt.Concurrency; i++ {
		w := &worker[S]{
			id:      uint32(i),
			runner:  r,
			rate:    controllers[i%len(controllers)],
			halt:    haltCtx,
			iterCtx: iterCtx,
		}
		go func() {
			defer wg.Done()
			if !w.run() {
				startupFailures.Add(1)
			}
		}()
	}
	exited := make(chan struct{})
	go func() {
		wg.Wait()
		close(exited)
	}()

	var deadline <-chan time.Time
	if r.opt.Duration > 0 {
		timer := time.NewTimer(r.opt.Duration)
		defer timer.Stop()
		deadline = timer.C
	}

	cancelled, orphaned := false, false
	select {
	case <-deadline:
	case <-r.budgetCh:
	case <-planDone:
	case <-r.stopCh:
		cancelled = true
	case <-ctx.Done():
		cancelled = true
	case <-exited:
		switch {
		case ctx.Err() != nil || r.stopped():
			cancelled = true
		default:
			orphaned = !r.budgetReached()
		}
	}
	if cancelled {
		r.phase.Store(int32(PhaseCancelled))
	}
	r.phase.Store(int32(PhaseDraining))
	halt()
	r.drain(exited, forceCancel)

	summary := r.agg.Finalize(r.measured(time.Now()))
	summary.Cancelled = cancelled
	r.phase.Store(int32(PhaseFinished))

	switch {
	case startupFailures.Load() == int64(r.opt.Concurrency):
		return summary, &FatalError{Err: ErrAllWorkersFailed}
	case orphaned:
		return summary, &FatalError{Err: ErrNoActiveWorkers}
	}
	return summary, nil
}

func (r *Runner[S]) buildControllers() []rateController {
	if r.opt.RateScope == RateScopePerWorker {
		out := make([]rateController, r.opt.Concurrency)
		for i := range out {
			out[i] = newRateController(r.opt, i, r.plan)
		}
		return out
	}
	return []rateController{newRateController(r.opt, 0, r.plan)}
}

// drain waits for every worker to exit, bounded by the grace period.
func (r *Runner[S]) drain(exited <-chan struct{}, forceCancel context.CancelFunc) {
	grace := r.opt.GracePeriod
	switch {
	case grace < 0:
		forceCancel()
		<-exited
	case grace == 0:
		<-exited
	default:
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-exited:
		case <-timer.C:
			forceCancel()
			<-exited
		}
	}
}

// followLoadPlan re-targets the controllers every patternTick and closes done
// when the plan's last segment ends.
func (r *Runner[S]) followLoadPlan(ctx context.Context, start time.Time, ctrls []rateController, done chan<- struct{}) {
	defer close(done)

	end := time.NewTimer(r.plan.length() - time.Since(start))
	defer end.Stop()
	ticker := time.NewTicker(patternTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-end.C:
			return
		case <-ticker.C:
			if rps, ok := r.plan.rateAt(time.Since(start)); ok {
				for _, c := range ctrls {
					c.SetRate(rps)
				}
			}
		}
	}
}

// claim reserves the next slot of the iteration budget. It returns the slot's
// global sequence number and false once the budget is spent.
func (r *Runner[S]) claim() (uint64, bool) {
	n := r.claimed.Add(1)
	if r.opt.Iterations > 0 && n > r.opt.Iterations {
		return 0, false
	}
	return n - 1, true
}

// complete counts one executed iteration and signals when the budget is done.
func (r *Runner[S]) complete() {
	n := r.completed.Add(1)
	if r.opt.Iterations > 0 && n >= r.opt.Iterations {
		r.budgetOne.Do(func() { close(r.budgetCh) })
	}
}

func (r *Runner[S]) budgetReached() bool {
	return r.opt.Iterations > 0 && r.completed.Load() >= r.opt.Iterations
}

// measured returns the length of the recorded window up to now.
func (r *Runner[S]) measured(now time.Time) time.Duration {
	c := r.clock.Load()
	if c == nil {
		return 0
	}
	if d := now.Sub(c.measure); d > 0 {
		return d
	}
	return 0
}

func (r *Runner[S]) recording(began time.Time) bool {
	return !began.Before(r.clock.Load().measure)
}

func (r *Runner[S]) elapsed(now time.Time) time.Duration {
	return now.Sub(r.clock.Load().start)
}

func (r *Runner[S]) logFailure(err error) {
	if r.opt.FailureLogger != nil && err != nil {
		r.opt.FailureLogger.LogFailure(err)
	}
}

// IsFatal reports whether err aborted a run.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}
