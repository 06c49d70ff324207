package runner

import (
	"context"
	"errors"
	"time"

	"github.com/0x-wen/rlt/bench"
	"github.com/0x-wen/rlt/internal/tracing"
	"github.com/0x-wen/rlt/metrics"
)

type worker[S any] struct {
	id      uint32
	runner  *Runner[S]
	rate    rateController
	halt    context.Context // done once the run stops handing out iterations
	iterCtx context.Context // done only when the grace period expires
}

// run is the worker loop. It returns false if the worker state could not be built.
func (w *worker[S]) run() bool {
	r := w.runner
	if !w.rampUp() {
		return true
	}

	state, err := w.buildState()
	if err != nil {
		r.agg.RecordFault(w.id, metrics.StageStartup, err)
		r.logFailure(&WorkerError{WorkerID: w.id, Stage: metrics.StageStartup, Err: err})
		return false
	}

	var seq uint64
	defer func() { w.teardown(state, seq) }()

	for w.halt.Err() == nil {
		slot, ok := r.claim()
		if !ok {
			return true
		}
		if err := w.rate.Acquire(w.halt); err != nil {
			return true
		}

		info := bench.IterInfo{
			WorkerID:  w.id,
			WorkerSeq: seq,
			RunnerSeq: slot,
			Elapsed:   r.elapsed(time.Now()),
		}
		began := time.Now()
		report, fatal, err := w.iterate(state, info)
		seq++

		if r.recording(began) {
			r.agg.Record(w.id, report, err)
		}
		r.complete()

		if err != nil {
			r.logFailure(&WorkerError{WorkerID: w.id, Stage: metrics.StageIteration, Err: err})
		}
		if fatal {
			r.agg.RecordFault(w.id, metrics.StageIteration, err)
			return true
		}
	}
	return true
}

// rampUp staggers worker start. It returns false if the run stopped first.
func (w *worker[S]) rampUp() bool {
	r := w.runner
	if r.opt.RampUp <= 0 || w.id == 0 {
		return true
	}
	delay := time.Duration(int64(r.opt.RampUp) * int64(w.id) / int64(r.opt.Concurrency))
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-w.halt.Done():
		return false
	}
}

func (w *worker[S]) buildState() (state S, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &PanicError{Value: p}
		}
	}()
	return w.runner.suite.State(w.iterCtx, w.id)
}

// iterate runs one Bench call. fatal reports that the worker state is no longer usable.
func (w *worker[S]) iterate(state S, info bench.IterInfo) (report bench.IterReport, fatal bool, err error) {
	ctx, span := tracing.StartIterationSpan(w.iterCtx, w.runner.opt.Tracer, w.runner.RunID(), info)
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			report, fatal, err = bench.FailedReport(time.Since(start)), true, &PanicError{Value: p}
		}
		tracing.EndIterationSpan(span, report, err)
	}()

	report, err = w.runner.suite.Bench(ctx, state, info)
	took := time.Since(start)
	if err != nil {
		return bench.FailedReport(took), errors.Is(err, bench.ErrStateUnusable), err
	}
	// A report never claims more time than the call took.
	if report.Duration <= 0 || report.Duration > took {
		report.Duration = took
	}
	return report.Normalize(), false, nil
}

func (w *worker[S]) teardown(state S, seq uint64) {
	td, ok := w.runner.suite.(bench.Teardown[S])
	if !ok {
		return
	}
	r := w.runner
	var err error
	func() {
		defer func() {
			if p := recover(); p != nil {
				err = &PanicError{Value: p}
			}
		}()
		err = td.Teardown(w.iterCtx, state, bench.IterInfo{
			WorkerID:  w.id,
			WorkerSeq: seq,
			Elapsed:   r.elapsed(time.Now()),
		})
	}()
	if err != nil {
		r.agg.RecordFault(w.id, metrics.StageTeardown, err)
		r.logFailure(&WorkerError{WorkerID: w.id, Stage: metrics.StageTeardown, Err: err})
	}
}
