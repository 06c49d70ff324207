// Package bench defines the contract between the rlt harness and a workload.
//
// A workload implements [Suite] for its own worker state type S. The harness
// calls [Suite.State] once per worker and then [Suite.Bench] repeatedly on that
// worker's state until a stop condition fires:
//
//	type httpBench struct{ url string }
//
//	func (b *httpBench) State(ctx context.Context, workerID uint32) (*http.Client, error) {
//		return &http.Client{}, nil
//	}
//
//	func (b *httpBench) Bench(ctx context.Context, c *http.Client, info bench.IterInfo) (bench.IterReport, error) {
//		start := time.Now()
//		resp, err := c.Get(b.url)
//		if err != nil {
//			return bench.IterReport{}, err
//		}
//		defer resp.Body.Close()
//		n, _ := io.Copy(io.Discard, resp.Body)
//		return bench.IterReport{
//			Duration: time.Since(start),
//			Status:   bench.StatusFromHTTP(resp.StatusCode),
//			Bytes:    uint64(n),
//			Items:    1,
//		}, nil
//	}
//
// State is owned by exactly one worker goroutine, so it needs no locking.
// Bench is called concurrently from different workers, each with its own state.
package bench

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrStateUnusable marks an iteration error after which the worker state can no
// longer be used. The iteration is still reported as failed, then the worker exits.
var ErrStateUnusable = errors.New("worker state unusable")

// Suite is the capability contract a workload satisfies.
type Suite[S any] interface {
	// State builds the per-worker state. An error excludes the worker from the run.
	State(ctx context.Context, workerID uint32) (S, error)
	// Bench runs a single iteration against the worker's state.
	Bench(ctx context.Context, state S, info IterInfo) (IterReport, error)
}

// Teardown is optionally implemented by a Suite to release worker state when the
// worker exits.
type Teardown[S any] interface {
	Teardown(ctx context.Context, state S, info IterInfo) error
}

// IterInfo is the read-only context of one iteration.
type IterInfo struct {
	WorkerID  uint32        // index of the worker, 0-based
	WorkerSeq uint64        // iteration number within the worker, strictly increasing from 0
	RunnerSeq uint64        // iteration number across all workers, in claim order
	Elapsed   time.Duration // time since the run started
}

// IterReport is the result of one iteration.
type IterReport struct {
	Duration time.Duration
	Status   Status
	Bytes    uint64
	Items    uint64
}

// Normalize returns a copy with Items raised to at least one.
func (r IterReport) Normalize() IterReport {
	if r.Items == 0 {
		r.Items = 1
	}
	if r.Duration < 0 {
		r.Duration = 0
	}
	return r
}

// FailedReport builds the report recorded for an iteration that returned err.
func FailedReport(elapsed time.Duration) IterReport {
	return IterReport{
		Duration: elapsed,
		Status:   StatusError(-1),
		Items:    1,
	}
}

// Unusable wraps err so the harness retires the worker after recording it.
func Unusable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrStateUnusable, err)
}
