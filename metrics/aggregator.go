package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/oklog/ulid/v2"

	"github.com/0x-wen/rlt/bench"
)

const (
	// Track latencies from 1µs up to 1h with 3 significant figures.
	histLowest  = 1
	histHighest = int64(time.Hour / time.Microsecond)
	histSigFigs = 3

	maxShards = 64
)

// Aggregator is a thread-safe sink for iteration reports.
type Aggregator struct {
	runID   string
	shards  []*shard
	workers []workerCounters

	faultsMu sync.Mutex
	faults   []WorkerFault

	finalOnce sync.Once
	final     Summary
}

type workerCounters struct {
	iterations atomic.Int64
	busy       atomic.Int64
	faulted    atomic.Bool
}

type shard struct {
	mu     sync.Mutex
	bucket *bucket
}

// bucket holds the counters of one shard. Callers hold the shard lock.
type bucket struct {
	hist       *hdrhistogram.Histogram
	iterations int64
	items      int64
	bytes      int64
	errors     int64
	sumLatency time.Duration
	minLatency time.Duration
	maxLatency time.Duration
	statuses   map[bench.Status]int64
	errorKinds map[string]int64
}

func newBucket() *bucket {
	return &bucket{
		hist:       hdrhistogram.New(histLowest, histHighest, histSigFigs),
		statuses:   make(map[bench.Status]int64),
		errorKinds: make(map[string]int64),
	}
}

func (b *bucket) record(report bench.IterReport, err error) {
	latency := report.Duration
	us := latency.Microseconds()
	if us < b.hist.LowestTrackableValue() {
		us = b.hist.LowestTrackableValue()
	}
	if us > b.hist.HighestTrackableValue() {
		us = b.hist.HighestTrackableValue()
	}
	_ = b.hist.RecordValue(us)

	if b.iterations == 0 || latency < b.minLatency {
		b.minLatency = latency
	}
	b.iterations++
	b.items += int64(report.Items)
	b.bytes += int64(report.Bytes)
	b.sumLatency += latency
	if latency > b.maxLatency {
		b.maxLatency = latency
	}
	if report.Status.IsError() || err != nil {
		b.errors++
	}
	b.statuses[report.Status]++
	if err != nil {
		b.errorKinds[ErrorKind(err)]++
	}
}

// NewAggregator creates an aggregator sized for the given number of workers.
func NewAggregator(workers int) *Aggregator {
	if workers < 1 {
		workers = 1
	}
	n := workers
	if n > maxShards {
		n = maxShards
	}
	a := &Aggregator{
		runID:   ulid.Make().String(),
		shards:  make([]*shard, n),
		workers: make([]workerCounters, workers),
	}
	for i := range a.shards {
		a.shards[i] = &shard{bucket: newBucket()}
	}
	return a
}

// RunID returns the unique identifier stamped on every summary of this run.
func (a *Aggregator) RunID() string {
	return a.runID
}

// Record adds one iteration report from the given worker. err is the error the
// iteration returned, if any; it is classified into ErrorKinds.
func (a *Aggregator) Record(worker uint32, report bench.IterReport, err error) {
	report = report.Normalize()
	s := a.shards[int(worker)%len(a.shards)]
	s.mu.Lock()
	s.bucket.record(report, err)
	s.mu.Unlock()

	if int(worker) < len(a.workers) {
		w := &a.workers[worker]
		w.iterations.Add(1)
		w.busy.Add(int64(report.Duration))
	}
}

// RecordFault records a worker-level failure.
func (a *Aggregator) RecordFault(worker uint32, stage string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	if int(worker) < len(a.workers) && stage != StageTeardown {
		a.workers[worker].faulted.Store(true)
	}
	a.faultsMu.Lock()
	a.faults = append(a.faults, WorkerFault{WorkerID: worker, Stage: stage, Error: msg})
	a.faultsMu.Unlock()
}

// Snapshot returns the current statistics. It is safe to call concurrently with
// Record; a snapshot may lag by at most one in-flight report per worker.
func (a *Aggregator) Snapshot(elapsed time.Duration) Summary {
	return a.merge(elapsed)
}

// Finalize computes the final summary once all workers have stopped. Later calls
// return the same value regardless of elapsed.
func (a *Aggregator) Finalize(elapsed time.Duration) Summary {
	a.finalOnce.Do(func() {
		a.final = a.merge(elapsed)
	})
	return a.final.clone()
}

func (a *Aggregator) merge(elapsed time.Duration) Summary {
	merged := newBucket()
	for _, s := range a.shards {
		s.mu.Lock()
		b := s.bucket
		merged.hist.Merge(b.hist)
		if b.iterations > 0 && (merged.iterations == 0 || b.minLatency < merged.minLatency) {
			merged.minLatency = b.minLatency
		}
		merged.iterations += b.iterations
		merged.items += b.items
		merged.bytes += b.bytes
		merged.errors += b.errors
		merged.sumLatency += b.sumLatency
		if b.maxLatency > merged.maxLatency {
			merged.maxLatency = b.maxLatency
		}
		for k, v := range b.statuses {
			merged.statuses[k] += v
		}
		for k, v := range b.errorKinds {
			merged.errorKinds[k] += v
		}
		s.mu.Unlock()
	}

	summary := Summary{
		RunID:      a.runID,
		Iterations: merged.iterations,
		Items:      merged.items,
		Bytes:      merged.bytes,
		Errors:     merged.errors,
		Duration:   elapsed,
		DurationMs: toMs(elapsed),
	}
	summary.Latency.Min = merged.minLatency
	summary.Latency.Max = merged.maxLatency
	if merged.iterations > 0 {
		summary.ErrorRate = float64(merged.errors) / float64(merged.iterations)
		summary.Latency.Mean = time.Duration(int64(merged.sumLatency) / merged.iterations)
	}
	if merged.hist.TotalCount() > 0 {
		summary.Latency.StdDev = time.Duration(merged.hist.StdDev() * float64(time.Microsecond))
		summary.Latency.P50 = quantile(merged.hist, 50, merged.maxLatency)
		summary.Latency.P90 = quantile(merged.hist, 90, merged.maxLatency)
		summary.Latency.P95 = quantile(merged.hist, 95, merged.maxLatency)
		summary.Latency.P99 = quantile(merged.hist, 99, merged.maxLatency)
		summary.Latency.P999 = quantile(merged.hist, 99.9, merged.maxLatency)
	}
	summary.Latency.fillMs()

	if elapsed > 0 && merged.iterations > 0 {
		secs := elapsed.Seconds()
		summary.IterationsPerSec = float64(merged.iterations) / secs
		summary.ItemsPerSec = float64(merged.items) / secs
		summary.BytesPerSec = float64(merged.bytes) / secs
	}

	summary.Statuses = FlattenStatuses(merged.statuses)
	if len(merged.errorKinds) > 0 {
		summary.ErrorKinds = merged.errorKinds
	}

	summary.Workers = make([]WorkerStats, len(a.workers))
	for i := range a.workers {
		w := &a.workers[i]
		busy := time.Duration(w.busy.Load())
		summary.Workers[i] = WorkerStats{
			ID:         uint32(i),
			Iterations: w.iterations.Load(),
			Busy:       busy,
			BusyMs:     toMs(busy),
			Faulted:    w.faulted.Load(),
		}
	}

	a.faultsMu.Lock()
	if len(a.faults) > 0 {
		summary.WorkerFaults = append([]WorkerFault(nil), a.faults...)
	}
	a.faultsMu.Unlock()

	return summary
}

// quantile reads a percentile, clamped to the exactly tracked maximum.
func quantile(h *hdrhistogram.Histogram, q float64, ceiling time.Duration) time.Duration {
	v := time.Duration(h.ValueAtQuantile(q)) * time.Microsecond
	if ceiling > 0 && v > ceiling {
		return ceiling
	}
	return v
}

func (s Summary) clone() Summary {
	out := s
	if s.Statuses != nil {
		out.Statuses = append([]StatusBucket(nil), s.Statuses...)
	}
	if s.ErrorKinds != nil {
		out.ErrorKinds = make(map[string]int64, len(s.ErrorKinds))
		for k, v := range s.ErrorKinds {
			out.ErrorKinds[k] = v
		}
	}
	if s.Workers != nil {
		out.Workers = append([]WorkerStats(nil), s.Workers...)
	}
	if s.WorkerFaults != nil {
		out.WorkerFaults = append([]WorkerFault(nil), s.WorkerFaults...)
	}
	return out
}
