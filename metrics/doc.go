// Package metrics aggregates iteration reports into run statistics.
//
// The [Aggregator] is the only structure in a run written to by every worker.
// It keeps one shard per worker (up to a cap), each with its own lock, counters
// and latency histogram, so a worker recording a report only ever contends with
// a concurrent snapshot reader:
//
//	agg := metrics.NewAggregator(concurrency)
//
//	// From worker i, once per iteration.
//	agg.Record(i, report, err)
//
//	// Any time, from any goroutine.
//	live := agg.Snapshot(time.Since(start))
//
//	// After all workers have drained.
//	summary := agg.Finalize(time.Since(start))
//
// # Histograms
//
// Latencies go into HDR histograms (1µs to 1h, 3 significant figures), so
// percentile queries need no raw samples and memory is bounded regardless of
// run length. Min, max and mean are tracked exactly alongside.
//
// # Snapshots and summaries
//
// [Aggregator.Snapshot] and [Aggregator.Finalize] share one merge routine, so
// both agree on totals for the same cutoff. Finalize computes the summary once
// and returns the cached value afterwards.
package metrics
