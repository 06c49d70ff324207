package metrics

import (
	"time"
)

// Summary is the aggregated view over all recorded iteration reports.
type Summary struct {
	RunID            string           `json:"run_id" yaml:"run_id"`
	Iterations       int64            `json:"iterations" yaml:"iterations"`
	Items            int64            `json:"items" yaml:"items"`
	Bytes            int64            `json:"bytes" yaml:"bytes"`
	Errors           int64            `json:"errors" yaml:"errors"`
	ErrorRate        float64          `json:"error_rate" yaml:"error_rate"`
	Duration         time.Duration    `json:"-" yaml:"-"`
	DurationMs       float64          `json:"duration_ms" yaml:"duration_ms"`
	IterationsPerSec float64          `json:"iterations_per_sec" yaml:"iterations_per_sec"`
	ItemsPerSec      float64          `json:"items_per_sec" yaml:"items_per_sec"`
	BytesPerSec      float64          `json:"bytes_per_sec" yaml:"bytes_per_sec"`
	Latency          Latency          `json:"latency" yaml:"latency"`
	Statuses         []StatusBucket   `json:"statuses,omitempty" yaml:"statuses,omitempty"`
	ErrorKinds       map[string]int64 `json:"error_kinds,omitempty" yaml:"error_kinds,omitempty"`
	Workers          []WorkerStats    `json:"workers,omitempty" yaml:"workers,omitempty"`
	WorkerFaults     []WorkerFault    `json:"worker_faults,omitempty" yaml:"worker_faults,omitempty"`
	Cancelled        bool             `json:"cancelled" yaml:"cancelled"`
}

// Latency is the latency distribution of a run.
type Latency struct {
	Min    time.Duration `json:"-" yaml:"-"`
	Max    time.Duration `json:"-" yaml:"-"`
	Mean   time.Duration `json:"-" yaml:"-"`
	StdDev time.Duration `json:"-" yaml:"-"`
	P50    time.Duration `json:"-" yaml:"-"`
	P90    time.Duration `json:"-" yaml:"-"`
	P95    time.Duration `json:"-" yaml:"-"`
	P99    time.Duration `json:"-" yaml:"-"`
	P999   time.Duration `json:"-" yaml:"-"`

	// JSON-friendly millisecond fields.
	MinMs    float64 `json:"min_ms" yaml:"min_ms"`
	MaxMs    float64 `json:"max_ms" yaml:"max_ms"`
	MeanMs   float64 `json:"mean_ms" yaml:"mean_ms"`
	StdDevMs float64 `json:"stddev_ms" yaml:"stddev_ms"`
	P50Ms    float64 `json:"p50_ms" yaml:"p50_ms"`
	P90Ms    float64 `json:"p90_ms" yaml:"p90_ms"`
	P95Ms    float64 `json:"p95_ms" yaml:"p95_ms"`
	P99Ms    float64 `json:"p99_ms" yaml:"p99_ms"`
	P999Ms   float64 `json:"p999_ms" yaml:"p999_ms"`
}

// WorkerStats holds the per-worker share of a run.
type WorkerStats struct {
	ID         uint32        `json:"id" yaml:"id"`
	Iterations int64         `json:"iterations" yaml:"iterations"`
	Busy       time.Duration `json:"-" yaml:"-"`
	BusyMs     float64       `json:"busy_ms" yaml:"busy_ms"`
	Faulted    bool          `json:"faulted,omitempty" yaml:"faulted,omitempty"`
}

// Fault stages.
const (
	StageStartup   = "startup"
	StageIteration = "iteration"
	StageTeardown  = "teardown"
)

// WorkerFault records a worker-level failure. Startup faults exclude the worker
// from the run; iteration faults retire it early.
type WorkerFault struct {
	WorkerID uint32 `json:"worker_id" yaml:"worker_id"`
	Stage    string `json:"stage" yaml:"stage"`
	Error    string `json:"error" yaml:"error"`
}

// StartupFailures counts workers excluded because their state could not be built.
func (s Summary) StartupFailures() int {
	n := 0
	for _, f := range s.WorkerFaults {
		if f.Stage == StageStartup {
			n++
		}
	}
	return n
}

func toMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func (l *Latency) fillMs() {
	l.MinMs = toMs(l.Min)
	l.MaxMs = toMs(l.Max)
	l.MeanMs = toMs(l.Mean)
	l.StdDevMs = toMs(l.StdDev)
	l.P50Ms = toMs(l.P50)
	l.P90Ms = toMs(l.P90)
	l.P95Ms = toMs(l.P95)
	l.P99Ms = toMs(l.P99)
	l.P999Ms = toMs(l.P999)
}
