package runner

import (
	"fmt"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// RateScope selects whether the rate limit is shared or applied per worker.
type RateScope string

const (
	RateScopeGlobal    RateScope = "global"
	RateScopePerWorker RateScope = "per-worker"
)

// ArrivalModel selects how permits are spaced.
type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

// LoadPatternType names a segment of a load schedule.
type LoadPatternType string

const (
	LoadPatternTypeRamp  LoadPatternType = "ramp"
	LoadPatternTypeStep  LoadPatternType = "step"
	LoadPatternTypeSpike LoadPatternType = "spike"
)

// LoadPattern is one segment of a rate schedule. Patterns run back to back and
// the run stops when the last one ends.
type LoadPattern struct {
	Name     string
	Type     LoadPatternType
	FromRPS  float64
	ToRPS    float64
	RPS      float64
	Duration time.Duration
	Steps    []LoadStep
}

// LoadStep holds one stage of a step pattern.
type LoadStep struct {
	RPS      float64
	Duration time.Duration
}

// FailureLogger logs failed iterations and worker faults.
type FailureLogger interface {
	LogFailure(err error)
}

// Options configure the Runner.
type Options struct {
	Concurrency int           // number of workers
	Duration    time.Duration // wall-clock limit (0 means none)
	Iterations  uint64        // iteration budget across all workers (0 means none)

	Rate         float64      // iterations per second (0 means unthrottled)
	RateScope    RateScope    // global or per-worker
	Arrival      ArrivalModel // uniform or poisson spacing
	LoadPatterns []LoadPattern

	RampUp      time.Duration // spread worker start over this window
	Warmup      time.Duration // iterations started within this window are not recorded
	GracePeriod time.Duration // drain bound; 0 waits, negative cancels in-flight iterations at once

	Tracer        trace.Tracer  // optional span per iteration
	FailureLogger FailureLogger // optional

	LimiterFactory func(rps float64) *rate.Limiter // optional injection for tests
	PoissonSampler func() float64                  // optional injection for tests
	RandomSeed     int64
}

func (o *Options) normalize() {
	if o.RateScope == "" {
		o.RateScope = RateScopeGlobal
	}
	if o.Arrival == "" {
		o.Arrival = ArrivalModelUniform
	}
	if o.RandomSeed == 0 {
		o.RandomSeed = time.Now().UnixNano()
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps float64) *rate.Limiter {
			if rps <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			// Burst of one: permits not taken in time are dropped, never saved up.
			return rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

func (o Options) validate() error {
	var issues []string
	if o.Concurrency < 1 {
		issues = append(issues, "concurrency must be at least 1")
	}
	if o.Duration < 0 {
		issues = append(issues, "duration must be non-negative")
	}
	if o.Duration == 0 && o.Iterations == 0 && len(o.LoadPatterns) == 0 {
		issues = append(issues, "a duration, an iteration budget or load patterns are required")
	}
	if o.Rate < 0 {
		issues = append(issues, "rate must be non-negative")
	}
	switch o.RateScope {
	case RateScopeGlobal, RateScopePerWorker:
	default:
		issues = append(issues, fmt.Sprintf("rate scope %q is not supported", o.RateScope))
	}
	switch o.Arrival {
	case ArrivalModelUniform, ArrivalModelPoisson:
	default:
		issues = append(issues, fmt.Sprintf("arrival model %q is not supported", o.Arrival))
	}
	if o.RampUp < 0 {
		issues = append(issues, "ramp-up must be non-negative")
	}
	if o.Warmup < 0 {
		issues = append(issues, "warmup must be non-negative")
	}
	for i, p := range o.LoadPatterns {
		issues = append(issues, validatePattern(i, p)...)
	}
	if len(issues) > 0 {
		return &ConfigError{issues: issues}
	}
	return nil
}

func validatePattern(idx int, p LoadPattern) []string {
	label := p.Name
	if label == "" {
		label = fmt.Sprintf("pattern[%d]", idx)
	}
	var issues []string
	switch p.Type {
	case LoadPatternTypeRamp:
		if p.FromRPS < 0 || p.ToRPS < 0 {
			issues = append(issues, fmt.Sprintf("%s: rps must be non-negative", label))
		}
		if p.Duration <= 0 {
			issues = append(issues, fmt.Sprintf("%s: duration must be positive", label))
		}
	case LoadPatternTypeStep:
		if len(p.Steps) == 0 {
			issues = append(issues, fmt.Sprintf("%s: at least one step is required", label))
		}
		for j, s := range p.Steps {
			if s.RPS < 0 || s.Duration <= 0 {
				issues = append(issues, fmt.Sprintf("%s: step[%d] needs rps >= 0 and a positive duration", label, j))
			}
		}
	case LoadPatternTypeSpike:
		if p.RPS < 0 {
			issues = append(issues, fmt.Sprintf("%s: rps must be non-negative", label))
		}
		if p.Duration <= 0 {
			issues = append(issues, fmt.Sprintf("%s: duration must be positive", label))
		}
	default:
		issues = append(issues, fmt.Sprintf("%s: unsupported type %q", label, p.Type))
	}
	return issues
}

func (o Options) sampler(worker int) func() float64 {
	if o.PoissonSampler != nil {
		return o.PoissonSampler
	}
	return rand.New(rand.NewSource(o.RandomSeed + int64(worker))).ExpFloat64
}
