package runner

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// pausePoll is how often a scheduled controller at zero rate checks for a new target.
const pausePoll = 10 * time.Millisecond

var errPermitUnavailable = errors.New("rate limiter cannot grant a permit")

// rateController hands out permits to start iterations.
type rateController interface {
	Acquire(ctx context.Context) error
	SetRate(rps float64)
}

// newRateController builds the controller for one scope. scheduled controllers are
// driven by a load plan: a zero target pauses them instead of lifting the limit.
func newRateController(opt Options, worker int, plan *loadPlan) rateController {
	baseRate := opt.Rate
	scheduled := plan != nil
	if scheduled {
		baseRate, _ = plan.rateAt(0)
	}
	if !scheduled && baseRate <= 0 {
		return unthrottled{}
	}

	switch opt.Arrival {
	case ArrivalModelPoisson:
		ctrl := &poissonArrival{sample: opt.sampler(worker), scheduled: scheduled}
		ctrl.SetRate(baseRate)
		return ctrl
	default:
		ctrl := &uniformArrival{limiter: opt.LimiterFactory(baseRate), scheduled: scheduled}
		if scheduled {
			ctrl.SetRate(baseRate)
		}
		return ctrl
	}
}

type unthrottled struct{}

func (unthrottled) Acquire(context.Context) error { return nil }
func (unthrottled) SetRate(float64)               {}

// uniformArrival delegates pacing to a rate.Limiter (uniform spacing).
type uniformArrival struct {
	limiter   *rate.Limiter
	scheduled bool
	paused    atomic.Bool
}

func (u *uniformArrival) Acquire(ctx context.Context) error {
	if err := waitWhilePaused(ctx, &u.paused); err != nil {
		return err
	}
	if u.limiter == nil {
		return nil
	}
	// Limiter.Wait fails early when the permit lies past the ctx deadline.
	res := u.limiter.Reserve()
	if !res.OK() {
		return errPermitUnavailable
	}
	delay := res.Delay()
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		res.Cancel()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (u *uniformArrival) SetRate(rps float64) {
	if u == nil || u.limiter == nil {
		return
	}
	if rps <= 0 {
		if u.scheduled {
			u.paused.Store(true)
			return
		}
		u.limiter.SetLimit(rate.Inf)
		return
	}
	u.limiter.SetLimit(rate.Limit(rps))
	u.limiter.SetBurst(1)
	u.paused.Store(false)
}

// poissonArrival spaces permits by exponential inter-arrival times. Permits are
// handed out on one shared schedule, so concurrent callers do not multiply the rate.
type poissonArrival struct {
	mu        sync.Mutex
	rate      float64
	next      time.Time
	sample    func() float64
	scheduled bool
	paused    atomic.Bool
}

func (p *poissonArrival) Acquire(ctx context.Context) error {
	if err := waitWhilePaused(ctx, &p.paused); err != nil {
		return err
	}
	delay := p.reserve(time.Now())
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *poissonArrival) SetRate(rps float64) {
	if p == nil {
		return
	}
	if rps < 0 {
		rps = 0
	}
	p.mu.Lock()
	p.rate = rps
	p.mu.Unlock()
	p.paused.Store(p.scheduled && rps == 0)
}

// reserve books the next arrival and returns how long to wait for it. An idle
// controller restarts its schedule from now.
func (p *poissonArrival) reserve(now time.Time) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	gap := p.nextDelay()
	if gap <= 0 {
		return 0
	}
	if p.next.Before(now) {
		p.next = now
	}
	p.next = p.next.Add(gap)
	return p.next.Sub(now)
}

// nextDelay samples one inter-arrival gap. Callers hold p.mu.
func (p *poissonArrival) nextDelay() time.Duration {
	if p.rate <= 0 || p.sample == nil {
		return 0
	}
	delay := float64(time.Second) * p.sample() / p.rate
	if delay > math.MaxInt64 {
		delay = math.MaxInt64
	}
	return time.Duration(delay)
}

func waitWhilePaused(ctx context.Context, paused *atomic.Bool) error {
	for paused.Load() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pausePoll):
		}
	}
	return nil
}
