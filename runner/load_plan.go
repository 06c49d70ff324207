package runner

import (
	"sort"
	"time"
)

// loadPlan is LoadPatterns flattened into back-to-back segments. Each segment
// moves linearly between two rates; steps and spikes are flat segments.
type loadPlan struct {
	segs []planSegment
}

type planSegment struct {
	end      time.Duration // offset from run start
	length   time.Duration
	from, to float64
}

// compileLoadPlan returns nil when no pattern contributes any time.
func compileLoadPlan(patterns []LoadPattern) *loadPlan {
	var plan loadPlan
	var offset time.Duration
	add := func(length time.Duration, from, to float64) {
		if length <= 0 {
			return
		}
		offset += length
		plan.segs = append(plan.segs, planSegment{end: offset, length: length, from: from, to: to})
	}

	for _, p := range patterns {
		switch p.Type {
		case LoadPatternTypeRamp:
			add(p.Duration, p.FromRPS, p.ToRPS)
		case LoadPatternTypeStep:
			for _, step := range p.Steps {
				add(step.Duration, step.RPS, step.RPS)
			}
		case LoadPatternTypeSpike:
			add(p.Duration, p.RPS, p.RPS)
		}
	}
	if len(plan.segs) == 0 {
		return nil
	}
	return &plan
}

// length is the offset at which the last segment ends and the run stops.
func (p *loadPlan) length() time.Duration {
	if p == nil {
		return 0
	}
	return p.segs[len(p.segs)-1].end
}

// rateAt returns the target rate elapsed into the run, or false once the plan is over.
func (p *loadPlan) rateAt(elapsed time.Duration) (float64, bool) {
	if p == nil {
		return 0, false
	}
	elapsed = max(elapsed, 0)
	i := sort.Search(len(p.segs), func(i int) bool { return p.segs[i].end > elapsed })
	if i == len(p.segs) {
		return 0, false
	}
	seg := p.segs[i]
	if seg.from == seg.to {
		return seg.from, true
	}
	into := elapsed - (seg.end - seg.length)
	return seg.from + (seg.to-seg.from)*float64(into)/float64(seg.length), true
}
