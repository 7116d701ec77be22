package keypool

import (
	"errors"
	"math"
)

// Selection reasons.
const (
	ReasonSingleKey        = "single_key"
	ReasonPerformance      = "performance_optimized"
	ReasonLeastBadFallback = "least_bad_fallback"
)

// ErrNoCandidates is returned when the caller supplied no keys at all.
var ErrNoCandidates = errors.New("no candidate keys")

// Selection is the outcome of choosing one credential for a request.
type Selection struct {
	Key            string
	Reason         string
	AvailableCount int
	HealthyCount   int
}

// Select chooses one of the caller's candidate keys. A single candidate is
// returned immediately regardless of its health; with multiple candidates
// the healthy partition is scored and the best wins. When every candidate
// is unhealthy the least-bad one is returned — the caller committed to
// these keys, and a degraded attempt beats failing closed.
func (p *Pool) Select(candidates []string) (Selection, error) {
	if len(candidates) == 0 {
		return Selection{}, ErrNoCandidates
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(candidates) == 1 {
		r := p.lockedGet(candidates[0])
		sel := Selection{
			Key:            candidates[0],
			Reason:         ReasonSingleKey,
			AvailableCount: 1,
		}
		if r.healthy {
			sel.HealthyCount = 1
		}
		return sel, nil
	}

	var healthy, unhealthy []*record
	for _, key := range candidates {
		r := p.lockedGet(key)
		if r.healthy {
			healthy = append(healthy, r)
		} else {
			unhealthy = append(unhealthy, r)
		}
	}

	sel := Selection{
		AvailableCount: len(candidates),
		HealthyCount:   len(healthy),
	}

	if len(healthy) > 0 {
		sel.Key = p.best(healthy).key
		sel.Reason = ReasonPerformance
		return sel, nil
	}

	sel.Key = p.best(unhealthy).key
	sel.Reason = ReasonLeastBadFallback
	return sel, nil
}

func (p *Pool) best(records []*record) *record {
	top := records[0]
	topScore := p.score(top)
	for _, r := range records[1:] {
		if s := p.score(r); s > topScore {
			top, topScore = r, s
		}
	}
	return top
}

// score combines success rate, latency, and the current failure streak.
// Below the minimum sample size the success rate defaults to 0.5: not
// enough data is not the same as known bad.
func (p *Pool) score(r *record) float64 {
	successRate := 0.5
	if r.samples() >= p.cfg.MinSampleSize {
		successRate = r.successRate()
	}

	penalty := math.Min(0.5, float64(r.consecutiveFailures)*0.1)

	return successRate*p.cfg.SuccessRateWeight +
		p.responseTimeScore(r)*p.cfg.ResponseTimeWeight -
		penalty
}

// responseTimeScore maps average latency linearly onto [0,1] between the
// configured floor (excellent) and ceiling (worst). Keys with no latency
// samples score 1: no evidence of slowness.
func (p *Pool) responseTimeScore(r *record) float64 {
	if r.samples() == 0 {
		return 1
	}
	span := p.cfg.LatencyCeilingMs - p.cfg.LatencyFloorMs
	if span <= 0 {
		return 1
	}
	score := 1 - (r.avgLatencyMs-p.cfg.LatencyFloorMs)/span
	return math.Max(0, math.Min(1, score))
}
