// Package keypool load-balances caller-supplied upstream credentials. Each
// distinct key gets a metrics record tracking rolling success counters, an
// exponentially-smoothed latency, and a health flag; selection scores
// healthy candidates and always returns a usable key.
package keypool

import (
	"sync"
	"time"

	"github.com/solara-labs/prism-gateway/internal/apierror"
)

// Config tunes scoring and health transitions.
type Config struct {
	MaxConsecutiveErrors int
	MinSampleSize        int
	UnhealthyThreshold   float64
	SuccessRateWeight    float64
	ResponseTimeWeight   float64
	LatencyFloorMs       float64
	LatencyCeilingMs     float64
	EMAAlpha             float64
	PerformanceWindow    time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxConsecutiveErrors: 3,
		MinSampleSize:        5,
		UnhealthyThreshold:   0.3,
		SuccessRateWeight:    0.7,
		ResponseTimeWeight:   0.3,
		LatencyFloorMs:       100,
		LatencyCeilingMs:     5000,
		EMAAlpha:             0.1,
		PerformanceWindow:    10 * time.Minute,
	}
}

// record holds per-credential metrics. One record exists per distinct key
// for the lifetime of the process unless swept after inactivity.
type record struct {
	key                 string
	successes           int
	failures            int
	consecutiveFailures int
	avgLatencyMs        float64
	healthy             bool
	lastUsed            time.Time
}

func (r *record) samples() int {
	return r.successes + r.failures
}

func (r *record) successRate() float64 {
	if r.samples() == 0 {
		return 0
	}
	return float64(r.successes) / float64(r.samples())
}

// Pool is the only cross-request shared resource; all access goes through
// its mutex.
type Pool struct {
	mu      sync.RWMutex
	records map[string]*record
	cfg     Config
}

func New(cfg Config) *Pool {
	return &Pool{
		records: make(map[string]*record),
		cfg:     cfg,
	}
}

// lockedGet returns (or lazily creates) the record for a key. Caller must
// hold the write lock. New keys start healthy; never-seen is not known-bad.
func (p *Pool) lockedGet(key string) *record {
	r, ok := p.records[key]
	if !ok {
		r = &record{key: key, healthy: true, lastUsed: time.Now()}
		p.records[key] = r
	}
	return r
}

// RecordOutcome updates a credential's counters, smoothed latency, and
// health after one upstream attempt.
func (p *Pool) RecordOutcome(key string, latency time.Duration, success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	r := p.lockedGet(key)
	r.lastUsed = time.Now()

	if success {
		r.successes++
		r.consecutiveFailures = 0
	} else {
		r.failures++
		r.consecutiveFailures++
	}

	sample := float64(latency.Milliseconds())
	if r.samples() == 1 {
		r.avgLatencyMs = sample
	} else {
		r.avgLatencyMs = r.avgLatencyMs*(1-p.cfg.EMAAlpha) + sample*p.cfg.EMAAlpha
	}

	r.healthy = p.evalHealth(r)
}

// evalHealth re-evaluates the health flag. Health is never latched: a
// success resets the failure streak and recovery follows immediately.
func (p *Pool) evalHealth(r *record) bool {
	if r.consecutiveFailures >= p.cfg.MaxConsecutiveErrors {
		return false
	}
	if r.samples() >= p.cfg.MinSampleSize && r.successRate() < p.cfg.UnhealthyThreshold {
		return false
	}
	return true
}

// Prune removes records unused for longer than twice the performance window
// and reports how many were removed.
func (p *Pool) Prune() int {
	cutoff := time.Now().Add(-2 * p.cfg.PerformanceWindow)

	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0
	for key, r := range p.records {
		if r.lastUsed.Before(cutoff) {
			delete(p.records, key)
			removed++
		}
	}
	return removed
}

// Size reports how many credentials are currently tracked.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.records)
}

// KeyStats is a display-safe snapshot of one credential's record.
type KeyStats struct {
	MaskedKey           string  `json:"key"`
	KeyHash             string  `json:"key_hash"`
	Successes           int     `json:"successes"`
	Failures            int     `json:"failures"`
	ConsecutiveFailures int     `json:"consecutive_failures"`
	AvgLatencyMs        float64 `json:"avg_latency_ms"`
	Healthy             bool    `json:"healthy"`
	LastUsed            string  `json:"last_used"`
}

// Snapshot returns the pool's current state with masked key material.
func (p *Pool) Snapshot() []KeyStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]KeyStats, 0, len(p.records))
	for _, r := range p.records {
		out = append(out, KeyStats{
			MaskedKey:           apierror.MaskKey(r.key),
			KeyHash:             apierror.HashKey(r.key),
			Successes:           r.successes,
			Failures:            r.failures,
			ConsecutiveFailures: r.consecutiveFailures,
			AvgLatencyMs:        r.avgLatencyMs,
			Healthy:             r.healthy,
			LastUsed:            r.lastUsed.UTC().Format(time.RFC3339),
		})
	}
	return out
}

// Janitor prunes idle records on the given interval until ctx-style stop is
// signaled via the returned stop function.
func (p *Pool) Janitor(interval time.Duration) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.Prune()
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
