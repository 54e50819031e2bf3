package routing

import (
	"sort"
	"sync"
	"time"
)

type availability int

const (
	available availability = iota
	trialAvailable
	unavailable
)

type health struct {
	mu sync.Mutex

	weight       float64
	ewma         time.Duration
	consecutive  int
	firstFailure time.Time

	tripped        bool
	unhealthyUntil time.Time
	inTrial        bool
	trialStarted   time.Time

	successes int64
	failures  int64
}

// availability must be called with h.mu held. A claimed trial call that never reports back is
// given up on after one more cooldown.
func (h *health) availability(now time.Time, cooldown time.Duration) availability {
	if !h.tripped {
		return available
	}
	if now.Before(h.unhealthyUntil) {
		return unavailable
	}
	if h.inTrial && now.Sub(h.trialStarted) < cooldown {
		return unavailable
	}
	return trialAvailable
}

func (h *health) claimTrial(now time.Time, cooldown time.Duration) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.availability(now, cooldown) {
	case available:
		return true
	case trialAvailable:
		h.inTrial = true
		h.trialStarted = now
		return true
	}
	return false
}

// ProviderHealth is the admin view of one provider.
type ProviderHealth struct {
	Name                string    `json:"name"`
	State               string    `json:"state"`
	Weight              float64   `json:"weight"`
	EWMALatencyMs       int64     `json:"ewma_latency_ms"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Successes           int64     `json:"successes"`
	Failures            int64     `json:"failures"`
	UnhealthyUntil      time.Time `json:"unhealthy_until,omitempty"`
}

const (
	StateHealthy   = "healthy"
	StateUnhealthy = "unhealthy"
	StateHalfOpen  = "half_open"
)

// Health returns the current view of name; providers never routed to report as healthy.
func (p *Policy) Health(name string) ProviderHealth {
	h := p.get(name)
	h.mu.Lock()
	defer h.mu.Unlock()

	ph := ProviderHealth{
		Name:                name,
		Weight:              h.weight,
		EWMALatencyMs:       h.ewma.Milliseconds(),
		ConsecutiveFailures: h.consecutive,
		Successes:           h.successes,
		Failures:            h.failures,
	}
	switch h.availability(p.now(), p.settings.Cooldown) {
	case available:
		ph.State = StateHealthy
	case trialAvailable:
		ph.State = StateHalfOpen
		ph.UnhealthyUntil = h.unhealthyUntil
	default:
		ph.State = StateUnhealthy
		ph.UnhealthyUntil = h.unhealthyUntil
	}
	return ph
}

// Snapshot lists every provider the policy has seen, sorted by name.
func (p *Policy) Snapshot() []ProviderHealth {
	p.mu.RLock()
	names := make([]string, 0, len(p.health))
	for name := range p.health {
		names = append(names, name)
	}
	p.mu.RUnlock()

	sort.Strings(names)
	out := make([]ProviderHealth, 0, len(names))
	for _, name := range names {
		out = append(out, p.Health(name))
	}
	return out
}
