// Package routing picks the provider for each sub-request and tracks provider health.
package routing

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/HanTheDev/content-gateway/internal/models"
)

// ErrRoutingExhausted is the degradation cause when no candidate survives filtering.
var ErrRoutingExhausted = errors.New("no eligible provider")

const (
	ewmaAlpha   = 0.3
	weightFloor = 0.05
	costEpsilon = 1e-6
)

type Settings struct {
	FailureThreshold        int
	FailureWindow           time.Duration
	Cooldown                time.Duration
	LatencyPenaltyPerSecond float64
}

type Option func(*Policy)

func WithClock(now func() time.Time) Option { return func(p *Policy) { p.now = now } }

func WithLogger(l *slog.Logger) Option {
	return func(p *Policy) { p.logger = l.With("component", "routing") }
}

// Policy scores candidates on cost, quality, latency and health. Health mutations for a
// provider are serialized by that provider's lock; selection reads are advisory.
type Policy struct {
	settings Settings
	now      func() time.Time
	logger   *slog.Logger

	mu     sync.RWMutex
	health map[string]*health
}

func NewPolicy(s Settings, opts ...Option) *Policy {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = 3
	}
	if s.FailureWindow <= 0 {
		s.FailureWindow = time.Minute
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	p := &Policy{
		settings: s,
		now:      time.Now,
		logger:   slog.Default().With("component", "routing"),
		health:   make(map[string]*health),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type scored struct {
	desc  models.ProviderDescriptor
	score float64
	trial bool
}

// SelectProvider returns the best eligible candidate for sub. Providers named in exclude are
// skipped, which is how the retry avoids the provider that just failed. When the winner is
// past its cooldown the call becomes its single half-open trial.
func (p *Policy) SelectProvider(sub models.SubRequest, candidates []models.ProviderDescriptor, exclude ...string) (models.ProviderDescriptor, bool) {
	now := p.now()
	for _, e := range p.eligible(now, sub, candidates, exclude) {
		if e.trial && !p.get(e.desc.Name).claimTrial(now, p.settings.Cooldown) {
			continue
		}
		return e.desc, true
	}
	return models.ProviderDescriptor{}, false
}

// HasCandidate reports whether SelectProvider could currently pick anything for sub. It never
// claims a half-open trial.
func (p *Policy) HasCandidate(sub models.SubRequest, candidates []models.ProviderDescriptor, exclude ...string) bool {
	return len(p.eligible(p.now(), sub, candidates, exclude)) > 0
}

// eligible filters candidates and returns them best first.
func (p *Policy) eligible(now time.Time, sub models.SubRequest, candidates []models.ProviderDescriptor, exclude []string) []scored {
	skip := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		skip[name] = true
	}

	var out []scored
	for _, c := range candidates {
		if skip[c.Name] || !c.IsHealthy || !c.Supports(sub.ContentType) {
			continue
		}
		if sub.BudgetCeiling > 0 && c.CostPerCall > sub.BudgetCeiling {
			continue
		}
		if c.QualityScore < sub.QualityTier {
			continue
		}

		h := p.get(c.Name)
		h.mu.Lock()
		avail := h.availability(now, p.settings.Cooldown)
		weight, latency := h.weight, h.ewma
		h.mu.Unlock()
		if avail == unavailable {
			continue
		}
		if latency == 0 {
			latency = c.AverageLatency
		}

		c.AverageLatency = latency
		score := weight*c.QualityScore/(c.CostPerCall+costEpsilon) -
			sub.Urgency*p.settings.LatencyPenaltyPerSecond*latency.Seconds()
		out = append(out, scored{desc: c, score: score, trial: avail == trialAvailable})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].desc.Name < out[j].desc.Name
	})
	return out
}

// RecordSuccess folds a successful call into the provider's health.
func (p *Policy) RecordSuccess(name string, latency time.Duration) {
	h := p.get(name)
	h.mu.Lock()
	defer h.mu.Unlock()

	h.successes++
	h.weight = min(1, h.weight*2)
	if h.ewma == 0 {
		h.ewma = latency
	} else {
		h.ewma = time.Duration(ewmaAlpha*float64(latency) + (1-ewmaAlpha)*float64(h.ewma))
	}
	h.consecutive = 0
	if h.tripped {
		h.tripped = false
		h.inTrial = false
		p.logger.Info("provider recovered", "provider", name)
	}
}

// RecordFailure folds a failed call into the provider's health and trips the provider after
// FailureThreshold consecutive failures inside FailureWindow.
func (p *Policy) RecordFailure(name string) {
	now := p.now()
	h := p.get(name)
	h.mu.Lock()
	defer h.mu.Unlock()

	h.failures++
	h.weight = max(weightFloor, h.weight*0.5)

	if h.tripped {
		// failed trial
		h.inTrial = false
		h.unhealthyUntil = now.Add(p.settings.Cooldown)
		p.logger.Warn("provider trial call failed", "provider", name, "retry_after", p.settings.Cooldown)
		return
	}

	if h.consecutive == 0 || now.Sub(h.firstFailure) > p.settings.FailureWindow {
		h.firstFailure = now
		h.consecutive = 1
	} else {
		h.consecutive++
	}

	if h.consecutive >= p.settings.FailureThreshold {
		h.tripped = true
		h.unhealthyUntil = now.Add(p.settings.Cooldown)
		p.logger.Warn("provider marked unhealthy",
			"provider", name,
			"consecutive_failures", h.consecutive,
			"cooldown", p.settings.Cooldown,
		)
	}
}

// Healthy reports whether name would currently be considered for routing.
func (p *Policy) Healthy(name string) bool {
	h := p.get(name)
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.availability(p.now(), p.settings.Cooldown) != unavailable
}

func (p *Policy) get(name string) *health {
	p.mu.RLock()
	h, ok := p.health[name]
	p.mu.RUnlock()
	if ok {
		return h
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok = p.health[name]; !ok {
		h = &health{weight: 1}
		p.health[name] = h
	}
	return h
}
