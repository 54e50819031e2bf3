package quota

import (
	"context"
	"sync"
	"time"

	"github.com/HanTheDev/content-gateway/internal/models"
)

type memKey struct {
	user    string
	feature models.ContentType
	period  string
}

// MemoryLedger keeps counters in process. Suitable for a single node and for tests.
type MemoryLedger struct {
	mu     sync.Mutex
	limits Limits
	now    func() time.Time
	used   map[memKey]int
}

func NewMemoryLedger(limits Limits) *MemoryLedger {
	return &MemoryLedger{limits: limits, now: time.Now, used: make(map[memKey]int)}
}

// WithClock swaps the time source; used to exercise period rollover.
func (m *MemoryLedger) WithClock(now func() time.Time) *MemoryLedger {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	return m
}

func (m *MemoryLedger) CheckAndReserve(_ context.Context, userID, plan string, feature models.ContentType, cost int) (Reservation, error) {
	if cost <= 0 {
		return Reservation{}, ErrInvalidCost
	}
	limit := m.limits.For(plan, feature)

	m.mu.Lock()
	defer m.mu.Unlock()

	k := memKey{user: userID, feature: feature, period: PeriodKey(m.now())}
	used := m.used[k]
	if used+cost > limit {
		return Reservation{}, &QuotaExceededError{UserID: userID, Feature: feature, Period: k.period, Remaining: clampRemaining(limit - used)}
	}
	m.used[k] = used + cost
	return Reservation{UserID: userID, Feature: feature, Period: k.period, Units: cost, Remaining: limit - used - cost}, nil
}

func (m *MemoryLedger) Release(_ context.Context, r Reservation) error {
	if r.Units <= 0 {
		return ErrInvalidCost
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	k := memKey{user: r.UserID, feature: r.Feature, period: r.Period}
	used := m.used[k] - r.Units
	if used < 0 {
		used = 0
	}
	m.used[k] = used
	return nil
}

func (m *MemoryLedger) State(_ context.Context, userID, plan string, feature models.ContentType) (models.QuotaState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	period := PeriodKey(m.now())
	return models.QuotaState{
		UserID:    userID,
		Feature:   feature,
		PeriodKey: period,
		Used:      m.used[memKey{user: userID, feature: feature, period: period}],
		Limit:     m.limits.For(plan, feature),
	}, nil
}

func clampRemaining(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
