package generation

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/HanTheDev/content-gateway/internal/models"
	"github.com/HanTheDev/content-gateway/internal/provider"
	"github.com/HanTheDev/content-gateway/internal/quota"
)

// attemptError ties a failed upstream call to the provider that made it.
type attemptError struct {
	provider string
	err      error
}

func (e *attemptError) Error() string { return fmt.Sprintf("attempt via %s: %v", e.provider, e.err) }
func (e *attemptError) Unwrap() error { return e.err }

func attemptedProvider(err error) (string, bool) {
	var ae *attemptError
	if errors.As(err, &ae) {
		return ae.provider, true
	}
	return "", false
}

// callLog collects provider_call events. The singleflight leader may still be appending after a
// waiter gave up, hence the lock.
type callLog struct {
	mu     sync.Mutex
	events []models.UsageEvent
	failed bool
}

func (l *callLog) add(ev models.UsageEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	if ev.Outcome != models.OutcomeSucceeded {
		l.failed = true
	}
}

func (l *callLog) snapshot() ([]models.UsageEvent, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.UsageEvent(nil), l.events...), l.failed
}

func (l *callLog) cost() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var total float64
	for _, ev := range l.events {
		total += ev.Cost
	}
	return total
}

func callOutcome(err error) string {
	switch {
	case err == nil:
		return models.OutcomeSucceeded
	case provider.IsTimeout(err):
		return models.OutcomeTimeout
	default:
		return models.OutcomeFailed
	}
}

func newUsageEvent(sub models.SubRequest, kind models.UsageKind, outcome string, at time.Time) models.UsageEvent {
	return models.UsageEvent{
		ID:        uuid.NewString(),
		RequestID: sub.RequestID,
		UserID:    sub.RequesterID,
		Feature:   sub.ContentType,
		PeriodKey: quota.PeriodKey(at),
		Kind:      kind,
		Outcome:   outcome,
		At:        at.UTC(),
	}
}
