// Package quota tracks per-user, per-feature consumption within a billing period and grants
// or denies reservations atomically.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/HanTheDev/content-gateway/internal/models"
)

// ErrInvalidCost is returned for non-positive reservation sizes.
var ErrInvalidCost = errors.New("quota cost must be positive")

// Ledger is the only component allowed to mutate quota usage.
//
// CheckAndReserve is atomic per (user, feature, period): two concurrent callers are never both
// granted the last unit. A denial is reported as a *QuotaExceededError. Release undoes a
// reservation whose call produced no artifact, against the period it was taken in.
type Ledger interface {
	CheckAndReserve(ctx context.Context, userID, plan string, feature models.ContentType, cost int) (Reservation, error)
	Release(ctx context.Context, r Reservation) error
	State(ctx context.Context, userID, plan string, feature models.ContentType) (models.QuotaState, error)
}

// Reservation is a granted hold on quota units.
type Reservation struct {
	UserID    string
	Feature   models.ContentType
	Period    string
	Units     int
	Remaining int
}

// Limits maps plan tier -> feature -> units per period.
type Limits struct {
	Plans   map[string]map[models.ContentType]int
	Default string
}

// For returns the limit for plan and feature, using the default plan for unknown tiers.
func (l Limits) For(plan string, feature models.ContentType) int {
	if p, ok := l.Plans[plan]; ok {
		return p[feature]
	}
	return l.Plans[l.Default][feature]
}

// PeriodKey is the calendar month in UTC. Rollover is owned by whoever schedules resets;
// the ledger simply starts a fresh counter when the key changes.
func PeriodKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// QuotaExceededError describes a denied reservation.
type QuotaExceededError struct {
	UserID    string
	Feature   models.ContentType
	Period    string
	Remaining int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for user %s feature %s (remaining %d)", e.UserID, e.Feature, e.Remaining)
}

func IsQuotaExceeded(err error) bool {
	var qe *QuotaExceededError
	return errors.As(err, &qe)
}
