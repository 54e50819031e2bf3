package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnsupportedContent is returned when a provider is asked for a type it does not produce.
	ErrUnsupportedContent = errors.New("content type not supported by provider")

	// ErrInvalidResponse is returned when the backend answered but the payload is unusable.
	ErrInvalidResponse = errors.New("invalid response from provider")

	// ErrInvalidConfig is returned by constructors given incomplete settings.
	ErrInvalidConfig = errors.New("invalid provider configuration")
)

// ProviderError is a failed upstream call. Transient errors are eligible for the coordinator's retry.
type ProviderError struct {
	Provider   string
	StatusCode int
	Transient  bool
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// TimeoutError means the call outlived the caller's deadline. The attempt still counts as a
// failed call for cost tracking.
type TimeoutError struct {
	Provider string
	Elapsed  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("provider %s: timed out after %s", e.Provider, e.Elapsed.Round(time.Millisecond))
}

// Is lets errors.Is(err, context.DeadlineExceeded) match timeouts.
func (e *TimeoutError) Is(target error) bool {
	return target == context.DeadlineExceeded
}

func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsTransient reports whether a retry against another candidate makes sense.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsTimeout(err) {
		return true
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient
	}
	return !errors.Is(err, context.Canceled)
}

// classify turns a raw call error into the taxonomy above, using ctx to tell a
// deadline from a caller cancellation.
func classify(ctx context.Context, name string, start time.Time, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Provider: name, Elapsed: time.Since(start)}
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("provider %s: %w", name, context.Canceled)
	}
	return &ProviderError{Provider: name, Transient: true, Err: err}
}

func transientStatus(code int) bool {
	return code == 429 || code >= 500
}
