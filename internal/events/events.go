// Package events fans degradation events out to interested handlers without the producer
// knowing who listens.
package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/HanTheDev/content-gateway/internal/models"
)

// Handler processes one failure event.
type Handler interface {
	HandleFailure(ctx context.Context, ev models.FailureEvent) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev models.FailureEvent) error

func (f HandlerFunc) HandleFailure(ctx context.Context, ev models.FailureEvent) error {
	return f(ctx, ev)
}

// Emitter publishes failure events.
type Emitter interface {
	Emit(ctx context.Context, ev models.FailureEvent) error
}

// InMemoryEmitter dispatches synchronously to registered handlers.
type InMemoryEmitter struct {
	mu       sync.RWMutex
	handlers []Handler
	logger   *slog.Logger
}

func NewInMemoryEmitter(logger *slog.Logger) *InMemoryEmitter {
	return &InMemoryEmitter{
		logger: logger.With("component", "failure_event_emitter"),
	}
}

func (e *InMemoryEmitter) RegisterHandler(h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, h)
	e.logger.Debug("registered failure handler", "handler_count", len(e.handlers))
}

// Emit delivers ev to every handler even if some fail, returning the first error.
func (e *InMemoryEmitter) Emit(ctx context.Context, ev models.FailureEvent) error {
	e.mu.RLock()
	handlers := make([]Handler, len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.RUnlock()

	var firstErr error
	for i, h := range handlers {
		if err := h.HandleFailure(ctx, ev); err != nil {
			e.logger.ErrorContext(ctx, "failure handler returned error",
				"error", err,
				"handler_index", i,
				"request_id", ev.RequestID,
				"content_type", ev.ContentType,
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Collector keeps every event it sees. Used by the admin surface and tests.
type Collector struct {
	mu     sync.Mutex
	events []models.FailureEvent
	limit  int
}

// NewCollector keeps at most limit recent events; limit <= 0 keeps everything.
func NewCollector(limit int) *Collector {
	return &Collector{limit: limit}
}

func (c *Collector) HandleFailure(_ context.Context, ev models.FailureEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	if c.limit > 0 && len(c.events) > c.limit {
		c.events = c.events[len(c.events)-c.limit:]
	}
	return nil
}

func (c *Collector) Events() []models.FailureEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.FailureEvent, len(c.events))
	copy(out, c.events)
	return out
}
