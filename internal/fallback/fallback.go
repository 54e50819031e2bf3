// Package fallback turns any failed sub-request into a placeholder artifact so a
// generation request always gets one artifact per content type.
package fallback

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/HanTheDev/content-gateway/internal/events"
	"github.com/HanTheDev/content-gateway/internal/models"
	"github.com/HanTheDev/content-gateway/internal/provider"
	"github.com/HanTheDev/content-gateway/internal/quota"
	"github.com/HanTheDev/content-gateway/internal/routing"
)

// Degradation causes, as recorded on artifacts and failure events.
const (
	CauseQuotaExceeded    = "quota_exceeded"
	CauseTimeout          = "timeout"
	CauseProviderError    = "provider_error"
	CauseRoutingExhausted = "routing_exhausted"
	CauseCancelled        = "cancelled"
)

// CauseFor maps an error from the generation path to its degradation cause.
func CauseFor(err error) string {
	switch {
	case quota.IsQuotaExceeded(err):
		return CauseQuotaExceeded
	case errors.Is(err, routing.ErrRoutingExhausted):
		return CauseRoutingExhausted
	case errors.Is(err, context.DeadlineExceeded):
		return CauseTimeout
	case errors.Is(err, context.Canceled):
		return CauseCancelled
	default:
		return CauseProviderError
	}
}

type Handler struct {
	emitter events.Emitter
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandler builds a Handler. A nil emitter only logs.
func NewHandler(emitter events.Emitter, logger *slog.Logger) *Handler {
	return &Handler{
		emitter: emitter,
		logger:  logger.With("component", "fallback"),
		now:     time.Now,
	}
}

// Degrade never fails: it returns the placeholder artifact for sub tagged with cause, and
// reports the degradation.
func (h *Handler) Degrade(ctx context.Context, sub models.SubRequest, cause, providerAttempted string) models.ArtifactResult {
	art := provider.Placeholder(sub)
	art.ProducedBy = models.ProducedByFallback
	art.Cause = cause

	h.logger.WarnContext(ctx, "sub-request degraded",
		"request_id", sub.RequestID,
		"content_type", sub.ContentType,
		"cause", cause,
		"provider_attempted", providerAttempted,
	)

	if h.emitter != nil {
		ev := models.FailureEvent{
			RequestID:         sub.RequestID,
			ContentType:       sub.ContentType,
			Cause:             cause,
			ProviderAttempted: providerAttempted,
			At:                h.now().UTC(),
		}
		// Reporting must outlive a cancelled request.
		if err := h.emitter.Emit(context.WithoutCancel(ctx), ev); err != nil {
			h.logger.ErrorContext(ctx, "failed to emit failure event", "error", err, "request_id", sub.RequestID)
		}
	}
	return art
}
