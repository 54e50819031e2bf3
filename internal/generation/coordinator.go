// Package generation fans a product description out into blog, image, video and podcast
// sub-requests and joins them into one GenerationResult.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HanTheDev/content-gateway/internal/cache"
	"github.com/HanTheDev/content-gateway/internal/config"
	"github.com/HanTheDev/content-gateway/internal/fallback"
	"github.com/HanTheDev/content-gateway/internal/models"
	"github.com/HanTheDev/content-gateway/internal/provider"
	"github.com/HanTheDev/content-gateway/internal/quota"
	"github.com/HanTheDev/content-gateway/internal/routing"
)

const (
	quotaUnit           = 1
	defaultFirstAttempt = 0.6
	recordTimeout       = 10 * time.Second
)

var ErrMissingDependency = errors.New("generation: missing dependency")

// Deps are the stateful collaborators, built once per process.
type Deps struct {
	Providers *provider.Registry
	Ledger    quota.Ledger
	Cache     *cache.Cache
	Routing   *routing.Policy
	Fallback  *fallback.Handler
	Catalog   *config.Catalog
	Recorder  Recorder
	Logger    *slog.Logger
}

type Coordinator struct {
	providers *provider.Registry
	ledger    quota.Ledger
	cache     *cache.Cache
	routing   *routing.Policy
	fallback  *fallback.Handler
	catalog   *config.Catalog
	recorder  Recorder
	settings  config.GenerationConfig
	logger    *slog.Logger

	pending sync.WaitGroup
}

func NewCoordinator(d Deps, settings config.GenerationConfig) (*Coordinator, error) {
	switch {
	case d.Providers == nil:
		return nil, fmt.Errorf("%w: provider registry", ErrMissingDependency)
	case d.Ledger == nil:
		return nil, fmt.Errorf("%w: quota ledger", ErrMissingDependency)
	case d.Cache == nil:
		return nil, fmt.Errorf("%w: result cache", ErrMissingDependency)
	case d.Routing == nil:
		return nil, fmt.Errorf("%w: routing policy", ErrMissingDependency)
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if d.Fallback == nil {
		d.Fallback = fallback.NewHandler(nil, logger)
	}
	if d.Catalog == nil {
		d.Catalog = config.DefaultCatalog()
	}
	if d.Recorder == nil {
		d.Recorder = NopRecorder{}
	}
	if settings.FirstAttemptShare <= 0 || settings.FirstAttemptShare > 1 {
		settings.FirstAttemptShare = defaultFirstAttempt
	}

	return &Coordinator{
		providers: d.Providers,
		ledger:    d.Ledger,
		cache:     d.Cache,
		routing:   d.Routing,
		fallback:  d.Fallback,
		catalog:   d.Catalog,
		recorder:  d.Recorder,
		settings:  settings,
		logger:    logger.With("component", "coordinator"),
	}, nil
}

// ProgressFunc is told about each sub-request as it is finalized. It may be called from
// several goroutines at once.
type ProgressFunc func(contentType models.ContentType, artifact models.ArtifactResult)

type GenerateOption func(*generateOptions)

type generateOptions struct {
	progress ProgressFunc
}

// OnSubRequestFinalized registers fn to run once per content type.
func OnSubRequestFinalized(fn ProgressFunc) GenerateOption {
	return func(o *generateOptions) { o.progress = fn }
}

// Generate runs every requested content type concurrently and returns when all are finalized
// or the overall deadline passes, whichever comes first. The only error it returns is a
// *ValidationError; every other failure becomes a degraded artifact.
func (c *Coordinator) Generate(ctx context.Context, req models.GenerationRequest, opts ...GenerateOption) (models.GenerationResult, error) {
	var o generateOptions
	for _, opt := range opts {
		opt(&o)
	}

	start := time.Now()
	req, err := normalize(req, start)
	if err != nil {
		c.logger.InfoContext(ctx, "generation request rejected", "error", err)
		return models.GenerationResult{}, err
	}

	overall := start.Add(c.settings.OverallTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(overall) {
		overall = d
	}
	ctx, cancel := context.WithDeadline(ctx, overall)
	defer cancel()

	logger := c.logger.With("request_id", req.ID, "requester_id", req.RequesterID)
	logger.InfoContext(ctx, "generation started", "content_types", req.ContentTypes, "plan", req.PlanTier)

	subs := c.subRequests(req, c.catalog.Plan(req.PlanTier), start, overall)
	j := newJoin(len(subs), o.progress)

	for i, sub := range subs {
		go func() {
			out := c.run(ctx, req.PlanTier, sub)
			if !j.finalize(i, out) {
				c.discard(ctx, sub, out)
			}
		}()
	}

	select {
	case <-j.done:
	case <-ctx.Done():
		cause := fallback.CauseFor(ctx.Err())
		for _, i := range j.unfinished() {
			j.finalize(i, c.degrade(ctx, subs[i], start, cause, "", models.OutcomeDegraded))
		}
		logger.WarnContext(ctx, "generation deadline reached before all sub-requests finished", "cause", cause)
	}

	result := aggregate(req, start, j.outcomes())
	logger.InfoContext(ctx, "generation completed",
		"total_latency_ms", result.TotalLatencyMs,
		"real_provider_count", result.RealProviderCount,
		"fallback_count", result.FallbackCount,
		"failed_count", result.FailedCount,
	)

	c.record(ctx, result)
	return result, nil
}

// Drain blocks until every pending Record call has returned.
func (c *Coordinator) Drain() {
	c.pending.Wait()
}

// run drives one sub-request through quota, cache, routing and the provider call.
func (c *Coordinator) run(ctx context.Context, plan string, sub models.SubRequest) slotOutcome {
	start := time.Now()
	ctx, cancel := context.WithDeadline(ctx, sub.Deadline)
	defer cancel()

	if err := ctx.Err(); err != nil {
		return c.degrade(ctx, sub, start, fallback.CauseFor(err), "", models.OutcomeDegraded)
	}

	reservation, err := c.ledger.CheckAndReserve(ctx, sub.RequesterID, plan, sub.ContentType, quotaUnit)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return c.degrade(ctx, sub, start, fallback.CauseFor(ctxErr), "", models.OutcomeDegraded)
		}
		if !quota.IsQuotaExceeded(err) {
			c.logger.ErrorContext(ctx, "quota check failed, denying sub-request",
				"request_id", sub.RequestID,
				"content_type", sub.ContentType,
				"error", err,
			)
			err = &quota.QuotaExceededError{UserID: sub.RequesterID, Feature: sub.ContentType}
		}
		return c.degrade(ctx, sub, start, fallback.CauseFor(err), "", models.OutcomeQuotaDenied)
	}
	c.logger.DebugContext(ctx, "quota reserved",
		"request_id", sub.RequestID,
		"content_type", sub.ContentType,
		"period", reservation.Period,
		"remaining", reservation.Remaining,
	)

	if art, ok := c.cache.Get(ctx, sub.Fingerprint); ok {
		return c.served(sub, start, reservation, art, true, &callLog{})
	}

	calls := &callLog{}
	var executed atomic.Bool
	res, err := c.cache.Do(ctx, sub.Fingerprint, c.cache.TTLFor(sub.ContentType), func(fctx context.Context) (models.ArtifactResult, error) {
		executed.Store(true)
		return c.attempt(fctx, sub, calls)
	})
	if err == nil {
		// A result that arrives after cancellation or the deadline is not served.
		err = ctx.Err()
	}
	if err != nil {
		c.release(ctx, sub, reservation)
		attempted, called := attemptedProvider(err)
		out := c.degrade(ctx, sub, start, fallback.CauseFor(err), attempted, models.OutcomeDegraded)
		usage, failed := calls.snapshot()
		out.usage = append(out.usage, usage...)
		out.failed = failed || called
		return out
	}

	return c.served(sub, start, reservation, res.Artifact, res.FromCache || !executed.Load(), calls)
}

// attempt routes sub and calls the chosen provider, retrying once against the next-best
// candidate on a transient failure. Both attempts share ctx's deadline.
func (c *Coordinator) attempt(ctx context.Context, sub models.SubRequest, calls *callLog) (models.ArtifactResult, error) {
	candidates := c.providers.Descriptors()
	first, ok := c.routing.SelectProvider(sub, candidates)
	if !ok {
		return models.ArtifactResult{}, fmt.Errorf("%s: %w", sub.ContentType, routing.ErrRoutingExhausted)
	}

	firstCtx, cancel := ctx, context.CancelFunc(func() {})
	if c.routing.HasCandidate(sub, candidates, first.Name) {
		firstCtx, cancel = context.WithDeadline(ctx, c.firstAttemptDeadline(ctx))
	}
	art, err := c.call(firstCtx, first, sub, calls)
	cancel()
	if err == nil {
		return art, nil
	}
	if ctx.Err() != nil || !provider.IsTransient(err) {
		return models.ArtifactResult{}, err
	}

	next, ok := c.routing.SelectProvider(sub, candidates, first.Name)
	if !ok {
		return models.ArtifactResult{}, err
	}
	c.logger.InfoContext(ctx, "retrying sub-request on next provider",
		"request_id", sub.RequestID,
		"content_type", sub.ContentType,
		"failed_provider", first.Name,
		"provider", next.Name,
		"error", err,
	)
	return c.call(ctx, next, sub, calls)
}

func (c *Coordinator) call(ctx context.Context, desc models.ProviderDescriptor, sub models.SubRequest, calls *callLog) (models.ArtifactResult, error) {
	p, ok := c.providers.Get(desc.Name)
	if !ok {
		return models.ArtifactResult{}, &attemptError{provider: desc.Name, err: fmt.Errorf("provider %s is not registered", desc.Name)}
	}

	start := time.Now()
	art, err := p.Generate(ctx, sub)
	if err == nil && art.ContentType == sub.ContentType {
		if verr := art.Validate(); verr != nil {
			err = &provider.ProviderError{Provider: desc.Name, Transient: true, Err: fmt.Errorf("%w: %v", provider.ErrInvalidResponse, verr)}
		}
	} else if err == nil {
		err = &provider.ProviderError{Provider: desc.Name, Transient: true, Err: fmt.Errorf("%w: got %s artifact", provider.ErrInvalidResponse, art.ContentType)}
	}
	elapsed := time.Since(start)

	ev := newUsageEvent(sub, models.UsageProviderCall, callOutcome(err), time.Now())
	ev.Provider = desc.Name
	ev.Cost = desc.CostPerCall
	ev.LatencyMs = elapsed.Milliseconds()
	calls.add(ev)

	if err != nil {
		if !errors.Is(err, context.Canceled) {
			c.routing.RecordFailure(desc.Name)
		}
		c.logger.WarnContext(ctx, "provider call failed",
			"request_id", sub.RequestID,
			"content_type", sub.ContentType,
			"provider", desc.Name,
			"latency_ms", elapsed.Milliseconds(),
			"error", err,
		)
		return models.ArtifactResult{}, &attemptError{provider: desc.Name, err: err}
	}

	c.routing.RecordSuccess(desc.Name, elapsed)
	art.ProducedBy = desc.Name
	art.Fingerprint = sub.Fingerprint
	art.CacheHit = false
	art.Cause = ""
	art.LatencyMs = elapsed.Milliseconds()
	return art, nil
}

func (c *Coordinator) firstAttemptDeadline(ctx context.Context) time.Time {
	deadline, ok := ctx.Deadline()
	now := time.Now()
	if !ok {
		return now.Add(time.Duration(float64(c.settings.SubRequestTimeout) * c.settings.FirstAttemptShare))
	}
	return now.Add(time.Duration(float64(deadline.Sub(now)) * c.settings.FirstAttemptShare))
}

func (c *Coordinator) served(sub models.SubRequest, start time.Time, reservation quota.Reservation, art models.ArtifactResult, cacheHit bool, calls *callLog) slotOutcome {
	art.ContentType = sub.ContentType
	art.Fingerprint = sub.Fingerprint
	art.CacheHit = cacheHit
	art.Cause = ""
	art.LatencyMs = time.Since(start).Milliseconds()

	outcome := models.OutcomeServed
	if cacheHit {
		outcome = models.OutcomeCacheHit
	}
	ev := newUsageEvent(sub, models.UsageGeneration, outcome, time.Now())
	ev.Provider = art.ProducedBy
	ev.Units = quotaUnit
	ev.Cost = calls.cost()
	ev.LatencyMs = art.LatencyMs
	ev.CacheHit = cacheHit

	usage, failed := calls.snapshot()
	return slotOutcome{
		artifact:    art,
		usage:       append([]models.UsageEvent{ev}, usage...),
		reservation: &reservation,
		failed:      failed,
	}
}

func (c *Coordinator) degrade(ctx context.Context, sub models.SubRequest, start time.Time, cause, attempted, outcome string) slotOutcome {
	art := c.fallback.Degrade(ctx, sub, cause, attempted)
	art.LatencyMs = time.Since(start).Milliseconds()

	ev := newUsageEvent(sub, models.UsageGeneration, outcome, time.Now())
	ev.Provider = models.ProducedByFallback
	ev.LatencyMs = art.LatencyMs
	return slotOutcome{artifact: art, usage: []models.UsageEvent{ev}}
}

// release gives back a reservation. It runs even after the request context ends.
func (c *Coordinator) release(ctx context.Context, sub models.SubRequest, r quota.Reservation) {
	if err := c.ledger.Release(context.WithoutCancel(ctx), r); err != nil {
		c.logger.ErrorContext(ctx, "failed to release quota",
			"request_id", sub.RequestID,
			"content_type", sub.ContentType,
			"period", r.Period,
			"error", err,
		)
	}
}

// discard handles a sub-request that finished after its slot was force-finalized.
func (c *Coordinator) discard(ctx context.Context, sub models.SubRequest, out slotOutcome) {
	if out.reservation != nil {
		c.release(ctx, sub, *out.reservation)
	}
	c.logger.InfoContext(ctx, "late sub-request result discarded",
		"request_id", sub.RequestID,
		"content_type", sub.ContentType,
		"produced_by", out.artifact.ProducedBy,
	)
}

func (c *Coordinator) record(ctx context.Context, result models.GenerationResult) {
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
		defer cancel()
		if err := c.recorder.Record(rctx, result); err != nil {
			c.logger.ErrorContext(rctx, "failed to record generation result",
				"request_id", result.RequestID,
				"error", err,
			)
		}
	}()
}

func aggregate(req models.GenerationRequest, start time.Time, outs []slotOutcome) models.GenerationResult {
	done := time.Now()
	res := models.GenerationResult{
		RequestID:      req.ID,
		RequesterID:    req.RequesterID,
		Artifacts:      make([]models.ArtifactResult, 0, len(outs)),
		StartedAt:      start.UTC(),
		CompletedAt:    done.UTC(),
		TotalLatencyMs: done.Sub(start).Milliseconds(),
	}
	for _, o := range outs {
		res.Artifacts = append(res.Artifacts, o.artifact)
		if o.artifact.Degraded() {
			res.FallbackCount++
		} else {
			res.RealProviderCount++
		}
		if o.failed {
			res.FailedCount++
		}
		res.Usage = append(res.Usage, o.usage...)
	}
	return res
}
