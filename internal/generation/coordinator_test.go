package generation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HanTheDev/content-gateway/internal/cache"
	"github.com/HanTheDev/content-gateway/internal/config"
	"github.com/HanTheDev/content-gateway/internal/events"
	"github.com/HanTheDev/content-gateway/internal/fallback"
	"github.com/HanTheDev/content-gateway/internal/logger"
	"github.com/HanTheDev/content-gateway/internal/models"
	"github.com/HanTheDev/content-gateway/internal/provider"
	"github.com/HanTheDev/content-gateway/internal/quota"
	"github.com/HanTheDev/content-gateway/internal/routing"
)

// stubProvider counts calls and delegates to behave, defaulting to a placeholder after delay.
type stubProvider struct {
	name   string
	caps   provider.Capabilities
	delay  time.Duration
	behave func(ctx context.Context, sub models.SubRequest) (models.ArtifactResult, error)
	calls  atomic.Int32
}

func newStub(name string, quality float64, types ...models.ContentType) *stubProvider {
	return &stubProvider{
		name: name,
		caps: provider.Capabilities{
			ContentTypes:   types,
			CostPerCall:    0.01,
			QualityScore:   quality,
			AverageLatency: 10 * time.Millisecond,
		},
	}
}

func (s *stubProvider) Name() string                        { return s.name }
func (s *stubProvider) Capabilities() provider.Capabilities { return s.caps }

func (s *stubProvider) Generate(ctx context.Context, sub models.SubRequest) (models.ArtifactResult, error) {
	s.calls.Add(1)
	if s.behave != nil {
		return s.behave(ctx, sub)
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return models.ArtifactResult{}, &provider.TimeoutError{Provider: s.name, Elapsed: s.delay}
		}
	}
	art := provider.Placeholder(sub)
	art.ProducedBy = s.name
	return art, nil
}

// hang blocks until ctx ends, the way a stuck backend behind a well-behaved adapter does.
func hang(name string) func(context.Context, models.SubRequest) (models.ArtifactResult, error) {
	return func(ctx context.Context, _ models.SubRequest) (models.ArtifactResult, error) {
		start := time.Now()
		<-ctx.Done()
		if errors.Is(ctx.Err(), context.Canceled) {
			return models.ArtifactResult{}, context.Canceled
		}
		return models.ArtifactResult{}, &provider.TimeoutError{Provider: name, Elapsed: time.Since(start)}
	}
}

type harness struct {
	coord    *Coordinator
	ledger   *quota.MemoryLedger
	cache    *cache.Cache
	policy   *routing.Policy
	recorder *MemoryRecorder
	failures *events.Collector
}

var testSettings = config.GenerationConfig{
	OverallTimeout:    2 * time.Second,
	SubRequestTimeout: time.Second,
	VideoTimeout:      1500 * time.Millisecond,
	FirstAttemptShare: 0.6,
}

var generousLimits = map[models.ContentType]int{
	models.ContentBlog: 100, models.ContentImage: 100, models.ContentVideo: 100, models.ContentPodcast: 100,
}

func newHarness(t *testing.T, settings config.GenerationConfig, limits map[models.ContentType]int, providers ...provider.Provider) *harness {
	t.Helper()
	log := logger.Discard()

	registry, err := provider.NewRegistry(providers...)
	require.NoError(t, err)

	catalog := &config.Catalog{Plans: map[string]config.PlanSpec{
		config.DefaultPlan: {Limits: limits, Urgency: 1},
	}}
	ledger := quota.NewMemoryLedger(quota.Limits{Plans: catalog.QuotaLimits(), Default: config.DefaultPlan})
	resultCache := cache.New(64, cache.TTLs{
		models.ContentBlog:    time.Hour,
		models.ContentImage:   time.Hour,
		models.ContentVideo:   time.Hour,
		models.ContentPodcast: time.Hour,
	}, cache.WithLogger(log))
	policy := routing.NewPolicy(routing.Settings{
		FailureThreshold:        3,
		FailureWindow:           time.Minute,
		Cooldown:                time.Minute,
		LatencyPenaltyPerSecond: 0.05,
	}, routing.WithLogger(log))

	failures := events.NewCollector(0)
	emitter := events.NewInMemoryEmitter(log)
	emitter.RegisterHandler(failures)
	recorder := NewMemoryRecorder()

	coord, err := NewCoordinator(Deps{
		Providers: registry,
		Ledger:    ledger,
		Cache:     resultCache,
		Routing:   policy,
		Fallback:  fallback.NewHandler(emitter, log),
		Catalog:   catalog,
		Recorder:  recorder,
		Logger:    log,
	}, settings)
	require.NoError(t, err)

	return &harness{coord: coord, ledger: ledger, cache: resultCache, policy: policy, recorder: recorder, failures: failures}
}

func (h *harness) used(t *testing.T, user string, feature models.ContentType) int {
	t.Helper()
	st, err := h.ledger.State(context.Background(), user, config.DefaultPlan, feature)
	require.NoError(t, err)
	return st.Used
}

func request(desc string) models.GenerationRequest {
	return models.GenerationRequest{
		ProductDescription: desc,
		RequesterID:        "user-1",
		Options:            models.Options{VideoDurationSeconds: 30},
	}
}

func fourStubs() (blog, image, video, podcast *stubProvider) {
	return newStub("writer", 0.8, models.ContentBlog),
		newStub("painter", 0.8, models.ContentImage),
		newStub("director", 0.8, models.ContentVideo),
		newStub("narrator", 0.8, models.ContentPodcast)
}

func assertOnePerType(t *testing.T, res models.GenerationResult, types []models.ContentType) {
	t.Helper()
	require.Len(t, res.Artifacts, len(types))
	for i, c := range types {
		assert.Equal(t, c, res.Artifacts[i].ContentType)
		assert.NoError(t, res.Artifacts[i].Validate())
	}
}

func TestGenerate_AllProvidersSucceed(t *testing.T) {
	blog, image, video, podcast := fourStubs()
	h := newHarness(t, testSettings, generousLimits, blog, image, video, podcast)

	res, err := h.coord.Generate(context.Background(), request("Stainless steel water bottle"))
	require.NoError(t, err)

	assertOnePerType(t, res, models.AllContentTypes)
	assert.Equal(t, 4, res.RealProviderCount)
	assert.Equal(t, 0, res.FallbackCount)
	assert.Equal(t, 0, res.FailedCount)
	assert.NotEmpty(t, res.RequestID)
	assert.Equal(t, "user-1", res.RequesterID)

	for _, a := range res.Artifacts {
		assert.False(t, a.CacheHit)
		assert.NotEqual(t, models.ProducedByFallback, a.ProducedBy)
		assert.Len(t, a.Fingerprint, 64)
	}
	for _, s := range []*stubProvider{blog, image, video, podcast} {
		assert.Equal(t, int32(1), s.calls.Load(), s.name)
	}

	var generations, calls int
	for _, ev := range res.Usage {
		switch ev.Kind {
		case models.UsageGeneration:
			generations++
			assert.Equal(t, models.OutcomeServed, ev.Outcome)
			assert.Equal(t, 1, ev.Units)
		case models.UsageProviderCall:
			calls++
			assert.Equal(t, models.OutcomeSucceeded, ev.Outcome)
			assert.InDelta(t, 0.01, ev.Cost, 1e-9)
		}
	}
	assert.Equal(t, 4, generations)
	assert.Equal(t, 4, calls)

	h.coord.Drain()
	recorded := h.recorder.Results()
	require.Len(t, recorded, 1)
	assert.Equal(t, res.RequestID, recorded[0].RequestID)
	assert.Empty(t, h.failures.Events())
}

func TestGenerate_AllProvidersUnhealthy(t *testing.T) {
	blog, image, video, podcast := fourStubs()
	h := newHarness(t, testSettings, generousLimits, blog, image, video, podcast)

	for _, name := range []string{"writer", "painter", "director", "narrator"} {
		for i := 0; i < 3; i++ {
			h.policy.RecordFailure(name)
		}
	}

	start := time.Now()
	res, err := h.coord.Generate(context.Background(), request("Foldable camping chair"))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), testSettings.OverallTimeout)

	assertOnePerType(t, res, models.AllContentTypes)
	assert.Equal(t, 4, res.FallbackCount)
	assert.Equal(t, 0, res.RealProviderCount)
	for _, a := range res.Artifacts {
		assert.Equal(t, fallback.CauseRoutingExhausted, a.Cause)
	}
	for _, s := range []*stubProvider{blog, image, video, podcast} {
		assert.Zero(t, s.calls.Load())
	}
	for _, c := range models.AllContentTypes {
		assert.Zero(t, h.used(t, "user-1", c), "quota is released when routing finds nothing")
	}
	assert.Len(t, h.failures.Events(), 4)
}

func TestGenerate_NoProvidersRegistered(t *testing.T) {
	h := newHarness(t, testSettings, generousLimits)

	res, err := h.coord.Generate(context.Background(), request("Ceramic pour-over coffee set"))
	require.NoError(t, err)
	assertOnePerType(t, res, models.AllContentTypes)
	assert.Equal(t, 4, res.FallbackCount)
}

func TestGenerate_ConcurrentIdenticalRequestsShareOneCall(t *testing.T) {
	writer := newStub("writer", 0.8, models.ContentBlog)
	writer.delay = 150 * time.Millisecond
	h := newHarness(t, testSettings, generousLimits, writer)

	req := request("Ergonomic office chair")
	req.ContentTypes = []models.ContentType{models.ContentBlog}

	var wg sync.WaitGroup
	results := make([]models.GenerationResult, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := req
			r.RequesterID = []string{"alice", "bob"}[i]
			res, err := h.coord.Generate(context.Background(), r)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), writer.calls.Load())
	hits := 0
	for _, res := range results {
		require.Len(t, res.Artifacts, 1)
		assert.Equal(t, "writer", res.Artifacts[0].ProducedBy)
		if res.Artifacts[0].CacheHit {
			hits++
		}
	}
	assert.Equal(t, 1, hits, "the waiter reuses the leader's artifact")
	assert.Equal(t, 1, h.used(t, "alice", models.ContentBlog))
	assert.Equal(t, 1, h.used(t, "bob", models.ContentBlog))
}

func TestGenerate_QuotaLimit(t *testing.T) {
	writer := newStub("writer", 0.8, models.ContentBlog)
	limits := map[models.ContentType]int{models.ContentBlog: 2}
	h := newHarness(t, testSettings, limits, writer)

	for i, desc := range []string{"Bamboo toothbrush", "Linen bed sheets", "Cast iron skillet"} {
		req := request(desc)
		req.ContentTypes = []models.ContentType{models.ContentBlog}

		res, err := h.coord.Generate(context.Background(), req)
		require.NoError(t, err, "quota denial is never a request error")
		require.Len(t, res.Artifacts, 1)

		if i < 2 {
			assert.Equal(t, "writer", res.Artifacts[0].ProducedBy)
			continue
		}
		assert.True(t, res.Artifacts[0].Degraded())
		assert.Equal(t, fallback.CauseQuotaExceeded, res.Artifacts[0].Cause)
		require.Len(t, res.Usage, 1, "denied sub-requests make no provider call")
		assert.Equal(t, models.OutcomeQuotaDenied, res.Usage[0].Outcome)
		assert.Zero(t, res.Usage[0].Units)
	}

	assert.Equal(t, int32(2), writer.calls.Load())
	assert.Equal(t, 2, h.used(t, "user-1", models.ContentBlog))
}

type unavailableLedger struct{ quota.Ledger }

func (unavailableLedger) CheckAndReserve(context.Context, string, string, models.ContentType, int) (quota.Reservation, error) {
	return quota.Reservation{}, errors.New("ledger unavailable")
}

func TestGenerate_QuotaLedgerFailureDenies(t *testing.T) {
	writer := newStub("writer", 0.8, models.ContentBlog)
	h := newHarness(t, testSettings, generousLimits, writer)
	h.coord.ledger = unavailableLedger{Ledger: h.ledger}

	req := request("Ceramic pour over")
	req.ContentTypes = []models.ContentType{models.ContentBlog}
	res, err := h.coord.Generate(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, res.Artifacts, 1)
	assert.Equal(t, fallback.CauseQuotaExceeded, res.Artifacts[0].Cause)
	assert.Equal(t, models.OutcomeQuotaDenied, res.Usage[0].Outcome)
	assert.Zero(t, writer.calls.Load())
}

func TestGenerate_SecondCallHitsCache(t *testing.T) {
	blog, image, video, podcast := fourStubs()
	h := newHarness(t, testSettings, generousLimits, blog, image, video, podcast)

	first, err := h.coord.Generate(context.Background(), request("Noise cancelling headphones"))
	require.NoError(t, err)
	second, err := h.coord.Generate(context.Background(), request("  noise   CANCELLING headphones "))
	require.NoError(t, err)

	for i, a := range second.Artifacts {
		assert.True(t, a.CacheHit, a.ContentType)
		assert.Equal(t, first.Artifacts[i].ProducedBy, a.ProducedBy)
		assert.Equal(t, first.Artifacts[i].Fingerprint, a.Fingerprint)
	}
	assert.Equal(t, 4, second.RealProviderCount)
	for _, s := range []*stubProvider{blog, image, video, podcast} {
		assert.Equal(t, int32(1), s.calls.Load(), s.name)
	}
	for _, c := range models.AllContentTypes {
		assert.Equal(t, 2, h.used(t, "user-1", c), "cache hits are charged")
	}
}

func TestGenerate_HangingProviderTimesOut(t *testing.T) {
	blog, image, _, podcast := fourStubs()
	video := newStub("director", 0.8, models.ContentVideo)
	video.behave = hang("director")

	settings := testSettings
	settings.OverallTimeout = 400 * time.Millisecond
	settings.VideoTimeout = 200 * time.Millisecond
	h := newHarness(t, settings, generousLimits, blog, image, video, podcast)

	start := time.Now()
	res, err := h.coord.Generate(context.Background(), request("Smart thermostat"))
	elapsed := time.Since(start)
	require.NoError(t, err)

	assert.Less(t, elapsed, settings.OverallTimeout+200*time.Millisecond)
	assertOnePerType(t, res, models.AllContentTypes)

	v, ok := res.Artifact(models.ContentVideo)
	require.True(t, ok)
	assert.True(t, v.Degraded())
	assert.Equal(t, fallback.CauseTimeout, v.Cause)
	assert.Equal(t, 3, res.RealProviderCount)
	assert.Equal(t, 1, res.FallbackCount)

	assert.Eventually(t, func() bool {
		return h.used(t, "user-1", models.ContentVideo) == 0
	}, time.Second, 10*time.Millisecond, "timed-out sub-request gives its quota back")
}

func TestGenerate_OverallDeadlineForcesUnfinishedSlots(t *testing.T) {
	// This backend ignores its context entirely.
	stuck := newStub("stuck", 0.8, models.ContentBlog)
	stuck.behave = func(context.Context, models.SubRequest) (models.ArtifactResult, error) {
		time.Sleep(600 * time.Millisecond)
		return models.ArtifactResult{}, errors.New("too late")
	}

	settings := testSettings
	settings.OverallTimeout = 150 * time.Millisecond
	h := newHarness(t, settings, generousLimits, stuck)

	req := request("Electric kettle")
	req.ContentTypes = []models.ContentType{models.ContentBlog}

	start := time.Now()
	res, err := h.coord.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 400*time.Millisecond)

	require.Len(t, res.Artifacts, 1)
	assert.Equal(t, fallback.CauseTimeout, res.Artifacts[0].Cause)
	assert.Eventually(t, func() bool {
		return h.used(t, "user-1", models.ContentBlog) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestGenerate_RetriesTransientFailureOnNextProvider(t *testing.T) {
	primary := newStub("primary", 0.9, models.ContentBlog)
	primary.behave = func(context.Context, models.SubRequest) (models.ArtifactResult, error) {
		return models.ArtifactResult{}, &provider.ProviderError{Provider: "primary", StatusCode: 503, Transient: true, Err: errors.New("unavailable")}
	}
	secondary := newStub("secondary", 0.5, models.ContentBlog)
	h := newHarness(t, testSettings, generousLimits, primary, secondary)

	req := request("Standing desk")
	req.ContentTypes = []models.ContentType{models.ContentBlog}
	res, err := h.coord.Generate(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, res.Artifacts, 1)
	assert.Equal(t, "secondary", res.Artifacts[0].ProducedBy)
	assert.Equal(t, 1, res.FailedCount)
	assert.Equal(t, 1, res.RealProviderCount)
	assert.Equal(t, int32(1), primary.calls.Load())
	assert.Equal(t, int32(1), secondary.calls.Load())

	var outcomes []string
	for _, ev := range res.Usage {
		if ev.Kind == models.UsageProviderCall {
			outcomes = append(outcomes, ev.Provider+":"+ev.Outcome)
		}
	}
	assert.Equal(t, []string{"primary:failed", "secondary:succeeded"}, outcomes)
	assert.Equal(t, 1, h.policy.Health("primary").ConsecutiveFailures)
}

func TestGenerate_RetryFailureDegrades(t *testing.T) {
	failing := func(name string) *stubProvider {
		s := newStub(name, 0.8, models.ContentImage)
		s.behave = func(context.Context, models.SubRequest) (models.ArtifactResult, error) {
			return models.ArtifactResult{}, &provider.ProviderError{Provider: name, StatusCode: 500, Transient: true, Err: errors.New("boom")}
		}
		return s
	}
	a, b, c := failing("a"), failing("b"), failing("c")
	h := newHarness(t, testSettings, generousLimits, a, b, c)

	req := request("Wool socks")
	req.ContentTypes = []models.ContentType{models.ContentImage}
	res, err := h.coord.Generate(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, res.Artifacts, 1)
	assert.Equal(t, fallback.CauseProviderError, res.Artifacts[0].Cause)
	assert.Equal(t, int32(2), a.calls.Load()+b.calls.Load()+c.calls.Load(), "one call plus at most one retry")
	assert.Zero(t, h.used(t, "user-1", models.ContentImage))

	evs := h.failures.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, "b", evs[0].ProviderAttempted)
}

func TestGenerate_NonTransientFailureIsNotRetried(t *testing.T) {
	primary := newStub("primary", 0.9, models.ContentPodcast)
	primary.behave = func(context.Context, models.SubRequest) (models.ArtifactResult, error) {
		return models.ArtifactResult{}, &provider.ProviderError{Provider: "primary", StatusCode: 400, Transient: false, Err: errors.New("bad request")}
	}
	secondary := newStub("secondary", 0.5, models.ContentPodcast)
	h := newHarness(t, testSettings, generousLimits, primary, secondary)

	req := request("Trail running shoes")
	req.ContentTypes = []models.ContentType{models.ContentPodcast}
	res, err := h.coord.Generate(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, res.Artifacts[0].Degraded())
	assert.Equal(t, fallback.CauseProviderError, res.Artifacts[0].Cause)
	assert.Zero(t, secondary.calls.Load())
}

func TestGenerate_FirstAttemptLeavesTimeForRetry(t *testing.T) {
	slow := newStub("slow", 0.9, models.ContentBlog)
	slow.behave = hang("slow")
	backup := newStub("backup", 0.5, models.ContentBlog)
	h := newHarness(t, testSettings, generousLimits, slow, backup)

	req := request("Cordless drill")
	req.ContentTypes = []models.ContentType{models.ContentBlog}
	res, err := h.coord.Generate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "backup", res.Artifacts[0].ProducedBy)
	assert.Less(t, res.TotalLatencyMs, testSettings.SubRequestTimeout.Milliseconds())

	var slowOutcome string
	for _, ev := range res.Usage {
		if ev.Provider == "slow" && ev.Kind == models.UsageProviderCall {
			slowOutcome = ev.Outcome
		}
	}
	assert.Equal(t, models.OutcomeTimeout, slowOutcome)
}

func TestGenerate_FirstAttemptKeepsFullDeadlineWithoutRetryTarget(t *testing.T) {
	slow := newStub("slow", 0.9, models.ContentBlog)
	slow.delay = 700 * time.Millisecond
	backup := newStub("backup", 0.5, models.ContentBlog)
	h := newHarness(t, testSettings, generousLimits, slow, backup)

	for i := 0; i < 3; i++ {
		h.policy.RecordFailure("backup")
	}

	req := request("Standing desk converter")
	req.ContentTypes = []models.ContentType{models.ContentBlog}
	res, err := h.coord.Generate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "slow", res.Artifacts[0].ProducedBy)
	assert.Equal(t, 0, res.FailedCount)
	assert.Zero(t, backup.calls.Load())
}

func TestGenerate_SharedCallSurvivesOtherRequesterCancelling(t *testing.T) {
	blog, image, video, podcast := fourStubs()
	stubs := []*stubProvider{blog, image, video, podcast}
	for _, s := range stubs {
		s.delay = 300 * time.Millisecond
	}
	h := newHarness(t, testSettings, generousLimits, blog, image, video, podcast)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan models.GenerationResult, 1)
	go func() {
		res, err := h.coord.Generate(ctx, request("Noise cancelling headphones"))
		assert.NoError(t, err)
		first <- res
	}()
	time.Sleep(50 * time.Millisecond)
	time.AfterFunc(50*time.Millisecond, cancel)

	second := request("Noise cancelling headphones")
	second.RequesterID = "user-2"
	res, err := h.coord.Generate(context.Background(), second)
	require.NoError(t, err)

	assertOnePerType(t, res, models.AllContentTypes)
	assert.Equal(t, 4, res.RealProviderCount)
	assert.Equal(t, 0, res.FallbackCount)
	assert.Equal(t, 0, res.FailedCount)
	for _, a := range res.Artifacts {
		assert.True(t, a.CacheHit, "second requester reuses the running call")
	}

	cancelled := <-first
	for _, a := range cancelled.Artifacts {
		assert.Equal(t, fallback.CauseCancelled, a.Cause)
	}

	for _, s := range stubs {
		assert.Equal(t, int32(1), s.calls.Load(), s.name)
		assert.Zero(t, h.policy.Health(s.name).Failures, s.name)
	}
	for _, c := range models.AllContentTypes {
		assert.Eventually(t, func() bool { return h.used(t, "user-1", c) == 0 }, time.Second, 10*time.Millisecond)
		assert.Equal(t, 1, h.used(t, "user-2", c))
	}
}

func TestGenerate_CallerCancellation(t *testing.T) {
	blog, image, video, podcast := fourStubs()
	for _, s := range []*stubProvider{blog, image, video, podcast} {
		s.behave = hang(s.name)
	}
	h := newHarness(t, testSettings, generousLimits, blog, image, video, podcast)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	res, err := h.coord.Generate(ctx, request("Portable projector"))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)

	assertOnePerType(t, res, models.AllContentTypes)
	for _, a := range res.Artifacts {
		assert.True(t, a.Degraded())
		assert.Equal(t, fallback.CauseCancelled, a.Cause)
	}
	for _, c := range models.AllContentTypes {
		assert.Eventually(t, func() bool { return h.used(t, "user-1", c) == 0 }, time.Second, 10*time.Millisecond)
	}
	for _, name := range []string{"writer", "painter", "director", "narrator"} {
		assert.Zero(t, h.policy.Health(name).Failures, "cancellation is not held against the provider")
	}
}

func TestGenerate_ExampleScenarioRunsConcurrently(t *testing.T) {
	blog, image, video, podcast := fourStubs()
	blog.delay = 60 * time.Millisecond
	image.delay = 90 * time.Millisecond
	video.delay = 120 * time.Millisecond
	podcast.delay = 150 * time.Millisecond
	h := newHarness(t, testSettings, generousLimits, blog, image, video, podcast)

	res, err := h.coord.Generate(context.Background(), models.GenerationRequest{
		ProductDescription: "Wireless earbuds with noise cancellation",
		RequesterID:        "user-1",
		Options:            models.Options{VideoDurationSeconds: 30},
	})
	require.NoError(t, err)

	assert.Equal(t, 4, res.RealProviderCount)
	assert.GreaterOrEqual(t, res.TotalLatencyMs, int64(150))
	assert.Less(t, res.TotalLatencyMs, int64(60+90+120+150), "sub-requests run concurrently")

	v, ok := res.Artifact(models.ContentVideo)
	require.True(t, ok)
	assert.Equal(t, 30, v.Video.DurationSeconds)
}

func TestGenerate_ProgressFiresOncePerType(t *testing.T) {
	blog, image, video, podcast := fourStubs()
	h := newHarness(t, testSettings, generousLimits, blog, image, video, podcast)

	var mu sync.Mutex
	seen := map[models.ContentType]int{}
	_, err := h.coord.Generate(context.Background(), request("Yoga mat"),
		OnSubRequestFinalized(func(c models.ContentType, a models.ArtifactResult) {
			mu.Lock()
			defer mu.Unlock()
			seen[c]++
			assert.Equal(t, c, a.ContentType)
		}))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 4)
	for c, n := range seen {
		assert.Equal(t, 1, n, c)
	}
}

func TestGenerate_SubsetKeepsCanonicalOrder(t *testing.T) {
	blog, image, video, podcast := fourStubs()
	h := newHarness(t, testSettings, generousLimits, blog, image, video, podcast)

	req := request("Leather wallet")
	req.ContentTypes = []models.ContentType{models.ContentPodcast, models.ContentBlog}
	res, err := h.coord.Generate(context.Background(), req)
	require.NoError(t, err)

	assertOnePerType(t, res, []models.ContentType{models.ContentBlog, models.ContentPodcast})
	assert.Zero(t, image.calls.Load())
	assert.Zero(t, video.calls.Load())
}

func TestGenerate_InvalidArtifactCountsAsFailure(t *testing.T) {
	broken := newStub("broken", 0.9, models.ContentBlog)
	broken.behave = func(context.Context, models.SubRequest) (models.ArtifactResult, error) {
		return models.ArtifactResult{ContentType: models.ContentBlog}, nil
	}
	h := newHarness(t, testSettings, generousLimits, broken)

	req := request("Desk lamp")
	req.ContentTypes = []models.ContentType{models.ContentBlog}
	res, err := h.coord.Generate(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, res.Artifacts[0].Degraded())
	assert.Equal(t, 1, res.FailedCount)
	_, cached := h.cache.Get(context.Background(), res.Artifacts[0].Fingerprint)
	assert.False(t, cached)
}

func TestGenerate_ValidationErrors(t *testing.T) {
	h := newHarness(t, testSettings, generousLimits, newStub("writer", 0.8, models.ContentBlog))

	tests := []struct {
		name      string
		mutate    func(r *models.GenerationRequest)
		wantField string
	}{
		{"empty_description", func(r *models.GenerationRequest) { r.ProductDescription = "" }, "product_description"},
		{"whitespace_description", func(r *models.GenerationRequest) { r.ProductDescription = " \n\t " }, "product_description"},
		{"too_long", func(r *models.GenerationRequest) { r.ProductDescription = strings.Repeat("é", 1001) }, "product_description"},
		{"bad_video_duration", func(r *models.GenerationRequest) { r.Options.VideoDurationSeconds = 20 }, "options.video_duration_seconds"},
		{"missing_requester", func(r *models.GenerationRequest) { r.RequesterID = " " }, "requester_id"},
		{"unknown_content_type", func(r *models.GenerationRequest) {
			r.ContentTypes = []models.ContentType{"hologram"}
		}, "content_types[0]"},
		{"duplicate_content_type", func(r *models.GenerationRequest) {
			r.ContentTypes = []models.ContentType{models.ContentBlog, models.ContentBlog}
		}, "content_types"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := request("Valid product")
			tt.mutate(&req)

			_, err := h.coord.Generate(context.Background(), req)
			require.Error(t, err)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.wantField, ve.Field)
		})
	}

	assert.Empty(t, h.failures.Events(), "rejected requests start no sub-requests")
}

func TestNewCoordinator_MissingDependencies(t *testing.T) {
	_, err := NewCoordinator(Deps{}, testSettings)
	assert.ErrorIs(t, err, ErrMissingDependency)
}
