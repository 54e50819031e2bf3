package models

import (
	"fmt"
	"time"
)

type ContentType string

const (
	ContentBlog    ContentType = "blog"
	ContentImage   ContentType = "image"
	ContentVideo   ContentType = "video"
	ContentPodcast ContentType = "podcast"
)

// AllContentTypes is the fixed order artifacts appear in a GenerationResult.
var AllContentTypes = []ContentType{ContentBlog, ContentImage, ContentVideo, ContentPodcast}

func (c ContentType) Valid() bool {
	switch c {
	case ContentBlog, ContentImage, ContentVideo, ContentPodcast:
		return true
	}
	return false
}

func ParseContentType(s string) (ContentType, error) {
	c := ContentType(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown content type %q", s)
	}
	return c, nil
}

// ProducedByFallback tags artifacts built by the degradation path.
const ProducedByFallback = "fallback"

type Options struct {
	ImageStyle           string `json:"image_style,omitempty"`
	VideoDurationSeconds int    `json:"video_duration_seconds,omitempty" validate:"omitempty,oneof=15 30 60"`
	VoiceStyle           string `json:"voice_style,omitempty"`
	Language             string `json:"language,omitempty" validate:"omitempty,min=2,max=16"`
}

type GenerationRequest struct {
	ID                 string        `json:"id"`
	ProductDescription string        `json:"product_description" validate:"required,max=1000"`
	Options            Options       `json:"options"`
	RequesterID        string        `json:"requester_id" validate:"required"`
	PlanTier           string        `json:"plan_tier,omitempty"`
	ContentTypes       []ContentType `json:"content_types,omitempty" validate:"omitempty,unique,dive,oneof=blog image video podcast"`
	SubmittedAt        time.Time     `json:"submitted_at"`
}

// SubRequest is one content type's share of a GenerationRequest.
type SubRequest struct {
	RequestID     string      `json:"request_id"`
	RequesterID   string      `json:"requester_id"`
	ContentType   ContentType `json:"content_type"`
	Fingerprint   string      `json:"fingerprint"`
	Prompt        string      `json:"prompt"`
	Options       Options     `json:"options"`
	QualityTier   float64     `json:"quality_tier"`
	BudgetCeiling float64     `json:"budget_ceiling"`
	Urgency       float64     `json:"urgency"`
	Deadline      time.Time   `json:"deadline"`
}

type ProviderDescriptor struct {
	Name           string                   `json:"name"`
	SupportedTypes map[ContentType]struct{} `json:"-"`
	CostPerCall    float64                  `json:"cost_per_call"`
	AverageLatency time.Duration            `json:"average_latency"`
	QualityScore   float64                  `json:"quality_score"`
	IsHealthy      bool                     `json:"is_healthy"`
}

func (d ProviderDescriptor) Supports(c ContentType) bool {
	_, ok := d.SupportedTypes[c]
	return ok
}

func NewTypeSet(types ...ContentType) map[ContentType]struct{} {
	set := make(map[ContentType]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return set
}

type BlogArtifact struct {
	Title              string   `json:"title"`
	Body               string   `json:"body"`
	HTML               string   `json:"html,omitempty"`
	Tags               []string `json:"tags"`
	SEOKeywords        []string `json:"seo_keywords"`
	ReadingTimeMinutes int      `json:"reading_time_minutes"`
}

type ImageArtifact struct {
	URL         string `json:"url"`
	Description string `json:"description"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

type VideoArtifact struct {
	URL             string `json:"url"`
	DurationSeconds int    `json:"duration_seconds"`
	Description     string `json:"description"`
	ThumbnailURL    string `json:"thumbnail_url"`
}

type PodcastArtifact struct {
	Script          string `json:"script"`
	AudioURL        string `json:"audio_url"`
	DurationSeconds int    `json:"duration_seconds"`
	Description     string `json:"description"`
}

// ArtifactResult carries exactly one of the four payloads, selected by ContentType.
type ArtifactResult struct {
	ContentType ContentType      `json:"content_type"`
	Blog        *BlogArtifact    `json:"blog,omitempty"`
	Image       *ImageArtifact   `json:"image,omitempty"`
	Video       *VideoArtifact   `json:"video,omitempty"`
	Podcast     *PodcastArtifact `json:"podcast,omitempty"`
	ProducedBy  string           `json:"produced_by"`
	CacheHit    bool             `json:"cache_hit"`
	LatencyMs   int64            `json:"latency_ms"`
	Cause       string           `json:"cause,omitempty"`
	Fingerprint string           `json:"fingerprint,omitempty"`
}

func (a ArtifactResult) Degraded() bool {
	return a.ProducedBy == ProducedByFallback
}

// Validate checks that the payload matches the content type and no other payload is set.
func (a ArtifactResult) Validate() error {
	set := 0
	for _, present := range []bool{a.Blog != nil, a.Image != nil, a.Video != nil, a.Podcast != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("artifact for %s carries %d payloads", a.ContentType, set)
	}
	var ok bool
	switch a.ContentType {
	case ContentBlog:
		ok = a.Blog != nil
	case ContentImage:
		ok = a.Image != nil
	case ContentVideo:
		ok = a.Video != nil
	case ContentPodcast:
		ok = a.Podcast != nil
	}
	if !ok {
		return fmt.Errorf("artifact payload does not match content type %s", a.ContentType)
	}
	return nil
}

type GenerationResult struct {
	RequestID         string           `json:"request_id"`
	RequesterID       string           `json:"requester_id"`
	Artifacts         []ArtifactResult `json:"artifacts"`
	StartedAt         time.Time        `json:"started_at"`
	CompletedAt       time.Time        `json:"completed_at"`
	TotalLatencyMs    int64            `json:"total_latency_ms"`
	RealProviderCount int              `json:"real_provider_count"`
	FallbackCount     int              `json:"fallback_count"`
	FailedCount       int              `json:"failed_count"`
	Usage             []UsageEvent     `json:"usage,omitempty"`
}

func (r GenerationResult) Artifact(c ContentType) (ArtifactResult, bool) {
	for _, a := range r.Artifacts {
		if a.ContentType == c {
			return a, true
		}
	}
	return ArtifactResult{}, false
}

type QuotaState struct {
	UserID    string      `json:"user_id"`
	Feature   ContentType `json:"feature"`
	PeriodKey string      `json:"period_key"`
	Used      int         `json:"used"`
	Limit     int         `json:"limit"`
}

func (q QuotaState) Remaining() int {
	if q.Used >= q.Limit {
		return 0
	}
	return q.Limit - q.Used
}

type CacheEntry struct {
	Fingerprint string         `json:"fingerprint"`
	Artifact    ArtifactResult `json:"artifact"`
	CreatedAt   time.Time      `json:"created_at"`
	ExpiresAt   time.Time      `json:"expires_at"`
}

type UsageKind string

const (
	UsageGeneration   UsageKind = "generation"
	UsageProviderCall UsageKind = "provider_call"
)

const (
	OutcomeServed      = "served"
	OutcomeCacheHit    = "cache_hit"
	OutcomeDegraded    = "degraded"
	OutcomeQuotaDenied = "quota_denied"

	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeTimeout   = "timeout"
)

type UsageEvent struct {
	ID        string      `json:"id"`
	RequestID string      `json:"request_id"`
	UserID    string      `json:"user_id"`
	Feature   ContentType `json:"feature"`
	PeriodKey string      `json:"period_key,omitempty"`
	Kind      UsageKind   `json:"kind"`
	Outcome   string      `json:"outcome"`
	Provider  string      `json:"provider,omitempty"`
	Units     int         `json:"units"`
	Cost      float64     `json:"cost"`
	LatencyMs int64       `json:"latency_ms"`
	CacheHit  bool        `json:"cache_hit"`
	At        time.Time   `json:"at"`
}

type FailureEvent struct {
	RequestID         string      `json:"request_id"`
	ContentType       ContentType `json:"content_type"`
	Cause             string      `json:"cause"`
	ProviderAttempted string      `json:"provider_attempted,omitempty"`
	At                time.Time   `json:"at"`
}

// UsageSummary aggregates usage rows for the admin API.
type UsageSummary struct {
	UserID        string      `json:"user_id"`
	Feature       ContentType `json:"feature"`
	Generations   int         `json:"generations"`
	CacheHits     int         `json:"cache_hits"`
	Degraded      int         `json:"degraded"`
	ProviderCalls int         `json:"provider_calls"`
	FailedCalls   int         `json:"failed_calls"`
	TotalCost     float64     `json:"total_cost"`
}
