package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/HanTheDev/content-gateway/internal/models"
)

const placeholderHost = "https://placeholder.local"

// Placeholder builds the deterministic stand-in artifact for sub. It touches no network and
// depends on nothing but sub, so the same sub-request always yields the same artifact.
func Placeholder(sub models.SubRequest) models.ArtifactResult {
	id := shortID(sub.Fingerprint)
	subject := summarize(sub.Prompt, 60)
	art := models.ArtifactResult{ContentType: sub.ContentType, Fingerprint: sub.Fingerprint}

	switch sub.ContentType {
	case models.ContentBlog:
		title := "[Placeholder] " + subject
		body := fmt.Sprintf("# %s\n\n> Placeholder article. The writing backend was unavailable, so this draft was generated locally.\n\n%s\n", title, sub.Prompt)
		blog, err := FinishBlog(title, body, []string{"placeholder"}, nil)
		if err != nil {
			blog = &models.BlogArtifact{Title: title, Body: body, Tags: []string{"placeholder"}, SEOKeywords: []string{"placeholder"}, ReadingTimeMinutes: 1}
		}
		art.Blog = blog
	case models.ContentImage:
		art.Image = &models.ImageArtifact{
			URL:         fmt.Sprintf("%s/image/%s.png", placeholderHost, id),
			Description: "[Placeholder image] " + subject,
			Width:       1024,
			Height:      1024,
		}
	case models.ContentVideo:
		art.Video = &models.VideoArtifact{
			URL:             fmt.Sprintf("%s/video/%s.mp4", placeholderHost, id),
			DurationSeconds: videoDuration(sub.Options),
			Description:     "[Placeholder video] " + subject,
			ThumbnailURL:    fmt.Sprintf("%s/video/%s.jpg", placeholderHost, id),
		}
	case models.ContentPodcast:
		script := fmt.Sprintf("HOST A: Welcome back. Today we are looking at %s.\nHOST B: This is a placeholder script; the full episode will follow.\n", subject)
		podcast, err := FinishPodcast(script, "", "[Placeholder podcast] "+subject)
		if err != nil {
			podcast = &models.PodcastArtifact{Script: script, DurationSeconds: 60, Description: "[Placeholder podcast] " + subject}
		}
		art.Podcast = podcast
	}
	return art
}

func shortID(fp string) string {
	if len(fp) >= 12 {
		return fp[:12]
	}
	if fp == "" {
		return "unknown"
	}
	return fp
}

// Mock serves placeholders under its own name. With zero latency it never fails and never
// blocks; a non-zero latency simulates a backend for local runs and still honours ctx.
type Mock struct {
	name string
	caps Capabilities
}

func NewMock(name string, caps Capabilities) *Mock {
	return &Mock{name: name, caps: caps}
}

func (m *Mock) Name() string               { return m.name }
func (m *Mock) Capabilities() Capabilities { return m.caps }

func (m *Mock) Generate(ctx context.Context, sub models.SubRequest) (models.ArtifactResult, error) {
	if !supports(m.caps, sub.ContentType) {
		return models.ArtifactResult{}, fmt.Errorf("%s: %w: %s", m.name, ErrUnsupportedContent, sub.ContentType)
	}

	if d := m.caps.AverageLatency; d > 0 {
		start := time.Now()
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return models.ArtifactResult{}, classify(ctx, m.name, start, ctx.Err())
		}
	}

	art := Placeholder(sub)
	art.ProducedBy = m.name
	return art, nil
}
