package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/HanTheDev/content-gateway/internal/models"
)

type HTTPSettings struct {
	Name    string
	BaseURL string
	APIKey  string
	Caps    Capabilities
	Client  *http.Client
}

// HTTP talks to a generic JSON generation backend (video, image or audio vendors):
//
//	POST {base}/generate  {"content_type", "prompt", "options", "fingerprint"}
//
// The fingerprint doubles as the Idempotency-Key header.
type HTTP struct {
	name     string
	endpoint string
	apiKey   string
	caps     Capabilities
	client   *http.Client
}

type httpGenerateRequest struct {
	ContentType models.ContentType `json:"content_type"`
	Prompt      string             `json:"prompt"`
	Options     models.Options     `json:"options"`
	Fingerprint string             `json:"fingerprint"`
}

type httpGenerateResponse struct {
	Blog    *models.BlogArtifact    `json:"blog"`
	Image   *models.ImageArtifact   `json:"image"`
	Video   *models.VideoArtifact   `json:"video"`
	Podcast *models.PodcastArtifact `json:"podcast"`
}

func NewHTTP(cfg HTTPSettings) (*HTTP, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: invalid backend URL %q for %s", ErrInvalidConfig, cfg.BaseURL, cfg.Name)
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				DisableKeepAlives:   false,
			},
		}
	}

	return &HTTP{
		name:     cfg.Name,
		endpoint: strings.TrimRight(base.String(), "/") + "/generate",
		apiKey:   cfg.APIKey,
		caps:     cfg.Caps,
		client:   client,
	}, nil
}

func (h *HTTP) Name() string               { return h.name }
func (h *HTTP) Capabilities() Capabilities { return h.caps }

func (h *HTTP) Generate(ctx context.Context, sub models.SubRequest) (models.ArtifactResult, error) {
	if !supports(h.caps, sub.ContentType) {
		return models.ArtifactResult{}, fmt.Errorf("%s: %w: %s", h.name, ErrUnsupportedContent, sub.ContentType)
	}

	start := time.Now()
	body, err := json.Marshal(httpGenerateRequest{
		ContentType: sub.ContentType,
		Prompt:      BuildPrompt(sub).User,
		Options:     sub.Options,
		Fingerprint: sub.Fingerprint,
	})
	if err != nil {
		return models.ArtifactResult{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return models.ArtifactResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", sub.Fingerprint)
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return models.ArtifactResult{}, classify(ctx, h.name, start, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return models.ArtifactResult{}, classify(ctx, h.name, start, err)
	}

	if resp.StatusCode != http.StatusOK {
		return models.ArtifactResult{}, &ProviderError{
			Provider:   h.name,
			StatusCode: resp.StatusCode,
			Transient:  transientStatus(resp.StatusCode),
			Err:        fmt.Errorf("backend said: %s", summarize(string(payload), 200)),
		}
	}

	var out httpGenerateResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return models.ArtifactResult{}, &ProviderError{Provider: h.name, Err: fmt.Errorf("%w: %v", ErrInvalidResponse, err)}
	}

	art := models.ArtifactResult{
		ContentType: sub.ContentType,
		Blog:        out.Blog,
		Image:       out.Image,
		Video:       out.Video,
		Podcast:     out.Podcast,
		ProducedBy:  h.name,
		Fingerprint: sub.Fingerprint,
	}
	if art.Blog != nil && art.Blog.HTML == "" {
		blog, err := FinishBlog(art.Blog.Title, art.Blog.Body, art.Blog.Tags, art.Blog.SEOKeywords)
		if err != nil {
			return models.ArtifactResult{}, &ProviderError{Provider: h.name, Err: err}
		}
		art.Blog = blog
	}
	if err := art.Validate(); err != nil {
		return models.ArtifactResult{}, &ProviderError{Provider: h.name, Err: fmt.Errorf("%w: %v", ErrInvalidResponse, err)}
	}
	return art, nil
}
