package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/HanTheDev/content-gateway/internal/models"
)

type GeminiSettings struct {
	Name   string
	APIKey string
	Model  string
	Caps   Capabilities
}

// Gemini produces blog and podcast text through GenerateContent.
type Gemini struct {
	name   string
	model  string
	caps   Capabilities
	client *genai.Client
}

func NewGemini(ctx context.Context, cfg GeminiSettings) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty for %s", ErrInvalidConfig, cfg.Name)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty for %s", ErrInvalidConfig, cfg.Name)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", ErrInvalidConfig, err)
	}

	return &Gemini{name: cfg.Name, model: cfg.Model, caps: cfg.Caps, client: client}, nil
}

func (g *Gemini) Name() string               { return g.name }
func (g *Gemini) Capabilities() Capabilities { return g.caps }

func (g *Gemini) Generate(ctx context.Context, sub models.SubRequest) (models.ArtifactResult, error) {
	if !supports(g.caps, sub.ContentType) {
		return models.ArtifactResult{}, fmt.Errorf("%s: %w: %s", g.name, ErrUnsupportedContent, sub.ContentType)
	}
	if sub.ContentType != models.ContentBlog && sub.ContentType != models.ContentPodcast {
		return models.ArtifactResult{}, fmt.Errorf("%s: %w: %s", g.name, ErrUnsupportedContent, sub.ContentType)
	}

	start := time.Now()
	prompt := BuildPrompt(sub)

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		genai.Text(prompt.System+"\n\n"+prompt.User), nil)
	if err != nil {
		return models.ArtifactResult{}, classify(ctx, g.name, start, err)
	}

	text := responseText(resp)
	if text == "" {
		return models.ArtifactResult{}, &ProviderError{Provider: g.name, Err: fmt.Errorf("%w: no content generated", ErrInvalidResponse)}
	}

	art := models.ArtifactResult{ContentType: sub.ContentType, ProducedBy: g.name, Fingerprint: sub.Fingerprint}
	if sub.ContentType == models.ContentBlog {
		blog, err := ParseBlog(text)
		if err != nil {
			return models.ArtifactResult{}, &ProviderError{Provider: g.name, Err: err}
		}
		art.Blog = blog
		return art, nil
	}

	podcast, err := FinishPodcast(text, "", summarize(sub.Prompt, 120))
	if err != nil {
		return models.ArtifactResult{}, &ProviderError{Provider: g.name, Err: err}
	}
	art.Podcast = podcast
	return art, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}
