package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/HanTheDev/content-gateway/internal/config"
)

// BuildRegistry constructs one adapter per catalog entry.
func BuildRegistry(ctx context.Context, logger *slog.Logger, cat *config.Catalog) (*Registry, error) {
	reg, err := NewRegistry()
	if err != nil {
		return nil, err
	}

	for _, spec := range cat.Providers {
		p, err := build(ctx, spec)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(p); err != nil {
			return nil, err
		}
		logger.InfoContext(ctx, "registered provider",
			"provider", spec.Name,
			"kind", spec.Kind,
			"content_types", spec.ContentTypes,
			"cost_per_call", spec.CostPerCall,
			"quality_score", spec.QualityScore)
	}
	return reg, nil
}

func build(ctx context.Context, spec config.ProviderSpec) (Provider, error) {
	types, err := spec.Types()
	if err != nil {
		return nil, err
	}
	caps := Capabilities{
		ContentTypes:   types,
		CostPerCall:    spec.CostPerCall,
		QualityScore:   spec.QualityScore,
		AverageLatency: spec.AverageLatency,
	}

	switch spec.Kind {
	case "openai":
		return NewOpenAI(OpenAISettings{
			Name:       spec.Name,
			APIKey:     spec.APIKey(),
			BaseURL:    spec.BaseURL,
			Model:      spec.Model,
			ImageModel: spec.ImageModel,
			Caps:       caps,
		})
	case "gemini":
		return NewGemini(ctx, GeminiSettings{
			Name:   spec.Name,
			APIKey: spec.APIKey(),
			Model:  spec.Model,
			Caps:   caps,
		})
	case "http":
		return NewHTTP(HTTPSettings{
			Name:    spec.Name,
			BaseURL: spec.BaseURL,
			APIKey:  spec.APIKey(),
			Caps:    caps,
		})
	case "mock":
		return NewMock(spec.Name, caps), nil
	}
	return nil, fmt.Errorf("%w: provider %s has unknown kind %q", ErrInvalidConfig, spec.Name, spec.Kind)
}
