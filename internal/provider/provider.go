// Package provider defines the uniform capability interface over generative backends and the
// adapters for each backend. Adapters are safe for concurrent use and honour the caller's
// context deadline.
package provider

import (
	"context"
	"time"

	"github.com/HanTheDev/content-gateway/internal/models"
)

// Provider generates one artifact for one sub-request.
type Provider interface {
	Name() string
	Capabilities() Capabilities
	// Generate must return a *TimeoutError when ctx's deadline passes before the backend answers.
	Generate(ctx context.Context, sub models.SubRequest) (models.ArtifactResult, error)
}

type Capabilities struct {
	ContentTypes   []models.ContentType
	CostPerCall    float64
	QualityScore   float64
	AverageLatency time.Duration
}

// Describe builds the routing descriptor for p. Health starts optimistic; the routing
// policy owns it afterwards.
func Describe(p Provider) models.ProviderDescriptor {
	caps := p.Capabilities()
	return models.ProviderDescriptor{
		Name:           p.Name(),
		SupportedTypes: models.NewTypeSet(caps.ContentTypes...),
		CostPerCall:    caps.CostPerCall,
		AverageLatency: caps.AverageLatency,
		QualityScore:   caps.QualityScore,
		IsHealthy:      true,
	}
}

func supports(caps Capabilities, c models.ContentType) bool {
	for _, t := range caps.ContentTypes {
		if t == c {
			return true
		}
	}
	return false
}
