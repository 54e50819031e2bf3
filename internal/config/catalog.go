package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/HanTheDev/content-gateway/internal/models"
)

// DefaultPlan is used when a requester's plan tier is unknown or empty.
const DefaultPlan = "free"

// Catalog is the provider registry file: which backends exist and what each plan tier may use.
type Catalog struct {
	Providers []ProviderSpec      `yaml:"providers"`
	Plans     map[string]PlanSpec `yaml:"plans"`
}

type ProviderSpec struct {
	Name           string        `yaml:"name"`
	Kind           string        `yaml:"kind"` // openai | gemini | http | mock
	ContentTypes   []string      `yaml:"content_types"`
	CostPerCall    float64       `yaml:"cost_per_call"`
	QualityScore   float64       `yaml:"quality_score"`
	AverageLatency time.Duration `yaml:"average_latency"`
	Model          string        `yaml:"model"`
	ImageModel     string        `yaml:"image_model"`
	BaseURL        string        `yaml:"base_url"`
	APIKeyEnv      string        `yaml:"api_key_env"`
}

// APIKey resolves the provider credential from the environment.
func (p ProviderSpec) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

func (p ProviderSpec) Types() ([]models.ContentType, error) {
	types := make([]models.ContentType, 0, len(p.ContentTypes))
	for _, s := range p.ContentTypes {
		c, err := models.ParseContentType(s)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", p.Name, err)
		}
		types = append(types, c)
	}
	return types, nil
}

type PlanSpec struct {
	Limits        map[models.ContentType]int `yaml:"limits"`
	QualityTier   float64                    `yaml:"quality_tier"`
	BudgetCeiling float64                    `yaml:"budget_ceiling"`
	Urgency       float64                    `yaml:"urgency"`
}

// Plan returns the named plan, falling back to DefaultPlan.
func (c *Catalog) Plan(name string) PlanSpec {
	if p, ok := c.Plans[name]; ok {
		return p
	}
	return c.Plans[DefaultPlan]
}

// QuotaLimits flattens plan limits into plan -> feature -> limit.
func (c *Catalog) QuotaLimits() map[string]map[models.ContentType]int {
	out := make(map[string]map[models.ContentType]int, len(c.Plans))
	for name, p := range c.Plans {
		out[name] = p.Limits
	}
	return out
}

// DefaultCatalog runs every content type against local mock backends so the
// gateway is usable without any credentials.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Providers: []ProviderSpec{
			{Name: "local-text", Kind: "mock", ContentTypes: []string{"blog", "podcast"}, CostPerCall: 0.001, QualityScore: 0.5, AverageLatency: 50 * time.Millisecond},
			{Name: "local-media", Kind: "mock", ContentTypes: []string{"image", "video"}, CostPerCall: 0.002, QualityScore: 0.5, AverageLatency: 80 * time.Millisecond},
		},
		Plans: map[string]PlanSpec{
			"free": {
				Limits:        map[models.ContentType]int{models.ContentBlog: 20, models.ContentImage: 10, models.ContentVideo: 3, models.ContentPodcast: 10},
				QualityTier:   0,
				BudgetCeiling: 0.05,
				Urgency:       1,
			},
			"pro": {
				Limits:        map[models.ContentType]int{models.ContentBlog: 500, models.ContentImage: 300, models.ContentVideo: 60, models.ContentPodcast: 300},
				QualityTier:   0.6,
				BudgetCeiling: 1.0,
				Urgency:       0.5,
			},
		},
	}
}

// LoadCatalog parses the provider registry file. An empty path yields DefaultCatalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read providers file: %w", err)
	}

	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse providers file: %w", err)
	}
	if len(cat.Plans) == 0 {
		cat.Plans = DefaultCatalog().Plans
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

func (c *Catalog) Validate() error {
	if _, ok := c.Plans[DefaultPlan]; !ok {
		return fmt.Errorf("providers file: plan %q is required", DefaultPlan)
	}

	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p.Name == "" {
			return errors.New("providers file: provider name is required")
		}
		if p.Name == models.ProducedByFallback {
			return fmt.Errorf("providers file: %q is reserved", p.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("providers file: duplicate provider %q", p.Name)
		}
		seen[p.Name] = true

		switch p.Kind {
		case "openai", "gemini", "http", "mock":
		default:
			return fmt.Errorf("providers file: provider %s has unknown kind %q", p.Name, p.Kind)
		}
		if p.Kind == "http" && p.BaseURL == "" {
			return fmt.Errorf("providers file: provider %s requires base_url", p.Name)
		}
		if _, err := p.Types(); err != nil {
			return fmt.Errorf("providers file: %w", err)
		}
	}
	return nil
}

// PlanNames lists configured plans in stable order.
func (c *Catalog) PlanNames() []string {
	names := make([]string, 0, len(c.Plans))
	for n := range c.Plans {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
