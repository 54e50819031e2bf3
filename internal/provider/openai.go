package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/HanTheDev/content-gateway/internal/models"
)

type OpenAISettings struct {
	Name       string
	APIKey     string
	BaseURL    string
	Model      string
	ImageModel string
	Caps       Capabilities
}

// OpenAI produces blog and podcast text through chat completions and images through the
// Images API.
type OpenAI struct {
	name       string
	model      string
	imageModel string
	caps       Capabilities
	client     openai.Client
}

func NewOpenAI(cfg OpenAISettings) (*OpenAI, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("%w: openai provider name is required", ErrInvalidConfig)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai api key missing for %s", ErrInvalidConfig, cfg.Name)
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.ChatModelGPT4oMini)
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = string(openai.ImageModelDallE3)
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAI{
		name:       cfg.Name,
		model:      cfg.Model,
		imageModel: cfg.ImageModel,
		caps:       cfg.Caps,
		client:     openai.NewClient(opts...),
	}, nil
}

func (o *OpenAI) Name() string               { return o.name }
func (o *OpenAI) Capabilities() Capabilities { return o.caps }

func (o *OpenAI) Generate(ctx context.Context, sub models.SubRequest) (models.ArtifactResult, error) {
	if !supports(o.caps, sub.ContentType) {
		return models.ArtifactResult{}, fmt.Errorf("%s: %w: %s", o.name, ErrUnsupportedContent, sub.ContentType)
	}

	start := time.Now()
	prompt := BuildPrompt(sub)
	art := models.ArtifactResult{ContentType: sub.ContentType, ProducedBy: o.name, Fingerprint: sub.Fingerprint}

	switch sub.ContentType {
	case models.ContentImage:
		img, err := o.image(ctx, prompt)
		if err != nil {
			return models.ArtifactResult{}, o.wrap(ctx, start, err)
		}
		art.Image = img
	case models.ContentBlog:
		text, err := o.chat(ctx, prompt)
		if err != nil {
			return models.ArtifactResult{}, o.wrap(ctx, start, err)
		}
		blog, err := ParseBlog(text)
		if err != nil {
			return models.ArtifactResult{}, &ProviderError{Provider: o.name, Err: err}
		}
		art.Blog = blog
	case models.ContentPodcast:
		text, err := o.chat(ctx, prompt)
		if err != nil {
			return models.ArtifactResult{}, o.wrap(ctx, start, err)
		}
		podcast, err := FinishPodcast(text, "", summarize(sub.Prompt, 120))
		if err != nil {
			return models.ArtifactResult{}, &ProviderError{Provider: o.name, Err: err}
		}
		art.Podcast = podcast
	default:
		return models.ArtifactResult{}, fmt.Errorf("%s: %w: %s", o.name, ErrUnsupportedContent, sub.ContentType)
	}

	return art, nil
}

func (o *OpenAI) chat(ctx context.Context, prompt Prompt) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompt.System),
			openai.UserMessage(prompt.User),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", ErrInvalidResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAI) image(ctx context.Context, prompt Prompt) (*models.ImageArtifact, error) {
	resp, err := o.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         prompt.User,
		Model:          openai.ImageModel(o.imageModel),
		Size:           openai.ImageGenerateParamsSize1024x1024,
		ResponseFormat: openai.ImageGenerateParamsResponseFormatURL,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return nil, fmt.Errorf("%w: no image returned", ErrInvalidResponse)
	}

	desc := resp.Data[0].RevisedPrompt
	if desc == "" {
		desc = prompt.User
	}
	return &models.ImageArtifact{URL: resp.Data[0].URL, Description: desc, Width: 1024, Height: 1024}, nil
}

func (o *OpenAI) wrap(ctx context.Context, start time.Time, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Provider:   o.name,
			StatusCode: apiErr.StatusCode,
			Transient:  transientStatus(apiErr.StatusCode),
			Err:        err,
		}
	}
	if errors.Is(err, ErrInvalidResponse) {
		return &ProviderError{Provider: o.name, Err: err}
	}
	return classify(ctx, o.name, start, err)
}
