package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/HanTheDev/content-gateway/internal/generation"
	"github.com/HanTheDev/content-gateway/internal/models"
)

type GenerateOptions struct {
	*RootOptions
	Description   string
	Types         []string
	VideoDuration int
	ImageStyle    string
	VoiceStyle    string
	Language      string
	User          string
	Plan          string
}

func NewGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GenerateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run one generation against the configured providers and print the result",
		Long: `Run one generation against the configured providers and print the result as JSON.

Progress lines go to stderr as each content type finishes.

Example:
  contentgen generate --description "Wireless earbuds with 30h battery" --video-duration 30
  contentgen generate -d "Ceramic pour-over set" --types blog,image --plan pro`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&opts.Description, "description", "d", "", "product description (required)")
	cmd.Flags().StringSliceVar(&opts.Types, "types", nil, "content types to generate (default all)")
	cmd.Flags().IntVar(&opts.VideoDuration, "video-duration", 0, "video length in seconds (15|30|60)")
	cmd.Flags().StringVar(&opts.ImageStyle, "image-style", "", "image style hint")
	cmd.Flags().StringVar(&opts.VoiceStyle, "voice-style", "", "podcast voice hint")
	cmd.Flags().StringVar(&opts.Language, "language", "", "output language (default en)")
	cmd.Flags().StringVar(&opts.User, "user", "cli", "requester id charged for quota")
	cmd.Flags().StringVar(&opts.Plan, "plan", "", "plan tier (default free)")
	_ = cmd.MarkFlagRequired("description")

	return cmd
}

func (o *GenerateOptions) request() (models.GenerationRequest, error) {
	req := models.GenerationRequest{
		ProductDescription: o.Description,
		RequesterID:        o.User,
		PlanTier:           o.Plan,
		Options: models.Options{
			ImageStyle:           o.ImageStyle,
			VideoDurationSeconds: o.VideoDuration,
			VoiceStyle:           o.VoiceStyle,
			Language:             o.Language,
		},
	}
	for _, s := range o.Types {
		c, err := models.ParseContentType(strings.TrimSpace(s))
		if err != nil {
			return models.GenerationRequest{}, err
		}
		req.ContentTypes = append(req.ContentTypes, c)
	}
	return req, nil
}

func runGenerate(ctx context.Context, opts *GenerateOptions, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := opts.request()
	if err != nil {
		return err
	}

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer a.close()

	var mu sync.Mutex
	progress := func(c models.ContentType, art models.ArtifactResult) {
		mu.Lock()
		defer mu.Unlock()
		if art.Degraded() {
			fmt.Fprintf(stderr, "%-8s degraded (%s)\n", c, art.Cause)
			return
		}
		fmt.Fprintf(stderr, "%-8s done via %s\n", c, art.ProducedBy)
	}

	result, err := a.coordinator.Generate(ctx, req, generation.OnSubRequestFinalized(progress))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
