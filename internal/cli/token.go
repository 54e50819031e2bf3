package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/HanTheDev/content-gateway/internal/auth"
)

type TokenOptions struct {
	*RootOptions
	User string
	Plan string
	Role string
	TTL  time.Duration
}

// NewTokenCommand mints a bearer token signed with the configured JWT secret. Identity is
// issued upstream in production; this is for local runs and smoke tests.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed bearer token for local use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.RootOptions)
			if err != nil {
				return err
			}
			tok, err := auth.GenerateToken(opts.User, opts.Plan, opts.Role, cfg.JWTSecret, opts.TTL)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}

	cmd.Flags().StringVar(&opts.User, "user", "", "user id (required)")
	cmd.Flags().StringVar(&opts.Plan, "plan", "free", "plan tier")
	cmd.Flags().StringVar(&opts.Role, "role", "", "role claim, e.g. admin")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
