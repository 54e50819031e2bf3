// Package cli is the contentgen command line: the HTTP server plus one-shot generation and
// token helpers for local use.
package cli

import (
	"github.com/spf13/cobra"
)

// Version is stamped at build time.
var Version = "dev"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	LogLevel      string
	ProvidersFile string
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "contentgen",
		Short:         "Generate blog, image, video and podcast content from one product description",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override CONTENTGEN_LOG_LEVEL (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.ProvidersFile, "providers", "", "override CONTENTGEN_PROVIDERS_FILE")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewGenerateCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}
