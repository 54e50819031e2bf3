package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/HanTheDev/content-gateway/internal/devbackend"
	"github.com/HanTheDev/content-gateway/internal/logger"
)

func main() {
	var (
		port     string
		logLevel string
		settings devbackend.Settings
	)

	cmd := &cobra.Command{
		Use:   "devbackend",
		Short: "Fake generation vendor for the http provider kind",
		Long: `Fake generation vendor for the http provider kind.

Point a providers file entry at it:

  - name: reelforge
    kind: http
    content_types: [video]
    base_url: http://localhost:9000`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.Setup(logLevel)
			srv := &http.Server{
				Addr:              ":" + port,
				Handler:           devbackend.New(settings, log).Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			log.Info("dev backend starting", "port", port, "latency", settings.Latency.String(), "fail_every", settings.FailEvery)
			return srv.ListenAndServe()
		},
	}

	cmd.Flags().StringVar(&port, "port", "9000", "listen port")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")
	cmd.Flags().DurationVar(&settings.Latency, "latency", 0, "delay before every answer")
	cmd.Flags().IntVar(&settings.FailEvery, "fail-every", 0, "answer 503 to every Nth request")
	cmd.Flags().StringVar(&settings.APIKey, "api-key", "", "required bearer token")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
