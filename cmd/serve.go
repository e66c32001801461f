package cmd

import (
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/coursekb/coursekb/api"
)

func newServeCmd() *cobra.Command {
	var trustProxy bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Starts the HTTP server with health, readiness and insights
endpoints. The server runs until SIGINT or SIGTERM and then shuts down
gracefully. Without GEMINI_API_KEY or a reachable database the server
still starts and serves the observability endpoints.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := setupApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			srv, err := api.NewServer(api.ServerConfig{
				Logger:     a.Logger,
				Tracker:    a.Tracker,
				Pool:       a.Pool,
				TrustProxy: trustProxy,
				RateBurst:  parseRateBurst(),
			})
			if err != nil {
				return err
			}

			return srv.Run(ctx, a.Config.ServerAddr())
		},
	}

	cmd.Flags().BoolVar(&trustProxy, "trust-proxy", false,
		"trust X-Real-IP/X-Forwarded-For headers for rate limiting")
	return cmd
}

// parseRateBurst reads COURSEKB_RATE_BURST. Zero means the server
// default.
func parseRateBurst() int {
	v := os.Getenv("COURSEKB_RATE_BURST")
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0
	}
	return n
}
