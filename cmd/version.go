package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// Build information, injected via -ldflags at release time.
var (
	AppVersion = "dev"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version and environment information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "coursekb %s\n", AppVersion)
			fmt.Fprintf(out, "  commit:     %s\n", GitCommit)
			fmt.Fprintf(out, "  built:      %s\n", BuildTime)
			fmt.Fprintf(out, "  go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "  platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)

			if key := os.Getenv("GEMINI_API_KEY"); key != "" {
				fmt.Fprintf(out, "  api key:    %s\n", partialKey(key))
			} else {
				fmt.Fprintln(out, "  api key:    not set")
			}
		},
	}
}

// partialKey shows just enough of the key to tell accounts apart.
func partialKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
