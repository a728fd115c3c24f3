package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "stevedore",
		Short: "WebSocket proxy and bundle deployer for cluster controllers",
		Long: `Stevedore fronts a cluster-orchestration controller's WebSocket
API. It forwards GUI traffic transparently, tracks login state by observing
the proxied exchange, and serves an in-band protocol for scheduling,
queuing and watching bundle deployments.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
