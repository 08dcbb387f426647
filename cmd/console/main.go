package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "console",
		Short: "MediRunner robot operator console",
		Long: `The operator console keeps one WebSocket session to a delivery robot and
exposes it over HTTP: connection control, pings, commands, the session log,
camera frames and panoramic captures, plus a server-sent event stream.

Configuration is read from the environment (and .env). See CONSOLE_* variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		probeCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "console: %s\n", err)
		os.Exit(1)
	}
}
