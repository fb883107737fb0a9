package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wsgate",
	Short: "WebSocket gateway with distributed rate limiting",
	Long: `wsgate is a WebSocket gateway that admits HTTP requests, WebSocket
connections, and individual messages against shared fixed-window rate
limits backed by Redis.

Quick start:
  wsgate serve      # Start the gateway

Management:
  wsgate validate   # Validate configuration
  wsgate version    # Print version information`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "wsgate.yaml", "config file path")
}
