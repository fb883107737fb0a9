package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/wsgate/bootstrap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway server",
	Long: `Start the wsgate server.

The server will:
  - Load configuration from wsgate.yaml (or --config)
  - Or load configuration from WSGATE_* environment variables
  - Open a bounded connection pool to the shared Redis store
  - Serve WebSocket sessions at /ws/{clientID}
  - Apply rate limiting to requests, connections, and messages

Configuration reloads on SIGHUP or when the config file changes.

Environment variables (for Docker deployments):
  WSGATE_REDIS_ADDR         - Redis address (default: localhost:6379)
  WSGATE_SERVER_PORT        - Server port (default: 8080)
  WSGATE_RATELIMIT_LIMIT    - Requests per window (default: 100)
  WSGATE_RATELIMIT_WINDOW   - Window in seconds (default: 60)
  WSGATE_LOG_LEVEL          - Log level: debug, info, warn, error

Examples:
  wsgate serve
  wsgate serve --config /etc/wsgate/config.yaml

  # Docker (env vars only):
  WSGATE_REDIS_ADDR=redis:6379 wsgate serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if _, err := os.Stat(path); err != nil {
		fmt.Println("Running with environment variables (no config file)")
		path = ""
	}

	app, err := bootstrap.NewWithOptions(bootstrap.Options{ConfigPath: path})
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return app.Run()
}
