package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artpar/wsgate/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("configuration invalid: %w", err)
		}
		fmt.Println("Configuration valid")
		fmt.Printf("  Listen:       %s:%d\n", cfg.Server.Host, cfg.Server.Port)
		fmt.Printf("  Redis:        %s (pool %d)\n", cfg.Redis.Addr, cfg.Redis.MaxPoolSize)
		fmt.Printf("  Rate limit:   %d per %ds\n", cfg.RateLimit.Limit, cfg.RateLimit.WindowSecs)
		fmt.Printf("  Max message:  %d bytes\n", cfg.WebSocket.MessageMaxBytes)
		fmt.Printf("  Fail open:    %t\n", cfg.RateLimit.FailOpen)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
