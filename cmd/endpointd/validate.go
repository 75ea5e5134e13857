package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sendspin/endpoint-core/internal/conf"
)

// validateConfigCommand mirrors the teacher's validate-templates checker:
// load, report per-entry results, and return an error (cobra exits 1 on
// one) rather than starting the daemon.
func validateConfigCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-config",
		Short: "Load and validate the YAML player roster without starting the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := conf.Load(*configPath)
			if err != nil {
				return fmt.Errorf("config invalid: %w", err)
			}

			if len(settings.Players) == 0 {
				fmt.Println("config valid: no players configured")
				return nil
			}

			fmt.Printf("config valid: %d player(s)\n", len(settings.Players))
			for name, p := range settings.Players {
				fmt.Printf("  - %s: backend=%s device=%s autostart=%v\n", name, p.Backend, p.DeviceID, p.Autostart)
			}
			return nil
		},
	}
}
