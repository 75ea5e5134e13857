// Command endpointd is the Sendspin endpoint daemon: it loads the YAML
// player roster, wires the backend registry, event bus, and REST+WebSocket
// control plane, autostarts the configured players, and serves until
// signaled to stop (spec §4.7, §6).
package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// rootCommand collapses what the teacher splits across cmd/root.go and a
// per-mode subcommand package (cmd/realtime) into one daemon command, since
// this process has exactly one long-running mode plus a config checker.
func rootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "endpointd",
		Short: "Sendspin multi-room audio endpoint daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file (default: ./config.yaml or /etc/endpoint-core/config.yaml)")
	if err := viper.BindPFlag("config", root.PersistentFlags().Lookup("config")); err != nil {
		// BindPFlag only fails on a nil flag, which can't happen here.
		panic(err)
	}

	root.AddCommand(validateConfigCommand(&configPath))

	return root
}
