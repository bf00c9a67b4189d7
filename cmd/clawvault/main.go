// ClawVault - custodial EVM wallet backend
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sipeed/clawvault/pkg/config"
	"github.com/sipeed/clawvault/pkg/logger"
)

var (
	flagConfig   string
	flagLogLevel string
	flagLogJSON  bool
)

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "clawvault.json"
	}
	return filepath.Join(home, ".clawvault", "config.json")
}

func main() {
	root := &cobra.Command{
		Use:   "clawvault",
		Short: "Custodial EVM wallet backend: wallets, prices, swaps, referrals",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Setup(flagLogLevel, flagLogJSON)
		},
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", defaultConfigPath(), "config file path")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "log as JSON instead of console output")

	root.AddCommand(serveCmd(), payoutCmd(), initCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(flagConfig); err == nil {
				return fmt.Errorf("config already exists at %s", flagConfig)
			}
			if err := config.SaveConfig(flagConfig, config.DefaultConfig()); err != nil {
				return err
			}
			fmt.Printf("Wrote default config to %s\n", flagConfig)
			return nil
		},
	}
}
