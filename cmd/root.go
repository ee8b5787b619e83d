// Package cmd implements the taskhive CLI.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var configPath string

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taskhive",
		Short: "Persistent task scheduler for conversational agents",
		Long: "taskhive manages long-lived agent tasks fired on cron schedules,\n" +
			"datetime plans, or explicit triggers, and drives them through an\n" +
			"external agent runtime.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "config file (JSON5)")

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(tickCmd())
	cmd.AddCommand(tasksCmd())
	return cmd
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".taskhive", "config.json5")
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
