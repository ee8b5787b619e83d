package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// tickCmd fires one scheduler tick against the local daemon. Intended to
// be driven by system cron at the same period as the configured window.
func tickCmd() *cobra.Command {
	var windowSeconds int
	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Trigger one scheduler tick on the local daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			body := map[string]any{}
			if windowSeconds > 0 {
				body["window_seconds"] = windowSeconds
			}
			var out struct {
				Dispatched int `json:"dispatched"`
			}
			if err := postDaemon(cfg, "/scheduler_tick", body, &out); err != nil {
				return err
			}
			fmt.Printf("Dispatched %d task(s)\n", out.Dispatched)
			return nil
		},
	}
	cmd.Flags().IntVar(&windowSeconds, "window", 0, "due window in seconds (default: daemon config)")
	return cmd
}
