package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/taskhive/internal/store"
	"github.com/nextlevelbuilder/taskhive/internal/task"
)

func tasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Manage scheduler tasks",
	}
	cmd.AddCommand(tasksListCmd())
	cmd.AddCommand(tasksGetCmd())
	cmd.AddCommand(tasksDeleteCmd())
	cmd.AddCommand(tasksSetStateCmd("enable", "Reset a task to idle", task.StateIdle))
	cmd.AddCommand(tasksSetStateCmd("disable", "Disable a task", task.StateDisabled))
	cmd.AddCommand(tasksRunCmd())
	cmd.AddCommand(tasksRunsCmd())
	return cmd
}

func tasksListCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			printTasks(st.List(), jsonOutput)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func tasksGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [uuid]",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid uuid %q: %w", args[0], err)
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			t, err := st.Get(id)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(t)
		},
	}
}

func tasksDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [uuid]",
		Short: "Delete a task and its conversation context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid uuid %q: %w", args[0], err)
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			if err := st.Remove(id); err != nil {
				return err
			}
			fmt.Printf("Deleted task %s\n", id)
			return nil
		},
	}
}

func tasksSetStateCmd(use, short string, target task.State) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [uuid]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid uuid %q: %w", args[0], err)
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			_, err = st.Update(id, func(t *task.Task) error {
				if t.State == target {
					return store.ErrAbort
				}
				if !task.CanUserSet(t.State, target) {
					return task.Errf(task.KindInvalidTransition, "cannot set state %s from %s", target, t.State)
				}
				t.State = target
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Printf("Task %s set to %s\n", id, target)
			return nil
		},
	}
}

func tasksRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [uuid]",
		Short: "Trigger a task through the running daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid uuid %q: %w", args[0], err)
			}
			if err := postDaemon(cfg, "/scheduler_task_run", map[string]any{"uuid": id}, nil); err != nil {
				return err
			}
			fmt.Printf("Run dispatched for %s\n", id)
			return nil
		},
	}
}

func tasksRunsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs [uuid]",
		Short: "Show recent run records from the daemon",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			body := map[string]any{"limit": limit}
			if len(args) == 1 {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid uuid %q: %w", args[0], err)
				}
				body["uuid"] = id
			}
			var out struct {
				Runs []json.RawMessage `json:"runs"`
			}
			if err := postDaemon(cfg, "/scheduler_task_runs", body, &out); err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out.Runs)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max records to show")
	return cmd
}
