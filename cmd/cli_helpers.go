package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/nextlevelbuilder/taskhive/internal/clock"
	"github.com/nextlevelbuilder/taskhive/internal/config"
	"github.com/nextlevelbuilder/taskhive/internal/contextstore"
	"github.com/nextlevelbuilder/taskhive/internal/store"
	"github.com/nextlevelbuilder/taskhive/internal/task"
)

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// openStore opens the task store directly for offline management
// commands. The daemon picks up edits through its file watcher.
func openStore(cfg *config.Config) (*store.TaskStore, error) {
	clk, err := clock.NewSystem(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	contexts, err := contextstore.NewFileStore(cfg.ContextsDir())
	if err != nil {
		return nil, err
	}
	return store.NewTaskStore(cfg.TasksPath(), clk, contexts)
}

// postDaemon POSTs a JSON body to the running daemon and decodes the
// response into out (out may be nil).
func postDaemon(cfg *config.Config, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, "http://"+cfg.Gateway.Addr+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.Gateway.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Gateway.Token)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s: %w", cfg.Gateway.Addr, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		var errBody struct {
			Error *task.Error `json:"error"`
		}
		if json.Unmarshal(raw, &errBody) == nil && errBody.Error != nil {
			return errBody.Error
		}
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}
	if out != nil {
		return json.Unmarshal(raw, out)
	}
	return nil
}

func printTasks(tasks []*task.Task, jsonOutput bool) {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(tasks)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "UUID\tNAME\tTYPE\tSTATE\tLAST RUN\tDETAIL")
	for _, t := range tasks {
		lastRun := "-"
		if t.LastRun != nil {
			lastRun = t.LastRun.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.UUID, t.Name, t.Type, t.State, lastRun, taskDetail(t))
	}
	w.Flush()
}

func taskDetail(t *task.Task) string {
	switch t.Type {
	case task.TypeScheduled:
		if t.Schedule != nil {
			return t.Schedule.String()
		}
	case task.TypeAdHoc:
		return "token:" + t.Token
	case task.TypePlanned:
		if t.Plan != nil {
			return fmt.Sprintf("plan %d todo / %d done", len(t.Plan.Todo), len(t.Plan.Done))
		}
	}
	return "-"
}
