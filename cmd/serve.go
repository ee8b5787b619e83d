package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/taskhive/internal/agentclient"
	"github.com/nextlevelbuilder/taskhive/internal/clock"
	"github.com/nextlevelbuilder/taskhive/internal/config"
	"github.com/nextlevelbuilder/taskhive/internal/contextstore"
	"github.com/nextlevelbuilder/taskhive/internal/httpapi"
	"github.com/nextlevelbuilder/taskhive/internal/scheduler"
	"github.com/nextlevelbuilder/taskhive/internal/store"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}
}

func runServe(cfg *config.Config) error {
	clk, err := clock.NewSystem(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}

	contexts, err := contextstore.NewFileStore(cfg.ContextsDir())
	if err != nil {
		return err
	}

	taskStore, err := store.NewTaskStore(cfg.TasksPath(), clk, contexts)
	if err != nil {
		return fmt.Errorf("open task store: %w", err)
	}

	if cfg.Agent.URL == "" {
		return fmt.Errorf("agent.url is required to run the daemon")
	}
	runner := agentclient.New(cfg.Agent.URL, cfg.Agent.Token,
		time.Duration(cfg.Agent.TimeoutSeconds)*time.Second)

	sched := scheduler.New(scheduler.Config{
		Workers:     cfg.Scheduler.Workers,
		QueueCap:    cfg.Scheduler.QueueCap,
		TickWindow:  cfg.TickWindow(),
		CancelGrace: time.Duration(cfg.Scheduler.CancelGraceSeconds) * time.Second,
		Retry: scheduler.RetryConfig{
			MaxRetries: cfg.Scheduler.RetryMax,
			BaseDelay:  time.Duration(cfg.Scheduler.RetryBaseDelaySec) * time.Second,
			MaxDelay:   time.Duration(cfg.Scheduler.RetryMaxDelaySec) * time.Second,
		},
	}, clk, taskStore, contexts, runner)
	defer sched.Shutdown()

	watcher, err := store.NewWatcher(taskStore)
	if err != nil {
		return err
	}
	if err := watcher.Start(); err != nil {
		return err
	}
	defer watcher.Stop()

	limiter := httpapi.NewRateLimiter(cfg.Gateway.RateRPM, cfg.Gateway.RateBurst)
	handler := httpapi.NewHandler(sched, taskStore, cfg.Gateway.Token, limiter)

	srv := &http.Server{
		Addr:         cfg.Gateway.Addr,
		Handler:      handler.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("gateway listening", "addr", cfg.Gateway.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
