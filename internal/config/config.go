// Package config loads the daemon configuration from a JSON5 file and
// applies defaults for everything left unset.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the full daemon configuration.
type Config struct {
	// DataDir is the root for persisted state: tasks.json and contexts/.
	DataDir string `json:"data_dir"`
	// Timezone is the default IANA zone for schedules that omit one.
	Timezone string `json:"timezone"`

	Gateway   GatewayConfig   `json:"gateway"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Agent     AgentConfig     `json:"agent"`
}

// AgentConfig points at the external agent runtime that executes task
// prompts.
type AgentConfig struct {
	URL   string `json:"url"`
	Token string `json:"token"`
	// TimeoutSeconds bounds a single agent HTTP call; 0 means no limit
	// (runs are cancelled through the scheduler, not the transport).
	TimeoutSeconds int `json:"timeout_seconds"`
}

// GatewayConfig configures the HTTP surface.
type GatewayConfig struct {
	Addr string `json:"addr"`
	// Token is the bearer token for authenticated endpoints. Empty
	// disables auth (local development only).
	Token string `json:"token"`
	// RateRPM/RateBurst throttle authenticated clients; rpm <= 0 disables.
	RateRPM   int `json:"rate_rpm"`
	RateBurst int `json:"rate_burst"`
}

// SchedulerConfig configures the execution runtime.
type SchedulerConfig struct {
	Workers            int `json:"workers"`
	QueueCap           int `json:"queue_cap"`
	TickWindowSeconds  int `json:"tick_window_seconds"`
	CancelGraceSeconds int `json:"cancel_grace_seconds"`

	// Retry of failed agent runs; 0 retries by default so a failure moves
	// the task to error state immediately.
	RetryMax          int `json:"retry_max"`
	RetryBaseDelaySec int `json:"retry_base_delay_seconds"`
	RetryMaxDelaySec  int `json:"retry_max_delay_seconds"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DataDir:  filepath.Join(home, ".taskhive"),
		Timezone: "UTC",
		Gateway: GatewayConfig{
			Addr:      "127.0.0.1:8765",
			RateRPM:   120,
			RateBurst: 20,
		},
		Scheduler: SchedulerConfig{
			Workers:            4,
			QueueCap:           16,
			TickWindowSeconds:  60,
			CancelGraceSeconds: 30,
			RetryMax:           0,
			RetryBaseDelaySec:  2,
			RetryMaxDelaySec:   30,
		},
	}
}

// TasksPath returns the task file location.
func (c *Config) TasksPath() string {
	return filepath.Join(c.DataDir, "scheduler", "tasks.json")
}

// ContextsDir returns the conversation record directory.
func (c *Config) ContextsDir() string {
	return filepath.Join(c.DataDir, "contexts")
}

// TickWindow returns the tick window as a duration.
func (c *Config) TickWindow() time.Duration {
	return time.Duration(c.Scheduler.TickWindowSeconds) * time.Second
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Gateway.Addr == "" {
		return fmt.Errorf("gateway.addr is required")
	}
	if c.Scheduler.Workers < 0 || c.Scheduler.TickWindowSeconds <= 0 {
		return fmt.Errorf("scheduler: workers must be >= 0 and tick_window_seconds > 0")
	}
	if _, err := timeLoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return nil
}
