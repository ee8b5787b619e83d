package scheduler

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryConfig controls exponential backoff retry for failed agent runs.
// The default is no retry, so a failed run moves the task to error state
// immediately; operators opt in via config.
type RetryConfig struct {
	MaxRetries int           `json:"max_retries"`
	BaseDelay  time.Duration `json:"base_delay"`
	MaxDelay   time.Duration `json:"max_delay"`
}

// DefaultRetryConfig returns the no-retry default with sane backoff
// parameters for when retries are enabled.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 0,
		BaseDelay:  2 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// runWithRetry runs fn, retrying on error with exponential backoff and
// jitter. A cancelled ctx stops retrying immediately and returns the
// context error.
func runWithRetry(ctx context.Context, cfg RetryConfig, fn func() (string, error)) (result string, attempts int, err error) {
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err = fn()
		if err == nil {
			return result, attempt + 1, nil
		}
		if ctx.Err() != nil {
			return "", attempt + 1, ctx.Err()
		}

		if attempt < cfg.MaxRetries {
			select {
			case <-time.After(backoffWithJitter(cfg.BaseDelay, cfg.MaxDelay, attempt)):
			case <-ctx.Done():
				return "", attempt + 1, ctx.Err()
			}
		}
	}
	return "", cfg.MaxRetries + 1, err
}

// backoffWithJitter computes min(base * 2^attempt, max) + jitter(±25%).
func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	delay := base << uint(attempt)
	if delay > max {
		delay = max
	}

	quarter := delay / 4
	if quarter > 0 {
		jitter := time.Duration(rand.Int64N(int64(quarter*2))) - quarter
		delay += jitter
	}
	return delay
}

// maxOutputBytes is the truncation limit for stored run output (16KB).
const maxOutputBytes = 16 * 1024

// truncateOutput caps result/error text persisted to the store and the
// run log.
func truncateOutput(s string) string {
	if len(s) <= maxOutputBytes {
		return s
	}
	return s[:maxOutputBytes] + "...[truncated]"
}
