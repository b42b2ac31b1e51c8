package retry

import (
	"context"
	"fmt"
	"time"
)

// Config bounds the retry loop: Attempts tries total, delay starting at Base
// and doubling up to Max.
type Config struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
}

// DefaultConfig matches startup needs: a handful of attempts, capped delay.
func DefaultConfig() Config {
	return Config{Attempts: 5, Base: time.Second, Max: 30 * time.Second}
}

// Do runs fn until it succeeds, attempts are exhausted, or ctx is done. The
// last error is returned after exhaustion; callers treat that as fatal.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	if cfg.Base <= 0 {
		cfg.Base = time.Second
	}
	if cfg.Max <= 0 {
		cfg.Max = 30 * time.Second
	}

	delay := cfg.Base
	var lastErr error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == cfg.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > cfg.Max {
			delay = cfg.Max
		}
	}
	return fmt.Errorf("after %d attempts: %w", cfg.Attempts, lastErr)
}
