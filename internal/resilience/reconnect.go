package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/novalink/voice-stream/internal/observability"
)

// ReconnectConfig holds configuration for reconnection logic
type ReconnectConfig struct {
	MaxAttempts int           // Zero means retry until ctx ends
	Backoff     time.Duration // Wait after the first failure
	Multiplier  float64       // Growth factor between waits
	MaxBackoff  time.Duration // Upper bound for any wait
}

// DefaultReconnectConfig returns a default reconnection configuration
func DefaultReconnectConfig() *ReconnectConfig {
	return &ReconnectConfig{
		MaxAttempts: 5,
		Backoff:     1 * time.Second,
		Multiplier:  2.0,
		MaxBackoff:  30 * time.Second,
	}
}

// ReconnectFunc is a function that attempts to (re)establish a connection
type ReconnectFunc func(ctx context.Context) error

// Reconnect calls fn with exponential backoff until it succeeds
func Reconnect(ctx context.Context, fn ReconnectFunc, config *ReconnectConfig) error {
	return ReconnectWithLogger(ctx, fn, config, observability.WithComponent("reconnect"))
}

// ReconnectWithLogger is Reconnect with an explicit logger
func ReconnectWithLogger(ctx context.Context, fn ReconnectFunc, config *ReconnectConfig, logger zerolog.Logger) error {
	if config == nil {
		config = DefaultReconnectConfig()
	}

	backoff := config.Backoff
	for attempt := 1; config.MaxAttempts <= 0 || attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info().Int("attempt", attempt).Msg("Reconnection successful")
			}
			return nil
		}

		if config.MaxAttempts > 0 && attempt == config.MaxAttempts {
			return fmt.Errorf("failed to reconnect after %d attempts: %w", attempt, err)
		}

		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("Reconnection attempt failed")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * config.Multiplier)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}
	return fmt.Errorf("failed to reconnect after %d attempts", config.MaxAttempts)
}
