package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestReconnect_SucceedsAfterFailures(t *testing.T) {
	config := &ReconnectConfig{MaxAttempts: 5, Backoff: time.Millisecond, Multiplier: 2, MaxBackoff: 5 * time.Millisecond}

	attempts := 0
	err := ReconnectWithLogger(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection refused")
		}
		return nil
	}, config, zerolog.Nop())

	if err != nil {
		t.Errorf("Expected success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestReconnect_GivesUp(t *testing.T) {
	config := &ReconnectConfig{MaxAttempts: 2, Backoff: time.Millisecond, Multiplier: 2, MaxBackoff: 5 * time.Millisecond}
	boom := errors.New("connection refused")

	err := ReconnectWithLogger(context.Background(), func(ctx context.Context) error { return boom }, config, zerolog.Nop())
	if !errors.Is(err, boom) {
		t.Errorf("Expected last error to be wrapped, got %v", err)
	}
}

func TestReconnect_UnlimitedUntilCancel(t *testing.T) {
	config := &ReconnectConfig{MaxAttempts: 0, Backoff: time.Millisecond, Multiplier: 1, MaxBackoff: time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	attempts := 0
	err := ReconnectWithLogger(ctx, func(ctx context.Context) error {
		attempts++
		return errors.New("down")
	}, config, zerolog.Nop())

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context deadline, got %v", err)
	}
	if attempts < 2 {
		t.Errorf("Expected several attempts, got %d", attempts)
	}
}
