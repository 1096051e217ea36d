package throttle

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStatsCountsWaits(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)

	for i := 0; i < 2; i++ {
		if err := rl.Wait(context.Background()); err != nil {
			t.Fatalf("Expected call %d to fit in burst, got: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); err == nil {
		t.Error("Expected third call to be rejected")
	}

	stats := rl.Stats()
	if stats.Allowed != 2 || stats.Rejected != 1 {
		t.Errorf("Expected 2 allowed / 1 rejected, got %d / %d", stats.Allowed, stats.Rejected)
	}
	if stats.PerSecond != 0.001 || stats.Burst != 2 {
		t.Errorf("Expected configured rate 0.001/2, got %v/%d", stats.PerSecond, stats.Burst)
	}
}

func TestWaitHonoursContext(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)

	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("Expected first wait to pass, got: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); err == nil {
		t.Error("Expected error when the next token is beyond the deadline")
	}

	cancelled, stop := context.WithCancel(context.Background())
	stop()
	if err := rl.Wait(cancelled); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
