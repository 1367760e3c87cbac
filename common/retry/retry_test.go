package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/venuedesk/venuedesk/common/retry"
)

var errWebhookDown = errors.New("webhook: 503")

func TestDo_FirstAttemptSucceeds(t *testing.T) {
	attempts := 0
	err := retry.Do(context.Background(), retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond}, func() error {
		attempts++
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestDo_RecoversWithinBudget(t *testing.T) {
	attempts := 0
	err := retry.Do(context.Background(), retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond}, func() error {
		attempts++
		if attempts < 3 {
			return errWebhookDown
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do should succeed on the final attempt: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestDo_ReturnsLastErrorWhenExhausted(t *testing.T) {
	attempts := 0
	err := retry.Do(context.Background(), retry.Config{MaxAttempts: 2, InitialDelay: time.Millisecond}, func() error {
		attempts++
		return errWebhookDown
	})
	if !errors.Is(err, errWebhookDown) {
		t.Fatalf("err = %v, want the last attempt's error", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	errBadRequest := errors.New("webhook: 400")
	attempts := 0
	err := retry.Do(context.Background(), retry.Config{
		MaxAttempts:  4,
		InitialDelay: time.Millisecond,
		ShouldRetry:  func(err error) bool { return !errors.Is(err, errBadRequest) },
	}, func() error {
		attempts++
		return errBadRequest
	})
	if !errors.Is(err, errBadRequest) {
		t.Fatalf("err = %v, want bad-request error", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestDo_CancelledContextStopsBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := retry.Do(ctx, retry.Config{MaxAttempts: 5, InitialDelay: 10 * time.Millisecond}, func() error {
		attempts++
		return errWebhookDown
	})
	if err == nil {
		t.Fatal("expected an error from a cancelled context")
	}
	if attempts > 1 {
		t.Errorf("attempts = %d with a cancelled context, want at most 1", attempts)
	}
}
