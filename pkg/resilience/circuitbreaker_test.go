package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errDownstream = errors.New("downstream unavailable")

func failing(context.Context) error { return errDownstream }
func succeeding(context.Context) error { return nil }

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 3, Timeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := b.Call(ctx, failing); !errors.Is(err, errDownstream) {
			t.Fatalf("call %d: expected downstream error, got %v", i, err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
	if err := b.Call(ctx, succeeding); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen while open, got %v", err)
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Timeout: 10 * time.Millisecond})
	ctx := context.Background()

	_ = b.Call(ctx, failing)
	if b.State() != StateOpen {
		t.Fatal("expected open after threshold")
	}

	now := time.Now()
	b.now = func() time.Time { return now.Add(time.Second) }

	if st := b.State(); st != StateHalfOpen {
		t.Fatalf("state = %v, want half-open after timeout", st)
	}
	if err := b.Call(ctx, succeeding); err != nil {
		t.Fatalf("probe call failed: %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed after successful probe", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Timeout: time.Minute})
	ctx := context.Background()

	_ = b.Call(ctx, failing)
	now := time.Now()
	b.now = func() time.Time { return now.Add(2 * time.Minute) }

	if err := b.Call(ctx, failing); !errors.Is(err, errDownstream) {
		t.Fatalf("probe should run, got %v", err)
	}
	// The failed probe must reopen the breaker at the probe time.
	if err := b.Call(ctx, succeeding); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected reopen after failed probe, got %v", err)
	}
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 3, Timeout: time.Minute})
	ctx := context.Background()

	_ = b.Call(ctx, failing)
	_ = b.Call(ctx, failing)
	_ = b.Call(ctx, succeeding)
	_ = b.Call(ctx, failing)
	_ = b.Call(ctx, failing)

	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed (failures reset on success)", b.State())
	}
}
