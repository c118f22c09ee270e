package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewTimeout_Default(t *testing.T) {
	if got := NewTimeout(TimeoutConfig{}).Config().Timeout; got != time.Second {
		t.Errorf("default timeout = %v, want 1s", got)
	}
}

func TestTimeout_FastOperation(t *testing.T) {
	to := NewTimeout(TimeoutConfig{Timeout: time.Second})

	if err := to.Execute(context.Background(), succeeding); err != nil {
		t.Fatalf("Execute() = %v, want nil", err)
	}
	if err := to.Execute(context.Background(), failing); !errors.Is(err, errBackendDown) {
		t.Fatalf("Execute() = %v, want operation error", err)
	}
}

func TestTimeout_SlowOperation(t *testing.T) {
	to := NewTimeout(TimeoutConfig{Timeout: 20 * time.Millisecond})

	err := to.Execute(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Execute() = %v, want ErrTimeout", err)
	}
}

func TestTimeout_ParentCanceled(t *testing.T) {
	to := NewTimeout(TimeoutConfig{Timeout: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := to.Execute(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	// Either branch of the select may win; neither is a timeout.
	if errors.Is(err, ErrTimeout) {
		t.Fatalf("parent cancellation reported as timeout")
	}
}

func TestExecuteWithTimeout(t *testing.T) {
	err := ExecuteWithTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("ExecuteWithTimeout() = %v, want ErrTimeout", err)
	}
}
