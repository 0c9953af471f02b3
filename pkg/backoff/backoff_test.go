package backoff_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/JaimeStill/scrivener/pkg/backoff"
)

func TestDelay(t *testing.T) {
	p := backoff.Policy{MaxAttempts: 5, Base: 100 * time.Millisecond, Cap: 500 * time.Millisecond}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 500 * time.Millisecond},
		{10, 500 * time.Millisecond},
	}

	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestDelayOverflowCapped(t *testing.T) {
	p := backoff.Policy{Base: time.Second, Cap: time.Minute}

	if got := p.Delay(100); got != time.Minute {
		t.Errorf("Delay(100) = %v, want cap %v", got, time.Minute)
	}
}

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	p := backoff.Policy{MaxAttempts: 3, Base: time.Millisecond, Cap: time.Millisecond}

	calls := 0
	err := backoff.Retry(context.Background(), p, func(_ context.Context) error {
		calls++
		return nil
	}, nil)

	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryTransientThenSuccess(t *testing.T) {
	p := backoff.Policy{MaxAttempts: 5, Base: time.Millisecond, Cap: time.Millisecond}

	calls := 0
	err := backoff.Retry(context.Background(), p, func(_ context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, nil)

	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryExhaustsBudget(t *testing.T) {
	p := backoff.Policy{MaxAttempts: 3, Base: time.Millisecond, Cap: time.Millisecond}

	boom := errors.New("boom")
	calls := 0
	err := backoff.Retry(context.Background(), p, func(_ context.Context) error {
		calls++
		return boom
	}, nil)

	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapped boom", err)
	}
	if !strings.Contains(err.Error(), "exhausted 3 attempts") {
		t.Errorf("error = %q, want attempt count", err.Error())
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	p := backoff.Policy{MaxAttempts: 5, Base: time.Millisecond, Cap: time.Millisecond}

	permanent := errors.New("permanent")
	calls := 0
	err := backoff.Retry(context.Background(), p, func(_ context.Context) error {
		calls++
		return permanent
	}, func(err error) bool {
		return !errors.Is(err, permanent)
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, permanent) {
		t.Errorf("error = %v, want permanent", err)
	}
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	p := backoff.Policy{MaxAttempts: 10, Base: time.Hour, Cap: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := backoff.Retry(ctx, p, func(_ context.Context) error {
		return errors.New("transient")
	}, nil)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
