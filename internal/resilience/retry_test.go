package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	err := Do(context.Background(), DefaultRetryConfig(), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_SuccessAfterRetry(t *testing.T) {
	var calls int
	cfg := RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: 1 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		Multiplier:     2.0,
	}

	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("temporary"), 503)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls (2 failures then success), got %d", calls)
	}
}

func TestDo_ExhaustsRetries(t *testing.T) {
	var calls int
	cfg := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		Multiplier:     2.0,
	}

	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		return NewTransientError(errors.New("always fails"), 500)
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %T: %v", err, err)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("expected 3 recorded attempts, got %d", exhausted.Attempts)
	}
	if exhausted.LastErr == nil {
		t.Error("expected last error to be carried")
	}
}

func TestDo_FatalError_NoRetry(t *testing.T) {
	var calls int
	cfg := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Millisecond,
	}

	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		return NewCredentialError(errors.New("invalid api key"))
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call (no retry for fatal), got %d", calls)
	}
	if !IsCredential(err) {
		t.Error("credential error should survive unwrapped")
	}
	if IsExhausted(err) {
		t.Error("fatal error must not be reported as exhaustion")
	}
}

func TestDo_ContextCancelled_StopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	cfg := RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     100 * time.Millisecond,
		Multiplier:     2.0,
	}

	err := Do(ctx, cfg, func(_ context.Context) error {
		calls++
		cancel()
		return NewTransientError(errors.New("temporary"), 503)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call before cancellation stopped retries, got %d", calls)
	}
}

func TestDoVal_PreservesValue(t *testing.T) {
	var calls int
	cfg := RetryConfig{
		MaxAttempts:    4,
		InitialBackoff: 1 * time.Millisecond,
	}

	got, err := DoVal(context.Background(), cfg, func(_ context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", NewTransientError(errors.New("overloaded"), 529)
		}
		return "mint-9", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "mint-9" {
		t.Errorf("expected value preserved, got %q", got)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestDo_OnRetryCallback(t *testing.T) {
	type retryEvent struct {
		attempt int
		delay   time.Duration
	}
	var events []retryEvent

	cfg := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Millisecond,
		OnRetry: func(attempt int, delay time.Duration, _ error) {
			events = append(events, retryEvent{attempt, delay})
		},
	}

	_ = Do(context.Background(), cfg, func(_ context.Context) error {
		return NewTransientError(errors.New("busy"), 503)
	})

	// Two retries follow three attempts.
	if len(events) != 2 {
		t.Fatalf("expected 2 retry notifications, got %d", len(events))
	}
	if events[0].attempt != 1 || events[1].attempt != 2 {
		t.Errorf("unexpected attempt numbers: %+v", events)
	}
}

func TestDo_OnRetryPanicDoesNotStallRetries(t *testing.T) {
	var calls int
	cfg := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Millisecond,
		OnRetry: func(int, time.Duration, error) {
			panic("progress text renderer blew up")
		},
	}

	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("busy"), 503)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls despite panicking callback, got %d", calls)
	}
}

func TestComputeBackoff_MonotoneUntilCap(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0, // jitter off so the sequence is deterministic
	}

	var prev time.Duration
	for attempt := 0; attempt < 10; attempt++ {
		delay := ComputeBackoff(attempt, cfg)
		if delay < prev {
			t.Errorf("attempt %d: delay %v decreased from %v", attempt, delay, prev)
		}
		if delay > cfg.MaxBackoff {
			t.Errorf("attempt %d: delay %v exceeds cap %v", attempt, delay, cfg.MaxBackoff)
		}
		prev = delay
	}
	if prev != cfg.MaxBackoff {
		t.Errorf("expected final delay pinned at cap, got %v", prev)
	}
}

func TestComputeBackoff_JitterStaysBounded(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}

	for attempt := 0; attempt < 6; attempt++ {
		base := float64(cfg.InitialBackoff) * pow(cfg.Multiplier, attempt)
		for i := 0; i < 50; i++ {
			delay := float64(ComputeBackoff(attempt, cfg))
			if delay < base*0.75-1 || delay > base*1.25+1 {
				t.Fatalf("attempt %d: delay %v outside jitter bounds around %v", attempt, time.Duration(delay), time.Duration(base))
			}
		}
	}
}

func pow(base float64, exp int) float64 {
	out := 1.0
	for i := 0; i < exp; i++ {
		out *= base
	}
	return out
}
