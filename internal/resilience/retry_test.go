package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIsRetryable_Classification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"permanent wrapper", Permanent(errors.New("bad input")), false},
		{"cancelled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"http 404", &HTTPError{StatusCode: 404, Status: "404 Not Found"}, false},
		{"http 500", &HTTPError{StatusCode: 500, Status: "500 Internal Server Error"}, true},
		{"http 503", &HTTPError{StatusCode: 503, Status: "503 Service Unavailable"}, true},
		{"connection reset text", errors.New("read tcp: connection reset by peer"), true},
		{"unknown", errors.New("something odd"), true},
	}

	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Errorf("%s: IsRetryable=%v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestRetry_PermanentFailsImmediately(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Retry(context.Background(), RetryConfig{MaxAttempts: 4, BaseDelay: time.Millisecond}, func(ctx context.Context) error {
		calls++
		return &HTTPError{StatusCode: 404, Status: "404 Not Found"}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("404 should not be retried: got %d attempts", calls)
	}
}

func TestRetry_TransientRetriedToCap(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Retry(context.Background(), RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond}, func(ctx context.Context) error {
		calls++
		return context.DeadlineExceeded
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Errorf("timeout should be retried up to the cap: got %d attempts, want 3", calls)
	}
}

func TestRetry_SucceedsAfterTransientFailure(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Retry(context.Background(), RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond}, func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return &HTTPError{StatusCode: 502, Status: "502 Bad Gateway"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("got %d attempts, want 2", calls)
	}
}

func TestRetry_ContextCancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Retry(ctx, RetryConfig{MaxAttempts: 5, BaseDelay: time.Second}, func(ctx context.Context) error {
		calls++
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("got %d attempts before cancellation, want 1", calls)
	}
}

func TestRetryValue(t *testing.T) {
	t.Parallel()

	calls := 0
	out, err := RetryValue(context.Background(), RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond}, func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "ok" {
		t.Errorf("got %q, want %q", out, "ok")
	}
}

func TestWithTimeout(t *testing.T) {
	t.Parallel()

	err := WithTimeout(context.Background(), 5*time.Millisecond, func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
