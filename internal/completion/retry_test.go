package completion

import (
	"context"
	"errors"
	"testing"
	"time"
)

type scriptedBackend struct {
	available bool
	replies   []reply
	calls     int
}

type reply struct {
	text string
	err  error
}

func (s *scriptedBackend) Available() bool { return s.available }

func (s *scriptedBackend) Complete(context.Context, string) (string, error) {
	s.calls++
	if len(s.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	next := s.replies[0]
	s.replies = s.replies[1:]
	return next.text, next.err
}

func newTestRetrying(backend Service, policy RetryPolicy) (*Retrying, *[]time.Duration) {
	waits := []time.Duration{}
	r := NewRetrying(backend, policy, nil)
	r.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return r, &waits
}

func TestRetryingBacksOffExponentially(t *testing.T) {
	backend := &scriptedBackend{available: true, replies: []reply{
		{err: errors.New("503")},
		{err: ErrTimeout},
		{text: "SELECT 1"},
	}}
	r, waits := newTestRetrying(backend, DefaultRetryPolicy())

	got, err := r.Complete(context.Background(), "p")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "SELECT 1" {
		t.Fatalf("Complete() = %q", got)
	}
	if backend.calls != 3 {
		t.Fatalf("calls = %d, want 3", backend.calls)
	}
	if len(*waits) != 2 || (*waits)[0] != time.Second || (*waits)[1] != 2*time.Second {
		t.Fatalf("waits = %v, want [1s 2s]", *waits)
	}
}

func TestRetryingReturnsLastErrorAfterExhaustion(t *testing.T) {
	cause := errors.New("upstream down")
	backend := &scriptedBackend{available: true, replies: []reply{{err: cause}, {err: cause}, {err: cause}}}
	r, _ := newTestRetrying(backend, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond})

	_, err := r.Complete(context.Background(), "p")
	if !errors.Is(err, cause) {
		t.Fatalf("Complete() error = %v, want wrapped cause", err)
	}
	if backend.calls != 3 {
		t.Fatalf("calls = %d", backend.calls)
	}
}

func TestRetryingDoesNotRetryEmptyResponse(t *testing.T) {
	backend := &scriptedBackend{available: true, replies: []reply{{text: "  "}, {text: "SELECT 1"}}}
	r, waits := newTestRetrying(backend, DefaultRetryPolicy())

	_, err := r.Complete(context.Background(), "p")
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("Complete() error = %v, want ErrEmptyResponse", err)
	}
	if backend.calls != 1 || len(*waits) != 0 {
		t.Fatalf("calls = %d waits = %v", backend.calls, *waits)
	}
}

func TestRetryingStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	backend := &scriptedBackend{available: true, replies: []reply{{err: errors.New("boom")}, {text: "late"}}}
	r, _ := newTestRetrying(backend, DefaultRetryPolicy())
	cancel()

	_, err := r.Complete(ctx, "p")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Complete() error = %v, want context.Canceled", err)
	}
	if backend.calls != 1 {
		t.Fatalf("calls = %d", backend.calls)
	}
}

func TestRetryingUnavailableBackend(t *testing.T) {
	r := NewRetrying(Disabled{Reason: "no key"}, DefaultRetryPolicy(), nil)
	if r.Available() {
		t.Fatal("Available() = true")
	}
	_, err := r.Complete(context.Background(), "p")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Complete() error = %v, want ErrUnavailable", err)
	}
}

func TestSleepContextHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("sleepContext() error = %v", err)
	}
}
