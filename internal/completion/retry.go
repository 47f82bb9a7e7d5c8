package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/datawise/datawise/internal/observability"
)

type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}
}

// delay returns the wait before the given zero-based attempt: 0, base, 2*base, 4*base...
func (p RetryPolicy) delay(attempt int) time.Duration {
	if attempt <= 0 || p.BaseDelay <= 0 {
		return 0
	}
	return p.BaseDelay << (attempt - 1)
}

// Retrying retries transient backend failures with exponential backoff.
// Empty responses and caller cancellation end the call immediately.
type Retrying struct {
	backend Service
	policy  RetryPolicy
	logger  *slog.Logger
	sleep   func(context.Context, time.Duration) error
}

func NewRetrying(backend Service, policy RetryPolicy, logger *slog.Logger) *Retrying {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Retrying{
		backend: backend,
		policy:  policy,
		logger:  observability.LoggerOrDiscard(logger),
		sleep:   sleepContext,
	}
}

func (r *Retrying) Available() bool {
	return r.backend != nil && r.backend.Available()
}

func (r *Retrying) Complete(ctx context.Context, prompt string) (string, error) {
	if !r.Available() {
		observability.ObserveCompletionAttempt("unavailable")
		if r.backend == nil {
			return "", ErrUnavailable
		}
		_, err := r.backend.Complete(ctx, prompt)
		if err == nil {
			err = ErrUnavailable
		}
		return "", err
	}

	var lastErr error
	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		if wait := r.policy.delay(attempt); wait > 0 {
			if err := r.sleep(ctx, wait); err != nil {
				return "", fmt.Errorf("wait before completion retry: %w", err)
			}
		}

		text, err := r.backend.Complete(ctx, prompt)
		if err == nil && strings.TrimSpace(text) == "" {
			err = ErrEmptyResponse
		}
		if err == nil {
			observability.ObserveCompletionAttempt("success")
			return text, nil
		}
		if errors.Is(err, ErrEmptyResponse) {
			observability.ObserveCompletionAttempt("empty")
			return "", err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			observability.ObserveCompletionAttempt("canceled")
			return "", fmt.Errorf("complete: %w", ctxErr)
		}

		outcome := "error"
		if errors.Is(err, ErrTimeout) {
			outcome = "timeout"
		}
		observability.ObserveCompletionAttempt(outcome)
		lastErr = err
		r.logger.WarnContext(ctx, "completion attempt failed",
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", r.policy.MaxAttempts),
			slog.String("error", err.Error()),
		)
	}
	return "", fmt.Errorf("completion failed after %d attempts: %w", r.policy.MaxAttempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
