// Package completion wraps the text-generation backends behind a single
// prompt-in, text-out interface.
package completion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/datawise/datawise/internal/config"
)

var (
	ErrUnavailable   = errors.New("completion service unavailable")
	ErrTimeout       = errors.New("completion timed out")
	ErrEmptyResponse = errors.New("completion returned no text")
)

// Service produces text for a prompt. Callers treat any error as "no text".
type Service interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Available() bool
}

// Disabled is used when no backend is configured.
type Disabled struct {
	Reason string
}

func (d Disabled) Complete(context.Context, string) (string, error) {
	if d.Reason == "" {
		return "", ErrUnavailable
	}
	return "", fmt.Errorf("%w: %s", ErrUnavailable, d.Reason)
}

func (Disabled) Available() bool { return false }

// New builds the configured backend wrapped in the retry policy. A provider
// without credentials yields a Disabled service rather than an error.
func New(ctx context.Context, cfg config.AIConfig, logger *slog.Logger) (Service, error) {
	var backend Service
	switch strings.ToLower(cfg.Provider) {
	case config.ProviderGemini:
		if strings.TrimSpace(cfg.APIKey) == "" {
			backend = Disabled{Reason: "gemini api key is not set"}
			break
		}
		gemini, err := NewGemini(ctx, GeminiConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		backend = gemini
	case config.ProviderOpenAI:
		if strings.TrimSpace(cfg.APIKey) == "" {
			backend = Disabled{Reason: "openai api key is not set"}
			break
		}
		backend = NewOpenAI(OpenAIConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		})
	case config.ProviderLlamaCpp:
		if strings.TrimSpace(cfg.BaseURL) == "" {
			backend = Disabled{Reason: "llama.cpp base url is not set"}
			break
		}
		llama, err := NewLlamaCpp(LlamaCppConfig{
			BaseURL:     cfg.BaseURL,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		backend = llama
	default:
		return nil, fmt.Errorf("unsupported completion provider %q", cfg.Provider)
	}

	return NewRetrying(backend, RetryPolicy{MaxAttempts: cfg.MaxRetries, BaseDelay: cfg.RetryBackoff}, logger), nil
}

// withTimeout bounds a single backend call. A zero timeout leaves ctx as is.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// classifyCallErr reports ErrTimeout when the per-call deadline fired but the
// caller's context is still live.
func classifyCallErr(parent context.Context, err error) error {
	if err == nil {
		return nil
	}
	if parent.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
