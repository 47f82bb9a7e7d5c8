package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type LlamaCppConfig struct {
	BaseURL     string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// LlamaCpp calls the /completion endpoint of a llama.cpp server.
type LlamaCpp struct {
	baseURL     string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	client      *http.Client
}

type llamaCompletionRequest struct {
	Prompt      string  `json:"prompt"`
	Stream      bool    `json:"stream"`
	NPredict    int     `json:"n_predict,omitempty"`
	Temperature float64 `json:"temperature"`
}

type llamaCompletionResponse struct {
	Content string `json:"content"`
}

func NewLlamaCpp(cfg LlamaCppConfig) (*LlamaCpp, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &LlamaCpp{
		baseURL:     baseURL,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		client:      client,
	}, nil
}

func (l *LlamaCpp) Available() bool {
	return l != nil && l.baseURL != ""
}

func (l *LlamaCpp) Complete(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := withTimeout(ctx, l.timeout)
	defer cancel()

	body, err := json.Marshal(llamaCompletionRequest{
		Prompt:      prompt,
		NPredict:    l.maxTokens,
		Temperature: l.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion payload: %w", err)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, l.baseURL+"/completion", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request completion: %w", classifyCallErr(ctx, err))
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read completion response: %w", classifyCallErr(ctx, err))
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("completion failed status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed llamaCompletionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	text := strings.TrimSpace(parsed.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
