package coach

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

// HTTPBackend talks to an OpenAI-compatible chat completions endpoint.
// Works against api.openai.com as well as local servers exposing the
// same API.
type HTTPBackend struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Client    *http.Client
}

// NewHTTPBackend creates a backend for the given endpoint.
func NewHTTPBackend(baseURL, apiKey, model string) *HTTPBackend {
	if model == "" {
		model = "gpt-4.1-mini"
	}
	return &HTTPBackend{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		APIKey:    apiKey,
		Model:     model,
		MaxTokens: 280,
		Client:    &http.Client{Timeout: 15 * time.Second},
	}
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate sends the structured prompt and returns the model's feedback.
func (h *HTTPBackend) Generate(ctx context.Context, req Request) (Response, error) {
	if h.APIKey == "" {
		return Response{}, fmt.Errorf("api key not configured: %w", ErrBackendUnavailable)
	}
	start := time.Now()

	payload, err := json.Marshal(chatRequest{
		Model:     h.Model,
		MaxTokens: h.MaxTokens,
		Messages:  []chatMessage{{Role: "user", Content: buildPrompt(req)}},
	})
	if err != nil {
		return Response{}, fmt.Errorf("encode coach request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("build coach request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+h.APIKey)

	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("call coach backend: %w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return Response{}, fmt.Errorf("read coach response: %w: %v", ErrBackendUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return Response{}, fmt.Errorf("coach backend status 429: %w", ErrRateLimited)
	case resp.StatusCode != http.StatusOK:
		return Response{}, fmt.Errorf("coach backend status %d: %w: %s", resp.StatusCode, ErrBackendUnavailable, truncate(string(body), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Response{}, fmt.Errorf("decode coach response: %w: %v", ErrBackendUnavailable, err)
	}
	if len(parsed.Choices) == 0 {
		return Response{}, fmt.Errorf("coach response has no choices: %w", ErrBackendUnavailable)
	}
	return Response{
		FeedbackText: strings.TrimSpace(parsed.Choices[0].Message.Content),
		Model:        parsed.Model,
		LatencyMS:    time.Since(start).Milliseconds(),
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
