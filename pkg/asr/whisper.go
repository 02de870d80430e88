package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Flavor selects the wire protocol of the whisper server.
type Flavor string

const (
	// FlavorOpenAI speaks the /v1/audio/transcriptions API.
	FlavorOpenAI Flavor = "openai"
	// FlavorWebservice speaks the onerahmet/openai-whisper-asr-webservice API.
	FlavorWebservice Flavor = "webservice"
)

// WhisperClient transcribes audio through an HTTP whisper server.
type WhisperClient struct {
	BaseURL  string
	Flavor   Flavor
	Model    string
	Language string
	APIKey   string
	Client   *http.Client
}

// NewWhisperClient creates a client for the given server. Language
// defaults to German, the model to small.
func NewWhisperClient(baseURL string, flavor Flavor) *WhisperClient {
	return &WhisperClient{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Flavor:   flavor,
		Model:    "small",
		Language: "de",
		Client:   &http.Client{Timeout: 120 * time.Second},
	}
}

// Transcribe uploads the audio file and returns the recognized text,
// trimmed. All failures wrap ErrTranscriptionFailed.
func (c *WhisperClient) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return Result{}, fmt.Errorf("open audio %s: %w: %v", audioPath, ErrTranscriptionFailed, err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fileField := "file"
	if c.Flavor == FlavorWebservice {
		fileField = "audio_file"
	}
	part, err := mw.CreateFormFile(fileField, filepath.Base(audioPath))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}
	if c.Flavor == FlavorOpenAI {
		_ = mw.WriteField("model", c.Model)
		_ = mw.WriteField("language", c.Language)
		_ = mw.WriteField("temperature", "0")
	}
	if err := mw.Close(); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), &body)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("call whisper server: %w: %v", ErrTranscriptionFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("whisper server status %d: %w: %s", resp.StatusCode, ErrTranscriptionFailed, truncate(string(data), 200))
	}

	text, err := c.parse(data)
	if err != nil {
		return Result{}, err
	}
	return Result{Text: strings.TrimSpace(text), Language: c.Language}, nil
}

func (c *WhisperClient) endpoint() string {
	switch c.Flavor {
	case FlavorWebservice:
		q := url.Values{}
		q.Set("language", c.Language)
		q.Set("output", "json")
		return c.BaseURL + "/asr?" + q.Encode()
	default:
		return c.BaseURL + "/v1/audio/transcriptions"
	}
}

func (c *WhisperClient) parse(data []byte) (string, error) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("decode whisper response: %w: %v", ErrTranscriptionFailed, err)
	}
	return payload.Text, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
