package coach

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sprachpfad/pkg/analysis"
)

func TestMockBackend(t *testing.T) {
	resp, err := NewMockBackend().Generate(context.Background(), Request{Mode: analysis.ModeRetell})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.HasPrefix(resp.FeedbackText, "(MOCK)") {
		t.Fatalf("feedback: %q", resp.FeedbackText)
	}
	if resp.Model != "mock" {
		t.Fatalf("model: %q", resp.Model)
	}
}

func TestHTTPBackendGenerate(t *testing.T) {
	var gotPath, gotAuth string
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"model": "gpt-4.1-mini",
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "  Einschätzung:\n- Gut.  "}},
			},
		})
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, "sk-test", "")
	resp, err := b.Generate(context.Background(), Request{
		Mode:       analysis.ModeRetell,
		Topic:      "Der Graf",
		SourceText: "Der Graf täuscht das Dorf.",
		Transcript: "Der Graf hat alle getäuscht.",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.FeedbackText != "Einschätzung:\n- Gut." {
		t.Fatalf("feedback: %q", resp.FeedbackText)
	}
	if resp.Model != "gpt-4.1-mini" {
		t.Fatalf("model: %q", resp.Model)
	}
	if gotPath != "/v1/chat/completions" {
		t.Fatalf("path: %q", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("auth: %q", gotAuth)
	}
	if gotReq.Model != "gpt-4.1-mini" || len(gotReq.Messages) != 1 {
		t.Fatalf("request payload: %+v", gotReq)
	}
	prompt := gotReq.Messages[0].Content
	if !strings.Contains(prompt, "LEARNER_TRANSCRIPT:") || !strings.Contains(prompt, "Der Graf hat alle getäuscht.") {
		t.Fatalf("prompt missing transcript:\n%s", prompt)
	}
}

func TestHTTPBackendRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewHTTPBackend(srv.URL, "sk-test", "").Generate(context.Background(), Request{})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestHTTPBackendServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewHTTPBackend(srv.URL, "sk-test", "").Generate(context.Background(), Request{})
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestHTTPBackendMissingAPIKey(t *testing.T) {
	_, err := NewHTTPBackend("http://localhost:1", "", "").Generate(context.Background(), Request{})
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestNewBackendSelection(t *testing.T) {
	b, err := New(Options{})
	if err != nil {
		t.Fatalf("default backend: %v", err)
	}
	if _, ok := b.(*MockBackend); !ok {
		t.Fatalf("default backend type: %T", b)
	}

	b, err = New(Options{Backend: "openai", APIKey: "sk-test", Model: "custom"})
	if err != nil {
		t.Fatalf("openai backend: %v", err)
	}
	h, ok := b.(*HTTPBackend)
	if !ok {
		t.Fatalf("openai backend type: %T", b)
	}
	if h.BaseURL != "https://api.openai.com" || h.Model != "custom" {
		t.Fatalf("openai backend config: %+v", h)
	}

	if _, err := New(Options{Backend: "oracle"}); err == nil {
		t.Fatal("unknown backend must error")
	}
}

func TestBuildPromptQualityHint(t *testing.T) {
	clean := buildPrompt(Request{
		Mode:       analysis.ModeQuestion,
		Transcript: "Der Graf täuscht die Leute im Dorf.",
	})
	if !strings.Contains(clean, "QWARN: keine.") {
		t.Fatalf("clean answer got a quality hint:\n%s", clean)
	}
	if !strings.Contains(clean, modeRules[analysis.ModeQuestion]) {
		t.Fatalf("mode hint missing:\n%s", clean)
	}

	flagged := buildPrompt(Request{
		Mode:       analysis.ModeRetell,
		Transcript: "Der Graf täuscht die Leute im Dorf.",
		Flags:      analysis.Flags{LowQuality: true},
	})
	if !strings.Contains(flagged, "Die Transkription wirkt unzuverlässig") {
		t.Fatalf("quality hint missing:\n%s", flagged)
	}

	short := buildPrompt(Request{Mode: analysis.ModeRetell, Transcript: "ja"})
	if !strings.Contains(short, "Die Transkription wirkt unzuverlässig") {
		t.Fatalf("very short transcript must trigger the hint:\n%s", short)
	}
}
