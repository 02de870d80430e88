package coach

import (
	"context"
	"fmt"
	"time"
)

// MockBackend returns canned feedback without any network dependency.
// It is the default so the app works offline out of the box.
type MockBackend struct{}

// NewMockBackend creates the offline backend.
func NewMockBackend() *MockBackend { return &MockBackend{} }

// Generate returns a fixed encouragement tagged with the answer mode.
func (m *MockBackend) Generate(_ context.Context, req Request) (Response, error) {
	start := time.Now()
	text := fmt.Sprintf(
		"(MOCK) Feedback für %s: Antwort ist verständlich. Achte auf Kürze und klare Struktur.",
		req.Mode,
	)
	return Response{
		FeedbackText: text,
		Model:        "mock",
		LatencyMS:    time.Since(start).Milliseconds(),
	}, nil
}
