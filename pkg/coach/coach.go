// Package coach produces feedback on learner answers. The orchestration
// layer only sees the Backend interface; unreachable or rate-limited
// backends degrade to an error the exercise flow can ignore.
package coach

import (
	"context"
	"errors"

	"sprachpfad/pkg/analysis"
)

var (
	// ErrBackendUnavailable signals the feedback service cannot be reached
	// or is misconfigured. Sessions still complete without feedback.
	ErrBackendUnavailable = errors.New("coach backend unavailable")
	// ErrRateLimited signals the backend asked us to back off.
	ErrRateLimited = errors.New("coach backend rate limited")
)

// Request carries everything the coach needs to judge one answer.
type Request struct {
	Mode       analysis.Mode
	Topic      string
	SourceText string
	Transcript string
	Stats      analysis.Stats
	Flags      analysis.Flags
}

// Response is the coach's verdict.
type Response struct {
	FeedbackText string
	Model        string
	LatencyMS    int64
}

// Backend generates feedback for one answer.
type Backend interface {
	Generate(ctx context.Context, req Request) (Response, error)
}
