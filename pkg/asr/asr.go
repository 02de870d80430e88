// Package asr turns recorded audio into transcripts. Recognition runs in
// an external whisper server; this package is only the client.
package asr

import (
	"context"
	"errors"
)

// ErrTranscriptionFailed wraps any recognition failure so callers can
// branch on it without knowing the backend.
var ErrTranscriptionFailed = errors.New("transcription failed")

// Result is one recognized utterance.
type Result struct {
	Text     string
	Language string
}

// Transcriber converts a recorded audio file to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (Result, error)
}
