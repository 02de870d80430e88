// Package audio captures microphone recordings for exercise answers and
// manages the retention of the resulting WAV files.
package audio

import (
	"context"
	"time"
)

// Recognition-friendly capture format: 16 kHz mono.
const (
	SampleRate      = 16000
	Channels        = 1
	FramesPerBuffer = 1024
	// MinSamples pads very short takes to 200ms; shorter clips make the
	// recognizer error out.
	MinSamples = SampleRate / 5
)

// Recording is one captured take on disk.
type Recording struct {
	Path     string
	Duration time.Duration
}

// Recorder captures one utterance to a WAV file. Implementations block
// until maxDuration elapses or ctx is cancelled, whichever comes first.
type Recorder interface {
	Record(ctx context.Context, outPath string, maxDuration time.Duration) (Recording, error)
}
