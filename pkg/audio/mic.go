package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// MicRecorder captures from the default input device through portaudio.
// Init must be called once per process before recording.
type MicRecorder struct {
	mu          sync.Mutex
	initialized bool
}

// NewMicRecorder creates an uninitialized microphone recorder.
func NewMicRecorder() *MicRecorder {
	return &MicRecorder{}
}

// Init sets up the portaudio runtime.
func (m *MicRecorder) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initialized {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initialize portaudio: %w", err)
	}
	m.initialized = true
	return nil
}

// Close tears the portaudio runtime down.
func (m *MicRecorder) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return nil
	}
	m.initialized = false
	return portaudio.Terminate()
}

// Record captures until maxDuration or ctx cancellation and writes the
// take as 16-bit PCM WAV. Cancellation keeps what was captured so far.
func (m *MicRecorder) Record(ctx context.Context, outPath string, maxDuration time.Duration) (Recording, error) {
	if err := m.Init(); err != nil {
		return Recording{}, err
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return Recording{}, fmt.Errorf("create audio dir: %w", err)
	}

	buffer := make([]int16, FramesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(Channels, 0, float64(SampleRate), FramesPerBuffer, buffer)
	if err != nil {
		return Recording{}, fmt.Errorf("open input stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return Recording{}, fmt.Errorf("start input stream: %w", err)
	}
	defer stream.Stop()

	maxSamples := int(maxDuration.Seconds() * SampleRate)
	samples := make([]int16, 0, maxSamples)

capture:
	for len(samples) < maxSamples {
		select {
		case <-ctx.Done():
			break capture
		default:
		}
		if err := stream.Read(); err != nil {
			// transient overflows happen; keep what we have and retry
			time.Sleep(10 * time.Millisecond)
			continue
		}
		samples = append(samples, buffer...)
	}

	// pad very short takes so the recognizer accepts them
	if len(samples) < MinSamples {
		samples = append(samples, make([]int16, MinSamples-len(samples))...)
	}

	if err := WriteWAV(outPath, samples, SampleRate); err != nil {
		return Recording{}, err
	}
	dur := time.Duration(len(samples)) * time.Second / SampleRate
	return Recording{Path: outPath, Duration: dur}, nil
}
