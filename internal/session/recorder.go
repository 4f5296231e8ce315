package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRecorderUnavailable indicates runtime capture/engine wiring is missing.
	ErrRecorderUnavailable = errors.New("audio capture and transcription pipeline not available")
	// ErrEmptyTranscript indicates stop completed but no usable speech was recognized.
	ErrEmptyTranscript = errors.New("no speech recognized; check microphone input or mute state")
)

// Recording is the finalized canonical audio produced by one capture run.
type Recording struct {
	CanonicalPath   string
	AudioDevice     string
	SamplesCaptured int64
	Duration        time.Duration
}

// StopResult is the transcription output consumed by the session controller.
type StopResult struct {
	Transcript    string
	ModelID       string
	EngineLatency time.Duration
}

// Recorder abstracts the capture/conditioning/transcription operations the
// session controller orchestrates.
type Recorder interface {
	// Start begins capture; after it returns, AutoStop is live.
	Start(context.Context) error
	// AutoStop fires once when sustained silence exceeds the configured
	// timeout. A nil channel disables the trigger.
	AutoStop() <-chan struct{}
	// Levels is the display loudness stream for UI feedback.
	Levels() <-chan float64
	// Finalize stops capture and conditions the buffer into canonical form.
	Finalize(context.Context) (Recording, error)
	// Transcribe hands the canonical recording to the engine.
	Transcribe(context.Context, Recording) (StopResult, error)
	// Cancel stops capture and discards all captured audio.
	Cancel(context.Context) error
}

// PlaceholderRecorder is a no-op placeholder used in tests/fallback wiring.
type PlaceholderRecorder struct{}

func (PlaceholderRecorder) Start(context.Context) error { return nil }

func (PlaceholderRecorder) AutoStop() <-chan struct{} { return nil }

func (PlaceholderRecorder) Levels() <-chan float64 { return nil }

func (PlaceholderRecorder) Finalize(context.Context) (Recording, error) {
	return Recording{}, ErrRecorderUnavailable
}

func (PlaceholderRecorder) Transcribe(context.Context, Recording) (StopResult, error) {
	return StopResult{}, ErrRecorderUnavailable
}

func (PlaceholderRecorder) Cancel(context.Context) error { return nil }
