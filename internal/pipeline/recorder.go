// Package pipeline wires capture, conditioning, and the transcription engine
// into the recorder consumed by the session controller.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/moinulmoin/voicetypr/internal/audio"
	"github.com/moinulmoin/voicetypr/internal/config"
	"github.com/moinulmoin/voicetypr/internal/session"
	"github.com/moinulmoin/voicetypr/internal/sidecar"
	"github.com/moinulmoin/voicetypr/internal/transcript"
)

// Engine is the transcription surface the recorder drives. *sidecar.Client
// satisfies it.
type Engine interface {
	LoadModel(ctx context.Context, opts sidecar.ModelOptions) error
	Transcribe(ctx context.Context, audioPath string, opts sidecar.TranscribeOptions) (sidecar.Result, error)
}

// captureClient is the capture surface the consume loop drains.
type captureClient interface {
	Chunks() <-chan []float32
	SampleRate() int
	Device() audio.Device
	SamplesCaptured() int64
	Stop() error
}

// Recorder owns one capture -> conditioning -> engine pipeline instance.
type Recorder struct {
	cfg    config.Config
	engine Engine
	logger *slog.Logger

	selectDevice func(context.Context, string) (audio.Device, error)
	startCapture func(context.Context, audio.Device, int) (captureClient, error)

	mu          sync.Mutex
	started     bool
	capture     captureClient
	meter       *audio.LevelMeter
	autoStop    chan struct{}
	consumeDone chan struct{}

	// raw is appended by the consume loop and read only after consumeDone
	// closes.
	raw []float32
}

// NewRecorder constructs a pipeline recorder from runtime config.
func NewRecorder(cfg config.Config, engine Engine, logger *slog.Logger) *Recorder {
	return &Recorder{
		cfg:          cfg,
		engine:       engine,
		logger:       logger,
		selectDevice: audio.SelectDevice,
		startCapture: func(ctx context.Context, device audio.Device, rate int) (captureClient, error) {
			return audio.StartCapture(ctx, device, rate)
		},
	}
}

// Start resolves device selection and begins capturing. The consume loop fans
// each chunk into the level meter, the accumulation buffer, and the silence
// detector without ever blocking the capture callback.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return fmt.Errorf("recorder already started")
	}

	device, err := r.selectDevice(ctx, r.cfg.Audio.Input)
	if err != nil {
		return err
	}

	capture, err := r.startCapture(ctx, device, r.cfg.Audio.CaptureRate)
	if err != nil {
		return err
	}

	r.capture = capture
	r.meter = audio.NewLevelMeter(capture.SampleRate(), r.logger)
	r.autoStop = make(chan struct{}, 1)
	r.consumeDone = make(chan struct{})
	r.raw = nil

	var detector *audio.SilenceDetector
	if r.cfg.Recording.AutoStop && r.cfg.Recording.SilenceTimeoutMS > 0 {
		detector = audio.NewSilenceDetector(time.Duration(r.cfg.Recording.SilenceTimeoutMS) * time.Millisecond)
	}
	go r.consume(capture, r.meter, detector, r.autoStop, r.consumeDone)

	r.started = true
	return nil
}

// AutoStop fires at most once when sustained silence exceeds the configured
// timeout. Nil before Start.
func (r *Recorder) AutoStop() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.autoStop
}

// Levels returns the display loudness stream. Nil before Start.
func (r *Recorder) Levels() <-chan float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.meter == nil {
		return nil
	}
	return r.meter.Levels()
}

// consume drains capture chunks until the stream closes.
func (r *Recorder) consume(capture captureClient, meter *audio.LevelMeter, detector *audio.SilenceDetector, autoStop chan struct{}, done chan struct{}) {
	defer close(done)

	fired := false
	for chunk := range capture.Chunks() {
		rms := meter.Process(chunk)
		r.raw = append(r.raw, chunk...)

		if detector != nil && detector.Update(rms) && !fired {
			fired = true
			select {
			case autoStop <- struct{}{}:
			default:
			}
		}
	}
}

// Finalize stops capture and conditions the accumulated buffer into the
// canonical engine format on disk.
func (r *Recorder) Finalize(ctx context.Context) (session.Recording, error) {
	r.mu.Lock()
	started := r.started
	capture := r.capture
	meter := r.meter
	consumeDone := r.consumeDone
	r.started = false
	r.capture = nil
	r.mu.Unlock()

	if !started || capture == nil {
		return session.Recording{}, session.ErrRecorderUnavailable
	}

	_ = capture.Stop()
	<-consumeDone
	meter.Close()

	raw := r.raw
	r.raw = nil

	rate := capture.SampleRate()
	recording := session.Recording{
		AudioDevice:     describeDevice(capture.Device()),
		SamplesCaptured: capture.SamplesCaptured(),
		Duration:        time.Duration(len(raw)) * time.Second / time.Duration(rate),
	}

	if err := ctx.Err(); err != nil {
		return recording, err
	}

	conditioned, err := audio.Normalize(raw, rate, 1, r.logger)
	if err != nil {
		return recording, fmt.Errorf("condition recording: %w", err)
	}

	path, err := createRecordingPath()
	if err != nil {
		return recording, err
	}
	if err := audio.WriteWAV(path, conditioned); err != nil {
		return recording, fmt.Errorf("write canonical recording: %w", err)
	}

	recording.CanonicalPath = path
	return recording, nil
}

// Transcribe ensures the configured model is loaded and hands the canonical
// recording to the engine.
func (r *Recorder) Transcribe(ctx context.Context, recording session.Recording) (session.StopResult, error) {
	if r.engine == nil {
		return session.StopResult{}, session.ErrRecorderUnavailable
	}
	if !r.cfg.Debug.KeepAudio {
		defer removeRecording(recording.CanonicalPath, r.logger)
	}

	err := r.engine.LoadModel(ctx, sidecar.ModelOptions{
		ModelID:   r.cfg.Engine.Model,
		Precision: r.cfg.Engine.Precision,
		Attention: r.cfg.Engine.Attention,
		CacheDir:  r.cfg.Engine.CacheDir,
	})
	if err != nil {
		return session.StopResult{}, fmt.Errorf("load model %q: %w", r.cfg.Engine.Model, err)
	}

	start := time.Now()
	result, err := r.engine.Transcribe(ctx, recording.CanonicalPath, sidecar.TranscribeOptions{
		Language: r.cfg.Engine.Language,
	})
	latency := time.Since(start)
	if err != nil {
		return session.StopResult{EngineLatency: latency}, err
	}

	segments := result.Segments
	if len(segments) == 0 && strings.TrimSpace(result.Text) != "" {
		segments = []sidecar.Segment{{Text: result.Text}}
	}

	return session.StopResult{
		Transcript:    transcript.Assemble(segments, transcript.Options{TrailingSpace: r.cfg.Transcript.TrailingSpace}),
		ModelID:       r.cfg.Engine.Model,
		EngineLatency: latency,
	}, nil
}

// Cancel stops capture and discards everything accumulated so far.
func (r *Recorder) Cancel(_ context.Context) error {
	r.mu.Lock()
	started := r.started
	capture := r.capture
	meter := r.meter
	consumeDone := r.consumeDone
	r.started = false
	r.capture = nil
	r.mu.Unlock()

	if !started || capture == nil {
		return nil
	}

	_ = capture.Stop()
	<-consumeDone
	meter.Close()
	r.raw = nil
	return nil
}

// describeDevice formats device metadata for logs/session results.
func describeDevice(device audio.Device) string {
	description := strings.TrimSpace(device.Description)
	id := strings.TrimSpace(device.ID)
	if description == "" {
		return id
	}
	if id == "" {
		return description
	}
	return fmt.Sprintf("%s (%s)", description, id)
}

// createRecordingPath returns a timestamped path under state/voicetypr/recordings.
func createRecordingPath() (string, error) {
	stateDir, err := resolveStateDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(stateDir, "voicetypr", "recordings")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create recordings dir: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405.000")
	return filepath.Join(dir, fmt.Sprintf("rec-%s.wav", timestamp)), nil
}

// resolveStateDir returns XDG_STATE_HOME with the ~/.local/state fallback.
func resolveStateDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return xdg, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory for state: %w", err)
	}
	return filepath.Join(home, ".local", "state"), nil
}

func removeRecording(path string, logger *slog.Logger) {
	if strings.TrimSpace(path) == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) && logger != nil {
		logger.Warn("unable to remove recording", "path", path, "error", err.Error())
	}
}
