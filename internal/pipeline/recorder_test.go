package pipeline

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/moinulmoin/voicetypr/internal/audio"
	"github.com/moinulmoin/voicetypr/internal/config"
	"github.com/moinulmoin/voicetypr/internal/session"
	"github.com/moinulmoin/voicetypr/internal/sidecar"
)

func TestDescribeDevice(t *testing.T) {
	require.Equal(t, "Elgato (alsa_input.wave3)", describeDevice(audio.Device{Description: "Elgato", ID: "alsa_input.wave3"}))
	require.Equal(t, "Elgato", describeDevice(audio.Device{Description: "Elgato"}))
	require.Equal(t, "alsa_input.wave3", describeDevice(audio.Device{ID: "alsa_input.wave3"}))
}

func TestResolveStateDirUsesXDGStateHome(t *testing.T) {
	xdgStateHome := t.TempDir()
	t.Setenv("XDG_STATE_HOME", xdgStateHome)
	t.Setenv("HOME", t.TempDir())

	dir, err := resolveStateDir()
	require.NoError(t, err)
	require.Equal(t, xdgStateHome, dir)
}

func TestResolveStateDirFallsBackToHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("HOME", home)

	dir, err := resolveStateDir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".local", "state"), dir)
}

func TestCreateRecordingPathShape(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	path, err := createRecordingPath()
	require.NoError(t, err)
	require.Contains(t, path, filepath.Join("voicetypr", "recordings"))
	require.Contains(t, filepath.Base(path), "rec-")
	require.Equal(t, ".wav", filepath.Ext(path))
	require.DirExists(t, filepath.Dir(path))
}

func TestStartFailsWhenAlreadyStarted(t *testing.T) {
	recorder := NewRecorder(config.Default(), nil, nil)
	recorder.started = true

	err := recorder.Start(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "already started")
}

func TestStartFailsWhenDeviceSelectionFails(t *testing.T) {
	recorder := NewRecorder(config.Default(), nil, nil)
	recorder.selectDevice = func(context.Context, string) (audio.Device, error) {
		return audio.Device{}, errors.New("no input sources")
	}
	recorder.startCapture = func(context.Context, audio.Device, int) (captureClient, error) {
		t.Fatal("startCapture should not be called when selection fails")
		return nil, nil
	}

	err := recorder.Start(context.Background())
	require.Error(t, err)
	require.False(t, recorder.started)
}

func TestFinalizeUnavailableWhenNotStarted(t *testing.T) {
	recording, err := NewRecorder(config.Default(), nil, nil).Finalize(context.Background())
	require.ErrorIs(t, err, session.ErrRecorderUnavailable)
	require.Equal(t, session.Recording{}, recording)
}

func TestCancelWithoutStart(t *testing.T) {
	require.NoError(t, NewRecorder(config.Default(), nil, nil).Cancel(context.Background()))
}

func TestStartConsumesAndFinalizeWritesCanonicalWAV(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	cfg := config.Default()
	cfg.Audio.CaptureRate = 16000
	cfg.Recording.AutoStop = false

	capture := newFakeCapture(16000, 16)
	recorder := newStubbedRecorder(cfg, nil, capture)

	require.NoError(t, recorder.Start(context.Background()))
	require.NotNil(t, recorder.AutoStop())

	levels := recorder.Levels()
	require.NotNil(t, levels)

	// One second of a clear tone, fed as capture-sized chunks.
	chunk := make([]float32, 320)
	for i := range chunk {
		chunk[i] = 0.25 * float32(math.Sin(2*math.Pi*440*float64(i)/16000))
	}
	for i := 0; i < 50; i++ {
		capture.chunks <- chunk
	}

	recording, err := recorder.Finalize(context.Background())
	require.NoError(t, err)
	require.True(t, capture.stopped())
	require.Equal(t, "Fake Mic (fake-mic)", recording.AudioDevice)
	require.Equal(t, int64(16000), recording.SamplesCaptured)
	require.Equal(t, time.Second, recording.Duration)
	require.FileExists(t, recording.CanonicalPath)

	// The meter stream must be closed so level consumers unblock.
	for range levels {
	}

	samples, rate, channels, err := audio.ReadWAV(recording.CanonicalPath)
	require.NoError(t, err)
	require.Equal(t, audio.TargetRate, rate)
	require.Equal(t, 1, channels)
	require.InDelta(t, audio.TargetPeak, audio.Peak(samples), 0.01)
}

func TestAutoStopFiresOnSustainedSilence(t *testing.T) {
	cfg := config.Default()
	cfg.Audio.CaptureRate = 16000
	cfg.Recording.AutoStop = true
	cfg.Recording.SilenceTimeoutMS = 5

	capture := newFakeCapture(16000, 4)
	recorder := newStubbedRecorder(cfg, nil, capture)
	require.NoError(t, recorder.Start(context.Background()))

	silent := make([]float32, 320)
	capture.chunks <- silent
	time.Sleep(20 * time.Millisecond)
	capture.chunks <- silent

	select {
	case <-recorder.AutoStop():
	case <-time.After(2 * time.Second):
		t.Fatal("auto-stop did not fire on sustained silence")
	}

	require.NoError(t, recorder.Cancel(context.Background()))
}

func TestFinalizeFailsOnEmptyCapture(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	cfg := config.Default()
	cfg.Recording.AutoStop = false

	capture := newFakeCapture(48000, 4)
	recorder := newStubbedRecorder(cfg, nil, capture)
	require.NoError(t, recorder.Start(context.Background()))

	_, err := recorder.Finalize(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "condition recording")
}

func TestCancelDiscardsCapturedAudio(t *testing.T) {
	cfg := config.Default()
	cfg.Recording.AutoStop = false

	capture := newFakeCapture(48000, 4)
	recorder := newStubbedRecorder(cfg, nil, capture)
	require.NoError(t, recorder.Start(context.Background()))

	capture.chunks <- make([]float32, 960)
	levels := recorder.Levels()

	require.NoError(t, recorder.Cancel(context.Background()))
	require.True(t, capture.stopped())
	require.Nil(t, recorder.raw)
	for range levels {
	}

	// A second cancel is a no-op.
	require.NoError(t, recorder.Cancel(context.Background()))
}

func TestTranscribeLoadsModelAndAssemblesTranscript(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.Model = "parakeet-tdt-1.1b"
	cfg.Engine.Precision = "fp16"
	cfg.Engine.Language = "en"
	cfg.Transcript.TrailingSpace = true

	wavPath := filepath.Join(t.TempDir(), "rec.wav")
	require.NoError(t, os.WriteFile(wavPath, []byte("stub"), 0o600))

	engine := &fakeEngine{result: sidecar.Result{
		Segments: []sidecar.Segment{{Text: "hello"}, {Text: "world"}},
	}}
	recorder := NewRecorder(cfg, engine, nil)

	result, err := recorder.Transcribe(context.Background(), session.Recording{CanonicalPath: wavPath})
	require.NoError(t, err)
	require.Equal(t, "hello world ", result.Transcript)
	require.Equal(t, "parakeet-tdt-1.1b", result.ModelID)

	require.Len(t, engine.loadOpts, 1)
	require.Equal(t, "parakeet-tdt-1.1b", engine.loadOpts[0].ModelID)
	require.Equal(t, "fp16", engine.loadOpts[0].Precision)
	require.Equal(t, []string{wavPath}, engine.paths)
	require.Equal(t, "en", engine.transcribeOpts[0].Language)

	// Canonical audio is removed once transcription finishes.
	require.NoFileExists(t, wavPath)
}

func TestTranscribeKeepsAudioWhenConfigured(t *testing.T) {
	cfg := config.Default()
	cfg.Debug.KeepAudio = true

	wavPath := filepath.Join(t.TempDir(), "rec.wav")
	require.NoError(t, os.WriteFile(wavPath, []byte("stub"), 0o600))

	engine := &fakeEngine{result: sidecar.Result{Text: "kept"}}
	recorder := NewRecorder(cfg, engine, nil)

	result, err := recorder.Transcribe(context.Background(), session.Recording{CanonicalPath: wavPath})
	require.NoError(t, err)
	require.Equal(t, "kept ", result.Transcript)
	require.FileExists(t, wavPath)
}

func TestTranscribeFallsBackToResultText(t *testing.T) {
	cfg := config.Default()
	cfg.Transcript.TrailingSpace = false

	engine := &fakeEngine{result: sidecar.Result{Text: "  plain   text "}}
	recorder := NewRecorder(cfg, engine, nil)

	result, err := recorder.Transcribe(context.Background(), session.Recording{})
	require.NoError(t, err)
	require.Equal(t, "plain text", result.Transcript)
}

func TestTranscribeLoadModelFailure(t *testing.T) {
	engine := &fakeEngine{loadErr: errors.New("weights missing")}
	recorder := NewRecorder(config.Default(), engine, nil)

	_, err := recorder.Transcribe(context.Background(), session.Recording{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "load model")
	require.Empty(t, engine.paths)
}

func TestTranscribeEngineFailurePropagates(t *testing.T) {
	engine := &fakeEngine{transcribeErr: sidecar.ErrProcessTerminated}
	recorder := NewRecorder(config.Default(), engine, nil)

	_, err := recorder.Transcribe(context.Background(), session.Recording{})
	require.ErrorIs(t, err, sidecar.ErrProcessTerminated)
}

func TestTranscribeUnavailableWithoutEngine(t *testing.T) {
	recorder := NewRecorder(config.Default(), nil, nil)
	_, err := recorder.Transcribe(context.Background(), session.Recording{})
	require.ErrorIs(t, err, session.ErrRecorderUnavailable)
}

// newStubbedRecorder wires a recorder to a fake capture client.
func newStubbedRecorder(cfg config.Config, engine Engine, capture *fakeCapture) *Recorder {
	recorder := NewRecorder(cfg, engine, nil)
	recorder.selectDevice = func(context.Context, string) (audio.Device, error) {
		return capture.device, nil
	}
	recorder.startCapture = func(context.Context, audio.Device, int) (captureClient, error) {
		return capture, nil
	}
	return recorder
}

type fakeCapture struct {
	chunks chan []float32
	rate   int
	device audio.Device

	mu         sync.Mutex
	stopCalled bool
}

func newFakeCapture(rate int, buffer int) *fakeCapture {
	return &fakeCapture{
		chunks: make(chan []float32, buffer),
		rate:   rate,
		device: audio.Device{ID: "fake-mic", Description: "Fake Mic"},
	}
}

func (f *fakeCapture) Chunks() <-chan []float32 { return f.chunks }

func (f *fakeCapture) SampleRate() int { return f.rate }

func (f *fakeCapture) Device() audio.Device { return f.device }

func (f *fakeCapture) SamplesCaptured() int64 { return 16000 }

func (f *fakeCapture) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.stopCalled {
		f.stopCalled = true
		close(f.chunks)
	}
	return nil
}

func (f *fakeCapture) stopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalled
}

type fakeEngine struct {
	loadErr       error
	transcribeErr error
	result        sidecar.Result

	loadOpts       []sidecar.ModelOptions
	transcribeOpts []sidecar.TranscribeOptions
	paths          []string
}

func (f *fakeEngine) LoadModel(_ context.Context, opts sidecar.ModelOptions) error {
	f.loadOpts = append(f.loadOpts, opts)
	return f.loadErr
}

func (f *fakeEngine) Transcribe(_ context.Context, audioPath string, opts sidecar.TranscribeOptions) (sidecar.Result, error) {
	f.paths = append(f.paths, audioPath)
	f.transcribeOpts = append(f.transcribeOpts, opts)
	if f.transcribeErr != nil {
		return sidecar.Result{}, f.transcribeErr
	}
	return f.result, nil
}
