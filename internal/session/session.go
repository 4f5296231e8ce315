// Package session coordinates recording lifecycle phases, actions, and
// commit flow for one session slot.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/moinulmoin/voicetypr/internal/fsm"
	"github.com/moinulmoin/voicetypr/internal/ipc"
)

type action int

const (
	actionStop action = iota + 1
	actionCancel
)

// stopReason records which trigger ended the recording phase.
type stopReason string

const (
	stopManual  stopReason = "manual"
	stopSilence stopReason = "silence"
)

// Result is the complete lifecycle output returned by one Run invocation.
type Result struct {
	SessionID       string
	Phase           fsm.Phase
	Transcript      string
	ModelID         string
	Cancelled       bool
	StopReason      string
	Err             error
	AudioDevice     string
	SamplesCaptured int64
	EngineLatency   time.Duration
	StartedAt       time.Time
	FinishedAt      time.Time
}

// Notifier is the session-facing subset of UI feedback behavior. The UI
// itself is an external collaborator; this is its consumed interface.
type Notifier interface {
	Phase(context.Context, fsm.Phase)
	Level(float64)
	Error(context.Context, string)
}

// noopNotifier preserves session flow when no UI is wired.
type noopNotifier struct{}

func (noopNotifier) Phase(context.Context, fsm.Phase) {}
func (noopNotifier) Level(float64)                    {}
func (noopNotifier) Error(context.Context, string)    {}

// Controller orchestrates session phase transitions and side effects. It is
// the only writer of the injected state machine; hotkey/IPC triggers, the
// silence timer, and backend failures all funnel through it.
type Controller struct {
	logger   *slog.Logger
	machine  *fsm.Machine
	recorder Recorder
	commit   Committer
	notifier Notifier

	actions chan action

	mu        sync.Mutex
	sessionID string
}

// NewController constructs a session controller with safe default fallbacks.
func NewController(
	logger *slog.Logger,
	machine *fsm.Machine,
	recorder Recorder,
	committer Committer,
	notifier Notifier,
) *Controller {
	if machine == nil {
		machine = fsm.NewMachine()
	}
	if recorder == nil {
		recorder = PlaceholderRecorder{}
	}
	if committer == nil {
		committer = CommitFunc(func(context.Context, string) error { return nil })
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}

	return &Controller{
		logger:   logger,
		machine:  machine,
		recorder: recorder,
		commit:   committer,
		notifier: notifier,
		actions:  make(chan action, 1),
	}
}

// Phase returns the current lifecycle phase snapshot.
func (c *Controller) Phase() fsm.Phase {
	return c.machine.Current()
}

// Run executes one session lifecycle from start to stop/cancel/failure
// completion. At most one Run may be active per controller; the state
// machine's Idle->Starting edge enforces this even across racing callers.
func (c *Controller) Run(ctx context.Context) Result {
	result := Result{SessionID: uuid.NewString(), StartedAt: time.Now()}
	c.setSessionID(result.SessionID)
	defer c.setSessionID("")

	if err := c.machine.TransitionFrom(fsm.PhaseIdle, fsm.PhaseStarting); err != nil {
		return c.finish(result, err)
	}

	if err := c.recorder.Start(ctx); err != nil {
		c.notifier.Error(ctx, "Unable to start recording")
		c.toErrorAndReset(err)
		return c.finish(result, err)
	}

	if err := c.machine.Transition(fsm.PhaseRecording); err != nil {
		_ = c.recorder.Cancel(context.Background())
		c.toErrorAndReset(err)
		return c.finish(result, err)
	}
	c.notifier.Phase(ctx, fsm.PhaseRecording)

	levelsDone := c.forwardLevels()
	defer func() { <-levelsDone }()

	select {
	case <-ctx.Done():
		return c.cancelSession(result, ctx.Err())

	case <-c.recorder.AutoStop():
		c.log("auto-stop on sustained silence", "session", result.SessionID)
		result.StopReason = string(stopSilence)
		return c.stopSession(ctx, result)

	case a := <-c.actions:
		switch a {
		case actionCancel:
			return c.cancelSession(result, nil)
		case actionStop:
			result.StopReason = string(stopManual)
			return c.stopSession(ctx, result)
		default:
			err := fmt.Errorf("unknown session action %d", a)
			_ = c.recorder.Cancel(context.Background())
			c.machine.ForceSet(fsm.PhaseError)
			c.machine.ForceSet(fsm.PhaseIdle)
			return c.finish(result, err)
		}
	}
}

// stopSession drives the stop -> finalize -> transcribe -> commit sequence.
func (c *Controller) stopSession(ctx context.Context, result Result) Result {
	if err := c.machine.TransitionFrom(fsm.PhaseRecording, fsm.PhaseStopping); err != nil {
		c.toErrorAndReset(err)
		return c.finish(result, err)
	}

	recording, err := c.recorder.Finalize(ctx)
	result.AudioDevice = recording.AudioDevice
	result.SamplesCaptured = recording.SamplesCaptured
	if err != nil {
		c.notifier.Error(context.Background(), "Audio processing failed")
		c.toErrorAndReset(err)
		return c.finish(result, err)
	}

	if err := c.machine.Transition(fsm.PhaseTranscribing); err != nil {
		c.toErrorAndReset(err)
		return c.finish(result, err)
	}
	c.notifier.Phase(ctx, fsm.PhaseTranscribing)

	stopResult, err := c.recorder.Transcribe(ctx, recording)
	result.ModelID = stopResult.ModelID
	result.EngineLatency = stopResult.EngineLatency
	if err != nil {
		c.notifier.Error(context.Background(), "Speech recognition failed")
		c.toErrorAndReset(err)
		return c.finish(result, err)
	}

	result.Transcript = stopResult.Transcript
	if strings.TrimSpace(stopResult.Transcript) == "" {
		c.notifier.Error(context.Background(), "No speech detected")
		c.toErrorAndReset(ErrEmptyTranscript)
		return c.finish(result, ErrEmptyTranscript)
	}

	if err := c.commit.Commit(ctx, stopResult.Transcript); err != nil {
		c.notifier.Error(context.Background(), "Output dispatch failed")
		c.toErrorAndReset(err)
		return c.finish(result, err)
	}

	if err := c.machine.Transition(fsm.PhaseIdle); err != nil {
		return c.finish(result, err)
	}
	c.notifier.Phase(context.Background(), fsm.PhaseIdle)
	return c.finish(result, nil)
}

// cancelSession discards captured audio and returns the session to idle.
func (c *Controller) cancelSession(result Result, cause error) Result {
	_ = c.recorder.Cancel(context.Background())
	c.notifier.Phase(context.Background(), fsm.PhaseIdle)

	if err := c.machine.Transition(fsm.PhaseIdle); err != nil {
		// Cancellation must terminate the session even from an odd phase.
		c.machine.ForceSet(fsm.PhaseIdle)
	}
	result.Cancelled = true
	return c.finish(result, cause)
}

// Handle serves IPC commands for the active owner session.
func (c *Controller) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		return ipc.Response{OK: true, Phase: string(c.Phase()), SessionID: c.currentSessionID(), Message: "status"}
	case ipc.CommandToggle:
		return c.requestStop("toggle")
	case ipc.CommandStop:
		return c.requestStop("stop")
	case ipc.CommandCancel:
		return c.requestCancel()
	default:
		return ipc.Response{OK: false, Phase: string(c.Phase()), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

// requestStop enqueues a stop action when the phase permits it.
func (c *Controller) requestStop(source string) ipc.Response {
	phase := c.Phase()
	if phase == fsm.PhaseTranscribing || phase == fsm.PhaseStopping {
		return ipc.Response{OK: false, Phase: string(phase), Error: "already finishing"}
	}
	if phase != fsm.PhaseRecording {
		return ipc.Response{OK: false, Phase: string(phase), Error: fmt.Sprintf("cannot %s from phase %s", source, phase)}
	}

	select {
	case c.actions <- actionStop:
		return ipc.Response{OK: true, Phase: string(phase), Message: "stop requested"}
	default:
		return ipc.Response{OK: true, Phase: string(phase), Message: "stop already requested"}
	}
}

// requestCancel enqueues a cancel action when the phase permits it.
func (c *Controller) requestCancel() ipc.Response {
	phase := c.Phase()
	if phase == fsm.PhaseTranscribing || phase == fsm.PhaseStopping {
		return ipc.Response{OK: false, Phase: string(phase), Error: "cannot cancel while finishing"}
	}
	if phase != fsm.PhaseRecording {
		return ipc.Response{OK: false, Phase: string(phase), Error: fmt.Sprintf("cannot cancel from phase %s", phase)}
	}

	select {
	case c.actions <- actionCancel:
		return ipc.Response{OK: true, Phase: string(phase), Message: "cancel requested"}
	default:
		return ipc.Response{OK: true, Phase: string(phase), Message: "cancel already requested"}
	}
}

// forwardLevels pumps meter output to the notifier until the stream closes.
func (c *Controller) forwardLevels() <-chan struct{} {
	done := make(chan struct{})
	levels := c.recorder.Levels()
	if levels == nil {
		close(done)
		return done
	}
	go func() {
		defer close(done)
		for level := range levels {
			c.notifier.Level(level)
		}
	}()
	return done
}

// toErrorAndReset transitions through error and back to idle so the next
// session can start.
func (c *Controller) toErrorAndReset(cause error) {
	if err := c.machine.Transition(fsm.PhaseError); err != nil {
		c.machine.ForceSet(fsm.PhaseError)
	}
	if cause != nil {
		c.log("session failed", "error", cause.Error())
	}
	if err := c.machine.Transition(fsm.PhaseIdle); err != nil {
		c.machine.ForceSet(fsm.PhaseIdle)
	}
}

func (c *Controller) finish(result Result, err error) Result {
	result.Err = err
	result.Phase = c.machine.Current()
	result.FinishedAt = time.Now()
	return result
}

func (c *Controller) setSessionID(id string) {
	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
}

func (c *Controller) currentSessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Controller) log(msg string, args ...any) {
	if c.logger == nil {
		return
	}
	c.logger.Info(msg, args...)
}
