package sidecar

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Request timeout defaults. Model loads may download weights and get a much
// longer budget than control commands.
const (
	DefaultTranscribeTimeout = 2 * time.Minute
	DefaultLoadTimeout       = 10 * time.Minute
	DefaultControlTimeout    = 10 * time.Second
	DefaultShutdownGrace     = 3 * time.Second
)

// Scanner limits for engine stdout; transcription lines can be large.
const (
	scanInitialBuffer = 64 * 1024
	scanMaxBuffer     = 8 * 1024 * 1024
)

// Config controls engine process spawning and request deadlines.
type Config struct {
	BinPath           string
	Args              []string
	TranscribeTimeout time.Duration
	LoadTimeout       time.Duration
	ControlTimeout    time.Duration
	ShutdownGrace     time.Duration
}

func (c Config) withDefaults() Config {
	if c.TranscribeTimeout <= 0 {
		c.TranscribeTimeout = DefaultTranscribeTimeout
	}
	if c.LoadTimeout <= 0 {
		c.LoadTimeout = DefaultLoadTimeout
	}
	if c.ControlTimeout <= 0 {
		c.ControlTimeout = DefaultControlTimeout
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = DefaultShutdownGrace
	}
	return c
}

// Client owns one engine child process, spawned lazily and reused across
// sessions. Requests are serialized: the protocol supports at most one
// in-flight command, and a second concurrent call is rejected with ErrBusy.
type Client struct {
	cfg    Config
	logger *slog.Logger

	// reqMu serializes the command/response exchange.
	reqMu sync.Mutex

	// mu guards proc and loadedModel.
	mu          sync.Mutex
	proc        *process
	loadedModel string
}

// NewClient constructs a client; the engine process starts on first use.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	return &Client{cfg: cfg.withDefaults(), logger: logger}
}

// result carries one parsed response or a framing error out of the read loop.
type result struct {
	resp response
	err  error
}

// process is one running engine instance plus its supervision channels.
type process struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	results chan result

	// exited closes after the process is gone; exitErr is written first.
	exited  chan struct{}
	exitErr error
}

// LoadedModel returns the model the client believes is active, or empty.
func (c *Client) LoadedModel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadedModel
}

// LoadModel ensures the requested model is active in the engine. Loading is
// a no-op when the model is already active; the engine unloads any previous
// model implicitly.
func (c *Client) LoadModel(ctx context.Context, opts ModelOptions) error {
	if strings.TrimSpace(opts.ModelID) == "" {
		return errors.New("load model: model id is empty")
	}

	c.mu.Lock()
	already := false
	if c.proc != nil && c.loadedModel == opts.ModelID {
		// Bookkeeping is only trustworthy while the process is alive; a
		// crashed engine holds no model.
		select {
		case <-c.proc.exited:
			c.proc = nil
			c.loadedModel = ""
		default:
			already = true
		}
	}
	c.mu.Unlock()
	if already && !opts.ForceDownload {
		return nil
	}

	resp, err := c.request(ctx, cmdLoadModel, newLoadModelCommand(opts), c.cfg.LoadTimeout)
	if err != nil {
		return err
	}
	if resp.Type != respOk {
		return unexpectedResponse(cmdLoadModel, resp.Type)
	}

	c.mu.Lock()
	c.loadedModel = opts.ModelID
	c.mu.Unlock()
	return nil
}

// UnloadModel releases the active model, freeing engine memory.
func (c *Client) UnloadModel(ctx context.Context) error {
	resp, err := c.request(ctx, cmdUnloadModel, bareCommand{Command: cmdUnloadModel}, c.cfg.ControlTimeout)
	if err != nil {
		return err
	}
	if resp.Type != respOk {
		return unexpectedResponse(cmdUnloadModel, resp.Type)
	}

	c.mu.Lock()
	c.loadedModel = ""
	c.mu.Unlock()
	return nil
}

// DeleteModel removes cached model weights from disk.
func (c *Client) DeleteModel(ctx context.Context, modelID string, modelVersion string) error {
	cmd := deleteModelCommand{Command: cmdDeleteModel, ModelID: modelID, ModelVersion: modelVersion}
	resp, err := c.request(ctx, cmdDeleteModel, cmd, c.cfg.ControlTimeout)
	if err != nil {
		return err
	}
	if resp.Type != respOk {
		return unexpectedResponse(cmdDeleteModel, resp.Type)
	}
	return nil
}

// Transcribe sends one canonical audio file through the engine and awaits
// its single terminal response within the configured timeout.
func (c *Client) Transcribe(ctx context.Context, audioPath string, opts TranscribeOptions) (Result, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return Result{}, fmt.Errorf("audio file %q: %w", audioPath, err)
	}

	resp, err := c.request(ctx, cmdTranscribe, newTranscribeCommand(audioPath, opts), c.cfg.TranscribeTimeout)
	if err != nil {
		return Result{}, err
	}
	if resp.Type != respTranscription {
		return Result{}, unexpectedResponse(cmdTranscribe, resp.Type)
	}

	return Result{
		Text:     resp.Text,
		Segments: resp.Segments,
		Language: resp.Language,
		Duration: resp.Duration,
	}, nil
}

// Status queries the engine's loaded model without side effects.
func (c *Client) Status(ctx context.Context) (EngineStatus, error) {
	resp, err := c.request(ctx, cmdStatus, bareCommand{Command: cmdStatus}, c.cfg.ControlTimeout)
	if err != nil {
		return EngineStatus{}, err
	}
	if resp.Type != respStatus {
		return EngineStatus{}, unexpectedResponse(cmdStatus, resp.Type)
	}
	return EngineStatus{
		LoadedModel:  resp.LoadedModel,
		ModelVersion: resp.ModelVersion,
		ModelPath:    resp.ModelPath,
		Precision:    resp.Precision,
		Attention:    resp.Attention,
	}, nil
}

// Shutdown requests graceful termination and force-kills after the grace
// period. The client returns to its unspawned state either way.
func (c *Client) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	p := c.proc
	c.proc = nil
	c.loadedModel = ""
	c.mu.Unlock()

	if p == nil {
		return nil
	}

	// Stdin framing belongs to whichever request holds reqMu; if one is in
	// flight, skip the graceful frame and fall through to the kill path.
	if c.reqMu.TryLock() {
		if data, err := json.Marshal(bareCommand{Command: cmdShutdown}); err == nil {
			_, _ = p.stdin.Write(append(data, '\n'))
		}
		_ = p.stdin.Close()
		c.reqMu.Unlock()
	}

	select {
	case <-p.exited:
		return nil
	case <-time.After(c.cfg.ShutdownGrace):
	case <-ctx.Done():
	}

	if c.logger != nil {
		c.logger.Warn("engine did not exit within grace period; killing")
	}
	_ = p.cmd.Process.Kill()

	select {
	case <-p.exited:
	case <-time.After(c.cfg.ShutdownGrace):
	}
	return nil
}

// request performs one serialized command/response exchange.
func (c *Client) request(ctx context.Context, name string, payload any, timeout time.Duration) (response, error) {
	if !c.reqMu.TryLock() {
		return response{}, fmt.Errorf("%s: %w", name, ErrBusy)
	}
	defer c.reqMu.Unlock()

	p, err := c.ensureProcess()
	if err != nil {
		return response{}, err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		// Serialization of our own command types failing is a defect, not a
		// runtime condition.
		return response{}, fmt.Errorf("encode %s command: %w", name, err)
	}

	// Discard responses abandoned by cancelled or timed-out predecessors.
	drainResults(p.results)

	if _, err := p.stdin.Write(append(data, '\n')); err != nil {
		select {
		case <-p.exited:
			c.dropProcess(p, false)
			return response{}, fmt.Errorf("%s: %w", name, ErrProcessTerminated)
		default:
		}
		return response{}, fmt.Errorf("write %s command: %w", name, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case res := <-p.results:
		if res.err != nil {
			// Framing is suspect after a malformed line; respawn next use.
			c.dropProcess(p, true)
			return response{}, fmt.Errorf("%s: %w", name, res.err)
		}
		if res.resp.Type == respError {
			return response{}, &BackendError{
				Code:    res.resp.Code,
				Message: res.resp.Message,
				Details: res.resp.Details,
			}
		}
		return res.resp, nil

	case <-p.exited:
		c.dropProcess(p, false)
		if p.exitErr != nil {
			return response{}, fmt.Errorf("%s: %w: %v", name, ErrProcessTerminated, p.exitErr)
		}
		return response{}, fmt.Errorf("%s: %w", name, ErrProcessTerminated)

	case <-waitCtx.Done():
		// A stuck engine is presumed unhealthy; kill it so the next use
		// starts from a fresh process.
		c.dropProcess(p, true)
		return response{}, fmt.Errorf("%s timed out after %s: %w", name, timeout, waitCtx.Err())
	}
}

// ensureProcess returns the live engine process, spawning it when missing or
// dead.
func (c *Client) ensureProcess() (*process, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.proc != nil {
		select {
		case <-c.proc.exited:
			c.proc = nil
			c.loadedModel = ""
		default:
			return c.proc, nil
		}
	}

	p, err := c.spawn()
	if err != nil {
		return nil, err
	}
	c.proc = p
	return p, nil
}

// spawn starts the engine binary and its supervision goroutines.
func (c *Client) spawn() (*process, error) {
	bin := strings.TrimSpace(c.cfg.BinPath)
	if bin == "" {
		return nil, fmt.Errorf("%w: engine binary path is not configured", ErrUnavailable)
	}

	cmd := exec.Command(bin, c.cfg.Args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open engine stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open engine stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("open engine stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %q: %v", ErrUnavailable, bin, err)
	}
	if c.logger != nil {
		c.logger.Info("engine spawned", "bin", bin, "pid", cmd.Process.Pid)
	}

	p := &process{
		cmd:     cmd,
		stdin:   stdin,
		results: make(chan result, 8),
		exited:  make(chan struct{}),
	}

	stdoutDone := make(chan struct{})
	stderrDone := make(chan struct{})
	go p.readLoop(stdout, stdoutDone, c.logger)
	go drainStderr(stderr, stderrDone, c.logger)
	go p.waitLoop(stdoutDone, stderrDone, c.logger)

	return p, nil
}

// dropProcess forgets p (and its loaded model) so the next request spawns a
// fresh engine; kill additionally terminates it.
func (c *Client) dropProcess(p *process, kill bool) {
	c.mu.Lock()
	if c.proc == p {
		c.proc = nil
		c.loadedModel = ""
	}
	c.mu.Unlock()

	if kill && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

// readLoop parses stdout lines into results until EOF.
func (p *process) readLoop(stdout io.Reader, done chan<- struct{}, logger *slog.Logger) {
	defer close(done)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, scanInitialBuffer), scanMaxBuffer)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var resp response
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			p.deliver(result{err: fmt.Errorf("%w: %v", ErrInvalidResponse, err)}, logger)
			continue
		}
		if resp.Type == "" {
			p.deliver(result{err: fmt.Errorf("%w: missing type field", ErrInvalidResponse)}, logger)
			continue
		}
		p.deliver(result{resp: resp}, logger)
	}

	if err := scanner.Err(); err != nil && logger != nil {
		logger.Warn("engine stdout read failed", "error", err.Error())
	}
}

// deliver hands one result to the waiting request without blocking; with no
// waiter the response was abandoned and is dropped.
func (p *process) deliver(res result, logger *slog.Logger) {
	select {
	case p.results <- res:
	default:
		if logger != nil {
			logger.Debug("discarding unclaimed engine response")
		}
	}
}

// waitLoop reaps the child after its pipes drain and signals all waiters.
func (p *process) waitLoop(stdoutDone, stderrDone <-chan struct{}, logger *slog.Logger) {
	<-stdoutDone
	<-stderrDone

	p.exitErr = p.cmd.Wait()
	if logger != nil {
		if p.exitErr != nil {
			logger.Warn("engine exited", "error", p.exitErr.Error())
		} else {
			logger.Info("engine exited")
		}
	}
	close(p.exited)
}

// drainStderr forwards engine diagnostics to the log.
func drainStderr(stderr io.Reader, done chan<- struct{}, logger *slog.Logger) {
	defer close(done)

	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, scanInitialBuffer), scanMaxBuffer)
	for scanner.Scan() {
		if logger != nil {
			logger.Warn("engine stderr", "line", scanner.Text())
		}
	}
}

// drainResults empties any buffered results left by a previous request.
func drainResults(ch chan result) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func unexpectedResponse(command string, got string) error {
	return fmt.Errorf("%w: %q response to %s command", ErrInvalidResponse, got, command)
}
