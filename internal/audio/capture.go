// Package audio covers microphone capture and the conditioning pipeline that
// turns raw samples into the canonical engine format.
package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const (
	// chunkDuration is 20ms worth of samples per emitted chunk.
	chunksPerSecond = 50

	bytesPerSample = 4 // float32 LE on the wire
)

// Device describes one input source surfaced by the sound server.
type Device struct {
	ID          string
	Description string
	Available   bool
	Muted       bool
	Default     bool
}

// newPulseClient connects with application metadata shared by all call sites.
func newPulseClient() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("voicetypr"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}

// ListDevices returns available input sources with default/mute metadata.
func ListDevices(_ context.Context) ([]Device, error) {
	client, err := newPulseClient()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}

	var infos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &infos); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	devices := make([]Device, 0, len(infos))
	for _, info := range infos {
		if info == nil {
			continue
		}
		devices = append(devices, Device{
			ID:          info.SourceName,
			Description: info.Device,
			Available:   sourceAvailable(info),
			Muted:       info.Mute,
			Default:     info.SourceName == defaultSource.ID(),
		})
	}
	return devices, nil
}

// SelectDevice resolves a configured input preference against live devices,
// falling back to the server default when the preference is unusable.
func SelectDevice(ctx context.Context, preferred string) (Device, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Device{}, err
	}
	return selectFromList(devices, preferred)
}

func selectFromList(devices []Device, preferred string) (Device, error) {
	if len(devices) == 0 {
		return Device{}, errors.New("no audio input devices found")
	}

	preferred = strings.TrimSpace(strings.ToLower(preferred))

	var fallback *Device
	for i := range devices {
		dev := &devices[i]
		if dev.Default {
			fallback = dev
		}
		if preferred == "" || preferred == "default" {
			continue
		}
		if dev.Available && !dev.Muted && deviceMatches(*dev, preferred) {
			return *dev, nil
		}
	}

	if preferred != "" && preferred != "default" {
		// Preference missed; default is the documented fallback.
		if fallback == nil {
			return Device{}, fmt.Errorf("audio input %q did not match any usable device", preferred)
		}
	}
	if fallback == nil {
		return Device{}, errors.New("default audio source is unavailable")
	}
	if !fallback.Available {
		return Device{}, fmt.Errorf("default audio source %q is not available", fallback.ID)
	}
	if fallback.Muted {
		return Device{}, fmt.Errorf("default audio source %q is muted", fallback.ID)
	}
	return *fallback, nil
}

func deviceMatches(device Device, term string) bool {
	return strings.Contains(strings.ToLower(device.ID), term) ||
		strings.Contains(strings.ToLower(device.Description), term)
}

// Capture streams fixed-size float32 sample chunks from one input source at
// its native capture rate. The receiving goroutine owns each chunk.
type Capture struct {
	device     Device
	sampleRate int
	chunkSize  int

	client *pulse.Client
	stream *pulse.RecordStream

	chunks chan []float32
	stopCh chan struct{}

	mu      sync.Mutex
	pending []float32
	stopped bool

	inflight sync.WaitGroup
	samples  atomic.Int64
}

// StartCapture opens a mono float32 record stream on the selected device.
func StartCapture(ctx context.Context, device Device, sampleRate int) (*Capture, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid capture rate %d", sampleRate)
	}

	client, err := newPulseClient()
	if err != nil {
		return nil, err
	}

	source, err := client.SourceByID(device.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", device.ID, err)
	}

	capture := &Capture{
		device:     device,
		sampleRate: sampleRate,
		chunkSize:  sampleRate / chunksPerSecond,
		client:     client,
		chunks:     make(chan []float32, 128),
		stopCh:     make(chan struct{}),
	}

	writer := pulse.NewWriter(writerFunc(capture.onPCM), pulseproto.FormatFloat32LE)
	stream, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(sampleRate),
		pulse.RecordBufferFragmentSize(uint32(capture.chunkSize*bytesPerSample)),
		pulse.RecordMediaName("voicetypr dictation"),
	)
	if err != nil {
		capture.Close()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}

	capture.stream = stream
	stream.Start()

	go func() {
		<-ctx.Done()
		_ = capture.Stop()
	}()

	return capture, nil
}

// Device returns capture metadata for logging and diagnostics.
func (c *Capture) Device() Device {
	return c.device
}

// SampleRate reports the native capture rate of this stream.
func (c *Capture) SampleRate() int {
	return c.sampleRate
}

// Chunks returns the sample stream as fixed-size slices.
func (c *Capture) Chunks() <-chan []float32 {
	return c.chunks
}

// SamplesCaptured reports total samples accepted from the server.
func (c *Capture) SamplesCaptured() int64 {
	return c.samples.Load()
}

// Stop halts the stream, flushes residual samples, and closes Chunks exactly
// once.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	close(c.stopCh)
	c.mu.Unlock()

	if c.stream != nil {
		c.stream.Stop()
		c.stream.Close()
	}
	if c.client != nil {
		c.client.Close()
	}

	c.inflight.Wait()

	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	if len(pending) > 0 {
		select {
		case c.chunks <- pending:
		default:
		}
	}

	close(c.chunks)
	return nil
}

// Close is a convenience alias for Stop.
func (c *Capture) Close() {
	_ = c.Stop()
}

// onPCM receives raw frames from the server and emits chunkSize sample
// slices to c.chunks.
func (c *Capture) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	select {
	case <-c.stopCh:
		return 0, io.EOF
	default:
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return 0, io.EOF
	}
	// Guard Add under the same mutex as c.stopped to avoid Add/Wait races.
	c.inflight.Add(1)

	for i := 0; i+bytesPerSample <= len(buffer); i += bytesPerSample {
		bits := binary.LittleEndian.Uint32(buffer[i : i+bytesPerSample])
		c.pending = append(c.pending, math.Float32frombits(bits))
	}

	chunks := make([][]float32, 0, len(c.pending)/c.chunkSize)
	for len(c.pending) >= c.chunkSize {
		chunk := make([]float32, c.chunkSize)
		copy(chunk, c.pending[:c.chunkSize])
		c.pending = c.pending[c.chunkSize:]
		chunks = append(chunks, chunk)
	}
	c.mu.Unlock()
	defer c.inflight.Done()

	c.samples.Add(int64(len(buffer) / bytesPerSample))

	for _, chunk := range chunks {
		select {
		case <-c.stopCh:
			return 0, io.EOF
		case c.chunks <- chunk:
		}
	}

	return len(buffer), nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}

// sourceAvailable maps source port availability to a simple boolean.
func sourceAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	if len(source.Ports) == 0 {
		return true
	}
	for _, port := range source.Ports {
		if port.Name != source.ActivePortName {
			continue
		}
		// PulseAudio values: unknown=0, no=1, yes=2.
		return port.Available == 0 || port.Available == 2
	}
	return true
}
