package audio

import (
	"log/slog"
	"math"
)

// Level-meter band boundaries, tuned for speech picked up by consumer
// microphones. Values are smoothed RMS amplitudes.
const (
	levelSilenceFloor = 0.001
	levelWhisperCeil  = 0.01
	levelNormalCeil   = 0.05
	levelLoudCeil     = 0.15

	// levelCeiling reserves display headroom; the meter never reaches 1.0.
	levelCeiling = 0.95

	// Exponential smoothing weights: 70% retained, 30% from the new chunk.
	levelSmoothRetain = 0.7
	levelSmoothNew    = 0.3

	// Emission cadence in updates per second.
	levelUpdatesPerSecond = 10
)

// LevelMeter turns a stream of capture chunks into a ~10 Hz stream of
// display-friendly loudness values. Process is called inline on the capture
// path and never blocks: when the receiver lags, updates are dropped.
type LevelMeter struct {
	logger *slog.Logger

	emitEvery int // samples between emissions
	smoothed  float64
	sinceEmit int
	primed    bool

	levels chan float64
}

// NewLevelMeter constructs a meter for a capture stream at sampleRate.
func NewLevelMeter(sampleRate int, logger *slog.Logger) *LevelMeter {
	emitEvery := sampleRate / levelUpdatesPerSecond
	if emitEvery < 1 {
		emitEvery = 1
	}
	return &LevelMeter{
		logger:    logger,
		emitEvery: emitEvery,
		levels:    make(chan float64, levelUpdatesPerSecond),
	}
}

// Levels is the one-way display value stream. Values are in [0.0, 0.95].
func (m *LevelMeter) Levels() <-chan float64 {
	return m.levels
}

// Process folds one chunk into the smoothed estimate and returns the chunk's
// raw RMS for downstream consumers such as silence detection.
func (m *LevelMeter) Process(chunk []float32) float64 {
	if len(chunk) == 0 {
		return 0
	}

	rms := RMS(chunk)
	if !m.primed {
		m.smoothed = rms
		m.primed = true
	} else {
		m.smoothed = levelSmoothRetain*m.smoothed + levelSmoothNew*rms
	}

	m.sinceEmit += len(chunk)
	for m.sinceEmit >= m.emitEvery {
		m.sinceEmit -= m.emitEvery
		m.emit(MapLevel(m.smoothed))
	}

	return rms
}

// Close releases the level stream. Process must not be called afterwards.
func (m *LevelMeter) Close() {
	close(m.levels)
}

// emit sends one display value without ever blocking the capture path.
func (m *LevelMeter) emit(value float64) {
	select {
	case m.levels <- value:
	default:
		if m.logger != nil {
			m.logger.Debug("level update dropped; receiver not keeping up")
		}
	}
}

// MapLevel maps a smoothed RMS amplitude onto the display scale: a hard zero
// below the silence floor, piecewise-linear ramps across the whisper, normal,
// and loud speech bands, and a hard 0.95 ceiling above them.
func MapLevel(rms float64) float64 {
	switch {
	case rms < levelSilenceFloor:
		return 0.0
	case rms < levelWhisperCeil:
		return ramp(rms, levelSilenceFloor, levelWhisperCeil, 0.0, 0.3)
	case rms < levelNormalCeil:
		return ramp(rms, levelWhisperCeil, levelNormalCeil, 0.3, 0.7)
	case rms < levelLoudCeil:
		return ramp(rms, levelNormalCeil, levelLoudCeil, 0.7, levelCeiling)
	default:
		return levelCeiling
	}
}

// ramp linearly maps value from [inLo, inHi] onto [outLo, outHi].
func ramp(value, inLo, inHi, outLo, outHi float64) float64 {
	return outLo + (value-inLo)/(inHi-inLo)*(outHi-outLo)
}

// RMS computes the root-mean-square amplitude of one chunk.
func RMS(chunk []float32) float64 {
	if len(chunk) == 0 {
		return 0
	}
	var sum float64
	for _, s := range chunk {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(chunk)))
}
