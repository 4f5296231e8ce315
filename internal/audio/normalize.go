package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
)

// TargetPeak is the post-normalization peak amplitude, leaving headroom
// below full scale.
const TargetPeak = 0.8

// silentChannelPeak is the per-channel peak below which a channel is treated
// as carrying no signal and excluded from the downmix average.
const silentChannelPeak = 1e-4

// ErrMissingInput distinguishes an absent recording from DSP failures; the
// caller surfaces it as a user-actionable message.
var ErrMissingInput = errors.New("recording input not found")

// Normalize conditions a complete captured buffer into canonical engine
// form: mono, 16 kHz, peak at TargetPeak. The input buffer is interleaved
// when channels > 1 and is not modified.
func Normalize(samples []float32, sourceRate int, channels int, logger *slog.Logger) ([]float32, error) {
	if len(samples) == 0 {
		return nil, errors.New("normalize: empty buffer")
	}
	if channels < 1 {
		return nil, fmt.Errorf("normalize: invalid channel count %d", channels)
	}

	mono := Downmix(samples, channels)

	out, err := Resample(mono, sourceRate, TargetRate)
	if err != nil {
		return nil, fmt.Errorf("resample %d Hz -> %d Hz: %w", sourceRate, TargetRate, err)
	}
	if sourceRate != TargetRate && logger != nil {
		expected := len(mono) * TargetRate / sourceRate
		if expected > 0 && absInt(len(out)-expected) > expected/20 {
			logger.Info("resampler output length off expectation",
				"got", len(out), "expected", expected)
		}
	}

	// Resample may alias the input at equal rates; copy before scaling in
	// place so the caller's buffer stays untouched.
	if sourceRate == TargetRate {
		out = append([]float32(nil), out...)
	}

	scalePeak(out)
	return out, nil
}

// NormalizeFile reads a recorded WAV from inPath, conditions it, and writes
// the canonical 16-bit mono 16 kHz WAV to outPath.
func NormalizeFile(inPath string, outPath string, logger *slog.Logger) error {
	if _, err := os.Stat(inPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrMissingInput, inPath)
		}
		return fmt.Errorf("stat recording %q: %w", inPath, err)
	}

	samples, rate, channels, err := ReadWAV(inPath)
	if err != nil {
		return fmt.Errorf("decode recording %q: %w", inPath, err)
	}

	normalized, err := Normalize(samples, rate, channels, logger)
	if err != nil {
		return err
	}

	return WriteWAV(outPath, normalized)
}

// Downmix averages interleaved multi-channel samples to mono. Channels whose
// peak is below the silent-channel cutoff are excluded from the average so a
// dead channel cannot drag a live one toward zero.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}

	frames := len(samples) / channels

	active := make([]bool, channels)
	activeCount := 0
	for ch := 0; ch < channels; ch++ {
		var peak float32
		for i := 0; i < frames; i++ {
			if v := abs32(samples[i*channels+ch]); v > peak {
				peak = v
			}
		}
		if peak > silentChannelPeak {
			active[ch] = true
			activeCount++
		}
	}
	if activeCount == 0 {
		// All channels silent; a plain average keeps the output silent too.
		for ch := range active {
			active[ch] = true
		}
		activeCount = channels
	}

	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			if active[ch] {
				sum += float64(samples[i*channels+ch])
			}
		}
		mono[i] = float32(sum / float64(activeCount))
	}
	return mono
}

// Peak returns the maximum absolute amplitude in the buffer.
func Peak(samples []float32) float64 {
	var peak float64
	for _, s := range samples {
		if v := math.Abs(float64(s)); v > peak {
			peak = v
		}
	}
	return peak
}

// scalePeak scales samples in place so the peak lands at TargetPeak. Silent
// buffers are left untouched rather than amplified into noise.
func scalePeak(samples []float32) {
	peak := Peak(samples)
	if peak < silentChannelPeak {
		return
	}
	gain := TargetPeak / peak
	for i := range samples {
		samples[i] = float32(float64(samples[i]) * gain)
	}
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
