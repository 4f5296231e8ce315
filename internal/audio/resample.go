package audio

import (
	"errors"
	"fmt"
	"math"
)

// TargetRate is the sample rate required by the transcription engine.
const TargetRate = 16000

const (
	// sincZeroCrossings bounds the interpolation window on each side of the
	// output sample position.
	sincZeroCrossings = 16
	// cutoffRatio places the anti-aliasing cutoff just under the Nyquist
	// frequency of the lower of the two rates.
	cutoffRatio = 0.45
)

var errEmptyBuffer = errors.New("resample: empty input buffer")

// Resample converts samples from sourceRate to targetRate using windowed-sinc
// interpolation. When the rates already match the input is returned as-is.
func Resample(input []float32, sourceRate int, targetRate int) ([]float32, error) {
	if sourceRate <= 0 || targetRate <= 0 {
		return nil, fmt.Errorf("resample: invalid rate %d -> %d", sourceRate, targetRate)
	}
	if sourceRate == targetRate {
		return input, nil
	}
	if len(input) == 0 {
		return nil, errEmptyBuffer
	}

	ratio := float64(targetRate) / float64(sourceRate)
	outLen := int(math.Round(float64(len(input)) * ratio))
	if outLen < 1 {
		outLen = 1
	}

	// Normalized cutoff relative to the source rate; when downsampling this
	// lands below 0.5 and acts as the anti-aliasing filter.
	cutoff := cutoffRatio
	width := float64(sincZeroCrossings)
	if ratio < 1 {
		cutoff *= ratio
		width /= ratio
	}
	halfWidth := int(math.Ceil(width))

	output := make([]float32, outLen)
	for i := range output {
		center := float64(i) / ratio

		left := int(math.Floor(center)) - halfWidth
		if left < 0 {
			left = 0
		}
		right := int(math.Ceil(center)) + halfWidth
		if right > len(input)-1 {
			right = len(input) - 1
		}

		var acc, norm float64
		for j := left; j <= right; j++ {
			x := float64(j) - center
			w := sinc(2*cutoff*x) * hann(x/width)
			acc += float64(input[j]) * w
			norm += w
		}
		if norm != 0 {
			acc /= norm
		}
		output[i] = float32(acc)
	}

	return output, nil
}

// sinc is the normalized sinc function sin(pi*x)/(pi*x).
func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// hann evaluates a Hann window over x in [-1, 1], zero outside.
func hann(x float64) float64 {
	if x < -1 || x > 1 {
		return 0
	}
	return 0.5 + 0.5*math.Cos(math.Pi*x)
}
