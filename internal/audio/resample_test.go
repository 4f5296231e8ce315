package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func sine(freq float64, rate int, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / float64(rate)))
	}
	return out
}

func TestResampleIdentity(t *testing.T) {
	input := sine(440, TargetRate, TargetRate/2)

	output, err := Resample(input, TargetRate, TargetRate)
	require.NoError(t, err)
	require.Len(t, output, len(input))
	require.Equal(t, input, output)
}

func TestResampleLengthRatios(t *testing.T) {
	tests := []struct {
		name       string
		sourceRate int
	}{
		{name: "48k to 16k", sourceRate: 48000},
		{name: "44.1k to 16k", sourceRate: 44100},
		{name: "24k to 16k", sourceRate: 24000},
		{name: "8k to 16k upsample", sourceRate: 8000},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			input := sine(440, tc.sourceRate, tc.sourceRate) // one second

			output, err := Resample(input, tc.sourceRate, TargetRate)
			require.NoError(t, err)

			expected := float64(len(input)) * float64(TargetRate) / float64(tc.sourceRate)
			deviation := math.Abs(float64(len(output)) - expected)
			require.LessOrEqual(t, deviation, expected*0.05,
				"output length %d deviates more than 5%% from expected %f", len(output), expected)
		})
	}
}

func TestResamplePreservesToneAmplitude(t *testing.T) {
	// A 440 Hz tone sits far below every cutoff involved and must survive
	// 48k -> 16k conversion at close to its original amplitude.
	input := sine(440, 48000, 48000)

	output, err := Resample(input, 48000, TargetRate)
	require.NoError(t, err)

	peak := Peak(output)
	require.InDelta(t, 1.0, peak, 0.05)
}

func TestResampleRejectsDegenerateInput(t *testing.T) {
	_, err := Resample(nil, 48000, TargetRate)
	require.Error(t, err)

	_, err = Resample([]float32{0.5}, 0, TargetRate)
	require.Error(t, err)

	_, err = Resample([]float32{0.5}, 48000, -1)
	require.Error(t, err)
}

func TestResamplePassesThroughMalformedAmplitudes(t *testing.T) {
	input := []float32{0, float32(math.NaN()), 2.5, -3.0, 0}
	for i := 0; i < 100; i++ {
		input = append(input, 0)
	}

	require.NotPanics(t, func() {
		_, err := Resample(input, 48000, TargetRate)
		require.NoError(t, err)
	})
}
