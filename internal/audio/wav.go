package audio

import (
	"fmt"
	"os"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavBitDepth = 16

// WriteWAV writes float32 samples as a canonical 16-bit signed PCM, mono,
// 16 kHz WAV file, the sole audio format contract with the engine.
func WriteWAV(path string, samples []float32) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav %q: %w", path, err)
	}
	defer file.Close()

	enc := wav.NewEncoder(file, TargetRate, wavBitDepth, 1, 1)

	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: 1, SampleRate: TargetRate},
		SourceBitDepth: wavBitDepth,
		Data:           make([]int, len(samples)),
	}
	for i, s := range samples {
		buf.Data[i] = pcm16(s)
	}

	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode wav %q: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav %q: %w", path, err)
	}
	return nil
}

// ReadWAV decodes a PCM WAV file into float32 samples plus its source rate
// and channel count. Samples stay interleaved for multi-channel input.
func ReadWAV(path string) ([]float32, int, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, err
	}
	defer file.Close()

	dec := wav.NewDecoder(file)
	if !dec.IsValidFile() {
		return nil, 0, 0, fmt.Errorf("%q is not a valid wav file", path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("read pcm from %q: %w", path, err)
	}

	bitDepth := int(dec.BitDepth)
	if buf.SourceBitDepth > 0 {
		bitDepth = buf.SourceBitDepth
	}
	scale := float64(int64(1) << (bitDepth - 1))

	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(float64(v) / scale)
	}

	return samples, int(dec.SampleRate), int(dec.NumChans), nil
}

// pcm16 converts one sample to 16-bit signed PCM with clipping.
func pcm16(s float32) int {
	v := int(s * 32767)
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return v
}
