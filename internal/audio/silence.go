package audio

import "time"

// VoiceThreshold is the RMS amplitude above which a chunk counts as voice.
const VoiceThreshold = 0.005

// SilenceDetector tracks how long the input has stayed below the voice
// threshold. Update is pure and synchronous; it is safe to call at chunk
// cadence from the capture path.
type SilenceDetector struct {
	timeout   time.Duration
	lastVoice time.Time
	clock     func() time.Time
}

// NewSilenceDetector constructs a detector that reports silence once no voice
// has been heard for timeout. A timeout of zero disables the detector.
func NewSilenceDetector(timeout time.Duration) *SilenceDetector {
	d := &SilenceDetector{timeout: timeout, clock: time.Now}
	d.lastVoice = d.clock()
	return d
}

// Update folds one RMS reading in and reports whether the configured silence
// duration has elapsed since the last voice-level reading.
func (d *SilenceDetector) Update(rms float64) bool {
	now := d.clock()
	if rms > VoiceThreshold {
		d.lastVoice = now
		return false
	}
	if d.timeout <= 0 {
		return false
	}
	return now.Sub(d.lastVoice) >= d.timeout
}

// SinceVoice reports elapsed time since the last voice-level reading.
func (d *SilenceDetector) SinceVoice() time.Duration {
	return d.clock().Sub(d.lastVoice)
}
