// Package config resolves, parses, validates, and defaults voicetypr configuration.
package config

// Config is the fully materialized runtime configuration used by voicetypr.
type Config struct {
	Audio      AudioConfig
	Engine     EngineConfig
	Recording  RecordingConfig
	Transcript TranscriptConfig
	Output     OutputConfig
	Debug      DebugConfig
}

// AudioConfig controls input-source selection and the capture sample rate.
type AudioConfig struct {
	Input       string
	CaptureRate int
}

// EngineConfig locates the transcription engine and its model parameters.
type EngineConfig struct {
	Bin       string
	Args      CommandConfig
	Model     string
	Language  string
	Precision string
	Attention string
	CacheDir  string
}

// RecordingConfig controls automatic stop on sustained silence.
type RecordingConfig struct {
	AutoStop         bool
	SilenceTimeoutMS int
}

// TranscriptConfig controls transcript assembly formatting.
type TranscriptConfig struct {
	TrailingSpace bool
}

// OutputConfig holds the external command the transcript is committed to.
type OutputConfig struct {
	Cmd CommandConfig
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// DebugConfig controls optional debug artifact retention.
type DebugConfig struct {
	KeepAudio bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Message string
}
