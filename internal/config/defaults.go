package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	output := "wl-copy --trim-newline"

	return Config{
		Audio: AudioConfig{
			Input:       "default",
			CaptureRate: 48000,
		},
		Engine: EngineConfig{
			Bin:      "voicetypr-engine",
			Model:    "parakeet-tdt-0.6b-v3",
			Language: "en",
		},
		Recording: RecordingConfig{
			AutoStop:         true,
			SilenceTimeoutMS: 2000,
		},
		Transcript: TranscriptConfig{
			TrailingSpace: true,
		},
		Output: OutputConfig{
			Cmd: CommandConfig{Raw: output, Argv: mustParseArgv(output)},
		},
		Debug: DebugConfig{},
	}
}
