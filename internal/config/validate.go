package config

import (
	"fmt"
	"strings"
)

const (
	minCaptureRate = 8000
	maxCaptureRate = 192000
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if cfg.Audio.CaptureRate < minCaptureRate || cfg.Audio.CaptureRate > maxCaptureRate {
		return nil, fmt.Errorf("audio.capture_rate must be between %d and %d", minCaptureRate, maxCaptureRate)
	}
	if strings.TrimSpace(cfg.Engine.Bin) == "" {
		return nil, fmt.Errorf("engine.bin must not be empty")
	}
	if strings.TrimSpace(cfg.Engine.Model) == "" {
		return nil, fmt.Errorf("engine.model must not be empty")
	}

	switch cfg.Engine.Precision {
	case "", "bf16", "fp16", "fp32":
	default:
		return nil, fmt.Errorf("engine.precision must be one of: bf16, fp16, fp32")
	}
	switch cfg.Engine.Attention {
	case "", "full", "local":
	default:
		return nil, fmt.Errorf("engine.attention must be one of: full, local")
	}

	if cfg.Recording.SilenceTimeoutMS < 0 {
		return nil, fmt.Errorf("recording.silence_timeout_ms must be >= 0")
	}
	if cfg.Recording.AutoStop && cfg.Recording.SilenceTimeoutMS == 0 {
		warnings = append(warnings, Warning{
			Message: "recording.auto_stop is enabled but silence_timeout_ms is 0; auto-stop will never fire",
		})
	}

	if len(cfg.Output.Cmd.Argv) == 0 {
		return nil, fmt.Errorf("output_cmd must not be empty")
	}

	return warnings, nil
}
