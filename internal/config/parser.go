package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type filePayload struct {
	Audio      *fileAudio      `json:"audio"`
	Engine     *fileEngine     `json:"engine"`
	Recording  *fileRecording  `json:"recording"`
	Transcript *fileTranscript `json:"transcript"`
	OutputCmd  *string         `json:"output_cmd"`
	Debug      *fileDebug      `json:"debug"`
}

type fileAudio struct {
	Input       *string `json:"input"`
	CaptureRate *int    `json:"capture_rate"`
}

type fileEngine struct {
	Bin       *string `json:"bin"`
	Args      *string `json:"args"`
	Model     *string `json:"model"`
	Language  *string `json:"language"`
	Precision *string `json:"precision"`
	Attention *string `json:"attention"`
	CacheDir  *string `json:"cache_dir"`
}

type fileRecording struct {
	AutoStop         *bool `json:"auto_stop"`
	SilenceTimeoutMS *int  `json:"silence_timeout_ms"`
}

type fileTranscript struct {
	TrailingSpace *bool `json:"trailing_space"`
}

type fileDebug struct {
	KeepAudio *bool `json:"keep_audio"`
}

// Parse decodes config file content over the base defaults and validates the
// result. The format is JSON; // and /* */ comments and trailing commas are
// tolerated.
func Parse(content string, base Config) (Config, []Warning, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		warnings, err := Validate(base)
		if err != nil {
			return Config{}, nil, err
		}
		return base, warnings, nil
	}

	normalized, err := normalizeJSON(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload filePayload
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapDecodeError(normalized, err)
	}
	if err := ensureSingleValue(decoder); err != nil {
		return Config{}, nil, wrapDecodeError(normalized, err)
	}

	cfg := base
	if err := payload.applyTo(&cfg); err != nil {
		return Config{}, nil, err
	}

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func (payload filePayload) applyTo(cfg *Config) error {
	if payload.Audio != nil {
		if payload.Audio.Input != nil {
			cfg.Audio.Input = strings.TrimSpace(*payload.Audio.Input)
		}
		if payload.Audio.CaptureRate != nil {
			cfg.Audio.CaptureRate = *payload.Audio.CaptureRate
		}
	}

	if payload.Engine != nil {
		if payload.Engine.Bin != nil {
			cfg.Engine.Bin = strings.TrimSpace(*payload.Engine.Bin)
		}
		if payload.Engine.Args != nil {
			raw := *payload.Engine.Args
			argv, err := parseArgv(raw)
			if err != nil {
				return fmt.Errorf("invalid engine.args: %w", err)
			}
			cfg.Engine.Args = CommandConfig{Raw: raw, Argv: argv}
		}
		if payload.Engine.Model != nil {
			cfg.Engine.Model = strings.TrimSpace(*payload.Engine.Model)
		}
		if payload.Engine.Language != nil {
			cfg.Engine.Language = strings.TrimSpace(*payload.Engine.Language)
		}
		if payload.Engine.Precision != nil {
			cfg.Engine.Precision = strings.TrimSpace(*payload.Engine.Precision)
		}
		if payload.Engine.Attention != nil {
			cfg.Engine.Attention = strings.TrimSpace(*payload.Engine.Attention)
		}
		if payload.Engine.CacheDir != nil {
			cfg.Engine.CacheDir = strings.TrimSpace(*payload.Engine.CacheDir)
		}
	}

	if payload.Recording != nil {
		if payload.Recording.AutoStop != nil {
			cfg.Recording.AutoStop = *payload.Recording.AutoStop
		}
		if payload.Recording.SilenceTimeoutMS != nil {
			cfg.Recording.SilenceTimeoutMS = *payload.Recording.SilenceTimeoutMS
		}
	}

	if payload.Transcript != nil && payload.Transcript.TrailingSpace != nil {
		cfg.Transcript.TrailingSpace = *payload.Transcript.TrailingSpace
	}

	if payload.OutputCmd != nil {
		raw := *payload.OutputCmd
		argv, err := parseArgv(raw)
		if err != nil {
			return fmt.Errorf("invalid output_cmd: %w", err)
		}
		cfg.Output.Cmd = CommandConfig{Raw: raw, Argv: argv}
	}

	if payload.Debug != nil && payload.Debug.KeepAudio != nil {
		cfg.Debug.KeepAudio = *payload.Debug.KeepAudio
	}

	return nil
}

// normalizeJSON blanks out comments and drops trailing commas so the content
// decodes as strict JSON. Byte offsets are preserved for error reporting.
func normalizeJSON(content string) (string, error) {
	var out strings.Builder
	out.Grow(len(content))

	const (
		stateCode = iota
		stateString
		stateLineComment
		stateBlockComment
	)

	state := stateCode
	escape := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		switch state {
		case stateLineComment:
			if ch == '\n' || ch == '\r' {
				state = stateCode
				out.WriteByte(ch)
			} else {
				out.WriteByte(' ')
			}

		case stateBlockComment:
			if ch == '*' && i+1 < len(content) && content[i+1] == '/' {
				state = stateCode
				out.WriteString("  ")
				i++
			} else if ch == '\n' || ch == '\r' || ch == '\t' {
				out.WriteByte(ch)
			} else {
				out.WriteByte(' ')
			}

		case stateString:
			out.WriteByte(ch)
			switch {
			case escape:
				escape = false
			case ch == '\\':
				escape = true
			case ch == '"':
				state = stateCode
			}

		default:
			if ch == '"' {
				state = stateString
				out.WriteByte(ch)
				continue
			}
			if ch == '/' && i+1 < len(content) {
				switch content[i+1] {
				case '/':
					state = stateLineComment
					out.WriteString("  ")
					i++
					continue
				case '*':
					state = stateBlockComment
					out.WriteString("  ")
					i++
					continue
				}
			}
			if ch == ',' && nextStructural(content, i+1) {
				out.WriteByte(' ')
				continue
			}
			out.WriteByte(ch)
		}
	}

	if state == stateBlockComment {
		return "", fmt.Errorf("unterminated block comment in config")
	}

	return out.String(), nil
}

// nextStructural reports whether the next non-whitespace, non-comment byte
// closes an object or array.
func nextStructural(content string, from int) bool {
	for i := from; i < len(content); i++ {
		switch content[i] {
		case ' ', '\n', '\r', '\t':
			continue
		case '/':
			if i+1 < len(content) && content[i+1] == '/' {
				for i < len(content) && content[i] != '\n' {
					i++
				}
				continue
			}
			if i+1 < len(content) && content[i+1] == '*' {
				end := strings.Index(content[i+2:], "*/")
				if end < 0 {
					return false
				}
				i += 2 + end + 1
				continue
			}
			return false
		case '}', ']':
			return true
		default:
			return false
		}
	}
	return false
}

func ensureSingleValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := int(offset)
	if limit > len(content) {
		limit = len(content)
	}

	line := 1
	col := 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
