// Package sidecar manages the external transcription engine process and its
// line-delimited JSON command/response protocol.
//
// Each command is one JSON object on a single line of the engine's stdin,
// discriminated by a "command" field. Each response is one JSON object on a
// single line of its stdout, discriminated by a "type" field. Every command
// produces exactly one response, or a terminal failure when the process dies.
package sidecar

// Command names understood by the engine.
const (
	cmdLoadModel   = "load_model"
	cmdUnloadModel = "unload_model"
	cmdTranscribe  = "transcribe"
	cmdStatus      = "status"
	cmdDeleteModel = "delete_model"
	cmdShutdown    = "shutdown"
)

// Response kinds emitted by the engine.
const (
	respOk            = "ok"
	respError         = "error"
	respStatus        = "status"
	respTranscription = "transcription"
)

// Protocol defaults applied when the caller leaves options unset.
const (
	DefaultPrecision             = "bf16"
	DefaultAttention             = "full"
	DefaultLocalAttentionContext = 256
)

// ModelOptions selects and configures the model loaded into the engine.
type ModelOptions struct {
	ModelID               string
	ModelVersion          string
	ForceDownload         bool
	LocalPath             string
	CacheDir              string
	Precision             string
	Attention             string
	LocalAttentionContext int
	ChunkDuration         float64
	OverlapDuration       float64
	EagerUnload           bool
}

// TranscribeOptions tunes one transcribe request.
type TranscribeOptions struct {
	Language              string
	TranslateToEnglish    bool
	Prompt                string
	WordTimestamps        *bool
	ChunkDuration         float64
	OverlapDuration       float64
	Attention             string
	LocalAttentionContext int
}

// Segment is one timed span of a transcription result.
type Segment struct {
	Text   string  `json:"text"`
	Start  float64 `json:"start,omitempty"`
	End    float64 `json:"end,omitempty"`
	Tokens []int   `json:"tokens,omitempty"`
}

// Result is the immutable outcome of one successful transcribe command.
type Result struct {
	Text     string
	Segments []Segment
	Language string
	Duration float64
}

// EngineStatus reports the engine's currently loaded model without side
// effects.
type EngineStatus struct {
	LoadedModel  string
	ModelVersion string
	ModelPath    string
	Precision    string
	Attention    string
}

type loadModelCommand struct {
	Command               string  `json:"command"`
	ModelID               string  `json:"model_id"`
	ModelVersion          string  `json:"model_version,omitempty"`
	ForceDownload         bool    `json:"force_download,omitempty"`
	LocalPath             string  `json:"local_path,omitempty"`
	CacheDir              string  `json:"cache_dir,omitempty"`
	Precision             string  `json:"precision"`
	Attention             string  `json:"attention"`
	LocalAttentionContext int     `json:"local_attention_context"`
	ChunkDuration         float64 `json:"chunk_duration,omitempty"`
	OverlapDuration       float64 `json:"overlap_duration,omitempty"`
	EagerUnload           bool    `json:"eager_unload,omitempty"`
}

type transcribeCommand struct {
	Command               string  `json:"command"`
	AudioPath             string  `json:"audio_path"`
	Language              string  `json:"language,omitempty"`
	TranslateToEnglish    bool    `json:"translate_to_english"`
	Prompt                string  `json:"prompt,omitempty"`
	UseWordTimestamps     *bool   `json:"use_word_timestamps,omitempty"`
	ChunkDuration         float64 `json:"chunk_duration,omitempty"`
	OverlapDuration       float64 `json:"overlap_duration,omitempty"`
	Attention             string  `json:"attention,omitempty"`
	LocalAttentionContext int     `json:"local_attention_context,omitempty"`
}

type bareCommand struct {
	Command string `json:"command"`
}

type deleteModelCommand struct {
	Command      string `json:"command"`
	ModelID      string `json:"model_id,omitempty"`
	ModelVersion string `json:"model_version,omitempty"`
}

// response is the flat decode target for every engine response kind; the
// populated fields depend on Type.
type response struct {
	Type string `json:"type"`

	// ok
	Command string         `json:"command,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`

	// error
	Code    string         `json:"code,omitempty"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`

	// status
	LoadedModel  string `json:"loaded_model,omitempty"`
	ModelVersion string `json:"model_version,omitempty"`
	ModelPath    string `json:"model_path,omitempty"`
	Precision    string `json:"precision,omitempty"`
	Attention    string `json:"attention,omitempty"`

	// transcription
	Text     string    `json:"text,omitempty"`
	Segments []Segment `json:"segments,omitempty"`
	Language string    `json:"language,omitempty"`
	Duration float64   `json:"duration,omitempty"`
}

// newLoadModelCommand applies protocol defaults to unset model options.
func newLoadModelCommand(opts ModelOptions) loadModelCommand {
	if opts.Precision == "" {
		opts.Precision = DefaultPrecision
	}
	if opts.Attention == "" {
		opts.Attention = DefaultAttention
	}
	if opts.LocalAttentionContext == 0 {
		opts.LocalAttentionContext = DefaultLocalAttentionContext
	}
	return loadModelCommand{
		Command:               cmdLoadModel,
		ModelID:               opts.ModelID,
		ModelVersion:          opts.ModelVersion,
		ForceDownload:         opts.ForceDownload,
		LocalPath:             opts.LocalPath,
		CacheDir:              opts.CacheDir,
		Precision:             opts.Precision,
		Attention:             opts.Attention,
		LocalAttentionContext: opts.LocalAttentionContext,
		ChunkDuration:         opts.ChunkDuration,
		OverlapDuration:       opts.OverlapDuration,
		EagerUnload:           opts.EagerUnload,
	}
}

// newTranscribeCommand builds the wire form of one transcribe request.
func newTranscribeCommand(audioPath string, opts TranscribeOptions) transcribeCommand {
	return transcribeCommand{
		Command:               cmdTranscribe,
		AudioPath:             audioPath,
		Language:              opts.Language,
		TranslateToEnglish:    opts.TranslateToEnglish,
		Prompt:                opts.Prompt,
		UseWordTimestamps:     opts.WordTimestamps,
		ChunkDuration:         opts.ChunkDuration,
		OverlapDuration:       opts.OverlapDuration,
		Attention:             opts.Attention,
		LocalAttentionContext: opts.LocalAttentionContext,
	}
}
