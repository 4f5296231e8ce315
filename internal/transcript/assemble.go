// Package transcript assembles recognized engine segments into output text.
package transcript

import (
	"strings"

	"github.com/moinulmoin/voicetypr/internal/sidecar"
)

// Options controls transcript assembly formatting behavior.
type Options struct {
	TrailingSpace bool
}

// Assemble joins engine segments in order and collapses runs of whitespace.
// Segment text is otherwise passed through untouched.
func Assemble(segments []sidecar.Segment, opts Options) string {
	if len(segments) == 0 {
		return ""
	}

	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if strings.TrimSpace(seg.Text) == "" {
			continue
		}
		parts = append(parts, seg.Text)
	}

	joined := strings.Join(parts, " ")
	normalized := strings.Join(strings.Fields(joined), " ")
	if normalized == "" {
		return ""
	}

	if opts.TrailingSpace {
		return normalized + " "
	}
	return normalized
}
