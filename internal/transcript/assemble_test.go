package transcript

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moinulmoin/voicetypr/internal/sidecar"
)

func segs(texts ...string) []sidecar.Segment {
	out := make([]sidecar.Segment, len(texts))
	for i, t := range texts {
		out[i] = sidecar.Segment{Text: t}
	}
	return out
}

func TestAssembleNormalizesWhitespaceAndTrailingSpace(t *testing.T) {
	t.Parallel()

	got := Assemble(segs(" hello", "world.", "\nfrom", "voicetypr"), Options{TrailingSpace: true})
	require.Equal(t, "hello world. from voicetypr ", got)
}

func TestAssembleWithoutTrailingSpace(t *testing.T) {
	t.Parallel()

	got := Assemble(segs("hello", "world"), Options{})
	require.Equal(t, "hello world", got)
}

func TestAssembleEmptyInput(t *testing.T) {
	t.Parallel()

	require.Empty(t, Assemble(nil, Options{TrailingSpace: true}))
}

func TestAssembleSkipsWhitespaceOnlySegments(t *testing.T) {
	t.Parallel()

	got := Assemble(segs("  ", "\n\t", "hello"), Options{})
	require.Equal(t, "hello", got)
}

func TestAssembleAllWhitespaceSegments(t *testing.T) {
	t.Parallel()

	require.Empty(t, Assemble(segs("  ", "\t"), Options{TrailingSpace: true}))
}

func TestAssemblePreservesSegmentOrder(t *testing.T) {
	t.Parallel()

	got := Assemble(segs("one", "two", "three"), Options{})
	require.Equal(t, "one two three", got)
}
