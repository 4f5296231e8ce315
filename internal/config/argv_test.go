package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseArgv(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "empty", input: "   ", want: nil},
		{name: "plain", input: "wl-copy --trim-newline", want: []string{"wl-copy", "--trim-newline"}},
		{name: "single quotes", input: "notify-send 'dictation done'", want: []string{"notify-send", "dictation done"}},
		{name: "double quotes", input: `sh -c "cat >> notes.txt"`, want: []string{"sh", "-c", "cat >> notes.txt"}},
		{name: "escaped space", input: `run my\ tool`, want: []string{"run", "my tool"}},
		{name: "mixed quoting", input: `cmd "a b"'c d'`, want: []string{"cmd", "a bc d"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			argv, err := parseArgv(tc.input)
			require.NoError(t, err)
			require.Equal(t, tc.want, argv)
		})
	}
}

func TestParseArgvRejectsUnterminatedInput(t *testing.T) {
	_, err := parseArgv(`wl-copy "unterminated`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unterminated quote")

	_, err = parseArgv(`wl-copy trailing\`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unterminated escape")
}
