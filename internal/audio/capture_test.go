package audio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelectFromListPrefersMatchingDevice(t *testing.T) {
	devices := []Device{
		{ID: "alsa_input.pci-0000_00_1f.3.analog-stereo", Description: "Built-in Audio", Available: true, Default: true},
		{ID: "alsa_input.usb-Blue_Yeti.analog-stereo", Description: "Blue Yeti", Available: true},
	}

	selected, err := selectFromList(devices, "yeti")
	require.NoError(t, err)
	require.Equal(t, "alsa_input.usb-Blue_Yeti.analog-stereo", selected.ID)
}

func TestSelectFromListFallsBackToDefault(t *testing.T) {
	devices := []Device{
		{ID: "builtin", Description: "Built-in Audio", Available: true, Default: true},
		{ID: "headset", Description: "USB Headset", Available: false},
	}

	// Unusable preference falls back to the server default.
	selected, err := selectFromList(devices, "headset")
	require.NoError(t, err)
	require.Equal(t, "builtin", selected.ID)

	// Empty and "default" preferences resolve the same way.
	for _, preference := range []string{"", "default"} {
		selected, err = selectFromList(devices, preference)
		require.NoError(t, err)
		require.Equal(t, "builtin", selected.ID)
	}
}

func TestSelectFromListErrors(t *testing.T) {
	_, err := selectFromList(nil, "default")
	require.Error(t, err)

	_, err = selectFromList([]Device{{ID: "muted", Available: true, Muted: true, Default: true}}, "")
	require.Error(t, err)

	_, err = selectFromList([]Device{{ID: "gone", Available: false, Default: true}}, "")
	require.Error(t, err)

	// No default at all.
	_, err = selectFromList([]Device{{ID: "x", Available: true}}, "nomatch")
	require.Error(t, err)
}
