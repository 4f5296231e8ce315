package fsm

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateHappyPath(t *testing.T) {
	path := []Phase{PhaseIdle, PhaseStarting, PhaseRecording, PhaseStopping, PhaseTranscribing, PhaseIdle}
	for i := 0; i < len(path)-1; i++ {
		require.NoError(t, Validate(path[i], path[i+1]))
	}
}

func TestValidateErrorReachableFromAnyPhase(t *testing.T) {
	phases := []Phase{PhaseIdle, PhaseStarting, PhaseRecording, PhaseStopping, PhaseTranscribing, PhaseError}
	for _, phase := range phases {
		require.NoError(t, Validate(phase, PhaseError))
	}
}

func TestValidateMatrixInvalidEdges(t *testing.T) {
	tests := []struct {
		name string
		from Phase
		to   Phase
	}{
		{name: "idle to recording skips starting", from: PhaseIdle, to: PhaseRecording},
		{name: "idle to transcribing", from: PhaseIdle, to: PhaseTranscribing},
		{name: "starting to stopping", from: PhaseStarting, to: PhaseStopping},
		{name: "recording to transcribing skips stopping", from: PhaseRecording, to: PhaseTranscribing},
		{name: "transcribing to recording", from: PhaseTranscribing, to: PhaseRecording},
		{name: "error to recording", from: PhaseError, to: PhaseRecording},
		{name: "idle self loop", from: PhaseIdle, to: PhaseIdle},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.from, tc.to)
			require.Error(t, err)

			var invalid *InvalidTransitionError
			require.ErrorAs(t, err, &invalid)
			require.Equal(t, tc.from, invalid.From)
			require.Equal(t, tc.to, invalid.To)
		})
	}
}

func TestValidateUnknownPhase(t *testing.T) {
	require.Error(t, Validate(Phase("mystery"), PhaseIdle))
	require.Error(t, Validate(PhaseIdle, Phase("mystery")))
}

func TestMachineRejectionLeavesPhaseUnchanged(t *testing.T) {
	m := NewMachine()

	err := m.Transition(PhaseTranscribing)
	require.Error(t, err)
	require.Equal(t, PhaseIdle, m.Current())
}

func TestMachineTransitionFromSingleWinner(t *testing.T) {
	m := NewMachine()
	require.NoError(t, m.Transition(PhaseStarting))
	require.NoError(t, m.Transition(PhaseRecording))

	const racers = 16
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			errs[slot] = m.TransitionFrom(PhaseRecording, PhaseStopping)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		var invalid *InvalidTransitionError
		require.ErrorAs(t, err, &invalid)
	}
	require.Equal(t, 1, winners)
	require.Equal(t, PhaseStopping, m.Current())
}

func TestMachineConcurrentMixedTransitionsStayWellDefined(t *testing.T) {
	m := NewMachine()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			switch slot % 4 {
			case 0:
				_ = m.Transition(PhaseStarting)
			case 1:
				_ = m.Transition(PhaseRecording)
			case 2:
				_ = m.Transition(PhaseError)
			default:
				_ = m.Transition(PhaseIdle)
			}
		}(i)
	}
	wg.Wait()

	require.True(t, Known(m.Current()))
}

func TestMachineForceSet(t *testing.T) {
	m := NewMachine()
	require.NoError(t, m.Transition(PhaseStarting))

	m.ForceSet(PhaseIdle)
	require.Equal(t, PhaseIdle, m.Current())

	m.ForceSet(Phase("torn"))
	require.Equal(t, PhaseError, m.Current())
}

func TestActive(t *testing.T) {
	require.False(t, Active(PhaseIdle))
	require.False(t, Active(PhaseError))
	require.True(t, Active(PhaseStarting))
	require.True(t, Active(PhaseRecording))
	require.True(t, Active(PhaseStopping))
	require.True(t, Active(PhaseTranscribing))
}
