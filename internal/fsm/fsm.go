// Package fsm tracks the recording session lifecycle phase.
package fsm

import (
	"fmt"
	"sync"
)

// Phase is one stage of a recording session's lifecycle.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseStarting     Phase = "starting"
	PhaseRecording    Phase = "recording"
	PhaseStopping     Phase = "stopping"
	PhaseTranscribing Phase = "transcribing"
	PhaseError        Phase = "error"
)

// edges is the allowed transition set. PhaseError is reachable from every
// phase and is therefore handled separately in Validate.
var edges = map[Phase][]Phase{
	PhaseIdle:         {PhaseStarting},
	PhaseStarting:     {PhaseRecording, PhaseIdle},
	PhaseRecording:    {PhaseStopping, PhaseIdle},
	PhaseStopping:     {PhaseTranscribing, PhaseIdle},
	PhaseTranscribing: {PhaseIdle},
	PhaseError:        {PhaseIdle},
}

// InvalidTransitionError reports a rejected phase transition. The machine
// state is unchanged when this error is returned.
type InvalidTransitionError struct {
	From Phase
	To   Phase
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s --> %s", e.From, e.To)
}

// Known reports whether p is a defined lifecycle phase.
func Known(p Phase) bool {
	if p == PhaseError {
		return true
	}
	_, ok := edges[p]
	return ok
}

// Active reports whether p describes an in-flight session.
func Active(p Phase) bool {
	switch p {
	case PhaseStarting, PhaseRecording, PhaseStopping, PhaseTranscribing:
		return true
	default:
		return false
	}
}

// Validate checks one edge of the transition graph.
func Validate(from Phase, to Phase) error {
	if !Known(from) {
		return fmt.Errorf("unknown phase %q", from)
	}
	if !Known(to) {
		return fmt.Errorf("unknown phase %q", to)
	}
	if to == PhaseError {
		return nil
	}
	for _, next := range edges[from] {
		if next == to {
			return nil
		}
	}
	return &InvalidTransitionError{From: from, To: to}
}

// Machine is the authoritative, concurrency-safe phase holder for one
// session slot. All mutation goes through Transition, TransitionFrom, or
// ForceSet; readers only ever observe a fully written phase.
type Machine struct {
	mu    sync.RWMutex
	phase Phase
}

// NewMachine returns a machine in PhaseIdle.
func NewMachine() *Machine {
	return &Machine{phase: PhaseIdle}
}

// Current returns the phase snapshot.
func (m *Machine) Current() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

// Transition moves to the requested phase when the edge is legal.
func (m *Machine) Transition(to Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := Validate(m.phase, to); err != nil {
		return err
	}
	m.phase = to
	return nil
}

// TransitionFrom moves to the requested phase only when the machine is still
// in the expected phase. Racing callers observe exactly one winner; losers
// receive an InvalidTransitionError carrying the phase they actually saw.
func (m *Machine) TransitionFrom(from Phase, to Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != from {
		return &InvalidTransitionError{From: m.phase, To: to}
	}
	if err := Validate(from, to); err != nil {
		return err
	}
	m.phase = to
	return nil
}

// ForceSet bypasses edge validation for recovery paths. Unknown phases are
// coerced to PhaseError so readers never observe an undefined value.
func (m *Machine) ForceSet(to Phase) {
	if !Known(to) {
		to = PhaseError
	}
	m.mu.Lock()
	m.phase = to
	m.mu.Unlock()
}
