package models

import (
	"fmt"
	"time"
)

// Phase represents where the session is in the turn cycle.
type Phase string

const (
	// PhaseIdle is the browsing state: the session exists but turn
	// progression has not started.
	PhaseIdle Phase = "idle"
	// PhaseAwaitingIntent means the session is live and waiting for the
	// next intent / advance request.
	PhaseAwaitingIntent Phase = "awaiting_intent"
	// PhaseSettling is entered while an advance is resolving a turn.
	PhaseSettling Phase = "settling"
)

// PhaseTransition defines a valid phase transition.
type PhaseTransition struct {
	From        Phase
	To          Phase
	Condition   string
	Description string
}

// ValidPhaseTransitions is the complete transition table for a session.
var ValidPhaseTransitions = []PhaseTransition{
	{PhaseIdle, PhaseAwaitingIntent, "session_started", "Turn progression enabled"},
	{PhaseAwaitingIntent, PhaseSettling, "advance_requested", "Advance requested, resolving turn"},
	{PhaseSettling, PhaseAwaitingIntent, "turn_settled", "Turn settled and recorded"},
	{PhaseSettling, PhaseAwaitingIntent, "settlement_aborted", "Provider failure, no state mutated"},
}

// PhaseMachine tracks the session phase and validates transitions.
type PhaseMachine struct {
	current        Phase
	previous       Phase
	transitionTime time.Time
	settledTurns   int
}

// NewPhaseMachine creates a machine in the idle (browsing) phase.
func NewPhaseMachine() *PhaseMachine {
	return &PhaseMachine{
		current:        PhaseIdle,
		previous:       PhaseIdle,
		transitionTime: time.Now().UTC(),
	}
}

// Current returns the current phase.
func (m *PhaseMachine) Current() Phase {
	return m.current
}

// Previous returns the phase before the last transition.
func (m *PhaseMachine) Previous() Phase {
	return m.previous
}

// SettledTurns returns how many times the machine completed a settlement.
func (m *PhaseMachine) SettledTurns() int {
	return m.settledTurns
}

// CanTransition checks whether moving to the given phase under the given
// condition is allowed from the current phase.
func (m *PhaseMachine) CanTransition(to Phase, condition string) error {
	for _, tr := range ValidPhaseTransitions {
		if tr.From == m.current && tr.To == to && tr.Condition == condition {
			return nil
		}
	}
	return fmt.Errorf("invalid phase transition from %s to %s with condition %q",
		m.current, to, condition)
}

// Transition moves to a new phase after validating the transition.
func (m *PhaseMachine) Transition(to Phase, condition string) error {
	if err := m.CanTransition(to, condition); err != nil {
		return err
	}

	m.previous = m.current
	m.current = to
	m.transitionTime = time.Now().UTC()
	if condition == "turn_settled" {
		m.settledTurns++
	}
	return nil
}

// Reset returns the machine to the idle phase. Valid from any phase; reset
// is the one escape hatch the session exposes.
func (m *PhaseMachine) Reset() {
	m.previous = m.current
	m.current = PhaseIdle
	m.transitionTime = time.Now().UTC()
	m.settledTurns = 0
}

// InProgression reports whether the session is in turn-progression mode as
// opposed to browsing.
func (m *PhaseMachine) InProgression() bool {
	return m.current == PhaseAwaitingIntent || m.current == PhaseSettling
}
