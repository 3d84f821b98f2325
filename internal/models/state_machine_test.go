package models

import (
	"testing"
)

func TestPhaseMachine_InitialState(t *testing.T) {
	m := NewPhaseMachine()

	if m.Current() != PhaseIdle {
		t.Errorf("Initial phase should be PhaseIdle, got %s", m.Current())
	}
	if m.InProgression() {
		t.Error("Fresh machine should not be in progression")
	}
}

func TestPhaseMachine_TurnCycle(t *testing.T) {
	m := NewPhaseMachine()

	transitions := []struct {
		to        Phase
		condition string
	}{
		{PhaseAwaitingIntent, "session_started"},
		{PhaseSettling, "advance_requested"},
		{PhaseAwaitingIntent, "turn_settled"},
		{PhaseSettling, "advance_requested"},
		{PhaseAwaitingIntent, "turn_settled"},
	}

	for _, tr := range transitions {
		if err := m.Transition(tr.to, tr.condition); err != nil {
			t.Fatalf("Transition to %s (%s) failed: %v", tr.to, tr.condition, err)
		}
	}

	if m.SettledTurns() != 2 {
		t.Errorf("Expected 2 settled turns, got %d", m.SettledTurns())
	}
	if !m.InProgression() {
		t.Error("Machine should be in progression after session start")
	}
}

func TestPhaseMachine_AbortedSettlementDoesNotCount(t *testing.T) {
	m := NewPhaseMachine()

	steps := []struct {
		to        Phase
		condition string
	}{
		{PhaseAwaitingIntent, "session_started"},
		{PhaseSettling, "advance_requested"},
		{PhaseAwaitingIntent, "settlement_aborted"},
	}
	for _, s := range steps {
		if err := m.Transition(s.to, s.condition); err != nil {
			t.Fatalf("Transition failed: %v", err)
		}
	}

	if m.SettledTurns() != 0 {
		t.Errorf("Aborted settlement should not count as a settled turn, got %d", m.SettledTurns())
	}
	if m.Current() != PhaseAwaitingIntent {
		t.Errorf("Machine should be back in awaiting_intent, got %s", m.Current())
	}
}

func TestPhaseMachine_InvalidTransitions(t *testing.T) {
	m := NewPhaseMachine()

	// Cannot settle from idle.
	if err := m.Transition(PhaseSettling, "advance_requested"); err == nil {
		t.Error("Transition idle -> settling should fail")
	}
	if m.Current() != PhaseIdle {
		t.Errorf("Failed transition must not change phase, got %s", m.Current())
	}

	// Wrong condition is rejected even for a valid edge.
	if err := m.Transition(PhaseAwaitingIntent, "bogus"); err == nil {
		t.Error("Transition with unknown condition should fail")
	}
}

func TestPhaseMachine_Reset(t *testing.T) {
	m := NewPhaseMachine()

	_ = m.Transition(PhaseAwaitingIntent, "session_started")
	_ = m.Transition(PhaseSettling, "advance_requested")
	_ = m.Transition(PhaseAwaitingIntent, "turn_settled")

	m.Reset()

	if m.Current() != PhaseIdle {
		t.Errorf("Reset should return to idle, got %s", m.Current())
	}
	if m.SettledTurns() != 0 {
		t.Errorf("Reset should clear settled turns, got %d", m.SettledTurns())
	}
}
