// Package simulation holds the two-phase training state machine. Transitions are pure
// functions of (state, event) and return the effects the caller must carry out.
package simulation

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Phase identifies which half of the simulation the user is in.
type Phase int

const (
	// PhaseUninitialized is the zero value before the first fetch or after results.
	PhaseUninitialized Phase = 0
	// Phase1 serves the predefined emails.
	Phase1 Phase = 1
	// Phase2 serves AI-generated emails with graded explanations.
	Phase2 Phase = 2
)

// Stage is the externally visible state of a simulation.
type Stage string

const (
	StageUninitialized Stage = "uninitialized"
	StagePhase1        Stage = "phase_1_active"
	StagePhase2        Stage = "phase_2_active"
	StageComplete      Stage = "complete"
)

const (
	// PredefinedCount is the number of predefined phase-1 emails.
	PredefinedCount = 5
	// GeneratedCount is the number of phase-2 emails per simulation run.
	GeneratedCount = 5
)

var (
	// ErrInvalidTransition is returned when an event is not allowed in the current stage.
	ErrInvalidTransition = errors.New("action not allowed in the current simulation stage")
	// ErrEmailMismatch is returned when a submission targets an email that is not being served.
	ErrEmailMismatch = errors.New("submitted email is not the active simulation email")
	// ErrNotComplete is returned when results are requested before phase 2 finished.
	ErrNotComplete = errors.New("simulation is not complete")
	// ErrFeedbackPending is returned when continuing before the active email was answered.
	ErrFeedbackPending = errors.New("submit a response before continuing")
)

// State is the per-user simulation state serialized into the session store.
type State struct {
	Phase                  Phase  `json:"phase"`
	SimulationID           string `json:"simulation_id"`
	CurrentPredefinedIndex int    `json:"current_predefined_index"`
	Phase2CompletedCount   int    `json:"phase2_completed_count"`
	ActiveGeneratedEmailID *uint  `json:"active_generated_email_id,omitempty"`
	AwaitingContinue       bool   `json:"awaiting_continue"`
}

// Stage derives the visible stage from the stored fields.
func (s State) Stage() Stage {
	switch {
	case s.Phase == PhaseUninitialized || strings.TrimSpace(s.SimulationID) == "":
		return StageUninitialized
	case s.Phase == Phase1:
		return StagePhase1
	case s.Phase2CompletedCount >= GeneratedCount:
		return StageComplete
	default:
		return StagePhase2
	}
}

// Valid reports whether the stored pointers are within range for the phase.
func (s State) Valid() bool {
	switch s.Stage() {
	case StageUninitialized:
		return true
	case StagePhase1:
		return s.CurrentPredefinedIndex >= 1 && s.CurrentPredefinedIndex <= PredefinedCount+1
	default:
		return s.Phase == Phase2 && s.Phase2CompletedCount >= 0
	}
}

// Fresh returns a new phase-1 state for the given simulation id.
func Fresh(simulationID string) State {
	return State{
		Phase:                  Phase1,
		SimulationID:           simulationID,
		CurrentPredefinedIndex: 1,
	}
}

// Machine applies events to states. NewID supplies simulation identifiers and defaults to UUIDs.
type Machine struct {
	NewID func() string
}

// NewMachine returns a machine that issues random UUID simulation identifiers.
func NewMachine() Machine {
	return Machine{NewID: uuid.NewString}
}

func (m Machine) newID() string {
	if m.NewID != nil {
		return m.NewID()
	}
	return uuid.NewString()
}
