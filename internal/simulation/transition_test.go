package simulation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func sequentialMachine() Machine {
	counter := 0
	return Machine{NewID: func() string {
		counter++
		return fmt.Sprintf("sim-%d", counter)
	}}
}

func effectKinds(effects []Effect) []EffectKind {
	kinds := make([]EffectKind, 0, len(effects))
	for _, effect := range effects {
		kinds = append(kinds, effect.Kind)
	}
	return kinds
}

func TestFetchInitialisesPhaseOne(t *testing.T) {
	m := sequentialMachine()

	state, effects, err := m.Apply(State{}, Event{Kind: EventFetch})
	require.NoError(t, err)
	require.Equal(t, StagePhase1, state.Stage())
	require.Equal(t, "sim-1", state.SimulationID)
	require.Equal(t, 1, state.CurrentPredefinedIndex)
	require.Equal(t, []EffectKind{EffectLogEvent, EffectServePredefined}, effectKinds(effects))
	require.Equal(t, LogStarted, effects[0].Event)
	require.Equal(t, uint(1), effects[1].EmailID)
}

func TestFetchIsIdempotentInPhaseOne(t *testing.T) {
	m := sequentialMachine()
	state, _, err := m.Apply(State{}, Event{Kind: EventFetch})
	require.NoError(t, err)

	again, effects, err := m.Apply(state, Event{Kind: EventFetch})
	require.NoError(t, err)
	require.Equal(t, state, again)
	require.Equal(t, []EffectKind{EffectServePredefined}, effectKinds(effects))
	require.Equal(t, uint(1), effects[0].EmailID)
}

func TestPhaseOneSubmissionsAdvanceIndexAndTransition(t *testing.T) {
	m := sequentialMachine()
	state := Fresh("sim")

	for i := 1; i <= PredefinedCount; i++ {
		require.Equal(t, StagePhase1, state.Stage())
		next, effects, err := m.Apply(state, Event{Kind: EventSubmit, EmailID: uint(i)})
		require.NoError(t, err)
		require.Equal(t, EffectRecordResponse, effects[0].Kind)
		require.False(t, effects[0].Grade)

		if i < PredefinedCount {
			require.Equal(t, state.CurrentPredefinedIndex+1, next.CurrentPredefinedIndex)
			require.Equal(t, Phase1, next.Phase)
			require.Len(t, effects, 1)
		} else {
			require.Equal(t, Phase2, next.Phase)
			require.Equal(t, StagePhase2, next.Stage())
			require.Nil(t, next.ActiveGeneratedEmailID)
			require.Equal(t, []EffectKind{EffectRecordResponse, EffectLogEvent}, effectKinds(effects))
			require.Equal(t, LogPhase1Completed, effects[1].Event)
		}
		state = next
	}
}

func TestPhaseOneSubmitRejectsWrongEmail(t *testing.T) {
	m := sequentialMachine()
	state := Fresh("sim")

	_, _, err := m.Apply(state, Event{Kind: EventSubmit, EmailID: 3})
	require.ErrorIs(t, err, ErrEmailMismatch)
}

func TestPhaseOneSkipAdvancesWithoutResponse(t *testing.T) {
	m := sequentialMachine()
	state := Fresh("sim")

	next, effects, err := m.Apply(state, Event{Kind: EventSkip})
	require.NoError(t, err)
	require.Empty(t, effects)
	require.Equal(t, 2, next.CurrentPredefinedIndex)

	_, _, err = m.Apply(state, Event{Kind: EventContinue})
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestFetchMovesStalePhaseOneIntoPhaseTwo(t *testing.T) {
	m := sequentialMachine()
	state := Fresh("sim")
	state.CurrentPredefinedIndex = PredefinedCount + 1

	next, effects, err := m.Apply(state, Event{Kind: EventFetch})
	require.NoError(t, err)
	require.Equal(t, StagePhase2, next.Stage())
	require.Equal(t, []EffectKind{EffectLogEvent, EffectGenerateEmail}, effectKinds(effects))
}

func phaseTwoState() State {
	state := Fresh("sim")
	state.CurrentPredefinedIndex = PredefinedCount + 1
	state.Phase = Phase2
	return state
}

func TestPhaseTwoFetchGeneratesOnceThenServesActive(t *testing.T) {
	m := sequentialMachine()
	state := phaseTwoState()

	state, effects, err := m.Apply(state, Event{Kind: EventFetch})
	require.NoError(t, err)
	require.Equal(t, []EffectKind{EffectGenerateEmail}, effectKinds(effects))

	state, effects, err = m.Apply(state, Event{Kind: EventEmailGenerated, EmailID: 42})
	require.NoError(t, err)
	require.Equal(t, []EffectKind{EffectServeGenerated}, effectKinds(effects))
	require.Equal(t, uint(42), *state.ActiveGeneratedEmailID)

	for i := 0; i < 2; i++ {
		again, effects, err := m.Apply(state, Event{Kind: EventFetch})
		require.NoError(t, err)
		require.Equal(t, state, again)
		require.Equal(t, []EffectKind{EffectServeGenerated}, effectKinds(effects))
		require.Equal(t, uint(42), effects[0].EmailID)
	}

	_, _, err = m.Apply(state, Event{Kind: EventEmailGenerated, EmailID: 43})
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestPhaseTwoCounterAdvancesOnlyOnContinueOrSkip(t *testing.T) {
	m := sequentialMachine()
	state := phaseTwoState()

	for step := 0; step < GeneratedCount; step++ {
		require.Equal(t, StagePhase2, state.Stage())
		var err error
		state, _, err = m.Apply(state, Event{Kind: EventFetch})
		require.NoError(t, err)
		emailID := uint(100 + step)
		state, _, err = m.Apply(state, Event{Kind: EventEmailGenerated, EmailID: emailID})
		require.NoError(t, err)

		before := state.Phase2CompletedCount
		if step%2 == 0 {
			_, _, err = m.Apply(state, Event{Kind: EventContinue})
			require.ErrorIs(t, err, ErrFeedbackPending)

			var effects []Effect
			state, effects, err = m.Apply(state, Event{Kind: EventSubmit, EmailID: emailID})
			require.NoError(t, err)
			require.True(t, effects[0].Grade)
			require.Equal(t, before, state.Phase2CompletedCount)

			state, _, err = m.Apply(state, Event{Kind: EventSubmit, EmailID: emailID})
			require.NoError(t, err)
			require.Equal(t, before, state.Phase2CompletedCount)

			var next State
			next, effects, err = m.Apply(state, Event{Kind: EventContinue})
			require.NoError(t, err)
			require.Equal(t, before+1, next.Phase2CompletedCount)
			require.Nil(t, next.ActiveGeneratedEmailID)
			if step == GeneratedCount-1 {
				require.Equal(t, []EffectKind{EffectLogEvent}, effectKinds(effects))
			}
			state = next
		} else {
			next, _, err := m.Apply(state, Event{Kind: EventSkip})
			require.NoError(t, err)
			require.Equal(t, before+1, next.Phase2CompletedCount)
			state = next
		}

		if step < GeneratedCount-1 {
			require.Equal(t, StagePhase2, state.Stage())
		}
	}

	require.Equal(t, StageComplete, state.Stage())
	require.Equal(t, GeneratedCount, state.Phase2CompletedCount)

	_, effects, err := m.Apply(state, Event{Kind: EventFetch})
	require.NoError(t, err)
	require.Empty(t, effects)

	_, _, err = m.Apply(state, Event{Kind: EventSkip})
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestPhaseTwoSubmitRequiresActiveEmail(t *testing.T) {
	m := sequentialMachine()
	state := phaseTwoState()

	_, _, err := m.Apply(state, Event{Kind: EventSubmit, EmailID: 9})
	require.ErrorIs(t, err, ErrInvalidTransition)

	id := uint(7)
	state.ActiveGeneratedEmailID = &id
	_, _, err = m.Apply(state, Event{Kind: EventSubmit, EmailID: 9})
	require.ErrorIs(t, err, ErrEmailMismatch)
}

func TestResultsRequireCompletionAndClearState(t *testing.T) {
	m := sequentialMachine()
	state := phaseTwoState()

	_, _, err := m.Apply(state, Event{Kind: EventResults})
	require.ErrorIs(t, err, ErrNotComplete)

	state.Phase2CompletedCount = GeneratedCount
	next, effects, err := m.Apply(state, Event{Kind: EventResults})
	require.NoError(t, err)
	require.Equal(t, StageUninitialized, next.Stage())
	require.Equal(t, []EffectKind{EffectComputeResults, EffectClearState, EffectLogEvent}, effectKinds(effects))
	require.Equal(t, "sim", effects[0].SimulationID)

	fresh, _, err := m.Apply(next, Event{Kind: EventFetch})
	require.NoError(t, err)
	require.Equal(t, StagePhase1, fresh.Stage())
	require.NotEqual(t, "sim", fresh.SimulationID)
}

func TestRestartIssuesNewSimulation(t *testing.T) {
	m := sequentialMachine()
	state := phaseTwoState()
	state.Phase2CompletedCount = 3

	next, effects, err := m.Apply(state, Event{Kind: EventRestart})
	require.NoError(t, err)
	require.Equal(t, StagePhase1, next.Stage())
	require.NotEqual(t, state.SimulationID, next.SimulationID)
	require.Equal(t, 1, next.CurrentPredefinedIndex)
	require.Zero(t, next.Phase2CompletedCount)
	require.Contains(t, effectKinds(effects), EffectPurgeResponses)
	require.Contains(t, effectKinds(effects), EffectResetGovernor)
}

func TestStateValid(t *testing.T) {
	require.True(t, State{}.Valid())
	require.True(t, Fresh("x").Valid())

	broken := Fresh("x")
	broken.CurrentPredefinedIndex = 40
	require.False(t, broken.Valid())
}
