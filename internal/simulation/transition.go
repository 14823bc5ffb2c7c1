package simulation

// EventKind names the actions that move a simulation forward.
type EventKind string

const (
	EventFetch          EventKind = "fetch"
	EventEmailGenerated EventKind = "email_generated"
	EventSubmit         EventKind = "submit"
	EventContinue       EventKind = "continue"
	EventSkip           EventKind = "skip"
	EventResults        EventKind = "results"
	EventRestart        EventKind = "restart"
	EventReset          EventKind = "reset"
)

// Event is one input to the machine.
type Event struct {
	Kind    EventKind
	EmailID uint
}

// EffectKind names the side effects the caller performs after a transition.
type EffectKind string

const (
	EffectServePredefined EffectKind = "serve_predefined"
	EffectServeGenerated  EffectKind = "serve_generated"
	EffectGenerateEmail   EffectKind = "generate_email"
	EffectRecordResponse  EffectKind = "record_response"
	EffectComputeResults  EffectKind = "compute_results"
	EffectClearState      EffectKind = "clear_state"
	EffectPurgeResponses  EffectKind = "purge_responses"
	EffectResetGovernor   EffectKind = "reset_governor"
	EffectLogEvent        EffectKind = "log_event"
)

// Lifecycle event names carried by EffectLogEvent.
const (
	LogStarted         = "started"
	LogPhase1Completed = "phase1_completed"
	LogPhase2Completed = "phase2_completed"
	LogCompleted       = "completed"
	LogRestarted       = "restarted"
	LogReset           = "reset"
)

// Effect is an instruction for the caller. Grade is set on EffectRecordResponse when the
// response must be graded before it is stored.
type Effect struct {
	Kind         EffectKind
	EmailID      uint
	Grade        bool
	Event        string
	SimulationID string
}

// Apply runs one event against the state and returns the next state with the effects to
// perform, in order. Errors leave the state unchanged.
func (m Machine) Apply(state State, event Event) (State, []Effect, error) {
	switch event.Kind {
	case EventFetch:
		return m.fetch(state)
	case EventEmailGenerated:
		return emailGenerated(state, event.EmailID)
	case EventSubmit:
		return submit(state, event.EmailID)
	case EventContinue:
		return advance(state, true)
	case EventSkip:
		return advance(state, false)
	case EventResults:
		return results(state)
	case EventRestart:
		next := Fresh(m.newID())
		return next, []Effect{
			{Kind: EffectPurgeResponses, SimulationID: state.SimulationID},
			{Kind: EffectResetGovernor},
			{Kind: EffectLogEvent, Event: LogRestarted, SimulationID: next.SimulationID},
			{Kind: EffectLogEvent, Event: LogStarted, SimulationID: next.SimulationID},
		}, nil
	case EventReset:
		next := Fresh(m.newID())
		return next, []Effect{
			{Kind: EffectLogEvent, Event: LogReset, SimulationID: next.SimulationID},
			{Kind: EffectLogEvent, Event: LogStarted, SimulationID: next.SimulationID},
		}, nil
	default:
		return state, nil, ErrInvalidTransition
	}
}

func (m Machine) fetch(state State) (State, []Effect, error) {
	var effects []Effect

	if state.Stage() == StageUninitialized {
		state = Fresh(m.newID())
		effects = append(effects, Effect{Kind: EffectLogEvent, Event: LogStarted, SimulationID: state.SimulationID})
	}

	if state.Phase == Phase1 {
		if state.CurrentPredefinedIndex < 1 {
			state.CurrentPredefinedIndex = 1
		}
		if state.CurrentPredefinedIndex <= PredefinedCount {
			effects = append(effects, Effect{
				Kind:         EffectServePredefined,
				EmailID:      uint(state.CurrentPredefinedIndex),
				SimulationID: state.SimulationID,
			})
			return state, effects, nil
		}
		state = enterPhase2(state)
		effects = append(effects, Effect{Kind: EffectLogEvent, Event: LogPhase1Completed, SimulationID: state.SimulationID})
	}

	switch {
	case state.Phase2CompletedCount >= GeneratedCount:
		return state, effects, nil
	case state.ActiveGeneratedEmailID != nil:
		effects = append(effects, Effect{
			Kind:         EffectServeGenerated,
			EmailID:      *state.ActiveGeneratedEmailID,
			SimulationID: state.SimulationID,
		})
	default:
		effects = append(effects, Effect{Kind: EffectGenerateEmail, SimulationID: state.SimulationID})
	}
	return state, effects, nil
}

func emailGenerated(state State, emailID uint) (State, []Effect, error) {
	if state.Stage() != StagePhase2 || state.ActiveGeneratedEmailID != nil || emailID == 0 {
		return state, nil, ErrInvalidTransition
	}
	id := emailID
	state.ActiveGeneratedEmailID = &id
	state.AwaitingContinue = false
	return state, []Effect{{Kind: EffectServeGenerated, EmailID: id, SimulationID: state.SimulationID}}, nil
}

func submit(state State, emailID uint) (State, []Effect, error) {
	switch state.Stage() {
	case StagePhase1:
		if state.CurrentPredefinedIndex > PredefinedCount || emailID != uint(state.CurrentPredefinedIndex) {
			return state, nil, ErrEmailMismatch
		}
		effects := []Effect{{Kind: EffectRecordResponse, EmailID: emailID, SimulationID: state.SimulationID}}
		state.CurrentPredefinedIndex++
		if state.CurrentPredefinedIndex > PredefinedCount {
			state = enterPhase2(state)
			effects = append(effects, Effect{Kind: EffectLogEvent, Event: LogPhase1Completed, SimulationID: state.SimulationID})
		}
		return state, effects, nil
	case StagePhase2:
		if state.ActiveGeneratedEmailID == nil {
			return state, nil, ErrInvalidTransition
		}
		if emailID != *state.ActiveGeneratedEmailID {
			return state, nil, ErrEmailMismatch
		}
		state.AwaitingContinue = true
		return state, []Effect{{Kind: EffectRecordResponse, EmailID: emailID, Grade: true, SimulationID: state.SimulationID}}, nil
	default:
		return state, nil, ErrInvalidTransition
	}
}

// advance handles continue (requireAnswer) and skip.
func advance(state State, requireAnswer bool) (State, []Effect, error) {
	switch state.Stage() {
	case StagePhase1:
		if requireAnswer {
			return state, nil, ErrInvalidTransition
		}
		state.CurrentPredefinedIndex++
		if state.CurrentPredefinedIndex <= PredefinedCount {
			return state, nil, nil
		}
		state = enterPhase2(state)
		return state, []Effect{{Kind: EffectLogEvent, Event: LogPhase1Completed, SimulationID: state.SimulationID}}, nil
	case StagePhase2:
		if requireAnswer && !state.AwaitingContinue {
			return state, nil, ErrFeedbackPending
		}
		state.Phase2CompletedCount++
		state.ActiveGeneratedEmailID = nil
		state.AwaitingContinue = false
		if state.Phase2CompletedCount >= GeneratedCount {
			return state, []Effect{{Kind: EffectLogEvent, Event: LogPhase2Completed, SimulationID: state.SimulationID}}, nil
		}
		return state, nil, nil
	default:
		return state, nil, ErrInvalidTransition
	}
}

func results(state State) (State, []Effect, error) {
	if state.Stage() != StageComplete {
		return state, nil, ErrNotComplete
	}
	return State{}, []Effect{
		{Kind: EffectComputeResults, SimulationID: state.SimulationID},
		{Kind: EffectClearState, SimulationID: state.SimulationID},
		{Kind: EffectLogEvent, Event: LogCompleted, SimulationID: state.SimulationID},
	}, nil
}

func enterPhase2(state State) State {
	state.Phase = Phase2
	state.Phase2CompletedCount = 0
	state.ActiveGeneratedEmailID = nil
	state.AwaitingContinue = false
	return state
}
