package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ashuthecoder/cybervantage-api/internal/dto"
	"github.com/ashuthecoder/cybervantage-api/internal/emailpool"
	"github.com/ashuthecoder/cybervantage-api/internal/models"
	"github.com/ashuthecoder/cybervantage-api/internal/observability"
	"github.com/ashuthecoder/cybervantage-api/internal/repository"
	"github.com/ashuthecoder/cybervantage-api/internal/simulation"
)

var (
	// ErrExplanationRequired is returned when a phase-2 verdict arrives without an explanation.
	ErrExplanationRequired = errors.New("an explanation is required for this email")
	// ErrNoFeedback is returned when no graded response exists for the active email.
	ErrNoFeedback = errors.New("no feedback available for the current email")

	errStateCorruption = errors.New("simulation state corrupted")
)

// SimulationService drives the two-phase training simulation for one trainee at a time.
type SimulationService interface {
	Current(ctx context.Context, userID uint) (dto.SimulationView, error)
	Submit(ctx context.Context, userID uint, req dto.SimulationSubmitRequest) (dto.SimulationSubmitResponse, error)
	Feedback(ctx context.Context, userID uint) (dto.SimulationFeedbackResponse, error)
	Continue(ctx context.Context, userID uint) (dto.SimulationView, error)
	Skip(ctx context.Context, userID uint) (dto.SimulationView, error)
	Results(ctx context.Context, userID uint) (dto.SimulationResultsResponse, error)
	Restart(ctx context.Context, userID uint) (dto.SimulationView, error)
	ClearState(ctx context.Context, userID uint) error
	DebugState(ctx context.Context, userID uint) (dto.SimulationDebugResponse, error)
	SeedPredefined(ctx context.Context) error
}

// SimulationServiceConfig wires the simulation collaborators. Publisher is optional.
type SimulationServiceConfig struct {
	Users     repository.UserRepository
	Emails    repository.SimulationEmailRepository
	Responses repository.SimulationResponseRepository
	Sessions  repository.SimulationSessionRepository
	Store     StateStore
	Generator EmailGenerator
	Grader    ExplanationGrader
	Governor  *Governor
	Pool      *emailpool.Pool
	Publisher EventPublisher
	Machine   simulation.Machine
	Logger    zerolog.Logger
}

type simulationService struct {
	users     repository.UserRepository
	emails    repository.SimulationEmailRepository
	responses repository.SimulationResponseRepository
	sessions  repository.SimulationSessionRepository
	store     StateStore
	generator EmailGenerator
	grader    ExplanationGrader
	governor  *Governor
	pool      *emailpool.Pool
	publisher EventPublisher
	machine   simulation.Machine
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewSimulationService builds the simulation service.
func NewSimulationService(cfg SimulationServiceConfig) SimulationService {
	machine := cfg.Machine
	if machine.NewID == nil {
		machine = simulation.NewMachine()
	}
	return &simulationService{
		users:     cfg.Users,
		emails:    cfg.Emails,
		responses: cfg.Responses,
		sessions:  cfg.Sessions,
		store:     cfg.Store,
		generator: cfg.Generator,
		grader:    cfg.Grader,
		governor:  cfg.Governor,
		pool:      cfg.Pool,
		publisher: cfg.Publisher,
		machine:   machine,
		logger:    cfg.Logger.With().Str("component", "simulation_service").Logger(),
		tracer:    otel.Tracer("github.com/ashuthecoder/cybervantage-api/internal/service/simulation"),
		now:       time.Now,
	}
}

// step is the outcome of one applied event.
type step struct {
	state    simulation.State
	email    *dto.SimulationEmailResponse
	feedback *dto.SimulationFeedbackResponse
	results  *dto.SimulationResultsResponse
	cleared  bool
	reset    bool
}

func (s *simulationService) SeedPredefined(ctx context.Context) error {
	emails := make([]models.SimulationEmail, 0, len(s.pool.Predefined))
	for _, email := range s.pool.Predefined {
		emails = append(emails, models.SimulationEmail{
			ID:           email.ID,
			Sender:       email.Sender,
			Subject:      email.Subject,
			Date:         email.Date,
			Content:      email.Content,
			IsSpam:       email.IsSpam,
			IsPredefined: true,
		})
	}
	if err := s.emails.UpsertPredefined(ctx, emails); err != nil {
		return fmt.Errorf("seed predefined emails: %w", err)
	}
	return nil
}

func (s *simulationService) Current(ctx context.Context, userID uint) (dto.SimulationView, error) {
	result, err := s.run(ctx, userID, simulation.Event{Kind: simulation.EventFetch})
	if err != nil {
		return dto.SimulationView{}, err
	}
	return viewOf(result), nil
}

func (s *simulationService) Submit(ctx context.Context, userID uint, req dto.SimulationSubmitRequest) (dto.SimulationSubmitResponse, error) {
	if req.IsSpam == nil {
		return dto.SimulationSubmitResponse{}, simulation.ErrInvalidTransition
	}
	event := simulation.Event{Kind: simulation.EventSubmit, EmailID: req.EmailID}
	result, err := s.runVerdict(ctx, userID, event, *req.IsSpam, req.Explanation)
	if err != nil {
		return dto.SimulationSubmitResponse{}, err
	}
	return dto.SimulationSubmitResponse{State: viewOf(result), Feedback: result.feedback}, nil
}

func (s *simulationService) Feedback(ctx context.Context, userID uint) (dto.SimulationFeedbackResponse, error) {
	state, err := s.store.Load(ctx, userID)
	if err != nil {
		return dto.SimulationFeedbackResponse{}, ErrNoFeedback
	}
	if state.Stage() != simulation.StagePhase2 || state.ActiveGeneratedEmailID == nil || !state.AwaitingContinue {
		return dto.SimulationFeedbackResponse{}, ErrNoFeedback
	}

	response, err := s.responses.LatestForEmail(ctx, userID, *state.ActiveGeneratedEmailID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SimulationFeedbackResponse{}, ErrNoFeedback
		}
		return dto.SimulationFeedbackResponse{}, err
	}
	return toFeedbackResponse(response), nil
}

func (s *simulationService) Continue(ctx context.Context, userID uint) (dto.SimulationView, error) {
	result, err := s.run(ctx, userID, simulation.Event{Kind: simulation.EventContinue})
	if err != nil {
		return dto.SimulationView{}, err
	}
	return viewOf(result), nil
}

func (s *simulationService) Skip(ctx context.Context, userID uint) (dto.SimulationView, error) {
	result, err := s.run(ctx, userID, simulation.Event{Kind: simulation.EventSkip})
	if err != nil {
		return dto.SimulationView{}, err
	}
	return viewOf(result), nil
}

func (s *simulationService) Results(ctx context.Context, userID uint) (dto.SimulationResultsResponse, error) {
	result, err := s.run(ctx, userID, simulation.Event{Kind: simulation.EventResults})
	if err != nil {
		return dto.SimulationResultsResponse{}, err
	}
	if result.reset {
		view := viewOf(result)
		return dto.SimulationResultsResponse{
			SimulationID: view.SimulationID,
			Phase1:       []dto.SimulationResultItem{},
			Phase2:       []dto.SimulationResultItem{},
			Reset:        true,
			State:        &view,
		}, nil
	}
	if result.results == nil {
		return dto.SimulationResultsResponse{}, simulation.ErrNotComplete
	}
	return *result.results, nil
}

func (s *simulationService) Restart(ctx context.Context, userID uint) (dto.SimulationView, error) {
	if _, err := s.run(ctx, userID, simulation.Event{Kind: simulation.EventRestart}); err != nil {
		return dto.SimulationView{}, err
	}
	return s.Current(ctx, userID)
}

func (s *simulationService) ClearState(ctx context.Context, userID uint) error {
	return s.store.Clear(ctx, userID)
}

func (s *simulationService) DebugState(ctx context.Context, userID uint) (dto.SimulationDebugResponse, error) {
	state, err := s.store.Load(ctx, userID)
	if err != nil {
		return dto.SimulationDebugResponse{}, err
	}

	count, err := s.responses.CountByUser(ctx, userID)
	if err != nil {
		return dto.SimulationDebugResponse{}, err
	}

	debug := dto.SimulationDebugResponse{
		UserID:         userID,
		State:          viewOf(step{state: state}),
		Valid:          state.Valid(),
		ResponseCount:  count,
		Events:         []dto.SimulationEventItem{},
		FallbackActive: s.governor.ShouldFallback(),
	}
	if state.SimulationID == "" {
		return debug, nil
	}

	generated, err := s.emails.ListBySimulation(ctx, state.SimulationID)
	if err != nil {
		return dto.SimulationDebugResponse{}, err
	}
	debug.GeneratedEmails = len(generated)

	events, err := s.sessions.ListEvents(ctx, state.SimulationID)
	if err != nil {
		return dto.SimulationDebugResponse{}, err
	}
	for _, event := range events {
		debug.Events = append(debug.Events, dto.SimulationEventItem{
			Type:      event.Type,
			Details:   event.Details,
			CreatedAt: event.CreatedAt,
		})
	}
	return debug, nil
}

func (s *simulationService) run(ctx context.Context, userID uint, event simulation.Event) (step, error) {
	return s.runVerdict(ctx, userID, event, false, "")
}

// runVerdict loads the state, applies the event, performs its effects and stores the outcome.
// Anything that leaves the state unusable triggers an emergency reset instead of an error.
func (s *simulationService) runVerdict(ctx context.Context, userID uint, event simulation.Event, verdict bool, explanation string) (step, error) {
	ctx, span := s.tracer.Start(ctx, "simulation."+string(event.Kind))
	defer span.End()
	span.SetAttributes(attribute.Int("user.id", int(userID)))

	state, err := s.store.Load(ctx, userID)
	if err == nil && !state.Valid() {
		err = fmt.Errorf("%w: pointer out of range", errStateCorruption)
	}
	if err != nil {
		if event.Kind != simulation.EventRestart {
			return s.recover(ctx, span, userID, err)
		}
		// A restart never reads the old state, so it proceeds from a blank one and still purges.
		s.logger.Warn().Err(err).Uint("user_id", userID).Msg("discarding unreadable state on restart")
		state = simulation.State{}
	}

	if event.Kind == simulation.EventSubmit && state.Stage() == simulation.StagePhase2 && strings.TrimSpace(explanation) == "" {
		return step{}, ErrExplanationRequired
	}

	next, effects, err := s.machine.Apply(state, event)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return step{}, err
	}

	result := step{state: next}
	if err := s.perform(ctx, userID, &result, effects, verdict, explanation); err != nil {
		if ctx.Err() != nil {
			return step{}, ctx.Err()
		}
		return s.recover(ctx, span, userID, err)
	}

	if err := s.persist(ctx, userID, result); err != nil {
		return s.recover(ctx, span, userID, err)
	}
	span.SetAttributes(attribute.String("simulation.stage", string(result.state.Stage())))
	span.SetStatus(codes.Ok, "applied")
	return result, nil
}

func (s *simulationService) persist(ctx context.Context, userID uint, result step) error {
	if result.cleared {
		return s.store.Clear(ctx, userID)
	}
	return s.store.Save(ctx, userID, result.state)
}

// perform carries out effects in order. Effects appended by a nested transition are handled in
// the same pass.
func (s *simulationService) perform(ctx context.Context, userID uint, result *step, effects []simulation.Effect, verdict bool, explanation string) error {
	for i := 0; i < len(effects); i++ {
		effect := effects[i]
		switch effect.Kind {
		case simulation.EffectServePredefined:
			email, err := s.predefinedEmail(ctx, effect.EmailID)
			if err != nil {
				return err
			}
			result.email = toEmailResponse(email, simulation.Phase1, int(effect.EmailID))
		case simulation.EffectGenerateEmail:
			emailID, err := s.generate(ctx, userID, result.state.SimulationID)
			if err != nil {
				return err
			}
			next, more, err := s.machine.Apply(result.state, simulation.Event{Kind: simulation.EventEmailGenerated, EmailID: emailID})
			if err != nil {
				return fmt.Errorf("%w: %v", errStateCorruption, err)
			}
			result.state = next
			effects = append(effects, more...)
		case simulation.EffectServeGenerated:
			email, err := s.emails.GetByID(ctx, effect.EmailID)
			if err != nil {
				return fmt.Errorf("%w: generated email %d: %v", errStateCorruption, effect.EmailID, err)
			}
			if email.IsPredefined || email.SimulationID != result.state.SimulationID {
				return fmt.Errorf("%w: email %d belongs to another run", errStateCorruption, email.ID)
			}
			result.email = toEmailResponse(email, simulation.Phase2, result.state.Phase2CompletedCount+1)
		case simulation.EffectRecordResponse:
			feedback, err := s.record(ctx, userID, effect, verdict, explanation)
			if err != nil {
				return err
			}
			result.feedback = feedback
		case simulation.EffectComputeResults:
			results, err := s.computeResults(ctx, userID, effect.SimulationID)
			if err != nil {
				return err
			}
			result.results = &results
		case simulation.EffectClearState:
			result.cleared = true
		case simulation.EffectPurgeResponses:
			removed, err := s.responses.DeleteByUser(ctx, userID)
			if err != nil {
				return fmt.Errorf("purge responses: %w", err)
			}
			s.logger.Info().Uint("user_id", userID).Int64("removed", removed).Msg("simulation responses purged")
		case simulation.EffectResetGovernor:
			s.governor.Reset()
		case simulation.EffectLogEvent:
			if err := s.logEvent(ctx, userID, effect, result.results); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *simulationService) predefinedEmail(ctx context.Context, id uint) (models.SimulationEmail, error) {
	email, err := s.emails.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if seedErr := s.SeedPredefined(ctx); seedErr != nil {
			return models.SimulationEmail{}, seedErr
		}
		email, err = s.emails.GetByID(ctx, id)
	}
	if err != nil {
		return models.SimulationEmail{}, fmt.Errorf("%w: predefined email %d: %v", errStateCorruption, id, err)
	}
	return email, nil
}

func (s *simulationService) generate(ctx context.Context, userID uint, simulationID string) (uint, error) {
	name := "User"
	if user, err := s.users.GetByID(ctx, userID); err == nil && strings.TrimSpace(user.Name) != "" {
		name = user.Name
	}

	draft := s.generator.Generate(ctx, name, s.performanceSummary(ctx, userID, simulationID))
	email := models.SimulationEmail{
		Sender:       draft.Sender,
		Subject:      draft.Subject,
		Date:         draft.Date,
		Content:      draft.Content,
		IsSpam:       draft.IsSpam,
		SimulationID: simulationID,
		CreatedAt:    s.now(),
	}
	if err := s.emails.Create(ctx, &email); err != nil {
		return 0, fmt.Errorf("store generated email: %w", err)
	}
	s.logger.Debug().Uint("email_id", email.ID).Str("source", draft.Source).Msg("phase 2 email created")
	return email.ID, nil
}

func (s *simulationService) performanceSummary(ctx context.Context, userID uint, simulationID string) string {
	responses, err := s.responses.ListBySimulation(ctx, userID, simulationID)
	if err != nil || len(responses) == 0 {
		return "No previous responses yet."
	}
	latest := latestByEmail(responses)
	correct := 0
	for _, response := range latest {
		if response.Correct() {
			correct++
		}
	}
	return fmt.Sprintf("Correctly identified %d of %d emails so far.", correct, len(latest))
}

func (s *simulationService) record(ctx context.Context, userID uint, effect simulation.Effect, verdict bool, explanation string) (*dto.SimulationFeedbackResponse, error) {
	email, err := s.emails.GetByID(ctx, effect.EmailID)
	if err != nil {
		return nil, fmt.Errorf("%w: email %d: %v", errStateCorruption, effect.EmailID, err)
	}

	response := models.SimulationResponse{
		UserID:       userID,
		EmailID:      email.ID,
		SimulationID: effect.SimulationID,
		IsSpamActual: email.IsSpam,
		UserResponse: verdict,
		CreatedAt:    s.now(),
	}
	if effect.Grade {
		grade := s.grader.Grade(ctx, GradeInput{
			EmailContent: email.Content,
			IsSpamActual: email.IsSpam,
			UserResponse: verdict,
			Explanation:  explanation,
		})
		score := grade.Score
		response.UserExplanation = explanation
		response.AIFeedback = grade.FeedbackHTML
		response.Score = &score
		response.FeedbackSource = grade.Source
	}

	if err := s.responses.Create(ctx, &response); err != nil {
		return nil, fmt.Errorf("store response: %w", err)
	}
	if !effect.Grade {
		return nil, nil
	}
	feedback := toFeedbackResponse(response)
	return &feedback, nil
}

func (s *simulationService) computeResults(ctx context.Context, userID uint, simulationID string) (dto.SimulationResultsResponse, error) {
	responses, err := s.responses.ListBySimulation(ctx, userID, simulationID)
	if err != nil {
		return dto.SimulationResultsResponse{}, fmt.Errorf("load responses: %w", err)
	}
	latest := latestByEmail(responses)

	results := dto.SimulationResultsResponse{
		SimulationID: simulationID,
		Phase1:       []dto.SimulationResultItem{},
		Phase2:       []dto.SimulationResultItem{},
		CompletedAt:  s.now(),
	}

	for id := uint(1); id <= simulation.PredefinedCount; id++ {
		response, ok := latest[id]
		if !ok {
			continue
		}
		email, err := s.predefinedEmail(ctx, id)
		if err != nil {
			return dto.SimulationResultsResponse{}, err
		}
		results.Phase1 = append(results.Phase1, toResultItem(email, response))
		if response.Correct() {
			results.Phase1Correct++
		}
	}
	results.Phase1Total = len(results.Phase1)

	generated, err := s.emails.ListBySimulation(ctx, simulationID)
	if err != nil {
		return dto.SimulationResultsResponse{}, fmt.Errorf("load generated emails: %w", err)
	}
	scoreTotal, scored := 0, 0
	for _, email := range generated {
		if len(results.Phase2) == simulation.GeneratedCount {
			break
		}
		response, ok := latest[email.ID]
		if !ok {
			continue
		}
		results.Phase2 = append(results.Phase2, toResultItem(email, response))
		if response.Correct() {
			results.Phase2Correct++
		}
		if response.Score != nil {
			scoreTotal += *response.Score
			scored++
		}
	}
	results.Phase2Total = len(results.Phase2)
	if scored > 0 {
		results.AvgScore = float64(scoreTotal) / float64(scored)
	}
	return results, nil
}

func (s *simulationService) logEvent(ctx context.Context, userID uint, effect simulation.Effect, results *dto.SimulationResultsResponse) error {
	now := s.now()
	event := models.SimulationEvent{
		UserID:       userID,
		SimulationID: effect.SimulationID,
		Type:         effect.Event,
		CreatedAt:    now,
	}

	session, err := s.sessions.GetBySimulationID(ctx, effect.SimulationID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("load session: %w", err)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		session = models.SimulationSession{UserID: userID, SimulationID: effect.SimulationID, StartedAt: now}
	}

	switch effect.Event {
	case simulation.LogPhase1Completed:
		session.Phase1Completed = true
		if correct, err := s.phase1Correct(ctx, userID, effect.SimulationID); err == nil {
			session.Phase1Score = &correct
			event.Details = datatypes.JSONMap{"phase1_correct": correct}
		}
	case simulation.LogPhase2Completed:
		session.Phase2Completed = true
	case simulation.LogCompleted:
		if results != nil {
			phase1, phase2, avg := results.Phase1Correct, results.Phase2Correct, results.AvgScore
			session.Phase1Completed = true
			session.Phase2Completed = true
			session.Phase1Score = &phase1
			session.Phase2Score = &phase2
			session.AvgPhase2Score = &avg
			event.Details = datatypes.JSONMap{"phase1_correct": phase1, "phase2_correct": phase2, "avg_score": avg}
		}
		session.CompletedAt = &now
	}

	if err := s.sessions.Save(ctx, &session); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if err := s.sessions.CreateEvent(ctx, &event); err != nil {
		return fmt.Errorf("store simulation event: %w", err)
	}

	observability.SimulationEvents().WithLabelValues(event.Type).Inc()
	if s.publisher != nil {
		s.publisher.Publish(event)
	}
	s.logger.Info().Uint("user_id", userID).Str("simulation_id", event.SimulationID).Str("event", event.Type).Msg("simulation event")
	return nil
}

func (s *simulationService) phase1Correct(ctx context.Context, userID uint, simulationID string) (int, error) {
	responses, err := s.responses.ListBySimulation(ctx, userID, simulationID)
	if err != nil {
		return 0, err
	}
	correct := 0
	for id, response := range latestByEmail(responses) {
		if id <= simulation.PredefinedCount && response.Correct() {
			correct++
		}
	}
	return correct, nil
}

// recover replaces an unusable state with a fresh phase-1 run and serves its first email.
func (s *simulationService) recover(ctx context.Context, span trace.Span, userID uint, cause error) (step, error) {
	span.RecordError(cause)
	s.logger.Error().Err(cause).Uint("user_id", userID).Msg("simulation state reset")
	observability.SimulationResets().Inc()

	fresh, effects, err := s.machine.Apply(simulation.State{}, simulation.Event{Kind: simulation.EventReset})
	if err != nil {
		return step{}, err
	}
	fetched, more, err := s.machine.Apply(fresh, simulation.Event{Kind: simulation.EventFetch})
	if err != nil {
		return step{}, err
	}

	result := step{state: fetched, reset: true}
	if err := s.perform(ctx, userID, &result, append(effects, more...), false, ""); err != nil {
		s.logger.Error().Err(err).Uint("user_id", userID).Msg("simulation reset incomplete")
		result.email = nil
	}
	if err := s.store.Save(ctx, userID, result.state); err != nil {
		return step{}, fmt.Errorf("save reset state: %w", err)
	}
	span.SetStatus(codes.Error, "state reset")
	return result, nil
}

func latestByEmail(responses []models.SimulationResponse) map[uint]models.SimulationResponse {
	latest := make(map[uint]models.SimulationResponse, len(responses))
	for _, response := range responses {
		latest[response.EmailID] = response
	}
	return latest
}

func viewOf(result step) dto.SimulationView {
	state := result.state
	stage := state.Stage()
	return dto.SimulationView{
		Stage:                  string(stage),
		Phase:                  int(state.Phase),
		SimulationID:           state.SimulationID,
		CurrentPredefinedIndex: state.CurrentPredefinedIndex,
		Phase2CompletedCount:   state.Phase2CompletedCount,
		AwaitingContinue:       state.AwaitingContinue,
		Email:                  result.email,
		Complete:               stage == simulation.StageComplete,
		Reset:                  result.reset,
	}
}

func toEmailResponse(email models.SimulationEmail, phase simulation.Phase, position int) *dto.SimulationEmailResponse {
	return &dto.SimulationEmailResponse{
		ID:       email.ID,
		Sender:   email.Sender,
		Subject:  email.Subject,
		Date:     email.Date,
		Content:  email.Content,
		Phase:    int(phase),
		Position: position,
	}
}

func toFeedbackResponse(response models.SimulationResponse) dto.SimulationFeedbackResponse {
	return dto.SimulationFeedbackResponse{
		EmailID:      response.EmailID,
		UserResponse: response.UserResponse,
		IsSpamActual: response.IsSpamActual,
		Correct:      response.Correct(),
		Explanation:  response.UserExplanation,
		Feedback:     EnsureHTML(response.AIFeedback),
		Score:        response.Score,
		CreatedAt:    response.CreatedAt,
	}
}

func toResultItem(email models.SimulationEmail, response models.SimulationResponse) dto.SimulationResultItem {
	return dto.SimulationResultItem{
		EmailID:      email.ID,
		Sender:       email.Sender,
		Subject:      email.Subject,
		IsSpamActual: response.IsSpamActual,
		UserResponse: response.UserResponse,
		Correct:      response.Correct(),
		Score:        response.Score,
		Feedback:     response.AIFeedback,
	}
}
