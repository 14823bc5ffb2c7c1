package dto

import "time"

// SimulationEmailResponse is the email served to the trainee. Ground truth is never included.
type SimulationEmailResponse struct {
	ID       uint   `json:"id"`
	Sender   string `json:"sender"`
	Subject  string `json:"subject"`
	Date     string `json:"date"`
	Content  string `json:"content"`
	Phase    int    `json:"phase"`
	Position int    `json:"position"`
}

// SimulationView describes the trainee's position in the simulation.
type SimulationView struct {
	Stage                  string                   `json:"stage"`
	Phase                  int                      `json:"phase"`
	SimulationID           string                   `json:"simulation_id,omitempty"`
	CurrentPredefinedIndex int                      `json:"current_predefined_index"`
	Phase2CompletedCount   int                      `json:"phase2_completed_count"`
	AwaitingContinue       bool                     `json:"awaiting_continue"`
	Email                  *SimulationEmailResponse `json:"email,omitempty"`
	Complete               bool                     `json:"complete"`
	Reset                  bool                     `json:"reset"`
}

// SimulationSubmitRequest is a verdict on the served email.
type SimulationSubmitRequest struct {
	EmailID     uint   `json:"email_id" validate:"required,gt=0"`
	IsSpam      *bool  `json:"is_spam" validate:"required"`
	Explanation string `json:"explanation" validate:"max=5000"`
}

// SimulationFeedbackResponse is the graded outcome of a phase-2 submission.
type SimulationFeedbackResponse struct {
	EmailID      uint      `json:"email_id"`
	UserResponse bool      `json:"user_response"`
	IsSpamActual bool      `json:"is_spam_actual"`
	Correct      bool      `json:"correct"`
	Explanation  string    `json:"explanation,omitempty"`
	Feedback     string    `json:"feedback"`
	Score        *int      `json:"score,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// SimulationSubmitResponse acknowledges a submission.
type SimulationSubmitResponse struct {
	State    SimulationView              `json:"state"`
	Feedback *SimulationFeedbackResponse `json:"feedback,omitempty"`
}

// SimulationResultItem is one counted response in the results view.
type SimulationResultItem struct {
	EmailID      uint   `json:"email_id"`
	Sender       string `json:"sender"`
	Subject      string `json:"subject"`
	IsSpamActual bool   `json:"is_spam_actual"`
	UserResponse bool   `json:"user_response"`
	Correct      bool   `json:"correct"`
	Score        *int   `json:"score,omitempty"`
	Feedback     string `json:"feedback,omitempty"`
}

// SimulationResultsResponse aggregates a completed simulation.
type SimulationResultsResponse struct {
	SimulationID  string                 `json:"simulation_id"`
	Phase1Correct int                    `json:"phase1_correct"`
	Phase1Total   int                    `json:"phase1_total"`
	Phase2Correct int                    `json:"phase2_correct"`
	Phase2Total   int                    `json:"phase2_total"`
	AvgScore      float64                `json:"avg_score"`
	Phase1        []SimulationResultItem `json:"phase1"`
	Phase2        []SimulationResultItem `json:"phase2"`
	CompletedAt   time.Time              `json:"completed_at"`
	Reset         bool                   `json:"reset"`
	State         *SimulationView        `json:"state,omitempty"`
}

// SimulationDebugResponse is the admin dump of a trainee's state.
type SimulationDebugResponse struct {
	UserID          uint                  `json:"user_id"`
	State           SimulationView        `json:"state"`
	Valid           bool                  `json:"valid"`
	ResponseCount   int64                 `json:"response_count"`
	GeneratedEmails int                   `json:"generated_emails"`
	Events          []SimulationEventItem `json:"events"`
	FallbackActive  bool                  `json:"fallback_active"`
}

// SimulationEventItem is one lifecycle event.
type SimulationEventItem struct {
	Type      string                 `json:"type"`
	Details   map[string]interface{} `json:"details,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}
