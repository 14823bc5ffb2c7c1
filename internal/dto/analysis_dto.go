package dto

import "time"

// PerformanceResponse summarises every verdict a trainee has submitted.
type PerformanceResponse struct {
	TotalResponses   int      `json:"total_responses"`
	CorrectResponses int      `json:"correct_responses"`
	Accuracy         float64  `json:"accuracy"`
	FalsePositives   int      `json:"false_positives"`
	FalseNegatives   int      `json:"false_negatives"`
	ScoredResponses  int      `json:"scored_responses"`
	AvgAIScore       *float64 `json:"avg_ai_score"`
	Phase1Score      *int     `json:"phase1_score"`
	Phase2Score      *int     `json:"phase2_score"`
	LatestAvgScore   *float64 `json:"latest_avg_phase2_score"`
}

// SessionSummary is one simulation run in the history view.
type SessionSummary struct {
	SimulationID    string     `json:"session_id"`
	Phase1Completed bool       `json:"phase1_completed"`
	Phase2Completed bool       `json:"phase2_completed"`
	Phase1Score     *int       `json:"phase1_score"`
	Phase2Score     *int       `json:"phase2_score"`
	AvgPhase2Score  *float64   `json:"avg_phase2_score"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at"`
}

// AttemptSummary groups consecutive responses into one sitting.
type AttemptSummary struct {
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Responses int       `json:"responses"`
	Correct   int       `json:"correct"`
	Accuracy  float64   `json:"accuracy"`
}

// HistoryResponse lists recorded runs and response-derived sittings.
type HistoryResponse struct {
	Sessions      []SessionSummary `json:"sessions"`
	TotalSessions int              `json:"total_sessions"`
	Attempts      []AttemptSummary `json:"attempts"`
}
