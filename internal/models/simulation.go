package models

import (
	"time"

	"gorm.io/datatypes"
)

// Feedback sources recorded on graded responses.
const (
	FeedbackSourceAI       = "ai"
	FeedbackSourceCache    = "cache"
	FeedbackSourceFallback = "fallback"
	FeedbackSourceBaseline = "baseline"
)

// SimulationEmail is a training email, either one of the predefined phase-1 emails or an
// AI-generated phase-2 email owned by one simulation run.
type SimulationEmail struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Sender       string    `gorm:"size:255;not null" json:"sender"`
	Subject      string    `gorm:"size:255;not null" json:"subject"`
	Date         string    `gorm:"size:64" json:"date"`
	Content      string    `gorm:"type:text;not null" json:"content"`
	IsSpam       bool      `gorm:"not null" json:"is_spam"`
	IsPredefined bool      `gorm:"not null;default:false;index" json:"is_predefined"`
	SimulationID string    `gorm:"size:36;index" json:"simulation_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// SimulationResponse is one submitted verdict. Rows are append-only.
type SimulationResponse struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          uint      `gorm:"not null;index" json:"user_id"`
	EmailID         uint      `gorm:"not null;index" json:"email_id"`
	SimulationID    string    `gorm:"size:36;index" json:"simulation_id"`
	IsSpamActual    bool      `gorm:"not null" json:"is_spam_actual"`
	UserResponse    bool      `gorm:"not null" json:"user_response"`
	UserExplanation string    `gorm:"type:text" json:"user_explanation,omitempty"`
	AIFeedback      string    `gorm:"type:text" json:"ai_feedback,omitempty"`
	Score           *int      `json:"score,omitempty"`
	FeedbackSource  string    `gorm:"size:16" json:"-"`
	CreatedAt       time.Time `gorm:"index" json:"created_at"`
}

// Correct reports whether the verdict matched the ground truth.
func (r SimulationResponse) Correct() bool {
	return r.UserResponse == r.IsSpamActual
}

// SimulationSession summarises one simulation run.
type SimulationSession struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	UserID          uint       `gorm:"not null;index" json:"user_id"`
	SimulationID    string     `gorm:"size:36;not null;uniqueIndex" json:"session_id"`
	Phase1Completed bool       `gorm:"default:false" json:"phase1_completed"`
	Phase2Completed bool       `gorm:"default:false" json:"phase2_completed"`
	Phase1Score     *int       `json:"phase1_score"`
	Phase2Score     *int       `json:"phase2_score"`
	AvgPhase2Score  *float64   `json:"avg_phase2_score"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at"`
}

// SimulationEvent is an audit record of simulation lifecycle changes.
type SimulationEvent struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	UserID       uint              `gorm:"not null;index" json:"user_id"`
	SimulationID string            `gorm:"size:36;index" json:"simulation_id"`
	Type         string            `gorm:"size:32;not null" json:"type"`
	Details      datatypes.JSONMap `gorm:"type:json" json:"details,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}
