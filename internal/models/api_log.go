package models

import "time"

// APIRequestLog records one call to a generative AI provider.
type APIRequestLog struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Function       string    `gorm:"size:64;not null;index" json:"function"`
	Provider       string    `gorm:"size:64" json:"provider"`
	PromptLength   int       `json:"prompt_length"`
	Success        bool      `gorm:"index" json:"success"`
	ResponseLength int       `json:"response_length"`
	Error          string    `gorm:"type:text" json:"error,omitempty"`
	RateLimited    bool      `json:"rate_limited"`
	DurationMs     int64     `json:"duration_ms"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
}
