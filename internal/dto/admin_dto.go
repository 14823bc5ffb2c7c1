package dto

import "time"

// APICallEntry is one logged provider call.
type APICallEntry struct {
	ID             uint      `json:"id"`
	Function       string    `json:"function"`
	Provider       string    `json:"provider"`
	PromptLength   int       `json:"prompt_length"`
	Success        bool      `json:"success"`
	ResponseLength int       `json:"response_length"`
	Error          string    `json:"error,omitempty"`
	RateLimited    bool      `json:"rate_limited"`
	DurationMs     int64     `json:"duration_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

// GovernorStatus reports the fallback governor.
type GovernorStatus struct {
	FallbackActive  bool       `json:"fallback_active"`
	Since           *time.Time `json:"since,omitempty"`
	CooldownSeconds int        `json:"cooldown_seconds"`
	RemainingSecs   int        `json:"remaining_seconds"`
}

// APIMonitorSnapshot is the admin view of AI provider usage.
type APIMonitorSnapshot struct {
	TotalCalls       int64            `json:"total_calls"`
	CallsLastHour    int64            `json:"calls_last_hour"`
	FailedCalls      int64            `json:"failed_calls"`
	RateLimitedCalls int64            `json:"rate_limited_calls"`
	SuccessRate      float64          `json:"success_rate"`
	ByFunction       map[string]int64 `json:"by_function"`
	RequestsPerMin   int              `json:"requests_per_minute_limit"`
	Providers        string           `json:"providers"`
	Governor         GovernorStatus   `json:"governor"`
	Recent           []APICallEntry   `json:"recent"`
	RecentErrors     []APICallEntry   `json:"recent_errors"`
	GeneratedAt      time.Time        `json:"generated_at"`
}

// SchemaPatchResponse lists the columns added by an on-demand schema patch.
type SchemaPatchResponse struct {
	Applied []SchemaPatchItem `json:"applied"`
}

// SchemaPatchItem is one added column.
type SchemaPatchItem struct {
	Table  string `json:"table"`
	Column string `json:"column"`
	Type   string `json:"type"`
}
