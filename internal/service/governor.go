package service

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultGovernorCooldown is how long the AI fallback stays engaged after a quota failure.
const DefaultGovernorCooldown = 600 * time.Second

var quotaMarkers = []string{"429", "quota", "rate limit"}

// Governor forces template/canned responses for a cooldown window after a provider reports a
// quota or rate-limit failure. One instance is shared by generation and grading.
type Governor struct {
	mu       sync.Mutex
	limited  bool
	since    time.Time
	cooldown time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

// NewGovernor builds a governor. A non-positive cooldown uses DefaultGovernorCooldown.
func NewGovernor(cooldown time.Duration, logger zerolog.Logger) *Governor {
	if cooldown <= 0 {
		cooldown = DefaultGovernorCooldown
	}
	return &Governor{
		cooldown: cooldown,
		now:      time.Now,
		logger:   logger.With().Str("component", "ai_governor").Logger(),
	}
}

// IsQuotaError reports whether an error message carries a quota or rate-limit signal.
func IsQuotaError(message string) bool {
	lower := strings.ToLower(message)
	for _, marker := range quotaMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// RecordFailure engages the fallback when the message is quota shaped and reports whether it did.
func (g *Governor) RecordFailure(message string) bool {
	if g == nil || !IsQuotaError(message) {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limited = true
	g.since = g.now()
	g.logger.Warn().Str("reason", message).Dur("cooldown", g.cooldown).Msg("ai fallback engaged")
	return true
}

// ShouldFallback reports whether the cooldown window is still open.
func (g *Governor) ShouldFallback() bool {
	if g == nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.limited && g.now().Sub(g.since) < g.cooldown
}

// Reset clears the fallback flag.
func (g *Governor) Reset() {
	if g == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limited = false
	g.since = time.Time{}
}

// Status returns the flag, the time it was set and the configured cooldown.
func (g *Governor) Status() (limited bool, since time.Time, cooldown time.Duration) {
	if g == nil {
		return false, time.Time{}, 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.limited && g.now().Sub(g.since) < g.cooldown, g.since, g.cooldown
}
