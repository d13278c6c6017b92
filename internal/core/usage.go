package core

import "time"

// UsageCounter accumulates one user's synthesis usage for one day. Fields
// never go below zero; a new day creates a new record rather than resetting
// an old one.
type UsageCounter struct {
	RequestsCount      int     `json:"requests_count"`
	TotalCharacters    int     `json:"total_characters"`
	TotalDurationSec   float64 `json:"total_duration_sec"`
	SuccessfulRequests int     `json:"successful_requests"`
	FailedRequests     int     `json:"failed_requests"`
}

// UserLimits are the effective limits applied to one user: a stored
// per-user override merged over the configured defaults.
type UserLimits struct {
	MaxTextLength    int  `json:"max_text_length"`
	DailyLimit       int  `json:"daily_limit"`
	PriorityLevel    int  `json:"priority_level"`
	SynthesisEnabled bool `json:"synthesis_enabled"`
}

// LimitsPatch is a partial per-user override. Nil fields fall through to
// the defaults.
type LimitsPatch struct {
	MaxTextLength    *int  `json:"max_text_length,omitempty"`
	DailyLimit       *int  `json:"daily_limit,omitempty"`
	PriorityLevel    *int  `json:"priority_level,omitempty"`
	SynthesisEnabled *bool `json:"synthesis_enabled,omitempty"`
}

// Reservation is the persisted record of a two-phase quota debit. It is
// created by CheckAndReserve and consumed exactly once by Commit or
// Rollback; a consumed reservation makes both calls no-ops.
type Reservation struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Day        string    `json:"day"`
	TextLength int       `json:"text_length"`
	CreatedAt  time.Time `json:"created_at"`
}

// UsageDayKey builds the usage_daily record key for a user on a day.
func UsageDayKey(day, userID string) string {
	return day + "|" + userID
}
