// Package ratelimit tracks the CallRail request budget (requests per hour and
// per day) and gates requests once a window is spent. State lives in Redis when
// available so that concurrent extractor runs share one budget.
package ratelimit

import (
	"time"
)

// Redis key prefixes for budget counters. The window start is appended.
const (
	RedisKeyHourly = "callrail:budget:hour:"
	RedisKeyDaily  = "callrail:budget:day:"
)

// Default CallRail API limits.
const (
	DefaultPerHour = 1000
	DefaultPerDay  = 10000
)

// ThrottleRatio is the remaining fraction of a window below which the state is
// reported as throttled.
const ThrottleRatio = 0.1

// Limits are the request allowances per window. Zero disables a window.
type Limits struct {
	PerHour int
	PerDay  int
}

// DefaultLimits returns the documented CallRail allowances.
func DefaultLimits() Limits {
	return Limits{PerHour: DefaultPerHour, PerDay: DefaultPerDay}
}

// BudgetState is the request budget as seen after the latest reservation.
type BudgetState struct {
	HourlyUsed  int       `json:"hourly_used"`
	HourlyLimit int       `json:"hourly_limit"`
	HourResetAt time.Time `json:"hour_reset_at"`

	DailyUsed  int       `json:"daily_used"`
	DailyLimit int       `json:"daily_limit"`
	DayResetAt time.Time `json:"day_reset_at"`

	// IsHealthy is true while no window is throttled or exhausted.
	IsHealthy bool `json:"is_healthy"`
}

func (s *BudgetState) hourExhausted() bool {
	return s.HourlyLimit > 0 && s.HourlyUsed > s.HourlyLimit
}

func (s *BudgetState) dayExhausted() bool {
	return s.DailyLimit > 0 && s.DailyUsed > s.DailyLimit
}

// NeedsCriticalBlock returns true once either window is over its limit.
func (s *BudgetState) NeedsCriticalBlock() bool {
	return s.hourExhausted() || s.dayExhausted()
}

// NeedsThrottling returns true when a window is close to its limit but not over it.
func (s *BudgetState) NeedsThrottling() bool {
	if s.NeedsCriticalBlock() {
		return false
	}
	return nearLimit(s.HourlyUsed, s.HourlyLimit) || nearLimit(s.DailyUsed, s.DailyLimit)
}

func nearLimit(used, limit int) bool {
	if limit <= 0 {
		return false
	}
	return float64(limit-used) < float64(limit)*ThrottleRatio
}

// TimeUntilReset returns how long until the exhausted window resets. When both
// are exhausted the later reset wins. Returns 0 when nothing is exhausted.
func (s *BudgetState) TimeUntilReset(now time.Time) time.Duration {
	var wait time.Duration
	if s.hourExhausted() {
		wait = s.HourResetAt.Sub(now)
	}
	if s.dayExhausted() {
		if d := s.DayResetAt.Sub(now); d > wait {
			wait = d
		}
	}
	if wait < 0 {
		return 0
	}
	return wait
}

// UpdateHealth updates IsHealthy from the counters.
func (s *BudgetState) UpdateHealth() {
	s.IsHealthy = !s.NeedsCriticalBlock() && !s.NeedsThrottling()
}

// windowBounds returns the start of the hour and day containing now, in UTC.
func windowBounds(now time.Time) (hourStart, dayStart time.Time) {
	now = now.UTC()
	hourStart = now.Truncate(time.Hour)
	dayStart = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return hourStart, dayStart
}
