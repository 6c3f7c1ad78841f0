package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrBudgetExhausted is returned by Reserve when a window has no requests left.
var ErrBudgetExhausted = errors.New("request budget exhausted")

// Prometheus metrics for budget tracking.
var (
	budgetUsed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "callrail_budget_used",
		Help: "Requests used in the current CallRail budget window",
	}, []string{"window"})

	budgetBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "callrail_budget_blocks_total",
		Help: "Total number of requests refused because a budget window was exhausted",
	})

	budgetThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "callrail_budget_throttles_total",
		Help: "Total number of requests made while a budget window was nearly exhausted",
	})
)

// Tracker counts requests against the hourly and daily budget.
// With a nil Redis client the counters are kept in process memory.
type Tracker struct {
	redis  *redis.Client
	limits Limits
	logger zerolog.Logger
	now    func() time.Time

	mu    sync.Mutex
	local map[string]int
}

// NewTracker creates a new budget tracker.
func NewTracker(redisClient *redis.Client, limits Limits, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		limits: limits,
		logger: logger,
		now:    time.Now,
		local:  make(map[string]int),
	}
}

// Limits returns the configured allowances.
func (t *Tracker) Limits() Limits {
	return t.limits
}

// GetState returns the current counters without consuming budget.
func (t *Tracker) GetState(ctx context.Context) (*BudgetState, error) {
	hourKey, dayKey, hourReset, dayReset := t.keys()

	hourly, daily, err := t.read(ctx, hourKey, dayKey)
	if err != nil {
		return nil, err
	}

	state := t.state(hourly, daily, hourReset, dayReset)
	return state, nil
}

// Reserve consumes one request from both windows. When either window is
// exhausted the reservation is rolled back and ErrBudgetExhausted is returned
// together with the state, whose TimeUntilReset tells the caller how long to wait.
func (t *Tracker) Reserve(ctx context.Context) (*BudgetState, error) {
	hourKey, dayKey, hourReset, dayReset := t.keys()

	hourly, daily, err := t.incr(ctx, hourKey, dayKey, hourReset, dayReset, 1)
	if err != nil {
		return nil, err
	}

	state := t.state(hourly, daily, hourReset, dayReset)
	budgetUsed.WithLabelValues("hour").Set(float64(hourly))
	budgetUsed.WithLabelValues("day").Set(float64(daily))

	if state.NeedsCriticalBlock() {
		if _, _, err := t.incr(ctx, hourKey, dayKey, hourReset, dayReset, -1); err != nil {
			t.logger.Warn().Err(err).Msg("Failed to roll back refused reservation")
		}
		budgetBlocksTotal.Inc()
		t.logger.Error().
			Int("hourly_used", hourly).
			Int("daily_used", daily).
			Dur("wait_duration", state.TimeUntilReset(t.now())).
			Msg("CallRail request budget exhausted - blocking request")
		return state, ErrBudgetExhausted
	}

	if state.NeedsThrottling() {
		budgetThrottlesTotal.Inc()
		t.logger.Warn().
			Int("hourly_used", hourly).
			Int("hourly_limit", t.limits.PerHour).
			Int("daily_used", daily).
			Int("daily_limit", t.limits.PerDay).
			Msg("CallRail request budget nearly exhausted")
	}

	return state, nil
}

func (t *Tracker) keys() (hourKey, dayKey string, hourReset, dayReset time.Time) {
	hourStart, dayStart := windowBounds(t.now())
	hourKey = RedisKeyHourly + hourStart.Format("2006010215")
	dayKey = RedisKeyDaily + dayStart.Format("20060102")
	return hourKey, dayKey, hourStart.Add(time.Hour), dayStart.Add(24 * time.Hour)
}

func (t *Tracker) state(hourly, daily int, hourReset, dayReset time.Time) *BudgetState {
	state := &BudgetState{
		HourlyUsed:  hourly,
		HourlyLimit: t.limits.PerHour,
		HourResetAt: hourReset,
		DailyUsed:   daily,
		DailyLimit:  t.limits.PerDay,
		DayResetAt:  dayReset,
	}
	state.UpdateHealth()
	return state
}

func (t *Tracker) read(ctx context.Context, hourKey, dayKey string) (int, int, error) {
	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.local[hourKey], t.local[dayKey], nil
	}

	vals, err := t.redis.MGet(ctx, hourKey, dayKey).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("get budget counters: %w", err)
	}

	counts := make([]int, 2)
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, fmt.Errorf("parse budget counter %d: %w", i, err)
		}
		counts[i] = n
	}
	return counts[0], counts[1], nil
}

func (t *Tracker) incr(ctx context.Context, hourKey, dayKey string, hourReset, dayReset time.Time, delta int64) (int, int, error) {
	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.local[hourKey] += int(delta)
		t.local[dayKey] += int(delta)
		return t.local[hourKey], t.local[dayKey], nil
	}

	// Counters and expiries move together.
	pipe := t.redis.TxPipeline()
	hourCmd := pipe.IncrBy(ctx, hourKey, delta)
	dayCmd := pipe.IncrBy(ctx, dayKey, delta)
	pipe.ExpireAt(ctx, hourKey, hourReset.Add(time.Minute))
	pipe.ExpireAt(ctx, dayKey, dayReset.Add(time.Minute))

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("update budget counters in redis: %w", err)
	}

	return int(hourCmd.Val()), int(dayCmd.Val()), nil
}
