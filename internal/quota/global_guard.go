package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/genimage/internal/models"
)

// CounterStore persists the singleton backend-wide counter. Load lazily
// creates the row zeroed with both windows at the creation instant.
// CompareAndSwap applies updated only if the row still matches expected and
// reports whether the write landed.
type CounterStore interface {
	Load(ctx context.Context) (models.RateLimitCounter, error)
	CompareAndSwap(ctx context.Context, expected, updated models.RateLimitCounter) (bool, error)
}

// ErrCounterContention is reported when the compare-and-swap loop loses the
// race more times than it retries.
var ErrCounterContention = errors.New("rate limit counter contention")

const casAttempts = 5

// GlobalGuard enforces backend-wide minute and day limits through a single
// shared counter row. Each admitted request consumes one slot; the
// read-evaluate-write sequence is serialized by a conditional update on the
// exact pre-state, retried on a lost race, so concurrent requests cannot
// both consume the last slot.
type GlobalGuard struct {
	store  CounterStore
	limits Limits
	policy Policy
	log    *slog.Logger
	now    func() time.Time
}

func NewGlobalGuard(store CounterStore, limits Limits, policy Policy, log *slog.Logger) *GlobalGuard {
	return &GlobalGuard{
		store:  store,
		limits: limits,
		policy: policy,
		log:    log,
		now:    time.Now,
	}
}

// CheckAndConsume admits the request and charges the backend counter, or
// rejects with the exhausted window. Storage failures, including retry
// exhaustion, follow the guard's policy.
func (g *GlobalGuard) CheckAndConsume(ctx context.Context) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		current, err := g.store.Load(ctx)
		if err != nil {
			return g.storageFailure("load counter", err)
		}

		next, limitErr := evaluate(current, g.now(), g.limits)
		if limitErr != nil {
			return limitErr
		}

		ok, err := g.store.CompareAndSwap(ctx, current, next)
		if err != nil {
			return g.storageFailure("update counter", err)
		}
		if ok {
			return nil
		}
	}
	return g.storageFailure("update counter", ErrCounterContention)
}

// evaluate decides one admission against the stored counter and returns the
// state to write back. The check is against the stored, not-yet-incremented
// counts, so with a count of N the (N+1)th request in the window is the one
// rejected. A window that is rolling over always admits: its new window
// starts at count 1 with the start floored to the triggering instant.
func evaluate(c models.RateLimitCounter, now time.Time, limits Limits) (models.RateLimitCounter, *LimitError) {
	w := WindowAt(now)
	resetMinute := now.Sub(c.MinuteWindowStart) >= time.Minute
	resetDaily := !sameDay(c.DayWindowStart, now)

	if !resetMinute && c.MinuteCount >= limits.Minute {
		return models.RateLimitCounter{}, &LimitError{Scope: ScopeBackend, Window: WindowMinute, Limit: limits.Minute}
	}
	if !resetDaily && c.DayCount >= limits.Daily {
		return models.RateLimitCounter{}, &LimitError{Scope: ScopeBackend, Window: WindowDay, Limit: limits.Daily}
	}

	next := c
	if resetMinute {
		next.MinuteCount = 1
		next.MinuteWindowStart = w.MinuteStart
	} else {
		next.MinuteCount++
	}
	if resetDaily {
		next.DayCount = 1
		next.DayWindowStart = w.DayStart
	} else {
		next.DayCount++
	}
	return next, nil
}

func (g *GlobalGuard) storageFailure(op string, err error) error {
	if g.policy.FailOpen {
		g.log.Error("backend quota check failed, admitting request", "op", op, "err", err)
		return nil
	}
	return fmt.Errorf("backend quota check: %s: %w", op, err)
}
