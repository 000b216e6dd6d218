package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RequestCounter counts a user's persisted generation requests created at or
// after a given instant.
type RequestCounter interface {
	CountSince(ctx context.Context, userID int64, since time.Time) (int, error)
}

// UserGuard enforces per-user minute and day limits by counting historical
// request records. It keeps no mutable state of its own.
type UserGuard struct {
	counter RequestCounter
	limits  Limits
	policy  Policy
	log     *slog.Logger
	now     func() time.Time
}

func NewUserGuard(counter RequestCounter, limits Limits, policy Policy, log *slog.Logger) *UserGuard {
	return &UserGuard{
		counter: counter,
		limits:  limits,
		policy:  policy,
		log:     log,
		now:     time.Now,
	}
}

// Check admits or rejects one request for userID. A count at the limit
// rejects: once N requests exist in the window, the (N+1)th is refused.
// Storage failures follow the guard's policy.
func (g *UserGuard) Check(ctx context.Context, userID int64) error {
	w := WindowAt(g.now())

	minuteCount, err := g.counter.CountSince(ctx, userID, w.MinuteStart)
	if err != nil {
		return g.storageFailure(userID, "count minute requests", err)
	}
	if minuteCount >= g.limits.Minute {
		return &LimitError{Scope: ScopeUser, Window: WindowMinute, Limit: g.limits.Minute}
	}

	dayCount, err := g.counter.CountSince(ctx, userID, w.DayStart)
	if err != nil {
		return g.storageFailure(userID, "count daily requests", err)
	}
	if dayCount >= g.limits.Daily {
		return &LimitError{Scope: ScopeUser, Window: WindowDay, Limit: g.limits.Daily}
	}

	return nil
}

func (g *UserGuard) storageFailure(userID int64, op string, err error) error {
	if g.policy.FailOpen {
		g.log.Error("user quota check failed, admitting request", "user_id", userID, "op", op, "err", err)
		return nil
	}
	return fmt.Errorf("user quota check: %s: %w", op, err)
}
