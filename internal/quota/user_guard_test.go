package quota

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counterFunc func(ctx context.Context, userID int64, since time.Time) (int, error)

func (f counterFunc) CountSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	return f(ctx, userID, since)
}

var testNow = time.Date(2025, 3, 14, 10, 30, 45, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixedCounts returns minuteCount for the minute window and dayCount for the
// day window, keyed off the since instant the guard passes in.
func fixedCounts(minuteCount, dayCount int) counterFunc {
	minuteStart := WindowAt(testNow).MinuteStart
	return func(ctx context.Context, userID int64, since time.Time) (int, error) {
		if since.Equal(minuteStart) {
			return minuteCount, nil
		}
		return dayCount, nil
	}
}

func newTestUserGuard(counter RequestCounter, policy Policy) *UserGuard {
	g := NewUserGuard(counter, Limits{Minute: 5, Daily: 60}, policy, testLogger())
	g.now = func() time.Time { return testNow }
	return g
}

func TestUserGuard_AllowsUnderLimits(t *testing.T) {
	g := newTestUserGuard(fixedCounts(4, 59), Policy{})
	assert.NoError(t, g.Check(context.Background(), 1))
}

func TestUserGuard_RejectsSixthCallInMinute(t *testing.T) {
	g := newTestUserGuard(fixedCounts(5, 5), Policy{})

	err := g.Check(context.Background(), 1)
	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, ScopeUser, limitErr.Scope)
	assert.Equal(t, WindowMinute, limitErr.Window)
	assert.Equal(t, 5, limitErr.Limit)
}

func TestUserGuard_NextMinuteAdmitsAgain(t *testing.T) {
	nextMinute := testNow.Add(time.Minute)
	minuteStart := WindowAt(nextMinute).MinuteStart
	counter := counterFunc(func(ctx context.Context, userID int64, since time.Time) (int, error) {
		if since.Equal(minuteStart) {
			return 0, nil // the five earlier requests fall outside the new minute
		}
		return 5, nil
	})

	g := NewUserGuard(counter, Limits{Minute: 5, Daily: 60}, Policy{}, testLogger())
	g.now = func() time.Time { return nextMinute }

	assert.NoError(t, g.Check(context.Background(), 1))
}

func TestUserGuard_RejectsDailyLimit(t *testing.T) {
	g := newTestUserGuard(fixedCounts(2, 60), Policy{})

	err := g.Check(context.Background(), 1)
	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, ScopeUser, limitErr.Scope)
	assert.Equal(t, WindowDay, limitErr.Window)
}

func TestUserGuard_FailOpenAdmitsOnStorageError(t *testing.T) {
	boom := errors.New("connection refused")
	counter := counterFunc(func(ctx context.Context, userID int64, since time.Time) (int, error) {
		return 0, boom
	})

	g := newTestUserGuard(counter, Policy{FailOpen: true})
	assert.NoError(t, g.Check(context.Background(), 1))
}

func TestUserGuard_FailClosedSurfacesStorageError(t *testing.T) {
	boom := errors.New("connection refused")
	counter := counterFunc(func(ctx context.Context, userID int64, since time.Time) (int, error) {
		return 0, boom
	})

	g := newTestUserGuard(counter, Policy{FailOpen: false})
	err := g.Check(context.Background(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}
