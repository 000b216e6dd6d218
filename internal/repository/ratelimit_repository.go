package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/genimage/internal/models"
)

// counterID is the primary key of the single backend_rate_limits row.
const counterID = 1

type RateLimitRepository struct {
	db *sql.DB
}

func NewRateLimitRepository(db *sql.DB) *RateLimitRepository {
	return &RateLimitRepository{db: db}
}

// Load reads the singleton counter row, creating it zeroed on first use with
// both window starts at the creation instant.
func (r *RateLimitRepository) Load(ctx context.Context) (models.RateLimitCounter, error) {
	counter, err := r.fetch(ctx)
	if err == nil || !errors.Is(err, sql.ErrNoRows) {
		return counter, err
	}

	now := time.Now()
	const insert = `
INSERT IGNORE INTO backend_rate_limits (id, minute_count, minute_window_start, day_count, day_window_start)
VALUES (?, 0, ?, 0, ?)`
	if _, err := r.db.ExecContext(ctx, insert, counterID, now, now); err != nil {
		return models.RateLimitCounter{}, fmt.Errorf("init rate limit counter: %w", err)
	}
	return r.fetch(ctx)
}

func (r *RateLimitRepository) fetch(ctx context.Context) (models.RateLimitCounter, error) {
	const query = `
SELECT minute_count, minute_window_start, day_count, day_window_start
FROM backend_rate_limits WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, counterID)
	var c models.RateLimitCounter
	if err := row.Scan(&c.MinuteCount, &c.MinuteWindowStart, &c.DayCount, &c.DayWindowStart); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.RateLimitCounter{}, err
		}
		return models.RateLimitCounter{}, fmt.Errorf("scan rate limit counter: %w", err)
	}
	return c, nil
}

// CompareAndSwap writes updated only if the row still holds expected,
// reporting whether the write landed. Concurrent consumers that read the
// same pre-state lose the race and retry from a fresh load.
func (r *RateLimitRepository) CompareAndSwap(ctx context.Context, expected, updated models.RateLimitCounter) (bool, error) {
	const query = `
UPDATE backend_rate_limits
SET minute_count = ?, minute_window_start = ?, day_count = ?, day_window_start = ?
WHERE id = ? AND minute_count = ? AND minute_window_start = ? AND day_count = ? AND day_window_start = ?`
	res, err := r.db.ExecContext(ctx, query,
		updated.MinuteCount, updated.MinuteWindowStart, updated.DayCount, updated.DayWindowStart,
		counterID, expected.MinuteCount, expected.MinuteWindowStart, expected.DayCount, expected.DayWindowStart)
	if err != nil {
		return false, fmt.Errorf("update rate limit counter: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rate limit rows affected: %w", err)
	}
	return affected > 0, nil
}
