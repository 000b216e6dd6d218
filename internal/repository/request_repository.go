package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/genimage/internal/models"
)

type RequestRepository struct {
	db *sql.DB
}

func NewRequestRepository(db *sql.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create inserts a pending request record and returns it with the assigned id.
func (r *RequestRepository) Create(ctx context.Context, req *models.GenerationRequest) (*models.GenerationRequest, error) {
	const query = `
INSERT INTO generation_requests (user_id, mode, input_text, input_image_ref, status, created_at)
VALUES (?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?)`
	res, err := r.db.ExecContext(ctx, query, req.UserID, req.Mode, req.InputText, req.InputImageRef, models.StatusPending, req.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert generation request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	req.ID = id
	req.Status = models.StatusPending
	return req, nil
}

// MarkCompleted transitions a pending request to completed. The update only
// applies to rows still pending, so a terminal state is never overwritten.
func (r *RequestRepository) MarkCompleted(ctx context.Context, id int64, outputRef string) error {
	const query = `
UPDATE generation_requests SET status = ?, output_image_ref = ?
WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, query, models.StatusCompleted, outputRef, id, models.StatusPending)
	if err != nil {
		return fmt.Errorf("mark request completed: %w", err)
	}
	return requireTransition(res, id)
}

// MarkFailed transitions a pending request to failed with a human-readable
// cause.
func (r *RequestRepository) MarkFailed(ctx context.Context, id int64, detail string) error {
	const query = `
UPDATE generation_requests SET status = ?, error_detail = ?
WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, query, models.StatusFailed, detail, id, models.StatusPending)
	if err != nil {
		return fmt.Errorf("mark request failed: %w", err)
	}
	return requireTransition(res, id)
}

func requireTransition(res sql.Result, id int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("request %d is not pending", id)
	}
	return nil
}

// CountSince counts a user's requests created at or after the given instant.
func (r *RequestRepository) CountSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	const query = `
SELECT COUNT(*) FROM generation_requests
WHERE user_id = ? AND created_at >= ?`
	row := r.db.QueryRowContext(ctx, query, userID, since)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count requests: %w", err)
	}
	return count, nil
}

// FindByID returns a request scoped to its owner, or nil when absent.
func (r *RequestRepository) FindByID(ctx context.Context, id, userID int64) (*models.GenerationRequest, error) {
	const query = `
SELECT id, user_id, mode, COALESCE(input_text, ''), COALESCE(input_image_ref, ''), COALESCE(output_image_ref, ''), status, COALESCE(error_detail, ''), created_at
FROM generation_requests WHERE id = ? AND user_id = ?`
	row := r.db.QueryRowContext(ctx, query, id, userID)
	var req models.GenerationRequest
	if err := row.Scan(&req.ID, &req.UserID, &req.Mode, &req.InputText, &req.InputImageRef, &req.OutputImageRef, &req.Status, &req.ErrorDetail, &req.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan generation request: %w", err)
	}
	return &req, nil
}

// ListOptions carries validated pagination and ordering. SortBy must come
// from the caller's whitelist; it is interpolated into the query.
type ListOptions struct {
	Limit     int
	Offset    int
	SortBy    string
	SortOrder string
}

// ListByUser returns one page of a user's request history plus the total count.
func (r *RequestRepository) ListByUser(ctx context.Context, userID int64, opts ListOptions) ([]models.GenerationRequest, int, error) {
	const countQuery = `SELECT COUNT(*) FROM generation_requests WHERE user_id = ?`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count user requests: %w", err)
	}

	query := fmt.Sprintf(`
SELECT id, user_id, mode, COALESCE(input_text, ''), COALESCE(input_image_ref, ''), COALESCE(output_image_ref, ''), status, COALESCE(error_detail, ''), created_at
FROM generation_requests WHERE user_id = ?
ORDER BY %s %s LIMIT ? OFFSET ?`, opts.SortBy, opts.SortOrder)

	rows, err := r.db.QueryContext(ctx, query, userID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list user requests: %w", err)
	}
	defer rows.Close()

	var requests []models.GenerationRequest
	for rows.Next() {
		var req models.GenerationRequest
		if err := rows.Scan(&req.ID, &req.UserID, &req.Mode, &req.InputText, &req.InputImageRef, &req.OutputImageRef, &req.Status, &req.ErrorDetail, &req.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan generation request: %w", err)
		}
		requests = append(requests, req)
	}
	return requests, total, rows.Err()
}

// Stats aggregates a user's history by mode and status in one pass.
func (r *RequestRepository) Stats(ctx context.Context, userID int64) (*models.RequestStats, error) {
	const query = `
SELECT COUNT(*),
       COALESCE(SUM(mode = 'text_to_image'), 0),
       COALESCE(SUM(mode = 'image_to_image'), 0),
       COALESCE(SUM(mode = 'text_and_image_to_image'), 0),
       COALESCE(SUM(status = 'completed'), 0),
       COALESCE(SUM(status = 'failed'), 0)
FROM generation_requests WHERE user_id = ?`
	row := r.db.QueryRowContext(ctx, query, userID)
	var s models.RequestStats
	if err := row.Scan(&s.Total, &s.TextToImage, &s.ImageToImage, &s.TextAndImageToImage, &s.Completed, &s.Failed); err != nil {
		return nil, fmt.Errorf("scan request stats: %w", err)
	}
	s.Pending = s.Total - s.Completed - s.Failed
	return &s, nil
}
