package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/genimage/internal/models"
	"github.com/example/genimage/internal/repository"
)

var ErrRequestNotFound = errors.New("request not found")

const (
	defaultPageSize = 10
	maxPageSize     = 50
)

// HistoryStore reads a user's request history.
type HistoryStore interface {
	ListByUser(ctx context.Context, userID int64, opts repository.ListOptions) ([]models.GenerationRequest, int, error)
	FindByID(ctx context.Context, id, userID int64) (*models.GenerationRequest, error)
	Stats(ctx context.Context, userID int64) (*models.RequestStats, error)
}

// RequestService serves a user's request history and statistics.
type RequestService struct {
	requests HistoryStore
}

func NewRequestService(requests HistoryStore) *RequestService {
	return &RequestService{requests: requests}
}

type HistoryPage struct {
	Total      int
	Page       int
	Limit      int
	TotalPages int
	Requests   []models.GenerationRequest
}

var sortableFields = map[string]string{
	"created_at": "created_at",
	"id":         "id",
}

// List returns one page of the user's history. Page and limit are clamped,
// and sort parameters fall back to created_at descending when they are not
// on the whitelist.
func (s *RequestService) List(ctx context.Context, userID int64, page, limit int, sortBy, sortOrder string) (*HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > maxPageSize {
		limit = defaultPageSize
	}
	column, ok := sortableFields[sortBy]
	if !ok {
		column = "created_at"
	}
	order := "DESC"
	if sortOrder == "asc" {
		order = "ASC"
	}

	requests, total, err := s.requests.ListByUser(ctx, userID, repository.ListOptions{
		Limit:     limit,
		Offset:    (page - 1) * limit,
		SortBy:    column,
		SortOrder: order,
	})
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}

	totalPages := total / limit
	if total%limit != 0 {
		totalPages++
	}
	return &HistoryPage{
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
		Requests:   requests,
	}, nil
}

// Get returns one request scoped to its owner.
func (s *RequestService) Get(ctx context.Context, userID, requestID int64) (*models.GenerationRequest, error) {
	request, err := s.requests.FindByID(ctx, requestID, userID)
	if err != nil {
		return nil, fmt.Errorf("find request: %w", err)
	}
	if request == nil {
		return nil, ErrRequestNotFound
	}
	return request, nil
}

func (s *RequestService) Stats(ctx context.Context, userID int64) (*models.RequestStats, error) {
	stats, err := s.requests.Stats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("request stats: %w", err)
	}
	return stats, nil
}
