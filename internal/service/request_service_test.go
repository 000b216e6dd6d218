package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/genimage/internal/models"
	"github.com/example/genimage/internal/repository"
	"github.com/example/genimage/internal/service"
)

type fakeHistoryStore struct {
	requests []models.GenerationRequest
	total    int
	lastOpts repository.ListOptions
	byID     map[int64]*models.GenerationRequest
	stats    *models.RequestStats
}

func (f *fakeHistoryStore) ListByUser(ctx context.Context, userID int64, opts repository.ListOptions) ([]models.GenerationRequest, int, error) {
	f.lastOpts = opts
	return f.requests, f.total, nil
}

func (f *fakeHistoryStore) FindByID(ctx context.Context, id, userID int64) (*models.GenerationRequest, error) {
	return f.byID[id], nil
}

func (f *fakeHistoryStore) Stats(ctx context.Context, userID int64) (*models.RequestStats, error) {
	return f.stats, nil
}

func TestRequestList_ClampsPageAndLimit(t *testing.T) {
	store := &fakeHistoryStore{total: 95}
	svc := service.NewRequestService(store)
	ctx := context.Background()

	page, err := svc.List(ctx, 1, 0, 0, "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 10, page.Limit)
	assert.Equal(t, 0, store.lastOpts.Offset)
	assert.Equal(t, 10, page.TotalPages)

	page, err = svc.List(ctx, 1, 3, 20, "", "")
	require.NoError(t, err)
	assert.Equal(t, 40, store.lastOpts.Offset)
	assert.Equal(t, 20, store.lastOpts.Limit)
	assert.Equal(t, 5, page.TotalPages)

	_, err = svc.List(ctx, 1, 1, 500, "", "")
	require.NoError(t, err)
	assert.Equal(t, 10, store.lastOpts.Limit, "oversized limit falls back to the default")
}

func TestRequestList_SortWhitelist(t *testing.T) {
	store := &fakeHistoryStore{}
	svc := service.NewRequestService(store)
	ctx := context.Background()

	_, err := svc.List(ctx, 1, 1, 10, "id", "asc")
	require.NoError(t, err)
	assert.Equal(t, "id", store.lastOpts.SortBy)
	assert.Equal(t, "ASC", store.lastOpts.SortOrder)

	_, err = svc.List(ctx, 1, 1, 10, "password_hash; DROP TABLE users", "sideways")
	require.NoError(t, err)
	assert.Equal(t, "created_at", store.lastOpts.SortBy)
	assert.Equal(t, "DESC", store.lastOpts.SortOrder)
}

func TestRequestGet_MissingRequestIsNotFound(t *testing.T) {
	owned := &models.GenerationRequest{
		ID:        12,
		UserID:    1,
		Mode:      models.ModeTextToImage,
		Status:    models.StatusCompleted,
		CreatedAt: time.Now(),
	}
	store := &fakeHistoryStore{byID: map[int64]*models.GenerationRequest{12: owned}}
	svc := service.NewRequestService(store)
	ctx := context.Background()

	got, err := svc.Get(ctx, 1, 12)
	require.NoError(t, err)
	assert.Equal(t, owned, got)

	_, err = svc.Get(ctx, 1, 99)
	assert.ErrorIs(t, err, service.ErrRequestNotFound)
}
