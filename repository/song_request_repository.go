package repository

import (
	"context"
	"errors"
	"time"

	"crowdbeat/model"

	"gorm.io/gorm"
)

// SongRequestRepository is the song request data access interface.
type SongRequestRepository interface {
	Create(ctx context.Context, req *model.SongRequest) error
	GetByID(ctx context.Context, id int64) (*model.SongRequest, error)
	ListByEvent(ctx context.Context, eventID int64) ([]*model.SongRequest, error)
	ListByStatus(ctx context.Context, eventID int64, status string) ([]*model.SongRequest, error)
	UpdateStatus(ctx context.Context, id int64, status string) (*model.SongRequest, error)
	CountByStatus(ctx context.Context, eventID int64, status string) (int64, error)
}

// gormSongRequestRepository is the GORM implementation.
type gormSongRequestRepository struct {
	db *gorm.DB
}

// NewGormSongRequestRepository creates a GORM song request repository.
func NewGormSongRequestRepository(db *gorm.DB) SongRequestRepository {
	return &gormSongRequestRepository{db: db}
}

// Create inserts a new song request.
func (r *gormSongRequestRepository) Create(ctx context.Context, req *model.SongRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

// GetByID fetches one request.
func (r *gormSongRequestRepository) GetByID(ctx context.Context, id int64) (*model.SongRequest, error) {
	var req model.SongRequest
	err := r.db.WithContext(ctx).First(&req, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

// ListByEvent lists all requests for an event in insertion order.
func (r *gormSongRequestRepository) ListByEvent(ctx context.Context, eventID int64) ([]*model.SongRequest, error) {
	var reqs []*model.SongRequest
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("id ASC").
		Find(&reqs).Error
	return reqs, err
}

// ListByStatus lists an event's requests with the given status in insertion
// order. The bridge's matching engine reads pending requests through this.
func (r *gormSongRequestRepository) ListByStatus(ctx context.Context, eventID int64, status string) ([]*model.SongRequest, error) {
	var reqs []*model.SongRequest
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND status = ?", eventID, status).
		Order("id ASC").
		Find(&reqs).Error
	return reqs, err
}

// UpdateStatus sets a request's status and returns the updated row, or nil
// when the request does not exist. Writing "played" always refreshes
// played_time, so a repeated confirm is an idempotent write with a fresh
// timestamp.
func (r *gormSongRequestRepository) UpdateStatus(ctx context.Context, id int64, status string) (*model.SongRequest, error) {
	updates := map[string]interface{}{"status": status}
	if status == model.RequestStatusPlayed {
		now := time.Now()
		updates["played_time"] = &now
	}

	res := r.db.WithContext(ctx).Model(&model.SongRequest{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}

	// Re-read rather than trusting RowsAffected: MySQL reports zero
	// affected rows for no-op updates, which must not look like not-found.
	return r.GetByID(ctx, id)
}

// CountByStatus counts an event's requests with the given status.
func (r *gormSongRequestRepository) CountByStatus(ctx context.Context, eventID int64, status string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.SongRequest{}).
		Where("event_id = ? AND status = ?", eventID, status).
		Count(&n).Error
	return n, err
}
