package repository

import (
	"context"
	"errors"
	"time"

	"crowdbeat/model"

	"gorm.io/gorm"
)

// EventRepository is the event data access interface.
type EventRepository interface {
	Create(ctx context.Context, event *model.Event) error
	GetByID(ctx context.Context, id int64) (*model.Event, error)
	GetByAccessCode(ctx context.Context, code string) (*model.Event, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]*model.Event, error)
	ListEvents(ctx context.Context) ([]*model.Event, error)
	Update(ctx context.Context, event *model.Event) error
	Close(ctx context.Context, id int64) error
}

// gormEventRepository is the GORM implementation.
type gormEventRepository struct {
	db *gorm.DB
}

// NewGormEventRepository creates a GORM event repository.
func NewGormEventRepository(db *gorm.DB) EventRepository {
	return &gormEventRepository{db: db}
}

// Create inserts a new event.
func (r *gormEventRepository) Create(ctx context.Context, event *model.Event) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// GetByID fetches one event regardless of status.
func (r *gormEventRepository) GetByID(ctx context.Context, id int64) (*model.Event, error) {
	var event model.Event
	err := r.db.WithContext(ctx).First(&event, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// GetByAccessCode fetches an active event by its attendee access code.
func (r *gormEventRepository) GetByAccessCode(ctx context.Context, code string) (*model.Event, error) {
	var event model.Event
	err := r.db.WithContext(ctx).
		Where("access_code = ? AND status = ?", code, model.EventStatusActive).
		First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// ListByOwner lists all events owned by a DJ, newest first.
func (r *gormEventRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*model.Event, error) {
	var events []*model.Event
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&events).Error
	return events, err
}

// ListEvents lists every event in insertion order. The playback bridge
// iterates this on each track demotion.
func (r *gormEventRepository) ListEvents(ctx context.Context) ([]*model.Event, error) {
	var events []*model.Event
	err := r.db.WithContext(ctx).Order("id ASC").Find(&events).Error
	return events, err
}

// Update persists changes to an event.
func (r *gormEventRepository) Update(ctx context.Context, event *model.Event) error {
	return r.db.WithContext(ctx).Save(event).Error
}

// Close marks an event closed.
func (r *gormEventRepository) Close(ctx context.Context, id int64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.Event{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":    model.EventStatusClosed,
			"closed_at": &now,
		}).Error
}
