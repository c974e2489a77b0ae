package model

import "time"

// Event is a live event owned by a DJ. Attendees reach it by scanning a QR
// code that resolves the access code.
type Event struct {
	ID                int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	Name              string     `json:"name" gorm:"size:120;not null"`
	Venue             string     `json:"venue" gorm:"size:120"`
	OwnerID           int64      `json:"ownerId" gorm:"index;not null"`
	AccessCode        string     `json:"accessCode" gorm:"size:8;uniqueIndex;not null"`
	Status            string     `json:"status" gorm:"size:20;default:'active';index"` // active, closed
	CoverPath         string     `json:"coverPath" gorm:"size:255"`
	RequestPrice      int64      `json:"requestPrice"` // cents; 0 means free only
	Currency          string     `json:"currency" gorm:"size:3;default:'usd'"`
	AllowFreeRequests bool       `json:"allowFreeRequests" gorm:"default:true"`
	StartsAt          *time.Time `json:"startsAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
	ClosedAt          *time.Time `json:"closedAt,omitempty"`
}

// TableName sets the table name for gorm.
func (Event) TableName() string {
	return "events"
}

const (
	EventStatusActive = "active"
	EventStatusClosed = "closed"
)
