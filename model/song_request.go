package model

import "time"

// SongRequest is an attendee's request against an event. The playback bridge
// reads pending requests and flips them to played when a matching track
// finishes; the DJ can also flip them manually from the dashboard.
type SongRequest struct {
	ID              int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	EventID         int64      `json:"eventId" gorm:"index;not null"`
	SongName        string     `json:"songName" gorm:"size:200;not null"`
	ArtistName      string     `json:"artistName" gorm:"size:200"`
	RequesterName   string     `json:"requesterName" gorm:"size:100"`
	Status          string     `json:"status" gorm:"size:20;default:'pending';index"` // pending, played, skipped
	AmountPaid      int64      `json:"amountPaid"`                                    // cents; 0 for free requests
	PaymentIntentID string     `json:"paymentIntentId,omitempty" gorm:"size:64"`
	PlayedTime      *time.Time `json:"playedTime,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// TableName sets the table name for gorm.
func (SongRequest) TableName() string {
	return "song_requests"
}

const (
	RequestStatusPending = "pending"
	RequestStatusPlayed  = "played"
	RequestStatusSkipped = "skipped"
)

// IsValidRequestStatus reports whether s is a known request status.
func IsValidRequestStatus(s string) bool {
	switch s {
	case RequestStatusPending, RequestStatusPlayed, RequestStatusSkipped:
		return true
	}
	return false
}
