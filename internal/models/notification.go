package models

import "time"

// Notification types.
const (
	NotificationLike    = "like"
	NotificationComment = "comment"
	NotificationReply   = "reply"
	NotificationFollow  = "follow"
	NotificationRating  = "rating"
)

// Notification is an activity item delivered to RecipientID.
type Notification struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	RecipientID uint      `gorm:"not null;index" json:"recipient_id"`
	ActorID     uint      `gorm:"not null" json:"actor_id"`
	Type        string    `gorm:"size:20;not null" json:"type"`
	WaveID      *uint     `json:"wave_id,omitempty"`
	CommentID   *string   `json:"comment_id,omitempty"`
	Message     string    `json:"message"`
	Read        bool      `gorm:"default:false;index" json:"read"`
	CreatedAt   time.Time `json:"created_at"`
}
