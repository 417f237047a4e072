package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents a Wavely account and its public profile.
type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	FirebaseUID  *string        `gorm:"uniqueIndex" json:"-"`
	Username     string         `gorm:"unique;not null" json:"username"`
	Email        string         `gorm:"unique;not null" json:"email"`
	Password     string         `json:"-"`
	DisplayName  string         `gorm:"size:50" json:"display_name"`
	ProfileImage string         `json:"profile_image"`
	BannerImage  string         `json:"banner_image"`
	Bio          string         `gorm:"size:500" json:"bio"`
	IsAdmin      bool           `gorm:"default:false" json:"is_admin"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`

	Followers      []uint `gorm:"-" json:"followers"`
	Following      []uint `gorm:"-" json:"following"`
	FollowersCount int64  `gorm:"-" json:"followers_count"`
	FollowingCount int64  `gorm:"-" json:"following_count"`
}

// Follow is a directed edge: FollowerID follows FolloweeID.
type Follow struct {
	FollowerID uint      `gorm:"primaryKey" json:"follower_id"`
	FolloweeID uint      `gorm:"primaryKey;index" json:"followee_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// DeviceToken is a push registration for a user's device.
type DeviceToken struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Token     string    `gorm:"uniqueIndex;not null" json:"token"`
	CreatedAt time.Time `json:"created_at"`
}
