// Package models contains data structures for the application's domain models.
package models

import (
	"slices"
	"time"
)

// Wave types. Only community waves accept ratings from other users.
const (
	WaveTypePersonal  = "personal"
	WaveTypeCommunity = "community"
)

// Media types a wave can carry.
const (
	MediaTypeNone  = ""
	MediaTypeImage = "image"
	MediaTypeVideo = "video"
	MediaTypeGIF   = "gif"
)

// Wave is a post in the feed. The comment list and community ratings are
// embedded in the document and rewritten as a whole under Version.
type Wave struct {
	ID               uint           `gorm:"primaryKey" json:"id" bson:"_id"`
	UserID           uint           `gorm:"not null;index" json:"user_id" bson:"user_id"`
	Title            string         `gorm:"size:300" json:"title" bson:"title"`
	Content          string         `gorm:"type:text" json:"content" bson:"content"`
	MediaURLs        []string       `gorm:"serializer:json;type:jsonb" json:"media_urls" bson:"media_urls"`
	MediaType        string         `gorm:"size:20" json:"media_type,omitempty" bson:"media_type"`
	WaveType         string         `gorm:"size:20;not null;default:personal;index" json:"wave_type" bson:"wave_type"`
	Rating           int            `json:"rating" bson:"rating"`
	Likes            int            `gorm:"default:0" json:"likes" bson:"likes"`
	LikedBy          []uint         `gorm:"-" json:"liked_by" bson:"liked_by"`
	Comments         int            `gorm:"default:0" json:"comments" bson:"comments"`
	CommentsList     []Comment      `gorm:"serializer:json;type:jsonb" json:"comments_list" bson:"comments_list"`
	CommunityRatings []RatingEntry  `gorm:"serializer:json;type:jsonb" json:"community_ratings" bson:"community_ratings"`
	AverageRating    float64        `gorm:"default:0" json:"average_rating" bson:"average_rating"`
	Anime            *AnimeMetadata `gorm:"serializer:json;type:jsonb" json:"anime,omitempty" bson:"anime,omitempty"`
	Version          int64          `gorm:"not null;default:1" json:"version" bson:"version"`
	CreatedAt        time.Time      `gorm:"index" json:"created_at" bson:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at" bson:"updated_at"`

	// Filled from the author's profile at read time, never persisted.
	Username     string `gorm:"-" json:"username" bson:"-"`
	DisplayName  string `gorm:"-" json:"display_name" bson:"-"`
	ProfileImage string `gorm:"-" json:"profile_image" bson:"-"`
}

// IsLikedBy reports whether userID is in the wave's like set.
func (w *Wave) IsLikedBy(userID uint) bool {
	for _, id := range w.LikedBy {
		if id == userID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so mutations can be applied to a scratch document.
func (w *Wave) Clone() *Wave {
	cp := *w
	cp.MediaURLs = slices.Clone(w.MediaURLs)
	cp.LikedBy = slices.Clone(w.LikedBy)
	cp.CommentsList = make([]Comment, len(w.CommentsList))
	for i, c := range w.CommentsList {
		cp.CommentsList[i] = c.clone()
	}
	cp.CommunityRatings = slices.Clone(w.CommunityRatings)
	if w.Anime != nil {
		a := *w.Anime
		cp.Anime = &a
	}
	return &cp
}

// WaveLike is one row per (wave, user) like. The Postgres store toggles likes
// through this table instead of rewriting the wave.
type WaveLike struct {
	WaveID    uint      `gorm:"primaryKey" json:"wave_id"`
	UserID    uint      `gorm:"primaryKey;index" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// FeedQuery filters a feed listing.
type FeedQuery struct {
	Limit     int
	Offset    int
	WaveType  string
	UserID    uint
	AuthorIDs []uint
}
