package models

import (
	"slices"
	"time"
)

// Comment is a flat entry in a wave's comment list. A reply is a comment
// with ParentCommentID set; replies never have replies of their own.
type Comment struct {
	ID              string    `json:"id" bson:"id"`
	UserID          uint      `json:"user_id" bson:"user_id"`
	Content         string    `json:"content" bson:"content"`
	Timestamp       time.Time `json:"timestamp" bson:"timestamp"`
	Likes           []uint    `json:"likes" bson:"likes"`
	ParentCommentID *string   `json:"parent_comment_id,omitempty" bson:"parent_comment_id,omitempty"`

	// Author snapshot taken when the comment was written.
	Username     string `json:"username" bson:"username"`
	DisplayName  string `json:"display_name" bson:"display_name"`
	ProfileImage string `json:"profile_image" bson:"profile_image"`
}

// IsReply reports whether the comment hangs off a parent.
func (c Comment) IsReply() bool {
	return c.ParentCommentID != nil
}

func (c Comment) clone() Comment {
	cp := c
	cp.Likes = slices.Clone(c.Likes)
	if c.ParentCommentID != nil {
		p := *c.ParentCommentID
		cp.ParentCommentID = &p
	}
	return cp
}

// CommentThread is the read-time view of a top-level comment and its replies.
type CommentThread struct {
	Comment
	Replies []Comment `json:"replies"`
}

// RatingEntry is one user's score on a community wave.
type RatingEntry struct {
	UserID  uint      `json:"user_id" bson:"user_id"`
	Rating  int       `json:"rating" bson:"rating"`
	RatedAt time.Time `json:"rated_at" bson:"rated_at"`
}
