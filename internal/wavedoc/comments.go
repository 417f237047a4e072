// Package wavedoc holds the pure operations applied to a wave document
// inside a read-modify-write cycle. Nothing here touches storage.
package wavedoc

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"wavely/internal/models"
)

// MaxCommentLength is the longest comment body accepted, in characters.
const MaxCommentLength = 2000

// Author is the profile snapshot written onto a comment.
type Author struct {
	ID           uint
	Username     string
	DisplayName  string
	ProfileImage string
}

// NewCommentID returns a time-ordered id: millisecond timestamp plus random suffix.
func NewCommentID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
}

func uniqueCommentID(w *models.Wave, now time.Time) string {
	for {
		id := NewCommentID(now)
		if _, idx := FindComment(w, id); idx < 0 {
			return id
		}
	}
}

func validateBody(author *Author, content string) (string, error) {
	if author == nil || author.ID == 0 {
		return "", models.NewNotAuthenticatedError()
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", models.NewEmptyContentError()
	}
	if utf8.RuneCountInString(content) > MaxCommentLength {
		return "", models.NewValidationError("comment must be at most 2000 characters")
	}
	return content, nil
}

// AddComment appends a top-level comment.
func AddComment(w *models.Wave, author *Author, content string, now time.Time) (models.Comment, error) {
	body, err := validateBody(author, content)
	if err != nil {
		return models.Comment{}, err
	}
	c := newComment(w, author, body, now)
	w.CommentsList = append(w.CommentsList, c)
	Reconcile(w)
	return c, nil
}

// AddReply appends a reply under parentID. A reply aimed at another reply is
// attached to that reply's parent so the tree never exceeds two levels.
func AddReply(w *models.Wave, parentID string, author *Author, content string, now time.Time) (models.Comment, error) {
	body, err := validateBody(author, content)
	if err != nil {
		return models.Comment{}, err
	}
	parent, idx := FindComment(w, parentID)
	if idx < 0 {
		return models.Comment{}, models.NewParentNotFoundError(parentID)
	}
	rootID := parent.ID
	if parent.IsReply() {
		root, rootIdx := FindComment(w, *parent.ParentCommentID)
		if rootIdx < 0 {
			return models.Comment{}, models.NewParentNotFoundError(parentID)
		}
		rootID = root.ID
	}

	c := newComment(w, author, body, now)
	c.ParentCommentID = &rootID
	w.CommentsList = append(w.CommentsList, c)
	Reconcile(w)
	return c, nil
}

func newComment(w *models.Wave, author *Author, body string, now time.Time) models.Comment {
	return models.Comment{
		ID:           uniqueCommentID(w, now),
		UserID:       author.ID,
		Content:      body,
		Timestamp:    now.UTC(),
		Likes:        []uint{},
		Username:     author.Username,
		DisplayName:  author.DisplayName,
		ProfileImage: author.ProfileImage,
	}
}

// FindComment returns the comment with id and its index, or -1.
func FindComment(w *models.Wave, id string) (*models.Comment, int) {
	for i := range w.CommentsList {
		if w.CommentsList[i].ID == id {
			return &w.CommentsList[i], i
		}
	}
	return nil, -1
}

// ToggleCommentLike flips userID's membership in the comment's like set and
// returns the new state.
func ToggleCommentLike(w *models.Wave, commentID string, userID uint) (bool, error) {
	if userID == 0 {
		return false, models.NewNotAuthenticatedError()
	}
	c, idx := FindComment(w, commentID)
	if idx < 0 {
		return false, models.NewNotFoundError("Comment", commentID)
	}
	for i, id := range c.Likes {
		if id == userID {
			c.Likes = append(c.Likes[:i], c.Likes[i+1:]...)
			return false, nil
		}
	}
	c.Likes = append(c.Likes, userID)
	return true, nil
}

// DeleteComment removes commentID, and all its replies when it is a parent.
// The comment author or the wave owner may delete. Returns how many entries
// were removed.
func DeleteComment(w *models.Wave, commentID string, requesterID uint) (int, error) {
	if requesterID == 0 {
		return 0, models.NewNotAuthenticatedError()
	}
	c, idx := FindComment(w, commentID)
	if idx < 0 {
		return 0, models.NewNotFoundError("Comment", commentID)
	}
	if c.UserID != requesterID && w.UserID != requesterID {
		return 0, models.NewPermissionError("only the comment author or wave owner can delete this comment")
	}

	target := c.ID
	kept := w.CommentsList[:0:0]
	removed := 0
	for _, entry := range w.CommentsList {
		if entry.ID == target || (entry.ParentCommentID != nil && *entry.ParentCommentID == target) {
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	w.CommentsList = kept
	Reconcile(w)
	return removed, nil
}

// BuildThreads groups the flat list into threads. Parents are newest first,
// replies oldest first. Replies whose parent is gone are dropped.
func BuildThreads(list []models.Comment) []models.CommentThread {
	threads := make([]models.CommentThread, 0, len(list))
	index := make(map[string]int, len(list))
	for _, c := range list {
		if c.IsReply() {
			continue
		}
		index[c.ID] = len(threads)
		threads = append(threads, models.CommentThread{Comment: c, Replies: []models.Comment{}})
	}
	for _, c := range list {
		if !c.IsReply() {
			continue
		}
		if i, ok := index[*c.ParentCommentID]; ok {
			threads[i].Replies = append(threads[i].Replies, c)
		}
	}

	sort.SliceStable(threads, func(i, j int) bool {
		return threads[i].Timestamp.After(threads[j].Timestamp)
	})
	for i := range threads {
		replies := threads[i].Replies
		sort.SliceStable(replies, func(a, b int) bool {
			return replies[a].Timestamp.Before(replies[b].Timestamp)
		})
	}
	return threads
}

// Reconcile re-derives the counters stored next to the lists they summarize.
func Reconcile(w *models.Wave) {
	w.Comments = len(w.CommentsList)
	w.Likes = len(w.LikedBy)
	w.AverageRating = AverageRating(w.CommunityRatings)
}
