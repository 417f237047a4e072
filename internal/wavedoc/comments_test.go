package wavedoc

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wavely/internal/models"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func alice() *Author { return &Author{ID: 1, Username: "alice", DisplayName: "Alice"} }
func bob() *Author   { return &Author{ID: 2, Username: "bob", DisplayName: "Bob"} }

func newWave(owner uint) *models.Wave {
	return &models.Wave{ID: 10, UserID: owner, WaveType: models.WaveTypeCommunity}
}

func TestAddComment(t *testing.T) {
	w := newWave(1)

	c, err := AddComment(w, bob(), "  first!  ", base)
	require.NoError(t, err)
	assert.Equal(t, "first!", c.Content)
	assert.Nil(t, c.ParentCommentID)
	assert.Equal(t, "bob", c.Username)
	assert.Len(t, c.ID, 26)
	assert.Equal(t, 1, w.Comments)
	assert.Len(t, w.CommentsList, 1)
}

func TestAddCommentRejects(t *testing.T) {
	tests := []struct {
		name    string
		author  *Author
		content string
		want    error
	}{
		{"no session", nil, "hi", models.ErrNotAuthenticated},
		{"blank", alice(), "   \n\t", models.ErrEmptyContent},
		{"empty", alice(), "", models.ErrEmptyContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWave(1)
			_, err := AddComment(w, tt.author, tt.content, base)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Empty(t, w.CommentsList)
			assert.Equal(t, 0, w.Comments)
		})
	}
}

func TestAddCommentTooLong(t *testing.T) {
	w := newWave(1)
	long := make([]rune, MaxCommentLength+1)
	for i := range long {
		long[i] = 'x'
	}
	_, err := AddComment(w, alice(), string(long), base)

	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeValidation, appErr.Code)
}

func TestAddReply(t *testing.T) {
	w := newWave(1)
	parent, err := AddComment(w, alice(), "parent", base)
	require.NoError(t, err)

	reply, err := AddReply(w, parent.ID, bob(), "reply", base.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, reply.ParentCommentID)
	assert.Equal(t, parent.ID, *reply.ParentCommentID)
	assert.Equal(t, 2, w.Comments)
}

func TestAddReplyToReplyStaysTwoLevels(t *testing.T) {
	w := newWave(1)
	parent, _ := AddComment(w, alice(), "parent", base)
	first, _ := AddReply(w, parent.ID, bob(), "r1", base.Add(time.Second))

	nested, err := AddReply(w, first.ID, alice(), "r2", base.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, parent.ID, *nested.ParentCommentID)

	threads := BuildThreads(w.CommentsList)
	require.Len(t, threads, 1)
	assert.Len(t, threads[0].Replies, 2)
}

func TestAddReplyUnknownParent(t *testing.T) {
	w := newWave(1)
	_, _ = AddComment(w, alice(), "parent", base)

	_, err := AddReply(w, "nope", bob(), "reply", base)
	assert.True(t, errors.Is(err, models.ErrParentNotFound))
	assert.Equal(t, 1, w.Comments)
}

func TestToggleCommentLikeIsSymmetric(t *testing.T) {
	w := newWave(1)
	c, _ := AddComment(w, alice(), "like me", base)

	liked, err := ToggleCommentLike(w, c.ID, 2)
	require.NoError(t, err)
	assert.True(t, liked)
	assert.Equal(t, []uint{2}, w.CommentsList[0].Likes)

	liked, err = ToggleCommentLike(w, c.ID, 2)
	require.NoError(t, err)
	assert.False(t, liked)
	assert.Empty(t, w.CommentsList[0].Likes)
}

func TestToggleCommentLikeOnReply(t *testing.T) {
	w := newWave(1)
	p, _ := AddComment(w, alice(), "p", base)
	r, _ := AddReply(w, p.ID, bob(), "r", base)

	liked, err := ToggleCommentLike(w, r.ID, 1)
	require.NoError(t, err)
	assert.True(t, liked)
	got, _ := FindComment(w, r.ID)
	assert.Equal(t, []uint{1}, got.Likes)
}

func TestToggleCommentLikeMissing(t *testing.T) {
	w := newWave(1)
	_, err := ToggleCommentLike(w, "missing", 2)

	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodeNotFound, appErr.Code)
}

func TestDeleteParentCascades(t *testing.T) {
	w := newWave(1)
	p, _ := AddComment(w, bob(), "parent", base)
	other, _ := AddComment(w, alice(), "other", base)
	for i := 0; i < 3; i++ {
		_, err := AddReply(w, p.ID, alice(), "r", base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}
	_, _ = AddReply(w, other.ID, bob(), "keep", base)
	require.Equal(t, 6, w.Comments)

	removed, err := DeleteComment(w, p.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, removed)
	assert.Equal(t, 2, w.Comments)
	for _, c := range w.CommentsList {
		assert.NotEqual(t, p.ID, c.ID)
		if c.ParentCommentID != nil {
			assert.NotEqual(t, p.ID, *c.ParentCommentID)
		}
	}
}

func TestDeleteReplyOnly(t *testing.T) {
	w := newWave(1)
	p, _ := AddComment(w, bob(), "parent", base)
	r, _ := AddReply(w, p.ID, alice(), "r", base)

	removed, err := DeleteComment(w, r.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, w.Comments)
}

func TestDeletePermissions(t *testing.T) {
	w := newWave(1)
	c, _ := AddComment(w, bob(), "bob's", base)

	_, err := DeleteComment(w, c.ID, 3)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.CodePermission, appErr.Code)

	// wave owner may moderate
	removed, err := DeleteComment(w, c.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestBuildThreadsOrdering(t *testing.T) {
	w := newWave(1)
	older, _ := AddComment(w, alice(), "older", base)
	newer, _ := AddComment(w, bob(), "newer", base.Add(time.Hour))
	_, _ = AddReply(w, older.ID, bob(), "second", base.Add(2*time.Minute))
	_, _ = AddReply(w, older.ID, bob(), "first", base.Add(time.Minute))

	threads := BuildThreads(w.CommentsList)
	require.Len(t, threads, 2)
	assert.Equal(t, newer.ID, threads[0].ID)
	assert.Equal(t, older.ID, threads[1].ID)
	require.Len(t, threads[1].Replies, 2)
	assert.Equal(t, "first", threads[1].Replies[0].Content)
	assert.Equal(t, "second", threads[1].Replies[1].Content)
	assert.NotNil(t, threads[0].Replies)
}

func TestBuildThreadsDropsOrphans(t *testing.T) {
	gone := "gone"
	list := []models.Comment{
		{ID: "a", Timestamp: base},
		{ID: "b", Timestamp: base, ParentCommentID: &gone},
	}
	threads := BuildThreads(list)
	require.Len(t, threads, 1)
	assert.Empty(t, threads[0].Replies)
}

func TestCommentIDsAreUniqueWithinWave(t *testing.T) {
	w := newWave(1)
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		c, err := AddComment(w, alice(), "same instant", base)
		require.NoError(t, err)
		assert.False(t, seen[c.ID])
		seen[c.ID] = true
	}
}

func TestCloneIsolatesComments(t *testing.T) {
	w := newWave(1)
	c, _ := AddComment(w, alice(), "x", base)

	cp := w.Clone()
	_, err := ToggleCommentLike(cp, c.ID, 2)
	require.NoError(t, err)

	assert.Empty(t, w.CommentsList[0].Likes)
	assert.Len(t, cp.CommentsList[0].Likes, 1)
}

func TestCloneKeepsEmptyLikes(t *testing.T) {
	w := newWave(1)
	w.MediaURLs = []string{}
	_, err := AddComment(w, alice(), "x", base)
	require.NoError(t, err)

	cp := w.Clone()
	require.NotNil(t, cp.CommentsList[0].Likes)
	assert.NotNil(t, cp.MediaURLs)

	raw, err := json.Marshal(cp.CommentsList[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"likes":[]`)
	assert.NotContains(t, string(raw), `"likes":null`)
}
