package service

import (
	"context"

	"wavely/internal/models"
	"wavely/internal/repository"
	"wavely/internal/wavedoc"
)

// CommentService edits the comment tree embedded in a wave. Every write goes
// through the wave service's version-checked read-modify-write loop.
type CommentService struct {
	waves    *WaveService
	users    repository.UserRepository
	notifier *NotificationService
}

// CommentResult carries the affected comment and the wave as written.
type CommentResult struct {
	Comment models.Comment `json:"comment"`
	Wave    *models.Wave   `json:"wave"`
}

// CommentLikeResult reports the like state after a toggle.
type CommentLikeResult struct {
	Liked bool         `json:"liked"`
	Likes int          `json:"likes"`
	Wave  *models.Wave `json:"wave"`
}

// CommentDeleteResult reports how many entries a delete removed.
type CommentDeleteResult struct {
	Removed int          `json:"removed"`
	Wave    *models.Wave `json:"wave"`
}

func NewCommentService(waves *WaveService, users repository.UserRepository, notifier *NotificationService) *CommentService {
	return &CommentService{waves: waves, users: users, notifier: notifier}
}

// author snapshots the caller's profile for the comment entry.
func (s *CommentService) author(ctx context.Context, userID uint) (*wavedoc.Author, error) {
	if userID == 0 {
		return nil, models.NewNotAuthenticatedError()
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	p := s.waves.Aggregator().Fallback()
	a := &wavedoc.Author{
		ID:           user.ID,
		Username:     user.Username,
		DisplayName:  user.DisplayName,
		ProfileImage: user.ProfileImage,
	}
	if a.DisplayName == "" {
		a.DisplayName = a.Username
	}
	if a.ProfileImage == "" {
		a.ProfileImage = p.ProfileImage
	}
	return a, nil
}

func (s *CommentService) AddComment(ctx context.Context, waveID uint, content string, authorID uint) (*CommentResult, error) {
	author, err := s.author(ctx, authorID)
	if err != nil {
		return nil, err
	}
	var created models.Comment
	wave, err := s.waves.mutate(ctx, waveID, "comment", func(w *models.Wave) error {
		c, err := wavedoc.AddComment(w, author, content, s.waves.now())
		created = c
		return err
	})
	if err != nil {
		return nil, err
	}

	commentID := created.ID
	s.notifier.notify(ctx, &models.Notification{
		RecipientID: wave.UserID,
		ActorID:     authorID,
		Type:        models.NotificationComment,
		WaveID:      &wave.ID,
		CommentID:   &commentID,
		Message:     commentMessage(author.DisplayName),
	})
	return &CommentResult{Comment: created, Wave: wave}, nil
}

// AddReply answers parentID. The notification goes to the author of the
// comment the caller replied to, even when the reply is filed under its root.
func (s *CommentService) AddReply(ctx context.Context, waveID uint, parentID string, content string, authorID uint) (*CommentResult, error) {
	author, err := s.author(ctx, authorID)
	if err != nil {
		return nil, err
	}
	var (
		created  models.Comment
		targetBy uint
	)
	wave, err := s.waves.mutate(ctx, waveID, "reply", func(w *models.Wave) error {
		if target, idx := wavedoc.FindComment(w, parentID); idx >= 0 {
			targetBy = target.UserID
		}
		c, err := wavedoc.AddReply(w, parentID, author, content, s.waves.now())
		created = c
		return err
	})
	if err != nil {
		return nil, err
	}

	commentID := created.ID
	s.notifier.notify(ctx, &models.Notification{
		RecipientID: targetBy,
		ActorID:     authorID,
		Type:        models.NotificationReply,
		WaveID:      &wave.ID,
		CommentID:   &commentID,
		Message:     replyMessage(author.DisplayName),
	})
	return &CommentResult{Comment: created, Wave: wave}, nil
}

func (s *CommentService) ToggleLike(ctx context.Context, waveID uint, commentID string, userID uint) (*CommentLikeResult, error) {
	if userID == 0 {
		return nil, models.NewNotAuthenticatedError()
	}
	var liked bool
	wave, err := s.waves.mutate(ctx, waveID, "comment_like", func(w *models.Wave) error {
		var err error
		liked, err = wavedoc.ToggleCommentLike(w, commentID, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	likes := 0
	if c, idx := wavedoc.FindComment(wave, commentID); idx >= 0 {
		likes = len(c.Likes)
	}
	return &CommentLikeResult{Liked: liked, Likes: likes, Wave: wave}, nil
}

func (s *CommentService) DeleteComment(ctx context.Context, waveID uint, commentID string, requesterID uint) (*CommentDeleteResult, error) {
	if requesterID == 0 {
		return nil, models.NewNotAuthenticatedError()
	}
	var removed int
	wave, err := s.waves.mutate(ctx, waveID, "comment_delete", func(w *models.Wave) error {
		var err error
		removed, err = wavedoc.DeleteComment(w, commentID, requesterID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &CommentDeleteResult{Removed: removed, Wave: wave}, nil
}

// ListThreads returns the wave's comments as parent threads.
func (s *CommentService) ListThreads(ctx context.Context, waveID uint) ([]models.CommentThread, error) {
	wave, err := s.waves.waves.GetByID(ctx, waveID)
	if err != nil {
		return nil, storeError(err)
	}
	return wavedoc.BuildThreads(wave.CommentsList), nil
}
