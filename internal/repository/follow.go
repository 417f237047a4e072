package repository

import (
	"context"
	"time"

	"wavely/internal/models"

	"gorm.io/gorm"
)

// FollowRepository stores directed follow edges.
type FollowRepository interface {
	// Follow is idempotent; it reports whether a new edge was created.
	Follow(ctx context.Context, followerID, followeeID uint) (bool, error)
	Unfollow(ctx context.Context, followerID, followeeID uint) error
	IsFollowing(ctx context.Context, followerID, followeeID uint) (bool, error)
	FollowerIDs(ctx context.Context, userID uint, limit, offset int) ([]uint, error)
	FollowingIDs(ctx context.Context, userID uint, limit, offset int) ([]uint, error)
	Counts(ctx context.Context, userID uint) (followers, following int64, err error)
}

type followRepository struct {
	db *gorm.DB
}

// NewFollowRepository creates a new follow repository
func NewFollowRepository(db *gorm.DB) FollowRepository {
	return &followRepository{db: db}
}

func (r *followRepository) Follow(ctx context.Context, followerID, followeeID uint) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`INSERT INTO follows (follower_id, followee_id, created_at) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`,
		followerID, followeeID, time.Now().UTC(),
	)
	if res.Error != nil {
		return false, models.NewInternalError(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *followRepository) Unfollow(ctx context.Context, followerID, followeeID uint) error {
	err := r.db.WithContext(ctx).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Delete(&models.Follow{}).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *followRepository) IsFollowing(ctx context.Context, followerID, followeeID uint) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Count(&n).Error
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return n > 0, nil
}

func (r *followRepository) pluck(ctx context.Context, column, where string, userID uint, limit, offset int) ([]uint, error) {
	tx := r.db.WithContext(ctx).Model(&models.Follow{}).
		Where(where+" = ?", userID).
		Order("created_at DESC")
	if limit > 0 {
		tx = tx.Limit(limit).Offset(offset)
	}
	ids := []uint{}
	if err := tx.Pluck(column, &ids).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return ids, nil
}

// FollowerIDs lists who follows userID. limit <= 0 returns all.
func (r *followRepository) FollowerIDs(ctx context.Context, userID uint, limit, offset int) ([]uint, error) {
	return r.pluck(ctx, "follower_id", "followee_id", userID, limit, offset)
}

// FollowingIDs lists whom userID follows. limit <= 0 returns all.
func (r *followRepository) FollowingIDs(ctx context.Context, userID uint, limit, offset int) ([]uint, error) {
	return r.pluck(ctx, "followee_id", "follower_id", userID, limit, offset)
}

func (r *followRepository) Counts(ctx context.Context, userID uint) (int64, int64, error) {
	var followers, following int64
	if err := r.db.WithContext(ctx).Model(&models.Follow{}).Where("followee_id = ?", userID).Count(&followers).Error; err != nil {
		return 0, 0, models.NewInternalError(err)
	}
	if err := r.db.WithContext(ctx).Model(&models.Follow{}).Where("follower_id = ?", userID).Count(&following).Error; err != nil {
		return 0, 0, models.NewInternalError(err)
	}
	return followers, following, nil
}
