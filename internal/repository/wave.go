package repository

import (
	"context"
	"errors"
	"time"

	"wavely/internal/models"
	"wavely/internal/observability"

	"gorm.io/gorm"
)

// WaveRepository is the document store for waves. Comments and ratings live
// inside the wave and are written back whole through ReplaceDocument; likes
// use the store's atomic set primitive instead.
type WaveRepository interface {
	Create(ctx context.Context, wave *models.Wave) error
	GetByID(ctx context.Context, id uint) (*models.Wave, error)
	List(ctx context.Context, q models.FeedQuery) ([]*models.Wave, error)
	ListIDs(ctx context.Context) ([]uint, error)
	// ReplaceDocument writes the mutable document fields of wave if the stored
	// version equals expectedVersion, and bumps wave.Version on success.
	ReplaceDocument(ctx context.Context, wave *models.Wave, expectedVersion int64) error
	ToggleLike(ctx context.Context, waveID, userID uint) (liked bool, likes int, err error)
	Delete(ctx context.Context, id uint) error
}

// documentColumns are rewritten by ReplaceDocument. likes is absent because
// ToggleLike owns it.
var documentColumns = []string{
	"title", "content", "media_urls", "media_type", "rating",
	"comments", "comments_list", "community_ratings", "average_rating",
	"anime", "version", "updated_at",
}

type waveRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewWaveRepository creates a PostgreSQL-backed wave repository
func NewWaveRepository(db *gorm.DB) WaveRepository {
	return &waveRepository{db: db, log: observability.NewRepoLogger("waves")}
}

func (r *waveRepository) Create(ctx context.Context, wave *models.Wave) error {
	defer observability.TrackQuery("create", "waves")()
	wave.Version = 1
	if err := r.db.WithContext(ctx).Create(wave).Error; err != nil {
		r.log.Failed(ctx, "create", err)
		return err
	}
	r.log.Wrote(ctx, "create", "wave_id", wave.ID, "user_id", wave.UserID)
	return nil
}

func (r *waveRepository) GetByID(ctx context.Context, id uint) (*models.Wave, error) {
	defer observability.TrackQuery("get", "waves")()
	var wave models.Wave
	if err := r.db.WithContext(ctx).First(&wave, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Wave", id)
		}
		return nil, err
	}
	if err := r.loadLikes(ctx, []*models.Wave{&wave}); err != nil {
		return nil, err
	}
	return &wave, nil
}

func (r *waveRepository) List(ctx context.Context, q models.FeedQuery) ([]*models.Wave, error) {
	defer observability.TrackQuery("list", "waves")()
	limit, offset := clampPage(q.Limit, q.Offset)

	tx := r.db.WithContext(ctx).Model(&models.Wave{})
	if q.WaveType != "" {
		tx = tx.Where("wave_type = ?", q.WaveType)
	}
	if q.UserID != 0 {
		tx = tx.Where("user_id = ?", q.UserID)
	}
	if q.AuthorIDs != nil {
		tx = tx.Where("user_id IN ?", q.AuthorIDs)
	}

	var waves []*models.Wave
	if err := tx.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&waves).Error; err != nil {
		return nil, err
	}
	if err := r.loadLikes(ctx, waves); err != nil {
		return nil, err
	}
	return waves, nil
}

func (r *waveRepository) ListIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Wave{}).Order("id").Pluck("id", &ids).Error
	return ids, err
}

// loadLikes fills LikedBy and Likes from wave_likes.
func (r *waveRepository) loadLikes(ctx context.Context, waves []*models.Wave) error {
	if len(waves) == 0 {
		return nil
	}
	ids := make([]uint, len(waves))
	byID := make(map[uint]*models.Wave, len(waves))
	for i, w := range waves {
		ids[i] = w.ID
		byID[w.ID] = w
		w.LikedBy = []uint{}
	}

	var likes []models.WaveLike
	if err := r.db.WithContext(ctx).
		Where("wave_id IN ?", ids).
		Order("created_at").
		Find(&likes).Error; err != nil {
		return err
	}
	for _, l := range likes {
		if w, ok := byID[l.WaveID]; ok {
			w.LikedBy = append(w.LikedBy, l.UserID)
		}
	}
	for _, w := range waves {
		w.Likes = len(w.LikedBy)
	}
	return nil
}

func (r *waveRepository) ReplaceDocument(ctx context.Context, wave *models.Wave, expectedVersion int64) error {
	defer observability.TrackQuery("replace", "waves")()
	next := *wave
	next.Version = expectedVersion + 1
	next.UpdatedAt = time.Now().UTC()

	res := r.db.WithContext(ctx).
		Model(&next).
		Where("version = ?", expectedVersion).
		Select(documentColumns).
		Updates(&next)
	if res.Error != nil {
		r.log.Failed(ctx, "replace", res.Error)
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	wave.Version = next.Version
	wave.UpdatedAt = next.UpdatedAt
	r.log.Wrote(ctx, "replace", "wave_id", wave.ID, "version", wave.Version)
	return nil
}

func (r *waveRepository) ToggleLike(ctx context.Context, waveID, userID uint) (bool, int, error) {
	defer observability.TrackQuery("toggle_like", "wave_likes")()
	var liked bool
	var count int64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&models.Wave{}).Where("id = ?", waveID).Count(&exists).Error; err != nil {
			return err
		}
		if exists == 0 {
			return models.NewNotFoundError("Wave", waveID)
		}

		res := tx.Exec(
			`INSERT INTO wave_likes (wave_id, user_id, created_at) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`,
			waveID, userID, time.Now().UTC(),
		)
		if res.Error != nil {
			return res.Error
		}
		liked = res.RowsAffected == 1
		if !liked {
			if err := tx.Exec(`DELETE FROM wave_likes WHERE wave_id = ? AND user_id = ?`, waveID, userID).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(&models.WaveLike{}).Where("wave_id = ?", waveID).Count(&count).Error; err != nil {
			return err
		}
		return tx.Exec(`UPDATE waves SET likes = ? WHERE id = ?`, count, waveID).Error
	})
	if err != nil {
		return false, 0, err
	}
	return liked, int(count), nil
}

func (r *waveRepository) Delete(ctx context.Context, id uint) error {
	defer observability.TrackQuery("delete", "waves")()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("wave_id = ?", id).Delete(&models.WaveLike{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Wave{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.NewNotFoundError("Wave", id)
		}
		r.log.Wrote(ctx, "delete", "wave_id", id)
		return nil
	})
}
