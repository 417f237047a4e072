package repository

import (
	"context"
	"errors"
	"time"

	"wavely/internal/models"

	"gorm.io/gorm"
)

// NotificationRepository persists notifications and push device tokens.
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	List(ctx context.Context, recipientID uint, unreadOnly bool, limit, offset int) ([]*models.Notification, error)
	MarkRead(ctx context.Context, recipientID, id uint) error
	MarkAllRead(ctx context.Context, recipientID uint) (int64, error)
	UnreadCount(ctx context.Context, recipientID uint) (int64, error)
	RegisterDevice(ctx context.Context, userID uint, token string) error
	DeviceTokens(ctx context.Context, userID uint) ([]string, error)
	RemoveDevice(ctx context.Context, token string) error
}

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if err := r.db.WithContext(ctx).Create(n).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *notificationRepository) List(ctx context.Context, recipientID uint, unreadOnly bool, limit, offset int) ([]*models.Notification, error) {
	limit, offset = clampPage(limit, offset)
	tx := r.db.WithContext(ctx).Where("recipient_id = ?", recipientID)
	if unreadOnly {
		tx = tx.Where("read = ?", false)
	}
	items := []*models.Notification{}
	if err := tx.Order("created_at DESC").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return items, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, recipientID, id uint) error {
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Update("read", true)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Notification", id)
	}
	return nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, recipientID uint) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND read = ?", recipientID, false).
		Update("read", true)
	if res.Error != nil {
		return 0, models.NewInternalError(res.Error)
	}
	return res.RowsAffected, nil
}

func (r *notificationRepository) UnreadCount(ctx context.Context, recipientID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("recipient_id = ? AND read = ?", recipientID, false).
		Count(&n).Error
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	return n, nil
}

func (r *notificationRepository) RegisterDevice(ctx context.Context, userID uint, token string) error {
	var existing models.DeviceToken
	err := r.db.WithContext(ctx).Where("token = ?", token).First(&existing).Error
	switch {
	case err == nil:
		if existing.UserID == userID {
			return nil
		}
		existing.UserID = userID
		if err := r.db.WithContext(ctx).Save(&existing).Error; err != nil {
			return models.NewInternalError(err)
		}
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		dt := &models.DeviceToken{UserID: userID, Token: token, CreatedAt: time.Now().UTC()}
		if err := r.db.WithContext(ctx).Create(dt).Error; err != nil {
			return models.NewInternalError(err)
		}
		return nil
	default:
		return models.NewInternalError(err)
	}
}

func (r *notificationRepository) DeviceTokens(ctx context.Context, userID uint) ([]string, error) {
	tokens := []string{}
	err := r.db.WithContext(ctx).Model(&models.DeviceToken{}).
		Where("user_id = ?", userID).
		Pluck("token", &tokens).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return tokens, nil
}

func (r *notificationRepository) RemoveDevice(ctx context.Context, token string) error {
	if err := r.db.WithContext(ctx).Where("token = ?", token).Delete(&models.DeviceToken{}).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}
