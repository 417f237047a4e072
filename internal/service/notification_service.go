package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"wavely/internal/featureflags"
	"wavely/internal/models"
	"wavely/internal/notifications"
	"wavely/internal/observability"
	"wavely/internal/repository"
)

type NotificationService struct {
	repo       repository.NotificationRepository
	dispatcher *notifications.Dispatcher
	pusher     notifications.Pusher
	flags      *featureflags.Manager
	// runAsync runs push delivery off the request path.
	runAsync func(func())
}

type ListNotificationsInput struct {
	UserID     uint
	UnreadOnly bool
	Limit      int
	Offset     int
}

// NotificationPage is a page of notifications plus the unread total.
type NotificationPage struct {
	Items       []*models.Notification `json:"items"`
	UnreadCount int64                  `json:"unread_count"`
}

func NewNotificationService(
	repo repository.NotificationRepository,
	dispatcher *notifications.Dispatcher,
	pusher notifications.Pusher,
	flags *featureflags.Manager,
) *NotificationService {
	return &NotificationService{
		repo:       repo,
		dispatcher: dispatcher,
		pusher:     pusher,
		flags:      flags,
		runAsync:   func(f func()) { go f() },
	}
}

// Notify persists n and delivers it to the recipient's open sockets and,
// when enabled, their devices. Self-notifications are dropped.
func (s *NotificationService) Notify(ctx context.Context, n *models.Notification) error {
	if s == nil || n == nil || n.RecipientID == 0 || n.RecipientID == n.ActorID {
		return nil
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return err
	}

	s.dispatcher.ToUser(ctx, n.RecipientID, notifications.Event{
		Type:    notifications.EventNotification,
		Payload: n,
	})
	observability.NotificationsSent.WithLabelValues("websocket", n.Type).Inc()

	if s.pusher != nil && s.flags.Enabled(featureflags.PushNotifications, n.RecipientID) {
		pushCtx := context.WithoutCancel(ctx)
		s.runAsync(func() { s.push(pushCtx, n) })
	}
	return nil
}

// notify is Notify for callers whose own operation already succeeded.
func (s *NotificationService) notify(ctx context.Context, n *models.Notification) {
	if err := s.Notify(ctx, n); err != nil {
		observability.Background(ctx, "notify", err, "recipient_id", n.RecipientID, "type", n.Type)
	}
}

func (s *NotificationService) push(ctx context.Context, n *models.Notification) {
	tokens, err := s.repo.DeviceTokens(ctx, n.RecipientID)
	if err != nil {
		observability.Background(ctx, "push_notification", err, "recipient_id", n.RecipientID)
		return
	}
	if len(tokens) == 0 {
		return
	}

	data := map[string]string{"type": n.Type, "notification_id": strconv.FormatUint(uint64(n.ID), 10)}
	if n.WaveID != nil {
		data["wave_id"] = strconv.FormatUint(uint64(*n.WaveID), 10)
	}
	result, err := s.pusher.Push(ctx, tokens, notifications.PushMessage{
		Title: "Wavely",
		Body:  n.Message,
		Data:  data,
	})
	for _, token := range result.Unregistered {
		if rmErr := s.repo.RemoveDevice(ctx, token); rmErr != nil {
			observability.Background(ctx, "remove_device", rmErr, "recipient_id", n.RecipientID)
		}
	}
	if err != nil {
		observability.Background(ctx, "push_notification", err, "recipient_id", n.RecipientID)
		return
	}
	observability.NotificationsSent.WithLabelValues("push", n.Type).Add(float64(result.Sent))
	observability.Background(ctx, "push_notification", nil,
		"recipient_id", n.RecipientID,
		"type", n.Type,
		"sent", result.Sent,
		"unregistered", len(result.Unregistered),
	)
}

func (s *NotificationService) List(ctx context.Context, in ListNotificationsInput) (*NotificationPage, error) {
	items, err := s.repo.List(ctx, in.UserID, in.UnreadOnly, in.Limit, in.Offset)
	if err != nil {
		return nil, err
	}
	unread, err := s.repo.UnreadCount(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	return &NotificationPage{Items: items, UnreadCount: unread}, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id uint) error {
	return s.repo.MarkRead(ctx, userID, id)
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID)
}

func (s *NotificationService) RegisterDevice(ctx context.Context, userID uint, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return models.NewValidationError("Device token is required")
	}
	if len(token) > 4096 {
		return models.NewValidationError("Device token too long")
	}
	return s.repo.RegisterDevice(ctx, userID, token)
}

func likeMessage(actor string) string {
	return fmt.Sprintf("%s liked your wave", actor)
}

func commentMessage(actor string) string {
	return fmt.Sprintf("%s commented on your wave", actor)
}

func replyMessage(actor string) string {
	return fmt.Sprintf("%s replied to your comment", actor)
}

func followMessage(actor string) string {
	return fmt.Sprintf("%s started following you", actor)
}

func ratingMessage(actor string, rating int) string {
	return fmt.Sprintf("%s rated your wave %d/5", actor, rating)
}
