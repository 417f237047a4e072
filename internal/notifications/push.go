package notifications

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
)

// fcmBatchLimit is the most tokens one multicast may carry.
const fcmBatchLimit = 500

// PushMessage is a mobile push notification.
type PushMessage struct {
	Title string
	Body  string
	Data  map[string]string
}

// PushResult reports delivery per token batch.
type PushResult struct {
	Sent int
	// Unregistered tokens should be forgotten by the caller.
	Unregistered []string
}

// Pusher sends mobile push notifications.
type Pusher interface {
	Push(ctx context.Context, tokens []string, msg PushMessage) (PushResult, error)
}

type multicastSender interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCMPusher sends through Firebase Cloud Messaging.
type FCMPusher struct {
	client       multicastSender
	unregistered func(error) bool
}

// NewFCMPusher creates a pusher from a Firebase app.
func NewFCMPusher(ctx context.Context, app *firebase.App) (*FCMPusher, error) {
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase messaging client: %w", err)
	}
	return &FCMPusher{client: client, unregistered: messaging.IsUnregistered}, nil
}

func (p *FCMPusher) Push(ctx context.Context, tokens []string, msg PushMessage) (PushResult, error) {
	var result PushResult
	for start := 0; start < len(tokens); start += fcmBatchLimit {
		end := min(start+fcmBatchLimit, len(tokens))
		batch := tokens[start:end]

		resp, err := p.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
			Notification: &messaging.Notification{Title: msg.Title, Body: msg.Body},
			Data:         msg.Data,
			Tokens:       batch,
		})
		if err != nil {
			return result, fmt.Errorf("fcm multicast: %w", err)
		}
		result.Sent += resp.SuccessCount
		for i, r := range resp.Responses {
			if !r.Success && p.unregistered(r.Error) {
				result.Unregistered = append(result.Unregistered, batch[i])
			}
		}
	}
	return result, nil
}
