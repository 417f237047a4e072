package notifications

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"

	"wavely/internal/observability"

	"github.com/redis/go-redis/v9"
)

// Pub/sub channels shared by every API instance.
const (
	BroadcastChannel  = "wavely:feed:all"
	userChannelPrefix = "wavely:feed:user:"
)

// UserChannel is the channel carrying events for one user.
func UserChannel(userID uint) string {
	return userChannelPrefix + strconv.FormatUint(uint64(userID), 10)
}

// Notifier fans feed events out through Redis pub/sub so a socket on any
// instance receives them. A Notifier without a client does nothing.
type Notifier struct {
	rdb *redis.Client
}

func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// Enabled reports whether publishing reaches anyone.
func (n *Notifier) Enabled() bool {
	return n != nil && n.rdb != nil
}

func (n *Notifier) publish(ctx context.Context, channel string, frame []byte) error {
	if !n.Enabled() {
		return nil
	}
	return n.rdb.Publish(ctx, channel, frame).Err()
}

func (n *Notifier) PublishUser(ctx context.Context, userID uint, frame []byte) error {
	return n.publish(ctx, UserChannel(userID), frame)
}

func (n *Notifier) PublishBroadcast(ctx context.Context, frame []byte) error {
	return n.publish(ctx, BroadcastChannel, frame)
}

// Subscribe listens on the broadcast channel and every user channel and
// hands each message to fn on a background goroutine until ctx is done. It
// returns once the subscription is confirmed.
func (n *Notifier) Subscribe(ctx context.Context, fn func(channel string, frame []byte)) error {
	if !n.Enabled() {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, userChannelPrefix+"*", BroadcastChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe feed channels: %w", err)
	}

	go func() {
		defer func() { _ = sub.Close() }()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				dispatch(fn, msg)
			}
		}
	}()
	return nil
}

// dispatch runs fn so that a panicking handler cannot kill the subscription.
func dispatch(fn func(string, []byte), msg *redis.Message) {
	defer func() {
		if r := recover(); r != nil {
			observability.GlobalLogger.Error("feed subscriber panicked",
				"channel", msg.Channel, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()
	fn(msg.Channel, []byte(msg.Payload))
}
