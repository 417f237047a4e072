package notifications

import (
	"context"

	"wavely/internal/observability"
)

// Dispatcher routes feed events to sockets. When Redis is on it publishes
// and every subscribed hub, this one included, delivers. A failed publish
// falls back to the local hub so this instance's sockets still see it.
type Dispatcher struct {
	hub      *Hub
	notifier *Notifier
	log      *observability.HubLogger
}

// NewDispatcher pairs the local hub with notifier, which may be nil. Only
// pass a notifier the hub is subscribed to.
func NewDispatcher(hub *Hub, notifier *Notifier) *Dispatcher {
	return &Dispatcher{hub: hub, notifier: notifier, log: observability.NewHubLogger("dispatch")}
}

// ToUser delivers ev to every socket of userID.
func (d *Dispatcher) ToUser(ctx context.Context, userID uint, ev Event) {
	if d == nil {
		return
	}
	d.route(ctx, userID, ev,
		func(frame []byte) error { return d.notifier.PublishUser(ctx, userID, frame) },
		func(frame []byte) { d.hub.SendToUser(userID, frame) },
	)
}

// ToAll delivers ev to every socket.
func (d *Dispatcher) ToAll(ctx context.Context, ev Event) {
	if d == nil {
		return
	}
	d.route(ctx, 0, ev,
		func(frame []byte) error { return d.notifier.PublishBroadcast(ctx, frame) },
		func(frame []byte) { d.hub.SendToAll(frame) },
	)
}

func (d *Dispatcher) route(ctx context.Context, userID uint, ev Event, publish func([]byte) error, local func([]byte)) {
	frame, err := ev.Encode()
	if err != nil {
		d.log.Failed(ctx, userID, ev.Type, err)
		return
	}
	if d.notifier.Enabled() {
		if err = publish(frame); err == nil {
			return
		}
		d.log.Failed(ctx, userID, ev.Type, err)
	}
	if d.hub != nil {
		local(frame)
	}
}
