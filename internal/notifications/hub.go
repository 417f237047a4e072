package notifications

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"wavely/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	hubName = "feed"

	maxSocketsPerUser = 12
	maxSockets        = 10000
)

var (
	ErrServerFull = errors.New("server connection limit reached")
	ErrUserFull   = errors.New("user connection limit reached")
)

// Hub tracks the feed sockets open on this instance, grouped by user.
type Hub struct {
	mu     sync.RWMutex
	byUser map[uint]map[*Client]struct{}
	total  int
	log    *observability.HubLogger
}

func NewHub() *Hub {
	return &Hub{
		byUser: make(map[uint]map[*Client]struct{}),
		log:    observability.NewHubLogger(hubName),
	}
}

func (h *Hub) Name() string { return hubName }

// Attach registers a socket for userID and returns its client. conn may be
// nil, in which case frames only accumulate in the client's queue.
func (h *Hub) Attach(userID uint, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.total >= maxSockets {
		return nil, ErrServerFull
	}
	set := h.byUser[userID]
	if len(set) >= maxSocketsPerUser {
		return nil, ErrUserFull
	}
	if set == nil {
		set = make(map[*Client]struct{})
		h.byUser[userID] = set
	}

	c := newClient(h, conn, userID)
	set[c] = struct{}{}
	h.total++
	observability.WebSocketConnectionsTotal.Inc()
	h.log.Connected(c.ctx, userID)
	return c, nil
}

// Detach forgets c. It is safe to call more than once.
func (h *Hub) Detach(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.byUser[c.UserID]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.byUser, c.UserID)
	}
	h.total--
	observability.WebSocketConnectionsTotal.Dec()
}

// SendToUser queues data on every socket of userID and returns how many
// accepted it.
func (h *Hub) SendToUser(userID uint, data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return sendAll(h.byUser[userID], data)
}

// SendToAll queues data on every socket on this instance.
func (h *Hub) SendToAll(data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.byUser {
		n += sendAll(set, data)
	}
	return n
}

func sendAll(set map[*Client]struct{}, data []byte) int {
	n := 0
	for c := range set {
		if c.TrySend(data) {
			n++
		}
	}
	return n
}

// Online reports whether userID has a socket on this instance.
func (h *Hub) Online(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID]) > 0
}

// Connections is the number of sockets on this instance.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

// Subscribe feeds events published by any instance into this hub until ctx
// is done.
func (h *Hub) Subscribe(ctx context.Context, n *Notifier) error {
	return n.Subscribe(ctx, h.deliver)
}

func (h *Hub) deliver(channel string, payload []byte) {
	if channel == BroadcastChannel {
		h.SendToAll(payload)
		return
	}
	rest, ok := strings.CutPrefix(channel, userChannelPrefix)
	if !ok {
		h.log.Failed(context.Background(), 0, "deliver", fmt.Errorf("unexpected channel %q", channel))
		return
	}
	id, err := strconv.ParseUint(rest, 10, 64)
	if err != nil || id == 0 {
		h.log.Failed(context.Background(), 0, "deliver", fmt.Errorf("invalid channel %q", channel))
		return
	}
	h.SendToUser(uint(id), payload)
}

// Shutdown sends a going-away close frame to every socket and drops them.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	byUser := h.byUser
	h.byUser = make(map[uint]map[*Client]struct{})
	h.total = 0
	h.mu.Unlock()

	for userID, set := range byUser {
		for c := range set {
			observability.WebSocketConnectionsTotal.Dec()
			// A peer that vanished without a close handshake does not fail shutdown.
			if err := c.goAway("server shutting down"); err != nil {
				h.log.Failed(ctx, userID, "shutdown", err)
			}
		}
	}
	return nil
}
