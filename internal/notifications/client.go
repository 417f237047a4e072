package notifications

import (
	"context"
	"time"

	"wavely/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxFrameSize   = 16 << 10
	queueLen       = 256
	closeWriteWait = time.Second
)

// Session is the per-socket feed state a client drives. Inbound receives
// each text frame from the peer. Outbound sees each queued frame just before
// it is written and may rewrite it or return nil to skip it. Close runs once
// when the socket is gone.
type Session interface {
	Inbound(ctx context.Context, frame []byte)
	Outbound(ctx context.Context, frame []byte) []byte
	Close()
}

// Client is one feed socket of one user.
type Client struct {
	UserID uint

	hub  *Hub
	conn *websocket.Conn
	out  chan []byte

	ctx    context.Context
	cancel context.CancelFunc
}

func newClient(hub *Hub, conn *websocket.Conn, userID uint) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		UserID: userID,
		hub:    hub,
		conn:   conn,
		out:    make(chan []byte, queueLen),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Context is cancelled once the socket closes.
func (c *Client) Context() context.Context { return c.ctx }

// Serve pumps frames between the socket and s until the peer goes away. It
// blocks in the read loop; writes run on their own goroutine.
func (c *Client) Serve(s Session) {
	go c.writeLoop(s)

	reason := c.readLoop(s)

	c.cancel()
	c.hub.Detach(c)
	_ = c.conn.Close()
	s.Close()
	c.hub.log.Disconnected(context.Background(), c.UserID, reason)
}

func (c *Client) readLoop(s Session) string {
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Failed(c.ctx, c.UserID, "read", err)
				return "read error"
			}
			return "client closed"
		}
		if kind == websocket.TextMessage {
			s.Inbound(c.ctx, frame)
		}
	}
}

func (c *Client) writeLoop(s Session) {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		var frame []byte
		kind := websocket.TextMessage
		select {
		case <-c.ctx.Done():
			return
		case <-ping.C:
			kind = websocket.PingMessage
		case frame = <-c.out:
			if frame = s.Outbound(c.ctx, frame); frame == nil {
				continue
			}
		}
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(kind, frame); err != nil {
			c.cancel()
			return
		}
	}
}

// TrySend queues frame without blocking. The last queue slot is kept for a
// messages_dropped notice: once only it is left, frames are dropped and the
// notice takes the slot so the client knows to resync.
func (c *Client) TrySend(frame []byte) (queued bool) {
	if c.ctx.Err() != nil {
		observability.WebSocketBackpressureDrops.WithLabelValues(hubName, "closed").Inc()
		return false
	}
	if len(c.out) < queueLen-1 {
		select {
		case c.out <- frame:
			return true
		default:
		}
	}
	observability.WebSocketBackpressureDrops.WithLabelValues(hubName, "full").Inc()
	select {
	case c.out <- droppedNotice:
	default:
	}
	return false
}

// SendEvent encodes ev and queues it.
func (c *Client) SendEvent(ev Event) bool {
	frame, err := ev.Encode()
	if err != nil {
		c.hub.log.Failed(c.ctx, c.UserID, ev.Type, err)
		return false
	}
	return c.TrySend(frame)
}

// goAway cancels the client and, when a socket is attached, sends a close
// frame before closing it.
func (c *Client) goAway(reason string) error {
	c.cancel()
	if c.conn == nil {
		return nil
	}
	defer func() { _ = c.conn.Close() }()
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, reason)
	return c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait))
}
