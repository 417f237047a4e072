package server

import (
	"context"
	"encoding/json"
	"errors"

	"wavely/internal/feed"
	"wavely/internal/models"
	"wavely/internal/notifications"
	"wavely/internal/observability"
	"wavely/internal/optimistic"
	"wavely/internal/service"
)

// Client to server message types.
const (
	MessageMutate = "mutate"
)

// Mutation ops a feed client may send.
const (
	OpLikeWave          = "like_wave"
	OpAddComment        = "add_comment"
	OpAddReply          = "add_reply"
	OpToggleCommentLike = "toggle_comment_like"
	OpDeleteComment     = "delete_comment"
	OpRate              = "rate"
)

const (
	snapshotSize = 50

	// Settled client refs remembered per session; replays within it are refused.
	settledRefWindow = 512
)

// ClientMessage is a frame sent by a feed client.
type ClientMessage struct {
	Type      string `json:"type"`
	Op        string `json:"op"`
	ClientRef string `json:"client_ref"`
	WaveID    uint   `json:"wave_id"`
	CommentID string `json:"comment_id,omitempty"`
	Content   string `json:"content,omitempty"`
	Rating    int    `json:"rating,omitempty"`
}

// feedSession is the state of one realtime feed connection: the profiles it
// has rendered and the provisional mutations it is waiting on.
type feedSession struct {
	userID   uint
	waveType string
	profiles *feed.ProfileCache
	ledger   *optimistic.Ledger
	waves    *service.WaveService
	comments *service.CommentService
	send     func(notifications.Event) bool
}

func (s *Server) newFeedSession(userID uint, waveType string, send func(notifications.Event) bool) *feedSession {
	return &feedSession{
		userID:   userID,
		waveType: waveType,
		profiles: feed.NewProfileCache(),
		ledger:   optimistic.NewLedger(),
		waves:    s.waveService,
		comments: s.commentService,
		send:     send,
	}
}

// snapshot sends the newest waves, enriched through the session cache.
func (fs *feedSession) snapshot(ctx context.Context, following bool) error {
	waves, err := fs.waves.ListFeed(ctx, fs.profiles, service.ListFeedInput{
		ViewerID:  fs.userID,
		Limit:     snapshotSize,
		WaveType:  fs.waveType,
		Following: following,
	})
	if err != nil {
		fs.send(errorEvent("", err))
		return err
	}
	fs.send(notifications.Event{Type: notifications.EventSnapshot, Payload: waves})
	return nil
}

// Inbound applies one client frame and answers with exactly one ack,
// rollback or error event.
func (fs *feedSession) Inbound(ctx context.Context, raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		fs.send(errorEvent("", models.NewValidationError("Invalid message format")))
		return
	}
	if msg.Type != MessageMutate {
		observability.WebSocketEventsTotal.WithLabelValues("unknown").Inc()
		fs.send(errorEvent(msg.ClientRef, models.NewValidationError("Unknown message type")))
		return
	}
	observability.WebSocketEventsTotal.WithLabelValues(MessageMutate).Inc()

	if _, err := fs.ledger.Begin(msg.ClientRef, msg.Op, msg.WaveID); err != nil {
		fs.send(errorEvent(msg.ClientRef, models.NewValidationError(err.Error())))
		return
	}
	defer fs.ledger.Prune(settledRefWindow)

	ctx = service.WithClientRef(ctx, msg.ClientRef)
	wave, err := fs.apply(ctx, msg)
	if err != nil {
		_, _ = fs.ledger.Rollback(msg.ClientRef)
		ev := errorEvent(msg.ClientRef, err)
		ev.Type = notifications.EventRollback
		// The last good copy lets the client discard its provisional state.
		if current, gerr := fs.waves.GetWave(ctx, msg.WaveID); gerr == nil {
			fs.waves.Aggregator().EnrichOne(ctx, fs.profiles, current)
			ev.Payload = current
		}
		fs.send(ev)
		return
	}

	_, _ = fs.ledger.Commit(msg.ClientRef)
	fs.send(notifications.Event{
		Type:      notifications.EventAck,
		ClientRef: msg.ClientRef,
		Payload:   wave,
	})
}

func (fs *feedSession) apply(ctx context.Context, msg ClientMessage) (*models.Wave, error) {
	if msg.WaveID == 0 {
		return nil, models.NewValidationError("wave_id is required")
	}
	switch msg.Op {
	case OpLikeWave:
		wave, _, err := fs.waves.ToggleLike(ctx, msg.WaveID, fs.userID)
		return wave, err
	case OpRate:
		return fs.waves.Rate(ctx, msg.WaveID, fs.userID, msg.Rating)
	case OpAddComment:
		res, err := fs.comments.AddComment(ctx, msg.WaveID, msg.Content, fs.userID)
		if err != nil {
			return nil, err
		}
		return res.Wave, nil
	case OpAddReply:
		res, err := fs.comments.AddReply(ctx, msg.WaveID, msg.CommentID, msg.Content, fs.userID)
		if err != nil {
			return nil, err
		}
		return res.Wave, nil
	case OpToggleCommentLike:
		res, err := fs.comments.ToggleLike(ctx, msg.WaveID, msg.CommentID, fs.userID)
		if err != nil {
			return nil, err
		}
		return res.Wave, nil
	case OpDeleteComment:
		res, err := fs.comments.DeleteComment(ctx, msg.WaveID, msg.CommentID, fs.userID)
		if err != nil {
			return nil, err
		}
		return res.Wave, nil
	default:
		return nil, models.NewValidationError("Unknown op " + msg.Op)
	}
}

// Outbound re-enriches outbound wave events through the session cache and
// drops created waves outside the session's wave type.
func (fs *feedSession) Outbound(ctx context.Context, data []byte) []byte {
	ev, err := notifications.DecodeEvent(data)
	if err != nil || !notifications.IsWaveEvent(ev.Type) || len(ev.Payload) == 0 {
		return data
	}
	var wave models.Wave
	if err := json.Unmarshal(ev.Payload, &wave); err != nil || wave.ID == 0 {
		return data
	}
	if ev.Type == notifications.EventWaveCreated && fs.waveType != "" && wave.WaveType != fs.waveType {
		return nil
	}
	fs.waves.Aggregator().EnrichOne(ctx, fs.profiles, &wave)
	out, err := notifications.Event{
		Type:      ev.Type,
		ClientRef: ev.ClientRef,
		Payload:   &wave,
		Error:     ev.Error,
	}.Encode()
	if err != nil {
		return data
	}
	return out
}

// Close forgets everything the session cached.
func (fs *feedSession) Close() {
	fs.profiles.Clear()
	fs.ledger.Reset()
}

func errorEvent(clientRef string, err error) notifications.Event {
	body := &notifications.EventError{Code: models.CodeInternal, Message: "Internal server error"}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		body.Code = appErr.Code
		body.Message = appErr.Message
	}
	return notifications.Event{Type: notifications.EventError, ClientRef: clientRef, Error: body}
}
