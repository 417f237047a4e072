package server

import (
	"errors"

	"wavely/internal/cache"
	"wavely/internal/identity"
	"wavely/internal/middleware"
	"wavely/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// IssueWSTicket handles POST /api/ws/ticket
// @Summary Issue a websocket ticket
// @Description Returns a single-use ticket for GET /api/ws/feed?ticket=...
// @Tags realtime
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{ticket=string,expires_in=int}
// @Failure 503 {object} models.ErrorResponse
// @Router /ws/ticket [post]
func (s *Server) IssueWSTicket(c *fiber.Ctx) error {
	ticket, err := s.tokens.IssueTicket(c.UserContext(), currentUserID(c))
	if errors.Is(err, identity.ErrNoRedis) {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			&models.AppError{Code: models.CodeUnavailable, Message: "Realtime feed is not available"})
	}
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"ticket":     ticket,
		"expires_in": int(cache.WSTicketTTL.Seconds()),
	})
}

// WebSocketFeedHandler streams the live feed and accepts optimistic
// mutations over GET /api/ws/feed.
func (s *Server) WebSocketFeedHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, ok := conn.Locals("userID").(uint)
		if !ok || userID == 0 {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","error":{"code":"NOT_AUTHENTICATED","message":"unauthorized"}}`))
			_ = conn.Close()
			return
		}

		client, err := s.hub.Attach(userID, conn)
		if err != nil {
			middleware.Logger.Warn("feed socket refused", "user_id", userID, "error", err)
			ev, _ := errorEvent("", &models.AppError{Code: models.CodeUnavailable, Message: err.Error()}).Encode()
			_ = conn.WriteMessage(websocket.TextMessage, ev)
			_ = conn.Close()
			return
		}

		fs := s.newFeedSession(userID, conn.Query("wave_type"), client.SendEvent)
		// The queue is buffered, so the snapshot waits there until Serve
		// starts writing.
		if err := fs.snapshot(client.Context(), conn.Query("following") == "true"); err != nil {
			middleware.Logger.Warn("feed snapshot failed", "user_id", userID, "error", err)
		}
		client.Serve(fs)
	})
}
