package server

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

type commentRequest struct {
	Content string `json:"content"`
}

func commentIDParam(c *fiber.Ctx) (string, bool) {
	id := strings.TrimSpace(c.Params("commentId"))
	if id == "" {
		_ = badRequest(c, "Invalid comment ID")
		return "", false
	}
	return id, true
}

// GetComments handles GET /api/waves/:id/comments
// @Summary List comment threads
// @Description Top-level comments oldest first, each with its replies.
// @Tags comments
// @Produce json
// @Security BearerAuth
// @Param id path int true "Wave ID"
// @Success 200 {array} models.CommentThread
// @Failure 404 {object} models.ErrorResponse
// @Router /waves/{id}/comments [get]
func (s *Server) GetComments(c *fiber.Ctx) error {
	waveID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	threads, err := s.commentService.ListThreads(c.UserContext(), waveID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(threads)
}

// CreateComment handles POST /api/waves/:id/comments
// @Summary Comment on a wave
// @Tags comments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Wave ID"
// @Param request body object{content=string} true "Comment"
// @Success 201 {object} service.CommentResult
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /waves/{id}/comments [post]
func (s *Server) CreateComment(c *fiber.Ctx) error {
	waveID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req commentRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	res, err := s.commentService.AddComment(c.UserContext(), waveID, req.Content, currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// CreateReply handles POST /api/waves/:id/comments/:commentId/replies
// @Summary Reply to a comment
// @Description A reply to a reply is attached to the top-level comment.
// @Tags comments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Wave ID"
// @Param commentId path string true "Comment ID"
// @Param request body object{content=string} true "Reply"
// @Success 201 {object} service.CommentResult
// @Failure 404 {object} models.ErrorResponse
// @Router /waves/{id}/comments/{commentId}/replies [post]
func (s *Server) CreateReply(c *fiber.Ctx) error {
	waveID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	parentID, ok := commentIDParam(c)
	if !ok {
		return nil
	}
	var req commentRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	res, err := s.commentService.AddReply(c.UserContext(), waveID, parentID, req.Content, currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// ToggleCommentLike handles POST /api/waves/:id/comments/:commentId/like
// @Summary Like or unlike a comment
// @Tags comments
// @Produce json
// @Security BearerAuth
// @Param id path int true "Wave ID"
// @Param commentId path string true "Comment ID"
// @Success 200 {object} service.CommentLikeResult
// @Failure 404 {object} models.ErrorResponse
// @Router /waves/{id}/comments/{commentId}/like [post]
func (s *Server) ToggleCommentLike(c *fiber.Ctx) error {
	waveID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	commentID, ok := commentIDParam(c)
	if !ok {
		return nil
	}

	res, err := s.commentService.ToggleLike(c.UserContext(), waveID, commentID, currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// DeleteComment handles DELETE /api/waves/:id/comments/:commentId
// @Summary Delete a comment
// @Description The comment author or the wave author may delete. Replies go with their parent.
// @Tags comments
// @Produce json
// @Security BearerAuth
// @Param id path int true "Wave ID"
// @Param commentId path string true "Comment ID"
// @Success 200 {object} service.CommentDeleteResult
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /waves/{id}/comments/{commentId} [delete]
func (s *Server) DeleteComment(c *fiber.Ctx) error {
	waveID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	commentID, ok := commentIDParam(c)
	if !ok {
		return nil
	}

	res, err := s.commentService.DeleteComment(c.UserContext(), waveID, commentID, currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}
