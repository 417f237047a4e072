package server

import (
	"wavely/internal/models"
	"wavely/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreateWaveRequest is the body of POST /api/waves.
type CreateWaveRequest struct {
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	MediaURLs []string `json:"media_urls"`
	MediaType string   `json:"media_type"`
	WaveType  string   `json:"wave_type"`
	Rating    int      `json:"rating"`
	AnimeID   *int     `json:"anime_id,omitempty"`
}

// LikeResponse reports the caller's like state after a toggle.
type LikeResponse struct {
	Liked bool         `json:"liked"`
	Wave  *models.Wave `json:"wave"`
}

// GetWaves handles GET /api/waves
// @Summary List the feed
// @Description Newest first. following=true limits the feed to followed authors.
// @Tags waves
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Offset"
// @Param wave_type query string false "personal or community"
// @Param user_id query int false "Author filter"
// @Param following query bool false "Only followed authors"
// @Success 200 {array} models.Wave
// @Router /waves [get]
func (s *Server) GetWaves(c *fiber.Ctx) error {
	page := parsePagination(c, 20)
	authorID := c.QueryInt("user_id", 0)
	if authorID < 0 {
		return badRequest(c, "Invalid user ID")
	}

	waves, err := s.waveService.ListFeed(c.UserContext(), nil, service.ListFeedInput{
		ViewerID:  currentUserID(c),
		Limit:     page.Limit,
		Offset:    page.Offset,
		WaveType:  c.Query("wave_type"),
		UserID:    uint(authorID),
		Following: c.QueryBool("following", false),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(waves)
}

// GetWave handles GET /api/waves/:id
// @Summary Get a wave
// @Tags waves
// @Produce json
// @Security BearerAuth
// @Param id path int true "Wave ID"
// @Success 200 {object} models.Wave
// @Failure 404 {object} models.ErrorResponse
// @Router /waves/{id} [get]
func (s *Server) GetWave(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	wave, err := s.waveService.GetWave(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(wave)
}

// CreateWave handles POST /api/waves
// @Summary Post a wave
// @Tags waves
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateWaveRequest true "Wave"
// @Success 201 {object} models.Wave
// @Failure 400 {object} models.ErrorResponse
// @Router /waves [post]
func (s *Server) CreateWave(c *fiber.Ctx) error {
	var req CreateWaveRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	wave, err := s.waveService.CreateWave(c.UserContext(), service.CreateWaveInput{
		UserID:    currentUserID(c),
		Title:     req.Title,
		Content:   req.Content,
		MediaURLs: req.MediaURLs,
		MediaType: req.MediaType,
		WaveType:  req.WaveType,
		Rating:    req.Rating,
		AnimeID:   req.AnimeID,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(wave)
}

// DeleteWave handles DELETE /api/waves/:id
// @Summary Delete a wave
// @Description Only the author may delete a wave.
// @Tags waves
// @Produce json
// @Security BearerAuth
// @Param id path int true "Wave ID"
// @Success 200 {object} object{message=string}
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /waves/{id} [delete]
func (s *Server) DeleteWave(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.waveService.DeleteWave(c.UserContext(), id, currentUserID(c)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Wave deleted"})
}

// ToggleWaveLike handles POST /api/waves/:id/like
// @Summary Like or unlike a wave
// @Tags waves
// @Produce json
// @Security BearerAuth
// @Param id path int true "Wave ID"
// @Success 200 {object} LikeResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /waves/{id}/like [post]
func (s *Server) ToggleWaveLike(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	wave, liked, err := s.waveService.ToggleLike(c.UserContext(), id, currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(LikeResponse{Liked: liked, Wave: wave})
}

// RateWave handles PUT /api/waves/:id/rating
// @Summary Rate a community wave
// @Description Ratings run from 1 to 5. Rating again replaces the earlier score.
// @Tags waves
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Wave ID"
// @Param request body object{rating=int} true "Rating"
// @Success 200 {object} models.Wave
// @Failure 403 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Router /waves/{id}/rating [put]
func (s *Server) RateWave(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req struct {
		Rating int `json:"rating"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	wave, err := s.waveService.Rate(c.UserContext(), id, currentUserID(c), req.Rating)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(wave)
}

// RemoveWaveRating handles DELETE /api/waves/:id/rating
// @Summary Withdraw a rating
// @Tags waves
// @Produce json
// @Security BearerAuth
// @Param id path int true "Wave ID"
// @Success 200 {object} models.Wave
// @Router /waves/{id}/rating [delete]
func (s *Server) RemoveWaveRating(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	wave, err := s.waveService.RemoveRating(c.UserContext(), id, currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(wave)
}

// GetUserWaves handles GET /api/users/:id/waves
// @Summary List a user's waves
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Offset"
// @Success 200 {array} models.Wave
// @Failure 404 {object} models.ErrorResponse
// @Router /users/{id}/waves [get]
func (s *Server) GetUserWaves(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	page := parsePagination(c, 20)
	waves, err := s.waveService.ListUserWaves(c.UserContext(), id, page.Limit, page.Offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(waves)
}
