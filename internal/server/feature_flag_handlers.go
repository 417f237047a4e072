package server

import (
	"strings"

	"wavely/internal/featureflags"
	"wavely/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetFeatureFlags returns configured feature flags and evaluated state for current user.
// @Summary Feature flags
// @Tags meta
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{raw=map[string]string,evaluated=map[string]bool}
// @Router /feature-flags [get]
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	if s.featureFlags == nil {
		return c.JSON(fiber.Map{
			"raw":       map[string]string{},
			"evaluated": map[string]bool{},
		})
	}

	return c.JSON(fiber.Map{
		"raw":       s.featureFlags.Raw(),
		"evaluated": s.featureFlags.Snapshot(currentUserID(c)),
	})
}

// SearchAnime handles GET /api/anime/search?q=
// @Summary Search the anime catalogue
// @Description Available when the anime_metadata flag is on.
// @Tags anime
// @Produce json
// @Security BearerAuth
// @Param q query string true "Search text"
// @Param limit query int false "Results (max 25)"
// @Success 200 {array} models.AnimeMetadata
// @Failure 404 {object} models.ErrorResponse
// @Failure 502 {object} models.ErrorResponse
// @Router /anime/search [get]
func (s *Server) SearchAnime(c *fiber.Ctx) error {
	if s.anime == nil || !s.featureFlags.Enabled(featureflags.AnimeMetadata, currentUserID(c)) {
		return models.RespondWithError(c, fiber.StatusNotFound,
			&models.AppError{Code: models.CodeNotFound, Message: "Anime search is not available"})
	}
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		return badRequest(c, "Search query is required")
	}

	results, err := s.anime.Search(c.UserContext(), q, c.QueryInt("limit", 10))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(results)
}
