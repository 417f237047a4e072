package server

import (
	"io"

	"wavely/internal/models"
	"wavely/internal/service"

	"github.com/gofiber/fiber/v2"
)

// UploadMedia handles POST /api/media
// @Summary Upload wave media
// @Description Stores an image for use in a wave and returns its public URL.
// @Tags media
// @Accept mpfd
// @Produce json
// @Security BearerAuth
// @Param file formData file true "Image"
// @Success 201 {object} service.MediaResult
// @Failure 400 {object} models.ErrorResponse
// @Failure 502 {object} models.ErrorResponse
// @Router /media [post]
func (s *Server) UploadMedia(c *fiber.Ctx) error {
	return s.handleUpload(c, service.PurposeWave)
}

// UploadAvatar handles POST /api/users/me/avatar
// @Summary Upload a profile picture
// @Description Cropped to a square and set as the caller's profile image.
// @Tags users
// @Accept mpfd
// @Produce json
// @Security BearerAuth
// @Param file formData file true "Image"
// @Success 201 {object} service.MediaResult
// @Failure 400 {object} models.ErrorResponse
// @Router /users/me/avatar [post]
func (s *Server) UploadAvatar(c *fiber.Ctx) error {
	return s.handleUpload(c, service.PurposeProfile)
}

// UploadBanner handles POST /api/users/me/banner
// @Summary Upload a profile banner
// @Tags users
// @Accept mpfd
// @Produce json
// @Security BearerAuth
// @Param file formData file true "Image"
// @Success 201 {object} service.MediaResult
// @Failure 400 {object} models.ErrorResponse
// @Router /users/me/banner [post]
func (s *Server) UploadBanner(c *fiber.Ctx) error {
	return s.handleUpload(c, service.PurposeBanner)
}

func (s *Server) handleUpload(c *fiber.Ctx, purpose string) error {
	file, err := c.FormFile("file")
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("No file uploaded"))
	}

	src, err := file.Open()
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Unable to read uploaded file"))
	}
	defer func() { _ = src.Close() }()

	content, err := io.ReadAll(src)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Unable to read uploaded file"))
	}

	res, err := s.mediaService.Upload(c.UserContext(), service.UploadMediaInput{
		UserID:      currentUserID(c),
		Purpose:     purpose,
		Filename:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Content:     content,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}
