package server

import (
	"errors"
	"strings"

	"wavely/internal/identity"
	"wavely/internal/middleware"
	"wavely/internal/models"
	"wavely/internal/service"

	"github.com/gofiber/fiber/v2"
)

// AuthResponse is returned by every sign-in endpoint.
type AuthResponse struct {
	Token   string       `json:"token"`
	User    *models.User `json:"user"`
	Created bool         `json:"created,omitempty"`
}

// Signup handles POST /api/auth/signup
// @Summary User signup
// @Description Register a new user account
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{username=string,email=string,password=string} true "Signup request"
// @Success 201 {object} AuthResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /auth/signup [post]
func (s *Server) Signup(c *fiber.Ctx) error {
	var req service.SignupInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	user, err := s.userService.Signup(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}
	return s.respondWithSession(c, fiber.StatusCreated, user, false)
}

// Login handles POST /api/auth/login
// @Summary User login
// @Description Authenticate with email and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{email=string,password=string} true "Login credentials"
// @Success 200 {object} AuthResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/login [post]
func (s *Server) Login(c *fiber.Ctx) error {
	var req service.LoginInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	user, err := s.userService.Login(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}
	return s.respondWithSession(c, fiber.StatusOK, user, false)
}

// FirebaseLogin handles POST /api/auth/firebase
// @Summary Sign in with Firebase
// @Description Exchange a Firebase ID token for a session. The profile is created on first sign-in.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{id_token=string} true "Firebase ID token"
// @Success 200 {object} AuthResponse
// @Success 201 {object} AuthResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /auth/firebase [post]
func (s *Server) FirebaseLogin(c *fiber.Ctx) error {
	if s.verifier == nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			&models.AppError{Code: models.CodeUnavailable, Message: "Firebase sign-in is not configured"})
	}

	var req struct {
		IDToken string `json:"id_token"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if strings.TrimSpace(req.IDToken) == "" {
		return badRequest(c, "id_token is required")
	}

	ctx := c.UserContext()
	ext, err := s.verifier.Verify(ctx, req.IDToken)
	if err != nil {
		middleware.Logger.WarnContext(ctx, "firebase token rejected", "error", err.Error())
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			&models.AppError{Code: models.CodeNotAuthenticated, Message: "Invalid Firebase token"})
	}

	user, created, err := s.userService.EnsureProfile(ctx, ext)
	if err != nil {
		return respondError(c, err)
	}
	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return s.respondWithSession(c, status, user, created)
}

// GetSession handles GET /api/auth/session
// @Summary Current session
// @Description Returns the signed-in user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{user=models.User,expires_at=string}
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/session [get]
func (s *Server) GetSession(c *fiber.Ctx) error {
	user, err := s.userService.GetProfile(c.UserContext(), currentUserID(c))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// The account behind a still-valid token is gone.
			return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewNotAuthenticatedError())
		}
		return respondError(c, err)
	}

	resp := fiber.Map{"user": user}
	if claims, ok := c.Locals("claims").(*identity.Claims); ok {
		resp["expires_at"] = claims.ExpiresAt
	}
	return c.JSON(resp)
}

// Logout handles POST /api/auth/logout
// @Summary Logout
// @Description Revokes the current session token
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{message=string}
// @Router /auth/logout [post]
func (s *Server) Logout(c *fiber.Ctx) error {
	claims, _ := c.Locals("claims").(*identity.Claims)
	if err := s.tokens.Revoke(c.UserContext(), claims); err != nil {
		// Without Redis the token simply runs to expiry.
		middleware.Logger.WarnContext(c.UserContext(), "token revocation failed", "error", err.Error())
	}
	return c.JSON(fiber.Map{"message": "Logged out"})
}

func (s *Server) respondWithSession(c *fiber.Ctx, status int, user *models.User, created bool) error {
	token, err := s.tokens.Issue(user.ID, user.Username)
	if err != nil {
		return respondError(c, models.NewInternalError(err))
	}
	return c.Status(status).JSON(AuthResponse{Token: token, User: user, Created: created})
}
