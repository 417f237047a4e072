package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"wavely/internal/middleware"
	"wavely/internal/models"
	"wavely/internal/service"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten tells a handler its helper already wrote the response.
// The handler returns nil so the error handler leaves the body alone.
var errResponseWritten = errors.New("response already written")

// ClientRefHeader lets an HTTP mutation tag the events it causes so the
// originating client can reconcile its provisional copy.
const ClientRefHeader = middleware.ClientRefHeader

const (
	maxClientRefLen = 128
	maxPageLimit    = 100
)

// Pagination is a limit/offset window from the query string.
type Pagination struct {
	Limit  int
	Offset int
}

// parsePagination reads ?limit and ?offset. A missing or non-positive limit
// becomes def; limits are capped at maxPageLimit.
func parsePagination(c *fiber.Ctx, def int) Pagination {
	limit := c.QueryInt("limit", def)
	if limit <= 0 {
		limit = def
	}
	return Pagination{
		Limit:  min(limit, maxPageLimit),
		Offset: max(c.QueryInt("offset", 0), 0),
	}
}

// parseID reads a positive numeric route parameter. On failure it has
// already answered 400 and returns errResponseWritten.
func (s *Server) parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(param), 10, 0)
	if err != nil || id == 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError(fmt.Sprintf("Invalid %s %q", param, c.Params(param))))
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// statusByCode maps service error codes onto HTTP statuses. Codes not listed
// are internal errors.
var statusByCode = map[string]int{
	models.CodeNotAuthenticated: fiber.StatusUnauthorized,
	models.CodeNotFound:         fiber.StatusNotFound,
	models.CodeParentNotFound:   fiber.StatusNotFound,
	models.CodeValidation:       fiber.StatusBadRequest,
	models.CodeEmptyContent:     fiber.StatusBadRequest,
	models.CodePermission:       fiber.StatusForbidden,
	models.CodeSelfRating:       fiber.StatusForbidden,
	models.CodeNotRatable:       fiber.StatusUnprocessableEntity,
	models.CodeRemoteWrite:      fiber.StatusBadGateway,
	models.CodeWriteConflict:    fiber.StatusConflict,
	models.CodeConflict:         fiber.StatusConflict,
	models.CodeUnavailable:      fiber.StatusServiceUnavailable,
}

func mapServiceError(err error) int {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		if status, ok := statusByCode[appErr.Code]; ok {
			return status
		}
	}
	return fiber.StatusInternalServerError
}

// respondError writes err with its mapped status. Server-side failures are
// logged with the request-scoped logger.
func respondError(c *fiber.Ctx, err error) error {
	status := mapServiceError(err)
	if status >= fiber.StatusInternalServerError {
		var appErr *models.AppError
		if !errors.As(err, &appErr) {
			err = models.NewInternalError(err)
		}
		middleware.Logger.ErrorContext(c.UserContext(), "request failed",
			"method", c.Method(),
			"path", c.Path(),
			"error", err.Error(),
		)
	}
	return models.RespondWithError(c, status, err)
}

func badRequest(c *fiber.Ctx, message string) error {
	return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError(message))
}

// currentUserID returns the user set by AuthRequired.
func currentUserID(c *fiber.Ctx) uint {
	id, _ := c.Locals("userID").(uint)
	return id
}

// ClientRef copies a bounded X-Client-Ref header into the request context.
func ClientRef() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ref := strings.TrimSpace(c.Get(ClientRefHeader))
		if ref != "" && len(ref) <= maxClientRefLen {
			c.SetUserContext(service.WithClientRef(c.UserContext(), ref))
		}
		return c.Next()
	}
}
