package models

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Error codes carried by AppError. Handlers map them to HTTP statuses.
const (
	CodeNotAuthenticated = "NOT_AUTHENTICATED"
	CodeNotFound         = "NOT_FOUND"
	CodeParentNotFound   = "PARENT_NOT_FOUND"
	CodeValidation       = "VALIDATION_ERROR"
	CodeEmptyContent     = "EMPTY_CONTENT"
	CodePermission       = "PERMISSION_DENIED"
	CodeNotRatable       = "NOT_RATABLE"
	CodeSelfRating       = "SELF_RATING"
	CodeRemoteWrite      = "REMOTE_WRITE_ERROR"
	CodeWriteConflict    = "WRITE_CONFLICT"
	CodeConflict         = "CONFLICT"
	CodeInternal         = "INTERNAL_ERROR"
	CodeUnavailable      = "UNAVAILABLE"
)

// Sentinels for errors.Is checks. Matching is by Code, so any AppError with
// the same code satisfies them.
var (
	ErrNotAuthenticated = &AppError{Code: CodeNotAuthenticated, Message: "authentication required"}
	ErrNotFound         = &AppError{Code: CodeNotFound, Message: "resource not found"}
	ErrPermission       = &AppError{Code: CodePermission, Message: "permission denied"}
	ErrValidation       = &AppError{Code: CodeValidation, Message: "validation failed"}
	ErrConflict         = &AppError{Code: CodeConflict, Message: "conflict"}
	ErrParentNotFound   = &AppError{Code: CodeParentNotFound, Message: "parent comment not found"}
	ErrEmptyContent     = &AppError{Code: CodeEmptyContent, Message: "content cannot be empty"}
	ErrNotRatable       = &AppError{Code: CodeNotRatable, Message: "only community waves can be rated"}
	ErrSelfRating       = &AppError{Code: CodeSelfRating, Message: "you cannot rate your own wave"}
	ErrWriteConflict    = &AppError{Code: CodeWriteConflict, Message: "wave was modified concurrently, please retry"}
)

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// AppError represents a custom application error
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError with the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func NewNotAuthenticatedError() *AppError {
	return &AppError{Code: CodeNotAuthenticated, Message: "authentication required"}
}

func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewParentNotFoundError(parentID string) *AppError {
	return &AppError{
		Code:    CodeParentNotFound,
		Message: fmt.Sprintf("parent comment %s not found", parentID),
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
	}
}

func NewEmptyContentError() *AppError {
	return &AppError{Code: CodeEmptyContent, Message: "content cannot be empty"}
}

func NewPermissionError(message string) *AppError {
	return &AppError{
		Code:    CodePermission,
		Message: message,
	}
}

func NewNotRatableError() *AppError {
	return &AppError{Code: CodeNotRatable, Message: "only community waves can be rated"}
}

func NewSelfRatingError() *AppError {
	return &AppError{Code: CodeSelfRating, Message: "you cannot rate your own wave"}
}

func NewRemoteWriteError(err error) *AppError {
	return &AppError{
		Code:    CodeRemoteWrite,
		Message: "failed to write to the data store",
		Err:     err,
	}
}

func NewWriteConflictError(attempts int) *AppError {
	return &AppError{
		Code:    CodeWriteConflict,
		Message: fmt.Sprintf("wave was modified concurrently, gave up after %d attempts", attempts),
	}
}

func NewConflictError(message string) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "Internal server error",
		Err:     err,
	}
}

// RespondWithError creates a standardized error response
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	var response ErrorResponse

	var appErr *AppError
	if errors.As(err, &appErr) {
		response = ErrorResponse{
			Error: appErr.Message,
			Code:  appErr.Code,
		}
		if appErr.Err != nil && appErr.Code != CodeInternal {
			response.Details = appErr.Err.Error()
		}
	} else {
		response = ErrorResponse{
			Error: err.Error(),
		}
	}

	return c.Status(status).JSON(response)
}
