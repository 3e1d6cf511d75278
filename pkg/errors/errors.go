package errors

import (
	"fmt"
	"net/http"
)

// Stable error codes surfaced to API clients
const (
	CodeNotFound           = "NOT_FOUND"
	CodeForbidden          = "FORBIDDEN"
	CodeFailedPrecondition = "FAILED_PRECONDITION"
	CodeInsufficientFunds  = "INSUFFICIENT_FUNDS"
	CodeInvalidArgument    = "INVALID_ARGUMENT"
	CodeUpstreamFailure    = "UPSTREAM_FAILURE"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeConflict           = "CONFLICT"
	CodeInternal           = "INTERNAL_ERROR"
)

// AppError represents an application error with HTTP status code and error code
type AppError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// NewError creates a new application error
func NewError(statusCode int, code string, message string) *AppError {
	return &AppError{
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(message string) *AppError {
	return NewError(http.StatusNotFound, CodeNotFound, message)
}

// NewForbiddenError creates a 403 Forbidden error
func NewForbiddenError(message string) *AppError {
	return NewError(http.StatusForbidden, CodeForbidden, message)
}

// NewFailedPreconditionError creates a 400 error for operations attempted
// against state that no longer supports them (inactive bot, empty message)
func NewFailedPreconditionError(message string) *AppError {
	return NewError(http.StatusBadRequest, CodeFailedPrecondition, message)
}

// NewInsufficientFundsError creates a 402 Payment Required error
func NewInsufficientFundsError(message string) *AppError {
	return NewError(http.StatusPaymentRequired, CodeInsufficientFunds, message)
}

// NewInvalidArgumentError creates a 400 Bad Request error
func NewInvalidArgumentError(message string) *AppError {
	return NewError(http.StatusBadRequest, CodeInvalidArgument, message)
}

// NewUpstreamFailureError creates a 502 Bad Gateway error for provider faults
func NewUpstreamFailureError(message string) *AppError {
	return NewError(http.StatusBadGateway, CodeUpstreamFailure, message)
}

// NewUnauthorizedError creates a 401 Unauthorized error
func NewUnauthorizedError(message string) *AppError {
	return NewError(http.StatusUnauthorized, CodeUnauthorized, message)
}

// NewConflictError creates a 409 Conflict error
func NewConflictError(message string) *AppError {
	return NewError(http.StatusConflict, CodeConflict, message)
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string) *AppError {
	return NewError(http.StatusInternalServerError, CodeInternal, message)
}

// IsCode reports whether err is an AppError carrying the given code
func IsCode(err error, code string) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Code == code
}

// FromError converts a standard error to an AppError.
// AppErrors pass through unchanged; anything else becomes an internal error.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return NewInternalError(fmt.Sprintf("An unexpected error occurred: %s", err.Error()))
}

// GetStatusCode extracts the HTTP status code, 500 if not an AppError
func GetStatusCode(err error) int {
	if appErr, ok := err.(*AppError); ok {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
