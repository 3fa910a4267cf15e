// Package apierr provides a standardized error format for the broker's HTTP
// surface (token issuance and the upgrade gate).
//
// Error Structure:
//   - Code: Machine-readable error identifier (e.g., "INVALID_CREDENTIALS")
//   - Message: Human-readable error message
//   - Details: Optional additional context
//   - StatusCode: HTTP status code
//
// Usage:
//
//	return apierr.InvalidCredentials()
//	return apierr.Unauthorized("token required")
//	c.JSON(err.StatusCode, err.ToResponse())
package apierr

import (
	"fmt"
	"net/http"
)

// AppError represents a standardized application error with HTTP context.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	StatusCode int    `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorResponse is the JSON shape written to HTTP clients.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// Error codes used by the token service and upgrade gate.
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeTokenExpired       = "TOKEN_EXPIRED"
	ErrCodeTokenInvalid       = "TOKEN_INVALID"
	ErrCodeInternalServer     = "INTERNAL_SERVER_ERROR"
)

func statusForCode(code string) int {
	switch code {
	case ErrCodeBadRequest:
		return http.StatusBadRequest
	case ErrCodeUnauthorized, ErrCodeInvalidCredentials, ErrCodeTokenExpired, ErrCodeTokenInvalid:
		return http.StatusUnauthorized
	case ErrCodeInternalServer:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// New creates a new AppError with a status code derived from its code.
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message, StatusCode: statusForCode(code)}
}

// Wrap attaches an underlying error's message as Details.
func Wrap(code, message string, err error) *AppError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &AppError{Code: code, Message: message, Details: details, StatusCode: statusForCode(code)}
}

// ToResponse converts an AppError to its wire representation.
func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{Error: e.Code, Message: e.Message, Code: e.Code, Details: e.Details}
}

func BadRequest(message string) *AppError { return New(ErrCodeBadRequest, message) }

func Unauthorized(message string) *AppError { return New(ErrCodeUnauthorized, message) }

func InvalidCredentials() *AppError {
	return New(ErrCodeInvalidCredentials, "invalid username or password")
}

func TokenExpired() *AppError { return New(ErrCodeTokenExpired, "token has expired") }

func TokenInvalid(err error) *AppError {
	return Wrap(ErrCodeTokenInvalid, "invalid authentication token", err)
}

func InternalServer(message string) *AppError { return New(ErrCodeInternalServer, message) }
