package common

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	ErrCodeInternal     = "INTERNAL_ERROR"
	ErrCodeBadRequest   = "BAD_REQUEST"
	ErrCodeValidation   = "VALIDATION_ERROR"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeForbidden    = "FORBIDDEN"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeConflict     = "CONFLICT"
	ErrCodePayment      = "PAYMENT_REQUIRED"
	ErrCodeRateLimited  = "RATE_LIMITED"
)

// AppError carries the HTTP status and client-safe message for a failure.
type AppError struct {
	Code       string      `json:"code"`
	Message    string      `json:"error"`
	StatusCode int         `json:"-"`
	Internal   error       `json:"-"`
	Details    interface{} `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Internal
}

func NewAppError(code, message string, statusCode int) *AppError {
	return &AppError{Code: code, Message: message, StatusCode: statusCode}
}

func BadRequest(message string) *AppError {
	return NewAppError(ErrCodeBadRequest, message, http.StatusBadRequest)
}

func Validation(message string, details interface{}) *AppError {
	e := NewAppError(ErrCodeValidation, message, http.StatusBadRequest)
	e.Details = details
	return e
}

func Unauthorized(message string) *AppError {
	return NewAppError(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

func Forbidden(message string) *AppError {
	return NewAppError(ErrCodeForbidden, message, http.StatusForbidden)
}

func NotFound(resource string) *AppError {
	return NewAppError(ErrCodeNotFound, resource+" not found", http.StatusNotFound)
}

func Conflict(message string) *AppError {
	return NewAppError(ErrCodeConflict, message, http.StatusConflict)
}

func PaymentRequired(message string) *AppError {
	return NewAppError(ErrCodePayment, message, http.StatusPaymentRequired)
}

func RateLimited() *AppError {
	return NewAppError(ErrCodeRateLimited, "Too many requests", http.StatusTooManyRequests)
}

func Internal(message string, err error) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: message, StatusCode: http.StatusInternalServerError, Internal: err}
}

// Fail writes err as a JSON error response and aborts the chain.
// Unknown errors become a generic 500.
func Fail(c *gin.Context, err error) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = Internal("Internal server error", err)
	}

	if appErr.StatusCode >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.Error(err)
		c.AbortWithStatusJSON(appErr.StatusCode, gin.H{"error": appErr.Message, "code": appErr.Code})
		return
	}

	c.AbortWithStatusJSON(appErr.StatusCode, appErr)
}

// NotFoundOr maps gorm's record-not-found to a 404 and anything else to a 500.
func NotFoundOr(err error, resource string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NotFound(resource)
	}
	return Internal("Failed to load "+strings.ToLower(resource), err)
}
