package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"

	"github.com/qline/queue-service/internal/domain"
)

// DomainError standardizes application errors at the transport edge.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// queueErrorStatus maps stable domain error codes to HTTP statuses. The
// domain layer never sees transport concerns; this table is the only
// place where its codes meet HTTP.
var queueErrorStatus = map[domain.ErrorCode]int{
	domain.ErrCodeInvalidName:      http.StatusBadRequest,
	domain.ErrCodeInvalidSlug:      http.StatusBadRequest,
	domain.ErrCodeQueueNotActive:   http.StatusConflict,
	domain.ErrCodeQueuePaused:      http.StatusConflict,
	domain.ErrCodeQueueFull:        http.StatusConflict,
	domain.ErrCodeQueueEmpty:       http.StatusConflict,
	domain.ErrCodeNotCalled:        http.StatusConflict,
	domain.ErrCodeCustomerNotFound: http.StatusNotFound,
	domain.ErrCodeAlreadyCompleted: http.StatusConflict,
	domain.ErrCodeConflict:         http.StatusConflict,
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	var queueErr *domain.Error
	if errors.As(err, &queueErr) {
		status, ok := queueErrorStatus[queueErr.Code]
		if !ok {
			status = http.StatusBadRequest
		}
		return &DomainError{
			Code:       string(queueErr.Code),
			Message:    queueErr.Message,
			HTTPStatus: status,
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
