package domain

import (
	"errors"
	"fmt"
	"time"
)

// Session and storage errors
var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrAssessmentNotFound   = errors.New("assessment not found")
	ErrSessionComplete      = errors.New("session already completed")
	ErrAlreadyExists        = errors.New("record already exists")
	ErrReasoningUnavailable = errors.New("reasoning service unavailable")
	ErrCatalogueExhausted   = errors.New("question catalogue exhausted")
	ErrStorage              = errors.New("assessment storage failed")
	ErrRender               = errors.New("report rendering failed")
)

// ServiceError represents a standardized error response
type ServiceError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	CodeInvalidInput   = "INVALID_INPUT"
	CodeValidation     = "VALIDATION_ERROR"
	CodeNotFound       = "NOT_FOUND"
	CodeConflict       = "CONFLICT"
	CodeStorage        = "STORAGE_ERROR"
	CodeRender         = "RENDER_ERROR"
	CodeInternalServer = "INTERNAL_SERVER_ERROR"
)

// ValidationError represents a rejected input. The session it targeted is unchanged.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewServiceError creates a new ServiceError with timestamp
func NewServiceError(code, message, details, requestID string) *ServiceError {
	return &ServiceError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// IsValidationError reports whether err wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ErrorCode maps an error to the code reported by the API and tool surfaces.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case IsValidationError(err):
		return CodeValidation
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrAssessmentNotFound):
		return CodeNotFound
	case errors.Is(err, ErrSessionComplete), errors.Is(err, ErrAlreadyExists):
		return CodeConflict
	case errors.Is(err, ErrStorage):
		return CodeStorage
	case errors.Is(err, ErrRender):
		return CodeRender
	default:
		return CodeInternalServer
	}
}
