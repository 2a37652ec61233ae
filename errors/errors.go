// Package errors provides unified error handling for the transcription
// pipeline. It implements structured error types with error codes, HTTP
// status mapping, and retryable detection.
package errors

import (
	"fmt"
	"net/http"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// HTTPStatus is the recommended HTTP status code for this error.
	HTTPStatus int `json:"-"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Retryable:  IsRetryableCode(code),
	}
}

// --- Common Error Constructors ---

// RateLimited creates a new AppError for too many submissions.
func RateLimited() *AppError {
	return &AppError{
		Code: ErrCodeRateLimited, Message: "Too many submissions. Please wait and try again later.",
		HTTPStatus: http.StatusTooManyRequests, Retryable: true,
	}
}

// Forbidden creates a new AppError for rejected non-human traffic.
func Forbidden(reason string) *AppError {
	if reason == "" {
		reason = "You don't have permission to perform this action."
	}
	return &AppError{
		Code: ErrCodeForbidden, Message: reason,
		HTTPStatus: http.StatusForbidden, Retryable: false,
	}
}

// PayloadTooLarge creates a new AppError for an oversized upload.
func PayloadTooLarge(maxBytes int64) *AppError {
	return &AppError{
		Code: ErrCodePayloadTooLarge, Message: "The uploaded file is too large.",
		HTTPStatus: http.StatusRequestEntityTooLarge, Retryable: false,
		Details: map[string]any{"max_bytes": maxBytes},
	}
}

// InvalidFileType creates a new AppError for a non-audio upload.
func InvalidFileType(detected string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidFileType, Message: "The uploaded file is not a supported audio format.",
		HTTPStatus: http.StatusBadRequest, Retryable: false,
		Details: map[string]any{"detected_type": detected},
	}
}

// InsufficientStorage creates a new AppError when backing storage is near full.
func InsufficientStorage() *AppError {
	return &AppError{
		Code: ErrCodeInsufficientStorage, Message: "Insufficient storage to accept new uploads. Please try again later.",
		HTTPStatus: http.StatusInsufficientStorage, Retryable: true,
	}
}

// JobQuotaExceeded creates a new AppError when the tracked-job ceiling is hit.
func JobQuotaExceeded(ceiling int) *AppError {
	return &AppError{
		Code: ErrCodeJobQuotaExceeded, Message: "Too many tracked transcription jobs. Please try again later.",
		HTTPStatus: http.StatusInsufficientStorage, Retryable: true,
		Details: map[string]any{"ceiling": ceiling},
	}
}

// UploadError creates a new AppError for a storage persistence failure.
func UploadError(cause error) *AppError {
	return &AppError{
		Code: ErrCodeUploadError, Message: "Failed to store the uploaded file.",
		HTTPStatus: http.StatusInternalServerError, Retryable: true, Cause: cause,
	}
}

// MissingFile creates a new AppError for a submission without an audio file.
func MissingFile() *AppError {
	return &AppError{
		Code: ErrCodeMissingField, Message: "Missing required field: file",
		HTTPStatus: http.StatusBadRequest, Retryable: false,
		Details: map[string]any{"field": "file"},
	}
}

// NotFound creates a new AppError for a resource that was not found.
func NotFound(resource, id string) *AppError {
	details := map[string]any{"resource": resource}
	if id != "" {
		details["id"] = id
	}
	return &AppError{
		Code: ErrCodeNotFound, Message: fmt.Sprintf("The requested %s was not found.", resource),
		HTTPStatus: http.StatusNotFound, Retryable: false, Details: details,
	}
}

// InvalidInput creates a new AppError for invalid input.
func InvalidInput(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code: ErrCodeInvalidInput, Message: fmt.Sprintf("Invalid input: %s", reason),
		HTTPStatus: http.StatusBadRequest, Retryable: false, Details: details,
	}
}

// Unauthorized creates a new AppError for unauthorized access.
func Unauthorized(reason string) *AppError {
	if reason == "" {
		reason = "Authentication required."
	}
	return &AppError{
		Code: ErrCodeUnauthorized, Message: reason,
		HTTPStatus: http.StatusUnauthorized, Retryable: false,
	}
}

// Internal creates a new AppError for an internal server error.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "An unexpected error occurred. Please try again or contact support.",
		HTTPStatus: http.StatusInternalServerError, Retryable: false, Cause: cause,
	}
}

// ExternalServiceError creates a new AppError for an error from an external service.
func ExternalServiceError(service string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeExternalService, Message: fmt.Sprintf("The %s service encountered an error. Please try again.", service),
		HTTPStatus: http.StatusBadGateway, Retryable: true,
		Details: map[string]any{"service": service}, Cause: cause,
	}
}
