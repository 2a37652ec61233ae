package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Resource exhaustion errors (retryable; "try later")
const (
	// ErrCodeRateLimited indicates the client identity is over its submission budget.
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
	// ErrCodeInsufficientStorage indicates backing storage is near capacity.
	ErrCodeInsufficientStorage ErrorCode = "INSUFFICIENT_STORAGE"
	// ErrCodeJobQuotaExceeded indicates the tracked-job ceiling was reached.
	ErrCodeJobQuotaExceeded ErrorCode = "JOB_QUOTA_EXCEEDED"
)

// Client input errors (never enter the pipeline, no retry)
const (
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeMissingField indicates a required field is missing.
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"
	// ErrCodePayloadTooLarge indicates the upload exceeds the size ceiling.
	ErrCodePayloadTooLarge ErrorCode = "PAYLOAD_TOO_LARGE"
	// ErrCodeInvalidFileType indicates the upload is not an allowed audio type.
	ErrCodeInvalidFileType ErrorCode = "INVALID_FILE_TYPE"
	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
)

// Authentication/Authorization errors
const (
	// ErrCodeUnauthorized indicates the request is unauthorized.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrCodeForbidden indicates the request is forbidden.
	ErrCodeForbidden ErrorCode = "FORBIDDEN"
)

// Internal errors
const (
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	// ErrCodeUploadError indicates the uploaded file could not be persisted.
	ErrCodeUploadError ErrorCode = "UPLOAD_ERROR"
	// ErrCodeExternalService indicates an error from an external service.
	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeRateLimited:         true,
	ErrCodeInsufficientStorage: true,
	ErrCodeJobQuotaExceeded:    true,
	ErrCodeUploadError:         true,
	ErrCodeExternalService:     true,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
