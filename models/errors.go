package models

import "fmt"

// Error codes used in API responses and internal error handling.
const (
	ErrCodeValidation   = "VALIDATION_FAILED"
	ErrCodeNetwork      = "NETWORK_FAILED"
	ErrCodeTimeout      = "CAPTURE_TIMEOUT"
	ErrCodeAssetFetch   = "ASSET_FETCH_FAILED"
	ErrCodeAnalysis     = "ANALYSIS_FAILED"
	ErrCodeConversion   = "CONVERSION_FAILED"
	ErrCodeBrowserCrash = "BROWSER_CRASH"
	ErrCodeCancelled    = "CANCELLED"
	ErrCodeConflict     = "JOB_CONFLICT"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CloneError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
//
// Fatal reports whether the error aborts the whole job. Non-fatal errors
// are accumulated as issues on the project record instead.
type CloneError struct {
	Code    string
	Message string
	Fatal   bool
	Err     error // wrapped original error
}

func (e *CloneError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CloneError) Unwrap() error {
	return e.Err
}

// NewCloneError creates a fatal CloneError.
func NewCloneError(code, message string, err error) *CloneError {
	return &CloneError{Code: code, Message: message, Fatal: true, Err: err}
}

// NewSoftError creates a non-fatal CloneError. Soft errors are recorded as
// issues on the project record rather than failing the job.
func NewSoftError(code, message string, err error) *CloneError {
	return &CloneError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *CloneError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}
