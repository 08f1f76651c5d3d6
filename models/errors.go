package models

import (
	"errors"
	"fmt"
)

// Error codes used in audit records, API responses and internal error handling.
const (
	ErrCodeFetchTimeout    = "FETCH_TIMEOUT"
	ErrCodeFetchHTTP       = "FETCH_HTTP_ERROR"
	ErrCodeFetchConnection = "FETCH_CONNECTION_ERROR"
	ErrCodeExtraction      = "EXTRACTION_FAILED"
	ErrCodeRenderFailed    = "RENDER_FAILED"
	ErrCodeBrowserCrash    = "BROWSER_CRASH"
	ErrCodeInvalidInput    = "INVALID_INPUT"
	ErrCodeRateLimited     = "RATE_LIMITED"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeInternal        = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AuditError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type AuditError struct {
	Code       string
	Message    string
	StatusCode int   // HTTP status for FETCH_HTTP_ERROR, 0 otherwise
	Err        error // wrapped original error
}

func (e *AuditError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AuditError) Unwrap() error {
	return e.Err
}

// NewAuditError creates a new AuditError.
func NewAuditError(code, message string, err error) *AuditError {
	return &AuditError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *AuditError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// Transient reports whether a fetch failure is worth retrying: timeouts,
// connection errors, HTTP 429 and HTTP 5xx. Other 4xx responses are permanent.
func (e *AuditError) Transient() bool {
	switch e.Code {
	case ErrCodeFetchTimeout, ErrCodeFetchConnection:
		return true
	case ErrCodeFetchHTTP:
		return e.StatusCode == 429 || e.StatusCode >= 500
	default:
		return false
	}
}

// AsAuditError unwraps err into an *AuditError, wrapping unknown errors as
// INTERNAL_ERROR so callers always get a code.
func AsAuditError(err error) *AuditError {
	if err == nil {
		return nil
	}
	var ae *AuditError
	if errors.As(err, &ae) {
		return ae
	}
	return NewAuditError(ErrCodeInternal, err.Error(), err)
}
