package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the classification of a pipeline failure
type ErrorType string

const (
	// ErrorTypeExtractionEmpty means a page produced no candidates.
	// It is informational and never aborts a run.
	ErrorTypeExtractionEmpty ErrorType = "extraction_empty"
	// ErrorTypeTransient covers timeouts, connection resets, 5xx and 429
	ErrorTypeTransient ErrorType = "transient"
	// ErrorTypeContentMismatch means the server answered with a markup page
	// where media was expected
	ErrorTypeContentMismatch ErrorType = "content_mismatch"
	// ErrorTypeValidation means the stored file failed a size floor
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypePermanent covers 4xx other than 429 and exhausted retries
	ErrorTypePermanent ErrorType = "permanent"
	ErrorTypeAuth      ErrorType = "auth"
	ErrorTypeNotFound  ErrorType = "not_found"
	ErrorTypeParsing   ErrorType = "parsing"
	ErrorTypeUnknown   ErrorType = "unknown"
)

// Error carries a classified failure together with the resource it concerns
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	URL     string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s error", e.Type)
	if e.Code != 0 {
		msg = fmt.Sprintf("%s (code %d)", msg, e.Code)
	}
	msg += ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error
func New(t ErrorType, url, message string) *Error {
	return &Error{Type: t, URL: url, Message: message}
}

// Wrap attaches a classification to an underlying error
func Wrap(t ErrorType, url string, err error, message string) *Error {
	return &Error{Type: t, URL: url, Message: message, Err: err}
}

// FromStatus builds an error for a non-success HTTP response
func FromStatus(code int, url string) *Error {
	return &Error{
		Type:    ClassifyStatus(code),
		Code:    code,
		URL:     url,
		Message: http.StatusText(code),
	}
}

// ClassifyStatus maps an HTTP status code onto the taxonomy
func ClassifyStatus(code int) ErrorType {
	switch {
	case code == 0:
		return ErrorTypeTransient
	case code == http.StatusTooManyRequests:
		return ErrorTypeTransient
	case code >= 500:
		return ErrorTypeTransient
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrorTypeAuth
	case code == http.StatusNotFound || code == http.StatusGone:
		return ErrorTypeNotFound
	case code >= 400:
		return ErrorTypePermanent
	default:
		return ErrorTypeUnknown
	}
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeTransient:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	return IsRetryable(ClassifyStatus(statusCode))
}

// TypeOf returns the classification of err, or ErrorTypeUnknown when err
// carries none
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// Is reports whether err carries the given classification
func Is(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}
