// Package errors provides structured errors for the reconciliation engine.
// Only configuration errors are fatal; source errors are recovered locally
// by the caller and exist mainly to carry provenance into logs.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Base error types
var (
	ErrNotFound         = errors.New("not found")
	ErrTimeout          = errors.New("timeout")
	ErrInvalidInput     = errors.New("invalid input")
	ErrConnectionFailed = errors.New("connection failed")
	ErrMissingConfig    = errors.New("missing configuration")
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeConnection ErrorType = "connection"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeAPI        ErrorType = "api"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeConfig     ErrorType = "config"
)

// SourceError is a structured error for operations against one payment
// source (a settlement network, the payment processor, or the price feed).
type SourceError struct {
	Type       ErrorType
	Op         string // Operation that failed (e.g. "token_transfers", "search_customers")
	Source     string // Source the operation ran against (network name, "stripe", "pricefeed")
	Err        error  // Underlying error
	StatusCode int    // HTTP status code if applicable
	Timestamp  time.Time
	Retryable  bool
}

func (e *SourceError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("%s failed on %s: %v", e.Op, e.Source, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is interface
func (e *SourceError) Is(target error) bool {
	if target == nil {
		return false
	}
	switch target {
	case ErrNotFound:
		return e.Type == ErrorTypeNotFound
	case ErrTimeout:
		return e.Type == ErrorTypeTimeout
	case ErrConnectionFailed:
		return e.Type == ErrorTypeConnection
	}
	return errors.Is(e.Err, target)
}

// NewSourceError creates a new SourceError
func NewSourceError(errorType ErrorType, op, source string, err error) *SourceError {
	return &SourceError{
		Type:      errorType,
		Op:        op,
		Source:    source,
		Err:       err,
		Timestamp: time.Now(),
		Retryable: isRetryable(errorType, err),
	}
}

// WithStatusCode adds an HTTP status code to the error
func (e *SourceError) WithStatusCode(code int) *SourceError {
	e.StatusCode = code
	if code >= 500 || code == 429 || code == 408 {
		e.Retryable = true
	} else if code >= 400 && code < 500 {
		e.Retryable = false
	}
	return e
}

func isRetryable(errorType ErrorType, err error) bool {
	switch errorType {
	case ErrorTypeConnection, ErrorTypeTimeout:
		return true
	case ErrorTypeValidation, ErrorTypeNotFound, ErrorTypeConfig:
		return false
	default:
		if err != nil {
			return !errors.Is(err, ErrInvalidInput)
		}
		return true
	}
}

// WrapConnectionError wraps a connection error with source context
func WrapConnectionError(op, source string, err error) error {
	return NewSourceError(ErrorTypeConnection, op, source, err)
}

// WrapAPIError wraps a provider API error with source context
func WrapAPIError(op, source string, err error, statusCode int) error {
	return NewSourceError(ErrorTypeAPI, op, source, err).WithStatusCode(statusCode)
}

// WrapTimeoutError wraps a timeout with source context
func WrapTimeoutError(op, source string, err error) error {
	return NewSourceError(ErrorTypeTimeout, op, source, err)
}

// IsRetryableError checks if an error should be retried
func IsRetryableError(err error) bool {
	var srcErr *SourceError
	if errors.As(err, &srcErr) {
		return srcErr.Retryable
	}
	return false
}
