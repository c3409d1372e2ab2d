// Package errors defines the structured error types shared by the enmassa
// harvest and download pipeline.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Sentinel errors for common pipeline scenarios.
// These can be used with errors.Is() for error comparison.
var (
	// ErrInvalidURL is returned when a provided URL is malformed or invalid.
	ErrInvalidURL = errors.New("invalid URL provided")

	// ErrProgramNotFound is returned when a program slug cannot be resolved
	// against the catalog index.
	ErrProgramNotFound = errors.New("program not found in catalog")

	// ErrInsufficientSpace is returned when there is not enough disk space to
	// hold the planned downloads.
	ErrInsufficientSpace = errors.New("insufficient disk space")

	// ErrNetworkError is returned for general network-related errors.
	ErrNetworkError = errors.New("network error occurred")
)

const unknownValue = "unknown"

// ErrorCode classifies the failures that can occur while harvesting,
// resolving metadata, or transferring assets.
type ErrorCode int

const (
	// CodeUnknown represents an unknown or unclassified error.
	CodeUnknown ErrorCode = iota

	// CodeInvalidURL represents errors related to malformed or invalid URLs.
	CodeInvalidURL

	// CodeNetworkError represents transient network-related errors.
	CodeNetworkError

	// CodeTimeout represents connect or read timeouts.
	CodeTimeout

	// CodeServerError represents server-side errors (5xx HTTP status codes).
	CodeServerError

	// CodeClientError represents client-side errors (4xx HTTP status codes).
	CodeClientError

	// CodeNotFound represents errors when a remote resource does not exist.
	CodeNotFound

	// CodeRangeIgnored represents a server answering a ranged request with
	// full content. The transfer restarts from zero; this is a degraded
	// condition, not a failure.
	CodeRangeIgnored

	// CodeRangeSatisfied represents a range-not-satisfiable answer: the
	// partial file already holds the complete resource.
	CodeRangeSatisfied

	// CodeRetriesExhausted represents an operation that failed after all
	// configured retry attempts.
	CodeRetriesExhausted

	// CodeMalformedMetadata represents a media record that could not be
	// normalized into usable variants.
	CodeMalformedMetadata

	// CodeFilesystem represents local filesystem errors while writing or
	// finalizing a file.
	CodeFilesystem

	// CodeInsufficientSpace represents errors due to lack of disk space.
	CodeInsufficientSpace

	// CodeCancelled represents errors when the run is cancelled.
	CodeCancelled
)

// String returns a string representation of the error code.
func (c ErrorCode) String() string {
	switch c {
	case CodeUnknown:
		return "unknown"
	case CodeInvalidURL:
		return "invalid_url"
	case CodeNetworkError:
		return "network_error"
	case CodeTimeout:
		return "timeout"
	case CodeServerError:
		return "server_error"
	case CodeClientError:
		return "client_error"
	case CodeNotFound:
		return "not_found"
	case CodeRangeIgnored:
		return "range_ignored"
	case CodeRangeSatisfied:
		return "range_satisfied"
	case CodeRetriesExhausted:
		return "retries_exhausted"
	case CodeMalformedMetadata:
		return "malformed_metadata"
	case CodeFilesystem:
		return "filesystem_error"
	case CodeInsufficientSpace:
		return "insufficient_space"
	case CodeCancelled:
		return "cancelled"
	default:
		return unknownValue
	}
}

// PipelineError represents a structured error from any stage of the pipeline.
// It carries enough context to decide on retry and to report per-item
// failures without string matching.
type PipelineError struct {
	// Code represents the type of error that occurred.
	Code ErrorCode

	// Message is a user-friendly error message.
	Message string

	// Details contains technical details for debugging.
	Details string

	// URL is the source URL that caused the error, if applicable.
	URL string

	// ChapterID is the catalog item involved, if applicable.
	ChapterID int64

	// Underlying is the original error that caused this one.
	Underlying error

	// Retryable indicates whether this condition might succeed if retried.
	Retryable bool

	// HTTPStatusCode contains the HTTP status code if the error is
	// HTTP-related.
	HTTPStatusCode int

	// BytesTransferred indicates how many bytes were successfully
	// transferred before the error occurred.
	BytesTransferred int64
}

// Error implements the error interface for PipelineError.
func (e *PipelineError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Underlying != nil {
		return e.Underlying.Error()
	}

	return "pipeline error occurred"
}

// Unwrap returns the underlying error for error unwrapping support.
func (e *PipelineError) Unwrap() error {
	return e.Underlying
}

// Is implements error comparison for PipelineError, so errors.Is works
// against both the underlying error and the matching sentinel.
func (e *PipelineError) Is(target error) bool {
	if e.Underlying != nil && errors.Is(e.Underlying, target) {
		return true
	}

	switch e.Code {
	case CodeInvalidURL:
		return errors.Is(target, ErrInvalidURL)
	case CodeInsufficientSpace:
		return errors.Is(target, ErrInsufficientSpace)
	case CodeNetworkError:
		return errors.Is(target, ErrNetworkError)
	}

	return false
}

// New creates a new PipelineError with the specified code and message.
func New(code ErrorCode, message string) *PipelineError {
	return &PipelineError{
		Code:      code,
		Message:   message,
		Retryable: isRetryableByCode(code),
	}
}

// NewWithDetails creates a new PipelineError with code, message, and
// technical details.
func NewWithDetails(code ErrorCode, message, details string) *PipelineError {
	return &PipelineError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: isRetryableByCode(code),
	}
}

// Wrap wraps an existing error as a PipelineError with additional context.
func Wrap(underlying error, code ErrorCode, message string) *PipelineError {
	return &PipelineError{
		Code:       code,
		Message:    message,
		Underlying: underlying,
		Retryable:  isRetryableByCode(code) || isRetryableError(underlying),
	}
}

// WrapWithURL wraps an existing error as a PipelineError with URL context.
func WrapWithURL(underlying error, code ErrorCode, message, url string) *PipelineError {
	return &PipelineError{
		Code:       code,
		Message:    message,
		URL:        url,
		Underlying: underlying,
		Retryable:  isRetryableByCode(code) || isRetryableError(underlying),
	}
}

// FromHTTPStatus creates a PipelineError based on an HTTP status code.
func FromHTTPStatus(statusCode int, url string) *PipelineError {
	var (
		code      ErrorCode
		message   string
		retryable bool
	)

	switch {
	case statusCode >= 500:
		code = CodeServerError
		message = fmt.Sprintf("Server error (HTTP %d)", statusCode)
		retryable = true
	case statusCode == 429:
		code = CodeServerError
		message = "Server is rate limiting requests"
		retryable = true
	case statusCode == 416:
		code = CodeRangeSatisfied
		message = "Requested range not satisfiable"
		retryable = false
	case statusCode == 404:
		code = CodeNotFound
		message = "Resource not found on server"
		retryable = false
	case statusCode >= 400:
		code = CodeClientError
		message = fmt.Sprintf("Client error (HTTP %d)", statusCode)
		retryable = false
	default:
		code = CodeUnknown
		message = fmt.Sprintf("Unexpected HTTP status: %d", statusCode)
		retryable = false
	}

	return &PipelineError{
		Code:           code,
		Message:        message,
		URL:            url,
		Retryable:      retryable,
		HTTPStatusCode: statusCode,
	}
}

// isRetryableByCode determines if an error code represents a retryable
// condition.
func isRetryableByCode(code ErrorCode) bool {
	switch code {
	case CodeNetworkError, CodeTimeout, CodeServerError:
		return true
	default:
		return false
	}
}

// isNetworkRetryable determines if a network error is retryable based on
// error patterns.
func isNetworkRetryable(err error) bool {
	errStr := err.Error()

	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"connection timeout",
		"i/o timeout",
		"network is unreachable",
		"no route to host",
		"broken pipe",
		"connection aborted",
		"unexpected EOF",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(strings.ToLower(errStr), strings.ToLower(pattern)) {
			return true
		}
	}

	return false
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Context errors represent cancellation or a run-level deadline, not a
	// transient fault.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true
		}

		type temporaryError interface {
			Temporary() bool
		}
		if tempErr, ok := netErr.(temporaryError); ok {
			return tempErr.Temporary()
		}

		return isNetworkRetryable(err)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return isRetryableError(urlErr.Err)
	}

	return false
}

// IsRetryable is a convenience function to check if any error is retryable.
func IsRetryable(err error) bool {
	var pipeErr *PipelineError
	if errors.As(err, &pipeErr) {
		return pipeErr.Retryable
	}

	return isRetryableError(err)
}

// GetErrorCode extracts the error code from any error, returning CodeUnknown
// if the error is not a PipelineError.
func GetErrorCode(err error) ErrorCode {
	var pipeErr *PipelineError
	if errors.As(err, &pipeErr) {
		return pipeErr.Code
	}

	return CodeUnknown
}
