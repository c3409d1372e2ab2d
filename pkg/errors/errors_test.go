package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"
)

func TestErrorCodeString(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected string
	}{
		{CodeUnknown, "unknown"},
		{CodeInvalidURL, "invalid_url"},
		{CodeNetworkError, "network_error"},
		{CodeTimeout, "timeout"},
		{CodeServerError, "server_error"},
		{CodeClientError, "client_error"},
		{CodeNotFound, "not_found"},
		{CodeRangeIgnored, "range_ignored"},
		{CodeRangeSatisfied, "range_satisfied"},
		{CodeRetriesExhausted, "retries_exhausted"},
		{CodeMalformedMetadata, "malformed_metadata"},
		{CodeFilesystem, "filesystem_error"},
		{CodeInsufficientSpace, "insufficient_space"},
		{CodeCancelled, "cancelled"},
		{ErrorCode(999), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.code.String(); got != tt.expected {
				t.Errorf("ErrorCode.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestPipelineErrorError(t *testing.T) {
	tests := []struct {
		name     string
		err      *PipelineError
		expected string
	}{
		{
			name:     "with message",
			err:      &PipelineError{Message: "download failed"},
			expected: "download failed",
		},
		{
			name:     "without message, with underlying",
			err:      &PipelineError{Underlying: errors.New("connection reset")},
			expected: "connection reset",
		},
		{
			name:     "empty",
			err:      &PipelineError{},
			expected: "pipeline error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestPipelineErrorUnwrap(t *testing.T) {
	underlying := errors.New("root cause")
	err := Wrap(underlying, CodeNetworkError, "request failed")

	if !errors.Is(err, underlying) {
		t.Error("errors.Is() should find the underlying error")
	}

	if unwrapped := err.Unwrap(); unwrapped != underlying {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, underlying)
	}
}

func TestPipelineErrorIsSentinel(t *testing.T) {
	tests := []struct {
		name     string
		code     ErrorCode
		sentinel error
	}{
		{"invalid url", CodeInvalidURL, ErrInvalidURL},
		{"insufficient space", CodeInsufficientSpace, ErrInsufficientSpace},
		{"network error", CodeNetworkError, ErrNetworkError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "some message")
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("errors.Is() should match sentinel for code %v", tt.code)
			}
		})
	}
}

func TestFromHTTPStatus(t *testing.T) {
	tests := []struct {
		status        int
		expectedCode  ErrorCode
		expectedRetry bool
	}{
		{500, CodeServerError, true},
		{502, CodeServerError, true},
		{503, CodeServerError, true},
		{429, CodeServerError, true},
		{416, CodeRangeSatisfied, false},
		{404, CodeNotFound, false},
		{403, CodeClientError, false},
		{400, CodeClientError, false},
		{302, CodeUnknown, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			err := FromHTTPStatus(tt.status, "https://example.com/file.mp4")
			if err.Code != tt.expectedCode {
				t.Errorf("Code = %v, want %v", err.Code, tt.expectedCode)
			}

			if err.Retryable != tt.expectedRetry {
				t.Errorf("Retryable = %v, want %v", err.Retryable, tt.expectedRetry)
			}

			if err.HTTPStatusCode != tt.status {
				t.Errorf("HTTPStatusCode = %v, want %v", err.HTTPStatusCode, tt.status)
			}
		})
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "operation timed out" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"timeout code", New(CodeTimeout, "timed out"), true},
		{"network code", New(CodeNetworkError, "reset"), true},
		{"server error code", New(CodeServerError, "boom"), true},
		{"malformed metadata", New(CodeMalformedMetadata, "bad shape"), false},
		{"retries exhausted", New(CodeRetriesExhausted, "gave up"), false},
		{"cancelled", New(CodeCancelled, "stopped"), false},
		{"context cancelled", context.Canceled, false},
		{"context deadline", context.DeadlineExceeded, false},
		{"net timeout", net.Error(timeoutError{}), true},
		{"url wrapped timeout", &url.Error{Op: "Get", URL: "http://x", Err: timeoutError{}}, true},
		{"plain error", errors.New("something"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.expected {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGetErrorCode(t *testing.T) {
	if code := GetErrorCode(New(CodeRangeIgnored, "server sent 200")); code != CodeRangeIgnored {
		t.Errorf("GetErrorCode() = %v, want %v", code, CodeRangeIgnored)
	}

	wrapped := fmt.Errorf("outer: %w", New(CodeFilesystem, "rename failed"))
	if code := GetErrorCode(wrapped); code != CodeFilesystem {
		t.Errorf("GetErrorCode() through wrap = %v, want %v", code, CodeFilesystem)
	}

	if code := GetErrorCode(errors.New("plain")); code != CodeUnknown {
		t.Errorf("GetErrorCode() on plain error = %v, want %v", code, CodeUnknown)
	}
}
