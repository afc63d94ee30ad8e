package resilience

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// Class is the retry classification of an error.
type Class int

const (
	// ClassRetryable errors (overload, rate limit, transient network
	// failure) are retried with backoff.
	ClassRetryable Class = iota
	// ClassFatal errors propagate immediately without retry.
	ClassFatal
)

// Classifier decides whether an error is worth retrying.
type Classifier func(err error) Class

// TransientError wraps an error that is safe to retry (e.g., 429, 5xx, network timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// CredentialError marks an authentication failure (missing, invalid, or
// expired API key). Never retried; surfaced distinctly so the caller can
// prompt for fresh credentials instead of offering a bare retry.
type CredentialError struct {
	Err error
}

func (e *CredentialError) Error() string {
	return e.Err.Error()
}

func (e *CredentialError) Unwrap() error {
	return e.Err
}

// NewCredentialError wraps an error as a credential failure.
func NewCredentialError(err error) *CredentialError {
	return &CredentialError{Err: err}
}

// MalformedResponseError marks an unparseable response from an external
// service. The request would fail the same way again, so it is never retried.
type MalformedResponseError struct {
	Err error
}

func (e *MalformedResponseError) Error() string {
	return e.Err.Error()
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// NewMalformedResponseError wraps an error as a malformed-response failure.
func NewMalformedResponseError(err error) *MalformedResponseError {
	return &MalformedResponseError{Err: err}
}

// ExhaustedError is returned when a retryable error survives every attempt.
// It carries the attempt count and the last observed error.
type ExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error {
	return e.LastErr
}

// IsCredential reports whether the error chain contains a CredentialError.
func IsCredential(err error) bool {
	var ce *CredentialError
	return errors.As(err, &ce)
}

// IsMalformed reports whether the error chain contains a MalformedResponseError.
func IsMalformed(err error) bool {
	var me *MalformedResponseError
	return errors.As(err, &me)
}

// IsExhausted reports whether the error chain contains an ExhaustedError.
func IsExhausted(err error) bool {
	var ee *ExhaustedError
	return errors.As(err, &ee)
}

// DefaultClassifier treats transient errors as retryable and everything else
// (credential failures, malformed responses, unknown errors) as fatal.
func DefaultClassifier(err error) Class {
	if err == nil {
		return ClassFatal
	}
	if IsCredential(err) || IsMalformed(err) {
		return ClassFatal
	}
	if IsTransient(err) {
		return ClassRetryable
	}
	return ClassFatal
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or if it matches common transient error patterns (network
// timeouts, connection resets, DNS failures).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	// Check for explicit TransientError in chain.
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	// Check for network-level transient errors.
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Connection reset / refused / DNS.
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
		"overloaded",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}
