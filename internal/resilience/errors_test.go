package resilience

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsTransient_ExplicitWrap(t *testing.T) {
	err := NewTransientError(errors.New("service unavailable"), 503)
	if !IsTransient(err) {
		t.Error("explicit TransientError should be transient")
	}

	wrapped := fmt.Errorf("grade card: %w", err)
	if !IsTransient(wrapped) {
		t.Error("wrapped TransientError should be transient")
	}
}

func TestIsTransient_Patterns(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"read tcp: connection reset by peer", true},
		{"dial tcp: i/o timeout", true},
		{"api is overloaded, try again", true},
		{"invalid request body", false},
		{"unexpected token in response", false},
	}

	for _, tt := range tests {
		if got := IsTransient(errors.New(tt.msg)); got != tt.want {
			t.Errorf("IsTransient(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}

func TestIsTransient_Nil(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil error must not be transient")
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("status %d should be transient", code)
		}
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("status %d should not be transient", code)
		}
	}
}

func TestDefaultClassifier(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"transient", NewTransientError(errors.New("overloaded"), 529), ClassRetryable},
		{"credential", NewCredentialError(errors.New("bad key")), ClassFatal},
		{"malformed", NewMalformedResponseError(errors.New("bad json")), ClassFatal},
		{"unknown", errors.New("something else"), ClassFatal},
		{"wrapped credential", fmt.Errorf("stage: %w", NewCredentialError(errors.New("expired"))), ClassFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultClassifier(tt.err); got != tt.want {
				t.Errorf("DefaultClassifier() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCredentialDetection(t *testing.T) {
	err := fmt.Errorf("analysis: %w", NewCredentialError(errors.New("401 unauthorized")))
	if !IsCredential(err) {
		t.Error("expected credential error detected through wrap")
	}
	if IsCredential(NewTransientError(errors.New("503"), 503)) {
		t.Error("transient error misdetected as credential")
	}
}

func TestExhaustedError_Message(t *testing.T) {
	err := &ExhaustedError{Attempts: 8, LastErr: errors.New("overloaded")}
	want := "gave up after 8 attempts: overloaded"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, err.LastErr) {
		t.Error("ExhaustedError should unwrap to the last error")
	}
}
