package errors

import (
	"errors"
	"net/http"
	"testing"
)

func TestSourceErrorMessage(t *testing.T) {
	err := NewSourceError(ErrorTypeAPI, "token_transfers", "ethereum", errors.New("boom"))
	want := "token_transfers failed on ethereum: boom"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	err = NewSourceError(ErrorTypeValidation, "check_subscription", "", ErrInvalidInput)
	want = "check_subscription failed: invalid input"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestSourceErrorIs(t *testing.T) {
	timeout := NewSourceError(ErrorTypeTimeout, "collect", "base", errors.New("deadline"))
	if !errors.Is(timeout, ErrTimeout) {
		t.Error("timeout error should match ErrTimeout")
	}
	if errors.Is(timeout, ErrNotFound) {
		t.Error("timeout error should not match ErrNotFound")
	}

	wrapped := NewSourceError(ErrorTypeValidation, "check", "", ErrInvalidInput)
	if !errors.Is(wrapped, ErrInvalidInput) {
		t.Error("wrapped sentinel should survive errors.Is")
	}
}

func TestRetryability(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"connection", WrapConnectionError("collect", "polygon", errors.New("refused")), true},
		{"timeout", WrapTimeoutError("collect", "polygon", errors.New("deadline")), true},
		{"validation", NewSourceError(ErrorTypeValidation, "check", "", ErrInvalidInput), false},
		{"server error", WrapAPIError("search", "stripe", errors.New("500"), http.StatusInternalServerError), true},
		{"rate limited", WrapAPIError("search", "stripe", errors.New("429"), http.StatusTooManyRequests), true},
		{"client error", WrapAPIError("search", "stripe", errors.New("400"), http.StatusBadRequest), false},
		{"plain error", errors.New("nope"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableError(tt.err); got != tt.want {
				t.Errorf("IsRetryableError() = %v, want %v", got, tt.want)
			}
		})
	}
}
