package services_test

import (
	"context"
	"errors"
	"testing"

	"marklift/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("connection refused")
	err := services.Wrap(services.ErrNetwork, "dispatch", "post", "request failed", base)
	if !errors.Is(err, services.ErrNetwork) {
		t.Fatalf("expected network marker, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped cause to survive, got %v", err)
	}
}

func TestTimeoutIsRetryableNetworkFailure(t *testing.T) {
	err := services.Wrap(services.ErrTimeout, "convertapi", "post", "deadline exceeded", context.DeadlineExceeded)
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout marker, got %v", err)
	}
	if !errors.Is(err, services.ErrNetwork) {
		t.Fatalf("timeouts must classify as network failures, got %v", err)
	}
	if errors.Is(err, services.ErrAPI) {
		t.Fatalf("timeout must not match unrelated sentinels, got %v", err)
	}
}

func TestValidationErrorMatchesSentinel(t *testing.T) {
	err := services.NewValidationError(services.CodeFileTooLarge, "movie.mp4", "exceeds limit")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation sentinel match")
	}
	if got := services.ErrorCode(err); got != services.CodeFileTooLarge {
		t.Fatalf("ErrorCode = %q, want %q", got, services.CodeFileTooLarge)
	}
}

func TestAPIErrorRetryable(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   bool
	}{
		{"server error", 500, true},
		{"validation rejection", 400, false},
		{"unauthorized", 401, false},
		{"no status", 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := &services.APIError{StatusCode: tc.status, Code: "X"}
			if got := err.Retryable(); got != tc.want {
				t.Fatalf("Retryable() = %v, want %v", got, tc.want)
			}
			if !errors.Is(err, services.ErrAPI) {
				t.Fatal("expected api sentinel match")
			}
		})
	}
}
