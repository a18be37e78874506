package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestStenoError_Error(t *testing.T) {
	err := &StenoError{
		Code:    ErrNotFound,
		Status:  404,
		Message: "job not found",
	}

	expected := "NOT_FOUND: job not found"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewInvalidRequest(t *testing.T) {
	err := NewInvalidRequest("videoId is required")

	if err.Code != ErrInvalidRequest {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidRequest)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
	if err.Message != "videoId is required" {
		t.Errorf("Message = %q, want %q", err.Message, "videoId is required")
	}
}

func TestNewInvalidRequestf(t *testing.T) {
	err := NewInvalidRequestf("quality must be between 0 and 100, got %d", 140)
	if err.Message != "quality must be between 0 and 100, got 140" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestNewNotFound(t *testing.T) {
	err := NewNotFound("video", "abc")

	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Status != 404 {
		t.Errorf("Status = %d, want 404", err.Status)
	}
	if err.Message != "video not found: abc" {
		t.Errorf("Message = %q", err.Message)
	}
	if err.Details["identifier"] != "abc" {
		t.Errorf("Details[identifier] = %v, want %q", err.Details["identifier"], "abc")
	}
	if err.Details["kind"] != "video" {
		t.Errorf("Details[kind] = %v, want %q", err.Details["kind"], "video")
	}
}

func TestNewConflict(t *testing.T) {
	err := NewConflict("revision mismatch")
	if err.Code != ErrConflict || err.Status != 409 {
		t.Errorf("got %s/%d, want CONFLICT/409", err.Code, err.Status)
	}
}

func TestNewRenderFailed(t *testing.T) {
	cause := fmt.Errorf("ffmpeg exited with status 1")
	err := NewRenderFailed(cause)

	if err.Code != ErrRenderFailed {
		t.Errorf("Code = %q, want %q", err.Code, ErrRenderFailed)
	}
	if err.Message != cause.Error() {
		t.Errorf("Message = %q, want %q", err.Message, cause.Error())
	}
	if !stderrors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}

	if NewRenderFailed(nil).Message != "render failed" {
		t.Error("nil cause should produce generic message")
	}
}

func TestNewCancelled(t *testing.T) {
	err := NewCancelled()
	if err.Code != ErrCancelled {
		t.Errorf("Code = %q, want %q", err.Code, ErrCancelled)
	}
	if err.Message != CancelledMessage {
		t.Errorf("Message = %q, want %q", err.Message, CancelledMessage)
	}
}

func TestNewInternal(t *testing.T) {
	err := NewInternal(fmt.Errorf("disk full"))
	if err.Status != 500 || err.Message != "disk full" {
		t.Errorf("got %d %q", err.Status, err.Message)
	}
	if NewInternal(nil).Message != "internal error" {
		t.Error("nil cause should produce generic message")
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
		want bool
	}{
		{"matching code", NewNotFound("job", "x"), ErrNotFound, true},
		{"different code", NewNotFound("job", "x"), ErrInvalidRequest, false},
		{"wrapped", fmt.Errorf("submit: %w", NewInvalidRequest("bad")), ErrInvalidRequest, true},
		{"plain error", fmt.Errorf("boom"), ErrInternal, false},
		{"nil", nil, ErrInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.want {
				t.Errorf("Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAs(t *testing.T) {
	nf := NewNotFound("job", "x")
	if As(fmt.Errorf("wrap: %w", nf)) != nf {
		t.Error("As should return the wrapped StenoError")
	}
	if As(fmt.Errorf("plain")).Code != ErrInternal {
		t.Error("As should wrap plain errors as internal")
	}
}
