package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	if got := KindOf(Validation("empty file")); got != KindValidation {
		t.Errorf("KindOf(Validation) = %v, want KindValidation", got)
	}
	if got := KindOf(errors.New("plain")); got != KindUnknown {
		t.Errorf("KindOf(plain error) = %v, want KindUnknown", got)
	}
}

func TestKindOfWrapped(t *testing.T) {
	inner := NotFound("order %s not found", "abc")
	wrapped := fmt.Errorf("ingest: %w", inner)
	if !IsKind(wrapped, KindNotFound) {
		t.Errorf("wrapped error lost its kind")
	}
}

func TestErrorMessage(t *testing.T) {
	cause := errors.New("connection refused")
	err := External(cause, "image store upload failed")
	want := "image store upload failed: connection refused"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, cause) {
		t.Errorf("External should wrap its cause")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Validation("bad"), http.StatusBadRequest},
		{NotFound("missing"), http.StatusNotFound},
		{External(nil, "upstream"), http.StatusBadGateway},
		{Consistency(nil, "duplicate uid"), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
