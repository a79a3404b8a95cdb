package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestDenialError_UnwrapsToPermissionDenied(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("mute: %w", Deny("cannot moderate yourself"))
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("want ErrPermissionDenied, got %v", err)
	}
	reason, ok := DenialReason(err)
	if !ok || reason != "cannot moderate yourself" {
		t.Fatalf("reason=%q ok=%v", reason, ok)
	}
	if got := Deny("x").Error(); got != "permission denied: x" {
		t.Fatalf("message: %q", got)
	}
	if got := Deny("").Error(); got != "permission denied" {
		t.Fatalf("empty reason message: %q", got)
	}
}

func TestDenialReason_OtherErrors(t *testing.T) {
	t.Parallel()

	if _, ok := DenialReason(ErrInvalidToken); ok {
		t.Fatalf("plain sentinel must not carry a reason")
	}
	if _, ok := DenialReason(nil); ok {
		t.Fatalf("nil must not carry a reason")
	}
}
