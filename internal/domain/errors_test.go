package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMarkTransient(t *testing.T) {
	cause := context.DeadlineExceeded
	err := MarkTransient(cause)

	if !errors.Is(err, ErrTransient) {
		t.Errorf("expected ErrTransient in chain, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected original error in chain, got %v", err)
	}

	// Further wrapping keeps the mark reachable.
	wrapped := fmt.Errorf("reserve: %w", err)
	if !errors.Is(wrapped, ErrTransient) {
		t.Errorf("expected ErrTransient through wrapping, got %v", wrapped)
	}

	if MarkTransient(nil) != nil {
		t.Error("expected nil for nil input")
	}
}
