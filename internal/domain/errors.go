package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyReserved means a non-cancelled ticket already exists for the
	// (event, actor) pair.
	ErrAlreadyReserved = errors.New("already reserved")
	// ErrEventFull means the registration count has reached the event capacity.
	ErrEventFull = errors.New("event full")
	// ErrEventNotAvailable means the event does not exist or is not published.
	ErrEventNotAvailable = errors.New("event not available")
	// ErrEventClosed means the event start time has passed.
	ErrEventClosed = errors.New("event closed")
	// ErrTransient means store or lock contention; the call is safe to retry.
	ErrTransient = errors.New("transient failure")
	ErrNotFound  = errors.New("not found")
)

// MarkTransient tags err as safe to retry. Both ErrTransient and the original
// error stay in the unwrap chain, so errors.Is and errors.As see either.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}
