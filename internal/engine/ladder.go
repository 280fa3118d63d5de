package engine

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/squadevents/rsvp-engine/internal/domain"
	"github.com/squadevents/rsvp-engine/internal/observability"
)

type ladderState int

const (
	stateAttemptAtomic ladderState = iota
	stateClassifyFailure
	stateFallbackTx
	stateDone
)

// reserveLadder drives one reservation through the mechanisms in order of
// strength: the single conditional statement first, then, only for failures
// that are neither a definitive duplicate nor a definitive capacity answer,
// the explicit locking transaction. The fallback is the weaker path; its last
// line of defense against a duplicate slipping through is the unique
// constraint, which the store translates into ErrAlreadyReserved.
type reserveLadder struct {
	store    Store
	ticket   domain.Ticket
	capacity int

	state      ladderState
	attemptErr error
	count      int
	err        error
}

func runReserveLadder(ctx context.Context, store Store, ticket domain.Ticket, capacity int) (int, error) {
	l := &reserveLadder{
		store:    store,
		ticket:   ticket,
		capacity: capacity,
		state:    stateAttemptAtomic,
	}
	for l.state != stateDone {
		l.step(ctx)
	}
	return l.count, l.err
}

func (l *reserveLadder) step(ctx context.Context) {
	switch l.state {
	case stateAttemptAtomic:
		count, err := l.store.ReserveAtomic(ctx, l.ticket, l.capacity)
		if err == nil {
			l.succeed(count)
			return
		}
		l.attemptErr = err
		l.state = stateClassifyFailure

	case stateClassifyFailure:
		switch {
		case errors.Is(l.attemptErr, domain.ErrAlreadyReserved),
			errors.Is(l.attemptErr, domain.ErrEventFull):
			// Definitive answers stop the ladder.
			l.fail(l.attemptErr)
		case errors.Is(l.attemptErr, context.DeadlineExceeded),
			errors.Is(l.attemptErr, context.Canceled):
			// The attempt may have committed server-side. Surface a
			// retryable failure; the unique constraint makes the retry safe.
			l.fail(domain.MarkTransient(l.attemptErr))
		default:
			l.state = stateFallbackTx
		}

	case stateFallbackTx:
		observability.ReserveFallbackTotal.Inc()
		count, err := l.store.ReserveFallback(ctx, l.ticket, l.capacity)
		if err == nil {
			l.succeed(count)
			return
		}
		switch {
		case errors.Is(err, domain.ErrAlreadyReserved),
			errors.Is(err, domain.ErrEventFull),
			errors.Is(err, domain.ErrTransient):
			l.fail(err)
		default:
			l.fail(domain.MarkTransient(err))
		}
	}
}

func (l *reserveLadder) succeed(count int) {
	l.count = count
	l.state = stateDone
}

func (l *reserveLadder) fail(err error) {
	l.err = err
	l.state = stateDone
}
