package engine

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/squadevents/rsvp-engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedStore returns canned answers so each ladder transition can be
// exercised in isolation.
type scriptedStore struct {
	atomicCount   int
	atomicErr     error
	fallbackCount int
	fallbackErr   error

	atomicCalls   int
	fallbackCalls int
}

func (s *scriptedStore) ReserveAtomic(ctx context.Context, t domain.Ticket, capacity int) (int, error) {
	s.atomicCalls++
	return s.atomicCount, s.atomicErr
}

func (s *scriptedStore) ReserveFallback(ctx context.Context, t domain.Ticket, capacity int) (int, error) {
	s.fallbackCalls++
	return s.fallbackCount, s.fallbackErr
}

func (s *scriptedStore) CancelTicket(ctx context.Context, eventID, actorID uuid.UUID) (bool, int, error) {
	return false, 0, nil
}

func (s *scriptedStore) HasTicket(ctx context.Context, eventID, actorID uuid.UUID) (bool, error) {
	return false, nil
}

func (s *scriptedStore) CounterValue(ctx context.Context, eventID uuid.UUID) (int, error) {
	return 0, nil
}

func (s *scriptedStore) CheckInByQR(ctx context.Context, eventID uuid.UUID, qrPayload string) (domain.Ticket, error) {
	return domain.Ticket{}, domain.ErrNotFound
}

func testTicket() domain.Ticket {
	return domain.NewTicket(uuid.New(), uuid.New())
}

func TestLadder_AtomicSuccessSkipsFallback(t *testing.T) {
	store := &scriptedStore{atomicCount: 7}

	count, err := runReserveLadder(context.Background(), store, testTicket(), 10)
	require.NoError(t, err)
	assert.Equal(t, 7, count)
	assert.Equal(t, 1, store.atomicCalls)
	assert.Equal(t, 0, store.fallbackCalls)
}

func TestLadder_DuplicateStopsLadder(t *testing.T) {
	store := &scriptedStore{atomicErr: domain.ErrAlreadyReserved}

	_, err := runReserveLadder(context.Background(), store, testTicket(), 10)
	assert.ErrorIs(t, err, domain.ErrAlreadyReserved)
	assert.Equal(t, 0, store.fallbackCalls)
}

func TestLadder_FullStopsLadder(t *testing.T) {
	store := &scriptedStore{atomicErr: domain.ErrEventFull}

	_, err := runReserveLadder(context.Background(), store, testTicket(), 10)
	assert.ErrorIs(t, err, domain.ErrEventFull)
	assert.Equal(t, 0, store.fallbackCalls)
}

func TestLadder_SerializationFailureFallsBack(t *testing.T) {
	store := &scriptedStore{
		atomicErr:     domain.MarkTransient(errors.New("restart transaction")),
		fallbackCount: 3,
	}

	count, err := runReserveLadder(context.Background(), store, testTicket(), 10)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, 1, store.fallbackCalls)
}

func TestLadder_ContextDeadlineNeverFallsBack(t *testing.T) {
	// The first attempt may have committed server-side, so retrying through
	// the fallback could double-submit without the caller asking for it.
	store := &scriptedStore{atomicErr: context.DeadlineExceeded}

	_, err := runReserveLadder(context.Background(), store, testTicket(), 10)
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.Equal(t, 0, store.fallbackCalls)
}

func TestLadder_FallbackDuplicateSurfaces(t *testing.T) {
	store := &scriptedStore{
		atomicErr:   domain.MarkTransient(errors.New("restart transaction")),
		fallbackErr: domain.ErrAlreadyReserved,
	}

	_, err := runReserveLadder(context.Background(), store, testTicket(), 10)
	assert.ErrorIs(t, err, domain.ErrAlreadyReserved)
}

func TestLadder_FallbackUnknownErrorIsTransient(t *testing.T) {
	store := &scriptedStore{
		atomicErr:   domain.MarkTransient(errors.New("restart transaction")),
		fallbackErr: errors.New("connection reset"),
	}

	_, err := runReserveLadder(context.Background(), store, testTicket(), 10)
	assert.ErrorIs(t, err, domain.ErrTransient)
}
