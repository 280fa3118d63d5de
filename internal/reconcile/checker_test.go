package reconcile

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/squadevents/rsvp-engine/internal/domain"
	"github.com/squadevents/rsvp-engine/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu       sync.Mutex
	counters map[uuid.UUID]int
	tickets  map[uuid.UUID][]uuid.UUID
	syncs    []uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		counters: make(map[uuid.UUID]int),
		tickets:  make(map[uuid.UUID][]uuid.UUID),
	}
}

func (s *fakeStore) CountTickets(ctx context.Context, eventID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tickets[eventID]), nil
}

func (s *fakeStore) ActorTicketCount(ctx context.Context, eventID, actorID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.tickets[eventID] {
		if a == actorID {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) CounterValue(ctx context.Context, eventID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[eventID], nil
}

func (s *fakeStore) SyncCounter(ctx context.Context, eventID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[eventID] = len(s.tickets[eventID])
	s.syncs = append(s.syncs, eventID)
	return s.counters[eventID], nil
}

func (s *fakeStore) TicketActors(ctx context.Context, eventID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uuid.UUID(nil), s.tickets[eventID]...), nil
}

func (s *fakeStore) Attendance(ctx context.Context, eventID uuid.UUID) (domain.Attendance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Attendance{EventID: eventID, Total: len(s.tickets[eventID])}, nil
}

func (s *fakeStore) CounterEvents(ctx context.Context) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := make([]uuid.UUID, 0, len(s.counters))
	for id := range s.counters {
		events = append(events, id)
	}
	return events, nil
}

type fakeProjection struct {
	mu       sync.Mutex
	mirrored map[uuid.UUID][]uuid.UUID
}

func newFakeProjection() *fakeProjection {
	return &fakeProjection{mirrored: make(map[uuid.UUID][]uuid.UUID)}
}

func (p *fakeProjection) CountForActor(ctx context.Context, eventID, actorID uuid.UUID) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, a := range p.mirrored[eventID] {
		if a == actorID {
			n++
		}
	}
	return n, nil
}

func (p *fakeProjection) CountForEvent(ctx context.Context, eventID uuid.UUID) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.mirrored[eventID]), nil
}

func (p *fakeProjection) Rewrite(ctx context.Context, eventID uuid.UUID, actors []uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mirrored[eventID] = append([]uuid.UUID(nil), actors...)
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	counts map[uuid.UUID]int
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{counts: make(map[uuid.UUID]int)}
}

func (n *fakeNotifier) NotifyCount(ctx context.Context, eventID uuid.UUID, count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.counts[eventID] = count
}

func TestVerify_NoDrift(t *testing.T) {
	store := newFakeStore()
	eventID := uuid.New()
	store.tickets[eventID] = []uuid.UUID{uuid.New(), uuid.New()}
	store.counters[eventID] = 2

	c := NewChecker(store, newFakeProjection(), newFakeNotifier(), observability.NewLogger())

	report, err := c.Verify(context.Background(), eventID, uuid.Nil)
	require.NoError(t, err)
	assert.True(t, report.OK)
	assert.Equal(t, 2, report.CounterValue)
	assert.Equal(t, 2, report.ActualValue)
}

func TestVerify_DetectsCounterDrift(t *testing.T) {
	store := newFakeStore()
	eventID := uuid.New()
	store.tickets[eventID] = []uuid.UUID{uuid.New()}
	store.counters[eventID] = 3

	c := NewChecker(store, newFakeProjection(), newFakeNotifier(), observability.NewLogger())

	report, err := c.Verify(context.Background(), eventID, uuid.Nil)
	require.NoError(t, err)
	assert.False(t, report.OK)
	assert.Equal(t, 3, report.CounterValue)
	assert.Equal(t, 1, report.ActualValue)
}

func TestVerify_ActorStillPresent(t *testing.T) {
	store := newFakeStore()
	eventID, actorID := uuid.New(), uuid.New()
	store.tickets[eventID] = []uuid.UUID{actorID}
	store.counters[eventID] = 1

	projection := newFakeProjection()
	projection.mirrored[eventID] = []uuid.UUID{actorID}

	c := NewChecker(store, projection, newFakeNotifier(), observability.NewLogger())

	// Counter matches, but this actor's row still exists: not a clean
	// post-cancel state.
	report, err := c.Verify(context.Background(), eventID, actorID)
	require.NoError(t, err)
	assert.False(t, report.OK)
	assert.Equal(t, 1, report.TicketsRemaining)
	assert.Equal(t, 1, report.RegistrationsRemaining)
}

func TestVerify_CleanAfterCancel(t *testing.T) {
	store := newFakeStore()
	eventID, actorID := uuid.New(), uuid.New()
	store.counters[eventID] = 0

	c := NewChecker(store, newFakeProjection(), newFakeNotifier(), observability.NewLogger())

	report, err := c.Verify(context.Background(), eventID, actorID)
	require.NoError(t, err)
	assert.True(t, report.OK)
	assert.Equal(t, 0, report.TicketsRemaining)
}

func TestSync_RepairsAndNotifies(t *testing.T) {
	store := newFakeStore()
	notifier := newFakeNotifier()
	eventID := uuid.New()
	store.tickets[eventID] = []uuid.UUID{uuid.New(), uuid.New()}
	store.counters[eventID] = 7

	c := NewChecker(store, newFakeProjection(), notifier, observability.NewLogger())

	require.NoError(t, c.Sync(context.Background(), eventID))

	assert.Equal(t, 2, store.counters[eventID])
	assert.Equal(t, 2, notifier.counts[eventID])

	report, err := c.Verify(context.Background(), eventID, uuid.Nil)
	require.NoError(t, err)
	assert.True(t, report.OK)
}

func TestRepairProjection_RewritesMirror(t *testing.T) {
	store := newFakeStore()
	projection := newFakeProjection()
	eventID, actorID := uuid.New(), uuid.New()
	store.tickets[eventID] = []uuid.UUID{actorID}
	projection.mirrored[eventID] = []uuid.UUID{uuid.New(), uuid.New()}

	c := NewChecker(store, projection, newFakeNotifier(), observability.NewLogger())

	require.NoError(t, c.RepairProjection(context.Background(), eventID))
	assert.Equal(t, []uuid.UUID{actorID}, projection.mirrored[eventID])
}

func TestSweep_RepairsMirrorWithoutCounterDrift(t *testing.T) {
	store := newFakeStore()
	projection := newFakeProjection()
	eventID, actorID := uuid.New(), uuid.New()
	// Counter agrees with the tickets; only the attendee mirror is missing an
	// entry, as after a failed post-commit projection write.
	store.tickets[eventID] = []uuid.UUID{actorID}
	store.counters[eventID] = 1

	c := NewChecker(store, projection, newFakeNotifier(), observability.NewLogger())

	require.NoError(t, c.Sweep(context.Background(), 2))

	assert.Empty(t, store.syncs)
	assert.Equal(t, []uuid.UUID{actorID}, projection.mirrored[eventID])

	n, err := projection.CountForActor(context.Background(), eventID, actorID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCheckEvent_StaleMirrorEntryRemoved(t *testing.T) {
	store := newFakeStore()
	projection := newFakeProjection()
	eventID := uuid.New()
	ghost := uuid.New()
	// No tickets and a clean counter, but the mirror still lists an attendee.
	store.counters[eventID] = 0
	projection.mirrored[eventID] = []uuid.UUID{ghost}

	c := NewChecker(store, projection, newFakeNotifier(), observability.NewLogger())

	require.NoError(t, c.CheckEvent(context.Background(), eventID))
	assert.Empty(t, projection.mirrored[eventID])
}

func TestSweep_RepairsOnlyDriftedEvents(t *testing.T) {
	store := newFakeStore()
	clean, drifted := uuid.New(), uuid.New()
	store.tickets[clean] = []uuid.UUID{uuid.New()}
	store.counters[clean] = 1
	store.tickets[drifted] = []uuid.UUID{uuid.New(), uuid.New()}
	store.counters[drifted] = 5

	c := NewChecker(store, newFakeProjection(), newFakeNotifier(), observability.NewLogger())

	require.NoError(t, c.Sweep(context.Background(), 4))

	assert.Equal(t, []uuid.UUID{drifted}, store.syncs)
	assert.Equal(t, 2, store.counters[drifted])
	assert.Equal(t, 1, store.counters[clean])
}
