package crdb_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/squadevents/rsvp-engine/internal/adapters/crdb"
	"github.com/squadevents/rsvp-engine/internal/domain"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPool(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	crdbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp", "8080/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { crdbContainer.Terminate(ctx) })

	dsn, err := crdbContainer.Endpoint(ctx, "postgresql")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, dsn+"/defaultdb?sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)

	if err := crdb.EnsureSchema(ctx, pool); err != nil {
		t.Fatal(err)
	}
	return pool
}

func TestRepository_ReserveAndCancel(t *testing.T) {
	ctx := context.Background()
	pool := startPool(t, ctx)
	repo := crdb.NewRepository(pool)

	eventID := uuid.New()
	first := domain.NewTicket(eventID, uuid.New())
	second := domain.NewTicket(eventID, uuid.New())

	count, err := repo.ReserveAtomic(ctx, first, 2)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if count != 1 {
		t.Errorf("expected count 1, got %d", count)
	}

	// Same pair again must be rejected, not double-counted.
	dup := domain.NewTicket(eventID, first.ActorID)
	_, err = repo.ReserveAtomic(ctx, dup, 2)
	if !errors.Is(err, domain.ErrAlreadyReserved) {
		t.Errorf("expected ErrAlreadyReserved, got %v", err)
	}

	count, err = repo.ReserveAtomic(ctx, second, 2)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if count != 2 {
		t.Errorf("expected count 2, got %d", count)
	}

	// Event is now full.
	third := domain.NewTicket(eventID, uuid.New())
	_, err = repo.ReserveAtomic(ctx, third, 2)
	if !errors.Is(err, domain.ErrEventFull) {
		t.Errorf("expected ErrEventFull, got %v", err)
	}

	// The fallback path enforces the same answers.
	_, err = repo.ReserveFallback(ctx, domain.NewTicket(eventID, first.ActorID), 2)
	if !errors.Is(err, domain.ErrAlreadyReserved) {
		t.Errorf("expected ErrAlreadyReserved from fallback, got %v", err)
	}
	_, err = repo.ReserveFallback(ctx, domain.NewTicket(eventID, uuid.New()), 2)
	if !errors.Is(err, domain.ErrEventFull) {
		t.Errorf("expected ErrEventFull from fallback, got %v", err)
	}

	has, err := repo.HasTicket(ctx, eventID, first.ActorID)
	if err != nil || !has {
		t.Errorf("expected ticket present, got has=%v err=%v", has, err)
	}

	deleted, count, err := repo.CancelTicket(ctx, eventID, first.ActorID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !deleted || count != 1 {
		t.Errorf("expected deleted with count 1, got deleted=%v count=%d", deleted, count)
	}

	// Second cancel of the same pair changes nothing.
	deleted, _, err = repo.CancelTicket(ctx, eventID, first.ActorID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if deleted {
		t.Error("expected second cancel to be a no-op")
	}

	// Freed capacity is reservable again.
	count, err = repo.ReserveFallback(ctx, domain.NewTicket(eventID, uuid.New()), 2)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if count != 2 {
		t.Errorf("expected count 2, got %d", count)
	}

	// Every committed change left an outbox record.
	records, err := repo.GetUnpublishedOutbox(ctx, 10)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(records) != 4 {
		t.Errorf("expected 4 outbox records, got %d", len(records))
	}
}

func TestRepository_SyncAndCheckIn(t *testing.T) {
	ctx := context.Background()
	pool := startPool(t, ctx)
	repo := crdb.NewRepository(pool)

	eventID := uuid.New()
	ticket := domain.NewTicket(eventID, uuid.New())
	if _, err := repo.ReserveAtomic(ctx, ticket, 0); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Force drift, then let sync settle it from the ticket scan.
	if _, err := pool.Exec(ctx, `UPDATE event_counters SET registration_count = 9 WHERE event_id = $1`, eventID); err != nil {
		t.Fatal(err)
	}
	count, err := repo.SyncCounter(ctx, eventID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if count != 1 {
		t.Errorf("expected synced count 1, got %d", count)
	}
	count, err = repo.CounterValue(ctx, eventID)
	if err != nil || count != 1 {
		t.Errorf("expected counter 1, got count=%d err=%v", count, err)
	}

	checked, err := repo.CheckInByQR(ctx, eventID, ticket.QRPayload)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !checked.CheckedIn || checked.CheckedInAt == nil {
		t.Error("expected ticket marked checked in")
	}

	// Checking in again keeps the original timestamp.
	again, err := repo.CheckInByQR(ctx, eventID, ticket.QRPayload)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !again.CheckedInAt.Equal(*checked.CheckedInAt) {
		t.Error("expected check-in timestamp to be stable")
	}

	// A code from another event never matches.
	if _, err := repo.CheckInByQR(ctx, uuid.New(), ticket.QRPayload); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	att, err := repo.Attendance(ctx, eventID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if att.Total != 1 || att.CheckedIn != 1 {
		t.Errorf("expected attendance 1/1, got %d/%d", att.CheckedIn, att.Total)
	}
}
