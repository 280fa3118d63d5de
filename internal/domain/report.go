package domain

import "github.com/google/uuid"

// VerificationReport is the result of comparing the aggregate counter against
// a fresh scan of the ticket store for one event.
type VerificationReport struct {
	EventID uuid.UUID `json:"event_id"`
	ActorID uuid.UUID `json:"actor_id"`
	// TicketsRemaining is the number of ticket rows still present for the
	// actor; zero after a fully cleaned-up cancellation.
	TicketsRemaining int `json:"tickets_remaining"`
	// RegistrationsRemaining is the number of attendee projection entries
	// still present for the actor.
	RegistrationsRemaining int `json:"registrations_remaining"`
	// CounterValue is the stored aggregate counter.
	CounterValue int `json:"counter_value"`
	// ActualValue is the fresh ticket count.
	ActualValue int `json:"actual_value"`
	OK          bool `json:"ok"`
}

// Attendance is a read-only per-event check-in summary for organizer
// dashboards.
type Attendance struct {
	EventID   uuid.UUID `json:"event_id"`
	Total     int       `json:"total"`
	CheckedIn int       `json:"checked_in"`
}
