package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/squadevents/rsvp-engine/internal/config"
	"github.com/squadevents/rsvp-engine/internal/domain"
	"github.com/squadevents/rsvp-engine/internal/engine"
	"github.com/squadevents/rsvp-engine/internal/feed"
	"github.com/squadevents/rsvp-engine/internal/hint"
	"github.com/squadevents/rsvp-engine/internal/idempotency"
	"github.com/squadevents/rsvp-engine/internal/observability"
	"github.com/squadevents/rsvp-engine/internal/reconcile"
)

type Handlers struct {
	cfg     *config.Config
	engine  *engine.Engine
	checker *reconcile.Checker
	feed    *feed.Publisher
	hints   hint.Store
	idemp   *idempotency.Idempotency
	logger  observability.Logger
}

func NewHandlers(cfg *config.Config, eng *engine.Engine, checker *reconcile.Checker, feedPub *feed.Publisher, hints hint.Store, idemp *idempotency.Idempotency, logger observability.Logger) *Handlers {
	return &Handlers{
		cfg:     cfg,
		engine:  eng,
		checker: checker,
		feed:    feedPub,
		hints:   hints,
		idemp:   idemp,
		logger:  logger,
	}
}

type ticketResponse struct {
	ID        uuid.UUID `json:"id"`
	EventID   uuid.UUID `json:"event_id"`
	ActorID   uuid.UUID `json:"actor_id"`
	CreatedAt string    `json:"created_at"`
	QRPayload string    `json:"qr_payload"`
}

func (h *Handlers) Reserve(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	actorID, ok := actorFromContext(r.Context())
	if !ok {
		http.Error(w, "missing actor identity", http.StatusUnauthorized)
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key != "" {
		existing, err := h.idemp.Get(r.Context(), key)
		if err != nil {
			h.logger.Warn("idempotency lookup failed", err)
		}
		if existing != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(existing.Status)
			w.Write(existing.Result)
			return
		}
	}

	ticket, err := h.engine.Reserve(r.Context(), eventID, actorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// Best-effort memo so the caller can render "already joined" before a
	// lagging read replica catches up. The durable store stays the authority.
	if h.hints != nil {
		if err := h.hints.MarkJoined(r.Context(), actorID, eventID); err != nil {
			h.logger.Warn("joined hint write failed", err)
		}
	}

	resp := ticketResponse{
		ID:        ticket.ID,
		EventID:   ticket.EventID,
		ActorID:   ticket.ActorID,
		CreatedAt: ticket.CreatedAt.Format(time.RFC3339Nano),
		QRPayload: ticket.QRPayload,
	}
	data, _ := json.Marshal(resp)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	w.Write(data)

	if key != "" {
		if err := h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusCreated, Result: data}); err != nil {
			h.logger.Warn("idempotency store failed", err)
		}
	}
}

func (h *Handlers) Cancel(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	actorID, ok := actorFromContext(r.Context())
	if !ok {
		http.Error(w, "missing actor identity", http.StatusUnauthorized)
		return
	}

	if err := h.engine.Cancel(r.Context(), eventID, actorID); err != nil {
		writeDomainError(w, err)
		return
	}

	if h.hints != nil {
		if err := h.hints.Clear(r.Context(), actorID, eventID); err != nil {
			h.logger.Warn("joined hint clear failed", err)
		}
	}

	// Confirm full cleanup; repair only when drift is found.
	report, err := h.checker.Verify(r.Context(), eventID, actorID)
	if err != nil {
		h.logger.WithField("event_id", eventID).Warn("post-cancel verify failed", err)
	} else if !report.OK {
		if err := h.checker.Sync(r.Context(), eventID); err != nil {
			h.logger.WithField("event_id", eventID).Error("post-cancel sync failed", err)
		}
		if err := h.checker.RepairProjection(r.Context(), eventID); err != nil {
			h.logger.WithField("event_id", eventID).Error("post-cancel projection repair failed", err)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) MyReservation(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	actorID, ok := actorFromContext(r.Context())
	if !ok {
		http.Error(w, "missing actor identity", http.StatusUnauthorized)
		return
	}

	reserved, err := h.engine.HasReservation(r.Context(), eventID, actorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	recentlyJoined := false
	if h.hints != nil {
		if hinted, err := h.hints.RecentlyJoined(r.Context(), actorID, eventID); err == nil {
			recentlyJoined = hinted
		}
	}

	// hint_ttl_seconds tells the caller how long its own "just joined" memo
	// may be trusted before it must be treated as absent.
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reserved":         reserved,
		"recently_joined":  recentlyJoined,
		"hint_ttl_seconds": int(h.cfg.HintTTL.Seconds()),
	})
}

func (h *Handlers) Count(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	count, err := h.engine.Count(r.Context(), eventID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"event_id":           eventID,
		"registration_count": count,
	})
}

func (h *Handlers) Verify(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	actorID := uuid.Nil
	if raw := r.URL.Query().Get("actor_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid actor_id", http.StatusBadRequest)
			return
		}
		actorID = parsed
	}

	report, err := h.checker.Verify(r.Context(), eventID, actorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handlers) Sync(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	if err := h.checker.Sync(r.Context(), eventID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) Attendance(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	att, err := h.checker.Attendance(r.Context(), eventID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, att)
}

func (h *Handlers) CheckIn(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	var req struct {
		QRPayload string `json:"qr_payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QRPayload == "" {
		http.Error(w, "missing qr_payload", http.StatusBadRequest)
		return
	}

	ticket, err := h.engine.CheckIn(r.Context(), eventID, req.QRPayload)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ticket_id":     ticket.ID,
		"checked_in":    ticket.CheckedIn,
		"checked_in_at": ticket.CheckedInAt,
	})
}

// Feed streams counter updates for one event as server-sent events. The
// client replaces its displayed count with every value received; duplicates
// are expected and harmless.
func (h *Handlers) Feed(w http.ResponseWriter, r *http.Request) {
	eventID, ok := eventIDParam(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	updates := make(chan int, 8)
	unsubscribe := h.feed.Subscribe(eventID, func(count int) {
		// Drop when the client is slow; the next update carries the
		// latest value anyway.
		select {
		case updates <- count:
		default:
		}
	})
	defer unsubscribe()

	// Seed with the current value so the client never renders empty.
	if count, err := h.engine.Count(r.Context(), eventID); err == nil {
		fmt.Fprintf(w, "data: {\"registration_count\":%d}\n\n", count)
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case count := <-updates:
			fmt.Fprintf(w, "data: {\"registration_count\":%d}\n\n", count)
			flusher.Flush()
		}
	}
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func eventIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid event id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeDomainError translates the error taxonomy into distinct responses so
// callers can tell the user what to do next instead of showing a generic
// failure.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrAlreadyReserved):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "already_reserved", "message": "you have already joined this event"})
	case errors.Is(err, domain.ErrEventFull):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "event_full", "message": "this event is full"})
	case errors.Is(err, domain.ErrEventNotAvailable):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "event_not_available", "message": "event not found or not open for registration"})
	case errors.Is(err, domain.ErrEventClosed):
		writeJSON(w, http.StatusGone, map[string]string{"error": "event_closed", "message": "this event has already started"})
	case errors.Is(err, domain.ErrTransient):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "transient", "message": "temporary failure, please retry"})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "message": "not found"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal", "message": "internal error"})
	}
}
