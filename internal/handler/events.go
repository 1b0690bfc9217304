package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/community-events/internal/auth"
	"github.com/sakif/community-events/internal/model"
	"github.com/sakif/community-events/internal/service"
)

// EventHandler serves /api/events, including signup and the attendee list.
type EventHandler struct {
	events        *service.EventService
	registrations *service.RegistrationService
	logger        *slog.Logger
}

func NewEventHandler(events *service.EventService, registrations *service.RegistrationService, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		events:        events,
		registrations: registrations,
		logger:        logger,
	}
}

func writeEvents(w http.ResponseWriter, events []model.Event) {
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

// HandleList returns upcoming and past events, soonest first.
//
// HTTP: GET /api/events?search=&minPrice=&maxPrice=&startDate=&endDate=
func (h *EventHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter, err := service.ParseEventFilter(service.EventQuery{
		Search:    q.Get("search"),
		MinPrice:  q.Get("minPrice"),
		MaxPrice:  q.Get("maxPrice"),
		StartDate: q.Get("startDate"),
		EndDate:   q.Get("endDate"),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	events, err := h.events.List(r.Context(), filter)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeEvents(w, events)
}

// HandleGet returns one event.
//
// HTTP: GET /api/events/{id}
func (h *EventHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := eventID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	event, err := h.events.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"event": event})
}

// HandleCreate stores a new event owned by the caller.
//
// HTTP: POST /api/events
// Auth: admin
func (h *EventHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in service.CreateEventInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	actor, _ := auth.IdentityFromContext(r.Context())
	event, err := h.events.Create(r.Context(), actor, in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Event created successfully",
		"event":   event,
	})
}

// HandleUpdate applies a partial update.
//
// HTTP: PATCH /api/events/{id}
// Auth: admin, and the creator unless the caller is an admin
func (h *EventHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := eventID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var in service.UpdateEventInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	actor, _ := auth.IdentityFromContext(r.Context())
	event, err := h.events.Update(r.Context(), actor, id, in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Event updated successfully",
		"event":   event,
	})
}

// HandleDelete removes an event and its registrations.
//
// HTTP: DELETE /api/events/{id}
func (h *EventHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := eventID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	actor, _ := auth.IdentityFromContext(r.Context())
	if err := h.events.Delete(r.Context(), actor, id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Event deleted successfully"})
}

// HandleListByCreator returns the events one user created.
//
// HTTP: GET /api/events/creator/{username}
func (h *EventHandler) HandleListByCreator(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.ListByCreator(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeEvents(w, events)
}

// HandleRegister signs the caller up for the event.
//
// HTTP: POST /api/events/{id}/register
func (h *EventHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	id, err := eventID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	actor, _ := auth.IdentityFromContext(r.Context())
	reg, err := h.registrations.Register(r.Context(), id, actor.Username)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":      "Successfully registered for event",
		"registration": reg,
	})
}

// HandleUnregister cancels the caller's registration.
//
// HTTP: DELETE /api/events/{id}/register
func (h *EventHandler) HandleUnregister(w http.ResponseWriter, r *http.Request) {
	id, err := eventID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	actor, _ := auth.IdentityFromContext(r.Context())
	if err := h.registrations.Unregister(r.Context(), id, actor.Username); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Successfully unregistered from event"})
}

// HandleRegistrations lists an event's attendees.
//
// HTTP: GET /api/events/{id}/registrations
// Auth: admin
func (h *EventHandler) HandleRegistrations(w http.ResponseWriter, r *http.Request) {
	id, err := eventID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	regs, err := h.registrations.ListByEvent(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if regs == nil {
		regs = []model.EventRegistrant{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"registrations": regs, "count": len(regs)})
}
