package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/community-events/internal/auth"
	"github.com/sakif/community-events/internal/model"
	"github.com/sakif/community-events/internal/service"
)

// UserHandler serves /api/users.
type UserHandler struct {
	users         *service.UserService
	registrations *service.RegistrationService
	logger        *slog.Logger
}

func NewUserHandler(users *service.UserService, registrations *service.RegistrationService, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		users:         users,
		registrations: registrations,
		logger:        logger,
	}
}

// HandleList returns every account. Admin only (route-level).
//
// HTTP: GET /api/users
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users, "count": len(users)})
}

// HandleGet returns one profile. The route runs OptionalAuth, so the owner
// and admins see the email address.
//
// HTTP: GET /api/users/{username}
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	viewer, _ := auth.IdentityFromContext(r.Context())
	user, err := h.users.Get(r.Context(), viewer, chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

// HandleUpdate applies a partial profile change.
//
// HTTP: PATCH /api/users/{username}
// REQUEST BODY: any of {"name","email","password","isAdmin"}
func (h *UserHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateUserInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	actor, _ := auth.IdentityFromContext(r.Context())
	user, err := h.users.Update(r.Context(), actor, chi.URLParam(r, "username"), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "User updated successfully",
		"user":    user,
	})
}

// HandleDelete removes an account with its events and registrations.
//
// HTTP: DELETE /api/users/{username}
func (h *UserHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.IdentityFromContext(r.Context())
	if err := h.users.Delete(r.Context(), actor, chi.URLParam(r, "username")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "User deleted successfully"})
}

// HandleRegistrations lists the events a user signed up for.
//
// HTTP: GET /api/users/{username}/registrations
func (h *UserHandler) HandleRegistrations(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.IdentityFromContext(r.Context())
	regs, err := h.registrations.ListByUser(r.Context(), actor, chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if regs == nil {
		regs = []model.UserRegistration{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"registrations": regs, "count": len(regs)})
}
