package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/slidesmith/slidesmith/internal/domain"
	"github.com/slidesmith/slidesmith/internal/http/response"
	"github.com/slidesmith/slidesmith/internal/observability"
	"github.com/slidesmith/slidesmith/internal/repository"
	"github.com/slidesmith/slidesmith/internal/service"
)

const defaultListLimit = 50

// AdminHandler exposes the user-management surface. Every route is gated by
// RequireAdmin in the router.
type AdminHandler struct {
	auth *service.AuthService
}

func NewAdminHandler(auth *service.AuthService) *AdminHandler {
	return &AdminHandler{auth: auth}
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", defaultListLimit)
	users, err := h.auth.ListUsers(offset, limit)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to list users")
		return
	}
	views := make([]domain.UserView, 0, len(users))
	for i := range users {
		views = append(views, users[i].View())
	}
	response.JSON(w, r, http.StatusOK, struct {
		Success bool              `json:"success"`
		Users   []domain.UserView `json:"users"`
	}{Success: true, Users: views})
}

// DeactivateUser disables the account and revokes all of its sessions in
// one step.
func (h *AdminHandler) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathUserID(r)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid user id")
		return
	}
	if err := h.auth.DeactivateUser(id); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "user not found")
			return
		}
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to deactivate user")
		return
	}
	observability.Audit(r, "admin.user.deactivated", "target_user_id", id)
	response.JSON(w, r, http.StatusOK, authResult{Success: true, Message: "user deactivated"})
}

func (h *AdminHandler) ListUserSessions(w http.ResponseWriter, r *http.Request) {
	id, err := pathUserID(r)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid user id")
		return
	}
	sessions, err := h.auth.GetUserSessions(id)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to list sessions")
		return
	}
	response.JSON(w, r, http.StatusOK, struct {
		Success  bool             `json:"success"`
		Sessions []domain.Session `json:"sessions"`
	}{Success: true, Sessions: sessions})
}

// CleanupSessions runs the expired-session sweep on demand.
func (h *AdminHandler) CleanupSessions(w http.ResponseWriter, r *http.Request) {
	deactivated, err := h.auth.CleanupExpiredSessions()
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "session cleanup failed")
		return
	}
	observability.Audit(r, "admin.sessions.cleanup", "deactivated", deactivated)
	response.JSON(w, r, http.StatusOK, struct {
		Success     bool  `json:"success"`
		Deactivated int64 `json:"deactivated"`
	}{Success: true, Deactivated: deactivated})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func pathUserID(r *http.Request) (uint, error) {
	raw := chi.URLParam(r, "user_id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("invalid user id")
	}
	return uint(id), nil
}
