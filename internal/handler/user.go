package handler

import (
	"net/http"
	"strings"

	"github.com/R-koma/calendar-chat/internal/logger"
	"github.com/R-koma/calendar-chat/internal/middleware"
	"github.com/R-koma/calendar-chat/internal/model"
	"github.com/R-koma/calendar-chat/internal/repository"
)

type UserHandler struct {
	users  *repository.UserRepository
	events *repository.EventRepository
}

func NewUserHandler(users *repository.UserRepository, events *repository.EventRepository) *UserHandler {
	return &UserHandler{users: users, events: events}
}

// Search matches users by username or email. An empty query is an empty
// result, not an error.
func (h *UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		writeJSON(w, http.StatusOK, []model.User{})
		return
	}
	users, err := h.users.Search(r.Context(), query)
	if err != nil {
		logger.Errorf("user search: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *UserHandler) Friends(w http.ResponseWriter, r *http.Request) {
	friends, err := h.users.Friends(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		logger.Errorf("user friends: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if friends == nil {
		friends = []model.User{}
	}
	writeJSON(w, http.StatusOK, friends)
}

// EventInvites lists the caller's pending event invitations.
func (h *UserHandler) EventInvites(w http.ResponseWriter, r *http.Request) {
	invites, err := h.events.PendingInvites(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		logger.Errorf("user event invites: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if invites == nil {
		invites = []model.EventInvite{}
	}
	writeJSON(w, http.StatusOK, invites)
}
