package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/R-koma/calendar-chat/internal/logger"
	"github.com/R-koma/calendar-chat/internal/middleware"
	"github.com/R-koma/calendar-chat/internal/repository"
	"github.com/R-koma/calendar-chat/internal/ws"
)

type WSHandler struct {
	hub            *ws.Hub
	users          *repository.UserRepository
	allowedOrigins string
}

// NewWSHandler creates the socket upgrade handler. allowedOrigins matches
// the CORS setting (comma separated, or "*").
func NewWSHandler(hub *ws.Hub, users *repository.UserRepository, allowedOrigins string) *WSHandler {
	return &WSHandler{hub: hub, users: users, allowedOrigins: strings.TrimSpace(allowedOrigins)}
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	if h.allowedOrigins == "*" || h.allowedOrigins == "" {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, o := range strings.Split(h.allowedOrigins, ",") {
		if strings.TrimSpace(o) == origin {
			return true
		}
	}
	return false
}

// ServeWS upgrades the connection for an authenticated user and hands it to
// the hub. The username is resolved once here so every chat message carries
// it without a lookup.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == 0 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		logger.Errorf("ws resolve user=%d: %v", userID, err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return h.checkOrigin(r) },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("ws upgrade: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := ws.NewClient(h.hub, conn, user.ID, user.Username)
	client.Start(ctx, cancel)
	h.hub.Register(client)
}
