package handler

import (
	"errors"
	"net/http"

	"github.com/R-koma/calendar-chat/internal/logger"
	"github.com/R-koma/calendar-chat/internal/middleware"
	"github.com/R-koma/calendar-chat/internal/model"
	"github.com/R-koma/calendar-chat/internal/repository"
)

type FriendHandler struct {
	requests *repository.FriendRequestRepository
}

func NewFriendHandler(requests *repository.FriendRequestRepository) *FriendHandler {
	return &FriendHandler{requests: requests}
}

type friendRequestBody struct {
	ReceiverID int `json:"receiver_id"`
}

// Request sends a friend request. Self-requests and duplicates are rejected
// with the messages the client surfaces verbatim.
func (h *FriendHandler) Request(w http.ResponseWriter, r *http.Request) {
	var req friendRequestBody
	if !decodeBody(w, r, &req) {
		return
	}
	senderID := middleware.GetUserID(r.Context())
	if req.ReceiverID == 0 {
		writeError(w, http.StatusBadRequest, "receiver_id required")
		return
	}
	if req.ReceiverID == senderID {
		writeError(w, http.StatusBadRequest, "自分自身にリクエストを送ることはできません。")
		return
	}
	if err := h.requests.Create(r.Context(), senderID, req.ReceiverID); err != nil {
		if errors.Is(err, repository.ErrExists) {
			writeError(w, http.StatusBadRequest, "Friend request already sent.")
			return
		}
		logger.Errorf("friend request: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeMessage(w, http.StatusCreated, "リクエストを送りました。")
}

// Pending lists the requests waiting for the caller's answer.
func (h *FriendHandler) Pending(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.requests.PendingFor(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		logger.Errorf("friend pending: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if reqs == nil {
		reqs = []model.FriendRequest{}
	}
	writeJSON(w, http.StatusOK, reqs)
}

type respondFriendBody struct {
	Action string `json:"action"`
}

// Respond accepts or rejects one pending request. Accept answers with the
// new friend so the client can extend its list without a reload.
func (h *FriendHandler) Respond(w http.ResponseWriter, r *http.Request) {
	requestID := urlInt(r, "requestID")
	var req respondFriendBody
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Action != model.ActionAccept && req.Action != model.ActionReject {
		writeError(w, http.StatusBadRequest, "action must be accept or reject")
		return
	}

	accept := req.Action == model.ActionAccept
	sender, err := h.requests.Respond(r.Context(), requestID, middleware.GetUserID(r.Context()), accept)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "friend request not found")
			return
		}
		logger.Errorf("friend respond: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if accept {
		writeJSON(w, http.StatusOK, sender)
		return
	}
	writeMessage(w, http.StatusOK, "Friend request rejected")
}
