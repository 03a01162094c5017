package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/R-koma/calendar-chat/internal/logger"
	"github.com/R-koma/calendar-chat/internal/middleware"
	"github.com/R-koma/calendar-chat/internal/model"
	"github.com/R-koma/calendar-chat/internal/repository"
)

const eventDateLayout = "2006-01-02"

type EventHandler struct {
	events *repository.EventRepository
}

func NewEventHandler(events *repository.EventRepository) *EventHandler {
	return &EventHandler{events: events}
}

type createEventRequest struct {
	EventName    string `json:"event_name"`
	EventDate    string `json:"event_date"`
	MeetingTime  string `json:"meeting_time"`
	MeetingPlace string `json:"meeting_place"`
	Description  string `json:"description"`
	Invitees     []int  `json:"invitees"`
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.EventName = strings.TrimSpace(req.EventName)
	if req.EventName == "" || req.EventDate == "" {
		writeError(w, http.StatusBadRequest, "event_name and event_date are required")
		return
	}
	date, err := time.Parse(eventDateLayout, req.EventDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "event_date must be YYYY-MM-DD")
		return
	}

	id, err := h.events.Create(r.Context(), repository.CreateEventParams{
		EventName:    req.EventName,
		EventDate:    date,
		MeetingTime:  req.MeetingTime,
		MeetingPlace: req.MeetingPlace,
		Description:  req.Description,
		CreatedBy:    middleware.GetUserID(r.Context()),
		Invitees:     req.Invitees,
	})
	if err != nil {
		logger.Errorf("event create: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Event created successfully", "event_id": id})
}

// Participated lists the caller's events for one month. Defaults: January
// of the current year, matching the query shape the calendar sends.
func (h *EventHandler) Participated(w http.ResponseWriter, r *http.Request) {
	month := queryInt(r, "month", 1)
	year := queryInt(r, "year", time.Now().Year())
	if month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "month must be 1-12")
		return
	}
	events, err := h.events.MonthEvents(r.Context(), middleware.GetUserID(r.Context()), year, month)
	if err != nil {
		logger.Errorf("event participated: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// Detail serves the full event, including history messages. Participants
// and invited users may look; anyone else gets a 403.
func (h *EventHandler) Detail(w http.ResponseWriter, r *http.Request) {
	eventID := urlInt(r, "eventID")
	userID := middleware.GetUserID(r.Context())

	allowed, err := h.events.IsParticipant(r.Context(), eventID, userID)
	if err != nil {
		logger.Errorf("event detail access: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !allowed {
		allowed, err = h.events.IsInvited(r.Context(), eventID, userID)
		if err != nil {
			logger.Errorf("event detail access: %v", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
	}
	if !allowed {
		writeError(w, http.StatusForbidden, "not a participant")
		return
	}

	detail, err := h.events.Detail(r.Context(), eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		logger.Errorf("event detail: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

type updateEventRequest struct {
	EventName    *string `json:"event_name"`
	MeetingTime  *string `json:"meeting_time"`
	MeetingPlace *string `json:"meeting_place"`
	Description  *string `json:"description"`
}

func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	eventID := urlInt(r, "eventID")
	if !h.requireCreator(w, r, eventID) {
		return
	}
	var req updateEventRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := h.events.Update(r.Context(), eventID, repository.UpdateEventParams{
		EventName:    req.EventName,
		MeetingTime:  req.MeetingTime,
		MeetingPlace: req.MeetingPlace,
		Description:  req.Description,
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		logger.Errorf("event update: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeMessage(w, http.StatusOK, "Event updated successfully")
}

func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	eventID := urlInt(r, "eventID")
	if !h.requireCreator(w, r, eventID) {
		return
	}
	if err := h.events.Delete(r.Context(), eventID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		logger.Errorf("event delete: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeMessage(w, http.StatusOK, "Event deleted successfully")
}

type inviteRequest struct {
	Invitees []int `json:"invitees"`
}

// Invite lets any participant pull friends into the event. Users who are
// already participants or already invited are skipped server-side.
func (h *EventHandler) Invite(w http.ResponseWriter, r *http.Request) {
	eventID := urlInt(r, "eventID")
	userID := middleware.GetUserID(r.Context())

	ok, err := h.events.IsParticipant(r.Context(), eventID, userID)
	if err != nil {
		logger.Errorf("event invite access: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusForbidden, "not a participant")
		return
	}

	var req inviteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Invitees) == 0 {
		writeError(w, http.StatusBadRequest, "invitees required")
		return
	}
	if err := h.events.Invite(r.Context(), eventID, req.Invitees); err != nil {
		logger.Errorf("event invite: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeMessage(w, http.StatusOK, "Invitations sent successfully")
}

type respondRequest struct {
	EventID  int    `json:"event_id"`
	Response string `json:"response"`
}

// Respond consumes an invitation: accept joins the participants, decline
// just removes the invite. Either way the invite is gone afterwards.
func (h *EventHandler) Respond(w http.ResponseWriter, r *http.Request) {
	var req respondRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.EventID <= 0 {
		writeError(w, http.StatusBadRequest, "event_id is required")
		return
	}
	if req.Response != model.ResponseAccepted && req.Response != model.ResponseDeclined {
		writeError(w, http.StatusBadRequest, "response must be accepted or declined")
		return
	}
	accepted := req.Response == model.ResponseAccepted
	err := h.events.Respond(r.Context(), req.EventID, middleware.GetUserID(r.Context()), accepted)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusBadRequest, "no pending invitation")
			return
		}
		logger.Errorf("event respond: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if accepted {
		writeMessage(w, http.StatusOK, "Invitation accepted")
		return
	}
	writeMessage(w, http.StatusOK, "Invitation declined")
}

// requireCreator writes the error response and returns false unless the
// caller created the event.
func (h *EventHandler) requireCreator(w http.ResponseWriter, r *http.Request, eventID int) bool {
	creatorID, err := h.events.CreatorID(r.Context(), eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return false
		}
		logger.Errorf("event creator lookup: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return false
	}
	if creatorID != middleware.GetUserID(r.Context()) {
		writeError(w, http.StatusForbidden, "only the creator can modify this event")
		return false
	}
	return true
}
