package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/R-koma/calendar-chat/internal/model"
)

// CurrentUser returns the authenticated user, or ErrUnauthorized.
func (c *Client) CurrentUser(ctx context.Context) (*model.User, error) {
	var u model.User
	if err := c.do(ctx, http.MethodGet, "/auth/user", nil, nil, &u, false); err != nil {
		return nil, err
	}
	return &u, nil
}

// Login establishes the cookie session. No CSRF header yet; the cookies are
// what the call produces.
func (c *Client) Login(ctx context.Context, email, password string) error {
	body := map[string]string{"email": email, "password": password}
	return c.do(ctx, http.MethodPost, "/auth/login", nil, body, nil, false)
}

func (c *Client) Register(ctx context.Context, username, email, password string) error {
	body := map[string]string{"username": username, "email": email, "password": password}
	return c.do(ctx, http.MethodPost, "/auth/register", nil, body, nil, false)
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil, nil, true)
}

// ParticipatedEvents lists the events the user participates in for one month.
func (c *Client) ParticipatedEvents(ctx context.Context, month, year int) ([]model.Event, error) {
	q := url.Values{}
	q.Set("month", strconv.Itoa(month))
	q.Set("year", strconv.Itoa(year))
	var events []model.Event
	if err := c.do(ctx, http.MethodGet, "/event/user/participated-events", q, nil, &events, false); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *Client) EventDetail(ctx context.Context, eventID int) (*model.EventDetail, error) {
	var d model.EventDetail
	path := "/event/" + strconv.Itoa(eventID) + "/detail"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &d, false); err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateEventRequest mirrors the create form: the date is "YYYY-MM-DD" and
// invitees are friend user ids.
type CreateEventRequest struct {
	EventName    string `json:"event_name"`
	EventDate    string `json:"event_date"`
	MeetingTime  string `json:"meeting_time"`
	MeetingPlace string `json:"meeting_place"`
	Description  string `json:"description"`
	Invitees     []int  `json:"invitees"`
}

func (c *Client) CreateEvent(ctx context.Context, req CreateEventRequest) error {
	return c.do(ctx, http.MethodPost, "/event/create", nil, req, nil, true)
}

// UpdateEventRequest carries only the editable fields; nil means unchanged.
type UpdateEventRequest struct {
	EventName    *string `json:"event_name,omitempty"`
	MeetingTime  *string `json:"meeting_time,omitempty"`
	MeetingPlace *string `json:"meeting_place,omitempty"`
	Description  *string `json:"description,omitempty"`
}

func (c *Client) UpdateEvent(ctx context.Context, eventID int, req UpdateEventRequest) error {
	path := "/event/" + strconv.Itoa(eventID) + "/update"
	return c.do(ctx, http.MethodPut, path, nil, req, nil, true)
}

func (c *Client) DeleteEvent(ctx context.Context, eventID int) error {
	path := "/event/" + strconv.Itoa(eventID) + "/delete"
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil, true)
}

func (c *Client) InviteToEvent(ctx context.Context, eventID int, friendIDs []int) error {
	path := "/event/" + strconv.Itoa(eventID) + "/invite"
	body := map[string][]int{"invitees": friendIDs}
	return c.do(ctx, http.MethodPost, path, nil, body, nil, true)
}

// RespondToEvent accepts or declines an invitation. response is
// model.ResponseAccepted or model.ResponseDeclined.
func (c *Client) RespondToEvent(ctx context.Context, eventID int, response string) error {
	body := map[string]any{"event_id": eventID, "response": response}
	return c.do(ctx, http.MethodPost, "/event/respond", nil, body, nil, true)
}

func (c *Client) EventInvites(ctx context.Context) ([]model.EventInvite, error) {
	var invites []model.EventInvite
	if err := c.do(ctx, http.MethodGet, "/user/event-invites", nil, nil, &invites, false); err != nil {
		return nil, err
	}
	return invites, nil
}

func (c *Client) Friends(ctx context.Context) ([]model.User, error) {
	var friends []model.User
	if err := c.do(ctx, http.MethodGet, "/user/friends", nil, nil, &friends, false); err != nil {
		return nil, err
	}
	return friends, nil
}

// SearchUsers matches username or email. An empty query returns no results
// without a round trip.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]model.User, error) {
	if query == "" {
		return nil, nil
	}
	q := url.Values{}
	q.Set("query", query)
	var users []model.User
	if err := c.do(ctx, http.MethodGet, "/user/search", q, nil, &users, false); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) FriendRequests(ctx context.Context) ([]model.FriendRequest, error) {
	var reqs []model.FriendRequest
	if err := c.do(ctx, http.MethodGet, "/friend/requests", nil, nil, &reqs, false); err != nil {
		return nil, err
	}
	return reqs, nil
}

func (c *Client) SendFriendRequest(ctx context.Context, receiverID int) error {
	body := map[string]int{"receiver_id": receiverID}
	return c.do(ctx, http.MethodPost, "/friend/request", nil, body, nil, true)
}

// RespondToFriendRequest accepts or rejects a pending request. On accept the
// backend returns the new friend, which the caller feeds to the registry.
func (c *Client) RespondToFriendRequest(ctx context.Context, requestID int, action string) (*model.User, error) {
	path := "/friend/request/" + strconv.Itoa(requestID) + "/respond"
	body := map[string]string{"action": action}
	if action == model.ActionAccept {
		var friend model.User
		if err := c.do(ctx, http.MethodPost, path, nil, body, &friend, true); err != nil {
			return nil, err
		}
		return &friend, nil
	}
	return nil, c.do(ctx, http.MethodPost, path, nil, body, nil, true)
}
