package model

// Event is the calendar-grid summary of an event. EventDate is the ISO
// timestamp string as returned by the backend.
type Event struct {
	ID        int    `json:"id"`
	EventName string `json:"event_name"`
	EventDate string `json:"event_date"`
}

// EventDetail is the full event as returned by GET /event/{id}/detail.
// Participants and InvitedFriends are disjoint: accepting an invitation
// moves the user from one set to the other.
type EventDetail struct {
	ID             int       `json:"id"`
	EventName      string    `json:"event_name"`
	EventDate      string    `json:"event_date"`
	MeetingTime    string    `json:"meeting_time"`
	MeetingPlace   string    `json:"meeting_place"`
	Description    string    `json:"description"`
	CreatedBy      int       `json:"created_by"`
	Participants   []User    `json:"participants"`
	InvitedFriends []User    `json:"invited_friends"`
	Messages       []Message `json:"messages"`
}

// EventInvite is a pending invitation as listed by GET /user/event-invites.
type EventInvite struct {
	ID           int    `json:"id"`
	EventName    string `json:"event_name"`
	EventDate    string `json:"event_date"`
	MeetingTime  string `json:"meeting_time"`
	MeetingPlace string `json:"meeting_place"`
	Description  string `json:"description"`
	InvitedBy    string `json:"invited_by"`
}

// Detail widens an invite to the placeholder detail shown before the
// authoritative re-fetch resolves.
func (i *EventInvite) Detail() EventDetail {
	return EventDetail{
		ID:           i.ID,
		EventName:    i.EventName,
		EventDate:    i.EventDate,
		MeetingTime:  i.MeetingTime,
		MeetingPlace: i.MeetingPlace,
		Description:  i.Description,
	}
}

// Event responses (POST /event/respond).
const (
	ResponseAccepted = "accepted"
	ResponseDeclined = "declined"
)

// Friend request actions (POST /friend/request/{id}/respond).
const (
	ActionAccept = "accept"
	ActionReject = "reject"
)
