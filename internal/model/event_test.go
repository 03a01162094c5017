package model

import "testing"

func TestInviteDetailIsPlaceholder(t *testing.T) {
	inv := EventInvite{
		ID:           12,
		EventName:    "hanami",
		EventDate:    "2025-04-05T10:00:00Z",
		MeetingTime:  "10:00",
		MeetingPlace: "上野公園",
		Description:  "花見です",
		InvitedBy:    "rin",
	}

	d := inv.Detail()
	if d.ID != inv.ID || d.EventName != inv.EventName || d.EventDate != inv.EventDate {
		t.Fatalf("detail = %+v", d)
	}
	if d.MeetingTime != inv.MeetingTime || d.MeetingPlace != inv.MeetingPlace || d.Description != inv.Description {
		t.Fatalf("detail = %+v", d)
	}
	// Membership and history are only known after the authoritative fetch.
	if d.CreatedBy != 0 || d.Participants != nil || d.InvitedFriends != nil || d.Messages != nil {
		t.Fatalf("placeholder carries membership data: %+v", d)
	}
}
