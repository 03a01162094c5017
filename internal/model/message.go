package model

// Message is one chat line in an event's room. User is the sender's username
// and Timestamp is an ISO string; messages are appended in arrival order and
// never reordered client-side.
type Message struct {
	ID        string `json:"id"`
	User      string `json:"user"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}
