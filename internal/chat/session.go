// Package chat implements the per-event chat room session: membership in a
// real-time room over the shared connection, the local message log, and the
// fixed-timezone display formatting of that log.
package chat

import (
	"context"
	"errors"
	"sync"

	"github.com/R-koma/calendar-chat/internal/logger"
	"github.com/R-koma/calendar-chat/internal/model"
	"github.com/R-koma/calendar-chat/internal/realtime"
)

// User-visible errors, matching the chat view of the original UI.
const (
	msgDetailFetchFailed = "イベント詳細の取得に失敗しました"
)

var ErrNotJoined = errors.New("chat: no room joined")

// State of the room session. Transitions are guarded: Idle -> Joining ->
// Joined on Open, Joined -> Idle on Leave, and a room switch runs the full
// leave sequence for the old room before joining the new one.
type State int

const (
	StateIdle State = iota
	StateJoining
	StateJoined
)

// Transport is the slice of the shared connection the session needs. The
// connection outlives any one session; OnReceive/OffReceive manage its single
// inbound handler slot.
type Transport interface {
	Emit(event realtime.EventType, data any) error
	OnReceive(fn func(model.Message))
	OffReceive()
}

// DetailFetcher performs the one-shot event detail fetch that seeds the log.
type DetailFetcher interface {
	EventDetail(ctx context.Context, eventID int) (*model.EventDetail, error)
}

// Session owns room membership for one chat view. All mutation happens under
// one mutex; network delivery and fetch completion land as discrete events,
// mirroring the single UI event loop of the original client.
type Session struct {
	conn    Transport
	fetcher DetailFetcher

	mu      sync.Mutex
	state   State
	eventID int
	// epoch invalidates in-flight detail fetches once the session has left
	// the room (or switched rooms) they were started for.
	epoch  int
	detail *model.EventDetail
	log    []model.Message

	onMessage func(model.Message)
	onError   func(string)
}

func NewSession(conn Transport, fetcher DetailFetcher) *Session {
	return &Session{conn: conn, fetcher: fetcher}
}

// SetOnMessage registers a callback invoked for every message appended to the
// log while joined. Must be set before Open.
func (s *Session) SetOnMessage(fn func(model.Message)) {
	s.mu.Lock()
	s.onMessage = fn
	s.mu.Unlock()
}

// SetOnError registers a callback for user-visible error strings.
func (s *Session) SetOnError(fn func(string)) {
	s.mu.Lock()
	s.onError = fn
	s.mu.Unlock()
}

// Open joins the room for eventID and kicks off the detail fetch that seeds
// the message log. If another room is currently joined it is left first, so a
// changed event id never leaks membership in the old room. Opening the
// already-joined room is a no-op.
func (s *Session) Open(ctx context.Context, eventID int) error {
	s.mu.Lock()
	if s.state == StateJoined && s.eventID == eventID {
		s.mu.Unlock()
		return nil
	}
	if s.state == StateJoined {
		s.leaveLocked()
	}

	s.state = StateJoining
	s.eventID = eventID
	s.detail = nil
	s.log = nil
	s.epoch++
	epoch := s.epoch

	// Clear any stale inbound listener from a previous room before joining,
	// otherwise messages would be delivered twice.
	s.conn.OffReceive()
	if err := s.conn.Emit(realtime.EventJoinRoom, realtime.RoomPayload{EventID: eventID}); err != nil {
		s.state = StateIdle
		s.mu.Unlock()
		return err
	}
	s.state = StateJoined
	s.conn.OnReceive(s.receive)
	s.mu.Unlock()

	// Detail fetch failure surfaces an error but never blocks the join.
	go s.fetchDetail(ctx, eventID, epoch)
	return nil
}

// fetchDetail seeds the log with the retained messages. The epoch guard
// discards responses that arrive after the session left or switched rooms.
func (s *Session) fetchDetail(ctx context.Context, eventID, epoch int) {
	detail, err := s.fetcher.EventDetail(ctx, eventID)

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	if err != nil {
		cb := s.onError
		s.mu.Unlock()
		if cb != nil {
			cb(msgDetailFetchFailed)
		}
		return
	}
	s.detail = detail
	if len(detail.Messages) > 0 {
		// History goes in front of anything that arrived live while the
		// fetch was in flight.
		seeded := make([]model.Message, 0, len(detail.Messages)+len(s.log))
		seeded = append(seeded, detail.Messages...)
		seeded = append(seeded, s.log...)
		s.log = seeded
	}
	s.mu.Unlock()
}

// receive appends an inbound message to the log. Installed as the single
// inbound handler while joined.
func (s *Session) receive(m model.Message) {
	s.mu.Lock()
	if s.state != StateJoined {
		s.mu.Unlock()
		return
	}
	s.log = append(s.log, m)
	cb := s.onMessage
	s.mu.Unlock()
	if cb != nil {
		cb(m)
	}
}

// Send transmits user input tagged with the joined room's event id. Empty
// input is ignored. There is no local echo: the sender's own message comes
// back through receive_message like everyone else's.
func (s *Session) Send(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateJoined {
		return ErrNotJoined
	}
	if text == "" {
		return nil
	}
	return s.conn.Emit(realtime.EventSendMessage, realtime.SendPayload{EventID: s.eventID, Message: text})
}

// Leave tears down room membership: handler off, leave notification, back to
// Idle. Idempotent; leaving an Idle session is a no-op. Called on both the
// explicit "return to calendar" action and view teardown.
func (s *Session) Leave() {
	s.mu.Lock()
	s.leaveLocked()
	s.mu.Unlock()
}

func (s *Session) leaveLocked() {
	if s.state == StateIdle {
		return
	}
	s.conn.OffReceive()
	if err := s.conn.Emit(realtime.EventLeaveRoom, realtime.RoomPayload{EventID: s.eventID}); err != nil && !errors.Is(err, realtime.ErrClosed) {
		logger.Errorf("chat: leave room %d: %v", s.eventID, err)
	}
	s.state = StateIdle
	s.epoch++ // any in-flight fetch for the left room is now stale
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// EventID returns the id of the joined room (meaningful only when joined).
func (s *Session) EventID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eventID
}

// Detail returns the fetched event detail, or nil while the fetch is pending
// or after it failed.
func (s *Session) Detail() *model.EventDetail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detail
}

// Messages returns a snapshot of the log in arrival order.
func (s *Session) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, len(s.log))
	copy(out, s.log)
	return out
}
