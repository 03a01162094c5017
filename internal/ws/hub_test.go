package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/R-koma/calendar-chat/internal/model"
	"github.com/R-koma/calendar-chat/internal/realtime"
)

// allowAccess admits the configured users to any room.
type allowAccess struct {
	allowed map[int]bool
}

func (a *allowAccess) IsParticipant(_ context.Context, _, userID int) (bool, error) {
	return a.allowed[userID], nil
}

// recordStore keeps persisted messages in memory.
type recordStore struct {
	mu    sync.Mutex
	saved []string
}

func (s *recordStore) Create(_ context.Context, _ string, _, _ int, text string, _ time.Time) error {
	s.mu.Lock()
	s.saved = append(s.saved, text)
	s.mu.Unlock()
	return nil
}

func (s *recordStore) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.saved...)
}

// hubFixture runs a hub behind a test server whose /<id> path authenticates
// the connection as user <id>.
type hubFixture struct {
	hub    *Hub
	store  *recordStore
	srv    *httptest.Server
	cancel context.CancelFunc
}

func newHubFixture(t *testing.T, access EventAccess) *hubFixture {
	return newHubFixtureWithLimit(t, access, 0)
}

func newHubFixtureWithLimit(t *testing.T, access EventAccess, maxConns int) *hubFixture {
	t.Helper()
	store := &recordStore{}
	hub := NewHub(access, store, maxConns)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/"))
		if err != nil {
			http.Error(w, "bad user", http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		clientCtx, clientCancel := context.WithCancel(context.Background())
		client := NewClient(hub, conn, userID, "user"+strconv.Itoa(userID))
		client.Start(clientCtx, clientCancel)
		hub.Register(client)
	}))

	f := &hubFixture{hub: hub, store: store, srv: srv, cancel: cancel}
	t.Cleanup(func() {
		cancel()
		select {
		case <-hub.Done():
		case <-time.After(2 * time.Second):
		}
		srv.Close()
	})
	return f
}

// dial opens a raw websocket for the given user id.
func (f *hubFixture) dial(t *testing.T, userID int) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/" + strconv.Itoa(userID)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial user %d: %v", userID, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, event realtime.EventType, data any) {
	t.Helper()
	env, err := realtime.NewEnvelope(event, data)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if err := conn.WriteJSON(env); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
}

func readEnvelope(t *testing.T, conn *websocket.Conn) realtime.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var env realtime.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return env
}

func waitForRoomSize(t *testing.T, hub *Hub, eventID, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.RoomSize(eventID) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("room %d size = %d, want %d", eventID, hub.RoomSize(eventID), want)
}

func TestBroadcastReachesAllRoomMembersIncludingSender(t *testing.T) {
	f := newHubFixture(t, &allowAccess{allowed: map[int]bool{1: true, 2: true}})

	alice := f.dial(t, 1)
	bob := f.dial(t, 2)
	sendEnvelope(t, alice, realtime.EventJoinRoom, realtime.RoomPayload{EventID: 42})
	sendEnvelope(t, bob, realtime.EventJoinRoom, realtime.RoomPayload{EventID: 42})
	waitForRoomSize(t, f.hub, 42, 2)

	sendEnvelope(t, alice, realtime.EventSendMessage, realtime.SendPayload{EventID: 42, Message: "hello"})

	for _, conn := range []*websocket.Conn{alice, bob} {
		env := readEnvelope(t, conn)
		if env.Event != realtime.EventReceiveMessage {
			t.Fatalf("event = %q, want receive_message", env.Event)
		}
		var m model.Message
		if err := env.Decode(&m); err != nil {
			t.Fatalf("decode message: %v", err)
		}
		if m.Message != "hello" || m.User != "user1" {
			t.Fatalf("message = %+v", m)
		}
		if m.ID == "" || m.Timestamp == "" {
			t.Fatalf("message missing id or timestamp: %+v", m)
		}
	}

	if texts := f.store.texts(); len(texts) != 1 || texts[0] != "hello" {
		t.Fatalf("persisted = %v, want the broadcast message", texts)
	}
}

func TestLeftRoomMissesBroadcast(t *testing.T) {
	f := newHubFixture(t, &allowAccess{allowed: map[int]bool{1: true, 2: true}})

	alice := f.dial(t, 1)
	bob := f.dial(t, 2)
	sendEnvelope(t, alice, realtime.EventJoinRoom, realtime.RoomPayload{EventID: 42})
	sendEnvelope(t, bob, realtime.EventJoinRoom, realtime.RoomPayload{EventID: 42})
	waitForRoomSize(t, f.hub, 42, 2)

	// Bob moves to room 43.
	sendEnvelope(t, bob, realtime.EventLeaveRoom, realtime.RoomPayload{EventID: 42})
	sendEnvelope(t, bob, realtime.EventJoinRoom, realtime.RoomPayload{EventID: 43})
	waitForRoomSize(t, f.hub, 42, 1)
	waitForRoomSize(t, f.hub, 43, 1)

	sendEnvelope(t, alice, realtime.EventSendMessage, realtime.SendPayload{EventID: 42, Message: "still here"})

	if env := readEnvelope(t, alice); env.Event != realtime.EventReceiveMessage {
		t.Fatalf("sender event = %q", env.Event)
	}

	bob.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := bob.ReadMessage(); err == nil {
		t.Fatal("bob received a frame for a room he left")
	}
}

func TestNonParticipantCannotJoin(t *testing.T) {
	f := newHubFixture(t, &allowAccess{allowed: map[int]bool{1: true}})

	outsider := f.dial(t, 9)
	sendEnvelope(t, outsider, realtime.EventJoinRoom, realtime.RoomPayload{EventID: 42})

	env := readEnvelope(t, outsider)
	if env.Event != realtime.EventError {
		t.Fatalf("event = %q, want error", env.Event)
	}
	var p realtime.ErrorPayload
	if err := env.Decode(&p); err != nil || p.Message != "not a participant" {
		t.Fatalf("payload = %+v, err = %v", p, err)
	}
	if f.hub.RoomSize(42) != 0 {
		t.Fatal("outsider ended up in the room")
	}
}

func TestSendWithoutJoinIsRejected(t *testing.T) {
	f := newHubFixture(t, &allowAccess{allowed: map[int]bool{1: true}})

	alice := f.dial(t, 1)
	sendEnvelope(t, alice, realtime.EventSendMessage, realtime.SendPayload{EventID: 42, Message: "sneaky"})

	env := readEnvelope(t, alice)
	if env.Event != realtime.EventError {
		t.Fatalf("event = %q, want error", env.Event)
	}
	var p realtime.ErrorPayload
	if err := env.Decode(&p); err != nil || p.Message != "not in room" {
		t.Fatalf("payload = %+v, err = %v", p, err)
	}
	if len(f.store.texts()) != 0 {
		t.Fatal("rejected message was persisted")
	}
}

func TestEmptyMessageIsRejected(t *testing.T) {
	f := newHubFixture(t, &allowAccess{allowed: map[int]bool{1: true}})

	alice := f.dial(t, 1)
	sendEnvelope(t, alice, realtime.EventJoinRoom, realtime.RoomPayload{EventID: 42})
	waitForRoomSize(t, f.hub, 42, 1)

	sendEnvelope(t, alice, realtime.EventSendMessage, realtime.SendPayload{EventID: 42, Message: "   "})
	env := readEnvelope(t, alice)
	if env.Event != realtime.EventError {
		t.Fatalf("event = %q, want error", env.Event)
	}
}

// expectConnClosed fails unless the server has dropped the connection. A
// read timeout means the connection is still open, i.e. it was admitted.
func expectConnClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if err == nil {
		t.Fatal("received a frame on a connection that should have been rejected")
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		t.Fatal("connection was admitted past the limit")
	}
}

func TestRejectedConnectionDoesNotFreeCapacity(t *testing.T) {
	f := newHubFixtureWithLimit(t, &allowAccess{allowed: map[int]bool{1: true, 2: true, 3: true}}, 1)

	alice := f.dial(t, 1)
	sendEnvelope(t, alice, realtime.EventJoinRoom, realtime.RoomPayload{EventID: 42})
	waitForRoomSize(t, f.hub, 42, 1)

	// Over the limit: closed without ever being counted.
	second := f.dial(t, 2)
	expectConnClosed(t, second)

	// Let the rejected connection's unregister drain before probing the slot.
	time.Sleep(50 * time.Millisecond)

	// The slot is still held by alice, so the next connection is rejected too.
	third := f.dial(t, 3)
	expectConnClosed(t, third)
	if f.hub.RoomSize(42) != 1 {
		t.Fatalf("room size = %d, want 1", f.hub.RoomSize(42))
	}

	// Closing the counted connection frees the slot for real.
	alice.Close()
	waitForRoomSize(t, f.hub, 42, 0)

	replacement := f.dial(t, 3)
	sendEnvelope(t, replacement, realtime.EventJoinRoom, realtime.RoomPayload{EventID: 42})
	waitForRoomSize(t, f.hub, 42, 1)
}

func TestLeaveUnknownRoomIsNoop(t *testing.T) {
	f := newHubFixture(t, &allowAccess{allowed: map[int]bool{1: true}})

	alice := f.dial(t, 1)
	sendEnvelope(t, alice, realtime.EventLeaveRoom, realtime.RoomPayload{EventID: 99})

	// No error frame for an idempotent leave; the connection stays usable.
	sendEnvelope(t, alice, realtime.EventJoinRoom, realtime.RoomPayload{EventID: 42})
	waitForRoomSize(t, f.hub, 42, 1)
}
