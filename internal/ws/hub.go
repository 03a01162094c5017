// Package ws is the server side of the event chat socket: one Hub owning
// the room membership, one Client per connection.
package ws

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/R-koma/calendar-chat/internal/logger"
	"github.com/R-koma/calendar-chat/internal/model"
	"github.com/R-koma/calendar-chat/internal/realtime"
)

// EventAccess answers whether a user may chat in an event's room.
type EventAccess interface {
	IsParticipant(ctx context.Context, eventID, userID int) (bool, error)
}

// MessageStore persists chat messages as they are broadcast.
type MessageStore interface {
	Create(ctx context.Context, id string, eventID, userID int, text string, createdAt time.Time) error
}

// Hub routes room joins, leaves and messages. Rooms are keyed by event id;
// a client may sit in several rooms over its lifetime but the per-room set
// is what a broadcast fans out to.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[int]map[*Client]struct{}
	total    int
	maxConns int

	access EventAccess
	msgs   MessageStore

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(access EventAccess, msgs MessageStore, maxConns int) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Hub{
		rooms:      make(map[int]map[*Client]struct{}),
		maxConns:   maxConns,
		access:     access,
		msgs:       msgs,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) Register(c *Client)   { h.register <- c }
func (h *Hub) Unregister(c *Client) { h.unregister <- c }

// Done is closed once Run has finished shutting down.
func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) shutdown() {
	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	seen := make(map[*Client]struct{}, h.total)
	for _, clients := range h.rooms {
		for c := range clients {
			seen[c] = struct{}{}
		}
	}
	h.rooms = make(map[int]map[*Client]struct{})
	h.total = 0
	h.mu.Unlock()

	for c := range seen {
		c.Close()
	}
	for c := range seen {
		c.Wait()
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if h.total >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting user=%d", h.maxConns, c.userID)
		c.Close()
		return
	}
	h.total++
	c.registered = true
	h.mu.Unlock()
}

// removeClient drops the client from every room it sat in. Only clients that
// addClient actually counted decrement total; a rejected connection (or a
// second unregister for the same client) must not free capacity it never held.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	for eventID, clients := range h.rooms {
		if _, ok := clients[c]; ok {
			delete(clients, c)
			if len(clients) == 0 {
				delete(h.rooms, eventID)
			}
		}
	}
	if c.registered {
		c.registered = false
		h.total--
	}
	h.mu.Unlock()

	// Network I/O outside the lock.
	c.Close()
}

// HandleEnvelope dispatches one incoming socket frame.
func (h *Hub) HandleEnvelope(ctx context.Context, c *Client, env realtime.Envelope) {
	switch env.Event {
	case realtime.EventJoinRoom:
		h.handleJoin(ctx, c, env)
	case realtime.EventLeaveRoom:
		h.handleLeave(c, env)
	case realtime.EventSendMessage:
		h.handleSend(ctx, c, env)
	default:
		h.sendError(c, "unknown event type")
	}
}

func (h *Hub) handleJoin(ctx context.Context, c *Client, env realtime.Envelope) {
	var p realtime.RoomPayload
	if err := env.Decode(&p); err != nil || p.EventID == 0 {
		h.sendError(c, "event_id required")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ok, err := h.access.IsParticipant(ctx, p.EventID, c.userID)
	if err != nil {
		logger.Errorf("ws check participant event=%d user=%d: %v", p.EventID, c.userID, err)
		h.sendError(c, "internal error")
		return
	}
	if !ok {
		h.sendError(c, "not a participant")
		return
	}

	h.mu.Lock()
	if _, exists := h.rooms[p.EventID]; !exists {
		h.rooms[p.EventID] = make(map[*Client]struct{})
	}
	h.rooms[p.EventID][c] = struct{}{}
	h.mu.Unlock()
}

// handleLeave is idempotent: leaving a room the client is not in is a no-op.
func (h *Hub) handleLeave(c *Client, env realtime.Envelope) {
	var p realtime.RoomPayload
	if err := env.Decode(&p); err != nil || p.EventID == 0 {
		h.sendError(c, "event_id required")
		return
	}
	h.mu.Lock()
	if clients, ok := h.rooms[p.EventID]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.rooms, p.EventID)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) handleSend(ctx context.Context, c *Client, env realtime.Envelope) {
	defer logger.DeferLogDuration("ws.handleSend", time.Now())()

	var p realtime.SendPayload
	if err := env.Decode(&p); err != nil || p.EventID == 0 {
		h.sendError(c, "event_id required")
		return
	}
	text := strings.TrimSpace(p.Message)
	if text == "" {
		h.sendError(c, "message required")
		return
	}

	// The sender must have joined the room on this connection. This keeps a
	// message from a stale tab out of a room the user has left.
	h.mu.RLock()
	_, inRoom := h.rooms[p.EventID][c]
	h.mu.RUnlock()
	if !inRoom {
		h.sendError(c, "not in room")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	now := time.Now().UTC()
	msg := model.Message{
		ID:        uuid.NewString(),
		User:      c.username,
		Message:   text,
		Timestamp: now.Format(time.RFC3339),
	}
	if err := h.msgs.Create(ctx, msg.ID, p.EventID, c.userID, text, now); err != nil {
		logger.Errorf("ws save message event=%d user=%d: %v", p.EventID, c.userID, err)
		h.sendError(c, "failed to save message")
		return
	}

	h.broadcast(p.EventID, msg)
}

// broadcast fans a message out to every member of the room, the sender
// included. The sender renders its own message from the echo, never locally.
func (h *Hub) broadcast(eventID int, msg model.Message) {
	env, err := realtime.NewEnvelope(realtime.EventReceiveMessage, msg)
	if err != nil {
		logger.Errorf("ws encode broadcast event=%d: %v", eventID, err)
		return
	}

	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[eventID]))
	for c := range h.rooms[eventID] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		h.sendToClient(c, env)
	}
}

func (h *Hub) sendError(c *Client, msg string) {
	env, err := realtime.NewEnvelope(realtime.EventError, realtime.ErrorPayload{Message: msg})
	if err != nil {
		return
	}
	h.sendToClient(c, env)
}

// sendToClient enqueues without blocking; a client with a full buffer is too
// slow to keep and gets dropped.
func (h *Hub) sendToClient(c *Client, env realtime.Envelope) {
	select {
	case <-c.done:
	case c.send <- env:
	default:
		logger.Errorf("ws send buffer full user=%d, dropping connection", c.userID)
		h.Unregister(c)
	}
}

// RoomSize reports the number of connections in a room.
func (h *Hub) RoomSize(eventID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[eventID])
}
