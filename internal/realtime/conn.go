package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/R-koma/calendar-chat/internal/logger"
	"github.com/R-koma/calendar-chat/internal/model"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufSize    = 64
)

var ErrClosed = errors.New("realtime: connection closed")

// Conn is the process-wide socket connection: dialed once at application
// start, handed to components explicitly, and closed at shutdown. It holds at
// most one inbound receive_message handler at a time; installing a handler
// replaces the previous one, which is what keeps delivery single-path across
// room switches.
type Conn struct {
	ws   *websocket.Conn
	send chan Envelope

	hmu     sync.RWMutex
	handler func(model.Message)

	done   chan struct{}
	once   sync.Once
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Dial connects to the server's /ws endpoint. header carries the auth cookies
// of the REST session.
func Dial(ctx context.Context, wsURL string, header http.Header) (*Conn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	c := &Conn{
		ws:   ws,
		send: make(chan Envelope, sendBufSize),
		done: make(chan struct{}),
	}
	pumpCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.wg.Add(2)
	go c.writePump(pumpCtx)
	go c.readPump(pumpCtx)
	return c, nil
}

// Emit queues a frame for sending. Returns ErrClosed after Close.
func (c *Conn) Emit(event EventType, data any) error {
	env, err := NewEnvelope(event, data)
	if err != nil {
		return err
	}
	// Check done first: with a buffered send channel a two-way select could
	// still enqueue after Close.
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- env:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// OnReceive installs fn as the single inbound message handler, replacing any
// previous one.
func (c *Conn) OnReceive(fn func(model.Message)) {
	c.hmu.Lock()
	c.handler = fn
	c.hmu.Unlock()
}

// OffReceive removes the inbound message handler. Safe to call when none is
// installed.
func (c *Conn) OffReceive() {
	c.hmu.Lock()
	c.handler = nil
	c.hmu.Unlock()
}

// Close tears the connection down. Safe to call multiple times.
func (c *Conn) Close() {
	c.once.Do(func() {
		c.cancel()
		close(c.done)
		c.ws.Close()
	})
}

// Wait blocks until both pump goroutines have exited.
func (c *Conn) Wait() {
	c.wg.Wait()
}

func (c *Conn) dispatch(env Envelope) {
	switch env.Event {
	case EventReceiveMessage:
		var m model.Message
		if err := json.Unmarshal(env.Data, &m); err != nil {
			logger.Errorf("realtime: decode receive_message: %v", err)
			return
		}
		c.hmu.RLock()
		fn := c.handler
		c.hmu.RUnlock()
		if fn != nil {
			fn(m)
		}
	case EventError:
		var p ErrorPayload
		if err := json.Unmarshal(env.Data, &p); err == nil {
			logger.Errorf("realtime: server error: %s", p.Message)
		}
	default:
		// Unknown inbound frames are ignored; the protocol may grow.
	}
}

func (c *Conn) readPump(ctx context.Context) {
	defer c.wg.Done()
	defer c.Close()

	c.ws.SetReadLimit(maxMessageSize)
	if err := c.ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logger.Errorf("realtime: set read deadline: %v", err)
		return
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Errorf("realtime: read: %v", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			logger.Errorf("realtime: decode frame: %v", err)
			continue
		}
		c.dispatch(env)
	}
}

func (c *Conn) writePump(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			if err := c.ws.WriteMessage(websocket.CloseMessage, nil); err != nil {
				logger.Errorf("realtime: close message: %v", err)
			}
			return
		case env := <-c.send:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logger.Errorf("realtime: set write deadline: %v", err)
				return
			}
			if err := c.ws.WriteJSON(env); err != nil {
				logger.Errorf("realtime: write: %v", err)
				return
			}
		case <-ticker.C:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
