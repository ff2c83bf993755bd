package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"codeberg.org/mutker/telemetryd/internal/errors"
	"codeberg.org/mutker/telemetryd/internal/logger"
	"codeberg.org/mutker/telemetryd/internal/sink"
	"codeberg.org/mutker/telemetryd/internal/telemetry"
)

const (
	// wsSendBufferSize is the per-client outbound queue length.
	wsSendBufferSize = 64
	wsMaxMessageSize = 512
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingInterval   = wsPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are handled by the CORS middleware.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

var _ sink.Sink = (*Hub)(nil)

// Hub pushes every published reading to the connected stream clients.
// It is a sink.Sink so the collector can fan out to it.
type Hub struct {
	logger  logger.Logger
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	closed  bool
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		logger:  log,
		clients: make(map[*wsClient]struct{}),
	}
}

// Publish queues r for every client. A client whose queue is full misses
// the reading rather than stalling the collector.
func (h *Hub) Publish(_ context.Context, r telemetry.Reading) error {
	data, err := json.Marshal(r)
	if err != nil {
		return errors.New().Wrap(sink.ErrEncodeFailed, err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	dropped := 0
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Debug().Int("clients", dropped).Str("device_id", r.DeviceID).Msg("Stream clients too slow, reading dropped")
	}

	return nil
}

// Close disconnects all clients and refuses new ones. Safe to call twice.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}

	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

func (h *Hub) register(c *wsClient) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Int("clients", count).Msg("Stream client connected")

	return true
}

// unregister closes the send queue only if the client was still
// registered, so Close and a failing read pump never both close it.
func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	_, existed := h.clients[c]
	if existed {
		delete(h.clients, c)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if existed {
		h.logger.Debug().Int("clients", count).Msg("Stream client disconnected")
	}
}

// handleStream upgrades to a websocket that receives each stored reading
// as a JSON text frame.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the client.
		s.logger.Debug().Err(err).Msg("Websocket upgrade failed")
		return
	}

	c := &wsClient{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, wsSendBufferSize),
	}
	if !s.hub.register(c) {
		//nolint:errcheck // best-effort close frame
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(wsWriteWait))
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump discards client messages and keeps the read deadline alive.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(wsMaxMessageSize)
	//nolint:errcheck // deadline errors surface on the next read
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn().Err(err).Msg("Stream read failed")
			}
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			//nolint:errcheck // write errors surface below
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				//nolint:errcheck // best-effort close frame
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // write errors surface below
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
