package control

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/meeting-copilot/internal/logging"
	"github.com/meeting-copilot/internal/voice"
)

const (
	clientSendBuffer = 64
	writeWait        = 5 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = pongWait * 9 / 10
	maxIntentBytes   = 4096
)

// Event is pushed to every connected overlay.
type Event struct {
	Type   string        `json:"type"`
	Text   string        `json:"text,omitempty"`
	Wake   bool          `json:"wake,omitempty"`
	At     time.Time     `json:"at"`
	Status *Status       `json:"status,omitempty"`
	Recent []voice.Entry `json:"recent,omitempty"`
}

// Intent is a command sent by an overlay.
type Intent struct {
	Type   string `json:"type"`
	Muted  bool   `json:"muted,omitempty"`
	Mode   string `json:"mode,omitempty"`
	Source string `json:"source,omitempty"`
}

// Hub is a voice.Presenter that fans events out to websocket clients and
// turns their intents into Controller calls. Slow clients lose events
// rather than stall the pipeline.
type Hub struct {
	ctrl     Controller
	upgrader websocket.Upgrader
	now      func() time.Time

	mu      sync.Mutex
	clients map[*hubClient]struct{}

	dropped atomic.Int64
}

type hubClient struct {
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

func (c *hubClient) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// NewHub accepts connections from any origin; bind the server to loopback.
func NewHub(ctrl Controller) *Hub {
	return &Hub{
		ctrl:     ctrl,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		now:      time.Now,
		clients:  make(map[*hubClient]struct{}),
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped counts events not delivered to slow clients.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

func (h *Hub) AddTranscript(text string, isWake bool) {
	h.Broadcast(Event{Type: "transcript", Text: text, Wake: isWake})
}

func (h *Hub) SetResponse(text string) {
	h.Broadcast(Event{Type: "response", Text: text})
}

func (h *Hub) Warn(msg string) {
	h.Broadcast(Event{Type: "warning", Text: msg})
}

// Broadcast queues ev for every client without blocking.
func (h *Hub) Broadcast(ev Event) {
	if ev.At.IsZero() {
		ev.At = h.now()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		logging.Warnw("hub: marshal event failed", "type", ev.Type, "err", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) sendTo(c *hubClient, ev Event) {
	if ev.At.IsZero() {
		ev.At = h.now()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- b:
	default:
		h.dropped.Add(1)
	}
}

// ServeHTTP upgrades the request and starts the client pumps. The client
// first receives the current status and recent transcripts.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warnw("hub: websocket upgrade failed", "err", err)
		return
	}
	c := &hubClient{conn: conn, send: make(chan []byte, clientSendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	logging.Infow("hub: client connected", "remote", r.RemoteAddr, "clients", h.Clients())

	st := h.ctrl.Status()
	h.sendTo(c, Event{Type: "status", Status: &st, Recent: h.ctrl.RecentTranscripts(10)})
	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) remove(c *hubClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

func (h *Hub) writePump(c *hubClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

func (h *Hub) readPump(c *hubClient) {
	defer h.remove(c)
	c.conn.SetReadLimit(maxIntentBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Debugw("hub: client read error", "err", err)
			}
			return
		}
		var in Intent
		if err := json.Unmarshal(data, &in); err != nil {
			h.sendTo(c, Event{Type: "error", Text: "invalid intent: " + err.Error()})
			continue
		}
		h.handleIntent(c, in)
	}
}

func (h *Hub) handleIntent(c *hubClient, in Intent) {
	var err error
	switch in.Type {
	case "mute":
		h.ctrl.SetMuted(in.Muted)
	case "mode":
		var m voice.Mode
		if m, err = voice.ParseMode(in.Mode); err == nil {
			err = h.ctrl.SetMode(m)
		}
	case "source":
		err = h.ctrl.SwitchSource(in.Source)
	case "quit":
		h.ctrl.Quit()
		return
	case "status":
	default:
		h.sendTo(c, Event{Type: "error", Text: "unknown intent " + in.Type})
		return
	}
	if err != nil {
		h.sendTo(c, Event{Type: "error", Text: err.Error()})
		return
	}
	st := h.ctrl.Status()
	h.sendTo(c, Event{Type: "status", Status: &st})
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}
