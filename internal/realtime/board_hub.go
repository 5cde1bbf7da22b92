package realtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	sendBuffer   = 16
	maxReadBytes = 512
)

type boardClient struct {
	conn *websocket.Conn
	send chan []byte
	// stages limits delivery to events touching these stage keys; empty
	// means every event.
	stages map[string]struct{}
}

func (c *boardClient) wants(stageKeys []string) bool {
	if len(c.stages) == 0 {
		return true
	}
	for _, k := range stageKeys {
		if _, ok := c.stages[k]; ok {
			return true
		}
	}
	return false
}

// BoardHub pushes pipeline board updates to connected websocket clients.
type BoardHub struct {
	mu       sync.RWMutex
	clients  map[*boardClient]struct{}
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewBoardHub(logger *slog.Logger) *BoardHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &BoardHub{
		clients: make(map[*boardClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ServeWS upgrades the request and blocks until the client goes away. The
// optional "stage" query parameter is a comma separated list of stage keys
// to subscribe to.
func (h *BoardHub) ServeWS(w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &boardClient{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		stages: parseStages(r.URL.Query().Get("stage")),
	}
	h.register(c)
	go h.writeLoop(c)
	h.readLoop(c)
	return nil
}

// Broadcast sends v as JSON to every client subscribed to one of stageKeys.
// Clients whose buffer is full are disconnected.
func (h *BoardHub) Broadcast(stageKeys []string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var slow []*boardClient
	h.mu.RLock()
	for c := range h.clients {
		if !c.wants(stageKeys) {
			continue
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow board client", "remote", c.conn.RemoteAddr().String())
		h.unregister(c)
	}
	return nil
}

// Clients returns the number of connected clients.
func (h *BoardHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *BoardHub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*boardClient]struct{})
	h.mu.Unlock()
	for c := range clients {
		close(c.send)
	}
}

func (h *BoardHub) register(c *boardClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *BoardHub) unregister(c *boardClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// readLoop only services control frames; board clients never send data.
func (h *BoardHub) readLoop(c *boardClient) {
	defer h.unregister(c)
	c.conn.SetReadLimit(maxReadBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *BoardHub) writeLoop(c *boardClient) {
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
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func parseStages(raw string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out[k] = struct{}{}
		}
	}
	return out
}
