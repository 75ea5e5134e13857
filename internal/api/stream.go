package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/sendspin/endpoint-core/internal/monitor"
)

// WebSocket connection tuning, generalized from the teacher's
// api/v2/streams.go constants of the same name.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	clientSendBuf  = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// streamMessage is the envelope every push over /api/stream uses: "type"
// names one of the three channels spec §6 defines (status_update,
// device_list_changed, log_entry).
type streamMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// streamClient is one connected WebSocket subscriber.
type streamClient struct {
	hub    *streamHub
	conn   *websocket.Conn
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

func (c *streamClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// streamHub fans every push out to every connected client, generalizing the
// teacher's per-stream-type client registry into the single multiplexed
// channel spec §6 describes. It also implements io.Writer so
// logging.AddSink can feed it raw structured-log lines for the log_entry
// channel — device_list_changed has no producer yet, since neither
// backend.Backend exposes a hotplug subscription, only query-on-demand
// enumeration; the message type and encoding exist for when one does.
type streamHub struct {
	mu      sync.Mutex
	clients map[*streamClient]struct{}
	log     *slog.Logger
}

func newStreamHub(log *slog.Logger) *streamHub {
	return &streamHub{clients: make(map[*streamClient]struct{}), log: log}
}

func (h *streamHub) register(c *streamClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *streamHub) unregister(c *streamClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

func (h *streamHub) closeAll() {
	h.mu.Lock()
	clients := make([]*streamClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*streamClient]struct{})
	h.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}

// broadcast sends payload to every client's outbound queue. A client whose
// queue is full is dropped rather than allowed to stall every other
// subscriber, the same "a slow consumer never blocks the publisher"
// contract internal/events.Bus.TryPublish gives the rest of the system.
func (h *streamHub) broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.log.Warn("dropping slow websocket subscriber")
			delete(h.clients, c)
			c.close()
		}
	}
}

func (h *streamHub) broadcastStatus(su monitor.StatusUpdate) {
	payload, err := json.Marshal(streamMessage{Type: "status_update", Data: su})
	if err != nil {
		h.log.Error("marshal status_update", "error", err)
		return
	}
	h.broadcast(payload)
}

// Write implements io.Writer so internal/logging can tee structured log
// lines here for the log_entry channel. p is already a complete JSON
// object from the slog JSON handler; it's forwarded as the Data field
// verbatim rather than re-encoded.
func (h *streamHub) Write(p []byte) (int, error) {
	raw := json.RawMessage(append([]byte(nil), p...))
	payload, err := json.Marshal(streamMessage{Type: "log_entry", Data: raw})
	if err != nil {
		return len(p), nil
	}
	h.broadcast(payload)
	return len(p), nil
}

// handleStream upgrades GET /api/stream to a WebSocket connection and
// immediately sends a status_update snapshot before returning control to
// the read/write pumps — spec §6: "clients subscribing late receive an
// immediate snapshot".
func (c *Controller) handleStream(ctx echo.Context) error {
	conn, err := upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		c.log.Warn("websocket upgrade failed", "error", err)
		return err
	}

	client := &streamClient{hub: c.hub, conn: conn, send: make(chan []byte, clientSendBuf)}
	c.hub.register(client)

	if c.broadcaster != nil {
		if payload, err := json.Marshal(streamMessage{Type: "status_update", Data: c.broadcaster.Snapshot()}); err == nil {
			select {
			case client.send <- payload:
			default:
			}
		}
	}

	go client.writePump()
	go client.readPump(c.log)

	return nil
}

func (client *streamClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (client *streamClient) readPump(log *slog.Logger) {
	defer func() {
		client.hub.unregister(client)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn("websocket error", "error", err)
			}
			return
		}
	}
}
