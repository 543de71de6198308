package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/triadlabs/triad/conversation"
)

const (
	streamWriteTimeout = 5 * time.Second
	// streamBuffer bounds queued events per client; slow consumers are
	// dropped rather than allowed to stall the conversation.
	streamBuffer = 32
)

// StreamEvent is one appended turn pushed to stream subscribers.
type StreamEvent struct {
	Role string            `json:"role"`
	Turn conversation.Turn `json:"turn"`
}

// StreamHub fans each appended turn out to connected websocket clients. It
// implements conversation.Observer.
type StreamHub struct {
	mu       sync.Mutex
	clients  map[*streamClient]struct{}
	upgrader websocket.Upgrader
	logger   *zap.SugaredLogger
}

type streamClient struct {
	conn   *websocket.Conn
	events chan StreamEvent
}

// NewStreamHub constructs an empty hub.
func NewStreamHub(logger *zap.SugaredLogger) *StreamHub {
	return &StreamHub{
		clients: make(map[*streamClient]struct{}),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// TurnAppended queues the turn for every connected client. Must not
// block: it is called under the store's log lock.
func (h *StreamHub) TurnAppended(role conversation.Role, turn conversation.Turn) {
	event := StreamEvent{Role: role.String(), Turn: turn}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.events <- event:
		default:
			// client is not keeping up; close it out
			delete(h.clients, client)
			close(client.events)
			h.logger.Debugw("dropped slow stream client")
		}
	}
}

// handleStream upgrades the request and streams appended turns until the
// client disconnects.
func (h *Handler) handleStream(c *gin.Context) {
	conn, err := h.hub.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.logger.Debugw("websocket upgrade failed", "error", err)
		return
	}

	client := &streamClient{conn: conn, events: make(chan StreamEvent, streamBuffer)}
	h.hub.add(client)
	defer h.hub.remove(client)
	defer conn.Close()

	// Drain control frames so close handshakes are processed.
	go func() {
		for {
			if _, _, readErr := conn.ReadMessage(); readErr != nil {
				conn.Close()
				return
			}
		}
	}()

	for event := range client.events {
		conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		if err := conn.WriteJSON(event); err != nil {
			return
		}
	}
}

func (h *StreamHub) add(client *streamClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
}

func (h *StreamHub) remove(client *streamClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.events)
	}
	h.mu.Unlock()
}
