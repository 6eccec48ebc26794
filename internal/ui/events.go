package ui

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/sweetshop/internal/model"
)

// WebSocket configuration constants.
const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 512
	heartbeatInterval = 30 * time.Second
	sendBufferSize    = 16
)

// subscriber is one connected browser.
type subscriber struct {
	send   chan model.TableEvent
	cancel context.CancelFunc
}

// EventHub pushes table events to connected browsers.
type EventHub struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger
	mu       sync.RWMutex
	clients  map[*websocket.Conn]*subscriber
}

// NewEventHub creates a new EventHub instance.
func NewEventHub(logger *zap.Logger) *EventHub {
	return &EventHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
		logger:  logger,
		clients: make(map[*websocket.Conn]*subscriber),
	}
}

// RegisterRoutes registers the WebSocket route with the router.
func (h *EventHub) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ws", h.HandleWebSocket).Methods(http.MethodGet)
}

// HandleWebSocket upgrades the request and subscribes the connection.
//
//nolint:contextcheck // WebSocket connections outlive the HTTP request context
func (h *EventHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}

	// The request context ends when this handler returns.
	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscriber{
		send:   make(chan model.TableEvent, sendBufferSize),
		cancel: cancel,
	}

	h.mu.Lock()
	h.clients[conn] = sub
	h.mu.Unlock()

	h.logger.Info("websocket client connected", zap.String("remote_addr", conn.RemoteAddr().String()))

	go h.writePump(ctx, conn, sub)
	go h.readPump(ctx, conn, cancel)
}

// Broadcast queues an event for every connected browser. Subscribers
// whose buffer is full miss the event; the next repaint carries the
// whole table again.
func (h *EventHub) Broadcast(event model.TableEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn, sub := range h.clients {
		select {
		case sub.send <- event:
		default:
			h.logger.Warn("dropping table event for slow client",
				zap.String("remote_addr", conn.RemoteAddr().String()),
				zap.String("type", event.Type),
			)
		}
	}
}

// ClientCount returns the number of connected browsers.
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump drains incoming messages so control frames are processed.
func (h *EventHub) readPump(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc) {
	defer func() {
		cancel()
		h.removeClient(conn)
		if err := conn.Close(); err != nil {
			h.logger.Debug("error closing connection", zap.Error(err))
		}
	}()

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		h.logger.Error("failed to set read deadline", zap.Error(err))
		return
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.logger.Warn("websocket read error", zap.Error(err))
				}
				return
			}
			h.logger.Debug("received message", zap.ByteString("message", message))
		}
	}
}

// writePump forwards queued events and keeps the connection alive.
func (h *EventHub) writePump(ctx context.Context, conn *websocket.Conn, sub *subscriber) {
	heartbeat := time.NewTicker(heartbeatInterval)
	pingTicker := time.NewTicker(pingPeriod)

	defer func() {
		heartbeat.Stop()
		pingTicker.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			h.sendCloseMessage(conn)
			return
		case event := <-sub.send:
			if err := h.sendEvent(conn, event); err != nil {
				h.logger.Debug("failed to send table event", zap.Error(err))
				return
			}
		case <-heartbeat.C:
			ping := model.TableEvent{Type: model.TableEventPing, Timestamp: time.Now().UTC()}
			if err := h.sendEvent(conn, ping); err != nil {
				h.logger.Debug("failed to send heartbeat", zap.Error(err))
				return
			}
		case <-pingTicker.C:
			if err := h.sendPing(conn); err != nil {
				h.logger.Debug("failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

func (h *EventHub) sendEvent(conn *websocket.Conn, event model.TableEvent) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(event)
}

func (h *EventHub) sendPing(conn *websocket.Conn) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.PingMessage, nil)
}

func (h *EventHub) sendCloseMessage(conn *websocket.Conn) {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		h.logger.Debug("failed to set write deadline for close", zap.Error(err))
		return
	}

	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutting down")
	if err := conn.WriteMessage(websocket.CloseMessage, closeMsg); err != nil {
		h.logger.Debug("failed to send close message", zap.Error(err))
	}
}

func (h *EventHub) removeClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub, exists := h.clients[conn]; exists {
		sub.cancel()
		delete(h.clients, conn)
		h.logger.Info("websocket client disconnected", zap.String("remote_addr", conn.RemoteAddr().String()))
	}
}

// CloseAllConnections closes all active WebSocket connections.
func (h *EventHub) CloseAllConnections() {
	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.clients))
	for _, sub := range h.clients {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	// Cancelling makes each writePump send a close frame.
	for _, sub := range subs {
		sub.cancel()
	}

	time.Sleep(100 * time.Millisecond)

	h.mu.Lock()
	for conn := range h.clients {
		if err := conn.Close(); err != nil {
			h.logger.Debug("error closing connection", zap.Error(err))
		}
		delete(h.clients, conn)
	}
	h.mu.Unlock()

	h.logger.Info("all websocket connections closed")
}
