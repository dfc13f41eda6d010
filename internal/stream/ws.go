package stream

import (
	"net/http"
	"time"

	"github.com/HerbHall/pulseboard/internal/telemetry"
	"github.com/HerbHall/pulseboard/pkg/models"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// WSHandler provides the WebSocket live stream of ingested samples.
type WSHandler struct {
	hub    *Hub
	bus    *telemetry.Bus
	logger *zap.Logger
}

// Compile-time check that WSHandler implements the server interface.
var _ interface {
	RegisterRoutes(mux *http.ServeMux)
} = (*WSHandler)(nil)

// NewWSHandler creates a WebSocket handler and attaches it to the bus.
// Every published sample is broadcast to all connected clients.
func NewWSHandler(bus *telemetry.Bus, logger *zap.Logger) *WSHandler {
	h := &WSHandler{
		hub:    NewHub(logger),
		bus:    bus,
		logger: logger,
	}
	bus.Subscribe(func(sample models.MetricSample) {
		h.hub.Broadcast(MetricMessage(sample))
	})
	return h
}

// RegisterRoutes registers WebSocket routes on the server mux.
func (h *WSHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", h.handleMetricStream)
}

// Hub returns the underlying hub, for tests.
func (h *WSHandler) Hub() *Hub {
	return h.hub
}

// handleMetricStream upgrades the connection and streams samples until the
// client disconnects.
func (h *WSHandler) handleMetricStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Error("websocket accept failed", zap.Error(err))
		return
	}

	client := &Client{
		conn:   conn,
		remote: r.RemoteAddr,
		send:   make(chan Message, 256),
		logger: h.logger,
	}

	h.hub.Register(client)

	// Greet so consumers can tell the stream is live before data flows.
	client.send <- Message{Type: MessageReady, Timestamp: time.Now()}

	// Run read and write pumps. When either exits, clean up.
	ctx := r.Context()
	done := make(chan struct{})
	go func() {
		client.writePump(ctx)
		close(done)
	}()

	// readPump blocks until client disconnects.
	client.readPump(ctx)

	// Client disconnected -- stop write pump and unregister.
	h.hub.Unregister(client)
	conn.Close(websocket.StatusNormalClosure, "")
	<-done
}
