// Package stream serves live subscribers: the SSE event stream and the
// WebSocket hub. Both attach to the telemetry bus for the lifetime of a
// client connection and detach synchronously when it goes away.
package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/HerbHall/pulseboard/internal/telemetry"
	"github.com/HerbHall/pulseboard/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const keepAliveInterval = 15 * time.Second

// sendBufferSize is the per-subscriber queue between the publisher and the
// connection writer. A slow client drops events rather than stalling the
// ingest path.
const sendBufferSize = 64

var liveSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "pulseboard_live_subscribers",
	Help: "Number of connected live stream subscribers (SSE and WebSocket).",
})

func init() {
	prometheus.MustRegister(liveSubscribers)
}

// SSEHandler serves the server-sent events stream of ingested samples.
type SSEHandler struct {
	bus    *telemetry.Bus
	logger *zap.Logger
}

// NewSSEHandler creates the SSE handler.
func NewSSEHandler(bus *telemetry.Bus, logger *zap.Logger) *SSEHandler {
	return &SSEHandler{bus: bus, logger: logger}
}

// RegisterRoutes mounts the events endpoint on the mux.
func (h *SSEHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /events", h.handleEvents)
}

// handleEvents holds the connection open, emitting a ready event
// immediately, a metric event per publish, and a comment keep-alive every
// 15 seconds so idle connections survive intermediaries. Disconnect
// unsubscribes before the handler returns.
func (h *SSEHandler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Per-connection queue; the bus callback must never block a publish.
	events := make(chan models.MetricSample, sendBufferSize)
	unsubscribe := h.bus.Subscribe(func(sample models.MetricSample) {
		select {
		case events <- sample:
		default:
		}
	})
	defer unsubscribe()

	liveSubscribers.Inc()
	defer liveSubscribers.Dec()

	fmt.Fprint(w, "event: ready\ndata: {}\n\n")
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case sample := <-events:
			data, err := json.Marshal(sample)
			if err != nil {
				h.logger.Warn("failed to encode sample for SSE", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: metric\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}
