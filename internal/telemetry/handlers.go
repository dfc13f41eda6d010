package telemetry

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/HerbHall/pulseboard/pkg/models"
	"go.uber.org/zap"
)

// Fallback reads recent samples from durable storage when the in-memory
// buffer has nothing for the requested scope. Satisfied by *journal.Journal.
type Fallback interface {
	ReadRecent(deviceID string, cutoff time.Time, limit int) []models.MetricSample
	ReadRecentAll(cutoff time.Time, limit int) []models.MetricSample
}

// Handler serves the recent-samples endpoint.
type Handler struct {
	buffer   *Buffer
	fallback Fallback
	logger   *zap.Logger
}

// NewHandler creates the recent-samples HTTP handler.
func NewHandler(buffer *Buffer, fallback Fallback, logger *zap.Logger) *Handler {
	return &Handler{buffer: buffer, fallback: fallback, logger: logger}
}

// RegisterRoutes mounts the samples endpoint on the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /metrics", h.handleRecent)
}

// handleRecent serves the live tail. The buffer is the primary source;
// deviceId decides whether it counts as populated and which journal read
// backs it up, but buffer results are served unfiltered -- scoping to one
// device is the caller's job.
func (h *Handler) handleRecent(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("deviceId")
	limit := parseLimit(r.URL.Query().Get("limit"), 300, 1, 2000)

	samples := h.buffer.Recent(limit)

	haveMemory := len(samples) > 0
	if deviceID != "" {
		haveMemory = false
		for i := range samples {
			if samples[i].DeviceID == deviceID {
				haveMemory = true
				break
			}
		}
	}

	if !haveMemory {
		cutoff := time.Now().Add(-time.Hour)
		if deviceID != "" {
			samples = h.fallback.ReadRecent(deviceID, cutoff, limit)
		} else {
			samples = h.fallback.ReadRecentAll(cutoff, limit)
		}
	}

	if samples == nil {
		samples = []models.MetricSample{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"samples": samples})
}

func parseLimit(raw string, def, lo, hi int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
