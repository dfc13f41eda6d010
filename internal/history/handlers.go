package history

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/HerbHall/pulseboard/internal/server"
	"github.com/HerbHall/pulseboard/pkg/models"
	"go.uber.org/zap"
)

// SampleSource reads recent samples for one device. Satisfied by
// *journal.Journal.
type SampleSource interface {
	ReadRecent(deviceID string, cutoff time.Time, limit int) []models.MetricSample
}

// Handler serves the bucketed history endpoint.
type Handler struct {
	source     SampleSource
	maxSamples int
	logger     *zap.Logger
}

// NewHandler creates the history HTTP handler.
func NewHandler(source SampleSource, logger *zap.Logger) *Handler {
	return &Handler{source: source, maxSamples: MaxSamples, logger: logger}
}

// SetMaxSamples overrides the per-request journal read cap. Zero or
// negative keeps the current value.
func (h *Handler) SetMaxSamples(n int) {
	if n > 0 {
		h.maxSamples = n
	}
}

// RegisterRoutes mounts the history endpoint on the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /metrics/history", h.handleHistory)
}

type historyResponse struct {
	OK       bool    `json:"ok"`
	Minutes  int     `json:"minutes"`
	BucketMs int64   `json:"bucketMs"`
	Points   []Point `json:"points"`
}

// handleHistory aggregates a device's journal into fixed-width buckets.
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("deviceId")
	if deviceID == "" {
		server.BadRequest(w, "deviceId is required", r.URL.Path)
		return
	}

	minutes := 60
	if raw := r.URL.Query().Get("minutes"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			minutes = n
		}
	}
	minutes = ClampMinutes(minutes)
	bucketMs := BucketMs(minutes)

	now := time.Now()
	samples := h.source.ReadRecent(deviceID, Cutoff(now, minutes), h.maxSamples)
	points := Aggregate(samples, bucketMs)
	if points == nil {
		points = []Point{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(historyResponse{
		OK:       true,
		Minutes:  minutes,
		BucketMs: bucketMs,
		Points:   points,
	})
}
