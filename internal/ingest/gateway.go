// Package ingest implements the request-facing gateway for agent
// heartbeats: authentication, payload normalization, and the fan-out to
// the sample buffer, the journal, presence, and live subscribers.
package ingest

import (
	"encoding/json"
	"time"

	"github.com/HerbHall/pulseboard/internal/device"
	"github.com/HerbHall/pulseboard/internal/journal"
	"github.com/HerbHall/pulseboard/internal/telemetry"
	"github.com/HerbHall/pulseboard/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var samplesIngested = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pulseboard_samples_ingested_total",
		Help: "Number of heartbeat samples accepted.",
	},
	[]string{"device_id"},
)

func init() {
	prometheus.MustRegister(samplesIngested)
}

// Gateway orchestrates one ingest call end to end. The in-memory path
// (buffer append, presence, publish) is required for acknowledgment; the
// journal append is queued fire-and-forget and its failure never reaches
// the agent.
type Gateway struct {
	registry *device.Registry
	buffer   *telemetry.Buffer
	journal  *journal.Journal
	bus      *telemetry.Bus
	logger   *zap.Logger

	now func() time.Time
}

// NewGateway wires the ingestion gateway.
func NewGateway(registry *device.Registry, buffer *telemetry.Buffer, jrnl *journal.Journal, bus *telemetry.Bus, logger *zap.Logger) *Gateway {
	return &Gateway{
		registry: registry,
		buffer:   buffer,
		journal:  jrnl,
		bus:      bus,
		logger:   logger,
		now:      time.Now,
	}
}

// heartbeatEnvelope is the top level of a heartbeat body. Metrics stays raw
// so both the wrapped shape and the flat shape can be resolved from it.
type heartbeatEnvelope struct {
	DeviceID     string          `json:"deviceId"`
	AgentToken   string          `json:"agentToken"`
	AgentVersion string          `json:"agentVersion"`
	Hostname     string          `json:"hostname"`
	Timestamp    string          `json:"timestamp"`
	Metrics      json.RawMessage `json:"metrics"`
}

// metricsPayload carries the metric fields plus the sample-level timestamp
// the agent may attach alongside them.
type metricsPayload struct {
	models.Metrics
	Timestamp string `json:"timestamp"`
}

// normalize resolves either payload shape into one MetricSample. Fields
// absent in the payload stay absent in the sample. The timestamp comes
// from the metrics object if parseable, else from the envelope, else the
// server clock.
func (g *Gateway) normalize(env *heartbeatEnvelope, body []byte, deviceID string) (models.MetricSample, error) {
	var payload metricsPayload
	if len(env.Metrics) > 0 {
		if err := json.Unmarshal(env.Metrics, &payload); err != nil {
			return models.MetricSample{}, err
		}
	} else {
		// Flat shape: metric fields are siblings of deviceId/hostname.
		if err := json.Unmarshal(body, &payload); err != nil {
			return models.MetricSample{}, err
		}
	}

	ts := parseTimestamp(payload.Timestamp)
	if ts.IsZero() {
		ts = parseTimestamp(env.Timestamp)
	}
	if ts.IsZero() {
		ts = g.now()
	}

	agentVersion := env.AgentVersion
	if agentVersion == "" {
		agentVersion = "unknown"
	}
	hostname := env.Hostname
	if hostname == "" {
		hostname = "unknown"
	}

	return models.MetricSample{
		Timestamp:    ts,
		DeviceID:     deviceID,
		AgentVersion: agentVersion,
		Hostname:     hostname,
		Metrics:      payload.Metrics,
	}, nil
}

// Ingest runs the post-auth half of the contract: buffer append, queued
// journal append, presence touch, live publish.
func (g *Gateway) Ingest(sample models.MetricSample) {
	g.buffer.Append(sample)
	g.journal.Enqueue(sample)
	g.registry.Touch(sample.DeviceID, sample.Hostname)
	g.bus.Publish(sample)

	samplesIngested.WithLabelValues(sample.DeviceID).Inc()
	g.logger.Info("heartbeat",
		zap.String("device_id", sample.DeviceID),
		zap.String("hostname", sample.Hostname),
		zap.Time("sample_ts", sample.Timestamp),
	)
}

func parseTimestamp(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return ts
}
