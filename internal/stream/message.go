package stream

import (
	"time"

	"github.com/HerbHall/pulseboard/pkg/models"
)

// MessageType discriminates WebSocket messages.
type MessageType string

const (
	// MessageReady is sent once when a client connects.
	MessageReady MessageType = "ready"
	// MessageMetric carries one newly ingested sample.
	MessageMetric MessageType = "metric"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data,omitempty"`
}

// MetricMessage wraps a sample in a broadcast envelope.
func MetricMessage(sample models.MetricSample) Message {
	return Message{
		Type:      MessageMetric,
		Timestamp: time.Now(),
		Data:      sample,
	}
}
