package models

import "time"

// DeviceStatus represents a device's presence as derived from the recency
// of its last successful ingest.
type DeviceStatus string

const (
	DeviceStatusOnline  DeviceStatus = "online"
	DeviceStatusOffline DeviceStatus = "offline"
)

// Device is an enrolled (or auto-provisioned) telemetry source. The token
// is stored only as a SHA-256 digest; the plaintext is returned once at
// enrollment and cannot be recovered.
type Device struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	TokenHash  string     `json:"-"`
	LastSeenAt *time.Time `json:"lastSeenAt,omitempty"`
	Hostname   string     `json:"hostname,omitempty"`
}

// DeviceView is a Device with computed presence, as served by GET /devices.
type DeviceView struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Status           DeviceStatus `json:"status"`
	Hostname         string       `json:"hostname,omitempty"`
	SecondsSinceSeen *int64       `json:"secondsSinceSeen,omitempty"`
}
