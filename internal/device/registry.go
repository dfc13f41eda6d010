// Package device implements the in-memory device registry and token
// verification for telemetry agents.
//
// The registry lives for the process lifetime only: device records are
// recreated by enrollment or auto-provisioning after a restart. Durable
// telemetry is the journal's concern, not the registry's.
package device

import (
	"strings"
	"sync"
	"time"

	"github.com/HerbHall/pulseboard/pkg/models"
	"go.uber.org/zap"
)

// OnlineThreshold is the default for how recently a device must have been
// seen to count as online.
const OnlineThreshold = 90 * time.Second

// Registry tracks enrolled devices and verifies their tokens. All methods
// are safe for concurrent use.
type Registry struct {
	mu        sync.Mutex
	devices   []*models.Device
	threshold time.Duration
	logger    *zap.Logger

	// now is swappable for presence tests.
	now func() time.Time
}

// NewRegistry creates an empty device registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		threshold: OnlineThreshold,
		logger:    logger,
		now:       time.Now,
	}
}

// SetOnlineThreshold overrides the presence threshold. Zero or negative
// keeps the current value.
func (r *Registry) SetOnlineThreshold(d time.Duration) {
	if d <= 0 {
		return
	}
	r.mu.Lock()
	r.threshold = d
	r.mu.Unlock()
}

// Enroll allocates a fresh id and token for a named device and returns the
// plaintext token (shown once). If a device with the same name already
// exists (case-insensitive), that record's id and token digest are replaced
// in place: the name match is treated as re-enrollment of the same device.
func (r *Registry) Enroll(name string) (id, token string, updatedExisting bool) {
	id = NewID()
	token = NewToken()
	hash := HashToken(token)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing := r.findByNameLocked(name); existing != nil {
		existing.ID = id
		existing.TokenHash = hash
		existing.LastSeenAt = nil
		if existing.Hostname == "" {
			existing.Hostname = name
		}
		r.logger.Info("device re-enrolled",
			zap.String("device_id", id),
			zap.String("name", existing.Name),
		)
		return id, token, true
	}

	r.devices = append(r.devices, &models.Device{ID: id, Name: name, TokenHash: hash})
	r.logger.Info("device enrolled",
		zap.String("device_id", id),
		zap.String("name", name),
	)
	return id, token, false
}

// Ensure auto-provisions a device the first time an unknown id presents a
// token. If no id match exists but a device's name matches the presented
// hostname (case-insensitive), that record is migrated to the new id
// instead of creating a duplicate. Returns the resulting record.
func (r *Registry) Ensure(id, token, hostname string) *models.Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d := r.findByIDLocked(id); d != nil {
		return d
	}

	if hostname != "" {
		if d := r.findByNameLocked(hostname); d != nil {
			d.ID = id
			if token != "" {
				d.TokenHash = HashToken(token)
			}
			r.logger.Info("device id migrated by hostname match",
				zap.String("device_id", id),
				zap.String("hostname", hostname),
			)
			return d
		}
	}

	name := hostname
	if name == "" {
		name = "device-" + shortID(id)
	}
	hash := ""
	if token != "" {
		hash = HashToken(token)
	}
	d := &models.Device{ID: id, Name: name, TokenHash: hash, Hostname: hostname}
	r.devices = append(r.devices, d)
	r.logger.Info("device auto-provisioned",
		zap.String("device_id", id),
		zap.String("name", name),
	)
	return d
}

// Get returns the device with the given id, or nil.
func (r *Registry) Get(id string) *models.Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findByIDLocked(id)
}

// Verify reports whether the presented token's digest matches the stored
// digest for that exact device id. Unknown device or empty token fails
// closed.
func (r *Registry) Verify(id, token string) bool {
	if id == "" || token == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.findByIDLocked(id)
	if d == nil || d.TokenHash == "" {
		return false
	}
	return d.TokenHash == HashToken(token)
}

// Touch updates the device's last-seen instant to now and records the
// latest-known hostname. Called on every successful ingest.
func (r *Registry) Touch(id, hostname string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.findByIDLocked(id)
	if d == nil {
		return
	}
	now := r.now()
	d.LastSeenAt = &now
	if hostname != "" {
		d.Hostname = hostname
	}
}

// List returns all devices with computed presence, in enrollment order.
func (r *Registry) List() []models.DeviceView {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	views := make([]models.DeviceView, 0, len(r.devices))
	for _, d := range r.devices {
		v := models.DeviceView{
			ID:       d.ID,
			Name:     d.Name,
			Status:   models.DeviceStatusOffline,
			Hostname: d.Hostname,
		}
		if d.LastSeenAt != nil {
			secs := int64(now.Sub(*d.LastSeenAt) / time.Second)
			v.SecondsSinceSeen = &secs
			if now.Sub(*d.LastSeenAt) < r.threshold {
				v.Status = models.DeviceStatusOnline
			}
		}
		views = append(views, v)
	}
	return views
}

func (r *Registry) findByIDLocked(id string) *models.Device {
	for _, d := range r.devices {
		if d.ID == id {
			return d
		}
	}
	return nil
}

func (r *Registry) findByNameLocked(name string) *models.Device {
	for _, d := range r.devices {
		if strings.EqualFold(d.Name, name) {
			return d
		}
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 6 {
		return id[:6]
	}
	return id
}
