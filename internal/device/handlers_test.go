package device

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/HerbHall/pulseboard/pkg/models"
	"go.uber.org/zap"
)

func newDeviceServer(t *testing.T) (*httptest.Server, *Registry) {
	t.Helper()
	registry := NewRegistry(zap.NewNop())
	mux := http.NewServeMux()
	NewHandler(registry, zap.NewNop()).RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, registry
}

func TestHandleEnroll(t *testing.T) {
	ts, registry := newDeviceServer(t)

	resp, err := http.Post(ts.URL+"/devices", "application/json", strings.NewReader(`{"name":"office-pc"}`))
	if err != nil {
		t.Fatalf("POST /devices: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var enrolled enrollResponse
	if err := json.NewDecoder(resp.Body).Decode(&enrolled); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if enrolled.ID == "" || enrolled.Token == "" {
		t.Errorf("credentials = %+v, want non-empty id and token", enrolled)
	}
	if !registry.Verify(enrolled.ID, enrolled.Token) {
		t.Error("returned token does not verify against the registry")
	}
}

func TestHandleEnroll_DefaultName(t *testing.T) {
	ts, registry := newDeviceServer(t)

	resp, err := http.Post(ts.URL+"/devices", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("POST /devices: %v", err)
	}
	resp.Body.Close()

	views := registry.List()
	if len(views) != 1 || views[0].Name != "New Device" {
		t.Errorf("devices = %+v, want one named %q", views, "New Device")
	}
}

func TestHandleList(t *testing.T) {
	ts, registry := newDeviceServer(t)
	registry.Enroll("alpha")
	registry.Enroll("beta")

	resp, err := http.Get(ts.URL + "/devices")
	if err != nil {
		t.Fatalf("GET /devices: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Devices []models.DeviceView `json:"devices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Devices) != 2 {
		t.Fatalf("got %d devices, want 2", len(body.Devices))
	}
	for _, d := range body.Devices {
		if d.Status != models.DeviceStatusOffline {
			t.Errorf("device %s status = %q, want offline before any heartbeat", d.Name, d.Status)
		}
	}
}
