package device

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Handler exposes the device enrollment and listing endpoints.
type Handler struct {
	registry *Registry
	logger   *zap.Logger
}

// NewHandler creates the device HTTP handler.
func NewHandler(registry *Registry, logger *zap.Logger) *Handler {
	return &Handler{registry: registry, logger: logger}
}

// RegisterRoutes mounts the device endpoints on the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /devices", h.handleEnroll)
	mux.HandleFunc("GET /devices", h.handleList)
}

type enrollRequest struct {
	Name string `json:"name"`
}

type enrollResponse struct {
	ID    string `json:"id"`
	Token string `json:"token"`
}

// handleEnroll enrolls a named device and returns its id and plaintext
// token. The token is shown once and only its digest is retained.
func (h *Handler) handleEnroll(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if r.Body != nil {
		// A missing or empty body falls through to the default name.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "New Device"
	}

	id, token, _ := h.registry.Enroll(name)
	writeJSON(w, http.StatusOK, enrollResponse{ID: id, Token: token})
}

// handleList returns all devices with computed presence.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"devices": h.registry.List()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
