package ingest

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/HerbHall/pulseboard/internal/server"
	"go.uber.org/zap"
)

// maxBodyBytes bounds a heartbeat body; a full network snapshot with many
// interfaces stays well under this.
const maxBodyBytes = 1 << 20

// RegisterRoutes mounts the agent-facing endpoints on the mux.
func (g *Gateway) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /agent/heartbeat", g.handleHeartbeat)
	mux.HandleFunc("GET /agent/jobs/next", g.handleJobsNext)
	mux.HandleFunc("POST /agent/jobs/{id}/finish", g.handleJobFinish)
	mux.HandleFunc("POST /agent/jobs/{id}/log", g.handleJobLog)
}

// handleHeartbeat implements the ingest contract: authenticate, normalize,
// write, acknowledge. The acknowledgment depends on auth and the in-memory
// append only; the journal write is queued and its outcome is not part of
// the response.
func (g *Gateway) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		server.BadRequest(w, "unreadable request body", r.URL.Path)
		return
	}

	var env heartbeatEnvelope
	if len(body) > 0 {
		if err := json.Unmarshal(body, &env); err != nil {
			server.BadRequest(w, "invalid payload", r.URL.Path)
			return
		}
	}

	deviceID, token, ok := g.credentials(r, &env)
	if !ok {
		server.Unauthorized(w, "deviceId and agentToken are required", r.URL.Path)
		return
	}

	// Known devices authenticate first: a bad token is 401 no matter what
	// the payload looks like.
	known := g.registry.Get(deviceID)
	if known != nil && !g.registry.Verify(deviceID, token) {
		server.Unauthorized(w, "invalid agent token", r.URL.Path)
		return
	}

	sample, err := g.normalize(&env, body, deviceID)
	if err != nil {
		server.BadRequest(w, "invalid metrics payload", r.URL.Path)
		return
	}

	// Unknown devices are auto-provisioned: the first token presented for
	// an id establishes that device's identity. This happens only once the
	// payload is accepted, so a rejected request leaves the registry
	// untouched.
	if known == nil {
		g.registry.Ensure(deviceID, token, env.Hostname)
	}

	g.Ingest(sample)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleJobsNext authenticates the agent and reports that no job is
// queued. 204 rather than 404 keeps agent polling quiet.
func (g *Gateway) handleJobsNext(w http.ResponseWriter, r *http.Request) {
	if !g.authenticateHeaders(w, r) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleJobFinish acknowledges a job-completion report. There is no job
// queue behind it; the endpoint exists so agents built against the full
// protocol keep working.
func (g *Gateway) handleJobFinish(w http.ResponseWriter, r *http.Request) {
	if !g.authenticateHeaders(w, r) {
		return
	}
	g.logger.Debug("job finish acknowledged", zap.String("job_id", r.PathValue("id")))
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleJobLog acknowledges a job log upload.
func (g *Gateway) handleJobLog(w http.ResponseWriter, r *http.Request) {
	if !g.authenticateHeaders(w, r) {
		return
	}
	g.logger.Debug("job log acknowledged", zap.String("job_id", r.PathValue("id")))
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// credentials resolves the device id and token. Headers take precedence
// over body fields when both are present.
func (g *Gateway) credentials(r *http.Request, env *heartbeatEnvelope) (deviceID, token string, ok bool) {
	deviceID = r.Header.Get("x-device-id")
	if deviceID == "" {
		deviceID = env.DeviceID
	}
	token = r.Header.Get("x-agent-token")
	if token == "" {
		token = env.AgentToken
	}
	return deviceID, token, deviceID != "" && token != ""
}

// authenticateHeaders enforces header credentials for the job endpoints,
// auto-provisioning unknown ids the same way heartbeat does.
func (g *Gateway) authenticateHeaders(w http.ResponseWriter, r *http.Request) bool {
	deviceID := r.Header.Get("x-device-id")
	token := r.Header.Get("x-agent-token")
	if deviceID == "" || token == "" {
		server.Unauthorized(w, "deviceId and agentToken are required", r.URL.Path)
		return false
	}
	if known := g.registry.Get(deviceID); known == nil {
		g.registry.Ensure(deviceID, token, "")
	} else if !g.registry.Verify(deviceID, token) {
		server.Unauthorized(w, "invalid agent token", r.URL.Path)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
