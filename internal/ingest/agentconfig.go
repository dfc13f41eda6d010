package ingest

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/HerbHall/pulseboard/internal/server"
	"go.uber.org/zap"
)

// AgentConfigWriter exposes a bounded key-value write endpoint for the
// local agent's network-probe configuration file. It is glue over the
// core, disabled unless explicitly enabled in server config.
type AgentConfigWriter struct {
	path    string
	enabled bool
	logger  *zap.Logger
}

// NewAgentConfigWriter creates the config writer for the given file path.
func NewAgentConfigWriter(path string, enabled bool, logger *zap.Logger) *AgentConfigWriter {
	return &AgentConfigWriter{path: path, enabled: enabled, logger: logger}
}

// RegisterRoutes mounts the agent config endpoint on the mux.
func (a *AgentConfigWriter) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /agent/config/network", a.handleApply)
}

type networkConfigRequest struct {
	NetworkProbeIntervalSeconds *int     `json:"networkProbeIntervalSeconds"`
	NetworkTargets              []string `json:"networkTargets"`
	NetworkDNSTestHost          *string  `json:"networkDnsTestHost"`
	EnablePublicIP              *bool    `json:"enablePublicIp"`
}

// handleApply merges the validated fields into the agent config file.
// Values are clamped rather than rejected: interval to [2,300] seconds,
// targets to the first 12 non-empty entries, DNS host to 200 characters.
func (a *AgentConfigWriter) handleApply(w http.ResponseWriter, r *http.Request) {
	if !a.enabled {
		server.WriteProblem(w, server.Problem{
			Type:     server.ProblemTypeForbidden,
			Title:    "Forbidden",
			Status:   http.StatusForbidden,
			Detail:   "agent config writes are disabled; set agent_config.apply_enabled",
			Instance: r.URL.Path,
		})
		return
	}

	var req networkConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		server.BadRequest(w, "invalid payload", r.URL.Path)
		return
	}

	config := map[string]any{}
	if data, err := os.ReadFile(a.path); err == nil {
		// A corrupt existing file starts over empty.
		_ = json.Unmarshal(data, &config)
	}

	if req.NetworkProbeIntervalSeconds != nil {
		config["networkProbeIntervalSeconds"] = clampInt(*req.NetworkProbeIntervalSeconds, 2, 300)
	}
	if req.NetworkTargets != nil {
		targets := make([]string, 0, len(req.NetworkTargets))
		for _, t := range req.NetworkTargets {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			targets = append(targets, t)
			if len(targets) == 12 {
				break
			}
		}
		config["networkTargets"] = targets
	}
	if req.NetworkDNSTestHost != nil {
		host := strings.TrimSpace(*req.NetworkDNSTestHost)
		if len(host) > 200 {
			host = host[:200]
		}
		config["networkDnsTestHost"] = host
	}
	if req.EnablePublicIP != nil {
		config["enablePublicIp"] = *req.EnablePublicIP
	}

	if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
		server.InternalError(w, "failed to write agent config", r.URL.Path)
		return
	}
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		server.InternalError(w, "failed to write agent config", r.URL.Path)
		return
	}
	if err := os.WriteFile(a.path, append(data, '\n'), 0o644); err != nil {
		a.logger.Error("agent config write failed", zap.String("path", a.path), zap.Error(err))
		server.InternalError(w, "failed to write agent config", r.URL.Path)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "path": a.path, "config": config})
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
