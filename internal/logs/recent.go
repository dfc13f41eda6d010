// Package logs serves the raw agent metrics log for download. This is
// operator glue over whatever file the local agent writes, not part of the
// per-device journal.
package logs

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/HerbHall/pulseboard/internal/server"
	"go.uber.org/zap"
)

// maxReadBytes caps the tail window of a single request.
const maxReadBytes = 16 << 20 // 16MB

// Handler serves the recent raw log endpoint.
type Handler struct {
	// explicitPath comes from config (logs.agent_log_path); when empty,
	// well-known candidate locations are tried.
	explicitPath string
	candidates   []string
	logger       *zap.Logger
}

// NewHandler creates the raw-log HTTP handler.
func NewHandler(explicitPath string, logger *zap.Logger) *Handler {
	cwd, _ := os.Getwd()
	return &Handler{
		explicitPath: explicitPath,
		candidates: []string{
			filepath.Join(cwd, "agent-metrics.log"),
			filepath.Join(cwd, "..", "agent-metrics.log"),
		},
		logger: logger,
	}
}

// RegisterRoutes mounts the raw-log endpoint on the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /logs/recent", h.handleRecent)
}

// handleRecent returns the raw log lines from the last N minutes as a
// plain-text attachment. Lines are JSON records carrying a timestamp;
// unparseable lines are skipped.
func (h *Handler) handleRecent(w http.ResponseWriter, r *http.Request) {
	minutes := 10
	if raw := r.URL.Query().Get("minutes"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			minutes = n
		}
	}
	if minutes < 1 {
		minutes = 1
	}
	if minutes > 720 {
		minutes = 720
	}

	logPath := h.resolveLogPath()
	if logPath == "" {
		server.NotFound(w, "log file not found; set logs.agent_log_path", r.URL.Path)
		return
	}

	text, err := readTail(logPath, maxReadBytes)
	if err != nil {
		h.logger.Error("failed to read agent log", zap.String("path", logPath), zap.Error(err))
		server.InternalError(w, "failed to read log", r.URL.Path)
		return
	}

	cutoff := time.Now().Add(-time.Duration(minutes) * time.Minute)
	kept := filterRecentLines(text, cutoff)

	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Content-Disposition", `attachment; filename="agent-metrics-recent.log"`)
	_, _ = w.Write([]byte(strings.Join(kept, "\n")))
}

func (h *Handler) resolveLogPath() string {
	if h.explicitPath != "" {
		if _, err := os.Stat(h.explicitPath); err == nil {
			return h.explicitPath
		}
	}
	for _, candidate := range h.candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// filterRecentLines walks the lines backward, keeping JSON records whose
// timestamp is at or after the cutoff, and returns them in file order.
func filterRecentLines(text string, cutoff time.Time) []string {
	lines := splitLines(text)

	var kept []string
	for i := len(lines) - 1; i >= 0; i-- {
		var record struct {
			Timestamp time.Time `json:"timestamp"`
		}
		if err := json.Unmarshal([]byte(lines[i]), &record); err != nil {
			continue
		}
		if record.Timestamp.IsZero() {
			continue
		}
		if record.Timestamp.Before(cutoff) {
			break
		}
		kept = append(kept, lines[i])
	}

	for l, r := 0, len(kept)-1; l < r; l, r = l+1, r-1 {
		kept[l], kept[r] = kept[r], kept[l]
	}
	return kept
}

func readTail(path string, maxBytes int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	start := info.Size() - maxBytes
	if start < 0 {
		start = 0
	}
	buf := make([]byte, info.Size()-start)
	if _, err := f.ReadAt(buf, start); err != nil {
		return "", err
	}
	return string(buf), nil
}

func splitLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := raw[:0]
	for _, l := range raw {
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
