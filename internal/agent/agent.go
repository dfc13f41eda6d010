package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/HerbHall/pulseboard/internal/version"
	"github.com/HerbHall/pulseboard/pkg/models"
	"go.uber.org/zap"
)

// netProbeInterval is the cadence of active network probes; they are
// heavier than passive collection so they run on their own ticker.
const netProbeInterval = 30 * time.Second

// Agent is the pulse-agent: it collects local metrics and reports them to
// the server as heartbeats.
type Agent struct {
	cfg       *Config
	logger    *zap.Logger
	cancel    context.CancelFunc
	client    *http.Client
	collector *Collector
	prober    *NetProber

	lastProbe *models.NetProbe
}

// New creates a new agent instance.
func New(cfg *Config, logger *zap.Logger) *Agent {
	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")
	cfg.clamp()
	return &Agent{
		cfg:       cfg,
		logger:    logger,
		client:    &http.Client{Timeout: 15 * time.Second},
		collector: NewCollector(logger.Named("collector")),
		prober:    NewNetProber(cfg, logger.Named("netprobe")),
	}
}

// Run starts the agent and blocks until the context is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	a.loadCredentials()

	if a.cfg.DeviceID == "" || a.cfg.AgentToken == "" {
		if err := a.enrollWithBackoff(ctx); err != nil {
			return fmt.Errorf("enrollment: %w", err)
		}
	}

	a.logger.Info("agent running",
		zap.String("device_id", a.cfg.DeviceID),
		zap.String("server", a.cfg.ServerURL),
		zap.Int("interval", a.cfg.IntervalSeconds),
	)

	ticker := time.NewTicker(time.Duration(a.cfg.IntervalSeconds) * time.Second)
	defer ticker.Stop()
	probeTicker := time.NewTicker(netProbeInterval)
	defer probeTicker.Stop()

	a.lastProbe = a.prober.Probe(ctx)
	if err := a.tick(ctx); err != nil {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("agent shutting down")
			return nil
		case <-probeTicker.C:
			a.lastProbe = a.prober.Probe(ctx)
		case <-ticker.C:
			if err := a.tick(ctx); err != nil {
				return nil
			}
		}
	}
}

// tick runs one reporting cycle. If a prior 401 cleared the credentials,
// re-enrollment happens first so the agent recovers without a restart.
// The only error is context cancellation during re-enrollment.
func (a *Agent) tick(ctx context.Context) error {
	if a.cfg.DeviceID == "" || a.cfg.AgentToken == "" {
		if err := a.enrollWithBackoff(ctx); err != nil {
			return err
		}
	}
	a.heartbeat(ctx)
	a.pollJobs(ctx)
	return nil
}

// Stop signals the agent to shut down.
func (a *Agent) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
}

// enrollWithBackoff registers this host with the server and persists the
// issued credentials. Retries with exponential backoff until the server is
// reachable or the context is cancelled.
func (a *Agent) enrollWithBackoff(ctx context.Context) error {
	backoff := time.Second
	maxBackoff := 5 * time.Minute

	for {
		err := a.enroll(ctx)
		if err == nil {
			return nil
		}

		a.logger.Warn("enrollment failed, retrying",
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff = time.Duration(math.Min(float64(backoff*2), float64(maxBackoff)))
	}
}

func (a *Agent) enroll(ctx context.Context) error {
	body, _ := json.Marshal(map[string]string{"name": hostName()})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.ServerURL+"/devices", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("enrollment rejected: status %d", resp.StatusCode)
	}

	var enrolled struct {
		ID    string `json:"id"`
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&enrolled); err != nil {
		return fmt.Errorf("decode enrollment response: %w", err)
	}
	if enrolled.ID == "" || enrolled.Token == "" {
		return fmt.Errorf("server did not issue credentials")
	}

	a.cfg.DeviceID = enrolled.ID
	a.cfg.AgentToken = enrolled.Token
	a.saveCredentials()

	a.logger.Info("enrolled successfully", zap.String("device_id", enrolled.ID))
	return nil
}

// heartbeat collects a snapshot and posts it to the server. Failures are
// logged and the next tick retries. A 401 clears persisted credentials so
// the next cycle re-enrolls.
func (a *Agent) heartbeat(ctx context.Context) {
	metrics := a.collector.Collect(ctx)
	if a.lastProbe != nil {
		if metrics.Net == nil {
			metrics.Net = &models.NetworkInfo{}
		}
		metrics.Net.Probe = a.lastProbe
	}

	payload := map[string]any{
		"agentVersion": version.Version,
		"hostname":     hostName(),
		"metrics":      metrics,
		"timestamp":    time.Now().UTC().Format(time.RFC3339Nano),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		a.logger.Warn("marshal heartbeat failed", zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.ServerURL+"/agent/heartbeat", bytes.NewReader(body))
	if err != nil {
		a.logger.Warn("build heartbeat request failed", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-device-id", a.cfg.DeviceID)
	req.Header.Set("x-agent-token", a.cfg.AgentToken)

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Warn("heartbeat failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		a.logger.Warn("heartbeat rejected, clearing credentials")
		a.cfg.DeviceID = ""
		a.cfg.AgentToken = ""
		_ = os.Remove(a.cfg.StatePath())
	case resp.StatusCode >= 300:
		a.logger.Warn("heartbeat not accepted", zap.Int("status", resp.StatusCode))
	}
}

// pollJobs asks the server for pending work. The common answer is 204.
func (a *Agent) pollJobs(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.ServerURL+"/agent/jobs/next", nil)
	if err != nil {
		return
	}
	req.Header.Set("x-device-id", a.cfg.DeviceID)
	req.Header.Set("x-agent-token", a.cfg.AgentToken)

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Debug("job poll failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
}

// Credential persistence -- simple JSON file in the state directory.
type agentState struct {
	DeviceID   string `json:"device_id"`
	AgentToken string `json:"agent_token"`
}

func (a *Agent) loadCredentials() {
	data, err := os.ReadFile(a.cfg.StatePath())
	if err != nil {
		return
	}
	var state agentState
	if err := json.Unmarshal(data, &state); err != nil {
		return
	}
	if a.cfg.DeviceID == "" && state.DeviceID != "" {
		a.cfg.DeviceID = state.DeviceID
		a.cfg.AgentToken = state.AgentToken
		a.logger.Info("loaded persisted credentials", zap.String("device_id", state.DeviceID))
	}
}

func (a *Agent) saveCredentials() {
	data, err := json.Marshal(agentState{DeviceID: a.cfg.DeviceID, AgentToken: a.cfg.AgentToken})
	if err != nil {
		a.logger.Warn("failed to marshal agent state", zap.Error(err))
		return
	}
	path := a.cfg.StatePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		a.logger.Warn("failed to create state dir", zap.Error(err))
		return
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		a.logger.Warn("failed to save agent state", zap.Error(err))
	}
}
