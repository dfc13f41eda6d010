package agent

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ServerURL != "http://localhost:8080" {
		t.Errorf("ServerURL = %q, want default", cfg.ServerURL)
	}
	if cfg.IntervalSeconds != 5 {
		t.Errorf("IntervalSeconds = %d, want 5", cfg.IntervalSeconds)
	}
	if len(cfg.PingTargets) != 1 || cfg.PingTargets[0] != "1.1.1.1" {
		t.Errorf("PingTargets = %v, want [1.1.1.1]", cfg.PingTargets)
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulse-agent.yaml")
	content := `server_url: http://pulseboard.internal:9000
interval_seconds: 1
ping_targets:
  - 10.0.0.1
  - 10.0.0.2
dns_test_host: corp.example.com
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ServerURL != "http://pulseboard.internal:9000" {
		t.Errorf("ServerURL = %q, want file value", cfg.ServerURL)
	}
	if cfg.IntervalSeconds != 2 {
		t.Errorf("IntervalSeconds = %d, want clamped to 2", cfg.IntervalSeconds)
	}
	if len(cfg.PingTargets) != 2 {
		t.Errorf("PingTargets = %v, want two targets", cfg.PingTargets)
	}
	if cfg.DNSTestHost != "corp.example.com" {
		t.Errorf("DNSTestHost = %q, want file value", cfg.DNSTestHost)
	}
}

func TestConfigClamp(t *testing.T) {
	cfg := &Config{IntervalSeconds: 9999}
	cfg.clamp()
	if cfg.IntervalSeconds != 300 {
		t.Errorf("IntervalSeconds = %d, want 300", cfg.IntervalSeconds)
	}

	targets := make([]string, maxPingTargets+4)
	for i := range targets {
		targets[i] = "10.0.0.1"
	}
	cfg = &Config{IntervalSeconds: 5, PingTargets: targets}
	cfg.clamp()
	if len(cfg.PingTargets) != maxPingTargets {
		t.Errorf("PingTargets length = %d, want %d", len(cfg.PingTargets), maxPingTargets)
	}
}

func TestConfig_StatePath(t *testing.T) {
	cfg := &Config{StateDir: "/var/lib/pulse-agent"}
	if got := cfg.StatePath(); got != "/var/lib/pulse-agent/agent-state.json" {
		t.Errorf("StatePath = %q, want state file under the configured dir", got)
	}
}
