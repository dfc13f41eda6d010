package agent

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds the pulse-agent configuration.
type Config struct {
	ServerURL       string   `mapstructure:"server_url"`
	DeviceID        string   `mapstructure:"device_id"`
	AgentToken      string   `mapstructure:"agent_token"`
	IntervalSeconds int      `mapstructure:"interval_seconds"`
	PingTargets     []string `mapstructure:"ping_targets"`
	DNSTestHost     string   `mapstructure:"dns_test_host"`
	HTTPTestURL     string   `mapstructure:"http_test_url"`
	EnablePublicIP  bool     `mapstructure:"enable_public_ip"`
	StateDir        string   `mapstructure:"state_dir"`
}

// DefaultConfig returns the default agent configuration.
func DefaultConfig() *Config {
	return &Config{
		ServerURL:       "http://localhost:8080",
		IntervalSeconds: 5,
		PingTargets:     []string{"1.1.1.1"},
		DNSTestHost:     "example.com",
	}
}

// LoadConfig reads the agent configuration from file and environment.
// Env vars use the PBAGENT_ prefix (PBAGENT_SERVER_URL, etc).
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("interval_seconds", 5)
	v.SetDefault("ping_targets", []string{"1.1.1.1"})
	v.SetDefault("dns_test_host", "example.com")
	v.SetDefault("http_test_url", "")
	v.SetDefault("enable_public_ip", false)
	v.SetDefault("state_dir", "")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("pulse-agent")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/pulseboard")
	}

	v.SetEnvPrefix("PBAGENT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return nil, fmt.Errorf("read agent config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal agent config: %w", err)
	}
	cfg.clamp()
	return &cfg, nil
}

func (c *Config) clamp() {
	if c.IntervalSeconds < 2 {
		c.IntervalSeconds = 2
	}
	if c.IntervalSeconds > 300 {
		c.IntervalSeconds = 300
	}
	if len(c.PingTargets) > maxPingTargets {
		c.PingTargets = c.PingTargets[:maxPingTargets]
	}
}

// StatePath returns the location of the persisted credential file.
func (c *Config) StatePath() string {
	dir := c.StateDir
	if dir == "" {
		dir, _ = os.UserConfigDir()
		if dir == "" {
			dir = "."
		}
		dir = filepath.Join(dir, "pulse-agent")
	}
	return filepath.Join(dir, "agent-state.json")
}
