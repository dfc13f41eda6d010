package server

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds the server configuration.
type Config struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	DataDir string `mapstructure:"data_dir"`
}

// Addr returns the listen address as host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MetricsDir returns the per-device journal directory under the data dir.
func (c *Config) MetricsDir() string {
	return filepath.Join(c.DataDir, "metrics")
}

// LoadConfig reads configuration from file and environment variables.
func LoadConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.data_dir", "./.pulseboard")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("buffer.capacity", 500)
	v.SetDefault("presence.online_threshold", "90s")
	v.SetDefault("history.max_samples", 5000)
	v.SetDefault("journal.max_file_bytes", 64*1024*1024)
	v.SetDefault("logs.agent_log_path", "")
	v.SetDefault("agent_config.apply_enabled", false)
	v.SetDefault("agent_config.path", "./.pulseboard/agent.config.json")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("pulseboard")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/pulseboard")
	}

	// Environment variable support: PB_SERVER_PORT=9090
	v.SetEnvPrefix("PB")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is fine -- use defaults
	}

	return v, nil
}
