package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level daemon configuration.
type Config struct {
	Compositor CompositorConfig `yaml:"compositor"`
	Network    NetworkConfig    `yaml:"network"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Logger     LoggerConfig     `yaml:"logger"`
	Tracer     TracerConfig     `yaml:"tracer"`
}

// CompositorConfig holds window-manager IPC settings.
type CompositorConfig struct {
	// Socket overrides the IPC socket path. When empty, $SWAYSOCK then
	// $I3SOCK are consulted.
	Socket string `yaml:"socket"`
	// SubscribeTimeout bounds connect+subscribe during a listener change.
	SubscribeTimeout time.Duration `yaml:"subscribe_timeout"`
	// CommandBreaker configures the fail-fast breaker on compositor
	// commands (focus etc.).
	CommandBreaker BreakerConfig `yaml:"command_breaker"`
}

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit
	// opens.
	MaxFailures uint32 `yaml:"max_failures"`
	// Timeout is how long the circuit stays open before a half-open probe.
	Timeout time.Duration `yaml:"timeout"`
}

// NetworkConfig holds NetworkManager bridge settings.
type NetworkConfig struct {
	Enabled bool `yaml:"enabled"`
	// RefreshSchedule is an optional cron spec ("@every 30s" style) for
	// re-reading properties to heal missed signals. Empty disables polling.
	RefreshSchedule string `yaml:"refresh_schedule"`
}

// GatewayConfig holds WebSocket gateway settings.
type GatewayConfig struct {
	Enabled bool          `yaml:"enabled"`
	Addr    string        `yaml:"addr"`
	Tokens  []TokenConfig `yaml:"tokens,omitempty"`
	// RequestsPerMin rate-limits the HTTP surface per client IP.
	RequestsPerMin int `yaml:"requests_per_min"`
}

// TokenConfig holds a single gateway auth token.
type TokenConfig struct {
	Token string `yaml:"token"`
	Name  string `yaml:"name"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
	Output string `yaml:"output"` // stdout, stderr, or a file path
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // stdout, noop
}

// Defaults returns a config with every field at its default.
func Defaults() *Config {
	return &Config{
		Compositor: CompositorConfig{
			SubscribeTimeout: 10 * time.Second,
			CommandBreaker: BreakerConfig{
				MaxFailures: 5,
				Timeout:     30 * time.Second,
			},
		},
		Network: NetworkConfig{
			Enabled: true,
		},
		Gateway: GatewayConfig{
			Addr:           "127.0.0.1:8372",
			RequestsPerMin: 600,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file and applies env var overrides. A missing
// file is not an error: defaults plus env overrides are returned.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps BARBRIDGE_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BARBRIDGE_COMPOSITOR_SOCKET"); v != "" {
		cfg.Compositor.Socket = v
	}
	if v := os.Getenv("BARBRIDGE_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("BARBRIDGE_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("BARBRIDGE_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("BARBRIDGE_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("BARBRIDGE_GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
	}
	if v := os.Getenv("BARBRIDGE_NETWORK_ENABLED"); v == "false" {
		cfg.Network.Enabled = false
	}
}
