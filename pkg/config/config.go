package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultConfigFileName = "gateway.toml"

	DefaultUpstreamBaseURL = "https://openrouter.ai/api/v1"

	// Env overrides for the two credentials; the host settings store is the
	// normal source, these exist for headless runs.
	EnvAPIKey          = "OPENROUTER_API_KEY"
	EnvProvisioningKey = "OPENROUTER_PROVISIONING_KEY"
)

// GatewayConfig is everything the gateway consumes from the host settings
// collaborator. None of it is owned here; Save exists so the serve command can
// persist wizard-free defaults on first run.
type GatewayConfig struct {
	// Port 0 means auto-select from [PortRangeMin, PortRangeMax].
	Port         int  `toml:"port"`
	PortRangeMin int  `toml:"port_range_min"`
	PortRangeMax int  `toml:"port_range_max"`
	AutoStart    bool `toml:"auto_start"`

	APIKey          string `toml:"api_key,omitempty"`
	ProvisioningKey string `toml:"provisioning_key,omitempty"`

	UpstreamBaseURL        string `toml:"upstream_base_url"`
	UpstreamTimeoutSeconds int    `toml:"upstream_timeout_seconds,omitempty"`
	StreamTimeoutSeconds   int    `toml:"stream_timeout_seconds,omitempty"`

	DuplicateWindowMS int `toml:"duplicate_window_ms,omitempty"`

	LogLevel string `toml:"log_level,omitempty"`
}

func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultConfigFileName
	}
	return filepath.Join(home, ".config", "openrouter-gateway", defaultConfigFileName)
}

func DefaultModelsSnapshotPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "models-snapshot.json"
	}
	return filepath.Join(home, ".cache", "openrouter-gateway", "models-snapshot.json")
}

func DefaultUsageLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "usage"
	}
	return filepath.Join(home, ".cache", "openrouter-gateway", "usage")
}

func NewDefault() *GatewayConfig {
	return &GatewayConfig{
		Port:                   0,
		PortRangeMin:           8880,
		PortRangeMax:           8899,
		AutoStart:              false,
		UpstreamBaseURL:        DefaultUpstreamBaseURL,
		UpstreamTimeoutSeconds: 60,
		StreamTimeoutSeconds:   300,
		DuplicateWindowMS:      5000,
		LogLevel:               "info",
	}
}

// Load reads the TOML config at path and applies env credential overrides.
// A missing file returns os.ErrNotExist so callers can fall back to defaults.
func Load(path string) (*GatewayConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := NewDefault()
	if err := toml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *GatewayConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write config temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

func (c *GatewayConfig) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvAPIKey)); v != "" {
		c.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvProvisioningKey)); v != "" {
		c.ProvisioningKey = v
	}
}

func (c *GatewayConfig) normalize() {
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.ProvisioningKey = strings.TrimSpace(c.ProvisioningKey)
	c.UpstreamBaseURL = strings.TrimRight(strings.TrimSpace(c.UpstreamBaseURL), "/")
	if c.UpstreamBaseURL == "" {
		c.UpstreamBaseURL = DefaultUpstreamBaseURL
	}
	if c.UpstreamTimeoutSeconds <= 0 {
		c.UpstreamTimeoutSeconds = 60
	}
	if c.StreamTimeoutSeconds <= 0 {
		c.StreamTimeoutSeconds = 300
	}
	if c.DuplicateWindowMS <= 0 {
		c.DuplicateWindowMS = 5000
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *GatewayConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.Port == 0 {
		if c.PortRangeMin <= 0 || c.PortRangeMax <= 0 {
			return fmt.Errorf("port range required when port is 0")
		}
		if c.PortRangeMax < c.PortRangeMin {
			return fmt.Errorf("port range [%d, %d] is inverted", c.PortRangeMin, c.PortRangeMax)
		}
	}
	return nil
}

// Configured reports whether an inference credential is present. The gateway
// still starts without one so the host can show a "needs setup" status.
func (c *GatewayConfig) Configured() bool {
	return strings.TrimSpace(c.APIKey) != ""
}
