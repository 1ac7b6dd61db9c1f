package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the daemon.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr            string `json:"addr" yaml:"addr" toml:"addr"`
	EnginePath      string `json:"engine_path" yaml:"engine_path" toml:"engine_path"`
	ConfigDir       string `json:"config_dir" yaml:"config_dir" toml:"config_dir"`
	PortRangeStart  int    `json:"port_range_start" yaml:"port_range_start" toml:"port_range_start"`
	PortRangeEnd    int    `json:"port_range_end" yaml:"port_range_end" toml:"port_range_end"`
	ReadyTimeoutSec int    `json:"ready_timeout_sec" yaml:"ready_timeout_sec" toml:"ready_timeout_sec"`
	LogLevel        string `json:"log_level" yaml:"log_level" toml:"log_level"`
}

// Defaults used when the config file or a field is absent.
const (
	DefaultAddr            = "127.0.0.1:51500"
	DefaultPortRangeStart  = 51515
	DefaultPortRangeEnd    = 51525
	DefaultReadyTimeoutSec = 30
)

// ApplyDefaults fills unspecified fields in place.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.PortRangeStart == 0 {
		c.PortRangeStart = DefaultPortRangeStart
	}
	if c.PortRangeEnd == 0 {
		c.PortRangeEnd = DefaultPortRangeEnd
	}
	if c.ReadyTimeoutSec == 0 {
		c.ReadyTimeoutSec = DefaultReadyTimeoutSec
	}
	if c.ConfigDir == "" {
		c.ConfigDir = DefaultConfigDir(false)
	}
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// DefaultConfigDir returns the directory holding per-repository engine config
// files. Desktop sessions use the user profile; the Windows background
// service uses system data so the engine outlives any one user session.
func DefaultConfigDir(service bool) string {
	if service && runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			return filepath.Join(pd, "kopiad")
		}
		return filepath.Join(`C:\ProgramData`, "kopiad")
	}
	if d, err := os.UserConfigDir(); err == nil {
		return filepath.Join(d, "kopiad")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".kopiad")
}

// EnsureDir creates the config directory if needed. The daemon creates
// directories; the engine owns the files inside.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o700)
}
