package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified"; the CLI fills them from the environment
// and the pool applies its own defaults.
type Config struct {
	Addr         string   `json:"addr" yaml:"addr" toml:"addr"`
	AssetsDir    string   `json:"assets_dir" yaml:"assets_dir" toml:"assets_dir"`
	Proxy        string   `json:"proxy" yaml:"proxy" toml:"proxy"`
	Mirrors      []string `json:"mirrors" yaml:"mirrors" toml:"mirrors"`
	IdleTimeout  string   `json:"idle_timeout" yaml:"idle_timeout" toml:"idle_timeout"`
	RunTimeout   string   `json:"run_timeout" yaml:"run_timeout" toml:"run_timeout"`
	PollInterval string   `json:"poll_interval" yaml:"poll_interval" toml:"poll_interval"`
	StopGrace    string   `json:"stop_grace" yaml:"stop_grace" toml:"stop_grace"`
	LogLevel     string   `json:"log_level" yaml:"log_level" toml:"log_level"`
	CORSOrigins  []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
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
	if _, err := cfg.Timeouts(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Timeouts are the pool durations parsed from Config. Zero means unset.
type Timeouts struct {
	Idle  time.Duration
	Run   time.Duration
	Poll  time.Duration
	Grace time.Duration
}

// Timeouts parses the duration fields ("300s", "1m", ...).
func (c Config) Timeouts() (Timeouts, error) {
	var t Timeouts
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"idle_timeout", c.IdleTimeout, &t.Idle},
		{"run_timeout", c.RunTimeout, &t.Run},
		{"poll_interval", c.PollInterval, &t.Poll},
		{"stop_grace", c.StopGrace, &t.Grace},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.raw) == "" {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(f.raw))
		if err != nil {
			return t, fmt.Errorf("%s: %w", f.name, err)
		}
		if d < 0 {
			return t, fmt.Errorf("%s: must not be negative", f.name)
		}
		*f.dst = d
	}
	return t, nil
}

// EnvPrefix prefixes the environment variables read by ApplyEnv.
const EnvPrefix = "EMBYKEEPER_"

// ApplyEnv fills fields that are still empty from EMBYKEEPER_* variables
// (EMBYKEEPER_ADDR, EMBYKEEPER_ASSETS_DIR, ...). List values are
// comma-separated.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	str := func(dst *string, key string) {
		if *dst != "" {
			return
		}
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	list := func(dst *[]string, key string) {
		if len(*dst) != 0 {
			return
		}
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = SplitCSV(v)
		}
	}
	str(&c.Addr, "ADDR")
	str(&c.AssetsDir, "ASSETS_DIR")
	str(&c.Proxy, "PROXY")
	list(&c.Mirrors, "MIRRORS")
	str(&c.IdleTimeout, "IDLE_TIMEOUT")
	str(&c.RunTimeout, "RUN_TIMEOUT")
	str(&c.PollInterval, "POLL_INTERVAL")
	str(&c.StopGrace, "STOP_GRACE")
	str(&c.LogLevel, "LOG_LEVEL")
	list(&c.CORSOrigins, "CORS_ORIGINS")
}

// SplitCSV splits a comma-separated list, trimming blanks.
func SplitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
