// Package config holds the proxy's one immutable configuration document,
// loaded from a single aggregate YAML file via gopkg.in/yaml.v3. No
// environment or CLI-flag parsing happens in this package: cmd/proxyd
// converts flags and environment variables into this struct before it
// reaches anything else.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"mcpmux/internal/domain"
)

// Loader holds the Loading Manager's tunables.
type Loader struct {
	ServerTimeoutMs           int  `yaml:"serverTimeoutMs"`
	MaxRetries                int  `yaml:"maxRetries"`
	RetryDelayMs              int  `yaml:"retryDelayMs"`
	MaxConcurrentLoads        int  `yaml:"maxConcurrentLoads"`
	ContinueOnFailure         bool `yaml:"continueOnFailure"`
	EnableBackgroundRetry     bool `yaml:"enableBackgroundRetry"`
	BackgroundRetryIntervalMs int  `yaml:"backgroundRetryIntervalMs"`
}

// Notifications holds the per-session coalescing-window tunables.
type Notifications struct {
	BatchDelayMs int  `yaml:"batchDelayMs"`
	BatchEnabled bool `yaml:"batchEnabled"`
}

// Templates holds the Instruction Aggregator's tunables.
type Templates struct {
	SizeLimitBytes int `yaml:"sizeLimitBytes"`
}

// Presets holds the Preset Store's tunables.
type Presets struct {
	Directory string `yaml:"directory"`
}

// Config is the proxy's single aggregate configuration document.
type Config struct {
	Loader          Loader                             `yaml:"loader"`
	Notifications   Notifications                      `yaml:"notifications"`
	Templates       Templates                          `yaml:"templates"`
	Presets         Presets                             `yaml:"presets"`
	OutboundServers map[string]domain.ServerDescriptor `yaml:"outboundServers"`
	ToolNamePattern string                              `yaml:"toolNamePattern"`
}

// Default returns a Config with every field set to its out-of-the-box
// default.
func Default() Config {
	return Config{
		Loader: Loader{
			ServerTimeoutMs:           30_000,
			MaxRetries:                3,
			RetryDelayMs:              2_000,
			MaxConcurrentLoads:        5,
			ContinueOnFailure:         true,
			EnableBackgroundRetry:     true,
			BackgroundRetryIntervalMs: 60_000,
		},
		Notifications: Notifications{
			BatchDelayMs: 1_000,
			BatchEnabled: true,
		},
		Templates: Templates{
			SizeLimitBytes: 1 << 20,
		},
		Presets: Presets{
			Directory: "presets",
		},
		OutboundServers: map[string]domain.ServerDescriptor{},
		ToolNamePattern: "{server}_1mcp_{tool}",
	}
}

// Load reads and parses the aggregate YAML document at path on top of
// Default(): fields the document leaves out keep their defaults, and a
// numeric or string field written as zero or empty is also reset to its
// default, so a partial config does not fail.
func Load(path string) (Config, error) {
	cfg := Default()

	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %q: %w", path, err)
	}

	onDisk := cfg
	if err := yaml.Unmarshal(content, &onDisk); err != nil {
		return Config{}, fmt.Errorf("config: parse %q: %w", path, err)
	}

	mergeDefaults(&onDisk, cfg)
	return onDisk, nil
}

func mergeDefaults(cfg *Config, defaults Config) {
	if cfg.Loader.ServerTimeoutMs == 0 {
		cfg.Loader.ServerTimeoutMs = defaults.Loader.ServerTimeoutMs
	}
	if cfg.Loader.MaxRetries == 0 {
		cfg.Loader.MaxRetries = defaults.Loader.MaxRetries
	}
	if cfg.Loader.RetryDelayMs == 0 {
		cfg.Loader.RetryDelayMs = defaults.Loader.RetryDelayMs
	}
	if cfg.Loader.MaxConcurrentLoads == 0 {
		cfg.Loader.MaxConcurrentLoads = defaults.Loader.MaxConcurrentLoads
	}
	if cfg.Loader.BackgroundRetryIntervalMs == 0 {
		cfg.Loader.BackgroundRetryIntervalMs = defaults.Loader.BackgroundRetryIntervalMs
	}
	if cfg.Notifications.BatchDelayMs == 0 {
		cfg.Notifications.BatchDelayMs = defaults.Notifications.BatchDelayMs
	}
	if cfg.Templates.SizeLimitBytes == 0 {
		cfg.Templates.SizeLimitBytes = defaults.Templates.SizeLimitBytes
	}
	if cfg.Presets.Directory == "" {
		cfg.Presets.Directory = defaults.Presets.Directory
	}
	if cfg.ToolNamePattern == "" {
		cfg.ToolNamePattern = defaults.ToolNamePattern
	}
	if cfg.OutboundServers == nil {
		cfg.OutboundServers = map[string]domain.ServerDescriptor{}
	}
}
