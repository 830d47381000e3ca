// Package config handles relaywire configuration loading for the
// reference CLI harness (cmd/relaywire-demo). The client library itself
// takes plain constructor arguments and options; this package only adds
// file-based discovery and defaulting on top, the way Thane's own config
// package layers onto its in-process settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./relaywire.yaml, ~/.config/relaywire/config.yaml, /etc/relaywire/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"relaywire.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "relaywire", "config.yaml"))
	}

	paths = append(paths, "/etc/relaywire/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds the settings the reference CLI harness needs to build a
// relaywire.Client: the origin to talk to, the keyset, and a few
// operational knobs. Nothing here is required by the client library
// itself — library callers that don't want file-based configuration
// pass these values to relaywire.NewClient and transporthttp.New
// directly.
type Config struct {
	Origin       string `yaml:"origin"`
	PublishKey   string `yaml:"publish_key"`
	SubscribeKey string `yaml:"subscribe_key"`
	UserAgent    string `yaml:"user_agent"`
	LogLevel     string `yaml:"log_level"`

	// SubscribeQueueSize bounds each subscription's per-message buffer.
	// A subscriber that stops reading stalls the shared poll loop once
	// its queue is full; see internal/subscribeloop.
	SubscribeQueueSize int `yaml:"subscribe_queue_size"`

	// SubscribeTimeout and PublishTimeout bound a single HTTP round
	// trip. SubscribeTimeout must comfortably exceed the service's
	// long-poll hold time.
	SubscribeTimeout time.Duration `yaml:"subscribe_timeout"`
	PublishTimeout   time.Duration `yaml:"publish_timeout"`
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults for any unset fields, and validates the
// result. After Load returns successfully, Origin and SubscribeKey are
// set and the queue size, timeouts and log level hold usable values;
// PublishKey and UserAgent get no default and may still be empty.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${RELAYWIRE_SUBSCRIBE_KEY}).
	// This is a convenience for container deployments; the recommended
	// approach is to put values directly in the config file.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-value fields with sensible defaults.
// Called automatically by Load. It covers SubscribeQueueSize,
// SubscribeTimeout, PublishTimeout and LogLevel; the string fields
// Origin, PublishKey, SubscribeKey and UserAgent are left as they are.
func (c *Config) applyDefaults() {
	if c.SubscribeQueueSize == 0 {
		c.SubscribeQueueSize = 100
	}
	if c.SubscribeTimeout == 0 {
		c.SubscribeTimeout = 320 * time.Second
	}
	if c.PublishTimeout == 0 {
		c.PublishTimeout = 10 * time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks that the configuration is internally consistent.
// It runs after applyDefaults, so it can assume defaults are populated.
// Returns an error describing the first problem found, or nil.
func (c *Config) Validate() error {
	if c.Origin == "" {
		return fmt.Errorf("origin is required")
	}
	if c.SubscribeKey == "" {
		return fmt.Errorf("subscribe_key is required")
	}
	if c.SubscribeQueueSize < 1 {
		return fmt.Errorf("subscribe_queue_size %d must be at least 1", c.SubscribeQueueSize)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Default returns a default configuration pointed at no particular
// origin; callers overwrite Origin/PublishKey/SubscribeKey before use.
// All other defaults are already applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
