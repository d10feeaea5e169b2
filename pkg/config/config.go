// Package config provides the agent-relay configuration. It is stored in
// ~/.config/agent-relay/config.yaml and can be overridden with environment
// variables.
package config

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/natefinch/atomic"

	"github.com/docker/agent-relay/pkg/environment"
	"github.com/docker/agent-relay/pkg/paths"
)

// CurrentVersion is the current version of the config format
const CurrentVersion = "v1"

// Mode selects the settings Validate requires.
type Mode int

const (
	// ModeServe runs the Slack webhook server.
	ModeServe Mode = iota
	// ModeAsk relays a single prompt to the terminal.
	ModeAsk
	// ModeStore only touches the bindings database.
	ModeStore
)

// Agent configures the agent server messages are relayed to.
type Agent struct {
	// URL is the base URL of the agent server
	URL    string `yaml:"url,omitempty"`
	APIKey string `yaml:"api_key,omitempty"`
	// Default answers in channels without a binding
	Default string `yaml:"default,omitempty"`
	// ToolCacheTTL caches tool listings per agent, 0 disables the cache
	ToolCacheTTL time.Duration `yaml:"tool_cache_ttl,omitempty"`
}

type Slack struct {
	BotToken      string `yaml:"bot_token,omitempty"`
	SigningSecret string `yaml:"signing_secret,omitempty"`
	// DedupWindow is for how long delivered event ids are remembered
	DedupWindow time.Duration `yaml:"dedup_window,omitempty"`
}

type Server struct {
	Listen string `yaml:"listen,omitempty"`
	// AdminSecret signs admin API tokens. The admin API is disabled when empty.
	AdminSecret string `yaml:"admin_secret,omitempty"`
}

type Store struct {
	// Path of the SQLite database. Bindings are kept in memory when set to ":memory:".
	Path string `yaml:"path,omitempty"`
}

// Relay tunes how a reply is streamed.
type Relay struct {
	TickInterval         time.Duration `yaml:"tick_interval,omitempty"`
	UpdatesPerSecond     float64       `yaml:"updates_per_second,omitempty"`
	MaxDuration          time.Duration `yaml:"max_duration,omitempty"`
	ToolCallTimeout      time.Duration `yaml:"tool_call_timeout,omitempty"`
	PrefetchTimeout      time.Duration `yaml:"prefetch_timeout,omitempty"`
	TerminalWriteTimeout time.Duration `yaml:"terminal_write_timeout,omitempty"`
	FallbackText         string        `yaml:"fallback_text,omitempty"`
	ErrorText            string        `yaml:"error_text,omitempty"`
}

type Config struct {
	// Version is the config format version
	Version string `yaml:"version,omitempty"`
	Agent   Agent  `yaml:"agent,omitempty"`
	Slack   Slack  `yaml:"slack,omitempty"`
	Server  Server `yaml:"server,omitempty"`
	Store   Store  `yaml:"store,omitempty"`
	Relay   Relay  `yaml:"relay,omitempty"`
}

// Path returns the path to the default config file
func Path() string {
	return filepath.Join(paths.GetConfigDir(), "config.yaml")
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Agent: Agent{
			URL:          "http://localhost:4111",
			ToolCacheTTL: 5 * time.Minute,
		},
		Slack: Slack{
			DedupWindow: 10 * time.Minute,
		},
		Server: Server{
			Listen: ":3000",
		},
		Store: Store{
			Path: filepath.Join(paths.GetDataDir(), "agent-relay.db"),
		},
	}
}

// Load reads the config file at path, or the default one when path is
// empty, then applies the environment overrides. A missing file is not an
// error.
func Load(ctx context.Context, path string, env environment.Provider) (*Config, error) {
	if path == "" {
		path = Path()
	}

	cfg, err := readConfig(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.applyEnv(ctx, env); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readConfig reads and parses the config file on top of the defaults.
func readConfig(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

func (c *Config) applyEnv(ctx context.Context, env environment.Provider) error {
	values := map[string]*string{
		"AGENT_RELAY_AGENT_URL":     &c.Agent.URL,
		"AGENT_RELAY_AGENT_API_KEY": &c.Agent.APIKey,
		"AGENT_RELAY_DEFAULT_AGENT": &c.Agent.Default,
		"SLACK_BOT_TOKEN":           &c.Slack.BotToken,
		"SLACK_SIGNING_SECRET":      &c.Slack.SigningSecret,
		"AGENT_RELAY_LISTEN":        &c.Server.Listen,
		"AGENT_RELAY_ADMIN_SECRET":  &c.Server.AdminSecret,
		"AGENT_RELAY_DB":            &c.Store.Path,
	}
	for name, dst := range values {
		if value, ok := env.Get(ctx, name); ok && value != "" {
			*dst = value
		}
	}

	durations := map[string]*time.Duration{
		"AGENT_RELAY_MAX_DURATION":      &c.Relay.MaxDuration,
		"AGENT_RELAY_TOOL_CALL_TIMEOUT": &c.Relay.ToolCallTimeout,
		"AGENT_RELAY_TOOL_CACHE_TTL":    &c.Agent.ToolCacheTTL,
	}
	for name, dst := range durations {
		value, ok := env.Get(ctx, name)
		if !ok || value == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		*dst = d
	}

	if value, ok := env.Get(ctx, "AGENT_RELAY_UPDATES_PER_SECOND"); ok && value != "" {
		rate, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid AGENT_RELAY_UPDATES_PER_SECOND: %w", err)
		}
		c.Relay.UpdatesPerSecond = rate
	}

	return nil
}

// Validate checks that the settings mode needs are present. Missing secrets
// are reported together as an *environment.RequiredEnvError.
func (c *Config) Validate(mode Mode) error {
	var missing []string

	if mode == ModeServe || mode == ModeAsk {
		if c.Agent.URL == "" {
			missing = append(missing, "AGENT_RELAY_AGENT_URL")
		}
	}
	if mode == ModeServe {
		if c.Slack.BotToken == "" {
			missing = append(missing, "SLACK_BOT_TOKEN")
		}
		if c.Slack.SigningSecret == "" {
			missing = append(missing, "SLACK_SIGNING_SECRET")
		}
	}
	if mode == ModeStore && c.Store.Path == "" {
		missing = append(missing, "AGENT_RELAY_DB")
	}
	if len(missing) > 0 {
		return &environment.RequiredEnvError{Missing: missing}
	}

	if c.Agent.URL != "" {
		u, err := url.Parse(c.Agent.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid agent URL %q: must be an http or https URL", c.Agent.URL)
		}
	}
	if c.Relay.UpdatesPerSecond < 0 {
		return fmt.Errorf("updates_per_second cannot be negative")
	}
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"tick_interval", c.Relay.TickInterval},
		{"max_duration", c.Relay.MaxDuration},
		{"tool_call_timeout", c.Relay.ToolCallTimeout},
		{"prefetch_timeout", c.Relay.PrefetchTimeout},
		{"terminal_write_timeout", c.Relay.TerminalWriteTimeout},
		{"tool_cache_ttl", c.Agent.ToolCacheTTL},
		{"dedup_window", c.Slack.DedupWindow},
	} {
		if d.value < 0 {
			return fmt.Errorf("%s cannot be negative", d.name)
		}
	}

	return nil
}

// Save writes the configuration to path, or to the default config file when
// path is empty.
func (c *Config) Save(path string) error {
	if path == "" {
		path = Path()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Ensure version is always set to current version when saving
	c.Version = CurrentVersion

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return atomic.WriteFile(path, bytes.NewReader(data))
}
