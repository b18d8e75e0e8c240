// Package config loads and persists the wabot configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ahmadsysdev/wabot/internal/paths"
)

// PackInfo holds the default sticker pack metadata.
type PackInfo struct {
	PackName string `json:"packname"`
	Author   string `json:"author"`
}

// Config represents the merged wabot configuration.
type Config struct {
	// Owner is the bot owner's JID (user part or full JID). The owner
	// bypasses tier and usage-limit checks.
	Owner string `json:"owner"`

	// Developers are JIDs with developer privileges.
	Developers []string `json:"developers"`

	// DefaultPrefix is used when a message doesn't start with a
	// recognized prefix character. The original deployments use "#".
	DefaultPrefix string `json:"defaultPrefix"`

	// AutoJoin makes the bot accept group invite links seen in chats.
	AutoJoin bool `json:"autojoin"`

	// CooldownSeconds is the fallback cooldown for commands that declare
	// a cooldown without a value.
	CooldownSeconds int `json:"cooldownSeconds"`

	// UsageLimit is the fallback per-command usage allowance for
	// limit-bearing commands.
	UsageLimit int `json:"usageLimit"`

	Pack PackInfo `json:"pack"`

	Log LogConfig `json:"log"`
}

type LogConfig struct {
	Level      string `json:"level"` // "debug", "info", "warn", "error"
	ShowCaller bool   `json:"showCaller"`
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		DefaultPrefix:   "#",
		CooldownSeconds: 5,
		UsageLimit:      20,
		Pack: PackInfo{
			PackName: "wabot",
			Author:   "wabot",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the configuration from wabot.json (local dir first, then
// ~/.wabot/wabot.json). A missing file yields the defaults.
func Load() (*Config, error) {
	cfg := Default()

	path, err := paths.ConfigPath()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes the configuration to ~/.wabot/wabot.json atomically.
func (c *Config) Save() error {
	path, err := paths.DataPath("wabot.json")
	if err != nil {
		return err
	}
	return AtomicWriteJSON(path, c, 0600)
}

// IsDeveloper reports whether jid is a configured developer.
func (c *Config) IsDeveloper(jid string) bool {
	for _, dev := range c.Developers {
		if dev == jid {
			return true
		}
	}
	return false
}

// IsOwner reports whether jid is the configured owner.
func (c *Config) IsOwner(jid string) bool {
	return c.Owner != "" && c.Owner == jid
}
