package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration.
type Config struct {
	Version     string            `yaml:"version"`
	Server      ServerConfig      `yaml:"server"`
	Poll        PollConfig        `yaml:"poll"`
	Credentials CredentialsConfig `yaml:"credentials"`
	History     HistoryConfig     `yaml:"history"`
	Telegram    TelegramConfig    `yaml:"telegram"`
	Providers   []ProviderConfig  `yaml:"providers"`
}

// ServerConfig contains the status API server configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	HTTPPort        int           `yaml:"http_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
}

// PollConfig controls the background monitor loop.
type PollConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
}

// CredentialsConfig locates the credential store file.
type CredentialsConfig struct {
	Path string `yaml:"path"`
}

// HistoryConfig controls usage sample persistence.
type HistoryConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// TelegramConfig contains Telegram alert configuration.
type TelegramConfig struct {
	Enabled    bool          `yaml:"enabled"`
	BotToken   string        `yaml:"bot_token"`
	ChatID     int64         `yaml:"chat_id"`
	Thresholds []float64     `yaml:"thresholds"`
	Cooldown   time.Duration `yaml:"cooldown"`
}

// ProviderConfig configures one monitored provider.
type ProviderConfig struct {
	Key        string        `yaml:"key"`
	Disabled   bool          `yaml:"disabled"`
	Source     string        `yaml:"source"`
	Account    string        `yaml:"account"`
	Browser    string        `yaml:"browser"`
	WebTimeout time.Duration `yaml:"web_timeout"`
}

var validSources = map[string]bool{
	"": true, "auto": true, "oauth": true, "cli": true, "web": true,
}

var validBrowsers = map[string]bool{
	"": true, "chrome": true, "chromium": true, "brave": true,
	"edge": true, "firefox": true,
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Server.HTTPPort < 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port must be between 0 and 65535, got %d", c.Server.HTTPPort)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server.shutdown_timeout must not be negative")
	}
	switch c.Server.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("server.log_level must be one of debug, info, warn, error; got %q", c.Server.LogLevel)
	}

	if c.Poll.Interval < 0 {
		return fmt.Errorf("poll.interval must not be negative")
	}
	if c.Poll.Concurrency < 0 {
		return fmt.Errorf("poll.concurrency must not be negative")
	}

	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("history.path is required when history is enabled")
	}
	if c.History.Retention < 0 {
		return fmt.Errorf("history.retention must not be negative")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == 0 {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
		for _, threshold := range c.Telegram.Thresholds {
			if threshold <= 0 || threshold > 100 {
				return fmt.Errorf("telegram.thresholds entries must be in (0, 100], got %v", threshold)
			}
		}
	}

	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.Key == "" {
			return fmt.Errorf("providers[%d].key is required", i)
		}
		if seen[p.Key] {
			return fmt.Errorf("provider %q is configured twice", p.Key)
		}
		seen[p.Key] = true
		if !validSources[p.Source] {
			return fmt.Errorf("providers[%d].source must be auto, oauth, cli or web; got %q", i, p.Source)
		}
		if !validBrowsers[p.Browser] {
			return fmt.Errorf("providers[%d].browser %q is not supported", i, p.Browser)
		}
		if p.WebTimeout < 0 {
			return fmt.Errorf("providers[%d].web_timeout must not be negative", i)
		}
	}
	return nil
}

// EnabledProviders returns configured providers that are not disabled, in
// declaration order. Declaration order is the display and result order.
func (c *Config) EnabledProviders() []ProviderConfig {
	out := make([]ProviderConfig, 0, len(c.Providers))
	for _, p := range c.Providers {
		if !p.Disabled {
			out = append(out, p)
		}
	}
	return out
}

// Default returns a configuration with sane defaults and no providers.
func Default() *Config {
	return &Config{
		Version: "1",
		Server: ServerConfig{
			Host:            "127.0.0.1",
			HTTPPort:        8318,
			ShutdownTimeout: 30 * time.Second,
			LogLevel:        "info",
			LogFormat:       "json",
		},
		Poll: PollConfig{
			Interval:    60 * time.Second,
			Concurrency: 4,
		},
		History: HistoryConfig{
			Retention: 7 * 24 * time.Hour,
		},
		Telegram: TelegramConfig{
			Thresholds: []float64{80, 95},
			Cooldown:   30 * time.Minute,
		},
	}
}
