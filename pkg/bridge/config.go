// Copyright 2024-2026 Aiku AI

package bridge

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed example-config.yaml
var ExampleConfig string

// Duration wraps time.Duration for YAML decoding of values like "30s".
// A bare integer is interpreted as seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	s := strings.TrimSpace(node.Value)
	if secs, err := strconv.Atoi(s); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// TeamSpeakConfig holds the ServerQuery connection settings.
type TeamSpeakConfig struct {
	Host      string `yaml:"host"`
	QueryPort int    `yaml:"query_port"`
	VoicePort int    `yaml:"voice_port"`
	Username  string `yaml:"serverquery_username"`
	Password  string `yaml:"serverquery_password"`
	ChannelID int    `yaml:"channel_id"`
	Nickname  string `yaml:"nickname"`
}

// DiscordConfig holds the bot connection settings.
type DiscordConfig struct {
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`
}

// WebhookConfig holds the optional mirror webhook settings.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// ReconnectConfig tunes the supervisor state machines.
type ReconnectConfig struct {
	BaseDelay         Duration `yaml:"base_delay"`
	MaxDelay          Duration `yaml:"max_delay"`
	KeepaliveInterval Duration `yaml:"keepalive_interval"`
	ShutdownTimeout   Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig controls log level and optional rotating file output.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Config is the full bridge configuration. Loaded once at startup and
// read-only for the process lifetime.
type Config struct {
	TeamSpeak TeamSpeakConfig `yaml:"teamspeak"`
	Discord   DiscordConfig   `yaml:"discord"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoadConfig reads the YAML config at path (skipped when path is empty),
// applies environment overrides, fills defaults and validates. It fails
// fast so a misconfigured bridge never starts a supervisor.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides file values with the environment variables the original
// deployment used, so an existing .env-style setup keeps working.
func (c *Config) applyEnv() {
	setString(&c.TeamSpeak.Host, "TS3_HOST")
	setInt(&c.TeamSpeak.QueryPort, "TS3_QUERY_PORT")
	setInt(&c.TeamSpeak.VoicePort, "TS3_VOICE_PORT")
	setString(&c.TeamSpeak.Username, "TS3_SERVERQUERY_USERNAME")
	setString(&c.TeamSpeak.Password, "TS3_SERVERQUERY_PASSWORD")
	setInt(&c.TeamSpeak.ChannelID, "TS3_CHANNEL_ID")
	setString(&c.TeamSpeak.Nickname, "TS3_NICKNAME")
	setString(&c.Discord.Token, "DISCORD_TOKEN")
	setString(&c.Discord.ChannelID, "DISCORD_CHANNEL_ID")
	setBool(&c.Webhook.Enabled, "USE_WEBHOOK")
	setString(&c.Webhook.URL, "DISCORD_WEBHOOK_URL")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = strings.TrimSpace(v)
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			*dst = true
		case "0", "false", "no", "n", "off":
			*dst = false
		}
	}
}

func (c *Config) setDefaults() {
	if c.TeamSpeak.QueryPort == 0 {
		c.TeamSpeak.QueryPort = 10011
	}
	if c.TeamSpeak.VoicePort == 0 {
		c.TeamSpeak.VoicePort = 9987
	}
	if c.TeamSpeak.Nickname == "" {
		c.TeamSpeak.Nickname = "Bridge"
	}
	if c.Reconnect.BaseDelay <= 0 {
		c.Reconnect.BaseDelay = Duration(2 * time.Second)
	}
	if c.Reconnect.MaxDelay <= 0 {
		c.Reconnect.MaxDelay = Duration(30 * time.Second)
	}
	if c.Reconnect.KeepaliveInterval <= 0 {
		c.Reconnect.KeepaliveInterval = Duration(45 * time.Second)
	}
	if c.Reconnect.ShutdownTimeout <= 0 {
		c.Reconnect.ShutdownTimeout = Duration(5 * time.Second)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = 10
	}
	if c.Logging.MaxBackups <= 0 {
		c.Logging.MaxBackups = 5
	}
	if c.Logging.MaxAgeDays <= 0 {
		c.Logging.MaxAgeDays = 10
	}
}

// Validate reports every missing required value at once.
func (c *Config) Validate() error {
	var missing []string
	if c.TeamSpeak.Host == "" {
		missing = append(missing, "teamspeak.host (TS3_HOST)")
	}
	if c.TeamSpeak.Username == "" {
		missing = append(missing, "teamspeak.serverquery_username (TS3_SERVERQUERY_USERNAME)")
	}
	if c.TeamSpeak.Password == "" {
		missing = append(missing, "teamspeak.serverquery_password (TS3_SERVERQUERY_PASSWORD)")
	}
	if c.TeamSpeak.ChannelID <= 0 {
		missing = append(missing, "teamspeak.channel_id (TS3_CHANNEL_ID)")
	}
	if c.Discord.Token == "" {
		missing = append(missing, "discord.token (DISCORD_TOKEN)")
	}
	if c.Discord.ChannelID == "" {
		missing = append(missing, "discord.channel_id (DISCORD_CHANNEL_ID)")
	}
	if c.Webhook.Enabled && c.Webhook.URL == "" {
		missing = append(missing, "webhook.url (DISCORD_WEBHOOK_URL)")
	}
	if len(missing) > 0 {
		return errors.New("invalid config, missing: " + strings.Join(missing, ", "))
	}
	return nil
}
