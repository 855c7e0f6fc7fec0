package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for environment overrides. Nested keys use a double
// underscore, e.g. GOALREM_SWEEPER__INTERVAL=600.
const EnvPrefix = "GOALREM_"

type Config struct {
	Timezone      string              `koanf:"timezone"`
	Storage       StorageConfig       `koanf:"storage"`
	Notifications NotificationsConfig `koanf:"notifications"`
	Telegram      TelegramConfig      `koanf:"telegram"`
	Sweeper       SweeperConfig       `koanf:"sweeper"`
	HTTP          HTTPConfig          `koanf:"http"`
	Log           LogConfig           `koanf:"log"`
}

type StorageConfig struct {
	Path string `koanf:"path"`
}

// NotificationsConfig controls whether reminders are armed and how the
// deliverer presents them.
type NotificationsConfig struct {
	Enabled      bool   `koanf:"enabled"`
	AutoGrant    bool   `koanf:"auto_grant"`   // Answer the first permission request with a grant
	ReminderHour int    `koanf:"reminder_hour"` // Local hour for day/week-before reminders
	Silent       bool   `koanf:"silent"`
	ParseMode    string `koanf:"parse_mode"`
}

type TelegramConfig struct {
	BotToken  string  `koanf:"bot_token"`
	ChatID    int64   `koanf:"chat_id"`
	RateLimit float64 `koanf:"rate_limit"` // Messages per second
	Burst     int     `koanf:"burst"`
}

type SweeperConfig struct {
	Enabled   bool `koanf:"enabled"`
	Interval  int  `koanf:"interval"` // Seconds
	Reconcile bool `koanf:"reconcile"`
}

type HTTPConfig struct {
	Addr string `koanf:"addr"`
	Mode string `koanf:"mode"` // gin mode: debug, release, test
}

type LogConfig struct {
	Level      string `koanf:"level"`
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
	Console    bool   `koanf:"console"`
}

func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(NewDefaultProvider(), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		configPath = expandPath(configPath)

		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file: %w", err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// Conventional Telegram variables win over everything else
	if token := strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")); token != "" {
		k.Set("telegram.bot_token", token)
	}
	if raw := strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")); raw != "" {
		chatID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID %q: %w", raw, err)
		}
		k.Set("telegram.chat_id", chatID)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Storage.Path = expandPath(cfg.Storage.Path)
	cfg.Log.File = expandPath(cfg.Log.File)

	return &cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}

	if c.Storage.Path == "" {
		return fmt.Errorf("storage path is required")
	}

	if c.Notifications.ReminderHour < 0 || c.Notifications.ReminderHour > 23 {
		return fmt.Errorf("reminder_hour must be between 0 and 23, got %d", c.Notifications.ReminderHour)
	}

	switch c.Notifications.ParseMode {
	case "", "HTML", "Markdown", "MarkdownV2":
	default:
		return fmt.Errorf("unknown parse_mode: %s (supported: HTML, Markdown, MarkdownV2)", c.Notifications.ParseMode)
	}

	if c.Sweeper.Enabled && c.Sweeper.Interval <= 0 {
		return fmt.Errorf("sweeper interval must be positive, got %d", c.Sweeper.Interval)
	}

	if c.Telegram.RateLimit <= 0 {
		return fmt.Errorf("telegram rate_limit must be positive")
	}
	if c.Telegram.Burst <= 0 {
		return fmt.Errorf("telegram burst must be positive")
	}

	if c.Telegram.BotToken != "" && c.Telegram.ChatID == 0 {
		return fmt.Errorf("telegram chat_id is required when bot_token is set (set TELEGRAM_CHAT_ID)")
	}

	return nil
}

// Location resolves the configured timezone used for 09:00-style reminders.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// TelegramEnabled reports whether a delivery channel is configured.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != 0
}

// SweepInterval returns the sweeper period as a duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Sweeper.Interval) * time.Second
}

func expandPath(path string) string {
	if path == "" {
		return path
	}

	if len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}

	return path
}
