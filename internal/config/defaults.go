package config

import (
	"github.com/knadh/koanf/providers/confmap"
)

func DefaultConfig() map[string]interface{} {
	return map[string]interface{}{
		"timezone": "Local",
		"storage": map[string]interface{}{
			"path": "~/.goal-reminders/reminders.db",
		},
		"notifications": map[string]interface{}{
			"enabled":       true,
			"auto_grant":    false,
			"reminder_hour": 9,
			"silent":        false,
			"parse_mode":    "HTML",
		},
		"telegram": map[string]interface{}{
			"bot_token":  "",
			"chat_id":    0,
			"rate_limit": 1.0, // Telegram allows ~1 msg/s per chat
			"burst":      3,
		},
		"sweeper": map[string]interface{}{
			"enabled":   true,
			"interval":  3600,
			"reconcile": true,
		},
		"http": map[string]interface{}{
			"addr": ":8080",
			"mode": "release",
		},
		"log": map[string]interface{}{
			"level":        "info",
			"file":         "~/.goal-reminders/logs/goal-reminders.log",
			"max_size_mb":  50,
			"max_backups":  5,
			"max_age_days": 30,
			"console":      true,
		},
	}
}

func NewDefaultProvider() *confmap.Confmap {
	return confmap.Provider(DefaultConfig(), ".")
}

func GetDefaultConfigPath() string {
	return "~/.goal-reminders/config.yaml"
}
