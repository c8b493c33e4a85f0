// Package config loads the modmail relay's YAML configuration: a nested
// Config struct, a defaults() pass applying zero-value fallbacks, and a
// LoadConfigFile entrypoint.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds every setting the core consumes; it is read by the entrypoint
// and handed down, never reached for at runtime by the packages underneath.
type Config struct {
	DBPath string `yaml:"db_path"`

	Platform PlatformConfig `yaml:"platform"`
	Mirror   MirrorConfig   `yaml:"mirror"`
	LogLevel string         `yaml:"log_level"`
}

// PlatformConfig is everything the relay needs to address the platform:
// credentials and the fixed ids that scope it to one community.
type PlatformConfig struct {
	Token           string `yaml:"token"`
	CommunityID     string `yaml:"community_id"`
	StaffID         string `yaml:"staff_id"`
	InboxCategoryID string `yaml:"inbox_category_id"`
	LogsChannelID   string `yaml:"logs_channel_id"`
	CommandPrefix   string `yaml:"command_prefix"`
}

// MirrorConfig carries the message-mirror feature flags and display
// strings.
type MirrorConfig struct {
	AnonymousStaffName string `yaml:"anonymous_staff_name"`
	MaxAttachmentBytes int64  `yaml:"max_attachment_bytes"`

	ShowSuccessOnReply bool `yaml:"show_success_on_reply"`
	ShowSuccessOnEdit  bool `yaml:"show_success_on_edit"`
	ShowLogOnEdit      bool `yaml:"show_log_on_edit"`
	ShowLogOnDelete    bool `yaml:"show_log_on_delete"`
	EnableLogs         bool `yaml:"enable_logs"`
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "modmail.db"
	}
	if c.Platform.CommandPrefix == "" {
		c.Platform.CommandPrefix = "!"
	}
	if c.Mirror.AnonymousStaffName == "" {
		c.Mirror.AnonymousStaffName = "Staff"
	}
	if c.Mirror.MaxAttachmentBytes <= 0 {
		c.Mirror.MaxAttachmentBytes = 8 * 1024 * 1024
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// LoadConfigFile reads and parses a YAML config file, applying defaults to
// any zero-value field left unset.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.defaults()
	return cfg, nil
}
