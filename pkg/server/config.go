package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// TOMLConfig represents the structure of the server config file
type TOMLConfig struct {
	Server  ServerSection  `toml:"server"`
	Chat    ChatSection    `toml:"chat"`
	Limits  LimitsSection  `toml:"limits"`
	Storage StorageSection `toml:"storage"`
}

type ServerSection struct {
	TCPAddr                  string `toml:"tcp_addr"`
	WSAddr                   string `toml:"ws_addr"`
	MetricsAddr              string `toml:"metrics_addr"`
	TickIntervalMS           int    `toml:"tick_interval_ms"`
	KeepaliveIntervalSeconds int    `toml:"keepalive_interval_seconds"`
	StaleAfterSeconds        int    `toml:"stale_after_seconds"`
	LogLevel                 string `toml:"log_level"`
}

type ChatSection struct {
	Realm                 string `toml:"realm"`
	NewcomerChannel       string `toml:"newcomer_channel"`
	AccountRefreshSeconds int    `toml:"account_refresh_seconds"`
	KarmaThreshold        int    `toml:"karma_threshold"`
	LevelThreshold        int    `toml:"level_threshold"`
}

type LimitsSection struct {
	AntiSpamEnabled        bool `toml:"anti_spam_enabled"`
	MinMessagesPerInterval int  `toml:"min_messages_per_interval"`
	MaxMessagesPerInterval int  `toml:"max_messages_per_interval"`
	BypassStatus           int  `toml:"bypass_status"`
	KickThreshold          int  `toml:"kick_threshold"`
	IntervalSeconds        int  `toml:"interval_seconds"`
	MuteSeconds            int  `toml:"mute_seconds"`
}

type StorageSection struct {
	DatabasePath string `toml:"database_path"`
}

// DefaultTOMLConfig returns the default TOML configuration
func DefaultTOMLConfig() TOMLConfig {
	return TOMLConfig{
		Server: ServerSection{
			TCPAddr:                  ":7778",
			WSAddr:                   ":7779",
			MetricsAddr:              ":9190",
			TickIntervalMS:           50,
			KeepaliveIntervalSeconds: 45,
			StaleAfterSeconds:        600,
			LogLevel:                 "info",
		},
		Chat: ChatSection{
			Realm:                 "loreworld",
			NewcomerChannel:       "Newplayers",
			AccountRefreshSeconds: 600,
			KarmaThreshold:        0,
			LevelThreshold:        0,
		},
		Limits: LimitsSection{
			AntiSpamEnabled:        true,
			MinMessagesPerInterval: 4,
			MaxMessagesPerInterval: 12,
			BypassStatus:           80,
			KickThreshold:          20,
			IntervalSeconds:        60,
			MuteSeconds:            3600,
		},
		Storage: StorageSection{
			DatabasePath: "~/.chatserver/chat.db",
		},
	}
}

// LoadConfig loads configuration from a TOML file, creates default if not found
func LoadConfig(path string) (TOMLConfig, error) {
	expanded, err := expandHome(path)
	if err != nil {
		return TOMLConfig{}, err
	}
	path = expanded

	if _, err := os.Stat(path); os.IsNotExist(err) {
		// File doesn't exist, create default config. If we can't
		// write (permissions), still run with defaults.
		config := DefaultTOMLConfig()
		if err := writeDefaultConfig(path, config); err != nil {
			return config, nil
		}
		return config, nil
	}

	var config TOMLConfig
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return TOMLConfig{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// writeDefaultConfig writes the default config to a file
func writeDefaultConfig(path string, config TOMLConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	header := `# Chat Server Configuration
# This file was auto-generated with default values
# Edit as needed and restart the server for changes to take effect

`
	if _, err := f.WriteString(header); err != nil {
		return err
	}

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// GetDatabasePath returns the database path with ~ expanded
func (c *TOMLConfig) GetDatabasePath() (string, error) {
	return expandHome(c.Storage.DatabasePath)
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, path[2:]), nil
}
