// Package config handles XDG configuration directory, file paths and settings.
package config

import (
	"os"
	"path/filepath"
)

const (
	// AppName is the application directory name.
	AppName = "tasksync"

	// SettingsFile is the YAML settings filename.
	SettingsFile = "config.yaml"

	// OAuthClientFile is the OAuth client credentials filename.
	OAuthClientFile = "oauth_client.json"

	// TokenFile is the stored OAuth token filename.
	TokenFile = "token.json"

	// CacheDir is the directory holding the named response caches.
	CacheDir = "caches"
)

// Config holds configuration paths and settings.
type Config struct {
	// Dir is the configuration directory path.
	Dir string

	// Debug enables debug logging.
	Debug bool

	// Quiet suppresses informational output.
	Quiet bool

	// Offline forces the offline write path regardless of probes.
	Offline bool

	// Settings holds values loaded from config.yaml and the environment.
	Settings Settings
}

// New creates a new Config with the default or specified config directory.
// If configDir is empty, uses XDG_CONFIG_HOME/tasksync or $HOME/.config/tasksync.
// Settings start at their defaults; call Load to read config.yaml.
func New(configDir string) (*Config, error) {
	dir := configDir
	if dir == "" {
		dir = DefaultConfigDir()
	}
	return &Config{Dir: dir, Settings: DefaultSettings()}, nil
}

// DefaultConfigDir returns the default configuration directory.
// Uses XDG_CONFIG_HOME if set, otherwise $HOME/.config.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home can't be determined
		return AppName
	}
	return filepath.Join(home, ".config", AppName)
}

// SettingsPath returns the path to config.yaml.
func (c *Config) SettingsPath() string {
	return filepath.Join(c.Dir, SettingsFile)
}

// QueuePath returns the path to the local task queue database.
func (c *Config) QueuePath() string {
	return filepath.Join(c.Dir, c.Settings.Queue.Name+".sqlite")
}

// CachePath returns the directory of the response cache store.
func (c *Config) CachePath() string {
	return filepath.Join(c.Dir, CacheDir)
}

// OAuthClientPath returns the path to the OAuth client credentials file.
func (c *Config) OAuthClientPath() string {
	return filepath.Join(c.Dir, OAuthClientFile)
}

// TokenPath returns the path to the stored OAuth token file.
func (c *Config) TokenPath() string {
	return filepath.Join(c.Dir, TokenFile)
}

// EnsureDir creates the config directory if it doesn't exist.
// Directory is created with mode 0700.
func (c *Config) EnsureDir() error {
	return os.MkdirAll(c.Dir, 0700)
}

// HasSettings checks if config.yaml exists.
func (c *Config) HasSettings() bool {
	_, err := os.Stat(c.SettingsPath())
	return err == nil
}

// HasOAuthClient checks if the OAuth client credentials file exists.
func (c *Config) HasOAuthClient() bool {
	_, err := os.Stat(c.OAuthClientPath())
	return err == nil
}

// HasToken checks if the token file exists.
func (c *Config) HasToken() bool {
	_, err := os.Stat(c.TokenPath())
	return err == nil
}

// RemoveToken deletes the token file.
func (c *Config) RemoveToken() error {
	return os.Remove(c.TokenPath())
}
