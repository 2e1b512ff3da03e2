package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment overrides (TASKSYNC_SERVER_URL, ...).
const EnvPrefix = "TASKSYNC"

// Backend names.
const (
	BackendREST        = "rest"
	BackendGoogleTasks = "googletasks"
)

// Cache strategies.
const (
	StrategyCacheFirst   = "cache-first"
	StrategyNetworkFirst = "network-first"
)

// Settings holds everything read from config.yaml.
type Settings struct {
	Backend string         `mapstructure:"backend" yaml:"backend" validate:"required,oneof=rest googletasks"`
	Server  ServerSettings `mapstructure:"server" yaml:"server"`
	Cache   CacheSettings  `mapstructure:"cache" yaml:"cache"`
	Queue   QueueSettings  `mapstructure:"queue" yaml:"queue"`
	Sync    SyncSettings   `mapstructure:"sync" yaml:"sync"`
	Serve   ServeSettings  `mapstructure:"serve" yaml:"serve"`
	Log     LogSettings    `mapstructure:"log" yaml:"log"`
}

// ServerSettings describes the task REST backend.
type ServerSettings struct {
	URL       string        `mapstructure:"url" yaml:"url" validate:"required,url"`
	APIPrefix string        `mapstructure:"api_prefix" yaml:"api_prefix" validate:"required,startswith=/"`
	CSRFToken string        `mapstructure:"csrf_token" yaml:"csrf_token"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"-" validate:"gt=0"`
}

// CacheSettings controls the response cache and the interceptor.
type CacheSettings struct {
	Name         string   `mapstructure:"name" yaml:"name" validate:"required"`
	Strategy     string   `mapstructure:"strategy" yaml:"strategy" validate:"required,oneof=cache-first network-first"`
	Assets       []string `mapstructure:"assets" yaml:"assets"`
	Patterns     []string `mapstructure:"patterns" yaml:"patterns" validate:"dive,required"`
	FallbackIcon string   `mapstructure:"fallback_icon" yaml:"fallback_icon"`
}

// QueueSettings names the local task database.
type QueueSettings struct {
	Name string `mapstructure:"name" yaml:"name" validate:"required"`
}

// SyncSettings controls background replay and connectivity probing.
type SyncSettings struct {
	Tag           string        `mapstructure:"tag" yaml:"tag" validate:"required"`
	Parallelism   int           `mapstructure:"parallelism" yaml:"parallelism" validate:"min=1"`
	ProbeInterval time.Duration `mapstructure:"probe_interval" yaml:"-" validate:"gt=0"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout" yaml:"-" validate:"gt=0"`
	MaxBackoff    time.Duration `mapstructure:"max_backoff" yaml:"-" validate:"gtefield=ProbeInterval"`
}

// ServeSettings configures the local offline proxy.
type ServeSettings struct {
	Addr string `mapstructure:"addr" yaml:"addr" validate:"required,hostname_port"`
}

// LogSettings configures the slog logger.
type LogSettings struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`
}

// DefaultAssets is the install-time asset manifest.
var DefaultAssets = []string{
	"/",
	"/tasks/",
	"/static/tasks/styles.css",
	"/static/tasks/manifest.json",
	"/static/tasks/tasks.js",
	"/static/tasks/tasks-db.js",
	"/static/tasks/icon-192x192.png",
	"/static/tasks/icon-512x512.png",
}

// DefaultPatterns are the URL substrings whose GET responses are cached on fetch.
var DefaultPatterns = []string{
	"/api/tasks/",
	"/tasks/add",
	"/manifest.json",
	"/icon-192x192.png",
	"/icon-512x512.png",
}

// DefaultSettings returns the built-in settings.
func DefaultSettings() Settings {
	return Settings{
		Backend: BackendREST,
		Server: ServerSettings{
			URL:       "http://localhost:8000",
			APIPrefix: "/tasks/",
			Timeout:   5 * time.Second,
		},
		Cache: CacheSettings{
			Name:         "task-list-cache",
			Strategy:     StrategyCacheFirst,
			Assets:       append([]string(nil), DefaultAssets...),
			Patterns:     append([]string(nil), DefaultPatterns...),
			FallbackIcon: "/static/tasks/icon-192x192.png",
		},
		Queue: QueueSettings{Name: "tasksDB"},
		Sync: SyncSettings{
			Tag:           "sync-tasks",
			Parallelism:   4,
			ProbeInterval: 15 * time.Second,
			ProbeTimeout:  3 * time.Second,
			MaxBackoff:    5 * time.Minute,
		},
		Serve: ServeSettings{Addr: "127.0.0.1:8080"},
		Log:   LogSettings{Level: "warn", Format: "text"},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the settings for consistency.
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("invalid setting %s: failed %q", settingKey(f.Namespace()), f.Tag())
		}
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

// settingKey turns "Settings.Server.URL" into "server.url".
func settingKey(ns string) string {
	ns = strings.TrimPrefix(ns, "Settings.")
	return strings.ToLower(ns)
}

// Load reads config.yaml (if present) and TASKSYNC_* environment overrides
// on top of the defaults, then validates the result.
func (c *Config) Load() error {
	v := viper.New()
	setDefaults(v, DefaultSettings())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if c.HasSettings() {
		v.SetConfigFile(c.SettingsPath())
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read %s: %w", SettingsFile, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return fmt.Errorf("failed to decode settings: %w", err)
	}
	s.Server.URL = strings.TrimRight(s.Server.URL, "/")
	if err := s.Validate(); err != nil {
		return err
	}
	c.Settings = s
	return nil
}

func setDefaults(v *viper.Viper, d Settings) {
	v.SetDefault("backend", d.Backend)
	v.SetDefault("server.url", d.Server.URL)
	v.SetDefault("server.api_prefix", d.Server.APIPrefix)
	v.SetDefault("server.csrf_token", d.Server.CSRFToken)
	v.SetDefault("server.timeout", d.Server.Timeout)
	v.SetDefault("cache.name", d.Cache.Name)
	v.SetDefault("cache.strategy", d.Cache.Strategy)
	v.SetDefault("cache.assets", d.Cache.Assets)
	v.SetDefault("cache.patterns", d.Cache.Patterns)
	v.SetDefault("cache.fallback_icon", d.Cache.FallbackIcon)
	v.SetDefault("queue.name", d.Queue.Name)
	v.SetDefault("sync.tag", d.Sync.Tag)
	v.SetDefault("sync.parallelism", d.Sync.Parallelism)
	v.SetDefault("sync.probe_interval", d.Sync.ProbeInterval)
	v.SetDefault("sync.probe_timeout", d.Sync.ProbeTimeout)
	v.SetDefault("sync.max_backoff", d.Sync.MaxBackoff)
	v.SetDefault("serve.addr", d.Serve.Addr)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// MarshalYAML writes durations in their string form so they read back through viper.
func (s ServerSettings) MarshalYAML() (any, error) {
	type plain ServerSettings
	return struct {
		plain   `yaml:",inline"`
		Timeout string `yaml:"timeout"`
	}{plain(s), s.Timeout.String()}, nil
}

// MarshalYAML writes durations in their string form so they read back through viper.
func (s SyncSettings) MarshalYAML() (any, error) {
	type plain SyncSettings
	return struct {
		plain         `yaml:",inline"`
		ProbeInterval string `yaml:"probe_interval"`
		ProbeTimeout  string `yaml:"probe_timeout"`
		MaxBackoff    string `yaml:"max_backoff"`
	}{plain(s), s.ProbeInterval.String(), s.ProbeTimeout.String(), s.MaxBackoff.String()}, nil
}

// WriteDefault writes the default settings to config.yaml.
// An existing file is left untouched unless force is set.
func (c *Config) WriteDefault(force bool) error {
	if c.HasSettings() && !force {
		return fmt.Errorf("%s already exists", c.SettingsPath())
	}
	if err := c.EnsureDir(); err != nil {
		return err
	}
	data, err := yaml.Marshal(DefaultSettings())
	if err != nil {
		return err
	}
	return os.WriteFile(c.SettingsPath(), data, 0600)
}
