package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models flowin.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret      string        `yaml:"jwt_secret"`
		TokenTTL       time.Duration `yaml:"token_ttl"`
		AllowDevHeader bool          `yaml:"allow_dev_header"`
	} `yaml:"auth"`
	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`
	Redis RedisConfig `yaml:"redis"`
	Feed  struct {
		// Backend is memory or redis.
		Backend       string `yaml:"backend"`
		ChannelPrefix string `yaml:"channel_prefix"`
	} `yaml:"feed"`
	Prefs struct {
		// Backend is sqlite or redis.
		Backend string `yaml:"backend"`
	} `yaml:"prefs"`
	Search  SearchConfig `yaml:"search"`
	Welcome struct {
		SeedProject   bool `yaml:"seed_project"`
		Notifications bool `yaml:"notifications"`
	} `yaml:"welcome"`
	Reminders struct {
		Enabled  bool          `yaml:"enabled"`
		Interval time.Duration `yaml:"interval"`
		// Window is how far ahead a due date triggers a reminder.
		Window time.Duration `yaml:"window"`
	} `yaml:"reminders"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type SearchConfig struct {
	Debounce       time.Duration `yaml:"debounce"`
	MaxResults     int           `yaml:"max_results"`
	MaxSuggestions int           `yaml:"max_suggestions"`
	RecentLimit    int           `yaml:"recent_limit"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Validate ensures the config is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("config.auth.token_ttl must be positive")
	}
	switch c.Feed.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("config.redis.addr is required for feed backend redis")
		}
	default:
		return fmt.Errorf("config.feed.backend must be memory or redis")
	}
	switch c.Prefs.Backend {
	case "sqlite":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("config.redis.addr is required for prefs backend redis")
		}
	default:
		return fmt.Errorf("config.prefs.backend must be sqlite or redis")
	}
	if c.Search.Debounce < 0 {
		return fmt.Errorf("config.search.debounce must not be negative")
	}
	if c.Search.MaxResults <= 0 || c.Search.MaxSuggestions <= 0 || c.Search.RecentLimit <= 0 {
		return fmt.Errorf("config.search limits must be positive")
	}
	if c.Reminders.Enabled && (c.Reminders.Interval <= 0 || c.Reminders.Window <= 0) {
		return fmt.Errorf("config.reminders interval and window must be positive")
	}
	for i, hook := range c.Webhooks {
		u, err := url.Parse(hook.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("webhook %d has invalid url %q", i, hook.URL)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("webhook %d has negative timeout", i)
		}
	}
	return nil
}

// RedisRequired reports whether any backend needs a redis connection.
func (c *Config) RedisRequired() bool {
	return c.Feed.Backend == "redis" || c.Prefs.Backend == "redis"
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "flowin.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with flowin config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns Default() when the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses config on top of the defaults and validates it.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v0

auth:
  jwt_secret: ""
  token_ttl: 24h
  allow_dev_header: false

log:
  level: info
  development: false

redis:
  addr: ""
  password: ""
  db: 0

feed:
  backend: memory
  channel_prefix: flowin

prefs:
  backend: sqlite

search:
  debounce: 300ms
  max_results: 20
  max_suggestions: 5
  recent_limit: 10

welcome:
  seed_project: true
  notifications: true

reminders:
  enabled: false
  interval: 1h
  window: 24h

webhooks: []
`
