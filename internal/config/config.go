package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	internalsettings "github.com/router-for-me/GeminiKeyRelay/internal/settings"
	"gopkg.in/yaml.v3"
)

// Validation errors.
var (
	ErrInvalidPort        = errors.New("port must be between 1 and 65535")
	ErrInvalidMaxRetries  = errors.New("retry.max-retries must not be negative")
	ErrInvalidRetryDelay  = errors.New("retry delays must be positive")
	ErrMissingModelMarker = errors.New("upstream.url must contain " + internalsettings.ModelPlaceholder)
	ErrMissingKeySource   = errors.New("keys.env or keys.file must be set")
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string `yaml:"-"`
	// FileLoaded reports whether ConfigPath existed and was read.
	FileLoaded bool   `yaml:"-"`

	Host      string          `yaml:"host"`
	Port      int             `yaml:"port"`
	RoutePath string          `yaml:"route-path"`
	WebRoot   string          `yaml:"web-root"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Keys      KeysConfig      `yaml:"keys"`
	Retry     RetryConfig     `yaml:"retry"`
	CORS      CORSConfig      `yaml:"cors"`
	RateLimit RateLimitConfig `yaml:"rate-limit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// UpstreamConfig describes the upstream generation endpoint.
type UpstreamConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// KeysConfig names where credentials come from. The keys themselves never live in the YAML file.
type KeysConfig struct {
	Env  string `yaml:"env"`
	File string `yaml:"file"`
}

// RetryConfig controls rotation on rate-limited responses.
type RetryConfig struct {
	MaxRetries   *int            `yaml:"max-retries"`
	Delays       []time.Duration `yaml:"delays"`
	DefaultDelay time.Duration   `yaml:"default-delay"`
}

// CORSConfig controls cross-origin response headers.
type CORSConfig struct {
	AllowOrigin string `yaml:"allow-origin"`
}

// RateLimitConfig controls the inbound per-client limiter.
type RateLimitConfig struct {
	Limit int         `yaml:"limit"`
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig holds the optional Redis limiter backend settings.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// LoggingConfig controls log level and the optional rotated log file.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max-size-mb"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAgeDays int    `yaml:"max-age-days"`
}

// MaxRetriesOrDefault returns the configured retry count or the default.
func (r RetryConfig) MaxRetriesOrDefault() int {
	if r.MaxRetries == nil {
		return internalsettings.DefaultMaxRetries
	}
	return *r.MaxRetries
}

// Addr returns the listen address.
func (c AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Default returns a config populated with defaults only.
func Default() AppConfig {
	cfg := AppConfig{}
	applyDefaults(&cfg)
	return cfg
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = internalsettings.DefaultConfigPath
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// LoadFromEnv resolves the config path from the environment and loads it.
func LoadFromEnv() (AppConfig, error) {
	return Load(os.Getenv(internalsettings.EnvConfigPath))
}

// Load reads the YAML config file, applies environment overrides and defaults, and validates.
// A missing file is not an error; defaults and the environment then decide everything.
func Load(configPath string) (AppConfig, error) {
	resolved := ResolveConfigPath(configPath)
	cfg := AppConfig{}

	data, errRead := os.ReadFile(resolved)
	switch {
	case errRead == nil:
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return AppConfig{}, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
		cfg.FileLoaded = true
	case errors.Is(errRead, os.ErrNotExist):
	default:
		return AppConfig{}, fmt.Errorf("read config file: %w", errRead)
	}
	cfg.ConfigPath = resolved

	applyEnv(&cfg)
	applyDefaults(&cfg)
	if errValidate := cfg.Validate(); errValidate != nil {
		return AppConfig{}, errValidate
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c AppConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidPort
	}
	if c.Retry.MaxRetriesOrDefault() < 0 {
		return ErrInvalidMaxRetries
	}
	for _, d := range c.Retry.Delays {
		if d <= 0 {
			return ErrInvalidRetryDelay
		}
	}
	if c.Retry.DefaultDelay <= 0 {
		return ErrInvalidRetryDelay
	}
	if !strings.Contains(c.Upstream.URL, internalsettings.ModelPlaceholder) {
		return ErrMissingModelMarker
	}
	if strings.TrimSpace(c.Keys.Env) == "" && strings.TrimSpace(c.Keys.File) == "" {
		return ErrMissingKeySource
	}
	return nil
}

func applyEnv(cfg *AppConfig) {
	if host := strings.TrimSpace(os.Getenv(internalsettings.EnvHost)); host != "" {
		cfg.Host = host
	}
	if raw := strings.TrimSpace(os.Getenv(internalsettings.EnvPort)); raw != "" {
		if port, errParse := strconv.Atoi(raw); errParse == nil {
			cfg.Port = port
		}
	}
	if level := strings.TrimSpace(os.Getenv(internalsettings.EnvLogLevel)); level != "" {
		cfg.Logging.Level = level
	}
	if upstream := strings.TrimSpace(os.Getenv(internalsettings.EnvUpstreamURL)); upstream != "" {
		cfg.Upstream.URL = upstream
	}
	if keysFile := strings.TrimSpace(os.Getenv(internalsettings.EnvKeysFile)); keysFile != "" {
		cfg.Keys.File = keysFile
	}
	if webRoot := strings.TrimSpace(os.Getenv(internalsettings.EnvWebRoot)); webRoot != "" {
		cfg.WebRoot = webRoot
	}
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Port == 0 {
		cfg.Port = internalsettings.DefaultPort
	}
	cfg.RoutePath = strings.TrimSpace(cfg.RoutePath)
	if cfg.RoutePath == "" {
		cfg.RoutePath = internalsettings.DefaultRoutePath
	}
	if !strings.HasPrefix(cfg.RoutePath, "/") {
		cfg.RoutePath = "/" + cfg.RoutePath
	}
	cfg.Upstream.URL = strings.TrimSpace(cfg.Upstream.URL)
	if cfg.Upstream.URL == "" {
		cfg.Upstream.URL = internalsettings.DefaultUpstreamURL
	}
	if cfg.Upstream.Timeout <= 0 {
		cfg.Upstream.Timeout = internalsettings.DefaultUpstreamTimeout
	}
	cfg.Keys.File = strings.TrimSpace(cfg.Keys.File)
	cfg.Keys.Env = strings.TrimSpace(cfg.Keys.Env)
	if cfg.Keys.Env == "" && cfg.Keys.File == "" {
		cfg.Keys.Env = internalsettings.DefaultKeysEnv
	}
	if cfg.Retry.Delays == nil {
		cfg.Retry.Delays = internalsettings.DefaultRetryDelays()
	}
	if cfg.Retry.DefaultDelay == 0 {
		cfg.Retry.DefaultDelay = internalsettings.DefaultRetryDelay
	}
	cfg.CORS.AllowOrigin = strings.TrimSpace(cfg.CORS.AllowOrigin)
	if cfg.CORS.AllowOrigin == "" {
		cfg.CORS.AllowOrigin = internalsettings.DefaultAllowOrigin
	}
	if cfg.RateLimit.Limit < 0 {
		cfg.RateLimit.Limit = internalsettings.DefaultRateLimit
	}
	cfg.RateLimit.Redis.Addr = strings.TrimSpace(cfg.RateLimit.Redis.Addr)
	cfg.RateLimit.Redis.Password = strings.TrimSpace(cfg.RateLimit.Redis.Password)
	cfg.RateLimit.Redis.Prefix = strings.TrimSpace(cfg.RateLimit.Redis.Prefix)
	if cfg.RateLimit.Redis.Prefix == "" {
		cfg.RateLimit.Redis.Prefix = internalsettings.DefaultRateLimitRedisPrefix
	}
	if cfg.RateLimit.Redis.DB < 0 {
		cfg.RateLimit.Redis.DB = 0
	}
	cfg.Logging.Level = strings.TrimSpace(cfg.Logging.Level)
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = internalsettings.DefaultLogLevel
	}
	if cfg.Logging.MaxSizeMB <= 0 {
		cfg.Logging.MaxSizeMB = internalsettings.DefaultLogMaxSizeMB
	}
	if cfg.Logging.MaxBackups <= 0 {
		cfg.Logging.MaxBackups = internalsettings.DefaultLogMaxBackups
	}
}
