package ratelimit

import (
	"strings"

	"github.com/router-for-me/GeminiKeyRelay/internal/config"
	internalsettings "github.com/router-for-me/GeminiKeyRelay/internal/settings"
)

// SettingsConfig captures the inbound rate limit settings.
type SettingsConfig struct {
	Limit         int
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// SettingsFromConfig converts the YAML rate limit section into limiter settings.
func SettingsFromConfig(cfg config.RateLimitConfig) SettingsConfig {
	out := SettingsConfig{
		Limit:         cfg.Limit,
		RedisEnabled:  cfg.Redis.Enabled,
		RedisAddr:     strings.TrimSpace(cfg.Redis.Addr),
		RedisPassword: strings.TrimSpace(cfg.Redis.Password),
		RedisDB:       cfg.Redis.DB,
		RedisPrefix:   strings.TrimSpace(cfg.Redis.Prefix),
	}
	if out.Limit < 0 {
		out.Limit = 0
	}
	if out.RedisDB < 0 {
		out.RedisDB = 0
	}
	if out.RedisPrefix == "" {
		out.RedisPrefix = internalsettings.DefaultRateLimitRedisPrefix
	}
	return out
}

// StaticSettings returns a SettingsProvider that always yields cfg.
func StaticSettings(cfg SettingsConfig) SettingsProvider {
	return func() SettingsConfig { return cfg }
}
