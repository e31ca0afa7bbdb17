package settings

import "time"

// Environment keys and defaults for relay settings.
const (
	// EnvConfigPath points at the YAML config file.
	EnvConfigPath = "CONFIG_PATH"
	// EnvHost overrides the listen host.
	EnvHost = "HOST"
	// EnvPort overrides the listen port.
	EnvPort = "PORT"
	// EnvLogLevel overrides the log level.
	EnvLogLevel = "LOG_LEVEL"
	// EnvUpstreamURL overrides the upstream URL template.
	EnvUpstreamURL = "UPSTREAM_URL"
	// EnvKeysFile overrides the credential file path.
	EnvKeysFile = "KEYS_FILE"
	// EnvWebRoot overrides the static web root.
	EnvWebRoot = "WEB_ROOT"

	// DefaultConfigPath is the fallback config file location.
	DefaultConfigPath = "./config.yaml"
	// DefaultPort is the fallback listen port.
	DefaultPort = 8080
	// DefaultKeysEnv names the environment variable holding comma-separated API keys.
	DefaultKeysEnv = "GEMINI_API_KEYS"
	// DefaultRoutePath is where the relay endpoint is mounted.
	DefaultRoutePath = "/api/gemini"
	// ModelPlaceholder is substituted with the model name in the upstream URL template.
	ModelPlaceholder = "{model}"
	// DefaultUpstreamURL is the Gemini generateContent endpoint template.
	DefaultUpstreamURL = "https://generativelanguage.googleapis.com/v1beta/models/" + ModelPlaceholder + ":generateContent"
	// DefaultUpstreamTimeout bounds a single upstream call.
	DefaultUpstreamTimeout = 120 * time.Second
	// DefaultMaxRetries gives three attempts in total.
	DefaultMaxRetries = 2
	// DefaultRetryDelay applies to attempts beyond the delay table.
	DefaultRetryDelay = 1000 * time.Millisecond
	// DefaultAllowOrigin is the CORS origin sent to browsers.
	DefaultAllowOrigin = "*"
	// DefaultLogLevel is the fallback logrus level.
	DefaultLogLevel = "info"
	// DefaultRateLimit is the fallback inbound rate limit (0 means unlimited).
	DefaultRateLimit = 0
	// DefaultRateLimitRedisPrefix is the fallback Redis key prefix.
	DefaultRateLimitRedisPrefix = "gkr:rl"
	// DefaultLogMaxSizeMB caps a log file before rotation.
	DefaultLogMaxSizeMB = 50
	// DefaultLogMaxBackups is the number of rotated log files kept.
	DefaultLogMaxBackups = 5
)

// DefaultRetryDelays returns the backoff table indexed by attempt-1.
func DefaultRetryDelays() []time.Duration {
	return []time.Duration{500 * time.Millisecond, 1500 * time.Millisecond}
}
