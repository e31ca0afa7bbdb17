package relay

import (
	"time"

	internalsettings "github.com/router-for-me/GeminiKeyRelay/internal/settings"
)

// Backoff maps an attempt number to the wait before it.
type Backoff struct {
	delays   []time.Duration
	fallback time.Duration
}

// NewBackoff constructs a Backoff. A nil table uses the default table; a zero fallback uses 1s.
func NewBackoff(delays []time.Duration, fallback time.Duration) Backoff {
	if delays == nil {
		delays = internalsettings.DefaultRetryDelays()
	}
	if fallback <= 0 {
		fallback = internalsettings.DefaultRetryDelay
	}
	table := make([]time.Duration, len(delays))
	copy(table, delays)
	return Backoff{delays: table, fallback: fallback}
}

// Delay returns the wait before attempt (attempt >= 1). Attempt 0 never waits.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	if idx := attempt - 1; idx < len(b.delays) && b.delays[idx] > 0 {
		return b.delays[idx]
	}
	return b.fallback
}
