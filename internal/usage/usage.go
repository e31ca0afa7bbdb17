package usage

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/router-for-me/GeminiKeyRelay/internal/relay"
)

// KeyStats aggregates attempts made with one key index. Keys are never recorded, only positions.
type KeyStats struct {
	KeyIndex      int       `json:"key_index"`
	Attempts      int64     `json:"attempts"`
	Successes     int64     `json:"successes"`
	RateLimited   int64     `json:"rate_limited"`
	UpstreamError int64     `json:"upstream_errors"`
	NetworkError  int64     `json:"network_errors"`
	LastStatus    int       `json:"last_status,omitempty"`
	LastUsedAt    time.Time `json:"last_used_at"`
}

// Snapshot is a point-in-time copy of the tracker state.
type Snapshot struct {
	StartedAt time.Time  `json:"started_at"`
	Exhausted int64      `json:"exhausted"`
	Keys      []KeyStats `json:"keys"`
}

// Tracker records relay attempts in memory for the lifetime of the process.
type Tracker struct {
	mu        sync.Mutex
	nowFn     func() time.Time
	startedAt time.Time
	exhausted int64
	byIndex   map[int]*KeyStats
}

// NewTracker constructs a Tracker. A nil nowFn uses time.Now.
func NewTracker(nowFn func() time.Time) *Tracker {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Tracker{
		nowFn:     nowFn,
		startedAt: nowFn().UTC(),
		byIndex:   make(map[int]*KeyStats),
	}
}

// ObserveAttempt implements relay.Observer.
func (t *Tracker) ObserveAttempt(a relay.Attempt) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := t.byIndex[a.KeyIndex]
	if stats == nil {
		stats = &KeyStats{KeyIndex: a.KeyIndex}
		t.byIndex[a.KeyIndex] = stats
	}
	stats.Attempts++
	stats.LastUsedAt = t.nowFn().UTC()
	switch {
	case a.Err != nil:
		stats.NetworkError++
		return
	case a.StatusCode == http.StatusTooManyRequests:
		stats.RateLimited++
	case a.StatusCode >= 200 && a.StatusCode < 300:
		stats.Successes++
	default:
		stats.UpstreamError++
	}
	stats.LastStatus = a.StatusCode
}

// ObserveExhausted implements relay.Observer.
func (t *Tracker) ObserveExhausted(string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.exhausted++
	t.mu.Unlock()
}

// Snapshot returns a copy of the current counters ordered by key index.
func (t *Tracker) Snapshot() Snapshot {
	if t == nil {
		return Snapshot{Keys: []KeyStats{}}
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	keys := make([]KeyStats, 0, len(t.byIndex))
	for _, stats := range t.byIndex {
		keys = append(keys, *stats)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].KeyIndex < keys[j].KeyIndex })
	return Snapshot{StartedAt: t.startedAt, Exhausted: t.exhausted, Keys: keys}
}
