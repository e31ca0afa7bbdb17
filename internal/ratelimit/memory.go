package ratelimit

import (
	"context"
	"sync"
	"time"
)

// memorySweepEvery bounds how many windows pass between stale entry sweeps.
const memorySweepEvery = 60

type memoryEntry struct {
	window int64
	count  int
}

// MemoryLimiter implements a fixed one-second window limiter local to this process.
type MemoryLimiter struct {
	mu        sync.Mutex
	counters  map[string]*memoryEntry
	lastSweep int64
}

// NewMemoryLimiter constructs a MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{counters: make(map[string]*memoryEntry)}
}

// Allow checks whether key may make another request in the current second.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, now time.Time) (Result, error) {
	if limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	sec := now.Unix()
	reset := time.Unix(sec+1, 0).UTC()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweepLocked(sec)
	entry := l.counters[key]
	if entry == nil || entry.window != sec {
		entry = &memoryEntry{window: sec}
		l.counters[key] = entry
	}
	if entry.count >= limit {
		return Result{Allowed: false, Remaining: 0, Reset: reset}, nil
	}
	entry.count++
	return Result{Allowed: true, Remaining: limit - entry.count, Reset: reset}, nil
}

// sweepLocked drops entries from past windows so per-client keys do not accumulate.
func (l *MemoryLimiter) sweepLocked(sec int64) {
	if sec-l.lastSweep < memorySweepEvery {
		return
	}
	for key, entry := range l.counters {
		if entry.window < sec {
			delete(l.counters, key)
		}
	}
	l.lastSweep = sec
}

func (l *MemoryLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.counters)
}
