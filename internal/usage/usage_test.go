package usage

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/router-for-me/GeminiKeyRelay/internal/relay"
)

func TestTrackerCountsByKeyIndex(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tracker := NewTracker(func() time.Time { return now })

	tracker.ObserveAttempt(relay.Attempt{KeyIndex: 1, StatusCode: 429})
	tracker.ObserveAttempt(relay.Attempt{KeyIndex: 2, StatusCode: 200})
	tracker.ObserveAttempt(relay.Attempt{KeyIndex: 0, StatusCode: 500})
	tracker.ObserveAttempt(relay.Attempt{KeyIndex: 0, Err: errors.New("dial tcp: refused")})
	tracker.ObserveExhausted("gemini-2.5-flash")

	snap := tracker.Snapshot()
	if snap.Exhausted != 1 {
		t.Fatalf("expected 1 exhausted, got %d", snap.Exhausted)
	}
	if len(snap.Keys) != 3 {
		t.Fatalf("expected 3 key entries, got %d", len(snap.Keys))
	}
	for i, stats := range snap.Keys {
		if stats.KeyIndex != i {
			t.Fatalf("expected ordered key indexes, got %+v", snap.Keys)
		}
	}
	if k0 := snap.Keys[0]; k0.Attempts != 2 || k0.UpstreamError != 1 || k0.NetworkError != 1 || k0.LastStatus != 500 {
		t.Fatalf("unexpected key 0 stats: %+v", k0)
	}
	if k1 := snap.Keys[1]; k1.RateLimited != 1 || k1.LastStatus != 429 {
		t.Fatalf("unexpected key 1 stats: %+v", k1)
	}
	if k2 := snap.Keys[2]; k2.Successes != 1 || !k2.LastUsedAt.Equal(now) {
		t.Fatalf("unexpected key 2 stats: %+v", k2)
	}
}

func TestTrackerSnapshotIsCopy(t *testing.T) {
	tracker := NewTracker(nil)
	tracker.ObserveAttempt(relay.Attempt{KeyIndex: 0, StatusCode: 200})

	snap := tracker.Snapshot()
	snap.Keys[0].Attempts = 99

	if got := tracker.Snapshot().Keys[0].Attempts; got != 1 {
		t.Fatalf("snapshot mutation leaked into tracker, got %d", got)
	}
}

func TestTrackerConcurrentUse(t *testing.T) {
	tracker := NewTracker(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tracker.ObserveAttempt(relay.Attempt{KeyIndex: i % 3, StatusCode: 200})
		}(i)
	}
	wg.Wait()

	var total int64
	for _, stats := range tracker.Snapshot().Keys {
		total += stats.Attempts
	}
	if total != 50 {
		t.Fatalf("expected 50 attempts, got %d", total)
	}
}

func TestNilTrackerIsSafe(t *testing.T) {
	var tracker *Tracker
	tracker.ObserveAttempt(relay.Attempt{})
	tracker.ObserveExhausted("m")
	if snap := tracker.Snapshot(); len(snap.Keys) != 0 {
		t.Fatalf("expected empty snapshot")
	}
}
