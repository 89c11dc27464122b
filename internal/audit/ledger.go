// Package audit provides the append-only event ledger and the idempotency
// ledger the Issue→Workflow adapter uses to make duplicate completion
// signals a no-op.
package audit

import (
	"context"
	"sync"
	"time"
)

// IdempotencyLedger deduplicates completion signals keyed by
// "{external_id}:{agent_type}:{event_id}", evicting the least-recently-used
// entry once MaxEntries is reached. The eviction shape is adapted from the
// teacher's LRU result cache: a bounded map with a linear LRU scan on
// insert, since the dedupe set is small and insert-heavy, not read-heavy.
type IdempotencyLedger struct {
	mu         sync.Mutex
	entries    map[string]*ledgerEntry
	maxEntries int
	ttl        time.Duration
}

type ledgerEntry struct {
	seenAt       time.Time
	lastAccessed time.Time
}

// NewIdempotencyLedger creates a ledger bounded to maxEntries, with entries
// older than ttl treated as not-seen (ttl <= 0 disables expiry).
func NewIdempotencyLedger(maxEntries int, ttl time.Duration) *IdempotencyLedger {
	if maxEntries <= 0 {
		maxEntries = 500
	}
	return &IdempotencyLedger{
		entries:    make(map[string]*ledgerEntry),
		maxEntries: maxEntries,
		ttl:        ttl,
	}
}

// Key builds the composite dedupe key for a completion signal.
func Key(externalID, agentType, eventID string) string {
	return externalID + ":" + agentType + ":" + eventID
}

// SeenBefore reports whether key has already been recorded (and not yet
// expired), recording it as seen if not. This is the single entry point
// the adapter calls — check-and-insert happen under one lock so two
// concurrent calls for the same key can't both observe "not seen". ctx is
// accepted (and ignored) so this in-memory ledger and
// storage/redisstore.Store's distributed equivalent satisfy the same
// adapter.DedupeStore interface and are interchangeable behind it.
func (l *IdempotencyLedger) SeenBefore(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()

	if entry, ok := l.entries[key]; ok {
		if l.ttl <= 0 || now.Sub(entry.seenAt) <= l.ttl {
			entry.lastAccessed = now
			return true, nil
		}
		// Expired: treat as unseen and refresh below.
	}

	if len(l.entries) >= l.maxEntries {
		l.evictLRU()
	}
	l.entries[key] = &ledgerEntry{seenAt: now, lastAccessed: now}
	return false, nil
}

func (l *IdempotencyLedger) evictLRU() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range l.entries {
		if oldestKey == "" || entry.lastAccessed.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.lastAccessed
		}
	}
	if oldestKey != "" {
		delete(l.entries, oldestKey)
	}
}

// Size returns the current number of tracked keys, for diagnostics.
func (l *IdempotencyLedger) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// CleanupExpired drops entries older than the ledger's ttl, returning the
// count removed. A no-op when ttl <= 0.
func (l *IdempotencyLedger) CleanupExpired() int {
	if l.ttl <= 0 {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-l.ttl)
	count := 0
	for key, entry := range l.entries {
		if entry.seenAt.Before(cutoff) {
			delete(l.entries, key)
			count++
		}
	}
	return count
}
