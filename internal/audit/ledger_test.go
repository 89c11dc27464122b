package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seen(t *testing.T, l *IdempotencyLedger, key string) bool {
	t.Helper()
	ok, err := l.SeenBefore(context.Background(), key)
	require.NoError(t, err)
	return ok
}

func TestIdempotencyLedger_SeenBefore(t *testing.T) {
	l := NewIdempotencyLedger(10, 0)
	key := Key("issue-1", "reviewer", "evt-1")

	assert.False(t, seen(t, l, key), "first observation should not be seen")
	assert.True(t, seen(t, l, key), "replay of the same composite key must be deduped")
}

func TestIdempotencyLedger_DistinctKeysIndependent(t *testing.T) {
	l := NewIdempotencyLedger(10, 0)

	assert.False(t, seen(t, l, Key("issue-1", "reviewer", "evt-1")))
	assert.False(t, seen(t, l, Key("issue-1", "reviewer", "evt-2")))
	assert.False(t, seen(t, l, Key("issue-1", "developer", "evt-1")))
}

func TestIdempotencyLedger_EvictsLRUWhenFull(t *testing.T) {
	l := NewIdempotencyLedger(2, 0)

	seen(t, l, "a")
	seen(t, l, "b")
	seen(t, l, "c") // evicts "a"

	assert.Equal(t, 2, l.Size())
	assert.False(t, seen(t, l, "a"), "a should have been evicted and treated as unseen again")
}

func TestIdempotencyLedger_ExpiresAfterTTL(t *testing.T) {
	l := NewIdempotencyLedger(10, time.Millisecond)
	key := Key("issue-1", "reviewer", "evt-1")

	assert.False(t, seen(t, l, key))
	time.Sleep(5 * time.Millisecond)
	assert.False(t, seen(t, l, key), "entry should have expired and be treated as unseen")
}
