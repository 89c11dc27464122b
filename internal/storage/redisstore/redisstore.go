// Package redisstore provides a Redis-backed IdempotencyLedger and pending
// approval store for multi-process deployments, where an in-memory cache
// would let two replicas double-process the same completion signal.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nexus-forge/workflowcore/internal/model"
)

const (
	dedupeKeyPrefix   = "workflowcore:dedupe:"
	approvalKeyPrefix = "workflowcore:approval:"
	issueKeyPrefix    = "workflowcore:issue:"
)

// Store backs the idempotency ledger and pending-approval bookkeeping with
// Redis, so replicas of the orchestration process share dedupe state
// instead of each keeping its own in-memory cache.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// New wraps an already-configured go-redis client. ttl bounds how long a
// dedupe key is remembered — it plays the same size-bounding role the
// in-memory ledger's LRU eviction plays, but expressed as a time horizon
// instead of an entry count.
func New(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl}
}

// SeenBefore reports whether the composite dedupe key has already been
// recorded, and records it if not — an atomic check-and-set so two
// concurrent replicas processing the same completion signal can't both
// get a "not seen" answer.
func (s *Store) SeenBefore(ctx context.Context, dedupeKey string) (bool, error) {
	ok, err := s.client.SetNX(ctx, dedupeKeyPrefix+dedupeKey, time.Now().Format(time.RFC3339Nano), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis dedupe check: %w", err)
	}
	// SetNX returns true when the key was newly set, i.e. NOT seen before.
	return !ok, nil
}

func (s *Store) SetPendingWorkflowApproval(ctx context.Context, approval model.PendingApproval) error {
	data, err := json.Marshal(approval)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, approvalKeyPrefix+approval.ExternalID, data, 0).Err()
}

func (s *Store) ClearPendingWorkflowApproval(ctx context.Context, externalID string) error {
	return s.client.Del(ctx, approvalKeyPrefix+externalID).Err()
}

func (s *Store) GetPendingWorkflowApproval(ctx context.Context, externalID string) (*model.PendingApproval, error) {
	data, err := s.client.Get(ctx, approvalKeyPrefix+externalID).Bytes()
	if err == redis.Nil {
		return nil, &NotFoundError{ID: externalID}
	}
	if err != nil {
		return nil, err
	}
	var approval model.PendingApproval
	if err := json.Unmarshal(data, &approval); err != nil {
		return nil, err
	}
	return &approval, nil
}

func (s *Store) LoadPendingWorkflowApprovals(ctx context.Context) (map[string]model.PendingApproval, error) {
	keys, err := s.client.Keys(ctx, approvalKeyPrefix+"*").Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.PendingApproval, len(keys))
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		var approval model.PendingApproval
		if err := json.Unmarshal(data, &approval); err != nil {
			continue
		}
		out[approval.ExternalID] = approval
	}
	return out, nil
}

func (s *Store) MapIssueToWorkflow(ctx context.Context, externalID, workflowID string) error {
	return s.client.Set(ctx, issueKeyPrefix+externalID, workflowID, 0).Err()
}

func (s *Store) GetWorkflowIDForIssue(ctx context.Context, externalID string) (string, error) {
	id, err := s.client.Get(ctx, issueKeyPrefix+externalID).Result()
	if err == redis.Nil {
		return "", &NotFoundError{ID: externalID}
	}
	return id, err
}

func (s *Store) RemoveIssueWorkflowMapping(ctx context.Context, externalID string) error {
	return s.client.Del(ctx, issueKeyPrefix+externalID).Err()
}

// NotFoundError mirrors storage.NotFoundError's Is-matching shape without
// importing the storage package, keeping this an independent, narrowly
// scoped collaborator per the idempotency/approval concerns it was wired
// for rather than a full storage.Port implementation.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return "not found: " + e.ID
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
