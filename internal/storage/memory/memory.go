// Package memory is an in-memory Storage port implementation, mirroring
// the mutex-protected map style of the teacher's session manager. It is
// the default backend for tests and single-process deployments.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/nexus-forge/workflowcore/internal/model"
	"github.com/nexus-forge/workflowcore/internal/storage"
)

// Store is a process-local Storage port backed by maps guarded by a
// single RWMutex.
type Store struct {
	mu sync.RWMutex

	workflows       map[string]*model.Workflow
	auditLog        map[string][]model.AuditEvent
	agentMetadata   map[string]map[string]map[string]any
	issueMappings   map[string]string
	pendingApproval map[string]model.PendingApproval
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		workflows:       make(map[string]*model.Workflow),
		auditLog:        make(map[string][]model.AuditEvent),
		agentMetadata:   make(map[string]map[string]map[string]any),
		issueMappings:   make(map[string]string),
		pendingApproval: make(map[string]model.PendingApproval),
	}
}

// cloneWorkflow deep-copies via JSON round-trip so callers can't mutate
// the stored workflow through an aliased pointer.
func cloneWorkflow(wf *model.Workflow) (*model.Workflow, error) {
	data, err := json.Marshal(wf)
	if err != nil {
		return nil, err
	}
	var out model.Workflow
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) SaveWorkflow(ctx context.Context, wf *model.Workflow) error {
	clone, err := cloneWorkflow(wf)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[wf.ID] = clone
	return nil
}

func (s *Store) LoadWorkflow(ctx context.Context, id string) (*model.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[id]
	if !ok {
		return nil, &storage.NotFoundError{Kind: "workflow", ID: id}
	}
	return cloneWorkflow(wf)
}

func (s *Store) ListWorkflows(ctx context.Context, state model.WorkflowState, limit int) ([]*model.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Workflow, 0, len(s.workflows))
	for _, wf := range s.workflows {
		if state != "" && wf.State != state {
			continue
		}
		clone, err := cloneWorkflow(wf)
		if err != nil {
			return nil, err
		}
		out = append(out, clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) DeleteWorkflow(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.workflows[id]
	delete(s.workflows, id)
	delete(s.auditLog, id)
	delete(s.agentMetadata, id)
	return ok, nil
}

func (s *Store) AppendAuditEvent(ctx context.Context, event model.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditLog[event.WorkflowID] = append(s.auditLog[event.WorkflowID], event)
	return nil
}

func (s *Store) GetAuditLog(ctx context.Context, workflowID string, since *time.Time) ([]model.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.auditLog[workflowID]
	if since == nil {
		return append([]model.AuditEvent(nil), events...), nil
	}
	out := make([]model.AuditEvent, 0, len(events))
	for _, e := range events {
		if e.Timestamp.After(*since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) SaveAgentMetadata(ctx context.Context, workflowID, agentName string, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.agentMetadata[workflowID] == nil {
		s.agentMetadata[workflowID] = make(map[string]map[string]any)
	}
	s.agentMetadata[workflowID][agentName] = data
	return nil
}

func (s *Store) GetAgentMetadata(ctx context.Context, workflowID, agentName string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.agentMetadata[workflowID][agentName]
	if !ok {
		return nil, &storage.NotFoundError{Kind: "agent_metadata", ID: workflowID + ":" + agentName}
	}
	return meta, nil
}

func (s *Store) MapIssueToWorkflow(ctx context.Context, externalID, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issueMappings[externalID] = workflowID
	return nil
}

func (s *Store) GetWorkflowIDForIssue(ctx context.Context, externalID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.issueMappings[externalID]
	if !ok {
		return "", &storage.NotFoundError{Kind: "issue_mapping", ID: externalID}
	}
	return id, nil
}

func (s *Store) RemoveIssueWorkflowMapping(ctx context.Context, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.issueMappings, externalID)
	return nil
}

func (s *Store) LoadIssueWorkflowMappings(ctx context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.issueMappings))
	for k, v := range s.issueMappings {
		out[k] = v
	}
	return out, nil
}

func (s *Store) SetPendingWorkflowApproval(ctx context.Context, approval model.PendingApproval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingApproval[approval.ExternalID] = approval
	return nil
}

func (s *Store) ClearPendingWorkflowApproval(ctx context.Context, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pendingApproval, externalID)
	return nil
}

func (s *Store) GetPendingWorkflowApproval(ctx context.Context, externalID string) (*model.PendingApproval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.pendingApproval[externalID]
	if !ok {
		return nil, &storage.NotFoundError{Kind: "pending_approval", ID: externalID}
	}
	return &a, nil
}

func (s *Store) LoadPendingWorkflowApprovals(ctx context.Context) (map[string]model.PendingApproval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.PendingApproval, len(s.pendingApproval))
	for k, v := range s.pendingApproval {
		out[k] = v
	}
	return out, nil
}

func (s *Store) CleanupOldWorkflows(ctx context.Context, olderThanDays int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, wf := range s.workflows {
		reference := wf.CreatedAt
		if wf.CompletedAt != nil {
			reference = *wf.CompletedAt
		}
		if reference.Before(cutoff) {
			delete(s.workflows, id)
			delete(s.auditLog, id)
			delete(s.agentMetadata, id)
			count++
		}
	}
	return count, nil
}

var _ storage.Port = (*Store)(nil)
