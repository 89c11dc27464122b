// Package sqlite is a SQLite-backed Storage port implementation using the
// pure-Go modernc.org/sqlite driver, for single-binary deployments that
// want durability without a separate database process.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nexus-forge/workflowcore/internal/model"
	"github.com/nexus-forge/workflowcore/internal/storage"
)

// Store is a SQLite-backed Storage port.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS workflows (
	id TEXT PRIMARY KEY,
	state TEXT NOT NULL,
	created_at TEXT NOT NULL,
	document TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_workflows_state ON workflows(state);

CREATE TABLE IF NOT EXISTS audit_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	workflow_id TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	event_type TEXT NOT NULL,
	data TEXT,
	user_id TEXT
);
CREATE INDEX IF NOT EXISTS idx_audit_workflow ON audit_events(workflow_id, timestamp);

CREATE TABLE IF NOT EXISTS agent_metadata (
	workflow_id TEXT NOT NULL,
	agent_name TEXT NOT NULL,
	data TEXT NOT NULL,
	PRIMARY KEY (workflow_id, agent_name)
);

CREATE TABLE IF NOT EXISTS issue_mappings (
	external_id TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS pending_approvals (
	external_id TEXT PRIMARY KEY,
	document TEXT NOT NULL
);
`

// Open opens (creating if necessary) a SQLite database at path and
// initializes its schema. A single open connection is used — matching
// the teacher's vectorstore backend — since modernc.org/sqlite serializes
// writers per-file anyway and this core has no concurrent-writer
// scalability requirement beyond one process.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SaveWorkflow(ctx context.Context, wf *model.Workflow) error {
	doc, err := json.Marshal(wf)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, state, created_at, document) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET state=excluded.state, document=excluded.document`,
		wf.ID, string(wf.State), wf.CreatedAt.Format(time.RFC3339Nano), string(doc))
	return err
}

func (s *Store) LoadWorkflow(ctx context.Context, id string) (*model.Workflow, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM workflows WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, &storage.NotFoundError{Kind: "workflow", ID: id}
	}
	if err != nil {
		return nil, err
	}
	var wf model.Workflow
	if err := json.Unmarshal([]byte(doc), &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

func (s *Store) ListWorkflows(ctx context.Context, state model.WorkflowState, limit int) ([]*model.Workflow, error) {
	query := `SELECT document FROM workflows`
	args := []any{}
	if state != "" {
		query += ` WHERE state = ?`
		args = append(args, string(state))
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Workflow
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var wf model.Workflow
		if err := json.Unmarshal([]byte(doc), &wf); err != nil {
			return nil, err
		}
		out = append(out, &wf)
	}
	return out, rows.Err()
}

func (s *Store) DeleteWorkflow(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	s.db.ExecContext(ctx, `DELETE FROM audit_events WHERE workflow_id = ?`, id)
	s.db.ExecContext(ctx, `DELETE FROM agent_metadata WHERE workflow_id = ?`, id)
	return n > 0, nil
}

func (s *Store) AppendAuditEvent(ctx context.Context, event model.AuditEvent) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_events (workflow_id, timestamp, event_type, data, user_id) VALUES (?, ?, ?, ?, ?)`,
		event.WorkflowID, event.Timestamp.Format(time.RFC3339Nano), string(event.EventType), string(data), event.UserID)
	return err
}

func (s *Store) GetAuditLog(ctx context.Context, workflowID string, since *time.Time) ([]model.AuditEvent, error) {
	query := `SELECT timestamp, event_type, data, user_id FROM audit_events WHERE workflow_id = ?`
	args := []any{workflowID}
	if since != nil {
		query += ` AND timestamp > ?`
		args = append(args, since.Format(time.RFC3339Nano))
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AuditEvent
	for rows.Next() {
		var ts, etype, data, userID string
		if err := rows.Scan(&ts, &etype, &data, &userID); err != nil {
			return nil, err
		}
		parsedTS, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, err
		}
		var payload map[string]any
		if data != "" {
			if err := json.Unmarshal([]byte(data), &payload); err != nil {
				return nil, err
			}
		}
		out = append(out, model.AuditEvent{
			WorkflowID: workflowID,
			Timestamp:  parsedTS,
			EventType:  model.EventType(etype),
			Data:       payload,
			UserID:     userID,
		})
	}
	return out, rows.Err()
}

func (s *Store) SaveAgentMetadata(ctx context.Context, workflowID, agentName string, data map[string]any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agent_metadata (workflow_id, agent_name, data) VALUES (?, ?, ?)
		 ON CONFLICT(workflow_id, agent_name) DO UPDATE SET data=excluded.data`,
		workflowID, agentName, string(payload))
	return err
}

func (s *Store) GetAgentMetadata(ctx context.Context, workflowID, agentName string) (map[string]any, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM agent_metadata WHERE workflow_id = ? AND agent_name = ?`, workflowID, agentName).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, &storage.NotFoundError{Kind: "agent_metadata", ID: workflowID + ":" + agentName}
	}
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) MapIssueToWorkflow(ctx context.Context, externalID, workflowID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO issue_mappings (external_id, workflow_id) VALUES (?, ?)
		 ON CONFLICT(external_id) DO UPDATE SET workflow_id=excluded.workflow_id`,
		externalID, workflowID)
	return err
}

func (s *Store) GetWorkflowIDForIssue(ctx context.Context, externalID string) (string, error) {
	var workflowID string
	err := s.db.QueryRowContext(ctx, `SELECT workflow_id FROM issue_mappings WHERE external_id = ?`, externalID).Scan(&workflowID)
	if err == sql.ErrNoRows {
		return "", &storage.NotFoundError{Kind: "issue_mapping", ID: externalID}
	}
	return workflowID, err
}

func (s *Store) RemoveIssueWorkflowMapping(ctx context.Context, externalID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM issue_mappings WHERE external_id = ?`, externalID)
	return err
}

func (s *Store) LoadIssueWorkflowMappings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT external_id, workflow_id FROM issue_mappings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var extID, wfID string
		if err := rows.Scan(&extID, &wfID); err != nil {
			return nil, err
		}
		out[extID] = wfID
	}
	return out, rows.Err()
}

func (s *Store) SetPendingWorkflowApproval(ctx context.Context, approval model.PendingApproval) error {
	doc, err := json.Marshal(approval)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pending_approvals (external_id, document) VALUES (?, ?)
		 ON CONFLICT(external_id) DO UPDATE SET document=excluded.document`,
		approval.ExternalID, string(doc))
	return err
}

func (s *Store) ClearPendingWorkflowApproval(ctx context.Context, externalID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pending_approvals WHERE external_id = ?`, externalID)
	return err
}

func (s *Store) GetPendingWorkflowApproval(ctx context.Context, externalID string) (*model.PendingApproval, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM pending_approvals WHERE external_id = ?`, externalID).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, &storage.NotFoundError{Kind: "pending_approval", ID: externalID}
	}
	if err != nil {
		return nil, err
	}
	var approval model.PendingApproval
	if err := json.Unmarshal([]byte(doc), &approval); err != nil {
		return nil, err
	}
	return &approval, nil
}

func (s *Store) LoadPendingWorkflowApprovals(ctx context.Context) (map[string]model.PendingApproval, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT external_id, document FROM pending_approvals`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]model.PendingApproval{}
	for rows.Next() {
		var extID, doc string
		if err := rows.Scan(&extID, &doc); err != nil {
			return nil, err
		}
		var approval model.PendingApproval
		if err := json.Unmarshal([]byte(doc), &approval); err != nil {
			return nil, err
		}
		out[extID] = approval
	}
	return out, rows.Err()
}

func (s *Store) CleanupOldWorkflows(ctx context.Context, olderThanDays int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays).Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

var _ storage.Port = (*Store)(nil)
