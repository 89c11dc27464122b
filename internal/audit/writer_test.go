package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-forge/workflowcore/internal/model"
	"github.com/nexus-forge/workflowcore/internal/storage/memory"
)

func TestWriter_AppendPersistsAsynchronously(t *testing.T) {
	store := memory.New()
	w := NewWriter(store, 16, nil)

	w.Append(model.AuditEvent{WorkflowID: "wf-1", EventType: model.EventWorkflowCreated, Timestamp: time.Now()})
	w.Append(model.AuditEvent{WorkflowID: "wf-1", EventType: model.EventWorkflowStarted, Timestamp: time.Now()})

	require.NoError(t, w.Close(time.Second))

	events, err := store.GetAuditLog(t.Context(), "wf-1", nil)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}
