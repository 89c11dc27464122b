package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nexus-forge/workflowcore/internal/model"
	"github.com/nexus-forge/workflowcore/internal/storage"
)

// Writer is an append-only audit event sink: Append hands the event to a
// buffered channel and returns immediately, while a background goroutine
// persists events to the storage port in order. The buffered send blocks
// once the channel is full, so a slow storage backend applies backpressure
// to callers rather than silently dropping events.
type Writer struct {
	store  storage.Port
	buffer chan model.AuditEvent
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWriter starts the background flush goroutine. bufferSize bounds how
// many events may be in flight before Append blocks.
func NewWriter(store storage.Port, bufferSize int, logger *slog.Logger) *Writer {
	if bufferSize <= 0 {
		bufferSize = 4096
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Writer{
		store:  store,
		buffer: make(chan model.AuditEvent, bufferSize),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	w.wg.Add(1)
	go w.processEvents()

	return w
}

// Append enqueues event for durable persistence. It never returns a
// storage error to the caller — callback/storage errors from the
// background writer are logged, never raised to whoever triggered the
// transition that produced this event.
func (w *Writer) Append(event model.AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case w.buffer <- event:
	case <-w.ctx.Done():
		w.logger.Warn("audit writer closed, dropping event", "workflow_id", event.WorkflowID, "event_type", event.EventType)
	}
}

func (w *Writer) processEvents() {
	defer w.wg.Done()
	for {
		select {
		case event := <-w.buffer:
			w.persist(event)
		case <-w.ctx.Done():
			w.drain()
			return
		}
	}
}

func (w *Writer) drain() {
	for {
		select {
		case event := <-w.buffer:
			w.persist(event)
		default:
			return
		}
	}
}

func (w *Writer) persist(event model.AuditEvent) {
	if err := w.store.AppendAuditEvent(context.Background(), event); err != nil {
		w.logger.Error("failed to persist audit event", "workflow_id", event.WorkflowID, "event_type", event.EventType, "error", err)
	}
}

// Close stops accepting new events, flushes the buffer, and waits up to
// timeout for the flush to finish.
func (w *Writer) Close(timeout time.Duration) error {
	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return context.DeadlineExceeded
	}
}
