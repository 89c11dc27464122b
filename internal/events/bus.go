// Package events implements a minimal in-process publish/subscribe bus for
// the engine's lifecycle notifications (StepStarted, StepCompleted,
// StepFailed, WorkflowCompleted, WorkflowFailed). Handlers run
// synchronously in the publisher's goroutine, in subscription order. A
// panicking handler is recovered and logged, so it never crashes the
// emitter or stops later handlers; a slow handler delays Publish.
package events

import (
	"log/slog"
	"sync"
)

// Kind names one of the lifecycle event types the bus carries.
type Kind string

const (
	KindStepStarted      Kind = "STEP_STARTED"
	KindStepCompleted    Kind = "STEP_COMPLETED"
	KindStepFailed       Kind = "STEP_FAILED"
	KindWorkflowComplete Kind = "WORKFLOW_COMPLETED"
	KindWorkflowFailed   Kind = "WORKFLOW_FAILED"
)

// Event is a single lifecycle notification published on the bus.
type Event struct {
	Kind       Kind
	WorkflowID string
	StepNum    int
	StepName   string
	AgentType  string
}

// Handler receives published events. It must not block for long; a
// Handler that panics is recovered and logged, never propagated to the
// publisher.
type Handler func(Event)

// Bus is a fire-and-forget pub-sub dispatcher with no delivery guarantees
// beyond "handlers registered at publish time are invoked".
type Bus struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
	logger   *slog.Logger
}

// New creates an empty Bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{handlers: make(map[Kind][]Handler), logger: logger}
}

// Subscribe registers handler to be invoked for every event of the given
// kind.
func (b *Bus) Subscribe(kind Kind, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], handler)
}

// Publish dispatches event to every subscriber of its kind. Handler
// panics are recovered and logged; Publish never raises to the caller.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[event.Kind]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.invoke(h, event)
	}
}

func (b *Bus) invoke(h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "kind", event.Kind, "workflow_id", event.WorkflowID, "panic", r)
		}
	}()
	h(event)
}
