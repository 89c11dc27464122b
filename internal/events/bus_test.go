package events

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_PublishInvokesSubscribers(t *testing.T) {
	b := New(nil)
	var got Event
	b.Subscribe(KindStepStarted, func(e Event) { got = e })

	b.Publish(Event{Kind: KindStepStarted, WorkflowID: "wf-1", StepNum: 2})

	assert.Equal(t, "wf-1", got.WorkflowID)
	assert.Equal(t, 2, got.StepNum)
}

func TestBus_PanickingHandlerDoesNotPropagate(t *testing.T) {
	b := New(nil)
	var calledSecond int32
	b.Subscribe(KindStepFailed, func(Event) { panic("boom") })
	b.Subscribe(KindStepFailed, func(Event) { atomic.StoreInt32(&calledSecond, 1) })

	assert.NotPanics(t, func() {
		b.Publish(Event{Kind: KindStepFailed})
	})
	assert.Equal(t, int32(1), calledSecond)
}

func TestBus_UnsubscribedKindIsNoop(t *testing.T) {
	b := New(nil)
	assert.NotPanics(t, func() { b.Publish(Event{Kind: KindWorkflowComplete}) })
}
