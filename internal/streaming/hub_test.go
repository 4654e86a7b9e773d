package streaming

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bankerai/orchestrator/internal/orchestrator"
)

func TestHubRoutesByRequestID(t *testing.T) {
	h := NewHub()
	a := h.Subscribe("req-a", 8)
	b := h.Subscribe("req-b", 8)
	defer h.Unsubscribe("req-a", a)
	defer h.Unsubscribe("req-b", b)

	h.Publish(orchestrator.Event{RequestID: "req-a", Type: orchestrator.EventQueryReceived})

	select {
	case ev := <-a:
		assert.Equal(t, "req-a", ev.RequestID)
	case <-time.After(time.Second):
		t.Fatal("subscriber a received nothing")
	}

	select {
	case ev := <-b:
		t.Fatalf("subscriber b received foreign event %+v", ev)
	default:
	}
}

func TestHubFirehose(t *testing.T) {
	h := NewHub()
	all := h.Subscribe("", 8)
	defer h.Unsubscribe("", all)

	h.Publish(orchestrator.Event{RequestID: "req-1", Type: orchestrator.EventQueryReceived})
	h.Publish(orchestrator.Event{RequestID: "req-2", Type: orchestrator.EventCompleted})

	require.Len(t, all, 2)
	assert.Equal(t, "req-1", (<-all).RequestID)
	assert.Equal(t, "req-2", (<-all).RequestID)
}

func TestHubPublishNeverBlocks(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe("req-1", 1)
	defer h.Unsubscribe("req-1", ch)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			h.Publish(orchestrator.Event{RequestID: "req-1"})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	// The buffer holds exactly one event; the rest were dropped.
	assert.Len(t, ch, 1)
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe("req-1", 1)
	h.Unsubscribe("req-1", ch)

	_, open := <-ch
	assert.False(t, open)

	// Publishing after unsubscribe is a no-op.
	h.Publish(orchestrator.Event{RequestID: "req-1"})
}
