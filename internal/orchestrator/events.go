package orchestrator

import "time"

// EventType labels one progress notification of a running request.
type EventType string

const (
	EventQueryReceived  EventType = "QUERY_RECEIVED"
	EventClassified     EventType = "CLASSIFIED"
	EventAgentStarted   EventType = "AGENT_STARTED"
	EventAgentRetrying  EventType = "AGENT_RETRYING"
	EventAgentCompleted EventType = "AGENT_COMPLETED"
	EventCompleted      EventType = "COMPLETED"
)

// Event is one progress notification published while a request runs. AgentID
// and Status are set only for the per-agent event types.
type Event struct {
	RequestID string    `json:"request_id"`
	Type      EventType `json:"type"`
	AgentID   string    `json:"agent_id,omitempty"`
	Status    string    `json:"status,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventSink receives progress events. Publish must not block request
// processing; slow consumers drop events rather than stall the request.
type EventSink interface {
	Publish(ev Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Publish(Event) {}
