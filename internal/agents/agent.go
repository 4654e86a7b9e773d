package agents

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// AgentID identifies one of the closed set of data-gathering agents.
type AgentID string

const (
	AgentFinance AgentID = "finance"
	AgentYahoo   AgentID = "yahoo"
	AgentSEC     AgentID = "sec"
	AgentReddit  AgentID = "reddit"
	AgentGeneral AgentID = "general"
)

// AllAgentIDs returns the closed set of agent identifiers in canonical order.
func AllAgentIDs() []AgentID {
	return []AgentID{AgentFinance, AgentYahoo, AgentSEC, AgentReddit, AgentGeneral}
}

// Valid reports whether id belongs to the closed agent set.
func (id AgentID) Valid() bool {
	switch id {
	case AgentFinance, AgentYahoo, AgentSEC, AgentReddit, AgentGeneral:
		return true
	}
	return false
}

func (id AgentID) String() string { return string(id) }

// Status is the terminal state of one agent execution.
type Status string

const (
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusTimedOut  Status = "TIMED_OUT"
)

// QueryContext is the immutable per-request context shared read-only by all
// agents of one request. It is created once after classification and never
// mutated afterwards.
type QueryContext struct {
	RequestID string
	Query     string
	Companies []string
	Tickers   []string
	Terms     []string
	IsFinance bool
	Version   string
}

// Output is what a successful agent execution produces. Data is opaque to the
// orchestration core and passed through to the aggregate response.
type Output struct {
	Data      map[string]interface{}
	Summary   string
	Simulated bool
}

// Result is the terminal record of one agent execution within a request.
// Exactly one Result is produced per selected agent per request.
type Result struct {
	AgentID     AgentID
	Status      Status
	Output      *Output
	Error       string
	Retries     int
	StartedAt   time.Time
	CompletedAt time.Time
}

// Duration returns the wall-clock execution time of the agent.
func (r Result) Duration() time.Duration {
	if r.CompletedAt.Before(r.StartedAt) {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// Agent wraps one external data-gathering or generation collaborator.
// Execute reports failure through its error return; it must never panic
// past its own boundary (the orchestrator recovers as a backstop).
type Agent interface {
	ID() AgentID
	Execute(ctx context.Context, qc *QueryContext) (*Output, error)
}

// transientError marks failures the orchestrator may retry within budget.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// Transientf formats a retryable error.
func Transientf(format string, args ...interface{}) error {
	return &transientError{err: fmt.Errorf(format, args...)}
}

// IsTransient reports whether err carries the retryable marker.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}
