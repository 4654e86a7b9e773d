// Package orchestrator runs one query end to end: classify, select the agent
// set, execute the agents concurrently with per-agent retry and timeout, and
// aggregate the settled results into a single response. Agent failures are
// isolated; the request as a whole fails only on invalid input.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bankerai/orchestrator/internal/aggregation"
	"github.com/bankerai/orchestrator/internal/agents"
	"github.com/bankerai/orchestrator/internal/classification"
	"github.com/bankerai/orchestrator/internal/metrics"
	"github.com/bankerai/orchestrator/internal/monitor"
	"github.com/bankerai/orchestrator/internal/selector"
)

// Config holds execution limits. Zero values take the defaults below.
type Config struct {
	// GlobalTimeout bounds one whole request. Default 60s.
	GlobalTimeout time.Duration
	// AgentTimeout bounds a single execution attempt. Default 30s.
	AgentTimeout time.Duration
	// MaxRetries is the number of re-attempts after a transient failure.
	// Default 2, so at most three attempts per agent.
	MaxRetries int
	// RetryBackoff is the base delay between attempts, doubled per retry.
	// Default 500ms.
	RetryBackoff time.Duration
	// Version is stamped into every query context and response log line.
	Version string
}

func (c *Config) applyDefaults() {
	if c.GlobalTimeout == 0 {
		c.GlobalTimeout = 60 * time.Second
	}
	if c.AgentTimeout == 0 {
		c.AgentTimeout = 30 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
}

// Orchestrator coordinates one request through classification, selection,
// concurrent execution and aggregation.
type Orchestrator struct {
	cfg        Config
	classifier *classification.Classifier
	registry   *agents.Registry
	aggregator *aggregation.Aggregator
	recorder   monitor.Recorder
	sink       EventSink
	logger     *zap.Logger
}

// New wires the orchestrator. recorder and sink may be nil.
func New(
	cfg Config,
	classifier *classification.Classifier,
	registry *agents.Registry,
	aggregator *aggregation.Aggregator,
	recorder monitor.Recorder,
	sink EventSink,
	logger *zap.Logger,
) *Orchestrator {
	cfg.applyDefaults()
	if recorder == nil {
		recorder = monitor.NopRecorder{}
	}
	if sink == nil {
		sink = NopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:        cfg,
		classifier: classifier,
		registry:   registry,
		aggregator: aggregator,
		recorder:   recorder,
		sink:       sink,
		logger:     logger,
	}
}

// HandleQuery processes one raw query and returns the aggregate response.
// The only error paths are invalid input (empty query) and a cancelled
// caller context; agent failures surface inside the response instead.
func (o *Orchestrator) HandleQuery(ctx context.Context, query string) (*aggregation.Response, error) {
	return o.HandleQueryWithID(ctx, uuid.NewString(), query)
}

// HandleQueryWithID is HandleQuery under a caller-chosen request identifier,
// so callers can subscribe to the request's event stream before it starts.
// An empty requestID gets a fresh one.
func (o *Orchestrator) HandleQueryWithID(ctx context.Context, requestID, query string) (*aggregation.Response, error) {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	startedAt := time.Now()

	o.publish(Event{RequestID: requestID, Type: EventQueryReceived})

	analysisStart := time.Now()
	cls, err := o.classifier.Classify(ctx, query)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	analysisTime := time.Since(analysisStart)

	selected := selector.Select(cls)

	qc := &agents.QueryContext{
		RequestID: requestID,
		Query:     query,
		Companies: cls.Companies,
		Tickers:   cls.Tickers,
		Terms:     cls.Terms,
		IsFinance: cls.IsFinance,
		Version:   o.cfg.Version,
	}

	o.logger.Info("Query classified",
		zap.String("request_id", requestID),
		zap.String("query_digest", monitor.QueryDigest(query)),
		zap.Bool("is_finance", cls.IsFinance),
		zap.Strings("tickers", cls.Tickers),
		zap.Int("agent_count", len(selected)),
		zap.Bool("degraded", cls.Degraded),
	)
	o.publish(Event{
		RequestID: requestID,
		Type:      EventClassified,
		Message:   fmt.Sprintf("%d agents selected", len(selected)),
	})

	results := o.dispatch(ctx, qc, selected)

	for _, id := range selected {
		r := results[id]
		metrics.AgentExecutions.WithLabelValues(id.String(), string(r.Status)).Inc()
		metrics.AgentExecutionDuration.WithLabelValues(id.String()).Observe(r.Duration().Seconds())
		o.recorder.Record(ctx, &monitor.Record{
			RequestID:   requestID,
			AgentID:     id.String(),
			QueryDigest: monitor.QueryDigest(query),
			Status:      string(r.Status),
			DurationMs:  r.Duration().Milliseconds(),
			RetryCount:  r.Retries,
			Error:       r.Error,
		})
	}

	resp := o.aggregator.Aggregate(ctx, qc, selected, results, analysisTime, startedAt)

	metrics.RequestsTotal.WithLabelValues(string(resp.Status)).Inc()
	metrics.RequestDuration.Observe(time.Since(startedAt).Seconds())

	o.logger.Info("Query completed",
		zap.String("request_id", requestID),
		zap.String("status", string(resp.Status)),
		zap.Duration("total_time", time.Since(startedAt)),
	)
	o.publish(Event{RequestID: requestID, Type: EventCompleted, Status: string(resp.Status)})

	return resp, nil
}

func (o *Orchestrator) publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	o.sink.Publish(ev)
}

// settleGrace bounds how long dispatch waits after the global deadline for
// results that were produced as the deadline fired.
const settleGrace = 50 * time.Millisecond

// dispatch runs every selected agent concurrently and blocks until each has a
// terminal result or the global deadline passes. Agents still running at the
// deadline are settled as timed out; their goroutines unwind through context
// cancellation.
func (o *Orchestrator) dispatch(
	ctx context.Context,
	qc *agents.QueryContext,
	selected []agents.AgentID,
) map[agents.AgentID]agents.Result {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.GlobalTimeout)
	defer cancel()

	resCh := make(chan agents.Result, len(selected))
	dispatchedAt := time.Now()

	for _, id := range selected {
		agent, ok := o.registry.Get(id)
		if !ok {
			// Registration gaps settle immediately so the join below still
			// sees one result per selected agent.
			resCh <- agents.Result{
				AgentID:     id,
				Status:      agents.StatusFailed,
				Error:       fmt.Sprintf("agent %q not registered", id),
				StartedAt:   dispatchedAt,
				CompletedAt: dispatchedAt,
			}
			continue
		}
		o.publish(Event{RequestID: qc.RequestID, Type: EventAgentStarted, AgentID: id.String()})
		go o.runUnit(ctx, agent, qc, resCh)
	}

	results := make(map[agents.AgentID]agents.Result, len(selected))
	for len(results) < len(selected) {
		select {
		case r := <-resCh:
			results[r.AgentID] = r
			o.publish(Event{
				RequestID: qc.RequestID,
				Type:      EventAgentCompleted,
				AgentID:   r.AgentID.String(),
				Status:    string(r.Status),
			})
		case <-ctx.Done():
			// Results that settled concurrently with the deadline are kept;
			// only agents still silent after the grace are forced.
			grace := time.NewTimer(settleGrace)
		drain:
			for len(results) < len(selected) {
				select {
				case r := <-resCh:
					results[r.AgentID] = r
					o.publish(Event{
						RequestID: qc.RequestID,
						Type:      EventAgentCompleted,
						AgentID:   r.AgentID.String(),
						Status:    string(r.Status),
					})
				case <-grace.C:
					break drain
				}
			}
			grace.Stop()
			now := time.Now()
			for _, id := range selected {
				if _, settled := results[id]; settled {
					continue
				}
				results[id] = agents.Result{
					AgentID:     id,
					Status:      agents.StatusTimedOut,
					Error:       "global deadline exceeded",
					StartedAt:   dispatchedAt,
					CompletedAt: now,
				}
				o.publish(Event{
					RequestID: qc.RequestID,
					Type:      EventAgentCompleted,
					AgentID:   id.String(),
					Status:    string(agents.StatusTimedOut),
				})
			}
			return results
		}
	}
	return results
}

// runUnit executes one agent with per-attempt timeout and transient-error
// retry, always delivering exactly one terminal result.
func (o *Orchestrator) runUnit(
	ctx context.Context,
	agent agents.Agent,
	qc *agents.QueryContext,
	resCh chan<- agents.Result,
) {
	id := agent.ID()
	startedAt := time.Now()

	var lastErr error
	retries := 0
	attempts := o.cfg.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		retries = attempt
		if attempt > 0 {
			metrics.AgentRetries.WithLabelValues(id.String()).Inc()
			o.publish(Event{RequestID: qc.RequestID, Type: EventAgentRetrying, AgentID: id.String()})
			backoff := o.cfg.RetryBackoff << (attempt - 1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				resCh <- agents.Result{
					AgentID:     id,
					Status:      agents.StatusTimedOut,
					Error:       "cancelled before retry",
					Retries:     attempt,
					StartedAt:   startedAt,
					CompletedAt: time.Now(),
				}
				return
			}
		}

		out, err := o.attempt(ctx, agent, qc)
		if err == nil {
			resCh <- agents.Result{
				AgentID:     id,
				Status:      agents.StatusSucceeded,
				Output:      out,
				Retries:     attempt,
				StartedAt:   startedAt,
				CompletedAt: time.Now(),
			}
			return
		}
		lastErr = err

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			// Timed-out attempts are terminal and never retried.
			resCh <- agents.Result{
				AgentID:     id,
				Status:      agents.StatusTimedOut,
				Error:       err.Error(),
				Retries:     attempt,
				StartedAt:   startedAt,
				CompletedAt: time.Now(),
			}
			return
		}
		if !agents.IsTransient(err) {
			break
		}
		o.logger.Debug("Agent attempt failed, retrying",
			zap.String("request_id", qc.RequestID),
			zap.String("agent_id", id.String()),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}

	resCh <- agents.Result{
		AgentID:     id,
		Status:      agents.StatusFailed,
		Error:       lastErr.Error(),
		Retries:     retries,
		StartedAt:   startedAt,
		CompletedAt: time.Now(),
	}
}

// attempt runs one execution bounded by the per-agent timeout, converting a
// panic inside the agent into an ordinary failure.
func (o *Orchestrator) attempt(
	ctx context.Context,
	agent agents.Agent,
	qc *agents.QueryContext,
) (out *agents.Output, err error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.AgentTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Agent panicked",
				zap.String("agent_id", agent.ID().String()),
				zap.Any("panic", r),
			)
			out = nil
			err = fmt.Errorf("agent %s panicked: %v", agent.ID(), r)
		}
	}()

	out, err = agent.Execute(ctx, qc)
	if err != nil && ctx.Err() != nil {
		// Attribute failures under an expired attempt context to the timeout.
		return nil, ctx.Err()
	}
	return out, err
}
