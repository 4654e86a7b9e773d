package aggregation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bankerai/orchestrator/internal/agents"
)

// OverallStatus is the request-level outcome.
type OverallStatus string

const (
	StatusSuccess OverallStatus = "SUCCESS"
	StatusPartial OverallStatus = "PARTIAL"
	StatusFailure OverallStatus = "FAILURE"
)

// Entry is one agent's contribution to the aggregate response.
type Entry struct {
	Status        agents.Status          `json:"status"`
	Summary       string                 `json:"summary,omitempty"`
	Data          map[string]interface{} `json:"data,omitempty"`
	Error         string                 `json:"error,omitempty"`
	Simulated     bool                   `json:"simulated,omitempty"`
	RetryCount    int                    `json:"retry_count"`
	ExecutionTime float64                `json:"execution_time"`
}

// Metadata carries request-level timing information.
type Metadata struct {
	TotalTime      float64            `json:"total_time"`
	AnalysisTime   float64            `json:"analysis_time"`
	ExecutionTimes map[string]float64 `json:"execution_times"`
	CompletionTime time.Time          `json:"completion_time"`
	TaskCount      int                `json:"task_count"`
	AgentOrder     []string           `json:"agent_order"`
}

// Response is the complete answer returned to the caller. Results holds
// exactly one entry for every selected agent, success or failure.
type Response struct {
	RequestID string           `json:"request_id"`
	Status    OverallStatus    `json:"status"`
	Results   map[string]Entry `json:"results"`
	Synthesis string           `json:"synthesis"`
	Metadata  Metadata         `json:"metadata"`
}

// Synthesizer produces the per-agent improvement and the final cross-agent
// narrative. Implemented by the completion client.
type Synthesizer interface {
	Improve(ctx context.Context, agentID, query, content string) (string, error)
	Synthesize(ctx context.Context, query string, summaries map[string]string) (string, error)
}

// Aggregator merges settled agent results into one Response.
type Aggregator struct {
	synth          Synthesizer
	improveEnabled bool
	logger         *zap.Logger
}

// New creates an aggregator. synth may be nil; the concatenation fallback is
// then always used.
func New(synth Synthesizer, improveEnabled bool, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{synth: synth, improveEnabled: improveEnabled, logger: logger}
}

// Aggregate builds the response for one request. selected defines the exact
// result key set; results must hold one terminal result per selected agent.
func (ag *Aggregator) Aggregate(
	ctx context.Context,
	qc *agents.QueryContext,
	selected []agents.AgentID,
	results map[agents.AgentID]agents.Result,
	analysisTime time.Duration,
	startedAt time.Time,
) *Response {
	entries := make(map[string]Entry, len(selected))
	executionTimes := make(map[string]float64, len(selected))
	agentOrder := make([]string, 0, len(selected))
	succeeded := 0

	for _, id := range selected {
		agentOrder = append(agentOrder, id.String())
		r, ok := results[id]
		if !ok {
			// Should not happen: the dispatcher settles every unit. Keep the
			// key-set invariant anyway.
			entries[id.String()] = Entry{
				Status: agents.StatusFailed,
				Error:  "no result produced",
			}
			executionTimes[id.String()] = 0
			continue
		}

		e := Entry{
			Status:        r.Status,
			Error:         r.Error,
			RetryCount:    r.Retries,
			ExecutionTime: r.Duration().Seconds(),
		}
		if r.Output != nil {
			e.Summary = r.Output.Summary
			e.Data = r.Output.Data
			e.Simulated = r.Output.Simulated
		}
		if r.Status == agents.StatusSucceeded {
			succeeded++
		}
		entries[id.String()] = e
		executionTimes[id.String()] = e.ExecutionTime
	}

	ag.improve(ctx, qc.Query, entries)

	resp := &Response{
		RequestID: qc.RequestID,
		Status:    overallStatus(succeeded, len(selected)),
		Results:   entries,
		Synthesis: ag.synthesize(ctx, qc.Query, entries),
		Metadata: Metadata{
			TotalTime:      time.Since(startedAt).Seconds(),
			AnalysisTime:   analysisTime.Seconds(),
			ExecutionTimes: executionTimes,
			CompletionTime: time.Now().UTC(),
			TaskCount:      len(selected),
			AgentOrder:     agentOrder,
		},
	}
	return resp
}

func overallStatus(succeeded, total int) OverallStatus {
	switch {
	case succeeded == 0:
		return StatusFailure
	case succeeded == total:
		return StatusSuccess
	default:
		return StatusPartial
	}
}

// improve rewrites each successful summary through the completion service.
// Failures leave the original summary in place. The general agent's answer
// is already prose and is left untouched.
func (ag *Aggregator) improve(ctx context.Context, query string, entries map[string]Entry) {
	if ag.synth == nil || !ag.improveEnabled {
		return
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for id, e := range entries {
		if e.Status != agents.StatusSucceeded || e.Summary == "" || id == agents.AgentGeneral.String() {
			continue
		}
		wg.Add(1)
		go func(id string, e Entry) {
			defer wg.Done()
			improved, err := ag.synth.Improve(ctx, id, query, e.Summary)
			if err != nil {
				ag.logger.Debug("Summary improvement failed",
					zap.String("agent_id", id), zap.Error(err))
				return
			}
			mu.Lock()
			e.Summary = improved
			entries[id] = e
			mu.Unlock()
		}(id, e)
	}
	wg.Wait()
}

// synthesize builds the consolidated narrative from the successful subset.
// When the synthesis collaborator is unavailable the successful summaries
// are concatenated; when nothing succeeded an explicit no-data narrative is
// returned rather than omitting the field.
func (ag *Aggregator) synthesize(ctx context.Context, query string, entries map[string]Entry) string {
	summaries := make(map[string]string)
	for id, e := range entries {
		if e.Status == agents.StatusSucceeded && e.Summary != "" {
			summaries[id] = e.Summary
		}
	}

	if len(summaries) == 0 {
		return fmt.Sprintf(
			"No analysis could be completed for %q: every data source failed or timed out. "+
				"Per-source errors are included in the results.", query)
	}

	if ag.synth != nil {
		if text, err := ag.synth.Synthesize(ctx, query, summaries); err == nil {
			return text
		} else {
			ag.logger.Warn("Synthesis unavailable, concatenating summaries", zap.Error(err))
		}
	}

	ids := make([]string, 0, len(summaries))
	for id := range summaries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&b, "[%s]\n%s\n\n", id, summaries[id])
	}
	return strings.TrimSpace(b.String())
}
