package agents

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bankerai/orchestrator/internal/llm"
)

// GeneralAgent answers any query with a free-form completion. For
// finance-classified requests it frames the answer as general guidance,
// pointing at the specialized agents for detail.
type GeneralAgent struct {
	llm    *llm.Client
	logger *zap.Logger
}

// NewGeneralAgent creates the general agent.
func NewGeneralAgent(client *llm.Client, logger *zap.Logger) *GeneralAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeneralAgent{llm: client, logger: logger}
}

func (a *GeneralAgent) ID() AgentID { return AgentGeneral }

// Execute produces the general answer for the query.
func (a *GeneralAgent) Execute(ctx context.Context, qc *QueryContext) (*Output, error) {
	var prompt string
	if qc.IsFinance {
		prompt = fmt.Sprintf(
			"You are a financial assistant. Give general guidance on %q, noting that "+
				"specialized analysis (stock data, filings, sentiment) is provided separately.",
			qc.Query,
		)
	} else {
		prompt = fmt.Sprintf(
			"You are a helpful assistant. Provide an accurate, comprehensive answer to: %s",
			qc.Query,
		)
	}

	response, err := a.llm.Complete(ctx, prompt)
	if err != nil {
		// Completion transport problems are worth one more attempt.
		return nil, Transient(fmt.Errorf("general completion: %w", err))
	}

	queryType := "general"
	if qc.IsFinance {
		queryType = "finance_related"
	}

	return &Output{
		Summary: response,
		Data: map[string]interface{}{
			"query":               qc.Query,
			"response":            response,
			"query_type":          queryType,
			"companies_mentioned": qc.Companies,
			"timestamp":           time.Now().UTC().Format(time.RFC3339),
		},
	}, nil
}
