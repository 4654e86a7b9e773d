package agents

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/bankerai/orchestrator/internal/llm"
	"github.com/bankerai/orchestrator/internal/vectordb"
)

// Embedder is the vector generation dependency of the finance agent.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string, model string) ([]float32, error)
}

// FinanceAgent answers from the internal document corpus: it embeds the
// query, searches the vector index and summarizes the hits. The index warmup
// runs once per process; concurrent first requests share one warmup.
type FinanceAgent struct {
	embedder Embedder
	index    *vectordb.Client
	llm      *llm.Client
	logger   *zap.Logger

	warmGroup singleflight.Group
	warm      atomic.Bool
}

// NewFinanceAgent creates the document retrieval agent.
func NewFinanceAgent(embedder Embedder, index *vectordb.Client, client *llm.Client, logger *zap.Logger) *FinanceAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FinanceAgent{embedder: embedder, index: index, llm: client, logger: logger}
}

func (a *FinanceAgent) ID() AgentID { return AgentFinance }

// Execute retrieves and summarizes corpus documents relevant to the query.
func (a *FinanceAgent) Execute(ctx context.Context, qc *QueryContext) (*Output, error) {
	if !a.index.Enabled() {
		return nil, fmt.Errorf("finance: retrieval index not configured")
	}
	if a.embedder == nil {
		return nil, fmt.Errorf("finance: embedder not configured")
	}

	if err := a.ensureWarm(ctx); err != nil {
		return nil, Transient(fmt.Errorf("finance: index warmup: %w", err))
	}

	vec, err := a.embedder.GenerateEmbedding(ctx, qc.Query, "")
	if err != nil {
		return nil, Transient(fmt.Errorf("finance: embed query: %w", err))
	}

	docs, err := a.index.Search(ctx, vec, 0)
	if err != nil {
		return nil, Transient(fmt.Errorf("finance: index search: %w", err))
	}

	if len(docs) == 0 {
		return &Output{
			Summary: "No relevant documents found in the internal corpus.",
			Data:    map[string]interface{}{"documents": []interface{}{}},
		}, nil
	}

	hits := make([]map[string]interface{}, 0, len(docs))
	var snippets []string
	for _, d := range docs {
		hits = append(hits, map[string]interface{}{
			"source":  d.Source,
			"score":   d.Score,
			"snippet": snippet(d.Text, 400),
		})
		snippets = append(snippets, fmt.Sprintf("[%s] %s", d.Source, snippet(d.Text, 400)))
	}

	summary := a.summarize(ctx, qc.Query, snippets)
	return &Output{
		Summary: summary,
		Data: map[string]interface{}{
			"documents": hits,
			"summary":   summary,
		},
	}, nil
}

// ensureWarm verifies the collection is reachable exactly once per process.
func (a *FinanceAgent) ensureWarm(ctx context.Context) error {
	if a.warm.Load() {
		return nil
	}
	_, err, _ := a.warmGroup.Do("warm", func() (interface{}, error) {
		if a.warm.Load() {
			return nil, nil
		}
		sources, err := a.index.ListSources(ctx)
		if err != nil {
			return nil, err
		}
		a.logger.Info("Retrieval index ready",
			zap.String("collection", a.index.Collection()),
			zap.Int("sources", len(sources)))
		a.warm.Store(true)
		return nil, nil
	})
	return err
}

// summarize condenses the retrieved snippets with the completion service,
// falling back to the raw snippets on failure.
func (a *FinanceAgent) summarize(ctx context.Context, query string, snippets []string) string {
	joined := strings.Join(snippets, "\n")
	if a.llm == nil {
		return joined
	}
	prompt := fmt.Sprintf(
		"Using only the excerpts below, answer %q concisely and cite the sources in brackets.\n\n%s",
		query, joined,
	)
	summary, err := a.llm.Complete(ctx, prompt)
	if err != nil {
		a.logger.Debug("Document summarization failed, returning raw excerpts", zap.Error(err))
		return joined
	}
	return summary
}

func snippet(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
