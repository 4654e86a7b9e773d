package agents

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RedditConfig holds social sentiment collaborator settings.
type RedditConfig struct {
	BaseURL string
	// Simulated serves a deterministic neutral-sentiment payload instead of
	// calling the upstream scraper.
	Simulated bool
	Timeout   time.Duration
}

// RedditAgent gathers social-media sentiment for the query's subjects.
type RedditAgent struct {
	cfg     RedditConfig
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewRedditAgent creates the sentiment agent.
func NewRedditAgent(cfg RedditConfig, limiter *rate.Limiter, logger *zap.Logger) *RedditAgent {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedditAgent{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		logger:  logger,
	}
}

func (a *RedditAgent) ID() AgentID { return AgentReddit }

// Sentiment is one subject's aggregated social sentiment.
type Sentiment struct {
	Subject      string  `json:"subject"`
	Score        float64 `json:"score"` // 0 bearish .. 1 bullish
	Label        string  `json:"label"`
	PostsSampled int     `json:"posts_sampled"`
}

type sentimentResponse struct {
	Sentiments []Sentiment `json:"sentiments"`
}

// Execute gathers sentiment for each ticker, falling back to company names
// and then the extracted terms when the request carries no tickers.
func (a *RedditAgent) Execute(ctx context.Context, qc *QueryContext) (*Output, error) {
	subjects := qc.Tickers
	if len(subjects) == 0 {
		subjects = qc.Companies
	}
	if len(subjects) == 0 && len(qc.Terms) > 0 {
		subjects = qc.Terms[:1]
	}
	if len(subjects) == 0 {
		subjects = []string{"market"}
	}

	if a.cfg.Simulated {
		return a.simulated(subjects), nil
	}
	if a.cfg.BaseURL == "" {
		return nil, fmt.Errorf("reddit: sentiment service not configured")
	}

	url := fmt.Sprintf("%s/sentiment?subjects=%s",
		strings.TrimRight(a.cfg.BaseURL, "/"), strings.Join(subjects, ","))
	var sr sentimentResponse
	if err := getJSON(ctx, a.http, a.limiter, url, &sr); err != nil {
		return nil, fmt.Errorf("reddit: sentiment fetch: %w", err)
	}
	if len(sr.Sentiments) == 0 {
		return nil, Transientf("reddit: empty sentiment response for %v", subjects)
	}

	return &Output{
		Summary: summarizeSentiments(sr.Sentiments),
		Data:    map[string]interface{}{"sentiment": sr.Sentiments},
	}, nil
}

// simulated returns stable neutral sentiment per subject.
func (a *RedditAgent) simulated(subjects []string) *Output {
	sentiments := make([]Sentiment, 0, len(subjects))
	for _, s := range subjects {
		sentiments = append(sentiments, Sentiment{
			Subject:      s,
			Score:        0.5,
			Label:        "neutral",
			PostsSampled: 25,
		})
	}
	return &Output{
		Summary:   summarizeSentiments(sentiments),
		Data:      map[string]interface{}{"sentiment": sentiments},
		Simulated: true,
	}
}

func summarizeSentiments(sentiments []Sentiment) string {
	parts := make([]string, 0, len(sentiments))
	for _, s := range sentiments {
		parts = append(parts, fmt.Sprintf("%s: %s (%.2f over %d posts)",
			s.Subject, s.Label, s.Score, s.PostsSampled))
	}
	return "Social sentiment: " + strings.Join(parts, "; ")
}
