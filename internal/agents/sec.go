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

// SECConfig holds filing collaborator settings.
type SECConfig struct {
	BaseURL string
	// Simulated serves deterministic fixture filings instead of calling the
	// upstream, for environments without filing access. Simulated results
	// carry an explicit flag so downstream consumers can tell them apart.
	Simulated bool
	Timeout   time.Duration
}

// SECAgent retrieves recent regulatory filings (10-K/10-Q metadata) per
// ticker.
type SECAgent struct {
	cfg     SECConfig
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewSECAgent creates the filings agent.
func NewSECAgent(cfg SECConfig, limiter *rate.Limiter, logger *zap.Logger) *SECAgent {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SECAgent{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		logger:  logger,
	}
}

func (a *SECAgent) ID() AgentID { return AgentSEC }

// Filing is one filing record as returned by the collaborator.
type Filing struct {
	Ticker      string `json:"ticker"`
	Form        string `json:"form"`
	FiledAt     string `json:"filed_at"`
	Description string `json:"description"`
	URL         string `json:"url,omitempty"`
}

type filingsResponse struct {
	Filings []Filing `json:"filings"`
}

// Execute fetches the latest filings for every ticker. A request without
// tickers is a fatal failure; a missing base URL (and simulation off) is a
// fatal configuration failure.
func (a *SECAgent) Execute(ctx context.Context, qc *QueryContext) (*Output, error) {
	if len(qc.Tickers) == 0 {
		return nil, fmt.Errorf("sec: no tickers in request")
	}

	if a.cfg.Simulated {
		return a.simulated(qc.Tickers), nil
	}
	if a.cfg.BaseURL == "" {
		return nil, fmt.Errorf("sec: filing service not configured")
	}

	var filings []Filing
	var summaries []string
	var lastErr error

	for _, ticker := range qc.Tickers {
		url := fmt.Sprintf("%s/filings?ticker=%s&forms=10-K,10-Q&limit=5",
			strings.TrimRight(a.cfg.BaseURL, "/"), ticker)
		var fr filingsResponse
		if err := getJSON(ctx, a.http, a.limiter, url, &fr); err != nil {
			lastErr = err
			a.logger.Warn("Filing fetch failed",
				zap.String("ticker", ticker), zap.Error(err))
			continue
		}
		filings = append(filings, fr.Filings...)
		summaries = append(summaries,
			fmt.Sprintf("%s: %d recent filings", ticker, len(fr.Filings)))
	}

	if len(summaries) == 0 {
		if lastErr != nil && IsTransient(lastErr) {
			return nil, Transient(fmt.Errorf("sec: all tickers failed: %w", lastErr))
		}
		return nil, fmt.Errorf("sec: all tickers failed: %w", lastErr)
	}

	return &Output{
		Summary: strings.Join(summaries, "; "),
		Data:    map[string]interface{}{"filings": filings},
	}, nil
}

// simulated returns a deterministic fixture so tests and offline deployments
// get stable output.
func (a *SECAgent) simulated(tickers []string) *Output {
	var filings []Filing
	var summaries []string
	for _, ticker := range tickers {
		filings = append(filings,
			Filing{
				Ticker:      ticker,
				Form:        "10-K",
				FiledAt:     "2025-12-31",
				Description: fmt.Sprintf("Annual report for %s (simulated)", ticker),
			},
			Filing{
				Ticker:      ticker,
				Form:        "10-Q",
				FiledAt:     "2026-06-30",
				Description: fmt.Sprintf("Quarterly report for %s (simulated)", ticker),
			},
		)
		summaries = append(summaries, fmt.Sprintf("%s: 2 recent filings", ticker))
	}
	return &Output{
		Summary:   strings.Join(summaries, "; "),
		Data:      map[string]interface{}{"filings": filings},
		Simulated: true,
	}
}
