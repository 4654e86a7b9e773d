package agents

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/bankerai/orchestrator/internal/llm"
)

// YahooConfig holds quote collaborator settings.
type YahooConfig struct {
	BaseURL string
	Range   string // e.g. "1mo"
	Timeout time.Duration
}

// YahooAgent fetches recent price history per ticker, derives 30-day
// statistics and asks the completion service for an analyst reading.
type YahooAgent struct {
	cfg     YahooConfig
	http    *http.Client
	limiter *rate.Limiter
	llm     *llm.Client
	logger  *zap.Logger
}

// NewYahooAgent creates the quote agent.
func NewYahooAgent(cfg YahooConfig, limiter *rate.Limiter, client *llm.Client, logger *zap.Logger) *YahooAgent {
	if cfg.Range == "" {
		cfg.Range = "1mo"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &YahooAgent{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		llm:     client,
		logger:  logger,
	}
}

func (a *YahooAgent) ID() AgentID { return AgentYahoo }

// TickerStats are the derived statistics over the fetched window.
type TickerStats struct {
	MinClose             float64 `json:"min_close"`
	MaxClose             float64 `json:"max_close"`
	MeanClose            float64 `json:"mean_close"`
	StdDev               float64 `json:"std_dev"`
	PercentChange        float64 `json:"percent_change"`
	VolatilityAnnualized float64 `json:"volatility_annualized"`
	LastClose            float64 `json:"last_close"`
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol   string `json:"symbol"`
				LongName string `json:"longName"`
			} `json:"meta"`
			Indicators struct {
				Quote []struct {
					Close []float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Execute fetches and analyzes every ticker in the request. A request
// without tickers is a fatal (non-retryable) failure.
func (a *YahooAgent) Execute(ctx context.Context, qc *QueryContext) (*Output, error) {
	if len(qc.Tickers) == 0 {
		return nil, fmt.Errorf("yahoo: no tickers in request")
	}

	var entries []map[string]interface{}
	var summaries []string
	var lastErr error
	fetched := 0

	for _, ticker := range qc.Tickers {
		stats, name, err := a.fetchStats(ctx, ticker)
		if err != nil {
			lastErr = err
			a.logger.Warn("Quote fetch failed",
				zap.String("ticker", ticker), zap.Error(err))
			entries = append(entries, map[string]interface{}{
				"ticker": ticker,
				"error":  err.Error(),
			})
			continue
		}
		fetched++

		analysis := a.analyze(ctx, qc.Query, ticker, name, stats)
		entries = append(entries, map[string]interface{}{
			"ticker":       ticker,
			"company_name": name,
			"period":       a.cfg.Range,
			"statistics":   stats,
			"analysis":     analysis,
		})
		summaries = append(summaries, fmt.Sprintf("%s: %s", ticker, analysis))
	}

	if fetched == 0 {
		if lastErr != nil && IsTransient(lastErr) {
			return nil, Transient(fmt.Errorf("yahoo: all tickers failed: %w", lastErr))
		}
		return nil, fmt.Errorf("yahoo: all tickers failed: %w", lastErr)
	}

	return &Output{
		Summary: strings.Join(summaries, "\n"),
		Data:    map[string]interface{}{"tickers": entries},
	}, nil
}

func (a *YahooAgent) fetchStats(ctx context.Context, ticker string) (*TickerStats, string, error) {
	url := fmt.Sprintf("%s/v8/finance/chart/%s?range=%s&interval=1d",
		strings.TrimRight(a.cfg.BaseURL, "/"), ticker, a.cfg.Range)

	var cr chartResponse
	if err := getJSON(ctx, a.http, a.limiter, url, &cr); err != nil {
		return nil, "", err
	}
	if cr.Chart.Error != nil {
		return nil, "", fmt.Errorf("yahoo: %s: %s", cr.Chart.Error.Code, cr.Chart.Error.Description)
	}
	if len(cr.Chart.Result) == 0 || len(cr.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, "", fmt.Errorf("yahoo: no data for %s", ticker)
	}

	res := cr.Chart.Result[0]
	closes := res.Indicators.Quote[0].Close
	// Drop holiday gaps reported as zeros.
	prices := closes[:0:0]
	for _, p := range closes {
		if p > 0 {
			prices = append(prices, p)
		}
	}
	if len(prices) < 2 {
		return nil, "", fmt.Errorf("yahoo: not enough data points for %s", ticker)
	}

	name := res.Meta.LongName
	if name == "" {
		name = ticker
	}
	return computeStats(prices), name, nil
}

// computeStats derives window statistics from the close series.
func computeStats(prices []float64) *TickerStats {
	s := &TickerStats{MinClose: prices[0], MaxClose: prices[0]}
	var sum float64
	for _, p := range prices {
		sum += p
		if p < s.MinClose {
			s.MinClose = p
		}
		if p > s.MaxClose {
			s.MaxClose = p
		}
	}
	n := float64(len(prices))
	s.MeanClose = sum / n
	s.LastClose = prices[len(prices)-1]
	if prices[0] != 0 {
		s.PercentChange = (s.LastClose - prices[0]) / prices[0] * 100
	}

	var varSum float64
	for _, p := range prices {
		d := p - s.MeanClose
		varSum += d * d
	}
	if n > 1 {
		s.StdDev = math.Sqrt(varSum / (n - 1))
	}

	// Annualized volatility from daily returns, 252 trading days.
	var retMean, retVar float64
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns = append(returns, prices[i]/prices[i-1]-1)
		}
	}
	if len(returns) > 1 {
		for _, r := range returns {
			retMean += r
		}
		retMean /= float64(len(returns))
		for _, r := range returns {
			d := r - retMean
			retVar += d * d
		}
		retVar /= float64(len(returns) - 1)
		s.VolatilityAnnualized = math.Sqrt(retVar) * math.Sqrt(252) * 100
	}
	return s
}

// analyze asks the completion service to read the statistics; on failure it
// falls back to a plain numeric summary rather than failing the agent.
func (a *YahooAgent) analyze(ctx context.Context, query, ticker, name string, s *TickerStats) string {
	fallback := fmt.Sprintf(
		"%s (%s): last close %.2f, range %.2f-%.2f, %.2f%% change, volatility %.1f%%",
		name, ticker, s.LastClose, s.MinClose, s.MaxClose, s.PercentChange, s.VolatilityAnnualized,
	)
	if a.llm == nil {
		return fallback
	}

	prompt := fmt.Sprintf(
		"As a financial analyst, interpret these %s statistics for %s (%s) and answer %q: "+
			"last close %.2f, min %.2f, max %.2f, mean %.2f, stddev %.2f, change %.2f%%, "+
			"annualized volatility %.2f%%. Be concise.",
		a.cfg.Range, name, ticker, query,
		s.LastClose, s.MinClose, s.MaxClose, s.MeanClose, s.StdDev,
		s.PercentChange, s.VolatilityAnnualized,
	)
	analysis, err := a.llm.Complete(ctx, prompt)
	if err != nil {
		a.logger.Debug("Quote analysis completion failed", zap.Error(err))
		return fallback
	}
	return analysis
}
