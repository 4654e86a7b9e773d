package agents

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentIDValid(t *testing.T) {
	for _, id := range AllAgentIDs() {
		assert.True(t, id.Valid(), "id %s", id)
	}
	assert.False(t, AgentID("weather").Valid())
	assert.False(t, AgentID("").Valid())
}

func TestTransientMarker(t *testing.T) {
	base := fmt.Errorf("upstream unreachable")
	assert.False(t, IsTransient(base))
	assert.True(t, IsTransient(Transient(base)))
	assert.True(t, IsTransient(Transientf("status %d", 503)))
	assert.True(t, IsTransient(fmt.Errorf("wrapped: %w", Transient(base))))
	assert.Nil(t, Transient(nil))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(nil)

	sec := NewSECAgent(SECConfig{Simulated: true}, nil, nil)
	require.NoError(t, r.Register(sec))

	t.Run("rejects duplicate", func(t *testing.T) {
		err := r.Register(NewSECAgent(SECConfig{Simulated: true}, nil, nil))
		assert.Error(t, err)
	})

	t.Run("rejects unknown id", func(t *testing.T) {
		err := r.Register(stubAgent{id: "weather"})
		assert.Error(t, err)
	})

	t.Run("canonical order", func(t *testing.T) {
		require.NoError(t, r.Register(NewRedditAgent(RedditConfig{Simulated: true}, nil, nil)))
		ids := r.IDs()
		assert.Equal(t, []AgentID{AgentSEC, AgentReddit}, ids)
		assert.Equal(t, 2, r.Len())
	})

	t.Run("get", func(t *testing.T) {
		got, ok := r.Get(AgentSEC)
		require.True(t, ok)
		assert.Equal(t, AgentSEC, got.ID())
		_, ok = r.Get(AgentYahoo)
		assert.False(t, ok)
	})
}

type stubAgent struct {
	id AgentID
}

func (s stubAgent) ID() AgentID { return s.id }
func (s stubAgent) Execute(context.Context, *QueryContext) (*Output, error) {
	return &Output{Summary: "ok"}, nil
}

func TestGetJSONStatusMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantErr   bool
		transient bool
	}{
		{"ok", http.StatusOK, false, false},
		{"rate limited", http.StatusTooManyRequests, true, true},
		{"server error", http.StatusBadGateway, true, true},
		{"client error", http.StatusNotFound, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				if tt.status == http.StatusOK {
					fmt.Fprint(w, `{"value":42}`)
				}
			}))
			defer srv.Close()

			var out struct {
				Value int `json:"value"`
			}
			err := getJSON(context.Background(), srv.Client(), nil, srv.URL, &out)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, 42, out.Value)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.transient, IsTransient(err))
		})
	}
}

func TestYahooAgentStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/AAPL", r.URL.Path)
		assert.Equal(t, "1mo", r.URL.Query().Get("range"))
		fmt.Fprint(w, `{
			"chart": {
				"result": [{
					"meta": {"symbol": "AAPL", "longName": "Apple Inc."},
					"indicators": {"quote": [{"close": [100, 110, 0, 105, 120]}]}
				}],
				"error": null
			}
		}`)
	}))
	defer srv.Close()

	agent := NewYahooAgent(YahooConfig{BaseURL: srv.URL}, nil, nil, nil)
	out, err := agent.Execute(context.Background(), &QueryContext{
		Query:   "How is Apple doing?",
		Tickers: []string{"AAPL"},
	})
	require.NoError(t, err)
	require.NotNil(t, out)

	entries := out.Data["tickers"].([]map[string]interface{})
	require.Len(t, entries, 1)
	stats := entries[0]["statistics"].(*TickerStats)

	// Zero closes are dropped, leaving 100, 110, 105, 120.
	assert.InDelta(t, 100.0, stats.MinClose, 1e-9)
	assert.InDelta(t, 120.0, stats.MaxClose, 1e-9)
	assert.InDelta(t, 108.75, stats.MeanClose, 1e-9)
	assert.InDelta(t, 20.0, stats.PercentChange, 1e-9)
	assert.InDelta(t, 120.0, stats.LastClose, 1e-9)
	assert.Greater(t, stats.VolatilityAnnualized, 0.0)
	assert.Contains(t, out.Summary, "AAPL")
	assert.Equal(t, "Apple Inc.", entries[0]["company_name"])
}

func TestYahooAgentNoTickers(t *testing.T) {
	agent := NewYahooAgent(YahooConfig{BaseURL: "http://unused"}, nil, nil, nil)
	_, err := agent.Execute(context.Background(), &QueryContext{Query: "markets"})
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestYahooAgentUpstreamDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	agent := NewYahooAgent(YahooConfig{BaseURL: srv.URL}, nil, nil, nil)
	_, err := agent.Execute(context.Background(), &QueryContext{
		Query:   "apple",
		Tickers: []string{"AAPL"},
	})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestComputeStatsSingleJumpSeries(t *testing.T) {
	s := computeStats([]float64{50, 100})
	assert.InDelta(t, 50.0, s.MinClose, 1e-9)
	assert.InDelta(t, 100.0, s.MaxClose, 1e-9)
	assert.InDelta(t, 100.0, s.PercentChange, 1e-9)
	// A single return gives no volatility sample.
	assert.Zero(t, s.VolatilityAnnualized)
}

func TestSECAgentSimulated(t *testing.T) {
	agent := NewSECAgent(SECConfig{Simulated: true}, nil, nil)
	out, err := agent.Execute(context.Background(), &QueryContext{
		Query:   "apple filings",
		Tickers: []string{"AAPL", "MSFT"},
	})
	require.NoError(t, err)
	assert.True(t, out.Simulated)

	filings := out.Data["filings"].([]Filing)
	require.Len(t, filings, 4)
	assert.Equal(t, "10-K", filings[0].Form)
	assert.Equal(t, "10-Q", filings[1].Form)
	assert.Equal(t, "AAPL", filings[0].Ticker)
	assert.Contains(t, out.Summary, "MSFT: 2 recent filings")
}

func TestSECAgentRequiresTickers(t *testing.T) {
	agent := NewSECAgent(SECConfig{Simulated: true}, nil, nil)
	_, err := agent.Execute(context.Background(), &QueryContext{Query: "filings"})
	assert.Error(t, err)
}

func TestSECAgentLive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AAPL", r.URL.Query().Get("ticker"))
		fmt.Fprint(w, `{"filings":[{"ticker":"AAPL","form":"10-K","filed_at":"2025-11-01","description":"Annual report"}]}`)
	}))
	defer srv.Close()

	agent := NewSECAgent(SECConfig{BaseURL: srv.URL}, nil, nil)
	out, err := agent.Execute(context.Background(), &QueryContext{
		Query:   "apple filings",
		Tickers: []string{"AAPL"},
	})
	require.NoError(t, err)
	assert.False(t, out.Simulated)
	assert.Contains(t, out.Summary, "AAPL: 1 recent filings")
}

func TestRedditAgentSubjectFallback(t *testing.T) {
	agent := NewRedditAgent(RedditConfig{Simulated: true}, nil, nil)

	t.Run("tickers win", func(t *testing.T) {
		out, err := agent.Execute(context.Background(), &QueryContext{
			Tickers:   []string{"TSLA"},
			Companies: []string{"tesla"},
		})
		require.NoError(t, err)
		sentiments := out.Data["sentiment"].([]Sentiment)
		require.Len(t, sentiments, 1)
		assert.Equal(t, "TSLA", sentiments[0].Subject)
		assert.True(t, out.Simulated)
	})

	t.Run("companies next", func(t *testing.T) {
		out, err := agent.Execute(context.Background(), &QueryContext{
			Companies: []string{"tesla"},
		})
		require.NoError(t, err)
		sentiments := out.Data["sentiment"].([]Sentiment)
		assert.Equal(t, "tesla", sentiments[0].Subject)
	})

	t.Run("first term next", func(t *testing.T) {
		out, err := agent.Execute(context.Background(), &QueryContext{
			Terms: []string{"inflation", "rates"},
		})
		require.NoError(t, err)
		sentiments := out.Data["sentiment"].([]Sentiment)
		require.Len(t, sentiments, 1)
		assert.Equal(t, "inflation", sentiments[0].Subject)
	})

	t.Run("market default", func(t *testing.T) {
		out, err := agent.Execute(context.Background(), &QueryContext{})
		require.NoError(t, err)
		sentiments := out.Data["sentiment"].([]Sentiment)
		assert.Equal(t, "market", sentiments[0].Subject)
	})
}

func TestRedditAgentLive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "NVDA", r.URL.Query().Get("subjects"))
		fmt.Fprint(w, `{"sentiments":[{"subject":"NVDA","score":0.8,"label":"bullish","posts_sampled":120}]}`)
	}))
	defer srv.Close()

	agent := NewRedditAgent(RedditConfig{BaseURL: srv.URL}, nil, nil)
	out, err := agent.Execute(context.Background(), &QueryContext{Tickers: []string{"NVDA"}})
	require.NoError(t, err)
	assert.Contains(t, out.Summary, "NVDA: bullish")
	assert.False(t, out.Simulated)
}

func TestRedditAgentEmptyUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"sentiments":[]}`)
	}))
	defer srv.Close()

	agent := NewRedditAgent(RedditConfig{BaseURL: srv.URL}, nil, nil)
	_, err := agent.Execute(context.Background(), &QueryContext{Tickers: []string{"NVDA"}})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}
