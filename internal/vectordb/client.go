package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/bankerai/orchestrator/internal/circuitbreaker"
	"github.com/bankerai/orchestrator/internal/metrics"
)

// Config holds vector index client settings.
type Config struct {
	Enabled    bool
	Host       string
	Port       int
	Collection string
	TopK       int
	Threshold  float64
	Timeout    time.Duration
}

// Client is a minimal Qdrant-style HTTP client used by the finance agent's
// document retrieval and by the classifier's corpus company listing.
type Client struct {
	cfg   Config
	base  string
	httpw *circuitbreaker.HTTPWrapper
	log   *zap.Logger
}

// Document is one retrieval hit.
type Document struct {
	ID      string
	Score   float64
	Text    string
	Source  string
	Payload map[string]interface{}
}

// NewClient creates a vector index client with defaults filled in.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	c := cfg
	if c.Port == 0 {
		c.Port = 6333
	}
	if c.TopK == 0 {
		c.TopK = 5
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	if c.Collection == "" {
		c.Collection = "bankerai_documents"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := &http.Client{Timeout: c.Timeout}
	return &Client{
		cfg:   c,
		base:  fmt.Sprintf("http://%s:%d", c.Host, c.Port),
		httpw: circuitbreaker.NewHTTPWrapper(httpClient, "vectordb", circuitbreaker.DefaultConfig(), logger),
		log:   logger,
	}
}

// Enabled reports whether the index is configured for use.
func (c *Client) Enabled() bool { return c != nil && c.cfg.Enabled }

// Collection returns the configured collection name.
func (c *Client) Collection() string { return c.cfg.Collection }

type queryRequest struct {
	Query          []float32 `json:"query"`
	Limit          int       `json:"limit"`
	ScoreThreshold *float64  `json:"score_threshold,omitempty"`
	WithPayload    bool      `json:"with_payload"`
}

type point struct {
	ID      interface{}            `json:"id"`
	Score   float64                `json:"score"`
	Payload map[string]interface{} `json:"payload"`
}

type queryResponse struct {
	Result struct {
		Points []point `json:"points"`
	} `json:"result"`
	Status string `json:"status"`
}

// Search returns up to limit documents most similar to vec, filtered by the
// configured score threshold.
func (c *Client) Search(ctx context.Context, vec []float32, limit int) ([]Document, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("vectordb: search called while disabled")
	}
	if limit <= 0 {
		limit = c.cfg.TopK
	}

	var thr *float64
	if c.cfg.Threshold > 0 {
		t := c.cfg.Threshold
		thr = &t
	}
	reqBody := queryRequest{Query: vec, Limit: limit, ScoreThreshold: thr, WithPayload: true}
	buf, _ := json.Marshal(reqBody)

	url := fmt.Sprintf("%s/collections/%s/points/query", c.base, c.cfg.Collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpw.Do(req)
	if err != nil {
		metrics.RecordVectorSearch(c.cfg.Collection, "error")
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		metrics.RecordVectorSearch(c.cfg.Collection, "error")
		return nil, fmt.Errorf("vectordb: query http status %d", resp.StatusCode)
	}

	var qr queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		metrics.RecordVectorSearch(c.cfg.Collection, "error")
		return nil, err
	}

	docs := make([]Document, 0, len(qr.Result.Points))
	for _, p := range qr.Result.Points {
		docs = append(docs, toDocument(p))
	}
	metrics.RecordVectorSearch(c.cfg.Collection, "ok")
	return docs, nil
}

type scrollRequest struct {
	Limit       int  `json:"limit"`
	WithPayload bool `json:"with_payload"`
}

type scrollResponse struct {
	Result struct {
		Points []point `json:"points"`
	} `json:"result"`
	Status string `json:"status"`
}

// ListSources returns the distinct source names present in the collection
// payloads. The classifier uses these to extend company coverage beyond the
// static ticker table.
func (c *Client) ListSources(ctx context.Context) ([]string, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("vectordb: list sources called while disabled")
	}

	buf, _ := json.Marshal(scrollRequest{Limit: 256, WithPayload: true})
	url := fmt.Sprintf("%s/collections/%s/points/scroll", c.base, c.cfg.Collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpw.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vectordb: scroll http status %d", resp.StatusCode)
	}

	var sr scrollResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var sources []string
	for _, p := range sr.Result.Points {
		if s, ok := p.Payload["source"].(string); ok && s != "" {
			if _, dup := seen[s]; !dup {
				seen[s] = struct{}{}
				sources = append(sources, s)
			}
		}
	}
	return sources, nil
}

func toDocument(p point) Document {
	d := Document{Score: p.Score, Payload: p.Payload}
	d.ID = fmt.Sprintf("%v", p.ID)
	if t, ok := p.Payload["text"].(string); ok {
		d.Text = t
	}
	if s, ok := p.Payload["source"].(string); ok {
		d.Source = s
	}
	return d
}
