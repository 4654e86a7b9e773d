package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bankerai/orchestrator/internal/metrics"
)

// Config holds completion-service client configuration.
type Config struct {
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
}

// Client is a minimal HTTP client for the text-generation collaborator. It is
// used for per-agent response improvement, final cross-agent synthesis, and
// the general agent's free-form answers.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a completion client with defaults filled in.
func NewClient(cfg Config, limiter *rate.Limiter) *Client {
	c := cfg
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Model == "" {
		c.Model = "gpt-3.5-turbo"
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1024
	}
	return &Client{
		cfg:     c,
		http:    &http.Client{Timeout: c.Timeout},
		limiter: limiter,
	}
}

type completionRequest struct {
	Prompt      string  `json:"prompt"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

type completionResponse struct {
	Text      string `json:"text"`
	ModelUsed string `json:"model_used"`
}

// Complete sends one prompt to the completion service and returns its text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if c == nil || c.cfg.BaseURL == "" {
		return "", fmt.Errorf("llm: client not configured")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	start := time.Now()
	url := fmt.Sprintf("%s/completions/", strings.TrimRight(c.cfg.BaseURL, "/"))
	payload := completionRequest{
		Prompt:      prompt,
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	}
	buf, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordLLMRequest(c.cfg.Model, "error", time.Since(start).Seconds())
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		metrics.RecordLLMRequest(c.cfg.Model, "error", time.Since(start).Seconds())
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("llm: completion http status %d: %s", resp.StatusCode, string(body))
	}
	var cr completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		metrics.RecordLLMRequest(c.cfg.Model, "error", time.Since(start).Seconds())
		return "", err
	}
	if cr.Text == "" {
		metrics.RecordLLMRequest(c.cfg.Model, "empty", time.Since(start).Seconds())
		return "", fmt.Errorf("llm: empty completion")
	}
	metrics.RecordLLMRequest(c.cfg.Model, "ok", time.Since(start).Seconds())
	return cr.Text, nil
}

// Improve rewrites one agent's raw output into a concise readable summary.
func (c *Client) Improve(ctx context.Context, agentID, query, content string) (string, error) {
	prompt := fmt.Sprintf(
		"Rewrite the following %s result as a concise, professional summary answering %q.\n\n%s",
		agentID, query, content,
	)
	return c.Complete(ctx, prompt)
}

// Synthesize produces one consolidated narrative from the successful agent
// summaries, keyed by agent identifier.
func (c *Client) Synthesize(ctx context.Context, query string, summaries map[string]string) (string, error) {
	if len(summaries) == 0 {
		return "", fmt.Errorf("llm: nothing to synthesize")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Combine the following analyses into one comprehensive answer to %q.\n", query)
	for _, id := range sortedKeys(summaries) {
		fmt.Fprintf(&b, "\n[%s]\n%s\n", id, summaries[id])
	}
	return c.Complete(ctx, b.String())
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
