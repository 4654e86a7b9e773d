package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/completions/", r.URL.Path)
		var req completionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-3.5-turbo", req.Model)
		assert.Equal(t, 1024, req.MaxTokens)
		fmt.Fprint(w, `{"text":"the answer","model_used":"gpt-3.5-turbo"}`)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil)
	text, err := c.Complete(context.Background(), "question")
	require.NoError(t, err)
	assert.Equal(t, "the answer", text)
}

func TestCompleteErrors(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		c := NewClient(Config{}, nil)
		_, err := c.Complete(context.Background(), "q")
		assert.Error(t, err)
	})

	t.Run("http error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		c := NewClient(Config{BaseURL: srv.URL}, nil)
		_, err := c.Complete(context.Background(), "q")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "503")
	})

	t.Run("empty completion", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"text":""}`)
		}))
		defer srv.Close()

		c := NewClient(Config{BaseURL: srv.URL}, nil)
		_, err := c.Complete(context.Background(), "q")
		assert.Error(t, err)
	})
}

func TestSynthesizePromptOrder(t *testing.T) {
	var prompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req completionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		prompt = req.Prompt
		fmt.Fprint(w, `{"text":"combined"}`)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil)
	text, err := c.Synthesize(context.Background(), "how is apple doing", map[string]string{
		"yahoo":   "stock is up",
		"finance": "strong fundamentals",
	})
	require.NoError(t, err)
	assert.Equal(t, "combined", text)

	// Summaries appear in deterministic key order.
	finIdx := strings.Index(prompt, "[finance]")
	yahIdx := strings.Index(prompt, "[yahoo]")
	require.GreaterOrEqual(t, finIdx, 0)
	require.GreaterOrEqual(t, yahIdx, 0)
	assert.Less(t, finIdx, yahIdx)
}

func TestSynthesizeEmpty(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://unused"}, nil)
	_, err := c.Synthesize(context.Background(), "q", nil)
	assert.Error(t, err)
}
