package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/bankerai/orchestrator/internal/metrics"
)

// Service provides embedding generation with LRU and Redis cache layers in
// front of the embedding collaborator.
type Service struct {
	cfg   Config
	http  *http.Client
	cache Cache
	lru   *LocalLRU
}

// NewService creates an embedding client. cache may be nil.
func NewService(cfg Config, cache Cache) *Service {
	c := cfg
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	if c.DefaultModel == "" {
		c.DefaultModel = "text-embedding-3-small"
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = time.Hour
	}
	if c.MaxLRU == 0 {
		c.MaxLRU = 2048
	}
	return &Service{
		cfg:   c,
		http:  &http.Client{Timeout: c.Timeout},
		cache: cache,
		lru:   NewLocalLRU(c.MaxLRU),
	}
}

type embedRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	Dimensions int         `json:"dimensions"`
	ModelUsed  string      `json:"model_used"`
}

// GenerateEmbedding returns the vector for a single text.
func (s *Service) GenerateEmbedding(ctx context.Context, text string, model string) ([]float32, error) {
	out, err := s.GenerateBatchEmbeddings(ctx, []string{text}, model)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// GenerateBatchEmbeddings generates embeddings for multiple texts in a single
// request, serving what it can from the cache layers first.
func (s *Service) GenerateBatchEmbeddings(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if s == nil {
		return nil, fmt.Errorf("embeddings: service not initialized")
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	m := model
	if m == "" {
		m = s.cfg.DefaultModel
	}

	results := make([][]float32, len(texts))
	uncachedTexts := []string{}
	uncachedIndices := []int{}

	for i, text := range texts {
		key := MakeKey(m, text)

		if v, ok := s.lru.Get(ctx, key); ok {
			results[i] = v
			metrics.RecordEmbeddingRequest(m, "lru_hit", 0)
			continue
		}
		if s.cache != nil {
			if v, ok := s.cache.Get(ctx, key); ok {
				results[i] = v
				s.lru.Set(ctx, key, v, 30*time.Minute)
				metrics.RecordEmbeddingRequest(m, "cache_hit", 0)
				continue
			}
		}

		uncachedTexts = append(uncachedTexts, text)
		uncachedIndices = append(uncachedIndices, i)
	}

	if len(uncachedTexts) == 0 {
		return results, nil
	}

	start := time.Now()
	url := fmt.Sprintf("%s/embeddings/", s.cfg.BaseURL)
	payload := embedRequest{Texts: uncachedTexts, Model: m}
	buf, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		metrics.RecordEmbeddingRequest(m, "error", time.Since(start).Seconds())
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		metrics.RecordEmbeddingRequest(m, "error", time.Since(start).Seconds())
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("embeddings: http status %d: %s", resp.StatusCode, string(body))
	}

	var er embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		metrics.RecordEmbeddingRequest(m, "error", time.Since(start).Seconds())
		return nil, err
	}
	if len(er.Embeddings) != len(uncachedTexts) {
		return nil, fmt.Errorf("embeddings: got %d vectors for %d texts", len(er.Embeddings), len(uncachedTexts))
	}

	for i, embedding := range er.Embeddings {
		out := make([]float32, len(embedding))
		for j, f := range embedding {
			out[j] = float32(f)
		}
		results[uncachedIndices[i]] = out

		key := MakeKey(m, uncachedTexts[i])
		s.lru.Set(ctx, key, out, 30*time.Minute)
		if s.cache != nil {
			s.cache.Set(ctx, key, out, s.cfg.CacheTTL)
		}
	}

	metrics.RecordEmbeddingRequest(m, "ok", time.Since(start).Seconds())
	return results, nil
}

// CosineSimilarity computes the cosine similarity of two vectors, 0 when
// either has zero magnitude or lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
