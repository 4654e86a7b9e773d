package embeddings

import "time"

// Config controls the embedding service client.
type Config struct {
	// BaseURL points to the service providing POST /embeddings/
	BaseURL string
	// DefaultModel is the default embedding model (e.g., text-embedding-3-small)
	DefaultModel string
	// Timeout for outbound HTTP calls
	Timeout time.Duration
	// CacheTTL sets TTL for shared cache entries; the cache backend itself
	// is injected into NewService
	CacheTTL time.Duration
	// MaxLRU controls in-process LRU size
	MaxLRU int
}
