package classification

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/bankerai/orchestrator/internal/embeddings"
	"github.com/bankerai/orchestrator/internal/metrics"
)

// ErrEmptyQuery is returned for empty or whitespace-only input. The request
// is rejected before any agent is dispatched.
var ErrEmptyQuery = errors.New("classification: empty query")

// Classification is the structured extraction derived once from the raw
// query text. It is immutable after Classify returns.
type Classification struct {
	IsFinance bool
	Companies []string
	Tickers   []string
	Terms     []string
	// Degraded is set when the similarity backend was unreachable and the
	// keyword fallback produced the finance flag. Not an error to the caller.
	Degraded bool
}

// HasTickers reports whether any ticker was resolved.
func (c Classification) HasTickers() bool { return len(c.Tickers) > 0 }

// HasCompanies reports whether any company name matched.
func (c Classification) HasCompanies() bool { return len(c.Companies) > 0 }

// Embedder generates embedding vectors for similarity scoring.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string, model string) ([]float32, error)
	GenerateBatchEmbeddings(ctx context.Context, texts []string, model string) ([][]float32, error)
}

// CorpusSource lists document source names from the retrieval collaborator,
// used to extend company coverage beyond the static ticker table.
type CorpusSource interface {
	ListSources(ctx context.Context) ([]string, error)
}

// Config holds classifier settings.
type Config struct {
	// SimilarityThreshold marks a query finance-relevant when the best
	// vocabulary match meets it. Default 0.4.
	SimilarityThreshold float64
	// Model passed to the embedder; empty uses the embedder default.
	Model string
}

// Classifier turns raw query text into a Classification. The semantic path
// scores the query against a pre-embedded finance vocabulary; when the
// similarity backend is unavailable it degrades to keyword-only matching
// rather than failing the request.
type Classifier struct {
	cfg      Config
	embedder Embedder
	corpus   CorpusSource
	logger   *zap.Logger

	// Reference vocabulary vectors, built once per process.
	refGroup singleflight.Group
	refMu    sync.RWMutex
	refVecs  [][]float32

	// Corpus-derived company names, refreshed lazily.
	corpusMu        sync.RWMutex
	corpusNames     []string
	corpusFetchedAt time.Time

	wordRe   map[string]*regexp.Regexp
	wordReMu sync.Mutex
}

var tickerPattern = regexp.MustCompile(`\b[A-Z]{2,5}\b`)

// NewClassifier creates a classifier. embedder and corpus may be nil; a nil
// embedder puts the classifier permanently in keyword mode.
func NewClassifier(cfg Config, embedder Embedder, corpus CorpusSource, logger *zap.Logger) *Classifier {
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = 0.4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		cfg:      cfg,
		embedder: embedder,
		corpus:   corpus,
		logger:   logger,
		wordRe:   make(map[string]*regexp.Regexp),
	}
}

// Classify derives the Classification for one raw query.
func (c *Classifier) Classify(ctx context.Context, query string) (Classification, error) {
	if strings.TrimSpace(query) == "" {
		return Classification{}, ErrEmptyQuery
	}

	companies := c.extractCompanies(ctx, query)
	tickers := mapToTickers(companies)
	terms := extractTerms(query)

	cls := Classification{
		Companies: companies,
		Tickers:   tickers,
		Terms:     terms,
	}

	// A recognized company or an explicit ticker pattern is a finance signal
	// regardless of the similarity score.
	if len(companies) > 0 || tickerPattern.MatchString(query) {
		cls.IsFinance = true
		return cls, nil
	}

	isFinance, degraded := c.financeScore(ctx, query)
	cls.IsFinance = isFinance
	cls.Degraded = degraded
	return cls, nil
}

// financeScore returns the finance flag and whether the keyword fallback was
// used because the similarity backend was unreachable.
func (c *Classifier) financeScore(ctx context.Context, query string) (bool, bool) {
	if c.embedder == nil {
		return keywordMatch(query), true
	}

	queryVec, err := c.embedder.GenerateEmbedding(ctx, query, c.cfg.Model)
	if err != nil {
		c.logger.Warn("Similarity backend unavailable, using keyword classification",
			zap.Error(err))
		metrics.ClassifierDegraded.Inc()
		return keywordMatch(query), true
	}

	refVecs, err := c.referenceVectors(ctx)
	if err != nil {
		c.logger.Warn("Reference vocabulary embedding failed, using keyword classification",
			zap.Error(err))
		metrics.ClassifierDegraded.Inc()
		return keywordMatch(query), true
	}

	best := 0.0
	for _, rv := range refVecs {
		if s := embeddings.CosineSimilarity(queryVec, rv); s > best {
			best = s
		}
	}
	return best >= c.cfg.SimilarityThreshold, false
}

// referenceVectors embeds the finance vocabulary once per process; concurrent
// first requests share one build.
func (c *Classifier) referenceVectors(ctx context.Context) ([][]float32, error) {
	c.refMu.RLock()
	if c.refVecs != nil {
		defer c.refMu.RUnlock()
		return c.refVecs, nil
	}
	c.refMu.RUnlock()

	v, err, _ := c.refGroup.Do("reference", func() (interface{}, error) {
		vecs, err := c.embedder.GenerateBatchEmbeddings(ctx, financeKeywords, c.cfg.Model)
		if err != nil {
			return nil, err
		}
		c.refMu.Lock()
		c.refVecs = vecs
		c.refMu.Unlock()
		return vecs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([][]float32), nil
}

// extractCompanies scans for known company names: the static ticker table
// first, then names derived from the retrieval corpus.
func (c *Classifier) extractCompanies(ctx context.Context, query string) []string {
	queryLower := strings.ToLower(query)
	seen := make(map[string]struct{})
	var companies []string

	add := func(name string) {
		if _, dup := seen[name]; !dup {
			seen[name] = struct{}{}
			companies = append(companies, name)
		}
	}

	for name := range companyTickerTable {
		if c.wholeWord(name).MatchString(queryLower) {
			add(name)
		}
	}

	for _, name := range c.corpusCompanies(ctx) {
		if c.wholeWord(name).MatchString(queryLower) {
			add(name)
		}
	}

	sort.Strings(companies)
	return companies
}

// corpusCompanies returns company names derived from corpus source names
// (the part before the first dash, lowercased), cached for ten minutes.
func (c *Classifier) corpusCompanies(ctx context.Context) []string {
	if c.corpus == nil {
		return nil
	}

	c.corpusMu.RLock()
	if time.Since(c.corpusFetchedAt) < 10*time.Minute {
		defer c.corpusMu.RUnlock()
		return c.corpusNames
	}
	c.corpusMu.RUnlock()

	sources, err := c.corpus.ListSources(ctx)
	if err != nil {
		c.logger.Debug("Corpus company listing unavailable", zap.Error(err))
		return nil
	}

	names := make([]string, 0, len(sources))
	for _, s := range sources {
		base := strings.TrimSuffix(s, ".pdf")
		if i := strings.Index(base, "-"); i > 0 {
			base = base[:i]
		}
		base = strings.ToLower(strings.TrimSpace(base))
		if base != "" {
			names = append(names, base)
		}
	}

	c.corpusMu.Lock()
	c.corpusNames = names
	c.corpusFetchedAt = time.Now()
	c.corpusMu.Unlock()
	return names
}

func (c *Classifier) wholeWord(name string) *regexp.Regexp {
	c.wordReMu.Lock()
	defer c.wordReMu.Unlock()
	if re, ok := c.wordRe[name]; ok {
		return re
	}
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
	c.wordRe[name] = re
	return re
}

// mapToTickers resolves matched companies to their distinct tickers.
func mapToTickers(companies []string) []string {
	seen := make(map[string]struct{})
	var tickers []string
	for _, company := range companies {
		if t, ok := TickerFor(company); ok {
			if _, dup := seen[t]; !dup {
				seen[t] = struct{}{}
				tickers = append(tickers, t)
			}
		}
	}
	sort.Strings(tickers)
	return tickers
}

// keywordMatch is the degraded-mode finance check: vocabulary substring match
// plus the ticker pattern scan.
func keywordMatch(query string) bool {
	queryLower := strings.ToLower(query)
	for _, kw := range financeKeywords {
		if strings.Contains(queryLower, strings.ToLower(kw)) {
			return true
		}
	}
	return tickerPattern.MatchString(query)
}

// extractTerms returns the vocabulary terms present in the query, ordered by
// first occurrence.
func extractTerms(query string) []string {
	queryLower := strings.ToLower(query)
	type hit struct {
		term string
		pos  int
	}
	var hits []hit
	for _, kw := range financeKeywords {
		if pos := strings.Index(queryLower, strings.ToLower(kw)); pos >= 0 {
			hits = append(hits, hit{term: kw, pos: pos})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })
	terms := make([]string, 0, len(hits))
	for _, h := range hits {
		terms = append(terms, h.term)
	}
	return terms
}
