// Package health aggregates dependency checks behind liveness and readiness
// endpoints. A critical check failing marks the service not ready; optional
// collaborators only degrade the report.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status is one check's outcome.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is the reported outcome of one dependency check.
type CheckResult struct {
	Component string        `json:"component"`
	Status    Status        `json:"status"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	Critical  bool          `json:"critical"`
}

// Checker probes one dependency.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
	// Critical failures make the whole service not ready.
	Critical() bool
}

// Report is the aggregate health document served over HTTP.
type Report struct {
	Status    Status                 `json:"status"`
	Version   string                 `json:"version,omitempty"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp time.Time              `json:"timestamp"`
}

// Manager runs registered checkers and serves the aggregate report.
type Manager struct {
	version string
	timeout time.Duration
	logger  *zap.Logger

	mu       sync.RWMutex
	checkers []Checker
}

// NewManager creates a health manager. Per-check timeout defaults to 3s.
func NewManager(version string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{version: version, timeout: 3 * time.Second, logger: logger}
}

// Register adds one checker.
func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, c)
}

// Run executes all checks concurrently and aggregates the report.
func (m *Manager) Run(ctx context.Context) Report {
	m.mu.RLock()
	checkers := make([]Checker, len(m.checkers))
	copy(checkers, m.checkers)
	m.mu.RUnlock()

	report := Report{
		Status:    StatusHealthy,
		Version:   m.version,
		Checks:    make(map[string]CheckResult, len(checkers)),
		Timestamp: time.Now().UTC(),
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, c := range checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()

			start := time.Now()
			err := c.Check(cctx)
			result := CheckResult{
				Component: c.Name(),
				Status:    StatusHealthy,
				Duration:  time.Since(start),
				Critical:  c.Critical(),
			}
			if err != nil {
				result.Status = StatusUnhealthy
				result.Error = err.Error()
				m.logger.Warn("Health check failed",
					zap.String("component", c.Name()), zap.Error(err))
			}

			mu.Lock()
			report.Checks[c.Name()] = result
			if result.Status == StatusUnhealthy && c.Critical() {
				report.Status = StatusUnhealthy
			}
			mu.Unlock()
		}(c)
	}
	wg.Wait()
	return report
}

// LivenessHandler always answers 200: the process is up.
func (m *Manager) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

// ReadinessHandler runs the checks and answers 503 when a critical
// dependency is down.
func (m *Manager) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := m.Run(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if report.Status != StatusHealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(report)
	}
}
