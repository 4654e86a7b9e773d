package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerAggregation(t *testing.T) {
	m := NewManager("v1", nil)
	m.Register(NewPingChecker("up", true, func(context.Context) error { return nil }))
	m.Register(NewPingChecker("optional-down", false, func(context.Context) error {
		return errors.New("unreachable")
	}))

	report := m.Run(context.Background())
	// Only critical failures flip the aggregate.
	assert.Equal(t, StatusHealthy, report.Status)
	assert.Equal(t, "v1", report.Version)
	assert.Equal(t, StatusHealthy, report.Checks["up"].Status)
	assert.Equal(t, StatusUnhealthy, report.Checks["optional-down"].Status)
	assert.Equal(t, "unreachable", report.Checks["optional-down"].Error)
}

func TestManagerCriticalFailure(t *testing.T) {
	m := NewManager("v1", nil)
	m.Register(NewPingChecker("db", true, func(context.Context) error {
		return errors.New("connection refused")
	}))

	report := m.Run(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Status)
}

func TestReadinessHandler(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		m := NewManager("v1", nil)
		m.Register(NewPingChecker("db", true, func(context.Context) error { return nil }))

		rr := httptest.NewRecorder()
		m.ReadinessHandler()(rr, httptest.NewRequest(http.MethodGet, "/readiness", nil))
		assert.Equal(t, http.StatusOK, rr.Code)

		var report Report
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
		assert.Equal(t, StatusHealthy, report.Status)
	})

	t.Run("unhealthy", func(t *testing.T) {
		m := NewManager("v1", nil)
		m.Register(NewPingChecker("db", true, func(context.Context) error {
			return errors.New("down")
		}))

		rr := httptest.NewRecorder()
		m.ReadinessHandler()(rr, httptest.NewRequest(http.MethodGet, "/readiness", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})
}

func TestLivenessHandlerAlwaysOK(t *testing.T) {
	m := NewManager("v1", nil)
	m.Register(NewPingChecker("db", true, func(context.Context) error {
		return errors.New("down")
	}))

	rr := httptest.NewRecorder()
	m.LivenessHandler()(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRedisChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	cli := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisChecker(cli)

	assert.Equal(t, "redis", c.Name())
	assert.False(t, c.Critical())
	assert.NoError(t, c.Check(context.Background()))

	mr.Close()
	assert.Error(t, c.Check(context.Background()))
}

func TestHTTPChecker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	ok := NewHTTPChecker("svc", srv.URL+"/health", true)
	assert.NoError(t, ok.Check(context.Background()))

	bad := NewHTTPChecker("svc", srv.URL+"/bad", true)
	assert.Error(t, bad.Check(context.Background()))
}
