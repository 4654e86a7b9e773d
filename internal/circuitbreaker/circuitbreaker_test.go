package circuitbreaker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failing(b *Breaker, n int) {
	for i := 0; i < n; i++ {
		_ = b.Execute(context.Background(), func() error { return errors.New("down") })
	}
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := New("test", Config{FailureThreshold: 3, OpenTimeout: time.Minute}, nil)
	assert.Equal(t, StateClosed, b.State())

	failing(b, 2)
	assert.Equal(t, StateClosed, b.State())

	failing(b, 1)
	assert.Equal(t, StateOpen, b.State())

	err := b.Execute(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrOpen)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := New("test", Config{FailureThreshold: 3, OpenTimeout: time.Minute}, nil)
	failing(b, 2)
	require.NoError(t, b.Execute(context.Background(), func() error { return nil }))
	failing(b, 2)
	// The earlier streak was reset; the breaker is still closed.
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := New("test", Config{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		OpenTimeout:      10 * time.Millisecond,
	}, nil)

	failing(b, 1)
	require.Equal(t, StateOpen, b.State())

	time.Sleep(15 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Execute(context.Background(), func() error { return nil }))
	assert.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Execute(context.Background(), func() error { return nil }))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := New("test", Config{FailureThreshold: 1, OpenTimeout: 10 * time.Millisecond}, nil)
	failing(b, 1)
	time.Sleep(15 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	failing(b, 1)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerHalfOpenLimitsProbes(t *testing.T) {
	b := New("test", Config{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		MaxHalfOpen:      1,
		OpenTimeout:      time.Millisecond,
	}, nil)
	failing(b, 1)
	time.Sleep(5 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- b.Execute(context.Background(), func() error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	// The single probe slot is taken.
	err := b.Execute(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrTooManyRequests)

	close(release)
	require.NoError(t, <-done)
}

func TestBreakerPanicCountsAsFailure(t *testing.T) {
	b := New("test", Config{FailureThreshold: 1, OpenTimeout: time.Minute}, nil)
	assert.Panics(t, func() {
		_ = b.Execute(context.Background(), func() error { panic("boom") })
	})
	assert.Equal(t, StateOpen, b.State())
}

func TestHTTPWrapperServerErrorsTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	hw := NewHTTPWrapper(srv.Client(), "upstream",
		Config{FailureThreshold: 2, OpenTimeout: time.Minute}, nil)

	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
		resp, err := hw.Do(req)
		// The response is still handed to the caller for status handling.
		require.NoError(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		resp.Body.Close()
	}
	assert.True(t, hw.IsOpen())

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	_, err := hw.Do(req)
	assert.ErrorIs(t, err, ErrOpen)
}

func TestHTTPWrapperClientErrorsDoNotTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	hw := NewHTTPWrapper(srv.Client(), "upstream",
		Config{FailureThreshold: 1, OpenTimeout: time.Minute}, nil)

	for i := 0; i < 5; i++ {
		req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
		resp, err := hw.Do(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		resp.Body.Close()
	}
	assert.False(t, hw.IsOpen())
}
