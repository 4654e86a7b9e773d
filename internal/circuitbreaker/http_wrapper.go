package circuitbreaker

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPWrapper wraps an http.Client with a circuit breaker. 5xx responses
// count as breaker failures; 4xx do not trip the breaker.
type HTTPWrapper struct {
	client *http.Client
	cb     *Breaker
}

// NewHTTPWrapper creates a breaker-guarded HTTP client.
func NewHTTPWrapper(client *http.Client, name string, cfg Config, logger *zap.Logger) *HTTPWrapper {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPWrapper{client: client, cb: New(name, cfg, logger)}
}

// Do executes the request through the breaker. When the breaker opened on a
// 5xx classification the underlying response is still returned to the caller.
func (hw *HTTPWrapper) Do(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	err := hw.cb.Execute(req.Context(), func() error {
		var err2 error
		resp, err2 = hw.client.Do(req)
		if err2 != nil {
			return err2
		}
		if resp.StatusCode >= 500 {
			return &httpStatusError{code: resp.StatusCode}
		}
		return nil
	})

	if _, ok := err.(*httpStatusError); ok {
		return resp, nil
	}
	return resp, err
}

// IsOpen reports whether the underlying breaker currently rejects calls.
func (hw *HTTPWrapper) IsOpen() bool { return hw.cb.IsOpen() }

type httpStatusError struct{ code int }

func (e *httpStatusError) Error() string { return http.StatusText(e.code) }
