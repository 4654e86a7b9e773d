package health

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
)

// PingChecker wraps any dependency exposing a Ping method.
type PingChecker struct {
	name     string
	critical bool
	ping     func(ctx context.Context) error
}

// NewPingChecker builds a checker from a ping function.
func NewPingChecker(name string, critical bool, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, critical: critical, ping: ping}
}

func (c *PingChecker) Name() string                    { return c.name }
func (c *PingChecker) Critical() bool                  { return c.critical }
func (c *PingChecker) Check(ctx context.Context) error { return c.ping(ctx) }

// RedisChecker probes the embedding cache backend.
type RedisChecker struct {
	client *redis.Client
}

func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

func (c *RedisChecker) Name() string   { return "redis" }
func (c *RedisChecker) Critical() bool { return false }

func (c *RedisChecker) Check(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// HTTPChecker probes an upstream collaborator's health endpoint.
type HTTPChecker struct {
	name     string
	url      string
	critical bool
	client   *http.Client
}

func NewHTTPChecker(name, url string, critical bool) *HTTPChecker {
	return &HTTPChecker{name: name, url: url, critical: critical, client: http.DefaultClient}
}

func (c *HTTPChecker) Name() string   { return c.name }
func (c *HTTPChecker) Critical() bool { return c.critical }

func (c *HTTPChecker) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s returned %d", c.url, resp.StatusCode)
	}
	return nil
}
