// Package ratecontrol loads per-provider outbound request limits and hands
// out shared rate limiters for the agents' external collaborators.
package ratecontrol

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

type config struct {
	RateLimits struct {
		DefaultRPM        int `yaml:"default_rpm"`
		ProviderOverrides map[string]struct {
			RPM   int `yaml:"rpm"`
			Burst int `yaml:"burst"`
		} `yaml:"provider_overrides"`
	} `yaml:"rate_limits"`
}

var (
	mu          sync.Mutex
	loaded      *config
	initialized bool
	limiters    = map[string]*rate.Limiter{}
)

func candidatePaths() []string {
	return []string{
		os.Getenv("RATELIMITS_CONFIG_PATH"),
		"/app/config/ratelimits.yaml",
		"./config/ratelimits.yaml",
		"../../config/ratelimits.yaml",
	}
}

var builtInProviderRPM = map[string]int{
	"yahoo":  60,
	"sec":    10,
	"reddit": 30,
	"llm":    30,
}

func loadLocked() {
	var cfg config
	for _, p := range candidatePaths() {
		if p == "" {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		var tmp config
		if err := yaml.Unmarshal(data, &tmp); err != nil {
			continue
		}
		cfg = tmp
		break
	}
	if cfg.RateLimits.DefaultRPM == 0 && len(cfg.RateLimits.ProviderOverrides) == 0 {
		if path, ok := findUpConfig(); ok {
			if data, err := os.ReadFile(path); err == nil {
				var tmp config
				if err := yaml.Unmarshal(data, &tmp); err == nil {
					cfg = tmp
				}
			}
		}
	}
	loaded = &cfg
	initialized = true
}

func findUpConfig() (string, bool) {
	wd, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for i := 0; i < 6; i++ {
		cand := filepath.Join(wd, "config", "ratelimits.yaml")
		if _, err := os.Stat(cand); err == nil {
			return cand, true
		}
		wd = filepath.Dir(wd)
	}
	return "", false
}

// RPMFor returns the requests-per-minute budget for a provider.
func RPMFor(provider string) int {
	mu.Lock()
	defer mu.Unlock()
	if !initialized {
		loadLocked()
	}
	key := strings.ToLower(strings.TrimSpace(provider))
	if loaded != nil && loaded.RateLimits.ProviderOverrides != nil {
		if o, ok := loaded.RateLimits.ProviderOverrides[key]; ok && o.RPM > 0 {
			return o.RPM
		}
	}
	if loaded != nil && loaded.RateLimits.DefaultRPM > 0 {
		return loaded.RateLimits.DefaultRPM
	}
	if rpm, ok := builtInProviderRPM[key]; ok {
		return rpm
	}
	return 60
}

// LimiterFor returns the process-wide shared limiter for a provider.
func LimiterFor(provider string) *rate.Limiter {
	key := strings.ToLower(strings.TrimSpace(provider))

	mu.Lock()
	if l, ok := limiters[key]; ok {
		mu.Unlock()
		return l
	}
	mu.Unlock()

	rpm := RPMFor(key)
	burst := rpm / 6
	if burst < 1 {
		burst = 1
	}

	mu.Lock()
	defer mu.Unlock()
	if l, ok := limiters[key]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst)
	limiters[key] = l
	return l
}

// Reload clears cached configuration and limiters (used by tests).
func Reload() {
	mu.Lock()
	defer mu.Unlock()
	initialized = false
	loaded = nil
	limiters = map[string]*rate.Limiter{}
}
