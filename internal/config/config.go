// Package config loads the service configuration from YAML with environment
// overrides for deploy-time settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds the HTTP gateway settings.
type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	MetricsPort int    `mapstructure:"metrics_port"`
	AuthEnabled bool   `mapstructure:"auth_enabled"`
	JWTSecret   string `mapstructure:"jwt_secret"`
	// MaxQueryBytes rejects oversized query bodies before classification.
	MaxQueryBytes int `mapstructure:"max_query_bytes"`
}

// OrchestratorConfig holds execution limits for one request.
type OrchestratorConfig struct {
	GlobalTimeout  time.Duration `mapstructure:"global_timeout"`
	AgentTimeout   time.Duration `mapstructure:"agent_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
	ImproveEnabled bool          `mapstructure:"improve_enabled"`
}

// ServiceConfig is one upstream collaborator endpoint.
type ServiceConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Simulated bool          `mapstructure:"simulated"`
}

// VectorDBConfig holds the retrieval index settings.
type VectorDBConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	Collection string        `mapstructure:"collection"`
	TopK       int           `mapstructure:"top_k"`
	Threshold  float64       `mapstructure:"threshold"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// RedisConfig holds the embedding cache backend settings.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

// PostgresConfig holds the execution log sink settings.
type PostgresConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// LoggingConfig selects logger construction.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// ClassifierConfig holds classification tuning.
type ClassifierConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	Model               string  `mapstructure:"model"`
}

// Config is the full service configuration tree.
type Config struct {
	Version      string             `mapstructure:"version"`
	Server       ServerConfig       `mapstructure:"server"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Classifier   ClassifierConfig   `mapstructure:"classifier"`
	Embeddings   ServiceConfig      `mapstructure:"embeddings"`
	LLM          ServiceConfig      `mapstructure:"llm"`
	Yahoo        ServiceConfig      `mapstructure:"yahoo"`
	SEC          ServiceConfig      `mapstructure:"sec"`
	Reddit       ServiceConfig      `mapstructure:"reddit"`
	VectorDB     VectorDBConfig     `mapstructure:"vectordb"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Postgres     PostgresConfig     `mapstructure:"postgres"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// Load reads the configuration file from BANKERAI_CONFIG_PATH or the given
// default path, applies defaults and environment overrides, and validates.
func Load(defaultPath string) (*Config, error) {
	path := os.Getenv("BANKERAI_CONFIG_PATH")
	if path == "" {
		path = defaultPath
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing file is not fatal: defaults plus env overrides still form
		// a usable configuration for local runs.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("version", "dev")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 2112)
	v.SetDefault("server.max_query_bytes", 8192)
	v.SetDefault("orchestrator.global_timeout", "60s")
	v.SetDefault("orchestrator.agent_timeout", "30s")
	v.SetDefault("orchestrator.max_retries", 2)
	v.SetDefault("orchestrator.retry_backoff", "500ms")
	v.SetDefault("orchestrator.improve_enabled", true)
	v.SetDefault("classifier.similarity_threshold", 0.4)
	v.SetDefault("vectordb.port", 6333)
	v.SetDefault("vectordb.collection", "bankerai_documents")
	v.SetDefault("vectordb.top_k", 5)
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// applyEnvOverrides covers the settings that differ between deployments and
// are injected rather than baked into the file.
func applyEnvOverrides(cfg *Config) {
	if p := envInt("PORT"); p > 0 {
		cfg.Server.Port = p
	}
	if p := envInt("METRICS_PORT"); p > 0 {
		cfg.Server.MetricsPort = p
	}
	if s := os.Getenv("JWT_SECRET"); s != "" {
		cfg.Server.JWTSecret = s
		cfg.Server.AuthEnabled = true
	}
	if s := os.Getenv("REDIS_ADDR"); s != "" {
		cfg.Redis.Addr = s
		cfg.Redis.Enabled = true
	}
	if s := os.Getenv("REDIS_PASSWORD"); s != "" {
		cfg.Redis.Password = s
	}
	if s := os.Getenv("POSTGRES_HOST"); s != "" {
		cfg.Postgres.Host = s
		cfg.Postgres.Enabled = true
	}
	if s := os.Getenv("POSTGRES_PASSWORD"); s != "" {
		cfg.Postgres.Password = s
	}
	if s := os.Getenv("EMBEDDINGS_URL"); s != "" {
		cfg.Embeddings.BaseURL = s
	}
	if s := os.Getenv("LLM_URL"); s != "" {
		cfg.LLM.BaseURL = s
	}
	if s := os.Getenv("VECTORDB_HOST"); s != "" {
		cfg.VectorDB.Host = s
		cfg.VectorDB.Enabled = true
	}
	if s := os.Getenv("LOG_LEVEL"); s != "" {
		cfg.Logging.Level = s
	}
}

// Validate rejects configurations that would misbehave at runtime, failing
// fast at startup instead.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}
	if c.Orchestrator.MaxRetries < 0 {
		return fmt.Errorf("config: max_retries must not be negative")
	}
	if c.Orchestrator.AgentTimeout > c.Orchestrator.GlobalTimeout {
		return fmt.Errorf("config: agent_timeout %s exceeds global_timeout %s",
			c.Orchestrator.AgentTimeout, c.Orchestrator.GlobalTimeout)
	}
	if c.Server.AuthEnabled && c.Server.JWTSecret == "" {
		return fmt.Errorf("config: auth enabled without jwt_secret")
	}
	if c.Postgres.Enabled && c.Postgres.Host == "" {
		return fmt.Errorf("config: postgres enabled without host")
	}
	return nil
}

func envInt(name string) int {
	s := os.Getenv(name)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
