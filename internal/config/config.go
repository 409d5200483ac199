// Package config handles configuration for the knowledge service
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete configuration for the service
type Config struct {
	Service    ServiceConfig    `mapstructure:"service"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Vector     VectorConfig     `mapstructure:"vector"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Processing ProcessingConfig `mapstructure:"processing"`
	Search     SearchConfig     `mapstructure:"search"`
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
}

// ServiceConfig contains service-level configuration
type ServiceConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	LogLevel        string        `mapstructure:"log_level"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Database     string `mapstructure:"database"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxConns     int    `mapstructure:"max_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// DSN builds a lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Database, d.Username, d.Password, d.SSLMode)
}

// VectorConfig contains vector store connection settings
type VectorConfig struct {
	Address string `mapstructure:"address"`
}

// RedisConfig contains Redis connection settings. Leaving the address
// empty disables caching entirely.
type RedisConfig struct {
	Address     string        `mapstructure:"address"`
	Password    string        `mapstructure:"password"`
	Database    int           `mapstructure:"database"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	PoolSize    int           `mapstructure:"pool_size"`
}

// EmbeddingConfig contains embedding provider and batching settings
type EmbeddingConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	APIKey          string        `mapstructure:"api_key"`
	Model           string        `mapstructure:"model"`
	Dimensions      int           `mapstructure:"dimensions"`
	BatchSize       int           `mapstructure:"batch_size"`
	RetryAttempts   int           `mapstructure:"retry_attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	SubBatchTimeout time.Duration `mapstructure:"sub_batch_timeout"`
	RateLimitRPM    int           `mapstructure:"rate_limit_rpm"`
}

// ProcessingConfig contains document processing settings
type ProcessingConfig struct {
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
}

// SearchConfig contains hybrid search settings. The weights are tunable
// parameters, not invariants; defaults favor vector similarity.
type SearchConfig struct {
	VectorWeight float64 `mapstructure:"vector_weight"`
	TextWeight   float64 `mapstructure:"text_weight"`
	Oversample   int     `mapstructure:"oversample"`
	DefaultLimit int     `mapstructure:"default_limit"`
}

// CrawlerConfig contains crawl job settings
type CrawlerConfig struct {
	MaxPages          int           `mapstructure:"max_pages"`
	MaxDepth          int           `mapstructure:"max_depth"`
	ErrorThreshold    int           `mapstructure:"error_threshold"`
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout"`
	JobTimeout        time.Duration `mapstructure:"job_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	MaxConcurrentJobs int           `mapstructure:"max_concurrent_jobs"`
	UserAgent         string        `mapstructure:"user_agent"`
}

// Load loads configuration from environment and config files
func Load() (*Config, error) {
	viper.SetConfigName("contextforge")
	viper.SetConfigType("yaml")

	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/configs")

	setDefaults()
	bindEnvVars()

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional; defaults and env vars are enough.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default values for configuration
func setDefaults() {
	// Service defaults
	viper.SetDefault("service.port", 8086)
	viper.SetDefault("service.shutdown_timeout", "30s")
	viper.SetDefault("service.log_level", "info")

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.database", "contextforge_development")
	viper.SetDefault("database.username", "contextforge")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_conns", 10)
	viper.SetDefault("database.max_idle_conns", 5)

	// Vector store defaults
	viper.SetDefault("vector.address", "localhost:19530")

	// Redis defaults
	viper.SetDefault("redis.address", "")
	viper.SetDefault("redis.database", 0)
	viper.SetDefault("redis.dial_timeout", "5s")
	viper.SetDefault("redis.pool_size", 10)

	// Embedding defaults
	viper.SetDefault("embedding.endpoint", "https://api.openai.com/v1")
	viper.SetDefault("embedding.model", "text-embedding-3-small")
	viper.SetDefault("embedding.dimensions", 1536)
	viper.SetDefault("embedding.batch_size", 100)
	viper.SetDefault("embedding.retry_attempts", 3)
	viper.SetDefault("embedding.retry_delay", "1s")
	viper.SetDefault("embedding.sub_batch_timeout", "30s")
	viper.SetDefault("embedding.rate_limit_rpm", 300)

	// Processing defaults
	viper.SetDefault("processing.chunk_size", 1000)
	viper.SetDefault("processing.chunk_overlap", 150)

	// Search defaults
	viper.SetDefault("search.vector_weight", 0.7)
	viper.SetDefault("search.text_weight", 0.3)
	viper.SetDefault("search.oversample", 2)
	viper.SetDefault("search.default_limit", 10)

	// Crawler defaults
	viper.SetDefault("crawler.max_pages", 100)
	viper.SetDefault("crawler.max_depth", 3)
	viper.SetDefault("crawler.error_threshold", 10)
	viper.SetDefault("crawler.fetch_timeout", "15s")
	viper.SetDefault("crawler.job_timeout", "30m")
	viper.SetDefault("crawler.requests_per_second", 4)
	viper.SetDefault("crawler.max_concurrent_jobs", 3)
	viper.SetDefault("crawler.user_agent", "contextforge-crawler/1.0")
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars() {
	viper.AutomaticEnv()

	// Service bindings
	_ = viper.BindEnv("service.port", "SERVICE_PORT")
	_ = viper.BindEnv("service.log_level", "LOG_LEVEL")

	// Database bindings
	_ = viper.BindEnv("database.host", "DATABASE_HOST")
	_ = viper.BindEnv("database.port", "DATABASE_PORT")
	_ = viper.BindEnv("database.database", "DATABASE_NAME")
	_ = viper.BindEnv("database.username", "DATABASE_USER")
	_ = viper.BindEnv("database.password", "DATABASE_PASSWORD")
	_ = viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	// Vector store bindings
	_ = viper.BindEnv("vector.address", "MILVUS_ADDR")

	// Redis bindings
	_ = viper.BindEnv("redis.address", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Embedding bindings
	_ = viper.BindEnv("embedding.endpoint", "EMBEDDING_ENDPOINT")
	_ = viper.BindEnv("embedding.api_key", "EMBEDDING_API_KEY")
	_ = viper.BindEnv("embedding.model", "EMBEDDING_MODEL")
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Service.Port <= 0 || cfg.Service.Port > 65535 {
		return fmt.Errorf("invalid service port: %d", cfg.Service.Port)
	}

	if cfg.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", cfg.Embedding.Dimensions)
	}

	if cfg.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding batch size must be positive, got %d", cfg.Embedding.BatchSize)
	}

	if cfg.Search.VectorWeight < 0 || cfg.Search.TextWeight < 0 {
		return fmt.Errorf("search weights must be non-negative")
	}

	if cfg.Search.Oversample < 2 {
		return fmt.Errorf("search oversample must be at least 2, got %d", cfg.Search.Oversample)
	}

	if cfg.Processing.ChunkOverlap >= cfg.Processing.ChunkSize {
		return fmt.Errorf("chunk overlap %d must be smaller than chunk size %d",
			cfg.Processing.ChunkOverlap, cfg.Processing.ChunkSize)
	}

	return nil
}
