package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment string           `mapstructure:"environment"`
	Server      ServerConfig     `mapstructure:"server"`
	Logging     LoggingConfig    `mapstructure:"logging"`
	Assessment  AssessmentConfig `mapstructure:"assessment"`
	Reasoning   ReasoningConfig  `mapstructure:"reasoning"`
	Cache       CacheConfig      `mapstructure:"cache"`
	Store       StoreConfig      `mapstructure:"store"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Report      ReportConfig     `mapstructure:"report"`
	Catalogue   CatalogueConfig  `mapstructure:"catalogue"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// AssessmentConfig holds the questioning policy constants.
type AssessmentConfig struct {
	MinQuestions     int           `mapstructure:"min_questions"`
	MaxQuestions     int           `mapstructure:"max_questions"`
	ReasoningTimeout time.Duration `mapstructure:"reasoning_timeout"`
	SessionTTL       time.Duration `mapstructure:"session_ttl"`
	CompletedTTL     time.Duration `mapstructure:"completed_ttl"`
	DefaultLocale    string        `mapstructure:"default_locale"`
}

// ReasoningConfig configures the OpenAI-compatible reasoning service.
type ReasoningConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	Temperature  float32       `mapstructure:"temperature"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	RateLimit    float64       `mapstructure:"rate_limit"`
	RateBurst    int           `mapstructure:"rate_burst"`
	Breaker      BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig configures the circuit breaker around the reasoning service.
type BreakerConfig struct {
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

// CacheConfig represents reasoning verdict cache configuration
type CacheConfig struct {
	LRUSize  int           `mapstructure:"lru_size"`
	TTL      time.Duration `mapstructure:"ttl"`
	RedisURL string        `mapstructure:"redis_url"`
}

// StoreConfig selects the append-only assessment store.
type StoreConfig struct {
	Driver      string `mapstructure:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// DatabaseConfig represents the PostgreSQL audit trail connection
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	MigrateOnStart  bool          `mapstructure:"migrate_on_start"`
}

// ReportConfig configures PDF rendering.
type ReportConfig struct {
	FontPath  string `mapstructure:"font_path"`
	OutputDir string `mapstructure:"output_dir"`
}

// CatalogueConfig optionally overrides the embedded catalogues.
type CatalogueConfig struct {
	RulesFile     string `mapstructure:"rules_file"`
	QuestionsFile string `mapstructure:"questions_file"`
}
