package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Storage       StorageConfig
	Observability ObservabilityConfig
	Engine        EngineConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	RateLimitPerSecond int
	RateLimitBurst     int
	MaxUploadBytes     int64
	AllowedOrigins     []string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

type StorageConfig struct {
	LocalPath string
	// SearchIndexPath keeps the counterparty index on disk; empty means in memory.
	SearchIndexPath string
}

type ObservabilityConfig struct {
	MetricsEnabled bool
	LogLevel       string
}

// EngineConfig tunes the import and posting pipeline.
type EngineConfig struct {
	HeaderScanRows      int           `envconfig:"HEADER_SCAN_ROWS" default:"20"`
	ProfileSimilarity   float64       `envconfig:"PROFILE_SIMILARITY" default:"0.70"`
	ProposalConfidence  float64       `envconfig:"PROPOSAL_CONFIDENCE" default:"0.7"`
	Workers             int           `envconfig:"WORKERS" default:"4"`
	PreferReference     bool          `envconfig:"DEDUPE_PREFER_REFERENCE" default:"true"`
	DefaultCurrency     string        `envconfig:"DEFAULT_CURRENCY" default:"INR"`
	RulesFile           string        `envconfig:"RULES_FILE"`
	CounterpartySeed    string        `envconfig:"COUNTERPARTY_SEED"`
	SuggestionLimit     int           `envconfig:"SUGGESTION_LIMIT" default:"5"`
	SuggestionThreshold float64       `envconfig:"SUGGESTION_THRESHOLD" default:"50"`
	AutoPostEnabled     bool          `envconfig:"AUTO_POST_ENABLED" default:"false"`
	AutoPostConfidence  float64       `envconfig:"AUTO_POST_CONFIDENCE" default:"100"`
	AutoPostSchedule    string        `envconfig:"AUTO_POST_SCHEDULE" default:"*/15 * * * *"`
	AutoPostBatchSize   int           `envconfig:"AUTO_POST_BATCH_SIZE" default:"200"`
	AutoPostTimeout     time.Duration `envconfig:"AUTO_POST_TIMEOUT" default:"10m"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	engine, err := LoadEngine()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:               getEnv("SERVER_HOST", "localhost"),
			Port:               getEnvAsInt("SERVER_PORT", 8080),
			RateLimitPerSecond: getEnvAsInt("SERVER_RATE_LIMIT_PER_SECOND", 10),
			RateLimitBurst:     getEnvAsInt("SERVER_RATE_LIMIT_BURST", 20),
			MaxUploadBytes:     int64(getEnvAsInt("SERVER_MAX_UPLOAD_MB", 20)) << 20,
			AllowedOrigins:     []string{getEnv("CORS_ALLOWED_ORIGIN", "http://localhost:3000")},
		},
		Database: DatabaseConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvAsInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", "postgres"),
			Database: getEnv("POSTGRES_DB", "reconciler"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
		Storage: StorageConfig{
			LocalPath:       getEnv("STORAGE_LOCAL_PATH", "./uploads"),
			SearchIndexPath: getEnv("SEARCH_INDEX_PATH", ""),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
		},
		Engine: *engine,
	}

	return cfg, nil
}

// LoadEngine reads the RECONCILE_* variables.
func LoadEngine() (*EngineConfig, error) {
	var cfg EngineConfig
	if err := envconfig.Process("reconcile", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process engine config: %w", err)
	}
	if cfg.ProfileSimilarity <= 0 || cfg.ProfileSimilarity > 1 {
		return nil, fmt.Errorf("RECONCILE_PROFILE_SIMILARITY must be in (0, 1], got %v", cfg.ProfileSimilarity)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &cfg, nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
