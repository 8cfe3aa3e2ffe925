package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultPredictionBaseURL is the hosted prediction backend.
	DefaultPredictionBaseURL = "https://hospital-readmission-backend-api-e5fsevbxggfhdxbr.southindia-01.azurewebsites.net"

	// staticSiteHost marks a base URL that points at the front-end host
	// rather than the prediction API; such values are ignored.
	staticSiteHost = "azurestaticapps.net"
)

// DefaultFallbackURLs are tried, in order, after the primary base URL.
var DefaultFallbackURLs = []string{
	DefaultPredictionBaseURL,
	"http://127.0.0.1:8000",
	"http://localhost:8000",
}

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Prediction PredictionConfig
	Auth       AuthConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	OTEL       OTELConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host           string
	Port           int
	Env            string
	AllowedOrigins []string
}

// PredictionConfig describes how the remote explanation service is reached.
type PredictionConfig struct {
	BaseURL          string
	FallbackURLs     []string
	RequestTimeout   time.Duration
	HealthTimeout    time.Duration
	ProbeSchedule    string
	SampleDataSource string
	CacheTTLSeconds  int
	CacheSize        int // entries kept by the in-process cache when Redis is off
	AliasFile        string
}

// AuthConfig selects the authentication capability.
type AuthConfig struct {
	Mode       string // "jwt" or "development"
	SigningKey string
	Issuer     string
	Audience   string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			Env:            getEnv("APP_ENV", "development"),
			AllowedOrigins: getEnvAsSlice("ALLOWED_ORIGINS", []string{"*"}),
		},
		Prediction: PredictionConfig{
			BaseURL:          resolveBaseURL(os.Getenv("PREDICTION_API_BASE")),
			FallbackURLs:     getEnvAsSlice("PREDICTION_FALLBACK_URLS", DefaultFallbackURLs),
			RequestTimeout:   getEnvAsDuration("PREDICTION_REQUEST_TIMEOUT", 30*time.Second),
			HealthTimeout:    getEnvAsDuration("PREDICTION_HEALTH_TIMEOUT", 5*time.Second),
			ProbeSchedule:    getEnv("PREDICTION_PROBE_SCHEDULE", ""),
			SampleDataSource: getEnv("SAMPLE_DATA_SOURCE", ""),
			CacheTTLSeconds:  getEnvAsInt("PREDICTION_CACHE_TTL", 0),
			CacheSize:        getEnvAsInt("PREDICTION_CACHE_SIZE", 1024),
			AliasFile:        getEnv("NORMALIZER_ALIAS_FILE", ""),
		},
		Auth: AuthConfig{
			Mode:       getEnv("AUTH_MODE", "development"),
			SigningKey: getEnv("AUTH_SIGNING_KEY", ""),
			Issuer:     getEnv("AUTH_ISSUER", ""),
			Audience:   getEnv("AUTH_AUDIENCE", ""),
		},
		Database: DatabaseConfig{
			Enabled:  getEnvAsBool("DB_ENABLED", false),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "readmission_dashboard"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "readmission-dashboard"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Auth.Mode {
	case "development":
	case "jwt":
		if c.Auth.SigningKey == "" {
			return fmt.Errorf("AUTH_SIGNING_KEY is required when AUTH_MODE=jwt")
		}
	default:
		return fmt.Errorf("unknown AUTH_MODE %q (expected jwt or development)", c.Auth.Mode)
	}
	if c.Prediction.RequestTimeout <= 0 {
		return fmt.Errorf("PREDICTION_REQUEST_TIMEOUT must be positive")
	}
	if c.Prediction.HealthTimeout <= 0 {
		return fmt.Errorf("PREDICTION_HEALTH_TIMEOUT must be positive")
	}
	return nil
}

// Candidates returns the ordered failover list: the base URL followed by
// the fallbacks, with duplicates removed keeping the first occurrence.
func (c *PredictionConfig) Candidates() []string {
	all := make([]string, 0, len(c.FallbackURLs)+1)
	all = append(all, c.BaseURL)
	all = append(all, c.FallbackURLs...)
	return DedupeURLs(all)
}

// DedupeURLs trims trailing slashes, drops blanks and removes duplicates
// while preserving the order of first occurrence.
func DedupeURLs(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimRight(strings.TrimSpace(u), "/")
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func resolveBaseURL(value string) string {
	if value != "" && !strings.Contains(value, staticSiteHost) {
		return value
	}
	return DefaultPredictionBaseURL
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return append([]string(nil), defaultValue...)
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
