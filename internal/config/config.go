// Package config provides configuration loading and validation for the
// briefcast services. It uses koanf to merge environment variables with
// optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values shared by the API server and
// the batch scoring worker.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Backing stores
	DatabaseURL string `koanf:"database_url"`
	RedisURL    string `koanf:"redis_url"`

	// Relevance oracle
	OpenAIAPIKey      string `koanf:"openai_api_key"`
	OpenAIModel       string `koanf:"openai_model"`
	OracleEnabled     bool   `koanf:"oracle_enabled"`
	OracleConcurrency int    `koanf:"oracle_concurrency"`
	OracleHealthURL   string `koanf:"oracle_health_url"`

	// Batch scoring
	ChunkSize        int `koanf:"chunk_size"`
	JobTTLMinutes    int `koanf:"job_ttl_minutes"`
	ResultTTLMinutes int `koanf:"result_ttl_minutes"`

	// Tracing
	TracingEnabled      bool    `koanf:"tracing_enabled"`
	TracingExporter     string  `koanf:"tracing_exporter"`
	TracingEndpoint     string  `koanf:"tracing_endpoint"`
	TracingSamplingRate float64 `koanf:"tracing_sampling_rate"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL  = errors.New("DATABASE_URL is required")
	ErrMissingRedisURL     = errors.New("REDIS_URL is required")
	ErrMissingOpenAIAPIKey = errors.New("OPENAI_API_KEY is required when the oracle is enabled")
	ErrInvalidPort         = errors.New("PORT must be a valid integer")
	ErrInvalidChunkSize    = errors.New("CHUNK_SIZE must be > 0")
	ErrInvalidConcurrency  = errors.New("ORACLE_CONCURRENCY must be > 0")
)

// Default values for non-secret configuration.
const (
	DefaultPort              = 8080
	DefaultEnv               = "development"
	DefaultOpenAIModel       = "gpt-4o-mini"
	DefaultOracleConcurrency = 5
	DefaultOracleHealthURL   = "https://api.openai.com/v1/models"
	DefaultChunkSize         = 20
	DefaultJobTTLMinutes     = 30
	DefaultResultTTLMinutes  = 120
	DefaultTracingExporter   = "otlp-http"
	DefaultTracingSampling   = 0.1
)

// Load reads configuration from environment variables and an optional
// config file. Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if
// valid). If a config file path is provided and the file cannot be
// loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	port, err := getEnvIntOrDefault("PORT", k.Int("port"), DefaultPort, ErrInvalidPort)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	chunkSize, err := getEnvIntOrDefault("CHUNK_SIZE", k.Int("chunk_size"), DefaultChunkSize, ErrInvalidChunkSize)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	concurrency, err := getEnvIntOrDefault("ORACLE_CONCURRENCY", k.Int("oracle_concurrency"), DefaultOracleConcurrency, ErrInvalidConcurrency)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	jobTTL, err := getEnvIntOrDefault("JOB_TTL_MINUTES", k.Int("job_ttl_minutes"), DefaultJobTTLMinutes, nil)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	resultTTL, err := getEnvIntOrDefault("RESULT_TTL_MINUTES", k.Int("result_ttl_minutes"), DefaultResultTTLMinutes, nil)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	samplingRate, err := getEnvFloatOrDefault("TRACING_SAMPLING_RATE", k.Float64("tracing_sampling_rate"), DefaultTracingSampling)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}

	cfg := &Config{
		Port:                port,
		Env:                 getEnvOrDefault("ENV", k.String("env"), DefaultEnv),
		DatabaseURL:         getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisURL:            getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		OpenAIAPIKey:        getEnvOrKoanf("OPENAI_API_KEY", k, "openai_api_key"),
		OpenAIModel:         getEnvOrDefault("OPENAI_MODEL", k.String("openai_model"), DefaultOpenAIModel),
		OracleEnabled:       getEnvBoolOrDefault("ORACLE_ENABLED", k, "oracle_enabled", true),
		OracleConcurrency:   concurrency,
		OracleHealthURL:     getEnvOrDefault("ORACLE_HEALTH_URL", k.String("oracle_health_url"), DefaultOracleHealthURL),
		ChunkSize:           chunkSize,
		JobTTLMinutes:       jobTTL,
		ResultTTLMinutes:    resultTTL,
		TracingEnabled:      getEnvBoolOrDefault("TRACING_ENABLED", k, "tracing_enabled", false),
		TracingExporter:     getEnvOrDefault("TRACING_EXPORTER", k.String("tracing_exporter"), DefaultTracingExporter),
		TracingEndpoint:     getEnvOrKoanf("TRACING_ENDPOINT", k, "tracing_endpoint"),
		TracingSamplingRate: samplingRate,
	}

	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefault returns the environment variable value if set, otherwise the koanf value, or default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvBoolOrDefault returns the environment variable as bool if set,
// otherwise the koanf value, or default.
func getEnvBoolOrDefault(envKey string, k *koanf.Koanf, koanfKey string, defaultVal bool) bool {
	if val := os.Getenv(envKey); val != "" {
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	if k.Exists(koanfKey) {
		return k.Bool(koanfKey)
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set,
// otherwise the koanf value, or default. Returns an error wrapping
// wrapErr (when given) if the environment variable is set but cannot
// be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int, wrapErr error) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			if wrapErr != nil {
				return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, wrapErr)
			}
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, err)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvFloatOrDefault returns the environment variable as float64 if set, otherwise the koanf value, or default.
func getEnvFloatOrDefault(envKey string, koanfVal float64, defaultVal float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid float: %w", envKey, err)
		}
		return f, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.RedisURL == "" {
		errs = append(errs, ErrMissingRedisURL)
	}
	if c.OracleEnabled && c.OpenAIAPIKey == "" {
		errs = append(errs, ErrMissingOpenAIAPIKey)
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, ErrInvalidChunkSize)
	}
	if c.OracleConcurrency <= 0 {
		errs = append(errs, ErrInvalidConcurrency)
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for
// logging. All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                  fmt.Sprintf("%d", c.Port),
		"env":                   c.Env,
		"database_url":          maskConnectionURL(c.DatabaseURL),
		"redis_url":             maskConnectionURL(c.RedisURL),
		"openai_api_key":        maskSecret(c.OpenAIAPIKey),
		"openai_model":          c.OpenAIModel,
		"oracle_enabled":        fmt.Sprintf("%t", c.OracleEnabled),
		"oracle_concurrency":    fmt.Sprintf("%d", c.OracleConcurrency),
		"oracle_health_url":     c.OracleHealthURL,
		"chunk_size":            fmt.Sprintf("%d", c.ChunkSize),
		"job_ttl_minutes":       fmt.Sprintf("%d", c.JobTTLMinutes),
		"result_ttl_minutes":    fmt.Sprintf("%d", c.ResultTTLMinutes),
		"tracing_enabled":       fmt.Sprintf("%t", c.TracingEnabled),
		"tracing_exporter":      c.TracingExporter,
		"tracing_endpoint":      c.TracingEndpoint,
		"tracing_sampling_rate": fmt.Sprintf("%g", c.TracingSamplingRate),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters
// followed by ****. If the secret is shorter than 8 characters, it's
// fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskConnectionURL masks the password in a connection URL.
func maskConnectionURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}

// JobTTL returns the in-progress job retention window as a duration.
func (c *Config) JobTTL() time.Duration {
	return time.Duration(c.JobTTLMinutes) * time.Minute
}

// ResultTTL returns the completed-result retention window as a duration.
func (c *Config) ResultTTL() time.Duration {
	return time.Duration(c.ResultTTLMinutes) * time.Minute
}
