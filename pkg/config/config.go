// pkg/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Supported data platform selectors for the DATA_PLATFORM variable.
const (
	PlatformBigQuery  = "bigquery"
	PlatformSnowflake = "snowflake"
)

// Config represents the application configuration
type Config struct {
	// Platform selection
	DataPlatform string

	// Persistence
	DatabaseURL string

	// Governance
	PolicyTagID string

	// Dataset filtering. If IncludeDatasets is non-empty it is authoritative:
	// only listed datasets are scanned, further narrowed by ExcludeDatasets.
	IncludeDatasets []string
	ExcludeDatasets []string

	// Classification
	GeminiAPIKey              string
	ClassifyModel             string
	ClassifyRequestsPerMinute int

	// Sampling
	SampleRowLimit int

	// HTTP
	ListenAddr string

	// Logging
	LogLevel  string
	LogFormat string

	// Per-platform connection parameters
	BigQuery  *BigQueryConfig
	Snowflake *SnowflakeConfig
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DataPlatform: os.Getenv("DATA_PLATFORM"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		PolicyTagID:  os.Getenv("PII_POLICY_TAG_ID"),
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),

		IncludeDatasets: getEnvAsStringSlice("INCLUDE_DATASET_NAMES", nil),
		ExcludeDatasets: getEnvAsStringSlice("EXCLUDE_DATASET_NAMES", nil),

		ClassifyModel:             getEnv("CLASSIFY_MODEL", "gemini-2.0-flash"),
		ClassifyRequestsPerMinute: getEnvAsInt("CLASSIFY_REQUESTS_PER_MINUTE", 60),
		SampleRowLimit:            getEnvAsInt("SAMPLE_ROW_LIMIT", 10),
		ListenAddr:                getEnv("LISTEN_ADDR", ":8080"),
		LogLevel:                  getEnv("LOG_LEVEL", "info"),
		LogFormat:                 getEnv("LOG_FORMAT", "json"),
	}

	switch cfg.DataPlatform {
	case PlatformBigQuery:
		bqConfig, err := LoadBigQueryConfig()
		if err != nil {
			return nil, errors.New("failed to load BigQuery configuration: " + err.Error())
		}
		cfg.BigQuery = bqConfig
	case PlatformSnowflake:
		snowConfig, err := LoadSnowflakeConfig()
		if err != nil {
			return nil, errors.New("failed to load Snowflake configuration: " + err.Error())
		}
		cfg.Snowflake = snowConfig
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all required configuration is present and valid
func (c *Config) Validate() error {
	if c.DataPlatform == "" {
		return errors.New("DATA_PLATFORM environment variable is required")
	}

	if c.DataPlatform != PlatformBigQuery && c.DataPlatform != PlatformSnowflake {
		return fmt.Errorf("unsupported data platform: %s", c.DataPlatform)
	}

	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	if c.PolicyTagID == "" {
		return errors.New("PII_POLICY_TAG_ID environment variable is required")
	}

	if c.GeminiAPIKey == "" {
		return errors.New("GEMINI_API_KEY environment variable is required")
	}

	if c.ClassifyRequestsPerMinute <= 0 {
		return errors.New("classification request rate must be positive")
	}

	if c.SampleRowLimit <= 0 {
		return errors.New("sample row limit must be positive")
	}

	return nil
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsStringSlice parses a comma-separated environment variable
func getEnvAsStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var result []string
	for _, v := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}

	return result
}
