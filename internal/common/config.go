package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	JobStore JobStoreConfig
	Export   ExportConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr string
	// APIKeys maps tokens to caller grants, parsed from API_KEYS.
	// Format: token:caller:minPrivacyLevel[:type1|type2],token2:...
	// An empty value disables authentication (every caller is "anonymous"
	// with a strict privacy floor).
	APIKeys string
}

// JobStoreConfig selects the export job registry backend.
type JobStoreConfig struct {
	// Driver is one of memory, sqlite, postgres.
	Driver string
	// DSN is the sqlite file path or postgres connection string.
	DSN              string
	MaxConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ExportConfig holds pipeline and artifact configuration.
type ExportConfig struct {
	ArtifactDir       string
	DataDBPath        string
	ChunkSize         int
	MaxJobsPerCaller  int
	JobTimeout        time.Duration
	ArtifactRetention time.Duration
	JanitorInterval   time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
			APIKeys:  getEnv("API_KEYS", ""),
		},
		JobStore: JobStoreConfig{
			Driver:           getEnv("JOB_STORE", "memory"),
			DSN:              getEnv("JOB_STORE_DSN", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 10),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Export: ExportConfig{
			ArtifactDir:       getEnv("ARTIFACT_DIR", "./exports"),
			DataDBPath:        getEnv("DATA_DB_PATH", "./data.db"),
			ChunkSize:         getEnvAsInt("CHUNK_SIZE", 1000),
			MaxJobsPerCaller:  getEnvAsInt("MAX_JOBS_PER_CALLER", 3),
			JobTimeout:        getEnvAsDuration("JOB_TIMEOUT", 10*time.Minute),
			ArtifactRetention: getEnvAsDuration("EXPORT_RETENTION", 24*time.Hour),
			JanitorInterval:   getEnvAsDuration("JANITOR_INTERVAL", 15*time.Minute),
		},
	}
}

// Helper functions for environment variable parsing
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

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// ValidateConfig validates the loaded configuration
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrValidation)
	}
	switch c.JobStore.Driver {
	case "memory":
	case "sqlite", "postgres":
		if c.JobStore.DSN == "" {
			return NewAppError("CONFIG_ERROR", "JOB_STORE_DSN is required for "+c.JobStore.Driver, ErrValidation)
		}
	default:
		return NewAppError("CONFIG_ERROR", "JOB_STORE must be memory, sqlite or postgres", ErrValidation)
	}
	if c.Export.ArtifactDir == "" {
		return NewAppError("CONFIG_ERROR", "ARTIFACT_DIR is required", ErrValidation)
	}
	if c.Export.ChunkSize <= 0 {
		return NewAppError("CONFIG_ERROR", "CHUNK_SIZE must be positive", ErrValidation)
	}
	if c.Export.MaxJobsPerCaller <= 0 {
		return NewAppError("CONFIG_ERROR", "MAX_JOBS_PER_CALLER must be positive", ErrValidation)
	}
	return nil
}
