package common

import (
	"os"
	"strconv"
	"time"

	"github.com/joseph-ayodele/docproc/constants"
)

// Config holds all application configuration
type Config struct {
	Server ServerConfig
	Store  StoreConfig
	Queue  QueueConfig
	OCR    OCRConfig
	Upload UploadConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr   string
	APIKey string
}

// StoreConfig holds document-store configuration. Driver is "sqlite"
// (default) or "postgres".
type StoreConfig struct {
	Driver          string
	SQLitePath      string
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// QueueConfig holds job-queue configuration
type QueueConfig struct {
	Workers      int
	MaxAttempts  int
	BackoffDelay time.Duration
	BackoffMult  float64
	PollInterval time.Duration
}

// OCRConfig holds OCR-simulation configuration
type OCRConfig struct {
	ConfidenceThreshold float32
	SimulatedLatency    time.Duration
}

// UploadConfig holds upload-handling configuration
type UploadConfig struct {
	Dir             string
	MaxFileSize     int64
	RemoveOnSuccess bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:   getEnv("HTTP_ADDR", ":3000"),
			APIKey: getEnv("API_KEY", ""),
		},
		Store: StoreConfig{
			Driver:          getEnv("DB_DRIVER", "sqlite"),
			SQLitePath:      getEnv("SQLITE_PATH", "./docproc.db"),
			DSN:             getEnv("DB_URL", ""),
			MaxConns:        getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:        getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:     getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		Queue: QueueConfig{
			Workers:      getEnvAsInt("QUEUE_WORKERS", 4),
			MaxAttempts:  getEnvAsInt("QUEUE_MAX_ATTEMPTS", constants.DefaultMaxAttempts),
			BackoffDelay: getEnvAsDuration("QUEUE_BACKOFF_DELAY", 3*time.Second),
			BackoffMult:  getEnvAsFloat64("QUEUE_BACKOFF_MULTIPLIER", constants.DefaultBackoffMultiplier),
			PollInterval: getEnvAsDuration("QUEUE_POLL_INTERVAL", 250*time.Millisecond),
		},
		OCR: OCRConfig{
			ConfidenceThreshold: getEnvAsFloat32("OCR_CONFIDENCE_THRESHOLD", constants.OCRConfidenceThreshold),
			SimulatedLatency:    getEnvAsDuration("OCR_SIMULATED_LATENCY", 500*time.Millisecond),
		},
		Upload: UploadConfig{
			Dir:             getEnv("UPLOAD_DIR", "./uploads"),
			MaxFileSize:     getEnvAsInt64("UPLOAD_MAX_FILE_SIZE", constants.FileSizeLimit),
			RemoveOnSuccess: getEnvAsBool("UPLOAD_REMOVE_ON_SUCCESS", false),
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

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
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
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Store.Driver == "postgres" && c.Store.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required when DB_DRIVER=postgres", ErrInvalidInput)
	}
	if c.Queue.MaxAttempts < 1 {
		return NewAppError("CONFIG_ERROR", "QUEUE_MAX_ATTEMPTS must be at least 1", ErrInvalidInput)
	}
	if c.Queue.BackoffMult < 1 {
		return NewAppError("CONFIG_ERROR", "QUEUE_BACKOFF_MULTIPLIER must be at least 1", ErrInvalidInput)
	}
	return nil
}
