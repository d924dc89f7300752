package common

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Store    StoreConfig
	Server   ServerConfig
	OCR      OCRConfig
	Classify ClassifyConfig
	Quota    QuotaConfig
	Pipeline PipelineConfig
}

// StoreConfig holds database-related configuration.
type StoreConfig struct {
	Driver           string
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr           string
	MaxUploadBytes int64
	Maintenance    bool
}

// OCRConfig selects and configures the text-extraction engine.
type OCRConfig struct {
	Engine          string // "tesseract" | "gemini"
	TesseractBinary string
	TesseractLang   string
	TessdataDir     string
	GeminiAPIKey    string
	GeminiModel     string
}

// ClassifyConfig configures the classification client.
type ClassifyConfig struct {
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	Timeout     time.Duration
}

// QuotaConfig configures the monthly submission guard.
type QuotaConfig struct {
	MonthlyLimit int
	FailOpen     bool
}

// PipelineConfig sizes the worker pool.
type PipelineConfig struct {
	Workers     int
	QueueSize   int
	TaskTimeout time.Duration
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Driver:           getEnv("DB_DRIVER", "sqlite"),
			DSN:              getEnv("DB_URL", "file:picdo.db"),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			Addr:           getEnv("HTTP_ADDR", ":8080"),
			MaxUploadBytes: int64(getEnvAsInt("MAX_UPLOAD_MB", 10)) << 20,
			Maintenance:    getEnvAsBool("MAINTENANCE_MODE", false),
		},
		OCR: OCRConfig{
			Engine:          getEnv("OCR_ENGINE", "tesseract"),
			TesseractBinary: getEnv("TESSERACT_BIN", "tesseract"),
			TesseractLang:   getEnv("TESSERACT_LANG", "eng"),
			TessdataDir:     getEnv("TESSDATA_PREFIX", ""),
			GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
			GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		},
		Classify: ClassifyConfig{
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", ""),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
		},
		Quota: QuotaConfig{
			MonthlyLimit: getEnvAsInt("MONTHLY_JOB_LIMIT", 50),
			FailOpen:     getEnvAsBool("QUOTA_FAIL_OPEN", true),
		},
		Pipeline: PipelineConfig{
			Workers:     getEnvAsInt("PIPELINE_WORKERS", 4),
			QueueSize:   getEnvAsInt("PIPELINE_QUEUE_SIZE", 256),
			TaskTimeout: getEnvAsDuration("PIPELINE_TASK_TIMEOUT", 3*time.Minute),
		},
	}
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
		return fmt.Errorf("config: unknown DB_DRIVER %q", c.Store.Driver)
	}
	if c.Classify.APIKey == "" {
		return fmt.Errorf("config: OPENAI_API_KEY is required")
	}
	if c.OCR.Engine == "gemini" && c.OCR.GeminiAPIKey == "" {
		return fmt.Errorf("config: GEMINI_API_KEY is required for OCR_ENGINE=gemini")
	}
	return nil
}

// Helper functions for environment variable parsing.
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

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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
