package common

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/joseph-ayodele/invoice-ledger/constants"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Watch    WatchConfig
	Pipeline PipelineConfig
	LLM      LLMConfig
	Export   ExportConfig
	Server   ServerConfig
	Log      LogConfig
}

// DatabaseConfig holds ledger storage configuration
type DatabaseConfig struct {
	Driver           string // sqlite | postgres
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
	HealthTimeout    time.Duration
}

// WatchConfig holds watched-folder configuration
type WatchConfig struct {
	Dir         string
	Extensions  map[string]struct{}
	SettleDelay time.Duration
	Reconcile   bool // scan the folder once at startup to pick up files missed while stopped
}

// PipelineConfig holds orchestration configuration
type PipelineConfig struct {
	Workers        int
	QueueSize      int
	ExtractTimeout time.Duration
	ProcessTimeout time.Duration
	Identity       constants.IdentityStrategy
}

// LLMConfig holds extractor configuration
type LLMConfig struct {
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	Timeout     time.Duration
}

// ExportConfig holds export configuration
type ExportConfig struct {
	CSVPath string
}

// ServerConfig holds daemon health-endpoint configuration
type ServerConfig struct {
	GRPCAddr string
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string
	Format string // text | json | zap
}

// LoadConfig loads .env (when present) and then configuration from environment variables
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", "error", err)
	}
	return &Config{
		Database: DatabaseConfig{
			Driver:           getEnv("DB_DRIVER", "sqlite"),
			DSN:              getEnv("DB_URL", "data/invoices.db"),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 1),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
			HealthTimeout:    getEnvAsDuration("DB_HEALTH_TIMEOUT", 5*time.Second),
		},
		Watch: WatchConfig{
			Dir:         getEnv("WATCH_FOLDER", "./facturas_input"),
			Extensions:  constants.ParseExtensions(getEnv("WATCH_EXTENSIONS", "")),
			SettleDelay: getEnvAsDuration("WATCH_SETTLE_DELAY", 2*time.Second),
			Reconcile:   getEnvAsBool("WATCH_RECONCILE", true),
		},
		Pipeline: PipelineConfig{
			Workers:        getEnvAsInt("PIPELINE_WORKERS", 4),
			QueueSize:      getEnvAsInt("PIPELINE_QUEUE_SIZE", 256),
			ExtractTimeout: getEnvAsDuration("EXTRACT_TIMEOUT", 60*time.Second),
			ProcessTimeout: getEnvAsDuration("PROCESS_TIMEOUT", 3*time.Minute),
			Identity:       constants.IdentityStrategy(getEnv("DOCUMENT_IDENTITY", string(constants.IdentityFilename))),
		},
		LLM: LLMConfig{
			Model:       getEnv("OPENAI_MODEL", "gpt-4o"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
		},
		Export: ExportConfig{
			CSVPath: getEnv("EXPORT_CSV_PATH", "output/facturas.csv"),
		},
		Server: ServerConfig{
			GRPCAddr: getEnv("GRPC_ADDR", ":8080"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
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

// NormalizeDriver maps DB_DRIVER spellings (sqlite, sqlite3, postgres, pgx) onto
// "sqlite" or "postgres"; blank means sqlite. Unknown drivers yield "".
func NormalizeDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3", "":
		return "sqlite"
	case "postgres", "postgresql", "pgx":
		return "postgres"
	default:
		return ""
	}
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if NormalizeDriver(c.Database.Driver) == "" {
		return NewAppError("CONFIG_ERROR", "DB_DRIVER must be sqlite or postgres", ErrConfig)
	}
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrConfig)
	}
	if c.Pipeline.Workers <= 0 {
		return NewAppError("CONFIG_ERROR", "PIPELINE_WORKERS must be positive", ErrConfig)
	}
	if c.Pipeline.ExtractTimeout <= 0 {
		return NewAppError("CONFIG_ERROR", "EXTRACT_TIMEOUT must be positive", ErrConfig)
	}
	switch c.Pipeline.Identity {
	case constants.IdentityFilename, constants.IdentityContentHash:
	default:
		return NewAppError("CONFIG_ERROR", "DOCUMENT_IDENTITY must be filename or content-hash", ErrConfig)
	}
	return nil
}

// RequireLLM validates the settings needed by binaries that call the extractor
func (c *Config) RequireLLM() error {
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrConfig)
	}
	return nil
}
