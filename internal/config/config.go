package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap" // Use logger for loading errors
)

// Table store backends selectable with TABLE_STORE_BACKEND.
const (
	BackendAzure  = "azure"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Row key strategies selectable with ROW_KEY_STRATEGY.
const (
	RowKeysRandom   = "random"
	RowKeysSequence = "sequence"
)

// ErrInvalidConfig wraps every validation failure of LoadConfig.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all configuration for the application
type Config struct {
	AppEnv                       string
	Port                         string
	CORSAllowOrigins             string
	CORSAllowMethods             string
	CORSAllowHeaders             string
	JWTSecret                    string
	AdminUsername                string
	AdminPasswordHash            string // bcrypt
	TableStoreBackend            string
	TableStorageConnectionString string
	TableStorageTableName        string
	NodeName                     string // partition key of entries logged by this process
	RowKeyStrategy               string
	SQLiteDBPath                 string
	LogFilePath                  string
	LogLevel                     string
	LogRotateInterval            int // Hour
	LogMaxSize                   int // MB
	LogMaxBackups                int
	LogMaxAge                    int // Days
	LogCompress                  bool
	TableLogEnabled              bool
	TableLogLevel                string
	LogBatchInterval             time.Duration
	LogProcessorBatchSize        int // Records per flush
	SyslogEnabled                bool
	SyslogUDPPort                int
}

// LoadConfig reads configuration from environment variables or .env file
func LoadConfig(logger *zap.Logger) (*Config, error) { // logger can be nil here
	appEnv := os.Getenv("APP_ENV")
	if appEnv == "" {
		appEnv = "local"
	}

	envFileName := fmt.Sprintf(".env.%s", appEnv)
	if _, err := os.Stat(envFileName); err == nil {
		if err := godotenv.Load(envFileName); err != nil {
			if logger != nil {
				logger.Warn("Error loading .env file, continuing with environment variables", zap.String("file", envFileName), zap.Error(err))
			}
		} else if logger != nil {
			logger.Info("Loaded configuration", zap.String("file", envFileName))
		}
	} else if logger != nil {
		logger.Warn("No specific .env file found for environment, relying on environment variables or defaults", zap.String("environment", appEnv))
	}

	cfg := &Config{
		AppEnv:            getEnv("APP_ENV", "local"),
		Port:              getEnv("PORT", "3000"),
		JWTSecret:         getEnv("JWT_SECRET", "default-secret"),
		AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),

		// --- Table Store Settings ---
		TableStoreBackend:            strings.ToLower(getEnv("TABLE_STORE_BACKEND", BackendSQLite)),
		TableStorageConnectionString: getEnv("TABLE_STORAGE_CONNECTION_STRING", ""),
		TableStorageTableName:        getEnv("TABLE_STORAGE_TABLE_NAME", "logs"),
		NodeName:                     getEnv("NODE_NAME", defaultNodeName()),
		RowKeyStrategy:               strings.ToLower(getEnv("ROW_KEY_STRATEGY", RowKeysRandom)),
		SQLiteDBPath:                 getEnv("SQLITE_DB_PATH", "./data/tables.db"),

		LogFilePath:       getEnv("LOG_FILE_PATH", "./logs/app.log"),
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogRotateInterval: getEnvAsInt("LOG_ROTATE_INTERVAL", 1),
		LogMaxSize:        getEnvAsInt("LOG_MAX_SIZE", 100),
		LogMaxBackups:     getEnvAsInt("LOG_MAX_BACKUPS", 5),
		LogMaxAge:         getEnvAsInt("LOG_MAX_AGE", 30),
		LogCompress:       getEnvAsBool("LOG_COMPRESS", false),
		TableLogEnabled:   getEnvAsBool("TABLE_LOG_ENABLED", true),
		TableLogLevel:     strings.ToLower(getEnv("TABLE_LOG_LEVEL", "info")),

		// --- Load CORS Settings ---
		CORSAllowOrigins: getEnv("CORS_ALLOW_ORIGINS", func() string {
			if getEnv("APP_ENV", "local") == "local" || getEnv("APP_ENV", "local") == "development" {
				return "*" // Be permissive in local/dev
			}
			return "" // Force setting in prod/other envs
		}()),
		CORSAllowMethods: getEnv("CORS_ALLOW_METHODS", "GET,POST,HEAD,DELETE"),
		CORSAllowHeaders: getEnv("CORS_ALLOW_HEADERS", "Origin,Content-Type,Accept,Authorization,If-Match"),

		LogProcessorBatchSize: getEnvAsInt("LOG_PROCESSOR_BATCH_SIZE", 100),
		SyslogEnabled:         getEnvAsBool("SYSLOG_ENABLED", false),
		SyslogUDPPort:         getEnvAsInt("SYSLOG_UDP_PORT", 5514),
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "dpanic": true, "panic": true, "fatal": true}
	if !validLevels[cfg.LogLevel] {
		if logger != nil {
			logger.Warn("Invalid LOG_LEVEL specified, defaulting to 'info'", zap.String("invalidLevel", cfg.LogLevel))
		}
		cfg.LogLevel = "info"
	}
	if !validLevels[cfg.TableLogLevel] {
		if logger != nil {
			logger.Warn("Invalid TABLE_LOG_LEVEL specified, defaulting to 'info'", zap.String("invalidLevel", cfg.TableLogLevel))
		}
		cfg.TableLogLevel = "info"
	}

	batchIntervalSec := getEnvAsInt("LOG_BATCH_INTERVAL_SECONDS", 5)
	if batchIntervalSec <= 0 {
		batchIntervalSec = 5
	}
	cfg.LogBatchInterval = time.Duration(batchIntervalSec) * time.Second
	if cfg.LogProcessorBatchSize <= 0 {
		cfg.LogProcessorBatchSize = 100
	}

	if err := cfg.validate(); err != nil {
		if logger != nil {
			logger.Error("Configuration rejected", zap.Error(err))
		}
		return nil, err
	}

	if cfg.JWTSecret == "default-secret" && logger != nil {
		logger.Warn("JWT_SECRET is using the default value. Please set a strong secret in production.")
	}
	if cfg.AdminPasswordHash == "" && logger != nil {
		logger.Warn("ADMIN_PASSWORD_HASH is empty; admin login is disabled.")
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.TableStoreBackend {
	case BackendAzure:
		if c.TableStorageConnectionString == "" {
			return fmt.Errorf("%w: TABLE_STORAGE_CONNECTION_STRING is required for the azure backend", ErrInvalidConfig)
		}
	case BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("%w: unknown TABLE_STORE_BACKEND %q", ErrInvalidConfig, c.TableStoreBackend)
	}
	if c.TableStorageTableName == "" {
		return fmt.Errorf("%w: TABLE_STORAGE_TABLE_NAME is required", ErrInvalidConfig)
	}
	if c.NodeName == "" {
		return fmt.Errorf("%w: NODE_NAME is empty and the hostname is unknown", ErrInvalidConfig)
	}
	if c.RowKeyStrategy != RowKeysRandom && c.RowKeyStrategy != RowKeysSequence {
		return fmt.Errorf("%w: unknown ROW_KEY_STRATEGY %q", ErrInvalidConfig, c.RowKeyStrategy)
	}
	if c.SyslogEnabled && (c.SyslogUDPPort <= 0 || c.SyslogUDPPort > 65535) {
		return fmt.Errorf("%w: SYSLOG_UDP_PORT %d out of range", ErrInvalidConfig, c.SyslogUDPPort)
	}
	if c.AppEnv != "local" && c.AppEnv != "development" && (c.CORSAllowOrigins == "*" || c.CORSAllowOrigins == "") {
		return fmt.Errorf("%w: CORS_ALLOW_ORIGINS must be set explicitly in production environments", ErrInvalidConfig)
	}
	return nil
}

func defaultNodeName() string {
	host, err := os.Hostname()
	if err != nil {
		return ""
	}
	return host
}

// Helper function to get env var or default
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// Helper function to get env var as int or default
func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

// Helper function to get env var as bool or default
func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return fallback
}
