package utils

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"go-tablelogger/internal/config"
)

func TraceConfigDetails(logger *zap.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		fmt.Println("[WARN] logger or config is nil in TraceConfigDetails")
		return
	}
	maskedJWTSecret := "*** MASKED ***"
	if cfg.JWTSecret == "default-secret" {
		maskedJWTSecret = "default-secret (!!! WARNING: Using default JWT secret !!!)"
	} else if len(cfg.JWTSecret) < 8 && len(cfg.JWTSecret) > 0 {
		maskedJWTSecret = fmt.Sprintf("*** MASKED (short: %d chars) ***", len(cfg.JWTSecret))
	} else if cfg.JWTSecret == "" {
		maskedJWTSecret = "--- EMPTY (!!! WARNING: JWT Secret is empty !!!) ---"
	}
	fields := []zapcore.Field{
		zap.String("AppEnv", cfg.AppEnv),
		zap.String("Port", cfg.Port),
		zap.String("JWTSecret", maskedJWTSecret),
		zap.String("AdminUsername", cfg.AdminUsername),
		zap.Bool("AdminPasswordHash_Set", cfg.AdminPasswordHash != ""),
		zap.String("TableStoreBackend", cfg.TableStoreBackend),
		zap.String("TableStorageConnectionString", MaskConnectionString(cfg.TableStorageConnectionString)),
		zap.String("TableStorageTableName", cfg.TableStorageTableName),
		zap.String("NodeName", cfg.NodeName),
		zap.String("RowKeyStrategy", cfg.RowKeyStrategy),
		zap.String("SQLiteDBPath", cfg.SQLiteDBPath),
		zap.String("LogFilePath", cfg.LogFilePath),
		zap.String("LogLevel", cfg.LogLevel),
		zap.Int("LogRotateIntervalHours", cfg.LogRotateInterval),
		zap.Int("LogMaxSizeMB", cfg.LogMaxSize),
		zap.Int("LogMaxBackups", cfg.LogMaxBackups),
		zap.Int("LogMaxAgeDays", cfg.LogMaxAge),
		zap.Bool("LogCompress", cfg.LogCompress),
		zap.Bool("TableLog_Enabled", cfg.TableLogEnabled),
		zap.String("TableLog_Level", cfg.TableLogLevel),
		zap.Duration("LogProcessor_BatchInterval", cfg.LogBatchInterval),
		zap.Int("LogProcessor_BatchSize", cfg.LogProcessorBatchSize),
		zap.Bool("Syslog_Enabled", cfg.SyslogEnabled),
		zap.Int("Syslog_UDPPort", cfg.SyslogUDPPort),
		zap.String("CORS_AllowOrigins", cfg.CORSAllowOrigins),
		zap.String("CORS_AllowMethods", cfg.CORSAllowMethods),
		zap.String("CORS_AllowHeaders", cfg.CORSAllowHeaders),
	}
	logger.Debug("Loaded application configuration details", fields...)
}
