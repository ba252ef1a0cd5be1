package config

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("NODE_NAME", "node-a")

	cfg, err := LoadConfig(nil)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.TableStoreBackend != BackendSQLite || cfg.TableStorageTableName != "logs" {
		t.Errorf("store defaults = %q/%q", cfg.TableStoreBackend, cfg.TableStorageTableName)
	}
	if cfg.RowKeyStrategy != RowKeysRandom {
		t.Errorf("RowKeyStrategy = %q", cfg.RowKeyStrategy)
	}
	if cfg.LogBatchInterval != 5*time.Second || cfg.LogProcessorBatchSize != 100 {
		t.Errorf("processor defaults = %v/%d", cfg.LogBatchInterval, cfg.LogProcessorBatchSize)
	}
	if cfg.CORSAllowOrigins != "*" {
		t.Errorf("local CORS origins = %q, want *", cfg.CORSAllowOrigins)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("NODE_NAME", "node-b")
	t.Setenv("TABLE_STORE_BACKEND", "AZURE")
	t.Setenv("TABLE_STORAGE_CONNECTION_STRING", "DefaultEndpointsProtocol=https;AccountName=acct;AccountKey=c2VjcmV0")
	t.Setenv("ROW_KEY_STRATEGY", "sequence")
	t.Setenv("LOG_BATCH_INTERVAL_SECONDS", "2")
	t.Setenv("LOG_LEVEL", "loud")
	t.Setenv("SYSLOG_ENABLED", "true")

	core, logs := observer.New(zapcore.WarnLevel)
	cfg, err := LoadConfig(zap.New(core))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.TableStoreBackend != BackendAzure || cfg.RowKeyStrategy != RowKeysSequence || cfg.NodeName != "node-b" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.LogBatchInterval != 2*time.Second {
		t.Errorf("LogBatchInterval = %v", cfg.LogBatchInterval)
	}
	if cfg.LogLevel != "info" || logs.FilterMessage("Invalid LOG_LEVEL specified, defaulting to 'info'").Len() != 1 {
		t.Errorf("invalid LOG_LEVEL should fall back to info with a warning, got %q", cfg.LogLevel)
	}
	if !cfg.SyslogEnabled || cfg.SyslogUDPPort != 5514 {
		t.Errorf("syslog = %v:%d", cfg.SyslogEnabled, cfg.SyslogUDPPort)
	}
}

func TestLoadConfigRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"azure without connection string", map[string]string{"TABLE_STORE_BACKEND": "azure"}},
		{"unknown backend", map[string]string{"TABLE_STORE_BACKEND": "cassandra"}},
		{"empty table name", map[string]string{"TABLE_STORAGE_TABLE_NAME": ""}},
		{"unknown row keys", map[string]string{"ROW_KEY_STRATEGY": "uuid"}},
		{"syslog port", map[string]string{"SYSLOG_ENABLED": "true", "SYSLOG_UDP_PORT": "70000"}},
		{"production cors", map[string]string{"APP_ENV": "production"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("APP_ENV", "local")
			t.Setenv("NODE_NAME", "node-a")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := LoadConfig(nil); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("LoadConfig error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}
