package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"go-tablelogger/internal/config"
	"go-tablelogger/internal/models"
)

// EventIDKey is the field key carrying a numeric event code.
const EventIDKey = "EventId"

var (
	globalFileLogger  *zap.Logger
	globalTableLogger *zap.Logger // Can be Nop
	globalLoggersMu   sync.RWMutex
)

// AppLoggers holds the different logger instances for the application.
type AppLoggers struct {
	File  *zap.Logger // console + rotating file; the diagnostic stream
	Table *zap.Logger // entries become LogRecords stored in the log table (Nop if disabled)
}

// RecordSink accepts mapped log records for asynchronous storage.
type RecordSink interface {
	Enqueue(rec models.LogRecord)
	Flush(ctx context.Context)
}

// EventID tags an entry with a numeric event code.
func EventID(id int) zap.Field {
	return zap.Int(EventIDKey, id)
}

// LevelOrdinal maps a zap level onto the stored severity scale: debug 1, info 2,
// warn 3, error 4 and 5 for dpanic, panic and fatal.
func LevelOrdinal(level zapcore.Level) int {
	switch {
	case level < zapcore.InfoLevel:
		return 1
	case level == zapcore.InfoLevel:
		return 2
	case level == zapcore.WarnLevel:
		return 3
	case level == zapcore.ErrorLevel:
		return 4
	default:
		return 5
	}
}

// Custom level encoder function
func customLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + level.CapitalString() + "]")
}

// Custom level encoder function with color for console
func customColorLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	var colorPrefix, colorSuffix string
	switch level {
	case zapcore.DebugLevel:
		colorPrefix = "\x1b[35m" // Magenta
		colorSuffix = "\x1b[0m"
	case zapcore.InfoLevel:
		colorPrefix = "\x1b[32m" // Green
		colorSuffix = "\x1b[0m"
	case zapcore.WarnLevel:
		colorPrefix = "\x1b[33m" // Yellow
		colorSuffix = "\x1b[0m"
	case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		colorPrefix = "\x1b[31m" // Red
		colorSuffix = "\x1b[0m"
	}
	enc.AppendString(colorPrefix + "[" + level.CapitalString() + "]" + colorSuffix)
}

// CreateFileConsoleEncoderConfigs sets up the encoder configurations.
func CreateFileConsoleEncoderConfigs() (zapcore.EncoderConfig, zapcore.EncoderConfig) {
	consoleEncoderCfg := zap.NewDevelopmentEncoderConfig()
	consoleEncoderCfg.EncodeLevel = customColorLevelEncoder
	consoleEncoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	consoleEncoderCfg.EncodeCaller = zapcore.ShortCallerEncoder

	fileEncoderCfg := zap.NewProductionEncoderConfig()
	fileEncoderCfg.EncodeLevel = customLevelEncoder
	fileEncoderCfg.TimeKey = "timestamp"
	fileEncoderCfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	fileEncoderCfg.EncodeCaller = zapcore.ShortCallerEncoder

	return consoleEncoderCfg, fileEncoderCfg
}

// InitializeLoggers creates the file/console application logger. The table logger starts
// as Nop; AttachTable replaces it once storage is ready.
func InitializeLoggers(cfg *config.Config, fileSyncer zapcore.WriteSyncer) (*AppLoggers, error) {
	appLoggers := &AppLoggers{Table: zap.NewNop()}

	// --- Initialize File/Console Logger ---
	var fileLogLevel zapcore.Level
	if err := fileLogLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] Invalid LOG_LEVEL '%s' for file/console logger, defaulting to info: %v\n", cfg.LogLevel, err)
		fileLogLevel = zapcore.InfoLevel
	}

	consoleEncoderCfg, fileEncoderCfg := CreateFileConsoleEncoderConfigs()
	consoleCore := zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEncoderCfg), zapcore.Lock(os.Stdout), fileLogLevel)
	fileOutputCore := zapcore.NewCore(zapcore.NewConsoleEncoder(fileEncoderCfg), fileSyncer, fileLogLevel)

	appLoggers.File = zap.New(zapcore.NewTee(consoleCore, fileOutputCore), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	appLoggers.File.Info("======================================================================================")
	appLoggers.File.Info("File/Console application logger initialized",
		zap.String("environment", cfg.AppEnv),
		zap.String("configuredLevel", cfg.LogLevel),
		zap.String("effectiveLevel", fileLogLevel.String()),
		zap.String("logFile", cfg.LogFilePath),
	)
	return appLoggers, nil
}

// AttachTable builds the table logger on top of sink, unless table logging is disabled.
func (l *AppLoggers) AttachTable(cfg *config.Config, sink RecordSink) {
	if !cfg.TableLogEnabled || sink == nil {
		l.File.Info("Table logger is disabled by configuration.")
		l.Table = zap.NewNop()
		return
	}
	var tableLogLevel zapcore.Level
	if err := tableLogLevel.UnmarshalText([]byte(cfg.TableLogLevel)); err != nil {
		l.File.Warn("Invalid TABLE_LOG_LEVEL, defaulting to info", zap.String("level", cfg.TableLogLevel), zap.Error(err))
		tableLogLevel = zapcore.InfoLevel
	}
	l.Table = zap.New(NewTableCore(tableLogLevel, cfg.NodeName, sink))
	l.File.Info("Table logger initialized",
		zap.String("effectiveLevel", tableLogLevel.String()),
		zap.String("node", cfg.NodeName),
		zap.String("table", cfg.TableStorageTableName),
	)
}

// --- Table Zap Core ---

// tableCore implements zapcore.Core and turns entries into LogRecords. Fields added with
// With become one map scope per call; the fields of an entry form the last scope.
type tableCore struct {
	zapcore.LevelEnabler
	nodeName  string
	sink      RecordSink
	scopes    []models.Scope
	eventID   int
	exception error
}

// NewTableCore creates a core that hands every enabled entry to sink.
func NewTableCore(enab zapcore.LevelEnabler, nodeName string, sink RecordSink) zapcore.Core {
	return &tableCore{
		LevelEnabler: enab,
		nodeName:     nodeName,
		sink:         sink,
	}
}

func (c *tableCore) With(fields []zapcore.Field) zapcore.Core {
	clone := c.clone()
	if scope, ok := clone.absorb(fields); ok {
		clone.scopes = append(clone.scopes, scope)
	}
	return clone
}

func (c *tableCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *tableCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	local := c.clone()
	if scope, ok := local.absorb(fields); ok {
		local.scopes = append(local.scopes, scope)
	}

	rec := models.LogRecord{
		EventTime:      ent.Time,
		NodeName:       c.nodeName,
		LogLevel:       LevelOrdinal(ent.Level),
		LogLevelString: ent.Level.CapitalString(),
		LogName:        ent.LoggerName,
		EventID:        local.eventID,
		Message:        ent.Message,
		Scopes:         local.scopes,
	}
	if local.exception != nil {
		rec.Exception = local.exception
	}
	c.sink.Enqueue(rec)
	return nil
}

func (c *tableCore) Sync() error {
	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()
	c.sink.Flush(ctx)
	return nil
}

func (c *tableCore) clone() *tableCore {
	return &tableCore{
		LevelEnabler: c.LevelEnabler,
		nodeName:     c.nodeName,
		sink:         c.sink,
		scopes:       append([]models.Scope(nil), c.scopes...),
		eventID:      c.eventID,
		exception:    c.exception,
	}
}

// absorb pulls the event id and error out of fields and returns the rest as a map scope.
func (c *tableCore) absorb(fields []zapcore.Field) (models.Scope, bool) {
	enc := zapcore.NewMapObjectEncoder()
	var keys []string
	for _, f := range fields {
		switch {
		case f.Type == zapcore.ErrorType:
			if err, ok := f.Interface.(error); ok {
				c.exception = err
			}
			continue
		case f.Key == EventIDKey && f.Type == zapcore.Int64Type:
			c.eventID = int(f.Integer)
			continue
		case f.Type == zapcore.SkipType:
			continue
		}
		f.AddTo(enc)
		keys = append(keys, f.Key)
	}
	if len(enc.Fields) == 0 {
		return models.Scope{}, false
	}

	pairs := make([]models.KeyValue, 0, len(enc.Fields))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		v, ok := enc.Fields[k]
		if !ok || seen[k] {
			continue
		}
		seen[k] = true
		pairs = append(pairs, models.KeyValue{Key: k, Value: scopeValue(v)})
	}
	// Namespaced fields land under keys that were never passed in.
	var rest []string
	for k := range enc.Fields {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		pairs = append(pairs, models.KeyValue{Key: k, Value: scopeValue(enc.Fields[k])})
	}
	return models.MapScope(pairs...), true
}

// scopeValue renders nested objects and arrays as JSON so they stay readable in Data.
func scopeValue(v any) any {
	switch v.(type) {
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	default:
		return v
	}
}

// --- Global Logger Access ---

// SetGlobalLoggers sets the global logger instances.
func SetGlobalLoggers(fileLogger, tableLogger *zap.Logger) {
	globalLoggersMu.Lock()
	defer globalLoggersMu.Unlock()
	globalFileLogger = fileLogger
	if tableLogger != nil {
		globalTableLogger = tableLogger
	} else {
		globalTableLogger = zap.NewNop()
	}
}

// GetFileLogger returns the initialized global file/console logger.
func GetFileLogger() *zap.Logger {
	globalLoggersMu.RLock()
	l := globalFileLogger
	globalLoggersMu.RUnlock()

	if l == nil {
		fallbackLogger, _ := zap.NewProduction()
		fallbackLogger.Warn("Global file/console logger accessed before being set!")
		return fallbackLogger
	}
	return l
}

// GetTableLogger returns the global table logger, or a Nop logger if table logging
// was disabled or not initialized.
func GetTableLogger() *zap.Logger {
	globalLoggersMu.RLock()
	l := globalTableLogger
	globalLoggersMu.RUnlock()

	if l == nil {
		return zap.NewNop()
	}
	return l
}
