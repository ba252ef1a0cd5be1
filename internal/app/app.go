package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go-tablelogger/internal/bootstrap"
	"go-tablelogger/internal/config"
	"go-tablelogger/internal/listener"
	"go-tablelogger/internal/logging"
	"go-tablelogger/internal/middleware"
	routes "go-tablelogger/internal/routes"
	"go-tablelogger/internal/utils"

	"github.com/DeRuina/timberjack"
	"github.com/gofiber/contrib/fiberzap/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const appName = "go-tablelogger"

// Run initializes and starts the application
func Run() {
	initAppStartTime := time.Now()

	// --- 1. Load Configuration ---
	tempConfigLogger, _ := zap.NewProduction(zap.ErrorOutput(zapcore.Lock(os.Stderr)))
	defer tempConfigLogger.Sync()

	cfg, err := config.LoadConfig(tempConfigLogger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// --- 2. Create SHARED File Writer/Syncer for timberjack ---
	logDir := filepath.Dir(cfg.LogFilePath)
	if logDir != "." && logDir != "/" {
		if err := os.MkdirAll(logDir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: Failed to ensure log directory %s exists: %v\n", logDir, err)
			os.Exit(1)
		}
	}
	timberJackLogger := &timberjack.Logger{
		Filename:         cfg.LogFilePath,
		MaxSize:          cfg.LogMaxSize,
		MaxBackups:       cfg.LogMaxBackups,
		MaxAge:           cfg.LogMaxAge,
		Compress:         cfg.LogCompress,
		LocalTime:        true,
		RotationInterval: time.Duration(cfg.LogRotateInterval) * time.Hour,
	}
	fileSyncer := zapcore.AddSync(timberJackLogger)

	// --- 3. Initialize File/Console Logger ---
	appLoggers, err := logging.InitializeLoggers(cfg, fileSyncer)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to initialize application loggers: %v\n", err)
		os.Exit(1)
	}
	fileLogger := appLoggers.File
	utils.TraceConfigDetails(fileLogger, cfg)

	// --- 4. Open Table Store and Provision the Log Table ---
	store, closeStore, err := bootstrap.OpenTableStore(cfg, fileLogger)
	if err != nil {
		fileLogger.Fatal("Failed to open table store", zap.String("backend", cfg.TableStoreBackend), zap.Error(err))
	}
	logRepo, logProcessor, err := bootstrap.InitializeStorage(cfg, fileLogger, store)
	if err != nil {
		closeStore()
		fileLogger.Fatal("Failed to initialize log storage", zap.Error(err))
	}

	// --- 5. Attach Table Logger and Set Global Loggers ---
	appLoggers.AttachTable(cfg, logProcessor)
	tableLogger := appLoggers.Table
	logging.SetGlobalLoggers(fileLogger, tableLogger)
	if cfg.TableLogEnabled {
		var slogLevel slog.Level
		if err := slogLevel.UnmarshalText([]byte(cfg.TableLogLevel)); err != nil {
			slogLevel = slog.LevelInfo
		}
		slog.SetDefault(slog.New(logging.NewSlogHandler(logProcessor, cfg.NodeName, "slog", slogLevel)))
	}
	fileLogger.Info("Global application loggers (file/console and table) have been set.")

	// --- 6. Initialize Fiber App ---
	appFiber := fiber.New(fiber.Config{
		AppName: appName,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			lg := middleware.GetRequestFileLogger(c)
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) && e != nil {
				code = e.Code
			}
			fields := []zap.Field{
				zap.Int("status", code),
				zap.String("path", c.Path()),
				zap.String("method", c.Method()),
				zap.String("ip", c.IP()),
				zap.Error(err),
			}
			if code == fiber.StatusNotFound {
				lg.Warn("Resource not found", fields...)
			} else {
				lg.Error("Generic ErrorHandler", fields...)
			}
			resp := fiber.Map{"error": "An unexpected error occurred"}
			if cfg.AppEnv != "production" {
				resp["detail"] = err.Error()
			}
			return c.Status(code).JSON(resp)
		},
	})

	// --- 7. Initialize Application Components (Bootstrap) ---
	components := bootstrap.InitializeAppComponents(cfg, fileLogger, logRepo, logProcessor)

	// --- 8. Register Middleware ---
	appFiber.Use(recover.New(recover.Config{
		EnableStackTrace: cfg.LogLevel == "debug",
		StackTraceHandler: func(c *fiber.Ctx, e interface{}) {
			middleware.GetRequestFileLogger(c).Error("Panic recovered", zap.Any("panic_value", e))
		},
	}))
	fileLogger.Info("Configuring CORS", zap.String("origins", cfg.CORSAllowOrigins), zap.String("methods", cfg.CORSAllowMethods), zap.String("headers", cfg.CORSAllowHeaders))
	appFiber.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.CORSAllowOrigins,
		AllowMethods:  cfg.CORSAllowMethods,
		AllowHeaders:  cfg.CORSAllowHeaders,
		ExposeHeaders: "ETag,X-Request-ID",
	}))
	appFiber.Use(middleware.RequestLoggers(fileLogger, tableLogger))
	if cfg.LogLevel == "debug" {
		appFiber.Use(middleware.RequestDebugLogger())
	}
	appFiber.Use(fiberzap.New(fiberzap.Config{
		Logger: fileLogger,
		Fields: []string{"status", "method", "url", "ip", "latency", "error"},
		FieldsFunc: func(c *fiber.Ctx) []zap.Field {
			fields := []zap.Field{zap.String("log_type", "access")}
			if reqID := middleware.GetRequestID(c); reqID != "" {
				fields = append(fields, zap.String("request_id", reqID))
			}
			return fields
		},
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/health"
		},
	}))

	// --- 9. Setup Application Routes ---
	routes.SetupRoutes(appFiber, cfg, fileLogger, components)

	// --- 10. Start Log Processor and Syslog Listener ---
	logProcessor.Start()

	var syslogListener *listener.UDPListener
	if cfg.SyslogEnabled {
		syslogListener = listener.NewUDPListener(fmt.Sprintf(":%d", cfg.SyslogUDPPort), logProcessor, cfg.NodeName, fileLogger)
		if err := syslogListener.Start(); err != nil {
			fileLogger.Error("Failed to start syslog listener, continuing without it", zap.Int("port", cfg.SyslogUDPPort), zap.Error(err))
			syslogListener = nil
		}
	}

	// --- 11. Start Server & Graceful Shutdown ---
	serverCtx, cancelServerCtx := context.WithCancel(context.Background())
	defer cancelServerCtx()
	serverStopped := make(chan struct{})

	initAppDurationMs := time.Since(initAppStartTime).Milliseconds()

	go func() {
		defer close(serverStopped)
		listenAddr := ":" + cfg.Port
		fileLogger.Info(fmt.Sprintf("Completed initialization application in %d ms.", initAppDurationMs))
		fileLogger.Info("Starting Fiber server...",
			zap.String("address", listenAddr),
			zap.Int("pid", os.Getpid()),
			zap.String("app_env", cfg.AppEnv),
		)
		tableLogger.Info("Log service started", zap.String("address", listenAddr), zap.String("backend", cfg.TableStoreBackend))

		if err := appFiber.Listen(listenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fileLogger.Error("Server listener failed", zap.String("address", listenAddr), zap.Error(err))
			cancelServerCtx()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	select {
	case s := <-sig:
		fileLogger.Info("Shutdown signal received.", zap.String("signal", s.String()))
	case <-serverCtx.Done():
		fileLogger.Info("Server context cancelled, initiating shutdown.")
	}

	fileLogger.Info("Initiating graceful shutdown...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancelShutdown()

	if err := appFiber.ShutdownWithContext(shutdownCtx); err != nil {
		fileLogger.Error("Fiber server shutdown failed", zap.Error(err))
	} else {
		fileLogger.Info("Fiber server gracefully stopped.")
	}
	<-serverStopped
	fileLogger.Info("HTTP listener goroutine stopped.")

	if syslogListener != nil {
		if err := syslogListener.Close(); err != nil {
			fileLogger.Warn("Error closing syslog listener", zap.Error(err))
		}
	}

	// Producers are stopped; the final flush stores everything still buffered.
	tableLogger.Info("Log service stopping")
	logProcessor.Stop()

	if err := closeStore(); err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] Error closing table store: %v\n", err)
	} else {
		fmt.Println("[INFO] Table store closed.")
	}

	fileLogger.Info("Syncing file/console logger before shutdown...")
	if errSync := fileLogger.Sync(); errSync != nil {
		errMsg := errSync.Error()
		if strings.Contains(errMsg, "handle is invalid") || strings.Contains(errMsg, "sync /dev/stdout") {
			fileLogger.Debug("Logger sync warning for stdout (handle likely invalid during shutdown).", zap.Error(errSync))
		} else {
			fileLogger.Warn("Error syncing file/console logger.", zap.Error(errSync))
			fmt.Fprintf(os.Stderr, "[WARN] Error syncing file/console logger: %v\n", errSync)
		}
	}
	if err := timberJackLogger.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] Error closing log file: %v\n", err)
	}

	fmt.Println("[INFO] Application shutdown complete.")
}
