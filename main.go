// Command backend runs the WhatsApp session supervisor and its control API.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres (or SQLite for local runs) and applies migrations.
//   - Starts the session supervisor and the event pipeline that persists
//     messages and contacts.
//   - Exposes the HTTP control surface with /whatsapp/*, /healthz, /readyz and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/wa-tender/backend/chat"
	"github.com/onnwee/wa-tender/backend/config"
	"github.com/onnwee/wa-tender/backend/db"
	"github.com/onnwee/wa-tender/backend/server"
	"github.com/onnwee/wa-tender/backend/session"
	"github.com/onnwee/wa-tender/backend/telemetry"
	"github.com/onnwee/wa-tender/backend/whatsapp"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()

	// Tracing is optional; requires OTEL_EXPORTER_OTLP_ENDPOINT
	shutdownTracing, err := telemetry.InitTracing("wa-tender", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	database, err := db.Connect(db.Config{
		DSN:             cfg.DBDsn,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	if err := migrate(database, cfg.DBDsn); err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err), slog.String("component", "db_migrate"))
		os.Exit(1)
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := db.NewStore(database)
	sup := session.NewSupervisor(ctx, whatsapp.NewFactory(slog.Default()), session.Options{
		ClientID:           cfg.ClientID,
		AuthDir:            cfg.AuthDir,
		RestartDelay:       cfg.RestartDelay,
		ManualRestartDelay: cfg.ManualRestartDelay,
	})

	sinks := []chat.Sink{chat.LogSink{}}
	if cfg.QRFile != "" {
		sinks = append(sinks, chat.FileSink{Path: cfg.QRFile})
	}
	pipeline := chat.NewPipeline(sup, store, sinks...)
	sup.SetHandler(pipeline)

	if cfg.AutoStart {
		if err := sup.Initialize(ctx); err != nil {
			slog.Error("whatsapp client failed to start", slog.Any("err", err))
			os.Exit(1)
		}
	} else {
		slog.Info("whatsapp auto start disabled; use POST /whatsapp/restart to start the session")
	}

	startPprof()

	httpDone := make(chan struct{})
	go func() {
		defer close(httpDone)
		if err := server.Start(ctx, server.NewMux(ctx, database, sup, store), cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
			stop()
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sup.Shutdown(shutdownCtx); err != nil {
		slog.Error("session shutdown incomplete", slog.Any("err", err))
	}
	if err := pipeline.Wait(shutdownCtx); err != nil {
		slog.Error("qr sinks did not drain", slog.Any("err", err))
	}
	<-httpDone
}

// setupLogging configures level and format. Defaults: level=info, format=text.
func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))
}

// migrate applies versioned migrations (golang-migrate, db/migrations) and
// falls back to the embedded schema when they cannot run. SQLite always uses
// the embedded schema.
func migrate(database *sql.DB, dsn string) error {
	if db.IsSQLite(dsn) {
		slog.Info("applying embedded schema", slog.String("component", "db_migrate"))
		return db.Migrate(context.Background(), database)
	}
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, attempting fallback to embedded SQL",
			slog.Any("err", err),
			slog.String("component", "db_migrate"))
		if err := db.Migrate(context.Background(), database); err != nil {
			return err
		}
		slog.Info("embedded SQL migration completed", slog.String("component", "db_migrate"))
		return nil
	}
	slog.Info("versioned migrations completed successfully", slog.String("component", "db_migrate"))
	return nil
}

func startPprof() {
	if os.Getenv("ENABLE_PPROF") != "1" {
		return
	}
	pprofAddr := os.Getenv("PPROF_ADDR")
	if pprofAddr == "" {
		pprofAddr = "localhost:6060"
	}
	go func() {
		slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
		srv := &http.Server{
			Addr:              pprofAddr,
			Handler:           nil, // default mux exposes /debug/pprof
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil {
			slog.Error("pprof server error", slog.Any("err", err))
		}
	}()
}
