// Command modmail is the relay process entrypoint: it wires the store,
// platform adapter, thread registry, message mirror, closure scheduler,
// recovery worker, and event dispatcher together and runs until signalled.
//
// Usage:
//
//	modmail -config modmail.yaml
//	modmail -db modmail.db
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/gomodmail/modmail/config"
	"github.com/gomodmail/modmail/dispatch"
	"github.com/gomodmail/modmail/healthsrv"
	"github.com/gomodmail/modmail/mirror"
	"github.com/gomodmail/modmail/platform"
	"github.com/gomodmail/modmail/recovery"
	"github.com/gomodmail/modmail/scheduler"
	"github.com/gomodmail/modmail/store"
	"github.com/gomodmail/modmail/thread"
)

func main() {
	configPath := flag.String("config", "", "path to modmail.yaml config file")
	dbPath := flag.String("db", "", "path to SQLite database, overrides config db_path")
	healthAddr := flag.String("health-addr", ":8081", "address to serve /healthz on")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error, overrides config")
	flag.Parse()

	cfg, err := resolveConfig(*configPath, *dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "modmail: config:", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg, *healthAddr); err != nil {
		logger.Error("modmail: fatal", "error", err)
		os.Exit(1)
	}
}

// platformHandle is satisfied by a concrete platform.Adapter implementation
// that also exposes a subscription (platform.Listener).
// The core ships no concrete adapter; this interface is the seam a platform
// SDK integration binds to main.
type platformHandle interface {
	platform.Adapter
	platform.Listener
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.Config, healthAddr string) error {
	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	adapter, err := newPlatformAdapter(cfg, logger)
	if err != nil {
		return fmt.Errorf("init platform adapter: %w", err)
	}

	registry := thread.New(s, adapter, cfg.Platform.InboxCategoryID, logger)
	sched := scheduler.New(s, adapter, registry, logger)
	mir := mirror.New(s, adapter, registry, sched, mirror.Config{
		AnonymousStaffName: cfg.Mirror.AnonymousStaffName,
		MaxAttachmentSize:  cfg.Mirror.MaxAttachmentBytes,
		ShowSuccessOnReply: cfg.Mirror.ShowSuccessOnReply,
		ShowSuccessOnEdit:  cfg.Mirror.ShowSuccessOnEdit,
		ShowLogOnEdit:      cfg.Mirror.ShowLogOnEdit,
		ShowLogOnDelete:    cfg.Mirror.ShowLogOnDelete,
		EnableLogs:         cfg.Mirror.EnableLogs,
	}, logger)
	disp := dispatch.New(registry, mir, logger)
	recov := recovery.New(s, adapter, registry, mir, logger)

	if err := sched.Rehydrate(ctx); err != nil {
		return fmt.Errorf("rehydrate scheduler: %w", err)
	}
	defer sched.Shutdown()

	health := healthsrv.New(s, sched)
	httpSrv := &http.Server{Addr: healthAddr, Handler: health.Router()}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("modmail: health server failed", "error", err)
		}
	}()
	defer httpSrv.Shutdown(context.Background())

	sum, err := recov.Run(ctx)
	if err != nil {
		logger.Error("modmail: recovery pass failed", "error", err)
	} else {
		recov.PostSummary(ctx, cfg.Platform.LogsChannelID, sum)
		health.RecordRecoverySummary(sum)
	}

	logger.Info("modmail: running", "db", cfg.DBPath)
	disp.Run(ctx, adapter)
	logger.Info("modmail: shutting down")
	return nil
}

func resolveConfig(configPath, dbPathOverride string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = &config.Config{}
	}
	if dbPathOverride != "" {
		cfg.DBPath = dbPathOverride
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "modmail.db"
	}
	return cfg, nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
