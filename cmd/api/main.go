package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/stellar-commitment/commitdash/internal/commitment"
	"github.com/stellar-commitment/commitdash/internal/config"
	"github.com/stellar-commitment/commitdash/internal/infra"
	"github.com/stellar-commitment/commitdash/internal/invoker"
	"github.com/stellar-commitment/commitdash/internal/journal"
	"github.com/stellar-commitment/commitdash/internal/logging"
	"github.com/stellar-commitment/commitdash/internal/routes"
	"github.com/stellar-commitment/commitdash/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	cache, err := infra.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if cache != nil {
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	}

	j, err := infra.NewJournal(ctx, db)
	if err != nil {
		logger.Error("open journal", "error", err)
		os.Exit(1)
	}

	if _, err := config.LoadChain(); err != nil {
		// Not fatal: the environment is re-read per request.
		logger.Warn("chain configuration invalid", "error", err)
	}

	runner := journal.Runner(invoker.NewExec(logger), j, logger)
	svc := commitment.NewService(runner, logger)

	srv, err := server.New(routes.Deps{
		Cfg:       cfg,
		DB:        db,
		Cache:     cache,
		Logger:    logger,
		Service:   svc,
		Journal:   j,
		AccessLog: cfg.IsDev(),
	})
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	logger.Info("backends",
		slog.Bool("postgres_journal", db != nil),
		slog.Bool("redis", cache != nil),
		slog.Bool("admin_guard", cfg.AdminTokenHash != ""),
	)

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen(logger)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}
