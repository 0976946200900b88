package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tillpoint/backoffice/internal/app"
	"github.com/tillpoint/backoffice/internal/catalog"
	"github.com/tillpoint/backoffice/internal/grn"
	"github.com/tillpoint/backoffice/internal/labels"
	"github.com/tillpoint/backoffice/internal/ledger"
	"github.com/tillpoint/backoffice/internal/platform/cache"
	"github.com/tillpoint/backoffice/internal/platform/db"
	"github.com/tillpoint/backoffice/internal/shared"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("failed to connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var stockCache *ledger.Cache
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		// The stock dashboard cache is an optimisation; run without it.
		logger.Warn("redis unavailable, stock cache disabled", slog.Any("error", err))
	} else {
		defer func() { _ = redisClient.Close() }()
		stockCache = ledger.NewCache(redisClient, cfg.StockCacheTTL)
	}

	audit := shared.NewAuditLogger(pool)

	ledgerService := ledger.NewService(ledger.NewRepository(pool), audit, stockCache)
	catalogService := catalog.NewService(catalog.NewRepository(pool), audit)
	grnService := grn.NewService(grn.NewRepository(pool), audit, ledgerService)
	labelService := labels.NewService(grnService, catalogService)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		CatalogHandler: catalog.NewHandler(logger, catalogService),
		LedgerHandler:  ledger.NewHandler(logger, ledgerService),
		GRNHandler:     grn.NewHandler(logger, grnService),
		LabelHandler:   labels.NewHandler(logger, labelService),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("back-office listening", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("server stopped")
}
