package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agentarena/internal/api"
	"agentarena/internal/config"
	"agentarena/internal/db"
	"agentarena/internal/game"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cat, err := game.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		logger.Error("catalog load failed", "err", err)
		os.Exit(1)
	}
	gameSvc := game.NewService(cat, game.OptionsFromConfig(cfg.Sim), logger)

	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL, "arena-api")
		if err != nil {
			logger.Error("db connect failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		journal := db.NewJournal(pool)
		if err := journal.EnsureSchema(ctx); err != nil {
			logger.Error("journal schema failed", "err", err)
			os.Exit(1)
		}
		gameSvc.SetJournal(journal)
		logger.Info("session journal enabled")
	}

	driverDone := make(chan struct{})
	go func() {
		defer close(driverDone)
		if err := gameSvc.Run(ctx, cfg.Sim.DriveEvery); err != nil {
			logger.Error("simulation driver stopped", "err", err)
		}
	}()

	server := api.New(cfg, logger, gameSvc)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("arena api listening", "addr", cfg.Addr, "volatility", cfg.Sim.MarketVolatility, "sim_speed", cfg.Sim.SimSpeed)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
	<-driverDone
	gameSvc.Close()
	logger.Info("arena api stopped")
}
