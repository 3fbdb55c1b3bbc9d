package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agentarena/internal/config"
	"agentarena/internal/db"
	"agentarena/internal/game"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorkerFromEnv()
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

	opts := game.OptionsFromConfig(cfg.Sim)
	if cfg.RunOnce {
		// Fast-forwarding produces records far quicker than the journal drains.
		opts.SubscriberBuffer = max(opts.SubscriberBuffer, 16_384)
	}
	svc := game.NewService(cat, opts, logger)

	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL, "arena-worker")
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
		svc.SetJournal(journal)
	}

	sessions, err := startSessions(ctx, svc, cfg.Seed)
	if err != nil {
		logger.Error("session start failed", "err", err)
		os.Exit(1)
	}

	if cfg.RunOnce {
		runOnce(ctx, svc, cfg, sessions, logger)
		return
	}

	logger.Info("worker started",
		"sessions", len(sessions),
		"drive_every", cfg.Sim.DriveEvery.String(),
		"tick_every", cfg.Sim.MarketTickEvery.String(),
		"volatility", cfg.Sim.MarketVolatility,
	)
	if err := svc.Run(ctx, cfg.Sim.DriveEvery); err != nil {
		logger.Error("worker driver failed", "err", err)
	}
	svc.Close()
	logger.Info("worker shutdown")
}

// startSessions opens one session per active game, played by the first
// catalog agent.
func startSessions(ctx context.Context, svc *game.Service, seed int64) ([]string, error) {
	agents := svc.ListAgents(ctx)
	if len(agents) == 0 {
		return nil, nil
	}
	var ids []string
	for i, g := range svc.ListGames(ctx, string(game.StatusActive)) {
		s := seed
		if s != 0 {
			s += int64(i)
		}
		info, err := svc.StartSession(ctx, g.ID, agents[0].ID, s)
		if err != nil {
			return ids, err
		}
		ids = append(ids, info.ID)
	}
	return ids, nil
}

func runOnce(ctx context.Context, svc *game.Service, cfg config.WorkerConfig, sessions []string, logger *slog.Logger) {
	const step = time.Second
	var sinceTick time.Duration
	for elapsed := time.Duration(0); elapsed < cfg.Horizon; elapsed += step {
		if ctx.Err() != nil {
			break
		}
		svc.Advance(step)
		sinceTick += step
		if cfg.Sim.MarketTickEvery > 0 && sinceTick >= cfg.Sim.MarketTickEvery {
			sinceTick = 0
			if err := svc.RunMarketTick(ctx); err != nil {
				logger.Error("market tick failed", "err", err)
			}
		}
	}

	for _, id := range sessions {
		info, err := svc.StopSession(context.Background(), id)
		if err != nil {
			logger.Error("session stop failed", "session_id", id, "err", err)
			continue
		}
		snap := info.Snapshot
		logger.Info("session summary",
			"session_id", info.ID,
			"game_id", info.GameID,
			"agent", info.AgentName,
			"seed", info.Seed,
			"elapsed", snap.Elapsed.String(),
			"cash_micros", snap.CashMicros,
			"portfolio_micros", snap.PortfolioMicros,
			"rank", snap.Rank,
			"activities", snap.Activities,
			"dropped_records", snap.DroppedRecords,
		)
	}
	svc.Close()
	logger.Info("worker run-once completed", "horizon", cfg.Horizon.String())
}
