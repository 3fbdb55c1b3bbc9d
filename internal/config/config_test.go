package config

import (
	"testing"
	"time"
)

func TestLoadAPIFromEnvPortOverridesAddr(t *testing.T) {
	t.Setenv("ARENA_API_ADDR", ":9999")
	t.Setenv("PORT", "7000")
	cfg, err := LoadAPIFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7000" {
		t.Fatalf("addr=%q want :7000", cfg.Addr)
	}
}

func TestLoadAPIFromEnvDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ARENA_API_ADDR", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("ARENA_MARKET_TICK_EVERY", "not-a-duration")
	t.Setenv("VOLATILITY", "")
	t.Setenv("ARENA_MARKET_VOLATILITY", "WILD")
	t.Setenv("ARENA_ALLOWED_ORIGINS", " http://a.test , ,http://b.test")

	cfg, err := LoadAPIFromEnv()
	if err != nil {
		t.Fatalf("database url should be optional: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("addr=%q", cfg.Addr)
	}
	if cfg.Sim.MarketTickEvery != 5*time.Second {
		t.Fatalf("bad duration should fall back, got %s", cfg.Sim.MarketTickEvery)
	}
	if cfg.Sim.MarketVolatility != "wild" {
		t.Fatalf("volatility=%q", cfg.Sim.MarketVolatility)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://b.test" {
		t.Fatalf("origins=%v", cfg.AllowedOrigins)
	}
}

func TestLoadWorkerFromEnv(t *testing.T) {
	t.Setenv("ARENA_SEED", "42")
	t.Setenv("ARENA_WORKER_RUN_ONCE", "true")
	t.Setenv("ARENA_WORKER_HORIZON", "90s")
	t.Setenv("ARENA_SIM_SPEED", "x")

	cfg, err := LoadWorkerFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Seed != 42 || !cfg.RunOnce || cfg.Horizon != 90*time.Second {
		t.Fatalf("unexpected worker config: %+v", cfg)
	}
	if cfg.Sim.SimSpeed != 1 {
		t.Fatalf("sim speed=%f", cfg.Sim.SimSpeed)
	}
}

func TestLoadCLIFromEnvTrimsSlash(t *testing.T) {
	t.Setenv("ARENA_API_BASE_URL", "http://arena.test/")
	if got := LoadCLIFromEnv().APIBaseURL; got != "http://arena.test" {
		t.Fatalf("base url=%q", got)
	}
}
