package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type APIConfig struct {
	Addr        string
	DatabaseURL string
	CatalogPath string
	Sim         SimConfig
	// AllowedOrigins limits websocket upgrades. Empty allows any origin.
	AllowedOrigins []string
}

// SimConfig holds the knobs shared by everything that drives sessions.
type SimConfig struct {
	MarketTickEvery  time.Duration
	MarketVolatility string
	SimSpeed         float64
	DriveEvery       time.Duration
	SimulateLatency  bool
	PromptCooldown   time.Duration
	SubscriberBuffer int
}

type WorkerConfig struct {
	DatabaseURL string
	CatalogPath string
	Sim         SimConfig
	Seed        int64
	// RunOnce fast-forwards Horizon of virtual time and exits.
	RunOnce bool
	Horizon time.Duration
}

type CLIConfig struct {
	APIBaseURL string
}

func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("ARENA_API_ADDR", ":8080")
	}

	cfg := APIConfig{
		Addr:           addr,
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		CatalogPath:    strings.TrimSpace(os.Getenv("ARENA_CATALOG")),
		Sim:            loadSim(),
		AllowedOrigins: envList("ARENA_ALLOWED_ORIGINS"),
	}
	return cfg, nil
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	cfg := WorkerConfig{
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		CatalogPath: strings.TrimSpace(os.Getenv("ARENA_CATALOG")),
		Sim:         loadSim(),
		Seed:        envInt64Default("ARENA_SEED", 0),
		RunOnce:     envBoolDefault("ARENA_WORKER_RUN_ONCE", false),
		Horizon:     envDurationDefault("ARENA_WORKER_HORIZON", 10*time.Minute),
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("ARENA_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

func loadSim() SimConfig {
	return SimConfig{
		MarketTickEvery:  envDurationDefault("ARENA_MARKET_TICK_EVERY", 5*time.Second),
		MarketVolatility: envVolatilityDefault(),
		SimSpeed:         envFloatDefault("ARENA_SIM_SPEED", 1),
		DriveEvery:       envDurationDefault("ARENA_DRIVE_EVERY", 250*time.Millisecond),
		SimulateLatency:  envBoolDefault("ARENA_SIMULATE_LATENCY", false),
		PromptCooldown:   envDurationDefault("ARENA_PROMPT_COOLDOWN", 5*time.Minute),
		SubscriberBuffer: int(envInt64Default("ARENA_SUBSCRIBER_BUFFER", 256)),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envFloatDefault(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envInt64Default(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envVolatilityDefault() string {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("VOLATILITY")))
	if v == "" {
		v = strings.ToLower(strings.TrimSpace(os.Getenv("ARENA_MARKET_VOLATILITY")))
	}
	switch v {
	case "calm", "mor", "wild":
		return v
	default:
		return "mor"
	}
}
