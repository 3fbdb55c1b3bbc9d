package sim

import "time"

// Asset is a symbol the session can price and trade.
type Asset struct {
	Symbol      string
	PriceMicros int64
	Tradable    bool
}

// Rival is a non-user agent seeded into the rankings.
type Rival struct {
	Name            string
	PortfolioMicros int64
}

// Config holds configuration for a simulation session. Start from
// DefaultConfig and override fields; probabilities are taken as given.
type Config struct {
	// Seed drives every random draw of the session.
	Seed int64
	// Epoch is the wall-clock time that virtual time zero maps to.
	Epoch time.Time

	UserAgent       string
	StartCashMicros int64
	// HoldingUnits is the user's starting quantity per symbol.
	HoldingUnits map[string]int64
	Assets       []Asset
	Rivals       []Rival
	// BaselineMicros is the portfolio value that PercentChange is relative to.
	BaselineMicros int64

	TradeEvery     time.Duration
	TradeProb      float64
	PriceSpread    float64
	TradeMinMicros int64
	TradeMaxMicros int64
	RivalPnLSpread float64

	DriftEvery     time.Duration
	DriftProb      float64
	DriftMinMicros int64
	DriftMaxMicros int64

	CommentaryMin      time.Duration
	CommentaryMax      time.Duration
	ThoughtProb        float64
	BribeFollowUpAfter time.Duration
	BribeSettleAfter   time.Duration
	BribeSettleProb    float64
	BribeMinMicros     int64
	BribeMaxMicros     int64

	AnnounceEvery time.Duration
	AnnounceProb  float64

	JitterEvery time.Duration
	JitterScale float64

	ReactionThresholdMicros int64
	ReactionDelay           time.Duration
	CounterTradeAfter       time.Duration
	CounterTradeProb        float64

	IncreaseFrames   int
	IncreaseDuration time.Duration
	DecreaseFrames   int
	DecreaseDuration time.Duration

	// SubscriberBuffer is the default channel size for Subscribe.
	SubscriberBuffer int

	Script Script
}

func DefaultConfig() Config {
	return Config{
		Seed:            1,
		Epoch:           time.Date(2024, 8, 17, 12, 0, 0, 0, time.UTC),
		UserAgent:       "BullRunner",
		StartCashMicros: 5_320 * MicrosPerDollar,
		HoldingUnits: map[string]int64{
			"BTC":  500,
			"ETH":  12_000,
			"USDT": 10_000_000,
		},
		Assets: []Asset{
			{Symbol: "BTC", PriceMicros: 50_000 * MicrosPerDollar, Tradable: true},
			{Symbol: "ETH", PriceMicros: 3_000 * MicrosPerDollar, Tradable: true},
			{Symbol: "SOL", PriceMicros: 150 * MicrosPerDollar, Tradable: true},
			{Symbol: "USDT", PriceMicros: 1 * MicrosPerDollar},
		},
		Rivals: []Rival{
			{Name: "Satoshi2.0", PortfolioMicros: 14_800 * MicrosPerDollar},
			{Name: "WhaleHunter", PortfolioMicros: 13_150 * MicrosPerDollar},
			{Name: "CryptoWhale", PortfolioMicros: 10_400 * MicrosPerDollar},
			{Name: "TrendTrader", PortfolioMicros: 9_300 * MicrosPerDollar},
			{Name: "BearHunter", PortfolioMicros: 8_700 * MicrosPerDollar},
			{Name: "AIOracle", PortfolioMicros: 8_100 * MicrosPerDollar},
			{Name: "QuickBot", PortfolioMicros: 7_600 * MicrosPerDollar},
		},
		BaselineMicros: 10_000 * MicrosPerDollar,

		TradeEvery:     8 * time.Second,
		TradeProb:      0.30,
		PriceSpread:    0.02,
		TradeMinMicros: 100 * MicrosPerDollar,
		TradeMaxMicros: 2_500 * MicrosPerDollar,
		RivalPnLSpread: 0.02,

		DriftEvery:     12 * time.Second,
		DriftProb:      0.50,
		DriftMinMicros: 25 * MicrosPerDollar,
		DriftMaxMicros: 400 * MicrosPerDollar,

		CommentaryMin:      10 * time.Second,
		CommentaryMax:      20 * time.Second,
		ThoughtProb:        0.65,
		BribeFollowUpAfter: 30 * time.Second,
		BribeSettleAfter:   90 * time.Second,
		BribeSettleProb:    0.30,
		BribeMinMicros:     50 * MicrosPerDollar,
		BribeMaxMicros:     250 * MicrosPerDollar,

		AnnounceEvery: 45 * time.Second,
		AnnounceProb:  0.25,

		JitterEvery: 15 * time.Second,
		JitterScale: 0.015,

		ReactionThresholdMicros: 1_000 * MicrosPerDollar,
		ReactionDelay:           3 * time.Second,
		CounterTradeAfter:       2 * time.Minute,
		CounterTradeProb:        0.30,

		IncreaseFrames:   5,
		IncreaseDuration: 750 * time.Millisecond,
		DecreaseFrames:   4,
		DecreaseDuration: 800 * time.Millisecond,

		SubscriberBuffer: 256,

		Script: DefaultScript(),
	}
}

// withDefaults fills zero-valued structural fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Epoch.IsZero() {
		c.Epoch = def.Epoch
	}
	if c.UserAgent == "" {
		c.UserAgent = def.UserAgent
	}
	if len(c.Assets) == 0 {
		c.Assets = def.Assets
	}
	if c.BaselineMicros <= 0 {
		c.BaselineMicros = def.BaselineMicros
	}
	if c.TradeEvery <= 0 {
		c.TradeEvery = def.TradeEvery
	}
	if c.TradeMinMicros <= 0 {
		c.TradeMinMicros = def.TradeMinMicros
	}
	if c.TradeMaxMicros < c.TradeMinMicros {
		c.TradeMaxMicros = c.TradeMinMicros
	}
	if c.DriftEvery <= 0 {
		c.DriftEvery = def.DriftEvery
	}
	if c.DriftMinMicros <= 0 {
		c.DriftMinMicros = def.DriftMinMicros
	}
	if c.DriftMaxMicros < c.DriftMinMicros {
		c.DriftMaxMicros = c.DriftMinMicros
	}
	if c.CommentaryMin <= 0 {
		c.CommentaryMin = def.CommentaryMin
	}
	if c.CommentaryMax < c.CommentaryMin {
		c.CommentaryMax = c.CommentaryMin
	}
	if c.BribeFollowUpAfter <= 0 {
		c.BribeFollowUpAfter = def.BribeFollowUpAfter
	}
	if c.BribeSettleAfter <= 0 {
		c.BribeSettleAfter = def.BribeSettleAfter
	}
	if c.BribeMinMicros <= 0 {
		c.BribeMinMicros = def.BribeMinMicros
	}
	if c.BribeMaxMicros < c.BribeMinMicros {
		c.BribeMaxMicros = c.BribeMinMicros
	}
	if c.AnnounceEvery <= 0 {
		c.AnnounceEvery = def.AnnounceEvery
	}
	if c.JitterEvery <= 0 {
		c.JitterEvery = def.JitterEvery
	}
	if c.ReactionThresholdMicros <= 0 {
		c.ReactionThresholdMicros = def.ReactionThresholdMicros
	}
	if c.CounterTradeAfter <= 0 {
		c.CounterTradeAfter = def.CounterTradeAfter
	}
	if c.IncreaseFrames <= 0 {
		c.IncreaseFrames = def.IncreaseFrames
	}
	if c.IncreaseDuration <= 0 {
		c.IncreaseDuration = def.IncreaseDuration
	}
	if c.DecreaseFrames <= 0 {
		c.DecreaseFrames = def.DecreaseFrames
	}
	if c.DecreaseDuration <= 0 {
		c.DecreaseDuration = def.DecreaseDuration
	}
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = def.SubscriberBuffer
	}
	c.Script = c.Script.withDefaults(def.Script)
	return c
}
