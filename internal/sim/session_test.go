package sim

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"
)

// quietConfig disables every random generator so tests drive the session
// through ExecuteTrade alone.
func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.TradeProb = 0
	cfg.DriftProb = 0
	cfg.ThoughtProb = 1
	cfg.CommentaryMin = time.Hour
	cfg.CommentaryMax = time.Hour
	cfg.AnnounceProb = 0
	cfg.JitterScale = 0
	cfg.CounterTradeProb = 0
	return cfg
}

func TestExecuteTradeUserBuy(t *testing.T) {
	s := NewSession(quietConfig())
	defer s.Close()

	act, err := s.ExecuteTrade(TradeIntent{
		AgentID:     "BullRunner",
		Symbol:      "BTC",
		IsBuy:       true,
		PriceMicros: 50_000 * MicrosPerDollar,
		AmountUnits: UnitScale / 10,
	})
	if err != nil {
		t.Fatalf("trade: %v", err)
	}
	if act.Action != ActionBuy || act.TotalMicros != 5_000*MicrosPerDollar {
		t.Fatalf("unexpected activity: %+v", act)
	}

	snap := s.Snapshot()
	if snap.CashMicros != 320*MicrosPerDollar {
		t.Fatalf("cash=%d want %d", snap.CashMicros, 320*MicrosPerDollar)
	}

	changes := s.BalanceChanges()
	if len(changes) != 1 || changes[0].Type != ChangeDecrease || changes[0].AmountMicros != 5_000*MicrosPerDollar {
		t.Fatalf("unexpected balance changes: %+v", changes)
	}

	thoughts := s.Feed(FeedOptions{ShowThinking: true})
	if len(thoughts) != 1 {
		t.Fatalf("thoughts=%d want 1", len(thoughts))
	}
	if !strings.Contains(thoughts[0].Content, "BTC") || !strings.Contains(thoughts[0].Content, "50000") {
		t.Fatalf("thought does not name symbol and price: %q", thoughts[0].Content)
	}

	if got := s.Activities(0); len(got) != 1 || got[0].ID != act.ID {
		t.Fatalf("unexpected activities: %+v", got)
	}

	// A change above the reaction threshold produces a market impact notice.
	s.Advance(3 * time.Second)
	public := s.Feed(FeedOptions{Public: true})
	if len(public) != 1 || public[0].SenderID != SystemSender {
		t.Fatalf("expected one system message, got %+v", public)
	}
	if s.Snapshot().DisplayMicros != 320*MicrosPerDollar {
		t.Fatalf("display did not settle on the new balance")
	}
}

func TestBuyClampsCashAtZero(t *testing.T) {
	s := NewSession(quietConfig())
	defer s.Close()

	_, err := s.ExecuteTrade(TradeIntent{
		AgentID:     "BullRunner",
		Symbol:      "BTC",
		IsBuy:       true,
		PriceMicros: 50_000 * MicrosPerDollar,
		AmountUnits: 2 * UnitScale / 10,
	})
	if err != nil {
		t.Fatalf("trade: %v", err)
	}
	if cash := s.Snapshot().CashMicros; cash != 0 {
		t.Fatalf("cash=%d want 0", cash)
	}
	changes := s.BalanceChanges()
	if len(changes) != 1 || changes[0].AmountMicros != 5_320*MicrosPerDollar {
		t.Fatalf("change should record the clamped amount: %+v", changes)
	}
}

func TestSellClampsHoldingsAtZero(t *testing.T) {
	s := NewSession(quietConfig())
	defer s.Close()

	_, err := s.ExecuteTrade(TradeIntent{
		AgentID:     "BullRunner",
		Symbol:      "BTC",
		PriceMicros: 50_000 * MicrosPerDollar,
		AmountUnits: UnitScale,
	})
	if err != nil {
		t.Fatalf("trade: %v", err)
	}
	snap := s.Snapshot()
	if snap.CashMicros != 55_320*MicrosPerDollar {
		t.Fatalf("cash=%d want %d", snap.CashMicros, 55_320*MicrosPerDollar)
	}
	for _, h := range snap.Holdings {
		if h.Symbol == "BTC" && h.AmountUnits != 0 {
			t.Fatalf("btc holding=%d want 0", h.AmountUnits)
		}
	}
}

func TestExecuteTradeRejectsBadInput(t *testing.T) {
	s := NewSession(quietConfig())
	defer s.Close()

	tests := []struct {
		in   TradeIntent
		want error
	}{
		{in: TradeIntent{Symbol: "BTC", AmountUnits: 1}, want: ErrInvalidTrade},
		{in: TradeIntent{Symbol: "BTC", PriceMicros: 1}, want: ErrInvalidTrade},
		{in: TradeIntent{PriceMicros: 1, AmountUnits: 1}, want: ErrInvalidTrade},
		{in: TradeIntent{AgentID: "Nobody", Symbol: "BTC", PriceMicros: 1, AmountUnits: 1}, want: ErrUnknownAgent},
	}
	for _, tc := range tests {
		if _, err := s.ExecuteTrade(tc.in); !errors.Is(err, tc.want) {
			t.Fatalf("intent=%+v err=%v want %v", tc.in, err, tc.want)
		}
	}

	s.Close()
	_, err := s.ExecuteTrade(TradeIntent{Symbol: "BTC", PriceMicros: 1, AmountUnits: 1})
	if !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("err=%v want %v", err, ErrSessionClosed)
	}
}

func TestRankingsStaySorted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 7
	s := NewSession(cfg)
	defer s.Close()

	for i := 0; i < 40; i++ {
		s.Advance(15 * time.Second)
		rows := s.Rankings()
		if len(rows) != len(cfg.Rivals)+1 {
			t.Fatalf("rows=%d want %d", len(rows), len(cfg.Rivals)+1)
		}
		users := 0
		for j, r := range rows {
			if r.ID != j+1 {
				t.Fatalf("row %d has id %d", j, r.ID)
			}
			if r.IsUser {
				users++
			}
			if j > 0 && rows[j-1].PortfolioMicros < r.PortfolioMicros {
				t.Fatalf("rankings out of order at %d: %+v", j, rows)
			}
		}
		if users != 1 {
			t.Fatalf("expected exactly one user row, got %d", users)
		}
	}
}

func TestSortRankingsBreaksTiesByName(t *testing.T) {
	rows := []AgentRanking{
		{Name: "Zed", PortfolioMicros: 100},
		{Name: "Amy", PortfolioMicros: 100},
		{Name: "Max", PortfolioMicros: 300},
	}
	SortRankings(rows, 100)
	got := []string{rows[0].Name, rows[1].Name, rows[2].Name}
	if want := []string{"Max", "Amy", "Zed"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("order=%v want %v", got, want)
	}
	if rows[0].PercentChange != 200 || rows[1].ID != 2 {
		t.Fatalf("unexpected row: %+v", rows[0])
	}
}

func TestBribeGetsExactlyOneFollowUp(t *testing.T) {
	cfg := quietConfig()
	cfg.ThoughtProb = 0
	cfg.BribeSettleProb = 0
	s := NewSession(cfg)
	defer s.Close()

	s.Advance(time.Hour)
	msgs := s.Feed(FeedOptions{ShowThinking: true})
	if len(msgs) != 1 || !msgs[0].IsBribery || msgs[0].ReceiverID == nil {
		t.Fatalf("expected one bribery message, got %+v", msgs)
	}
	target := *msgs[0].ReceiverID
	if s.sched.PendingLabeled("bribe-followup") != 1 {
		t.Fatalf("expected one pending follow-up")
	}

	s.Advance(cfg.BribeFollowUpAfter)
	s.Advance(cfg.BribeFollowUpAfter)
	msgs = s.Feed(FeedOptions{ShowThinking: true})
	if len(msgs) != 2 {
		t.Fatalf("messages=%d want 2", len(msgs))
	}
	followUp := msgs[0]
	if !followUp.IsThinking || !strings.Contains(followUp.Content, target) {
		t.Fatalf("follow-up does not name %q: %+v", target, followUp)
	}
	if hidden := s.Feed(FeedOptions{}); len(hidden) != 1 {
		t.Fatalf("private feed without thinking should only show the bribe, got %d", len(hidden))
	}
}

func TestBribeSettlementChargesCash(t *testing.T) {
	cfg := quietConfig()
	cfg.ThoughtProb = 0
	cfg.BribeSettleProb = 1
	s := NewSession(cfg)
	defer s.Close()

	s.Advance(time.Hour + cfg.BribeSettleAfter)
	acts := s.Activities(0)
	if len(acts) != 1 || acts[0].Action != ActionBribe {
		t.Fatalf("expected one bribe activity, got %+v", acts)
	}
	paid := acts[0].TotalMicros
	if paid < cfg.BribeMinMicros || paid > cfg.BribeMaxMicros {
		t.Fatalf("bribe %d outside range", paid)
	}
	if cash := s.Snapshot().CashMicros; cash != cfg.StartCashMicros-paid {
		t.Fatalf("cash=%d want %d", cash, cfg.StartCashMicros-paid)
	}
}

func TestCounterTradeTakesOppositeSide(t *testing.T) {
	cfg := quietConfig()
	cfg.CounterTradeProb = 1
	s := NewSession(cfg)
	defer s.Close()

	_, err := s.ExecuteTrade(TradeIntent{
		AgentID:     "BullRunner",
		Symbol:      "BTC",
		IsBuy:       true,
		PriceMicros: 50_000 * MicrosPerDollar,
		AmountUnits: UnitScale / 10,
	})
	if err != nil {
		t.Fatalf("trade: %v", err)
	}
	s.Advance(cfg.CounterTradeAfter)

	acts := s.Activities(0)
	if len(acts) != 2 {
		t.Fatalf("activities=%d want 2", len(acts))
	}
	counter := acts[0]
	if counter.Action != ActionSell || counter.AgentID == cfg.UserAgent {
		t.Fatalf("unexpected counter-trade: %+v", counter)
	}
}

func TestGeneratedTradesArePositive(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 42
	cfg.TradeProb = 1
	s := NewSession(cfg)
	defer s.Close()

	s.Advance(20 * time.Minute)
	trades := 0
	for _, a := range s.Activities(0) {
		if a.Action != ActionBuy && a.Action != ActionSell {
			continue
		}
		trades++
		if a.AmountUnits <= 0 || a.PriceMicros <= 0 {
			t.Fatalf("bad trade: %+v", a)
		}
		want, err := NotionalMicros(a.PriceMicros, a.AmountUnits)
		if err != nil || a.TotalMicros != want {
			t.Fatalf("total=%d want %d (err=%v)", a.TotalMicros, want, err)
		}
	}
	if trades < 100 {
		t.Fatalf("trades=%d, expected one per 8s tick", trades)
	}
	if s.Snapshot().CashMicros < 0 {
		t.Fatalf("cash went negative")
	}
}

func TestSameSeedReplaysIdentically(t *testing.T) {
	run := func() ([]Activity, []Message, []AgentRanking, []BalanceChange) {
		cfg := DefaultConfig()
		cfg.Seed = 99
		s := NewSession(cfg)
		defer s.Close()
		_, _ = s.ExecuteTrade(TradeIntent{Symbol: "ETH", IsBuy: true, PriceMicros: 3_000 * MicrosPerDollar, AmountUnits: UnitScale})
		s.Advance(15 * time.Minute)
		return s.Activities(0), s.Messages(), s.Rankings(), s.BalanceChanges()
	}
	a1, m1, r1, b1 := run()
	a2, m2, r2, b2 := run()
	if !reflect.DeepEqual(a1, a2) || !reflect.DeepEqual(m1, m2) || !reflect.DeepEqual(r1, r2) || !reflect.DeepEqual(b1, b2) {
		t.Fatalf("same seed produced different records")
	}
}

func TestNewChangeCancelsPendingFrames(t *testing.T) {
	s := NewSession(quietConfig())
	defer s.Close()

	_, _ = s.ExecuteTrade(TradeIntent{Symbol: "BTC", PriceMicros: 50_000 * MicrosPerDollar, AmountUnits: 100})
	if n := s.sched.PendingLabeled("frame"); n != 5 {
		t.Fatalf("increase frames=%d want 5", n)
	}
	_, _ = s.ExecuteTrade(TradeIntent{Symbol: "ETH", IsBuy: true, PriceMicros: 3_000 * MicrosPerDollar, AmountUnits: 1_000})
	if n := s.sched.PendingLabeled("frame"); n != 4 {
		t.Fatalf("decrease frames=%d want 4", n)
	}
	s.Advance(time.Second)
	snap := s.Snapshot()
	if snap.DisplayMicros != snap.CashMicros {
		t.Fatalf("display=%d cash=%d", snap.DisplayMicros, snap.CashMicros)
	}
}

func TestBalanceFrames(t *testing.T) {
	if got, want := BalanceFrames(0, 100, 5), []int64{20, 40, 60, 80, 100}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
	if got, want := BalanceFrames(100, 0, 4), []int64{75, 50, 25, 0}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestSubscribeDeliversAndCloses(t *testing.T) {
	s := NewSession(quietConfig())
	ch, cancel := s.Subscribe(64)
	defer cancel()

	_, _ = s.ExecuteTrade(TradeIntent{Symbol: "BTC", IsBuy: true, PriceMicros: 50_000 * MicrosPerDollar, AmountUnits: 10})
	seen := map[RecordKind]bool{}
	for i := 0; i < 4; i++ {
		rec := <-ch
		seen[rec.Kind] = true
	}
	for _, k := range []RecordKind{RecordActivity, RecordMessage, RecordBalance, RecordRankings} {
		if !seen[k] {
			t.Fatalf("missing %s record, saw %v", k, seen)
		}
	}

	s.Close()
	for range ch {
	}
	if s.sched.Pending() != 0 {
		t.Fatalf("close should clear the scheduler")
	}
}

func TestSubscribeCountsDrops(t *testing.T) {
	s := NewSession(quietConfig())
	defer s.Close()
	_, cancel := s.Subscribe(1)
	defer cancel()

	_, _ = s.ExecuteTrade(TradeIntent{Symbol: "BTC", IsBuy: true, PriceMicros: 50_000 * MicrosPerDollar, AmountUnits: 10})
	if s.Dropped() == 0 {
		t.Fatalf("expected dropped records with a one-slot buffer")
	}
}

func TestOverflowingTradeLeavesSessionUntouched(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*Session)
		in    TradeIntent
	}{
		{
			name: "sell proceeds overflow cash",
			in:   TradeIntent{Symbol: "BTC", PriceMicros: math.MaxInt64, AmountUnits: UnitScale},
		},
		{
			name: "buy overflows holdings",
			in:   TradeIntent{Symbol: "BTC", IsBuy: true, PriceMicros: 1, AmountUnits: math.MaxInt64 - 100},
		},
		{
			name: "new price overflows portfolio value",
			in:   TradeIntent{Symbol: "BTC", IsBuy: true, PriceMicros: math.MaxInt64, AmountUnits: 1},
		},
		{
			name:  "user volume overflows",
			setup: func(s *Session) { s.userVolume = math.MaxInt64 - 1 },
			in:    TradeIntent{Symbol: "ETH", IsBuy: true, PriceMicros: 3_000 * MicrosPerDollar, AmountUnits: UnitScale / 100},
		},
		{
			name:  "rival volume overflows",
			setup: func(s *Session) { s.rival("QuickBot").volume = math.MaxInt64 - 1 },
			in:    TradeIntent{AgentID: "QuickBot", Symbol: "ETH", PriceMicros: 3_000 * MicrosPerDollar, AmountUnits: UnitScale},
		},
		{
			name: "rival price overflows user holdings",
			in:   TradeIntent{AgentID: "QuickBot", Symbol: "USDT", IsBuy: true, PriceMicros: math.MaxInt64 / 100, AmountUnits: 1},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := NewSession(quietConfig())
			defer s.Close()
			if tc.setup != nil {
				tc.setup(s)
			}
			ch, cancel := s.Subscribe(64)
			defer cancel()
			before := s.Snapshot()
			ranks := s.Rankings()
			rivalVolume := s.rival("QuickBot").volume

			if _, err := s.ExecuteTrade(tc.in); !errors.Is(err, ErrNotionalOverflow) {
				t.Fatalf("err=%v want %v", err, ErrNotionalOverflow)
			}
			if after := s.Snapshot(); !reflect.DeepEqual(before, after) {
				t.Fatalf("snapshot changed:\nbefore %+v\nafter  %+v", before, after)
			}
			if got := s.Rankings(); !reflect.DeepEqual(ranks, got) {
				t.Fatalf("rankings changed: %+v", got)
			}
			if got := s.rival("QuickBot").volume; got != rivalVolume {
				t.Fatalf("rival volume=%d want %d", got, rivalVolume)
			}
			select {
			case rec := <-ch:
				t.Fatalf("unexpected record %s", rec.Kind)
			default:
			}
		})
	}
}

func TestApplyCashSaturates(t *testing.T) {
	s := NewSession(quietConfig())
	defer s.Close()
	s.cash = math.MaxInt64 - 10
	s.applyCash(100)
	if s.cash != math.MaxInt64 {
		t.Fatalf("cash=%d want %d", s.cash, int64(math.MaxInt64))
	}
	if got := s.portfolio(); got != math.MaxInt64 {
		t.Fatalf("portfolio=%d want saturation", got)
	}
}

func TestDriftLoopMovesCashWithinBounds(t *testing.T) {
	for seed := int64(1); seed <= 40; seed++ {
		cfg := quietConfig()
		cfg.Seed = seed
		cfg.DriftProb = 1
		cfg.StartCashMicros = 10 * MicrosPerDollar
		s := NewSession(cfg)

		s.Advance(cfg.DriftEvery)
		changes := s.BalanceChanges()
		cash := s.Snapshot().CashMicros
		s.Close()

		if len(changes) != 1 {
			t.Fatalf("seed %d: changes=%d want 1", seed, len(changes))
		}
		bc := changes[0]
		switch bc.Type {
		case ChangeIncrease:
			if bc.AmountMicros < cfg.DriftMinMicros || bc.AmountMicros > cfg.DriftMaxMicros {
				t.Fatalf("seed %d: drift %d outside [%d, %d]", seed, bc.AmountMicros, cfg.DriftMinMicros, cfg.DriftMaxMicros)
			}
			if cash != cfg.StartCashMicros+bc.AmountMicros {
				t.Fatalf("seed %d: cash=%d after +%d", seed, cash, bc.AmountMicros)
			}
		case ChangeDecrease:
			// Every drawn amount exceeds the $10 balance, so a decrease stops at zero.
			if bc.AmountMicros != cfg.StartCashMicros || cash != 0 {
				t.Fatalf("seed %d: decrease=%d cash=%d want clamp at zero", seed, bc.AmountMicros, cash)
			}
		default:
			t.Fatalf("seed %d: unexpected change type %q", seed, bc.Type)
		}
	}
}

func TestAnnouncementLoopPostsCannedSystemMessage(t *testing.T) {
	canned := map[string]int{}
	for _, a := range DefaultScript().Announcements {
		canned[a.Content] = a.Impact
	}
	if len(canned) != 8 {
		t.Fatalf("default script has %d announcements want 8", len(canned))
	}

	for seed := int64(1); seed <= 20; seed++ {
		cfg := quietConfig()
		cfg.Seed = seed
		cfg.AnnounceProb = 1
		s := NewSession(cfg)

		s.Advance(cfg.AnnounceEvery)
		public := s.Feed(FeedOptions{Public: true})
		s.Close()

		if len(public) != 1 {
			t.Fatalf("seed %d: public=%d want 1", seed, len(public))
		}
		m := public[0]
		impact, ok := canned[m.Content]
		if !ok {
			t.Fatalf("seed %d: %q is not a canned announcement", seed, m.Content)
		}
		if m.SenderID != SystemSender || !m.IsPublic || m.Impact != impact {
			t.Fatalf("seed %d: unexpected announcement %+v want impact %d", seed, m, impact)
		}
	}
}

func TestJitterLoopKeepsRivalsWithinScale(t *testing.T) {
	start := map[string]int64{}
	for _, r := range DefaultConfig().Rivals {
		start[r.Name] = r.PortfolioMicros
	}

	for seed := int64(1); seed <= 20; seed++ {
		cfg := quietConfig()
		cfg.Seed = seed
		cfg.JitterScale = 0.015
		s := NewSession(cfg)

		s.Advance(cfg.JitterEvery)
		rows := s.Rankings()
		s.Close()

		if len(rows) != len(cfg.Rivals)+1 {
			t.Fatalf("seed %d: rows=%d want %d", seed, len(rows), len(cfg.Rivals)+1)
		}
		for i, r := range rows {
			if r.ID != i+1 {
				t.Fatalf("seed %d: row %d has id %d", seed, i, r.ID)
			}
			if i > 0 && rows[i-1].PortfolioMicros < r.PortfolioMicros {
				t.Fatalf("seed %d: rankings out of order at %d", seed, i)
			}
			if r.IsUser {
				continue
			}
			base := start[r.Name]
			limit := int64(math.Ceil(float64(base)*cfg.JitterScale)) + 1
			if d := r.PortfolioMicros - base; d > limit || d < -limit {
				t.Fatalf("seed %d: %s moved %d, limit %d", seed, r.Name, d, limit)
			}
		}
	}
}

func TestSnapshotAndSubscribeMissesNothing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TradeProb = 1
	cfg.TradeEvery = time.Second
	s := NewSession(cfg)
	defer s.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 300; i++ {
			s.Advance(time.Second)
		}
	}()
	snap, ch, cancel := s.SnapshotAndSubscribe(1 << 15)
	defer cancel()
	<-done

	streamed := 0
	for drained := false; !drained; {
		select {
		case rec := <-ch:
			if rec.Kind == RecordActivity {
				streamed++
			}
		default:
			drained = true
		}
	}
	if s.Dropped() != 0 {
		t.Fatalf("dropped %d records", s.Dropped())
	}
	if total := len(s.Activities(0)); snap.Activities+streamed != total {
		t.Fatalf("snapshot %d + streamed %d != %d activities", snap.Activities, streamed, total)
	}
}
