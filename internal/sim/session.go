package sim

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidTrade  = errors.New("trade needs a symbol, a price > 0 and an amount > 0")
	ErrUnknownAgent  = errors.New("agent is not part of this session")
	ErrSessionClosed = errors.New("session closed")
)

const idSeedMix = int64(0x5DEECE66D)

type rival struct {
	name      string
	portfolio int64
	volume    int64
	trades    int
}

// Session is one seeded game-detail simulation. All state changes happen
// on the virtual clock while the session mutex is held, so the same seed
// and the same calls always produce the same records.
type Session struct {
	mu     sync.Mutex
	cfg    Config
	sched  *Scheduler
	rng    *rand.Rand
	ids    *rand.Rand
	seq    int64
	loops  []*loop
	closed bool

	cash       int64
	display    int64
	frames     []EventID
	holdings   map[string]int64
	prices     map[string]int64
	rivals     []*rival
	userVolume int64
	userTrades int

	activities []Activity
	public     []Message
	private    []Message
	rankings   []AgentRanking
	changes    []BalanceChange

	subs    map[int]chan Record
	nextSub int
	dropped atomic.Int64
}

func NewSession(cfg Config) *Session {
	cfg = cfg.withDefaults()
	s := &Session{
		cfg:      cfg,
		sched:    NewScheduler(),
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		ids:      rand.New(rand.NewSource(cfg.Seed ^ idSeedMix)),
		cash:     max(cfg.StartCashMicros, 0),
		holdings: make(map[string]int64, len(cfg.HoldingUnits)),
		prices:   make(map[string]int64, len(cfg.Assets)),
		subs:     make(map[int]chan Record),
	}
	s.display = s.cash
	for _, a := range cfg.Assets {
		s.prices[a.Symbol] = a.PriceMicros
	}
	for sym, units := range cfg.HoldingUnits {
		if units > 0 {
			s.holdings[sym] = units
		}
	}
	for _, r := range cfg.Rivals {
		s.rivals = append(s.rivals, &rival{name: r.Name, portfolio: max(r.PortfolioMicros, 0)})
	}
	s.recomputeRankings()

	s.loops = []*loop{
		startLoop(s.sched, "trade", every(cfg.TradeEvery), s.tradeTick),
		startLoop(s.sched, "drift", every(cfg.DriftEvery), s.driftTick),
		startLoop(s.sched, "commentary", s.commentaryDelay, s.commentaryTick),
		startLoop(s.sched, "announce", every(cfg.AnnounceEvery), s.announceTick),
		startLoop(s.sched, "jitter", every(cfg.JitterEvery), s.jitterTick),
	}
	return s
}

// Advance moves the virtual clock forward by d and runs everything due.
func (s *Session) Advance(d time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	return s.sched.Advance(d)
}

// AdvanceTo moves the virtual clock to elapsed time t.
func (s *Session) AdvanceTo(t time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	return s.sched.AdvanceTo(t)
}

func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sched.Now()
}

func (s *Session) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now()
}

func (s *Session) UserAgent() string {
	return s.cfg.UserAgent
}

// ReferencePrice returns the last traded price of symbol.
func (s *Session) ReferencePrice(symbol string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prices[symbol]
	return p, ok && p > 0
}

// ExecuteTrade books a trade for the user's agent or one of the rivals.
func (s *Session) ExecuteTrade(in TradeIntent) (Activity, error) {
	if in.Symbol == "" || in.PriceMicros <= 0 || in.AmountUnits <= 0 {
		return Activity{}, ErrInvalidTrade
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Activity{}, ErrSessionClosed
	}
	if in.AgentID == "" {
		in.AgentID = s.cfg.UserAgent
	}
	if in.AgentID != s.cfg.UserAgent && s.rival(in.AgentID) == nil {
		return Activity{}, ErrUnknownAgent
	}
	return s.executeTrade(in)
}

func (s *Session) executeTrade(in TradeIntent) (Activity, error) {
	total, err := NotionalMicros(in.PriceMicros, in.AmountUnits)
	if err != nil {
		return Activity{}, err
	}

	// Work out every sum the trade touches before changing anything, so an
	// overflowing trade leaves the session as it was.
	isUser := in.AgentID == s.cfg.UserAgent
	units := s.holdings[in.Symbol]
	cash := s.cash
	var volume, rivalPortfolio int64
	var r *rival
	if isUser {
		if volume, err = addMicros(s.userVolume, total); err != nil {
			return Activity{}, err
		}
		if in.IsBuy {
			if units, err = addMicros(units, in.AmountUnits); err != nil {
				return Activity{}, err
			}
			cash = max(cash-total, 0)
		} else {
			units = max(units-in.AmountUnits, 0)
			if cash, err = addMicros(cash, total); err != nil {
				return Activity{}, err
			}
		}
	} else if r = s.rival(in.AgentID); r != nil {
		if volume, err = addMicros(r.volume, total); err != nil {
			return Activity{}, err
		}
		pnl := int64(math.Round(float64(total) * s.uniform(-s.cfg.RivalPnLSpread, s.cfg.RivalPnLSpread)))
		if rivalPortfolio, err = addMicros(r.portfolio, pnl); err != nil {
			return Activity{}, err
		}
	}
	price := s.prices[in.Symbol]
	if _, tracked := s.prices[in.Symbol]; tracked {
		price = in.PriceMicros
	}
	if _, err := s.portfolioAt(cash, in.Symbol, price, units); err != nil {
		return Activity{}, err
	}

	action := ActionSell
	if in.IsBuy {
		action = ActionBuy
	}
	act := Activity{
		ID:          s.nextID("act"),
		AgentID:     in.AgentID,
		Action:      action,
		Symbol:      in.Symbol,
		AmountUnits: in.AmountUnits,
		PriceMicros: in.PriceMicros,
		TotalMicros: total,
		Timestamp:   s.now(),
	}
	s.pushActivity(act)
	if _, ok := s.prices[in.Symbol]; ok {
		s.prices[in.Symbol] = in.PriceMicros
	}

	if isUser {
		s.userTrades++
		s.userVolume = volume
		templates := s.cfg.Script.SellRationales
		if in.IsBuy {
			templates = s.cfg.Script.BuyRationales
		}
		thought := fmt.Sprintf(s.pick(templates), in.Symbol, PlainDollars(in.PriceMicros), PlainCoins(in.AmountUnits))
		s.pushPrivate(Message{SenderID: s.cfg.UserAgent, Content: thought, IsThinking: true})
		s.holdings[in.Symbol] = units
		if in.IsBuy {
			s.applyCash(-total)
		} else {
			s.applyCash(total)
		}
	} else if r != nil {
		r.trades++
		r.volume = volume
		r.portfolio = max(rivalPortfolio, 0)
	}
	s.recomputeRankings()
	return act, nil
}

// fabricateTrade draws a price around the reference and a notional in the
// configured range, then books it.
func (s *Session) fabricateTrade(agent string, isBuy bool, symbol string) {
	ref := s.prices[symbol]
	if ref <= 0 {
		return
	}
	price := int64(math.Round(float64(ref) * (1 + s.uniform(-s.cfg.PriceSpread, s.cfg.PriceSpread))))
	if price < 1 {
		price = 1
	}
	notional := s.cfg.TradeMinMicros + s.rng.Int63n(s.cfg.TradeMaxMicros-s.cfg.TradeMinMicros+1)
	units := notional * UnitScale / price
	if units < 1 {
		units = 1
	}
	_, _ = s.executeTrade(TradeIntent{
		AgentID:     agent,
		Symbol:      symbol,
		IsBuy:       isBuy,
		PriceMicros: price,
		AmountUnits: units,
	})
}

func (s *Session) tradeTick() {
	if s.rng.Float64() >= s.cfg.TradeProb {
		return
	}
	symbols := s.tradable()
	if len(symbols) == 0 {
		return
	}
	agent := s.cfg.UserAgent
	if idx := s.rng.Intn(len(s.rivals) + 1); idx < len(s.rivals) {
		agent = s.rivals[idx].name
	}
	symbol := symbols[s.rng.Intn(len(symbols))]
	isBuy := s.rng.Float64() < 0.5
	s.fabricateTrade(agent, isBuy, symbol)
}

func (s *Session) driftTick() {
	if s.rng.Float64() >= s.cfg.DriftProb {
		return
	}
	amount := s.cfg.DriftMinMicros + s.rng.Int63n(s.cfg.DriftMaxMicros-s.cfg.DriftMinMicros+1)
	if s.rng.Float64() < 0.5 {
		amount = -amount
	}
	s.applyCash(amount)
	s.recomputeRankings()
}

func (s *Session) commentaryDelay() time.Duration {
	span := s.cfg.CommentaryMax - s.cfg.CommentaryMin
	if span <= 0 {
		return s.cfg.CommentaryMin
	}
	return s.cfg.CommentaryMin + time.Duration(s.rng.Int63n(int64(span)+1))
}

func (s *Session) commentaryTick() {
	user := s.cfg.UserAgent
	if s.rng.Float64() < s.cfg.ThoughtProb || len(s.rivals) == 0 {
		s.pushPrivate(Message{SenderID: user, Content: s.pick(s.cfg.Script.Thoughts), IsThinking: true})
		return
	}

	target := s.rivals[s.rng.Intn(len(s.rivals))].name
	receiver := target
	s.pushPrivate(Message{
		SenderID:   user,
		ReceiverID: &receiver,
		Content:    fmt.Sprintf(s.pick(s.cfg.Script.Bribes), target),
		IsBribery:  true,
	})

	success := fmt.Sprintf(s.pick(s.cfg.Script.BribeSuccess), target)
	s.sched.After(s.cfg.BribeFollowUpAfter, "bribe-followup", func() {
		s.pushPrivate(Message{SenderID: user, Content: success, IsThinking: true})
	})

	if s.rng.Float64() >= s.cfg.BribeSettleProb {
		return
	}
	amount := s.cfg.BribeMinMicros + s.rng.Int63n(s.cfg.BribeMaxMicros-s.cfg.BribeMinMicros+1)
	s.sched.After(s.cfg.BribeSettleAfter, "bribe-settle", func() {
		s.pushActivity(Activity{
			ID:          s.nextID("act"),
			AgentID:     user,
			Action:      ActionBribe,
			TotalMicros: amount,
			Content:     fmt.Sprintf("Paid $%s to %s", PlainDollars(amount), target),
			Timestamp:   s.now(),
		})
		s.applyCash(-amount)
		s.recomputeRankings()
	})
}

func (s *Session) announceTick() {
	if s.rng.Float64() >= s.cfg.AnnounceProb || len(s.cfg.Script.Announcements) == 0 {
		return
	}
	a := s.cfg.Script.Announcements[s.rng.Intn(len(s.cfg.Script.Announcements))]
	s.pushPublic(a.Content, a.Impact)
}

func (s *Session) jitterTick() {
	for _, r := range s.rivals {
		f := 1 + s.uniform(-s.cfg.JitterScale, s.cfg.JitterScale)
		r.portfolio = max(int64(math.Round(float64(r.portfolio)*f)), 0)
	}
	s.recomputeRankings()
}

// applyCash moves the user's cash by delta, clamped at zero, and runs the
// balance-change reactions for the amount actually applied.
func (s *Session) applyCash(delta int64) {
	from := s.cash
	to := max(saturatingAdd(from, delta), 0)
	change := to - from
	if change == 0 {
		return
	}
	s.cash = to

	bc := BalanceChange{AmountMicros: change, Timestamp: s.now(), Type: ChangeIncrease}
	if change < 0 {
		bc.AmountMicros = -change
		bc.Type = ChangeDecrease
	}
	s.changes = append(s.changes, bc)
	s.emit(Record{Kind: RecordBalance, At: bc.Timestamp, Balance: &bc})

	s.animate(s.display, to, bc.Type == ChangeIncrease)
	s.react(bc)
}

func (s *Session) animate(from, to int64, increase bool) {
	for _, id := range s.frames {
		s.sched.Cancel(id)
	}
	s.frames = s.frames[:0]

	steps, total := s.cfg.DecreaseFrames, s.cfg.DecreaseDuration
	if increase {
		steps, total = s.cfg.IncreaseFrames, s.cfg.IncreaseDuration
	}
	step := total / time.Duration(steps)
	for i, v := range BalanceFrames(from, to, steps) {
		id := s.sched.After(step*time.Duration(i+1), "frame", func() {
			s.display = v
			s.emit(Record{Kind: RecordFrame, At: s.now(), DisplayMicros: v})
		})
		s.frames = append(s.frames, id)
	}
}

func (s *Session) react(bc BalanceChange) {
	if bc.AmountMicros <= s.cfg.ReactionThresholdMicros {
		return
	}
	direction := "rose"
	if bc.Type == ChangeDecrease {
		direction = "fell"
	}
	content := fmt.Sprintf(s.cfg.Script.MarketImpact, s.cfg.UserAgent, direction, PlainDollars(bc.AmountMicros))
	impact := s.cfg.Script.MarketImpactOf
	s.sched.After(s.cfg.ReactionDelay, "market-impact", func() {
		s.pushPublic(content, impact)
	})

	if len(s.rivals) == 0 || s.rng.Float64() >= s.cfg.CounterTradeProb {
		return
	}
	symbols := s.tradable()
	if len(symbols) == 0 {
		return
	}
	agent := s.rivals[s.rng.Intn(len(s.rivals))].name
	symbol := symbols[s.rng.Intn(len(symbols))]
	// Cash going up means the user sold, so the counter-trade buys.
	isBuy := bc.Type == ChangeIncrease
	s.sched.After(s.cfg.CounterTradeAfter, "counter-trade", func() {
		s.fabricateTrade(agent, isBuy, symbol)
	})
}

func (s *Session) recomputeRankings() {
	rows := make([]AgentRanking, 0, len(s.rivals)+1)
	rows = append(rows, AgentRanking{
		Name:            s.cfg.UserAgent,
		PortfolioMicros: s.portfolio(),
		VolumeMicros:    s.userVolume,
		Trades:          s.userTrades,
		IsUser:          true,
	})
	for _, r := range s.rivals {
		rows = append(rows, AgentRanking{
			Name:            r.name,
			PortfolioMicros: r.portfolio,
			VolumeMicros:    r.volume,
			Trades:          r.trades,
		})
	}
	SortRankings(rows, s.cfg.BaselineMicros)
	s.rankings = rows

	out := make([]AgentRanking, len(rows))
	copy(out, rows)
	s.emit(Record{Kind: RecordRankings, At: s.now(), Rankings: out})
}

// SortRankings orders rows by portfolio descending, then name, and
// renumbers them from 1.
func SortRankings(rows []AgentRanking, baselineMicros int64) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].PortfolioMicros != rows[j].PortfolioMicros {
			return rows[i].PortfolioMicros > rows[j].PortfolioMicros
		}
		return rows[i].Name < rows[j].Name
	})
	for i := range rows {
		rows[i].ID = i + 1
		rows[i].PercentChange = PercentChange(rows[i].PortfolioMicros, baselineMicros)
	}
}

func PercentChange(portfolioMicros, baselineMicros int64) float64 {
	if baselineMicros <= 0 {
		return 0
	}
	v := float64(portfolioMicros-baselineMicros) / float64(baselineMicros) * 100
	return math.Round(v*100) / 100
}

// BalanceFrames returns the displayed values of a stepped animation from
// one balance to another. The last frame is always the target.
func BalanceFrames(from, to int64, steps int) []int64 {
	if steps <= 0 {
		steps = 1
	}
	out := make([]int64, steps)
	diff := to - from
	for i := 1; i <= steps; i++ {
		out[i-1] = from + diff*int64(i)/int64(steps)
	}
	out[steps-1] = to
	return out
}

func (s *Session) portfolio() int64 {
	total := s.cash
	for sym, units := range s.holdings {
		v, err := NotionalMicros(s.prices[sym], units)
		if err != nil {
			v = math.MaxInt64
		}
		total = saturatingAdd(total, v)
	}
	return total
}

// portfolioAt values the user's portfolio as if cash, and the price and
// quantity of symbol, were replaced. It fails when the value leaves int64.
func (s *Session) portfolioAt(cash int64, symbol string, price, units int64) (int64, error) {
	total := cash
	seen := false
	for sym, held := range s.holdings {
		p := s.prices[sym]
		if sym == symbol {
			p, held, seen = price, units, true
		}
		v, err := NotionalMicros(p, held)
		if err != nil {
			return 0, err
		}
		if total, err = addMicros(total, v); err != nil {
			return 0, err
		}
	}
	if !seen && units > 0 {
		v, err := NotionalMicros(price, units)
		if err != nil {
			return 0, err
		}
		return addMicros(total, v)
	}
	return total, nil
}

func (s *Session) rival(name string) *rival {
	for _, r := range s.rivals {
		if r.name == name {
			return r
		}
	}
	return nil
}

func (s *Session) tradable() []string {
	out := make([]string, 0, len(s.cfg.Assets))
	for _, a := range s.cfg.Assets {
		if a.Tradable && s.prices[a.Symbol] > 0 {
			out = append(out, a.Symbol)
		}
	}
	return out
}

func (s *Session) pushActivity(a Activity) {
	s.activities = append(s.activities, a)
	s.emit(Record{Kind: RecordActivity, At: a.Timestamp, Activity: &a})
}

func (s *Session) pushPublic(content string, impact int) {
	m := Message{
		ID:        s.nextID("msg"),
		SenderID:  SystemSender,
		Content:   content,
		Timestamp: s.now(),
		IsPublic:  true,
		Impact:    impact,
	}
	s.public = append(s.public, m)
	s.emit(Record{Kind: RecordMessage, At: m.Timestamp, Message: &m})
}

func (s *Session) pushPrivate(m Message) {
	m.ID = s.nextID("msg")
	m.Timestamp = s.now()
	m.IsPublic = false
	s.private = append(s.private, m)
	s.emit(Record{Kind: RecordMessage, At: m.Timestamp, Message: &m})
}

func (s *Session) emit(rec Record) {
	for _, ch := range s.subs {
		select {
		case ch <- rec:
		default:
			s.dropped.Add(1)
		}
	}
}

func (s *Session) now() time.Time {
	return s.cfg.Epoch.Add(s.sched.Now())
}

func (s *Session) nextID(prefix string) string {
	id, err := uuid.NewRandomFromReader(s.ids)
	if err != nil {
		s.seq++
		return fmt.Sprintf("%s-%d", prefix, s.seq)
	}
	return prefix + "-" + id.String()
}

func (s *Session) pick(options []string) string {
	if len(options) == 0 {
		return ""
	}
	return options[s.rng.Intn(len(options))]
}

func (s *Session) uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

// Subscribe returns a channel of records and a cancel func. A full channel
// drops records instead of blocking the session; see Dropped.
func (s *Session) Subscribe(buffer int) (<-chan Record, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribe(buffer)
}

// SnapshotAndSubscribe takes a snapshot and subscribes under one lock, so
// the first record on the channel is the first one after the snapshot.
func (s *Session) SnapshotAndSubscribe(buffer int) (Snapshot, <-chan Record, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, cancel := s.subscribe(buffer)
	return s.snapshot(), ch, cancel
}

func (s *Session) subscribe(buffer int) (<-chan Record, func()) {
	if buffer <= 0 {
		buffer = s.cfg.SubscriberBuffer
	}
	ch := make(chan Record, buffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// Dropped returns how many records were not delivered to a full subscriber.
func (s *Session) Dropped() int64 {
	return s.dropped.Load()
}

// Close stops every generator, drops pending events and closes subscribers.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, l := range s.loops {
		l.stop()
	}
	s.sched.Clear()
	s.frames = nil
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Activities returns up to limit activities, newest first. A limit <= 0
// returns all of them.
func (s *Session) Activities(limit int) []Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.activities)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Activity, 0, n)
	for i := len(s.activities) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.activities[i])
	}
	return out
}

// Messages returns both logs, public first, in the order they were written.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, 0, len(s.public)+len(s.private))
	out = append(out, s.public...)
	out = append(out, s.private...)
	return out
}

func (s *Session) Feed(opts FeedOptions) []Message {
	return FilterFeed(s.Messages(), opts)
}

func (s *Session) Rankings() []AgentRanking {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AgentRanking, len(s.rankings))
	copy(out, s.rankings)
	return out
}

func (s *Session) BalanceChanges() []BalanceChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]BalanceChange, len(s.changes))
	copy(out, s.changes)
	return out
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Session) snapshot() Snapshot {
	symbols := make([]string, 0, len(s.holdings))
	for sym := range s.holdings {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	holdings := make([]Holding, 0, len(symbols))
	for _, sym := range symbols {
		value, _ := NotionalMicros(s.prices[sym], s.holdings[sym])
		holdings = append(holdings, Holding{
			Symbol:      sym,
			AmountUnits: s.holdings[sym],
			PriceMicros: s.prices[sym],
			ValueMicros: value,
		})
	}

	rank := 0
	for _, r := range s.rankings {
		if r.IsUser {
			rank = r.ID
			break
		}
	}

	return Snapshot{
		Now:             s.now(),
		Elapsed:         s.sched.Now(),
		UserAgent:       s.cfg.UserAgent,
		CashMicros:      s.cash,
		DisplayMicros:   s.display,
		PortfolioMicros: s.portfolio(),
		Rank:            rank,
		Agents:          len(s.rankings),
		Holdings:        holdings,
		Activities:      len(s.activities),
		PublicMessages:  len(s.public),
		Thoughts:        len(s.private),
		BalanceChanges:  len(s.changes),
		PendingEvents:   s.sched.Pending(),
		DroppedRecords:  s.dropped.Load(),
	}
}
