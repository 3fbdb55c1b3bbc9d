package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	mathrand "math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"agentarena/internal/metrics"
	"agentarena/internal/sim"
)

const (
	createAgentDelay  = 1500 * time.Millisecond
	updatePromptDelay = 1000 * time.Millisecond
	joinGameDelay     = 1500 * time.Millisecond
	claimRewardDelay  = 1000 * time.Millisecond
)

// Journal persists session records outside the process.
type Journal interface {
	Append(ctx context.Context, sessionID string, rec sim.Record) error
	Recent(ctx context.Context, sessionID string, limit int) ([]sim.Record, error)
}

type Options struct {
	// Volatility is calm, mor or wild.
	Volatility string
	// SimSpeed scales wall-clock time into virtual session time.
	SimSpeed float64
	// SimulateLatency makes mutating operations pause like a remote backend.
	SimulateLatency  bool
	PromptCooldown   time.Duration
	MarketTickEvery  time.Duration
	SubscriberBuffer int
}

func DefaultOptions() Options {
	return Options{
		Volatility:       "mor",
		SimSpeed:         1,
		PromptCooldown:   5 * time.Minute,
		MarketTickEvery:  5 * time.Second,
		SubscriberBuffer: 256,
	}
}

type sessionEntry struct {
	info SessionInfo
	sess *sim.Session

	// tradeMu serializes keyed trades so a replayed key never executes twice.
	tradeMu sync.Mutex
	trades  map[string]sim.Activity
}

type Service struct {
	log  *slog.Logger
	opts Options
	mu   sync.Mutex
	rand *mathrand.Rand
	now  func() time.Time

	user          User
	agents        []*Agent
	templates     []AgentTemplate
	games         []*Game
	activeGameID  string
	market        []MarketData
	leaderboard   []LeaderboardEntry
	stats         GameStats
	rivals        []SessionRival
	network       []NetworkAgent
	conversations map[string][]string

	sessions map[string]*sessionEntry
	lobbies  map[string]*sim.Lobby
	journal  Journal
	wg       sync.WaitGroup
}

func NewService(cat Catalog, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultOptions()
	if opts.Volatility == "" {
		opts.Volatility = def.Volatility
	}
	if opts.SimSpeed <= 0 {
		opts.SimSpeed = def.SimSpeed
	}
	if opts.PromptCooldown < 0 {
		opts.PromptCooldown = 0
	}
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = def.SubscriberBuffer
	}

	s := &Service{
		log:           logger,
		opts:          opts,
		rand:          mathrand.New(mathrand.NewSource(time.Now().UnixNano())),
		now:           time.Now,
		user:          cat.User,
		templates:     append([]AgentTemplate(nil), cat.Templates...),
		market:        append([]MarketData(nil), cat.Market...),
		leaderboard:   append([]LeaderboardEntry(nil), cat.Leaderboard...),
		stats:         cat.Stats,
		rivals:        append([]SessionRival(nil), cat.Rivals...),
		network:       append([]NetworkAgent(nil), cat.Network...),
		conversations: cat.Conversations,
		sessions:      make(map[string]*sessionEntry),
		lobbies:       make(map[string]*sim.Lobby),
	}
	for i := range cat.Agents {
		a := cat.Agents[i]
		s.agents = append(s.agents, &a)
	}
	for i := range cat.Games {
		g := cat.Games[i]
		s.games = append(s.games, &g)
	}
	return s
}

// SetJournal makes every session started afterwards write its records to j.
func (s *Service) SetJournal(j Journal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journal = j
}

func (s *Service) Options() Options {
	return s.opts
}

func (s *Service) ListAgents(ctx context.Context) []Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Agent, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, cloneAgent(a))
	}
	return out
}

func (s *Service) GetAgent(ctx context.Context, id string) (Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.agentLocked(id)
	if a == nil {
		return Agent{}, ErrAgentNotFound
	}
	return cloneAgent(a), nil
}

func (s *Service) Templates() []AgentTemplate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AgentTemplate(nil), s.templates...)
}

func (s *Service) CreateAgent(ctx context.Context, in CreateAgentInput) (Agent, error) {
	agentType, err := ParseAgentType(string(in.Type))
	if err != nil {
		return Agent{}, err
	}
	if err := validateAgentName(in.Name); err != nil {
		return Agent{}, err
	}
	if err := s.pause(ctx, createAgentDelay); err != nil {
		return Agent{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		for _, t := range s.templates {
			if t.Type == agentType {
				prompt = t.Prompt
				break
			}
		}
	}
	a := &Agent{
		ID:            "agent-" + uuid.NewString(),
		Name:          strings.TrimSpace(in.Name),
		Avatar:        "/avatars/" + strings.ToLower(string(agentType)) + ".png",
		BalanceMicros: Money(StarterAgentBalanceMicros),
		Holdings:      []Holding{},
		Prompt:        prompt,
		Level:         1,
		Skills:        []Skill{},
		Type:          agentType,
	}
	s.agents = append(s.agents, a)
	s.stats.RegisteredAgents++
	s.log.Info("agent created", "agent_id", a.ID, "type", agentType)
	return cloneAgent(a), nil
}

func (s *Service) UpdateAgentPrompt(ctx context.Context, id, prompt string) (Agent, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Agent{}, ErrInvalidPrompt
	}
	s.mu.Lock()
	a := s.agentLocked(id)
	if a == nil {
		s.mu.Unlock()
		return Agent{}, ErrAgentNotFound
	}
	if a.PromptUpdatedAt != nil && s.now().Sub(*a.PromptUpdatedAt) < s.opts.PromptCooldown {
		s.mu.Unlock()
		return Agent{}, ErrPromptCooldown
	}
	s.mu.Unlock()

	if err := s.pause(ctx, updatePromptDelay); err != nil {
		return Agent{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a = s.agentLocked(id)
	if a == nil {
		return Agent{}, ErrAgentNotFound
	}
	now := s.now().UTC()
	a.Prompt = prompt
	a.PromptUpdatedAt = &now
	return cloneAgent(a), nil
}

// ListGames returns games in catalog order, optionally filtered by status.
func (s *Service) ListGames(ctx context.Context, status string) []Game {
	want, filter := ParseStatus(status)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Game, 0, len(s.games))
	for _, g := range s.games {
		if filter && g.Status != want {
			continue
		}
		out = append(out, *g)
	}
	return out
}

func (s *Service) GetGame(ctx context.Context, id string) (Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.gameLocked(id)
	if g == nil {
		return Game{}, ErrGameNotFound
	}
	return *g, nil
}

func (s *Service) JoinGame(ctx context.Context, gameID, agentID string) (JoinResult, error) {
	if err := s.checkJoin(gameID, agentID); err != nil {
		return JoinResult{}, err
	}
	if err := s.pause(ctx, joinGameDelay); err != nil {
		return JoinResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkJoinLocked(gameID, agentID); err != nil {
		return JoinResult{}, err
	}
	g := s.gameLocked(gameID)
	g.Participants++
	s.activeGameID = g.ID
	s.log.Info("game joined", "game_id", g.ID, "agent_id", agentID, "participants", g.Participants)
	return JoinResult{Game: *g, AgentID: agentID}, nil
}

func (s *Service) checkJoin(gameID, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkJoinLocked(gameID, agentID)
}

func (s *Service) checkJoinLocked(gameID, agentID string) error {
	g := s.gameLocked(gameID)
	if g == nil {
		return ErrGameNotFound
	}
	if g.Status == StatusCompleted {
		return ErrGameClosed
	}
	if g.Participants >= g.MaxParticipants {
		return ErrGameFull
	}
	if s.agentLocked(agentID) == nil {
		return ErrAgentNotFound
	}
	return nil
}

// ActiveGameID is the game most recently joined.
func (s *Service) ActiveGameID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeGameID
}

// Lobby returns the waiting-room state of a game. Upcoming games get a
// lobby on first access; it fills as the driver advances time.
func (s *Service) Lobby(ctx context.Context, gameID string) (sim.LobbyState, error) {
	s.mu.Lock()
	g := s.gameLocked(gameID)
	if g == nil {
		s.mu.Unlock()
		return sim.LobbyState{}, ErrGameNotFound
	}
	switch g.Status {
	case StatusCompleted:
		s.mu.Unlock()
		return sim.LobbyState{}, ErrNoLobby
	case StatusActive:
		st := sim.LobbyState{
			Participants:    g.Participants,
			MaxParticipants: g.MaxParticipants,
			Progress:        100,
			Started:         true,
		}
		s.mu.Unlock()
		return st, nil
	}
	l, ok := s.lobbies[gameID]
	if !ok {
		cfg := sim.DefaultLobbyConfig()
		cfg.Seed = s.rand.Int63()
		cfg.Epoch = s.now().UTC()
		cfg.Participants = g.Participants
		cfg.MaxParticipants = g.MaxParticipants
		l = sim.NewLobby(cfg)
		s.lobbies[gameID] = l
	}
	s.mu.Unlock()
	return l.State(), nil
}

func (s *Service) startGame(gameID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lobbies[gameID]
	if !ok {
		return
	}
	delete(s.lobbies, gameID)
	if g := s.gameLocked(gameID); g != nil {
		g.Status = StatusActive
		g.Participants = l.State().Participants
		g.StartTime = s.now().UTC()
		g.EndTime = g.StartTime.Add(time.Duration(g.DurationMinutes) * time.Minute)
	}
	metrics.LobbyStarted()
	s.log.Info("lobby full, game started", "game_id", gameID)
}

// StartSession runs a seeded simulation of an active game for one agent.
// A zero seed picks one from the clock.
func (s *Service) StartSession(ctx context.Context, gameID, agentID string, seed int64) (SessionInfo, error) {
	s.mu.Lock()
	g := s.gameLocked(gameID)
	if g == nil {
		s.mu.Unlock()
		return SessionInfo{}, ErrGameNotFound
	}
	if g.Status != StatusActive {
		s.mu.Unlock()
		return SessionInfo{}, ErrGameNotActive
	}
	a := s.agentLocked(agentID)
	if a == nil {
		s.mu.Unlock()
		return SessionInfo{}, ErrAgentNotFound
	}
	if seed == 0 {
		seed = s.now().UnixNano()
	}
	cfg := s.sessionConfigLocked(*a, seed)
	sess := sim.NewSession(cfg)
	entry := &sessionEntry{
		info: SessionInfo{
			ID:        "sess-" + uuid.NewString(),
			GameID:    g.ID,
			AgentID:   a.ID,
			AgentName: a.Name,
			Seed:      seed,
			StartedAt: cfg.Epoch,
		},
		sess: sess,
	}
	s.sessions[entry.info.ID] = entry
	journal := s.journal
	s.mu.Unlock()

	records, _ := sess.Subscribe(s.opts.SubscriberBuffer)
	s.wg.Add(1)
	go s.pump(entry.info.ID, records, journal)

	metrics.SessionStarted()
	s.log.Info("session started", "session_id", entry.info.ID, "game_id", g.ID, "agent_id", a.ID, "seed", seed)
	return s.sessionInfo(entry), nil
}

func (s *Service) sessionConfigLocked(a Agent, seed int64) sim.Config {
	cfg := sim.DefaultConfig()
	cfg.Seed = seed
	cfg.Epoch = s.now().UTC()
	cfg.UserAgent = a.Name
	cfg.StartCashMicros = int64(a.BalanceMicros)
	cfg.HoldingUnits = make(map[string]int64, len(a.Holdings))
	for _, h := range a.Holdings {
		cfg.HoldingUnits[h.Symbol] += int64(h.AmountUnits)
	}
	if len(s.market) > 0 {
		assets := make([]sim.Asset, 0, len(s.market))
		for _, m := range s.market {
			assets = append(assets, sim.Asset{
				Symbol:      m.Symbol,
				PriceMicros: int64(m.PriceMicros),
				Tradable:    !isStablecoin(m.Symbol),
			})
		}
		cfg.Assets = assets
	}
	rivals := make([]sim.Rival, 0, len(s.rivals))
	for _, r := range s.rivals {
		if r.Name == a.Name {
			continue
		}
		rivals = append(rivals, sim.Rival{Name: r.Name, PortfolioMicros: int64(r.PortfolioMicros)})
	}
	if len(rivals) > 0 {
		cfg.Rivals = rivals
	}
	cfg.SubscriberBuffer = s.opts.SubscriberBuffer
	return cfg
}

// pump feeds one session's records to metrics and the journal until the
// session closes.
func (s *Service) pump(sessionID string, records <-chan sim.Record, journal Journal) {
	defer s.wg.Done()
	for rec := range records {
		metrics.ObserveRecord(string(rec.Kind))
		if journal == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := journal.Append(ctx, sessionID, rec); err != nil {
			metrics.JournalError()
			s.log.Warn("journal append failed", "session_id", sessionID, "kind", rec.Kind, "err", err)
		}
		cancel()
	}
}

func (s *Service) Session(ctx context.Context, id string) (SessionInfo, error) {
	entry, err := s.entry(id)
	if err != nil {
		return SessionInfo{}, err
	}
	return s.sessionInfo(entry), nil
}

func (s *Service) Sessions(ctx context.Context) []SessionInfo {
	s.mu.Lock()
	entries := make([]*sessionEntry, 0, len(s.sessions))
	for _, e := range s.sessions {
		entries = append(entries, e)
	}
	s.mu.Unlock()
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].info.StartedAt.Equal(entries[j].info.StartedAt) {
			return entries[i].info.ID < entries[j].info.ID
		}
		return entries[i].info.StartedAt.Before(entries[j].info.StartedAt)
	})
	out := make([]SessionInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, s.sessionInfo(e))
	}
	return out
}

func (s *Service) sessionInfo(e *sessionEntry) SessionInfo {
	info := e.info
	info.Snapshot = e.sess.Snapshot()
	return info
}

func (s *Service) Feed(ctx context.Context, id string, opts sim.FeedOptions) ([]sim.Message, error) {
	entry, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	return entry.sess.Feed(opts), nil
}

func (s *Service) Activities(ctx context.Context, id string, limit int) ([]sim.Activity, error) {
	entry, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	return entry.sess.Activities(limit), nil
}

func (s *Service) Rankings(ctx context.Context, id string) ([]sim.AgentRanking, error) {
	entry, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	return entry.sess.Rankings(), nil
}

// Trade books a manual trade for the session's agent. A zero price trades
// at the session's reference price.
func (s *Service) Trade(ctx context.Context, id string, in TradeInput) (sim.Activity, error) {
	entry, err := s.entry(id)
	if err != nil {
		return sim.Activity{}, err
	}
	symbol := strings.ToUpper(strings.TrimSpace(in.Symbol))
	var isBuy bool
	switch strings.ToLower(strings.TrimSpace(in.Side)) {
	case "buy":
		isBuy = true
	case "sell":
	default:
		return sim.Activity{}, ErrInvalidTrade
	}
	units := sim.CoinsToUnits(in.Amount)
	if symbol == "" || units <= 0 {
		return sim.Activity{}, ErrInvalidTrade
	}
	price := sim.DollarsToMicros(in.Price)
	if price <= 0 {
		ref, ok := entry.sess.ReferencePrice(symbol)
		if !ok {
			return sim.Activity{}, fmt.Errorf("%w: no reference price for %s", ErrInvalidTrade, symbol)
		}
		price = ref
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		entry.tradeMu.Lock()
		defer entry.tradeMu.Unlock()
		if prev, ok := entry.trades[key]; ok {
			return prev, nil
		}
	}

	act, err := entry.sess.ExecuteTrade(sim.TradeIntent{
		AgentID:     entry.sess.UserAgent(),
		Symbol:      symbol,
		IsBuy:       isBuy,
		PriceMicros: price,
		AmountUnits: units,
	})
	switch {
	case errors.Is(err, sim.ErrSessionClosed):
		return sim.Activity{}, ErrSessionNotFound
	case errors.Is(err, sim.ErrInvalidTrade), errors.Is(err, sim.ErrNotionalOverflow):
		return sim.Activity{}, fmt.Errorf("%w: %v", ErrInvalidTrade, err)
	case err != nil:
		return sim.Activity{}, err
	}
	if key != "" {
		if entry.trades == nil {
			entry.trades = make(map[string]sim.Activity)
		}
		entry.trades[key] = act
	}
	return act, nil
}

// Subscribe streams the records of a running session.
// Subscribe returns the session's current state and a channel carrying
// every record written after it.
func (s *Service) Subscribe(ctx context.Context, id string, buffer int) (SessionInfo, <-chan sim.Record, func(), error) {
	entry, err := s.entry(id)
	if err != nil {
		return SessionInfo{}, nil, nil, err
	}
	snap, ch, cancel := entry.sess.SnapshotAndSubscribe(buffer)
	info := entry.info
	info.Snapshot = snap
	return info, ch, cancel, nil
}

// Journal reads the most recent persisted records of a session.
func (s *Service) Journal(ctx context.Context, id string, limit int) ([]sim.Record, error) {
	s.mu.Lock()
	journal := s.journal
	s.mu.Unlock()
	if journal == nil {
		return []sim.Record{}, nil
	}
	return journal.Recent(ctx, id, limit)
}

// StopSession closes a session and settles the agent's cash and holdings
// from its final state.
func (s *Service) StopSession(ctx context.Context, id string) (SessionInfo, error) {
	s.mu.Lock()
	entry, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return SessionInfo{}, ErrSessionNotFound
	}
	delete(s.sessions, id)
	s.mu.Unlock()

	info := s.sessionInfo(entry)
	entry.sess.Close()
	metrics.ObserveDropped(entry.sess.Dropped())
	metrics.SessionStopped()

	s.mu.Lock()
	if a := s.agentLocked(info.AgentID); a != nil {
		a.BalanceMicros = Money(info.Snapshot.CashMicros)
		holdings := make([]Holding, 0, len(info.Snapshot.Holdings))
		for _, h := range info.Snapshot.Holdings {
			if h.AmountUnits <= 0 {
				continue
			}
			holdings = append(holdings, Holding{
				Symbol:      h.Symbol,
				AmountUnits: Units(h.AmountUnits),
				PriceMicros: Money(h.PriceMicros),
			})
		}
		a.Holdings = holdings
	}
	s.mu.Unlock()

	s.log.Info("session stopped", "session_id", id, "elapsed", info.Snapshot.Elapsed, "portfolio_micros", info.Snapshot.PortfolioMicros)
	return info, nil
}

func (s *Service) entry(id string) (*sessionEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e, nil
}

func (s *Service) Leaderboard(ctx context.Context, category string) ([]LeaderboardEntry, error) {
	c, err := ParseCategory(category)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LeaderboardEntry, 0, len(s.leaderboard))
	for _, e := range s.leaderboard {
		if e.Category == c {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}

func (s *Service) Assets(ctx context.Context) Assets {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Assets{
		TokenBalanceMicros: int64(s.user.BalanceMicros),
		UnclaimedRewards:   []Reward{},
		NFTs:               []Agent{},
		Achievements:       append([]Achievement(nil), s.user.Achievements...),
	}
	for _, a := range s.agents {
		out.AgentsValueMicros += int64(a.BalanceMicros) + holdingsValueMicros(a.Holdings)
		if a.NFTID != "" {
			out.NFTs = append(out.NFTs, cloneAgent(a))
		}
	}
	for _, r := range s.user.Rewards {
		if !r.Claimed {
			out.UnclaimedRewards = append(out.UnclaimedRewards, r)
		}
	}
	return out
}

func (s *Service) ClaimReward(ctx context.Context, id string) (Reward, error) {
	s.mu.Lock()
	idx := s.rewardIndexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return Reward{}, ErrRewardNotFound
	}
	if s.user.Rewards[idx].Claimed {
		s.mu.Unlock()
		return Reward{}, ErrRewardClaimed
	}
	s.mu.Unlock()

	if err := s.pause(ctx, claimRewardDelay); err != nil {
		return Reward{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	idx = s.rewardIndexLocked(id)
	if idx < 0 {
		return Reward{}, ErrRewardNotFound
	}
	if s.user.Rewards[idx].Claimed {
		return Reward{}, ErrRewardClaimed
	}
	s.user.Rewards[idx].Claimed = true
	return s.user.Rewards[idx], nil
}

// ClaimAllRewards claims every unclaimed reward and returns how many.
func (s *Service) ClaimAllRewards(ctx context.Context) (int, error) {
	if err := s.pause(ctx, claimRewardDelay); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.user.Rewards {
		if !s.user.Rewards[i].Claimed {
			s.user.Rewards[i].Claimed = true
			n++
		}
	}
	return n, nil
}

func (s *Service) rewardIndexLocked(id string) int {
	for i, r := range s.user.Rewards {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func (s *Service) Market(ctx context.Context) []MarketData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]MarketData(nil), s.market...)
}

// RunMarketTick moves every market price by a bounded random return and
// redraws the displayed 24h change.
func (s *Service) RunMarketTick(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := volatilityParams(s.opts.Volatility)
	s.mu.Lock()
	now := s.now().UTC()
	for i := range s.market {
		m := &s.market[i]
		if isStablecoin(m.Symbol) {
			m.Timestamp = now
			continue
		}
		ret := params.NoiseScale * normalish(s.rand.Float64())
		m.PriceMicros = Money(evolvePrice(int64(m.PriceMicros), ret))
		m.Change = math.Round(params.ChangeScale*normalish(s.rand.Float64())*100) / 100
		m.Timestamp = now
	}
	s.mu.Unlock()
	metrics.MarketTick(params.Name)
	return nil
}

func (s *Service) Home(ctx context.Context) Home {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Home{
		Stats:       s.stats,
		ActiveGames: []Game{},
		Market:      append([]MarketData(nil), s.market...),
		User:        s.user,
	}
	out.User.Rewards = append([]Reward(nil), s.user.Rewards...)
	for _, g := range s.games {
		if g.Status == StatusActive {
			out.ActiveGames = append(out.ActiveGames, *g)
		}
	}
	return out
}

func (s *Service) Network() []NetworkAgent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]NetworkAgent(nil), s.network...)
}

// Conversation replays an agent's network chatter with seeded pacing.
func (s *Service) Conversation(ctx context.Context, agentID string, seed int64) (ConversationReplay, error) {
	s.mu.Lock()
	templates, ok := s.conversations[agentID]
	var node NetworkAgent
	for _, n := range s.network {
		if n.ID == agentID {
			node = n
			break
		}
	}
	s.mu.Unlock()
	if !ok {
		return ConversationReplay{}, ErrAgentNotFound
	}
	if node.ID == "" {
		node = NetworkAgent{ID: agentID, Name: agentID}
	}
	if seed == 0 {
		seed = s.now().UnixNano()
	}
	cfg := sim.DefaultConversationConfig()
	cfg.Seed = seed
	cfg.Epoch = s.now().UTC()
	return ConversationReplay{
		Agent: node,
		Seed:  seed,
		Lines: sim.Conversation(agentID, templates, cfg),
	}, nil
}

// Advance moves every running session and lobby forward by d of virtual time.
func (s *Service) Advance(d time.Duration) {
	s.mu.Lock()
	sessions := make([]*sim.Session, 0, len(s.sessions))
	for _, e := range s.sessions {
		sessions = append(sessions, e.sess)
	}
	lobbies := make(map[string]*sim.Lobby, len(s.lobbies))
	for id, l := range s.lobbies {
		lobbies[id] = l
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Advance(d)
	}
	for gameID, l := range lobbies {
		if l.Advance(d) {
			s.startGame(gameID)
		}
	}
}

// Run drives sessions and lobbies in real time, scaled by SimSpeed, and
// applies market ticks on their own interval until ctx is done.
func (s *Service) Run(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		every = 250 * time.Millisecond
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	last := time.Now()
	lastMarket := last
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			elapsed := now.Sub(last)
			last = now
			s.Advance(time.Duration(float64(elapsed) * s.opts.SimSpeed))
			if s.opts.MarketTickEvery > 0 && now.Sub(lastMarket) >= s.opts.MarketTickEvery {
				lastMarket = now
				if err := s.RunMarketTick(ctx); err != nil && ctx.Err() == nil {
					s.log.Error("market tick failed", "err", err)
				}
			}
		}
	}
}

// Close stops every session and waits for their record pumps to drain.
func (s *Service) Close() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	for id, l := range s.lobbies {
		l.Close()
		delete(s.lobbies, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		_, _ = s.StopSession(context.Background(), id)
	}
	s.wg.Wait()
}

func (s *Service) agentLocked(id string) *Agent {
	for _, a := range s.agents {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (s *Service) gameLocked(id string) *Game {
	for _, g := range s.games {
		if g.ID == id {
			return g
		}
	}
	return nil
}

func (s *Service) pause(ctx context.Context, d time.Duration) error {
	if !s.opts.SimulateLatency {
		return nil
	}
	return sleepWithContext(ctx, d)
}

func cloneAgent(a *Agent) Agent {
	out := *a
	out.Holdings = append([]Holding(nil), a.Holdings...)
	out.Skills = append([]Skill(nil), a.Skills...)
	if out.Holdings == nil {
		out.Holdings = []Holding{}
	}
	if out.Skills == nil {
		out.Skills = []Skill{}
	}
	return out
}

func isStablecoin(symbol string) bool {
	switch symbol {
	case "USDT", "USDC", "DAI":
		return true
	}
	return false
}

type marketDynamics struct {
	Name        string
	NoiseScale  float64
	ChangeScale float64
}

func volatilityParams(mode string) marketDynamics {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "calm":
		return marketDynamics{Name: "calm", NoiseScale: 0.005, ChangeScale: 2}
	case "wild":
		return marketDynamics{Name: "wild", NoiseScale: 0.020, ChangeScale: 2}
	default:
		return marketDynamics{Name: "mor", NoiseScale: 0.010, ChangeScale: 2}
	}
}

// normalish maps a uniform draw in [0,1) onto [-1,1).
func normalish(seed float64) float64 {
	return (seed + seed - 1)
}

func evolvePrice(priceMicros int64, ret float64) int64 {
	if priceMicros <= 0 {
		return 1
	}
	next := int64(math.Round(float64(priceMicros) * (1 + ret)))
	if next < 1 {
		next = 1
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
