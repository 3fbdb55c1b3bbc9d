package game

import (
	"time"

	"agentarena/internal/sim"
)

type AgentType string

const (
	AgentConservative AgentType = "CONSERVATIVE"
	AgentAggressive   AgentType = "AGGRESSIVE"
	AgentChaotic      AgentType = "CHAOTIC"
	AgentInformative  AgentType = "INFORMATIVE"
)

type GameStatus string

const (
	StatusUpcoming  GameStatus = "UPCOMING"
	StatusActive    GameStatus = "ACTIVE"
	StatusCompleted GameStatus = "COMPLETED"
)

type LeaderboardCategory string

const (
	CategoryProfit    LeaderboardCategory = "PROFIT"
	CategoryInfluence LeaderboardCategory = "INFLUENCE"
	CategoryBetrayal  LeaderboardCategory = "BETRAYAL"
)

type RewardType string

const (
	RewardToken RewardType = "TOKEN"
	RewardNFT   RewardType = "NFT"
	RewardXP    RewardType = "XP"
)

type Skill struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Unlocked    bool   `json:"unlocked" yaml:"unlocked"`
	Cost        int64  `json:"cost" yaml:"cost"`
	CostType    string `json:"cost_type" yaml:"cost_type"`
}

type Holding struct {
	Symbol      string `json:"symbol" yaml:"symbol"`
	AmountUnits Units  `json:"amount_units" yaml:"amount"`
	PriceMicros Money  `json:"price_micros" yaml:"price"`
}

type Agent struct {
	ID              string     `json:"id" yaml:"id"`
	Name            string     `json:"name" yaml:"name"`
	Avatar          string     `json:"avatar" yaml:"avatar"`
	NFTID           string     `json:"nft_id,omitempty" yaml:"nft_id"`
	BalanceMicros   Money      `json:"balance_micros" yaml:"balance"`
	Holdings        []Holding  `json:"holdings" yaml:"holdings"`
	WinRate         float64    `json:"win_rate" yaml:"win_rate"`
	Prompt          string     `json:"prompt" yaml:"prompt"`
	Level           int        `json:"level" yaml:"level"`
	XP              int64      `json:"xp" yaml:"xp"`
	Skills          []Skill    `json:"skills" yaml:"skills"`
	Type            AgentType  `json:"type" yaml:"type"`
	PromptUpdatedAt *time.Time `json:"prompt_updated_at,omitempty" yaml:"-"`
}

type AgentTemplate struct {
	Type        AgentType `json:"type" yaml:"type"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description" yaml:"description"`
	Prompt      string    `json:"prompt" yaml:"prompt"`
}

type Game struct {
	ID              string     `json:"id" yaml:"id"`
	Name            string     `json:"name" yaml:"name"`
	Status          GameStatus `json:"status" yaml:"status"`
	Participants    int        `json:"participants" yaml:"participants"`
	MaxParticipants int        `json:"max_participants" yaml:"max_participants"`
	PrizeMicros     Money      `json:"prize_micros" yaml:"prize"`
	StartTime       time.Time  `json:"start_time" yaml:"start_time"`
	EndTime         time.Time  `json:"end_time" yaml:"end_time"`
	DurationMinutes int        `json:"duration_minutes" yaml:"duration"`
}

type MarketData struct {
	Symbol       string    `json:"symbol" yaml:"symbol"`
	PriceMicros  Money     `json:"price_micros" yaml:"price"`
	Change       float64   `json:"change" yaml:"change"`
	VolumeMicros Money     `json:"volume_micros" yaml:"volume"`
	Timestamp    time.Time `json:"timestamp" yaml:"timestamp"`
}

type LeaderboardEntry struct {
	Rank      int                 `json:"rank" yaml:"rank"`
	AgentID   string              `json:"agent_id" yaml:"agent_id"`
	AgentName string              `json:"agent_name" yaml:"agent_name"`
	Avatar    string              `json:"avatar" yaml:"avatar"`
	Score     int64               `json:"score" yaml:"score"`
	Category  LeaderboardCategory `json:"category" yaml:"category"`
}

type Reward struct {
	ID        string     `json:"id" yaml:"id"`
	Amount    int64      `json:"amount" yaml:"amount"`
	Type      RewardType `json:"type" yaml:"type"`
	Source    string     `json:"source" yaml:"source"`
	Claimed   bool       `json:"claimed" yaml:"claimed"`
	Timestamp time.Time  `json:"timestamp" yaml:"timestamp"`
}

type Achievement struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	Image       string     `json:"image" yaml:"image"`
	Unlocked    bool       `json:"unlocked" yaml:"unlocked"`
	UnlockedAt  *time.Time `json:"unlocked_at,omitempty" yaml:"unlocked_at"`
}

type User struct {
	ID            string        `json:"id" yaml:"id"`
	Username      string        `json:"username" yaml:"username"`
	BalanceMicros Money         `json:"balance_micros" yaml:"balance"`
	Rewards       []Reward      `json:"rewards" yaml:"rewards"`
	Achievements  []Achievement `json:"achievements" yaml:"achievements"`
}

type GameStats struct {
	TotalRewardPoolMicros Money `json:"total_reward_pool_micros" yaml:"total_reward_pool"`
	ActiveGames           int   `json:"active_games" yaml:"active_games"`
	RegisteredAgents      int   `json:"registered_agents" yaml:"registered_agents"`
	DailyTransactions     int   `json:"daily_transactions" yaml:"daily_transactions"`
}

type SessionRival struct {
	Name            string `json:"name" yaml:"name"`
	PortfolioMicros Money  `json:"portfolio_micros" yaml:"portfolio"`
}

type NetworkAgent struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Avatar      string `json:"avatar" yaml:"avatar"`
	Connections int    `json:"connections" yaml:"connections"`
	Status      string `json:"status" yaml:"status"`
}

type Home struct {
	Stats       GameStats    `json:"stats"`
	ActiveGames []Game       `json:"active_games"`
	Market      []MarketData `json:"market"`
	User        User         `json:"user"`
}

type Assets struct {
	TokenBalanceMicros int64         `json:"token_balance_micros"`
	AgentsValueMicros  int64         `json:"agents_value_micros"`
	UnclaimedRewards   []Reward      `json:"unclaimed_rewards"`
	NFTs               []Agent       `json:"nfts"`
	Achievements       []Achievement `json:"achievements"`
}

type CreateAgentInput struct {
	Name   string    `json:"name"`
	Type   AgentType `json:"type"`
	Prompt string    `json:"prompt"`
}

type JoinResult struct {
	Game    Game   `json:"game"`
	AgentID string `json:"agent_id"`
}

type SessionInfo struct {
	ID        string       `json:"id"`
	GameID    string       `json:"game_id"`
	AgentID   string       `json:"agent_id"`
	AgentName string       `json:"agent_name"`
	Seed      int64        `json:"seed"`
	StartedAt time.Time    `json:"started_at"`
	Snapshot  sim.Snapshot `json:"snapshot"`
}

type TradeInput struct {
	Symbol string  `json:"symbol"`
	Side   string  `json:"side"`
	Amount float64 `json:"amount"`
	// Price is optional; the session's reference price is used when zero.
	Price float64 `json:"price"`
	// IdempotencyKey makes a retried trade return the first execution.
	IdempotencyKey string `json:"-"`
}

type ConversationReplay struct {
	Agent NetworkAgent           `json:"agent"`
	Seed  int64                  `json:"seed"`
	Lines []sim.ConversationLine `json:"lines"`
}

// StreamMessage is one frame of a session's live stream. The first frame
// carries a snapshot; every later one carries a record.
type StreamMessage struct {
	Type     string        `json:"type"`
	Snapshot *sim.Snapshot `json:"snapshot,omitempty"`
	Record   *sim.Record   `json:"record,omitempty"`
}

const (
	StreamSnapshot = "snapshot"
	StreamRecord   = "record"
)
