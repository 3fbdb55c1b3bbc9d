package sim

import "time"

type Action string

const (
	ActionBuy     Action = "BUY"
	ActionSell    Action = "SELL"
	ActionMessage Action = "MESSAGE"
	ActionBribe   Action = "BRIBE"
	ActionFund    Action = "FUND"
)

const SystemSender = "SYSTEM"

type Activity struct {
	ID          string    `json:"id"`
	AgentID     string    `json:"agent_id"`
	Action      Action    `json:"action"`
	Symbol      string    `json:"symbol,omitempty"`
	AmountUnits int64     `json:"amount_units,omitempty"`
	PriceMicros int64     `json:"price_micros,omitempty"`
	TotalMicros int64     `json:"total_micros,omitempty"`
	Content     string    `json:"content,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID *string   `json:"receiver_id"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	IsPublic   bool      `json:"is_public"`
	Impact     int       `json:"impact"`
	IsBribery  bool      `json:"is_bribery"`
	IsThinking bool      `json:"is_thinking"`
}

type AgentRanking struct {
	ID              int     `json:"id"`
	Name            string  `json:"name"`
	PortfolioMicros int64   `json:"portfolio_micros"`
	PercentChange   float64 `json:"percent_change"`
	VolumeMicros    int64   `json:"volume_micros"`
	Trades          int     `json:"trades"`
	IsUser          bool    `json:"is_user"`
}

type ChangeType string

const (
	ChangeIncrease ChangeType = "increase"
	ChangeDecrease ChangeType = "decrease"
)

type BalanceChange struct {
	AmountMicros int64      `json:"amount_micros"`
	Timestamp    time.Time  `json:"timestamp"`
	Type         ChangeType `json:"type"`
}

type Holding struct {
	Symbol      string `json:"symbol"`
	AmountUnits int64  `json:"amount_units"`
	PriceMicros int64  `json:"price_micros"`
	ValueMicros int64  `json:"value_micros"`
}

// TradeIntent is the input of ExecuteTrade.
type TradeIntent struct {
	AgentID     string `json:"agent_id"`
	Symbol      string `json:"symbol"`
	IsBuy       bool   `json:"is_buy"`
	PriceMicros int64  `json:"price_micros"`
	AmountUnits int64  `json:"amount_units"`
}

type RecordKind string

const (
	RecordActivity RecordKind = "activity"
	RecordMessage  RecordKind = "message"
	RecordRankings RecordKind = "rankings"
	RecordBalance  RecordKind = "balance"
	RecordFrame    RecordKind = "frame"
)

// Record is one observable state change, delivered to subscribers in the
// order it happened.
type Record struct {
	Kind          RecordKind     `json:"kind"`
	At            time.Time      `json:"at"`
	Activity      *Activity      `json:"activity,omitempty"`
	Message       *Message       `json:"message,omitempty"`
	Rankings      []AgentRanking `json:"rankings,omitempty"`
	Balance       *BalanceChange `json:"balance,omitempty"`
	DisplayMicros int64          `json:"display_micros,omitempty"`
}

type Snapshot struct {
	Now             time.Time     `json:"now"`
	Elapsed         time.Duration `json:"elapsed"`
	UserAgent       string        `json:"user_agent"`
	CashMicros      int64         `json:"cash_micros"`
	DisplayMicros   int64         `json:"display_micros"`
	PortfolioMicros int64         `json:"portfolio_micros"`
	Rank            int           `json:"rank"`
	Agents          int           `json:"agents"`
	Holdings        []Holding     `json:"holdings"`
	Activities      int           `json:"activities"`
	PublicMessages  int           `json:"public_messages"`
	Thoughts        int           `json:"thoughts"`
	BalanceChanges  int           `json:"balance_changes"`
	PendingEvents   int           `json:"pending_events"`
	DroppedRecords  int64         `json:"dropped_records"`
}
