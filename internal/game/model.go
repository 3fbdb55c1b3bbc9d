package game

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"agentarena/internal/sim"
)

const (
	MicrosPerDollar = sim.MicrosPerDollar
	UnitScale       = sim.UnitScale

	StarterAgentBalanceMicros = int64(1_000) * MicrosPerDollar

	MaxAgentNameLen = 32
)

var (
	ErrAgentNotFound    = errors.New("agent not found")
	ErrUnknownAgentType = errors.New("unknown agent type")
	ErrInvalidAgentName = errors.New("invalid agent name")
	ErrInvalidPrompt    = errors.New("prompt is required")
	ErrPromptCooldown   = errors.New("prompt was updated recently; try again later")
	ErrGameNotFound     = errors.New("game not found")
	ErrGameClosed       = errors.New("game already completed")
	ErrGameFull         = errors.New("game is full")
	ErrGameNotActive    = errors.New("game is not active")
	ErrNoLobby          = errors.New("game has no waiting lobby")
	ErrSessionNotFound  = errors.New("session not found")
	ErrRewardNotFound   = errors.New("reward not found")
	ErrRewardClaimed    = errors.New("reward already claimed")
	ErrInvalidTrade     = errors.New("trade needs a symbol, side buy|sell and amount > 0")
	ErrUnknownCategory  = errors.New("unknown leaderboard category")
)

var blockedNameFragments = []string{
	"admin",
	"mod",
	"support",
	"system",
	"shit",
	"fuck",
	"bitch",
	"nazi",
}

// Money is an amount in micros. The catalog writes it in dollars.
type Money int64

func (m *Money) UnmarshalYAML(node *yaml.Node) error {
	var v float64
	if err := node.Decode(&v); err != nil {
		return fmt.Errorf("money: %w", err)
	}
	*m = Money(sim.DollarsToMicros(v))
	return nil
}

// Units is a coin quantity in units. The catalog writes it in coins.
type Units int64

func (u *Units) UnmarshalYAML(node *yaml.Node) error {
	var v float64
	if err := node.Decode(&v); err != nil {
		return fmt.Errorf("units: %w", err)
	}
	*u = Units(sim.CoinsToUnits(v))
	return nil
}

func ParseAgentType(v string) (AgentType, error) {
	t := AgentType(strings.ToUpper(strings.TrimSpace(v)))
	switch t {
	case AgentConservative, AgentAggressive, AgentChaotic, AgentInformative:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAgentType, v)
}

func ParseCategory(v string) (LeaderboardCategory, error) {
	if strings.TrimSpace(v) == "" {
		return CategoryProfit, nil
	}
	c := LeaderboardCategory(strings.ToUpper(strings.TrimSpace(v)))
	switch c {
	case CategoryProfit, CategoryInfluence, CategoryBetrayal:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, v)
}

func ParseStatus(v string) (GameStatus, bool) {
	s := GameStatus(strings.ToUpper(strings.TrimSpace(v)))
	switch s {
	case StatusUpcoming, StatusActive, StatusCompleted:
		return s, true
	}
	return "", false
}

func validateAgentName(name string) error {
	clean := strings.TrimSpace(name)
	if clean == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidAgentName)
	}
	if len(clean) > MaxAgentNameLen {
		return fmt.Errorf("%w: too long (max %d chars)", ErrInvalidAgentName, MaxAgentNameLen)
	}
	lower := strings.ToLower(clean)
	for _, fragment := range blockedNameFragments {
		if strings.Contains(lower, fragment) {
			return fmt.Errorf("%w: contains blocked content", ErrInvalidAgentName)
		}
	}
	return nil
}

// holdingsValueMicros prices every holding at its recorded price.
func holdingsValueMicros(holdings []Holding) int64 {
	var total int64
	for _, h := range holdings {
		v, err := sim.NotionalMicros(int64(h.PriceMicros), int64(h.AmountUnits))
		if err != nil {
			continue
		}
		total += v
	}
	return total
}
