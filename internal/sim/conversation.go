package sim

import (
	"fmt"
	"math/rand"
	"time"
)

type ConversationLine struct {
	ID             string    `json:"id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	ThinkingFrom   time.Time `json:"thinking_from"`
	Timestamp      time.Time `json:"timestamp"`
	ThinkingMillis int64     `json:"thinking_ms"`
}

type ConversationConfig struct {
	Seed        int64
	Epoch       time.Time
	ThinkingMin time.Duration
	ThinkingMax time.Duration
	GapMin      time.Duration
	GapMax      time.Duration
}

func DefaultConversationConfig() ConversationConfig {
	return ConversationConfig{
		Seed:        1,
		Epoch:       time.Date(2024, 8, 17, 12, 0, 0, 0, time.UTC),
		ThinkingMin: time.Second,
		ThinkingMax: 3 * time.Second,
		GapMin:      2 * time.Second,
		GapMax:      5 * time.Second,
	}
}

// Conversation replays an agent's template lines on a virtual clock: each
// line is preceded by a thinking pause, and the next one follows after a gap.
func Conversation(agentID string, templates []string, cfg ConversationConfig) []ConversationLine {
	def := DefaultConversationConfig()
	if cfg.Epoch.IsZero() {
		cfg.Epoch = def.Epoch
	}
	if cfg.ThinkingMin <= 0 {
		cfg.ThinkingMin = def.ThinkingMin
	}
	if cfg.ThinkingMax < cfg.ThinkingMin {
		cfg.ThinkingMax = cfg.ThinkingMin
	}
	if cfg.GapMin <= 0 {
		cfg.GapMin = def.GapMin
	}
	if cfg.GapMax < cfg.GapMin {
		cfg.GapMax = cfg.GapMin
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	between := func(lo, hi time.Duration) time.Duration {
		if hi <= lo {
			return lo
		}
		return lo + time.Duration(rng.Int63n(int64(hi-lo)+1))
	}

	sched := NewScheduler()
	lines := make([]ConversationLine, 0, len(templates))
	var next func()
	next = func() {
		if len(lines) >= len(templates) {
			return
		}
		started := sched.Now()
		think := between(cfg.ThinkingMin, cfg.ThinkingMax)
		sched.After(think, "line", func() {
			i := len(lines)
			lines = append(lines, ConversationLine{
				ID:             fmt.Sprintf("%s-line-%d", agentID, i+1),
				SenderID:       agentID,
				Content:        templates[i],
				ThinkingFrom:   cfg.Epoch.Add(started),
				Timestamp:      cfg.Epoch.Add(sched.Now()),
				ThinkingMillis: think.Milliseconds(),
			})
			sched.After(between(cfg.GapMin, cfg.GapMax), "gap", next)
		})
	}
	next()

	for {
		at, ok := sched.NextAt()
		if !ok {
			break
		}
		sched.AdvanceTo(at)
	}
	return lines
}
