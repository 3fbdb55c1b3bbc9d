package sim

import (
	"math/rand"
	"sync"
	"time"
)

type LobbyConfig struct {
	Seed            int64
	Epoch           time.Time
	Participants    int
	MaxParticipants int
	JoinMin         time.Duration
	JoinMax         time.Duration
	// MaxJoinBatch caps how many players arrive in one step.
	MaxJoinBatch  int
	Countdown     int
	CountdownStep time.Duration
	// Names labels arriving players in RecentJoiners.
	Names []string
}

func DefaultLobbyConfig() LobbyConfig {
	return LobbyConfig{
		Seed:          1,
		Epoch:         time.Date(2024, 8, 17, 12, 0, 0, 0, time.UTC),
		JoinMin:       2 * time.Second,
		JoinMax:       5 * time.Second,
		MaxJoinBatch:  3,
		Countdown:     5,
		CountdownStep: time.Second,
		Names:         []string{"CryptoKing", "DiamondHands", "MoonShot", "BearSlayer", "GasGuzzler", "ChainSurfer"},
	}
}

type LobbyJoin struct {
	Name   string    `json:"name"`
	Count  int       `json:"count"`
	Joined time.Time `json:"joined_at"`
}

type LobbyState struct {
	Participants    int           `json:"participants"`
	MaxParticipants int           `json:"max_participants"`
	Progress        float64       `json:"progress"`
	Starting        bool          `json:"starting"`
	SecondsToStart  int           `json:"seconds_to_start"`
	Started         bool          `json:"started"`
	Elapsed         time.Duration `json:"elapsed"`
	RecentJoiners   []LobbyJoin   `json:"recent_joiners"`
}

// Lobby fills a waiting room on the virtual clock and counts down once it
// is full.
type Lobby struct {
	mu      sync.Mutex
	cfg     LobbyConfig
	sched   *Scheduler
	rng     *rand.Rand
	state   LobbyState
	joinLp  *loop
	countLp *loop
}

func NewLobby(cfg LobbyConfig) *Lobby {
	def := DefaultLobbyConfig()
	if cfg.Epoch.IsZero() {
		cfg.Epoch = def.Epoch
	}
	if cfg.JoinMin <= 0 {
		cfg.JoinMin = def.JoinMin
	}
	if cfg.JoinMax < cfg.JoinMin {
		cfg.JoinMax = cfg.JoinMin
	}
	if cfg.MaxJoinBatch <= 0 {
		cfg.MaxJoinBatch = def.MaxJoinBatch
	}
	if cfg.Countdown <= 0 {
		cfg.Countdown = def.Countdown
	}
	if cfg.CountdownStep <= 0 {
		cfg.CountdownStep = def.CountdownStep
	}
	if len(cfg.Names) == 0 {
		cfg.Names = def.Names
	}
	if cfg.MaxParticipants < 1 {
		cfg.MaxParticipants = 1
	}

	l := &Lobby{
		cfg:   cfg,
		sched: NewScheduler(),
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		state: LobbyState{
			Participants:    min(max(cfg.Participants, 0), cfg.MaxParticipants),
			MaxParticipants: cfg.MaxParticipants,
			SecondsToStart:  cfg.Countdown,
		},
	}
	if l.state.Participants >= l.state.MaxParticipants {
		l.beginCountdown()
	} else {
		l.joinLp = startLoop(l.sched, "join", l.joinDelay, l.join)
	}
	return l
}

func (l *Lobby) joinDelay() time.Duration {
	span := l.cfg.JoinMax - l.cfg.JoinMin
	if span <= 0 {
		return l.cfg.JoinMin
	}
	return l.cfg.JoinMin + time.Duration(l.rng.Int63n(int64(span)+1))
}

func (l *Lobby) join() {
	n := 1 + l.rng.Intn(l.cfg.MaxJoinBatch)
	l.state.Participants = min(l.state.Participants+n, l.state.MaxParticipants)
	l.state.RecentJoiners = append([]LobbyJoin{{
		Name:   l.cfg.Names[l.rng.Intn(len(l.cfg.Names))],
		Count:  n,
		Joined: l.cfg.Epoch.Add(l.sched.Now()),
	}}, l.state.RecentJoiners...)
	if len(l.state.RecentJoiners) > 4 {
		l.state.RecentJoiners = l.state.RecentJoiners[:4]
	}
	if l.state.Participants >= l.state.MaxParticipants {
		l.joinLp.stop()
		l.beginCountdown()
	}
}

func (l *Lobby) beginCountdown() {
	l.state.Starting = true
	l.countLp = startLoop(l.sched, "countdown", every(l.cfg.CountdownStep), func() {
		if l.state.SecondsToStart <= 1 {
			l.state.SecondsToStart = 0
			l.state.Started = true
			l.countLp.stop()
			return
		}
		l.state.SecondsToStart--
	})
}

// Advance runs the lobby forward by d. It reports true only on the call
// during which the lobby started.
func (l *Lobby) Advance(d time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	was := l.state.Started
	l.sched.Advance(d)
	return !was && l.state.Started
}

func (l *Lobby) State() LobbyState {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.state
	st.Elapsed = l.sched.Now()
	st.Progress = float64(st.Participants) / float64(st.MaxParticipants) * 100
	st.RecentJoiners = append([]LobbyJoin(nil), l.state.RecentJoiners...)
	return st
}

// Close abandons the lobby.
func (l *Lobby) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sched.Clear()
}
