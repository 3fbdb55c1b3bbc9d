package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	cl "agentarena/internal/cli"
	"agentarena/internal/config"
	"agentarena/internal/game"
	"agentarena/internal/sim"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "arena",
		Short:        "Agent arena trading game client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL")

	root.AddCommand(
		newHomeCmd(&apiBase),
		newAgentsCmd(&apiBase),
		newTemplatesCmd(&apiBase),
		newGamesCmd(&apiBase),
		newPlayCmd(&apiBase),
		newFeedCmd(&apiBase),
		newTradeCmd(&apiBase),
		newWatchCmd(&apiBase),
		newStopCmd(&apiBase),
		newLeaderboardCmd(&apiBase),
		newAssetsCmd(&apiBase),
		newClaimCmd(&apiBase),
		newMarketCmd(&apiBase),
		newConversationCmd(&apiBase),
		newSyncCmd(&apiBase),
		newProfileCmd(),
		newSimCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 30*time.Second)
}

// agentFromFlagOrProfile picks the agent a command acts for.
func agentFromFlagOrProfile(flag string) (string, error) {
	if id := strings.TrimSpace(flag); id != "" {
		return id, nil
	}
	p, err := cl.LoadProfile()
	if err != nil {
		return "", err
	}
	if p.AgentID == "" {
		return "", errors.New("no agent selected: pass --agent or run `arena agents use <id>`")
	}
	return p.AgentID, nil
}

func sessionFromFlagOrProfile(flag string) (string, error) {
	if id := strings.TrimSpace(flag); id != "" {
		return id, nil
	}
	p, err := cl.LoadProfile()
	if err != nil {
		return "", err
	}
	if p.SessionID == "" {
		return "", errors.New("no session: pass --session or run `arena play`")
	}
	return p.SessionID, nil
}

func newHomeCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "home",
		Short: "Show platform stats, active games and the market",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			h, err := newClient(apiBase).Home(ctx)
			if err != nil {
				return err
			}
			renderHome(h)
			return nil
		},
	}
}

func newAgentsCmd(apiBase *string) *cobra.Command {
	agents := &cobra.Command{
		Use:     "agents",
		Short:   "Agent commands",
		Aliases: []string{"agent"},
	}
	agents.AddCommand(
		newAgentsListCmd(apiBase),
		newAgentsShowCmd(apiBase),
		newAgentsCreateCmd(apiBase),
		newAgentsPromptCmd(apiBase),
		newAgentsUseCmd(apiBase),
	)
	return agents
}

func newAgentsListCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			agents, err := newClient(apiBase).ListAgents(ctx)
			if err != nil {
				return err
			}
			p, _ := cl.LoadProfile()
			renderAgents(agents, p.AgentID)
			return nil
		},
	}
}

func newAgentsShowCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show [agent-id]",
		Short: "Show one agent",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flag := ""
			if len(args) == 1 {
				flag = args[0]
			}
			id, err := agentFromFlagOrProfile(flag)
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			a, err := newClient(apiBase).GetAgent(ctx, id)
			if err != nil {
				return err
			}
			renderAgent(a)
			return nil
		},
	}
}

func newAgentsCreateCmd(apiBase *string) *cobra.Command {
	var name, agentType, prompt string
	var use bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an agent from a strategy template",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if strings.TrimSpace(name) == "" {
				if name, err = promptRequired("Agent name"); err != nil {
					return err
				}
			}
			if strings.TrimSpace(agentType) == "" {
				agentType, err = promptChoice("Strategy", []string{"conservative", "aggressive", "chaotic", "informative"}, "aggressive")
				if err != nil {
					return err
				}
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			a, err := newClient(apiBase).CreateAgent(ctx, game.CreateAgentInput{
				Name:   name,
				Type:   game.AgentType(strings.ToUpper(agentType)),
				Prompt: prompt,
			})
			if err != nil {
				return err
			}
			if use {
				p, _ := cl.LoadProfile()
				p.AgentID = a.ID
				if err := cl.SaveProfile(p); err != nil {
					return err
				}
			}
			printSuccess(fmt.Sprintf("Created %s (%s).", a.Name, a.ID))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "agent name")
	cmd.Flags().StringVar(&agentType, "type", "", "conservative|aggressive|chaotic|informative")
	cmd.Flags().StringVar(&prompt, "prompt", "", "custom strategy prompt (defaults to the template)")
	cmd.Flags().BoolVar(&use, "use", true, "make the new agent the default")
	return cmd
}

func newAgentsPromptCmd(apiBase *string) *cobra.Command {
	var agentID string
	cmd := &cobra.Command{
		Use:   "prompt <text>",
		Short: "Replace an agent's strategy prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := agentFromFlagOrProfile(agentID)
			if err != nil {
				return err
			}
			prompt := strings.Join(args, " ")
			ctx, cancel := requestContext(cmd)
			defer cancel()
			a, err := newClient(apiBase).UpdatePrompt(ctx, id, prompt)
			if err != nil {
				return queueOnNetworkError(err, http.MethodPut, "/v1/agents/"+url.PathEscape(id)+"/prompt",
					"prompt "+id, uuid.NewString(), map[string]any{"prompt": prompt})
			}
			printSuccess(fmt.Sprintf("Prompt updated for %s.", a.Name))
			return nil
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "agent id")
	return cmd
}

func newAgentsUseCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "use <agent-id>",
		Short: "Set the default agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			a, err := newClient(apiBase).GetAgent(ctx, args[0])
			if err != nil {
				return err
			}
			p, _ := cl.LoadProfile()
			p.AgentID = a.ID
			if err := cl.SaveProfile(p); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Now playing as %s.", a.Name))
			return nil
		},
	}
}

func newTemplatesCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List agent strategy templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			t, err := newClient(apiBase).Templates(ctx)
			if err != nil {
				return err
			}
			renderTemplates(t)
			return nil
		},
	}
}

func newGamesCmd(apiBase *string) *cobra.Command {
	games := &cobra.Command{
		Use:     "games",
		Short:   "Game commands",
		Aliases: []string{"game"},
	}
	games.AddCommand(newGamesListCmd(apiBase), newGamesJoinCmd(apiBase), newGamesLobbyCmd(apiBase))
	return games
}

func newGamesListCmd(apiBase *string) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List games",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			games, err := newClient(apiBase).ListGames(ctx, status)
			if err != nil {
				return err
			}
			p, _ := cl.LoadProfile()
			accent.Println("\n== GAMES ==")
			renderGames(games, p.GameID)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "upcoming|active|completed")
	return cmd
}

func newGamesJoinCmd(apiBase *string) *cobra.Command {
	var agentID string
	cmd := &cobra.Command{
		Use:   "join <game-id>",
		Short: "Join a game with your agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := agentFromFlagOrProfile(agentID)
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			res, err := newClient(apiBase).JoinGame(ctx, args[0], id)
			if err != nil {
				return err
			}
			p, _ := cl.LoadProfile()
			p.GameID = res.Game.ID
			if err := cl.SaveProfile(p); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Joined %s (%d/%d players).", res.Game.Name, res.Game.Participants, res.Game.MaxParticipants))
			return nil
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "agent id")
	return cmd
}

func newGamesLobbyCmd(apiBase *string) *cobra.Command {
	var follow bool
	var every time.Duration
	cmd := &cobra.Command{
		Use:   "lobby <game-id>",
		Short: "Show the waiting room of an upcoming game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient(apiBase)
			for {
				ctx, cancel := requestContext(cmd)
				st, err := client.Lobby(ctx, args[0])
				cancel()
				if err != nil {
					return err
				}
				renderLobby(args[0], st)
				if !follow || st.Started {
					return nil
				}
				select {
				case <-cmd.Context().Done():
					return nil
				case <-time.After(every):
				}
			}
		},
	}
	cmd.Flags().BoolVar(&follow, "follow", false, "poll until the game starts")
	cmd.Flags().DurationVar(&every, "every", time.Second, "poll interval with --follow")
	return cmd
}

func newPlayCmd(apiBase *string) *cobra.Command {
	var agentID string
	var seed int64
	cmd := &cobra.Command{
		Use:   "play [game-id]",
		Short: "Start a session in an active game",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := agentFromFlagOrProfile(agentID)
			if err != nil {
				return err
			}
			p, _ := cl.LoadProfile()
			gameID := p.GameID
			if len(args) == 1 {
				gameID = args[0]
			}
			client := newClient(apiBase)
			ctx, cancel := requestContext(cmd)
			defer cancel()
			if gameID == "" {
				active, err := client.ListGames(ctx, string(game.StatusActive))
				if err != nil {
					return err
				}
				if len(active) == 0 {
					return errors.New("no active games")
				}
				gameID = active[0].ID
			}
			info, err := client.StartSession(ctx, gameID, id, seed)
			if err != nil {
				return err
			}
			p.AgentID = id
			p.GameID = gameID
			p.SessionID = info.ID
			if err := cl.SaveProfile(p); err != nil {
				return err
			}
			renderSnapshot(info)
			rows, err := client.Rankings(ctx, info.ID)
			if err != nil {
				return err
			}
			renderRankings(rows)
			acts, err := client.Activities(ctx, info.ID, 10)
			if err != nil {
				return err
			}
			renderActivities(acts, 10)
			printInfo("Run `arena watch` to follow the session live.")
			return nil
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "agent id")
	cmd.Flags().Int64Var(&seed, "seed", 0, "simulation seed (0 picks one)")
	return cmd
}

func newFeedCmd(apiBase *string) *cobra.Command {
	var sessionID string
	var private, thinking bool
	var limit int
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Show the public feed or your private messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := sessionFromFlagOrProfile(sessionID)
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			msgs, err := newClient(apiBase).Feed(ctx, id, sim.FeedOptions{Public: !private, ShowThinking: thinking})
			if err != nil {
				return err
			}
			if limit > 0 && len(msgs) > limit {
				msgs = msgs[:limit]
			}
			renderFeed(msgs)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	cmd.Flags().BoolVar(&private, "private", false, "show private messages instead of the public feed")
	cmd.Flags().BoolVar(&thinking, "thinking", false, "include your agent's reasoning in the private feed")
	cmd.Flags().IntVar(&limit, "limit", 20, "max messages")
	return cmd
}

func newTradeCmd(apiBase *string) *cobra.Command {
	var sessionID string
	var price float64
	cmd := &cobra.Command{
		Use:   "trade <buy|sell> <symbol> <amount>",
		Short: "Place a manual trade for your agent",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := sessionFromFlagOrProfile(sessionID)
			if err != nil {
				return err
			}
			amount, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("amount: %w", err)
			}
			in := game.TradeInput{
				Symbol:         args[1],
				Side:           args[0],
				Amount:         amount,
				Price:          price,
				IdempotencyKey: uuid.NewString(),
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			act, err := newClient(apiBase).Trade(ctx, id, in)
			if err != nil {
				label := strings.Join(args, " ")
				return queueOnNetworkError(err, http.MethodPost, cl.TradePath(id), label, in.IdempotencyKey, in)
			}
			fmt.Println(activityLine(act))
			delta := act.TotalMicros
			if act.Action == sim.ActionBuy {
				delta = -delta
			}
			fmt.Printf("Cash %s\n", colorizeMicros(delta))
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	cmd.Flags().Float64Var(&price, "price", 0, "limit price in dollars (defaults to the last traded price)")
	return cmd
}

func newStopCmd(apiBase *string) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "End your session and settle the agent's balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := sessionFromFlagOrProfile(sessionID)
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			info, err := newClient(apiBase).StopSession(ctx, id)
			if err != nil {
				return err
			}
			p, _ := cl.LoadProfile()
			if p.SessionID == id {
				p.SessionID = ""
				_ = cl.SaveProfile(p)
			}
			renderSnapshot(info)
			printSuccess("Session closed.")
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	return cmd
}

func newLeaderboardCmd(apiBase *string) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the leaderboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			rows, err := newClient(apiBase).Leaderboard(ctx, category)
			if err != nil {
				return err
			}
			renderLeaderboard(rows, category)
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "profit", "profit|influence|betrayal")
	return cmd
}

func newAssetsCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "assets",
		Short: "Show tokens, agent value, rewards and achievements",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			a, err := newClient(apiBase).Assets(ctx)
			if err != nil {
				return err
			}
			renderAssets(a)
			return nil
		},
	}
}

func newClaimCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "claim <reward-id|all>",
		Short: "Claim a reward, or all of them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			client := newClient(apiBase)
			if strings.EqualFold(args[0], "all") {
				n, err := client.ClaimAll(ctx)
				if err != nil {
					return queueOnNetworkError(err, http.MethodPost, "/v1/rewards/claim-all", "claim all", uuid.NewString(), nil)
				}
				printSuccess(fmt.Sprintf("Claimed %d rewards.", n))
				return nil
			}
			r, err := client.ClaimReward(ctx, args[0])
			if err != nil {
				return queueOnNetworkError(err, http.MethodPost, "/v1/rewards/"+url.PathEscape(args[0])+"/claim",
					"claim "+args[0], uuid.NewString(), nil)
			}
			printSuccess(fmt.Sprintf("Claimed %s %s from %s.", comma(r.Amount), r.Type, r.Source))
			return nil
		},
	}
}

func newMarketCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "market",
		Short: "Show market prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			rows, err := newClient(apiBase).Market(ctx)
			if err != nil {
				return err
			}
			renderMarket(rows)
			return nil
		},
	}
}

func newConversationCmd(apiBase *string) *cobra.Command {
	var seed int64
	var live bool
	cmd := &cobra.Command{
		Use:   "conversation <network-agent-id>",
		Short: "Replay a network agent's chatter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			replay, err := newClient(apiBase).Conversation(ctx, args[0], seed)
			if err != nil {
				return err
			}
			accent.Printf("\n== %s (%s) ==\n", replay.Agent.Name, replay.Agent.Status)
			var last time.Time
			for _, line := range replay.Lines {
				if live && !last.IsZero() {
					select {
					case <-cmd.Context().Done():
						return nil
					case <-time.After(line.Timestamp.Sub(last)):
					}
				}
				last = line.Timestamp
				renderConversationLine(replay.Agent.Name, line)
			}
			fmt.Println()
			return nil
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 0, "pacing seed (0 picks one)")
	cmd.Flags().BoolVar(&live, "live", false, "replay with the recorded pacing")
	return cmd
}

func newProfileCmd() *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or clear the saved agent, game and session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if reset {
				if err := cl.ClearProfile(); err != nil {
					return err
				}
				printSuccess("Profile cleared.")
				return nil
			}
			p, err := cl.LoadProfile()
			if err != nil {
				return err
			}
			fmt.Printf("Agent:   %s\n", orDash(p.AgentID))
			fmt.Printf("Game:    %s\n", orDash(p.GameID))
			fmt.Printf("Session: %s\n", orDash(p.SessionID))
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "clear", false, "forget the saved profile")
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
