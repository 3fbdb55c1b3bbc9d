package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"agentarena/internal/game"
	"agentarena/internal/sim"

	"github.com/fatih/color"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
	muted       = color.New(color.FgHiBlack)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptChoice(label string, options []string, defaultValue string) (string, error) {
	normalized := make(map[string]struct{}, len(options))
	for _, opt := range options {
		normalized[strings.ToLower(strings.TrimSpace(opt))] = struct{}{}
	}
	for {
		fmt.Printf("%s (%s) [%s]: ", label, strings.Join(options, "/"), defaultValue)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.ToLower(strings.TrimSpace(text))
		if text == "" {
			text = strings.ToLower(strings.TrimSpace(defaultValue))
		}
		if _, ok := normalized[text]; ok {
			return text, nil
		}
		printWarn("Invalid option. Please pick one of the listed values.")
	}
}

func renderHome(h game.Home) {
	accent.Printf("\n== %s ==\n", strings.ToUpper(h.User.Username))
	fmt.Printf("Balance:         %s\n", formatMicros(int64(h.User.BalanceMicros)))
	fmt.Printf("Reward pool:     %s\n", formatMicros(int64(h.Stats.TotalRewardPoolMicros)))
	fmt.Printf("Active games:    %d\n", h.Stats.ActiveGames)
	fmt.Printf("Agents:          %d\n", h.Stats.RegisteredAgents)
	fmt.Printf("Daily trades:    %s\n", comma(int64(h.Stats.DailyTransactions)))
	if len(h.ActiveGames) > 0 {
		accent.Println("\nActive games")
		renderGames(h.ActiveGames, "")
	}
	renderMarket(h.Market)
}

func renderAgents(agents []game.Agent, defaultID string) {
	accent.Println("\n== AGENTS ==")
	if len(agents) == 0 {
		printInfo("No agents yet. Create one with `arena agents create`.")
		return
	}
	fmt.Printf("%-2s %-40s %-16s %-13s %5s %14s\n", "", "ID", "NAME", "TYPE", "LVL", "BALANCE")
	for _, a := range agents {
		mark := ""
		if a.ID == defaultID {
			mark = "*"
		}
		fmt.Printf("%-2s %-40s %-16s %-13s %5d %14s\n",
			mark,
			truncate(a.ID, 40),
			truncate(a.Name, 16),
			a.Type,
			a.Level,
			formatMicros(int64(a.BalanceMicros)),
		)
	}
	fmt.Println()
}

func renderAgent(a game.Agent) {
	accent.Printf("\n== %s ==\n", a.Name)
	fmt.Printf("ID:       %s\n", a.ID)
	fmt.Printf("Type:     %s  Level %d  XP %d  Win rate %.0f%%\n", a.Type, a.Level, a.XP, a.WinRate*100)
	fmt.Printf("Balance:  %s\n", formatMicros(int64(a.BalanceMicros)))
	if len(a.Holdings) > 0 {
		fmt.Printf("%-8s %14s %14s\n", "SYMBOL", "AMOUNT", "PRICE")
		for _, h := range a.Holdings {
			fmt.Printf("%-8s %14s %14s\n", h.Symbol, sim.PlainCoins(int64(h.AmountUnits)), formatMicros(int64(h.PriceMicros)))
		}
	}
	for _, s := range a.Skills {
		state := muted.Sprint("locked")
		if s.Unlocked {
			state = success.Sprint("unlocked")
		}
		fmt.Printf("Skill:    %s (%s)\n", s.Name, state)
	}
	muted.Printf("Prompt:   %s\n\n", a.Prompt)
}

func renderTemplates(templates []game.AgentTemplate) {
	accent.Println("\n== AGENT TEMPLATES ==")
	for _, t := range templates {
		fmt.Printf("%-13s %s\n", t.Type, t.Description)
	}
	fmt.Println()
}

func renderGames(games []game.Game, activeID string) {
	fmt.Printf("%-2s %-8s %-26s %-10s %9s %14s\n", "", "ID", "NAME", "STATUS", "PLAYERS", "PRIZE")
	for _, g := range games {
		mark := ""
		if g.ID == activeID {
			mark = "*"
		}
		fmt.Printf("%-2s %-8s %-26s %-10s %9s %14s\n",
			mark,
			g.ID,
			truncate(g.Name, 26),
			colorizeStatus(g.Status),
			fmt.Sprintf("%d/%d", g.Participants, g.MaxParticipants),
			formatMicros(int64(g.PrizeMicros)),
		)
	}
	fmt.Println()
}

func renderLobby(gameID string, st sim.LobbyState) {
	accent.Printf("\n== LOBBY %s ==\n", gameID)
	fmt.Printf("Players: %d/%d  %s\n", st.Participants, st.MaxParticipants, progressBar(st.Progress, 30))
	switch {
	case st.Started:
		printSuccess("Game started.")
	case st.Starting:
		printWarn(fmt.Sprintf("Starting in %ds", st.SecondsToStart))
	}
	for _, j := range st.RecentJoiners {
		muted.Printf("  + %s\n", j.Name)
	}
	fmt.Println()
}

func renderSnapshot(info game.SessionInfo) {
	s := info.Snapshot
	accent.Printf("\n== %s in %s (t+%s) ==\n", s.UserAgent, info.GameID, s.Elapsed.Truncate(time.Second))
	fmt.Printf("Session:   %s  seed %d\n", info.ID, info.Seed)
	fmt.Printf("Cash:      %s\n", formatMicros(s.CashMicros))
	fmt.Printf("Portfolio: %s  rank #%d of %d\n", formatMicros(s.PortfolioMicros), s.Rank, s.Agents)
	muted.Printf("%d activities, %d public messages, %d thoughts, %d pending events\n\n",
		s.Activities, s.PublicMessages, s.Thoughts, s.PendingEvents)
}

func renderRankings(rows []sim.AgentRanking) {
	fmt.Printf("%-4s %-16s %14s %9s %7s\n", "#", "AGENT", "PORTFOLIO", "CHANGE", "TRADES")
	for _, r := range rows {
		name := truncate(r.Name, 16)
		if r.IsUser {
			name = accent.Sprintf("%-16s", name)
		} else {
			name = fmt.Sprintf("%-16s", name)
		}
		fmt.Printf("%-4d %s %14s %9s %7d\n", r.ID, name, formatMicros(r.PortfolioMicros), colorizePercent(r.PercentChange), r.Trades)
	}
	fmt.Println()
}

func renderActivities(acts []sim.Activity, limit int) {
	if limit > 0 && len(acts) > limit {
		acts = acts[:limit]
	}
	for _, a := range acts {
		fmt.Println(activityLine(a))
	}
	if len(acts) > 0 {
		fmt.Println()
	}
}

func activityLine(a sim.Activity) string {
	ts := muted.Sprint(a.Timestamp.Format("15:04:05"))
	switch a.Action {
	case sim.ActionBuy:
		return fmt.Sprintf("%s %s %s %s %s @ %s", ts, a.AgentID, success.Sprint("BUY "), sim.PlainCoins(a.AmountUnits), a.Symbol, formatMicros(a.PriceMicros))
	case sim.ActionSell:
		return fmt.Sprintf("%s %s %s %s %s @ %s", ts, a.AgentID, danger.Sprint("SELL"), sim.PlainCoins(a.AmountUnits), a.Symbol, formatMicros(a.PriceMicros))
	case sim.ActionBribe:
		return fmt.Sprintf("%s %s %s %s", ts, a.AgentID, warn.Sprint("BRIBE"), formatMicros(a.TotalMicros))
	default:
		return fmt.Sprintf("%s %s %s %s", ts, a.AgentID, a.Action, a.Content)
	}
}

func renderFeed(msgs []sim.Message) {
	if len(msgs) == 0 {
		printInfo("No messages yet.")
		return
	}
	for _, m := range msgs {
		fmt.Println(messageLine(m))
	}
	fmt.Println()
}

func messageLine(m sim.Message) string {
	ts := muted.Sprint(m.Timestamp.Format("15:04:05"))
	switch {
	case m.IsThinking:
		return fmt.Sprintf("%s %s %s", ts, muted.Sprint("(thinking)"), m.Content)
	case m.IsBribery:
		to := ""
		if m.ReceiverID != nil {
			to = " -> " + *m.ReceiverID
		}
		return fmt.Sprintf("%s %s%s %s", ts, warn.Sprint(m.SenderID), to, m.Content)
	case m.IsPublic:
		return fmt.Sprintf("%s %s %s %s", ts, accent.Sprint(m.SenderID), stars(sim.ImpactStars(m.Impact)), m.Content)
	default:
		return fmt.Sprintf("%s %s %s", ts, m.SenderID, m.Content)
	}
}

func renderLeaderboard(rows []game.LeaderboardEntry, category string) {
	accent.Printf("\n== LEADERBOARD %s ==\n", strings.ToUpper(category))
	if len(rows) == 0 {
		printInfo("No leaderboard rows yet.")
		return
	}
	fmt.Printf("%-6s %-18s %12s\n", "RANK", "AGENT", "SCORE")
	for _, row := range rows {
		fmt.Printf("%-6d %-18s %12s\n", row.Rank, truncate(row.AgentName, 18), comma(row.Score))
	}
	fmt.Println()
}

func renderAssets(a game.Assets) {
	accent.Println("\n== ASSETS ==")
	fmt.Printf("Tokens:       %s\n", formatMicros(a.TokenBalanceMicros))
	fmt.Printf("Agents value: %s\n", formatMicros(a.AgentsValueMicros))
	fmt.Printf("NFT agents:   %d\n", len(a.NFTs))
	if len(a.UnclaimedRewards) > 0 {
		accent.Println("\nUnclaimed rewards")
		for _, r := range a.UnclaimedRewards {
			fmt.Printf("%-10s %-6s %8s  %s\n", r.ID, r.Type, comma(r.Amount), r.Source)
		}
	}
	if len(a.Achievements) > 0 {
		accent.Println("\nAchievements")
		for _, ach := range a.Achievements {
			mark := muted.Sprint("[ ]")
			if ach.Unlocked {
				mark = success.Sprint("[x]")
			}
			fmt.Printf("%s %s\n", mark, ach.Name)
		}
	}
	fmt.Println()
}

func renderMarket(rows []game.MarketData) {
	accent.Println("\n== MARKET ==")
	fmt.Printf("%-6s %16s %9s %18s\n", "SYMBOL", "PRICE", "24H", "VOLUME")
	for _, m := range rows {
		fmt.Printf("%-6s %16s %9s %18s\n", m.Symbol, formatMicros(int64(m.PriceMicros)), colorizePercent(m.Change), formatMicros(int64(m.VolumeMicros)))
	}
	fmt.Println()
}

func renderConversationLine(agentName string, line sim.ConversationLine) {
	ts := muted.Sprint(line.Timestamp.Format("15:04:05"))
	fmt.Printf("%s %s %s\n", ts, accent.Sprint(agentName), line.Content)
}

func colorizeStatus(s game.GameStatus) string {
	text := fmt.Sprintf("%-10s", s)
	switch s {
	case game.StatusActive:
		return success.Sprint(text)
	case game.StatusUpcoming:
		return warn.Sprint(text)
	default:
		return muted.Sprint(text)
	}
}

func colorizeMicros(v int64) string {
	text := signedMicros(v)
	switch {
	case v > 0:
		return success.Sprint(text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func colorizePercent(v float64) string {
	text := fmt.Sprintf("%+.2f%%", v)
	switch {
	case v > 0:
		return success.Sprint(text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

// formatMicros renders dollars with thousands separators and cents.
func formatMicros(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	whole := v / sim.MicrosPerDollar
	cents := (v % sim.MicrosPerDollar) / 10_000
	return fmt.Sprintf("%s$%s.%02d", sign, comma(whole), cents)
}

func signedMicros(v int64) string {
	if v > 0 {
		return "+" + formatMicros(v)
	}
	return formatMicros(v)
}

func comma(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return sign + s
	}
	var b strings.Builder
	b.WriteString(sign)
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		b.WriteByte(',')
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

func stars(n int) string {
	return strings.Repeat("*", n) + strings.Repeat(".", 5-min(n, 5))
}

func progressBar(pct float64, width int) string {
	filled := int(pct / 100 * float64(width))
	filled = max(0, min(filled, width))
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]" + fmt.Sprintf(" %3.0f%%", pct)
}
