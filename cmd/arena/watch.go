package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	cl "agentarena/internal/cli"
	"agentarena/internal/game"
	"agentarena/internal/sim"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const watchHistory = 500

var (
	watchTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")).Padding(0, 1)
	watchPanel = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#374151")).Padding(0, 1)
	watchUp    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#10B981"))
	watchDown  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444"))
	watchDim   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	watchUser  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)
)

type watchKeys struct {
	Thoughts key.Binding
	Public   key.Binding
	Pause    key.Binding
	Quit     key.Binding
}

func (k watchKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Public, k.Thoughts, k.Pause, k.Quit}
}

func (k watchKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var defaultWatchKeys = watchKeys{
	Thoughts: key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "thoughts")),
	Public:   key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "public chat")),
	Pause:    key.NewBinding(key.WithKeys(" ", "space"), key.WithHelp("space", "pause")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
}

type streamMsg struct{ msg game.StreamMessage }

type streamDoneMsg struct{ err error }

type watchModel struct {
	stream *cl.Stream
	keys   watchKeys
	help   help.Model

	snap     sim.Snapshot
	display  int64
	rankings []sim.AgentRanking
	lines    []string
	held     []string

	showThoughts bool
	showPublic   bool
	paused       bool
	done         bool
	err          error

	width  int
	height int
}

func newWatchModel(stream *cl.Stream) *watchModel {
	return &watchModel{
		stream:     stream,
		keys:       defaultWatchKeys,
		help:       help.New(),
		showPublic: true,
	}
}

func (m *watchModel) Init() tea.Cmd {
	return m.listenStream()
}

// listenStream reads one frame; Update re-arms it after every frame.
func (m *watchModel) listenStream() tea.Cmd {
	return func() tea.Msg {
		msg, err := m.stream.Next()
		if err != nil {
			return streamDoneMsg{err: err}
		}
		return streamMsg{msg: msg}
	}
}

func (m *watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Thoughts):
			m.showThoughts = !m.showThoughts
		case key.Matches(msg, m.keys.Public):
			m.showPublic = !m.showPublic
		case key.Matches(msg, m.keys.Pause):
			m.paused = !m.paused
			if !m.paused {
				m.lines = appendCapped(m.lines, m.held...)
				m.held = nil
			}
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
	case streamMsg:
		m.apply(msg.msg)
		return m, m.listenStream()
	case streamDoneMsg:
		m.done = true
		if !errors.Is(msg.err, io.EOF) {
			m.err = msg.err
		}
	}
	return m, nil
}

func (m *watchModel) apply(msg game.StreamMessage) {
	switch msg.Type {
	case game.StreamSnapshot:
		if msg.Snapshot != nil {
			m.snap = *msg.Snapshot
			m.display = m.snap.DisplayMicros
		}
		return
	case game.StreamRecord:
	default:
		return
	}
	rec := msg.Record
	if rec == nil {
		return
	}
	line := ""
	switch rec.Kind {
	case sim.RecordActivity:
		if rec.Activity != nil {
			line = m.styleActivity(*rec.Activity)
		}
	case sim.RecordMessage:
		if rec.Message != nil && m.wantsMessage(*rec.Message) {
			line = messageLine(*rec.Message)
		}
	case sim.RecordRankings:
		m.rankings = rec.Rankings
		for _, r := range rec.Rankings {
			if r.IsUser {
				m.snap.Rank = r.ID
				m.snap.PortfolioMicros = r.PortfolioMicros
			}
		}
	case sim.RecordBalance:
		if b := rec.Balance; b != nil {
			ts := watchDim.Render(rec.At.Format("15:04:05"))
			if b.Type == sim.ChangeIncrease {
				line = ts + " " + watchUp.Render("balance +"+formatMicros(b.AmountMicros))
			} else {
				line = ts + " " + watchDown.Render("balance -"+formatMicros(b.AmountMicros))
			}
		}
	case sim.RecordFrame:
		m.display = rec.DisplayMicros
	}
	if line == "" {
		return
	}
	if m.paused {
		m.held = appendCapped(m.held, line)
		return
	}
	m.lines = appendCapped(m.lines, line)
}

func (m *watchModel) wantsMessage(msg sim.Message) bool {
	if msg.IsThinking {
		return m.showThoughts
	}
	if msg.IsPublic {
		return m.showPublic
	}
	return true
}

func (m *watchModel) styleActivity(a sim.Activity) string {
	line := activityLine(a)
	if a.AgentID == m.snap.UserAgent {
		return watchUser.Render(line)
	}
	return line
}

func (m *watchModel) View() string {
	var b strings.Builder
	header := fmt.Sprintf("%s  balance %s  portfolio %s  rank #%d",
		m.snap.UserAgent, formatMicros(m.display), formatMicros(m.snap.PortfolioMicros), m.snap.Rank)
	if m.paused {
		header += "  " + watchDim.Render("[paused]")
	}
	b.WriteString(watchTitle.Render(header))
	b.WriteString("\n")

	var top []string
	for i, r := range m.rankings {
		if i == 3 {
			break
		}
		top = append(top, fmt.Sprintf("#%d %s %s", r.ID, r.Name, formatMicros(r.PortfolioMicros)))
	}
	if len(top) > 0 {
		b.WriteString(watchDim.Render(strings.Join(top, "  |  ")))
		b.WriteString("\n")
	}

	rows := m.height - 7
	if rows < 5 {
		rows = 15
	}
	start := max(0, len(m.lines)-rows)
	body := strings.Join(m.lines[start:], "\n")
	if body == "" {
		body = watchDim.Render("waiting for activity...")
	}
	panel := watchPanel
	if m.width > 4 {
		panel = panel.Width(m.width - 4)
	}
	b.WriteString(panel.Render(body))
	b.WriteString("\n")

	switch {
	case m.err != nil:
		b.WriteString(watchDown.Render("stream error: " + m.err.Error()))
		b.WriteString("\n")
	case m.done:
		b.WriteString(watchDim.Render("session stopped"))
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func appendCapped(lines []string, more ...string) []string {
	lines = append(lines, more...)
	if over := len(lines) - watchHistory; over > 0 {
		lines = append(lines[:0], lines[over:]...)
	}
	return lines
}

func newWatchCmd(apiBase *string) *cobra.Command {
	var sessionID string
	var plain, thinking bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a session live",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := sessionFromFlagOrProfile(sessionID)
			if err != nil {
				return err
			}
			stream, err := newClient(apiBase).OpenStream(cmd.Context(), id)
			if err != nil {
				return err
			}
			defer stream.Close()

			if plain || !term.IsTerminal(int(os.Stdout.Fd())) {
				return watchPlain(stream, thinking)
			}
			m := newWatchModel(stream)
			m.showThoughts = thinking
			final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
			if err != nil {
				return err
			}
			if wm, ok := final.(*watchModel); ok && wm.err != nil {
				return wm.err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id")
	cmd.Flags().BoolVar(&plain, "plain", false, "print lines instead of the interactive view")
	cmd.Flags().BoolVar(&thinking, "thinking", false, "include your agent's reasoning")
	return cmd
}

// watchPlain prints the stream line by line, for pipes and dumb terminals.
func watchPlain(stream *cl.Stream, thinking bool) error {
	for {
		msg, err := stream.Next()
		if errors.Is(err, io.EOF) {
			printInfo("Session stopped.")
			return nil
		}
		if err != nil {
			return err
		}
		if msg.Type == game.StreamSnapshot && msg.Snapshot != nil {
			s := msg.Snapshot
			accent.Printf("%s  cash %s  portfolio %s  rank #%d of %d\n",
				s.UserAgent, formatMicros(s.CashMicros), formatMicros(s.PortfolioMicros), s.Rank, s.Agents)
			continue
		}
		rec := msg.Record
		if rec == nil {
			continue
		}
		switch {
		case rec.Kind == sim.RecordActivity && rec.Activity != nil:
			fmt.Println(activityLine(*rec.Activity))
		case rec.Kind == sim.RecordMessage && rec.Message != nil:
			if rec.Message.IsThinking && !thinking {
				continue
			}
			fmt.Println(messageLine(*rec.Message))
		case rec.Kind == sim.RecordBalance && rec.Balance != nil:
			delta := rec.Balance.AmountMicros
			if rec.Balance.Type == sim.ChangeDecrease {
				delta = -delta
			}
			fmt.Printf("balance %s\n", colorizeMicros(delta))
		}
	}
}
