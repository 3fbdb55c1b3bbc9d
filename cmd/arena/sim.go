package main

import (
	"fmt"
	"strings"
	"time"

	"agentarena/internal/sim"

	"github.com/spf13/cobra"
)

func newSimCmd() *cobra.Command {
	var seed int64
	var duration, step time.Duration
	var agentName string
	var cash float64
	var trace, thinking bool
	var tail int
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Run a seeded session locally, without the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if duration <= 0 || step <= 0 {
				return fmt.Errorf("duration and step must be positive")
			}
			cfg := sim.DefaultConfig()
			cfg.Seed = seed
			if name := strings.TrimSpace(agentName); name != "" {
				cfg.UserAgent = name
			}
			if cash > 0 {
				cfg.StartCashMicros = sim.DollarsToMicros(cash)
			}
			s := sim.NewSession(cfg)
			defer s.Close()
			start := s.Snapshot()

			var records <-chan sim.Record
			if trace {
				ch, cancel := s.Subscribe(0)
				defer cancel()
				records = ch
			}
			for s.Elapsed() < duration {
				if err := cmd.Context().Err(); err != nil {
					return err
				}
				s.Advance(min(step, duration-s.Elapsed()))
				drainTrace(records, thinking)
			}

			end := s.Snapshot()
			accent.Printf("\n== %s seed %d after %s ==\n", end.UserAgent, seed, end.Elapsed)
			fmt.Printf("Cash:      %s (%s)\n", formatMicros(end.CashMicros), colorizeMicros(end.CashMicros-start.CashMicros))
			fmt.Printf("Portfolio: %s (%s)  rank #%d of %d\n",
				formatMicros(end.PortfolioMicros), colorizeMicros(end.PortfolioMicros-start.PortfolioMicros), end.Rank, end.Agents)
			muted.Printf("%d activities, %d public messages, %d thoughts, %d balance changes\n\n",
				end.Activities, end.PublicMessages, end.Thoughts, end.BalanceChanges)
			renderRankings(s.Rankings())
			if !trace {
				renderActivities(s.Activities(tail), tail)
			}
			if d := s.Dropped(); d > 0 {
				printWarn(fmt.Sprintf("%d trace records dropped.", d))
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 1, "simulation seed")
	cmd.Flags().DurationVar(&duration, "duration", 5*time.Minute, "virtual time to simulate")
	cmd.Flags().DurationVar(&step, "step", time.Second, "clock step between trace flushes")
	cmd.Flags().StringVar(&agentName, "agent-name", "", "name of your agent")
	cmd.Flags().Float64Var(&cash, "cash", 0, "starting cash in dollars")
	cmd.Flags().BoolVar(&trace, "trace", false, "print every record as it happens")
	cmd.Flags().BoolVar(&thinking, "thinking", false, "include thoughts in the trace")
	cmd.Flags().IntVar(&tail, "tail", 10, "recent activities to print")
	return cmd
}

func drainTrace(records <-chan sim.Record, thinking bool) {
	if records == nil {
		return
	}
	for {
		select {
		case rec, ok := <-records:
			if !ok {
				return
			}
			switch {
			case rec.Activity != nil:
				fmt.Println(activityLine(*rec.Activity))
			case rec.Message != nil && (thinking || !rec.Message.IsThinking):
				fmt.Println(messageLine(*rec.Message))
			case rec.Balance != nil:
				delta := rec.Balance.AmountMicros
				if rec.Balance.Type == sim.ChangeDecrease {
					delta = -delta
				}
				fmt.Printf("%s balance %s\n", muted.Sprint(rec.At.Format("15:04:05")), colorizeMicros(delta))
			}
		default:
			return
		}
	}
}
