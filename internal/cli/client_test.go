package cli

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"agentarena/internal/api"
	"agentarena/internal/config"
	"agentarena/internal/game"
	"agentarena/internal/sim"
)

func newTestAPI(t *testing.T) (*Client, *game.Service) {
	t.Helper()
	cat, err := game.DefaultCatalog()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := game.NewService(cat, game.DefaultOptions(), logger)
	ts := httptest.NewServer(api.New(config.APIConfig{}, logger, svc).Handler())
	t.Cleanup(func() {
		svc.Close()
		ts.Close()
	})
	return NewClient(ts.URL + "/"), svc
}

func TestClientAgentsAndErrors(t *testing.T) {
	c, _ := newTestAPI(t)
	ctx := context.Background()

	agents, err := c.ListAgents(ctx)
	if err != nil || len(agents) != 2 {
		t.Fatalf("agents=%d err=%v", len(agents), err)
	}
	created, err := c.CreateAgent(ctx, game.CreateAgentInput{Name: "Tidewatcher", Type: game.AgentInformative})
	if err != nil || created.Type != game.AgentInformative {
		t.Fatalf("create: %+v %v", created, err)
	}

	_, err = c.GetAgent(ctx, "ghost")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Fatalf("expected a 404 api error, got %v", err)
	}
	if apiErr.Message != game.ErrAgentNotFound.Error() {
		t.Fatalf("message=%q", apiErr.Message)
	}
}

func TestClientSessionFlow(t *testing.T) {
	c, svc := newTestAPI(t)
	ctx := context.Background()

	info, err := c.StartSession(ctx, "game1", "agent1", 21)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	act, err := c.Trade(ctx, info.ID, game.TradeInput{Symbol: "SOL", Side: "buy", Amount: 2})
	if err != nil || act.TotalMicros != 300*sim.MicrosPerDollar {
		t.Fatalf("trade: %+v %v", act, err)
	}
	svc.Advance(30 * time.Second)

	rows, err := c.Rankings(ctx, info.ID)
	if err != nil || len(rows) == 0 {
		t.Fatalf("rankings=%d err=%v", len(rows), err)
	}
	if _, err := c.Feed(ctx, info.ID, sim.FeedOptions{Public: true}); err != nil {
		t.Fatalf("feed: %v", err)
	}
	final, err := c.StopSession(ctx, info.ID)
	if err != nil || final.ID != info.ID {
		t.Fatalf("stop: %+v %v", final, err)
	}
}

func TestClientStream(t *testing.T) {
	c, svc := newTestAPI(t)
	ctx := context.Background()

	info, err := svc.StartSession(ctx, "game1", "agent1", 4)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	stream, err := c.OpenStream(ctx, info.ID)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer stream.Close()

	first, err := stream.Next()
	if err != nil || first.Type != game.StreamSnapshot {
		t.Fatalf("first frame: %+v %v", first, err)
	}
	if _, err := svc.StopSession(ctx, info.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}
	for {
		if _, err := stream.Next(); err != nil {
			if !errors.Is(err, io.EOF) {
				t.Fatalf("expected io.EOF at normal close, got %v", err)
			}
			break
		}
	}

	if _, err := c.OpenStream(ctx, "sess-missing"); err == nil {
		t.Fatalf("expected missing session stream to fail")
	}
}

func TestClientTradeIdempotencyKey(t *testing.T) {
	c, svc := newTestAPI(t)
	ctx := context.Background()

	info, err := svc.StartSession(ctx, "game1", "agent1", 8)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	in := game.TradeInput{Symbol: "SOL", Side: "buy", Amount: 1, IdempotencyKey: "trade-k1"}
	first, err := c.Trade(ctx, info.ID, in)
	if err != nil {
		t.Fatalf("trade: %v", err)
	}
	if err := c.Do(ctx, http.MethodPost, TradePath(info.ID), json.RawMessage(`{"symbol":"SOL","side":"buy","amount":1}`), "trade-k1"); err != nil {
		t.Fatalf("replay: %v", err)
	}
	again, err := c.Trade(ctx, info.ID, in)
	if err != nil || again.ID != first.ID {
		t.Fatalf("retry returned %+v err=%v, want activity %s", again, err, first.ID)
	}

	acts, err := c.Activities(ctx, info.ID, 0)
	if err != nil {
		t.Fatalf("activities: %v", err)
	}
	buys := 0
	for _, a := range acts {
		if a.AgentID == info.Snapshot.UserAgent && a.Action == sim.ActionBuy && a.Symbol == "SOL" {
			buys++
		}
	}
	if buys != 1 {
		t.Fatalf("keyed trade executed %d times", buys)
	}
}
