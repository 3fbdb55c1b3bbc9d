package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"agentarena/internal/config"
	"agentarena/internal/game"
	"agentarena/internal/sim"

	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T) (*Server, *game.Service) {
	t.Helper()
	cat, err := game.DefaultCatalog()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := game.NewService(cat, game.DefaultOptions(), logger)
	t.Cleanup(svc.Close)
	return New(config.APIConfig{}, logger, svc), svc
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv.Handler(), http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok":true`) {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestCreateAgentStatusCodes(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "created", body: `{"name":"Moonwalker","type":"CHAOTIC"}`, want: http.StatusCreated},
		{name: "unknown type", body: `{"name":"Moonwalker","type":"GREEDY"}`, want: http.StatusBadRequest},
		{name: "blocked name", body: `{"name":"Admin","type":"CHAOTIC"}`, want: http.StatusBadRequest},
		{name: "unknown field", body: `{"name":"Moonwalker","type":"CHAOTIC","xp":9}`, want: http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/v1/agents", tc.body)
			if rec.Code != tc.want {
				t.Fatalf("status=%d want %d body=%s", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestGameRoutes(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/v1/games?status=upcoming", "")
	var list struct {
		Games []game.Game `json:"games"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Games) != 1 || list.Games[0].ID != "game2" {
		t.Fatalf("unexpected games: %+v", list.Games)
	}

	if rec := do(t, h, http.MethodPost, "/v1/games/game3/join", `{"agent_id":"agent1"}`); rec.Code != http.StatusConflict {
		t.Fatalf("join completed game status=%d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/v1/games/nope", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing game status=%d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/v1/games/game2/lobby", ""); rec.Code != http.StatusOK {
		t.Fatalf("lobby status=%d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/v1/leaderboard?category=fame", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad category status=%d", rec.Code)
	}
}

func TestSessionRoutes(t *testing.T) {
	srv, svc := newTestServer(t)
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/v1/games/game1/sessions", `{"agent_id":"agent1","seed":3}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("start status=%d body=%s", rec.Code, rec.Body.String())
	}
	var info game.SessionInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = do(t, h, http.MethodPost, "/v1/sessions/"+info.ID+"/trades", `{"symbol":"BTC","side":"buy","amount":0.01}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("trade status=%d body=%s", rec.Code, rec.Body.String())
	}
	var act sim.Activity
	if err := json.Unmarshal(rec.Body.Bytes(), &act); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if act.Action != sim.ActionBuy || act.TotalMicros != 500*sim.MicrosPerDollar {
		t.Fatalf("unexpected activity: %+v", act)
	}
	if rec := do(t, h, http.MethodPost, "/v1/sessions/"+info.ID+"/trades", `{"symbol":"BTC","side":"hodl","amount":1}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad side status=%d", rec.Code)
	}

	svc.Advance(time.Minute)
	rec = do(t, h, http.MethodGet, "/v1/sessions/"+info.ID+"/feed?public=false&thinking=true", "")
	var feed struct {
		Messages []sim.Message `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &feed); err != nil {
		t.Fatalf("decode feed: %v", err)
	}
	thinking := false
	for _, m := range feed.Messages {
		thinking = thinking || m.IsThinking
	}
	if !thinking {
		t.Fatalf("expected the trade rationale in the thinking feed")
	}

	if rec := do(t, h, http.MethodDelete, "/v1/sessions/"+info.ID, ""); rec.Code != http.StatusOK {
		t.Fatalf("stop status=%d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/v1/sessions/"+info.ID, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("stopped session status=%d", rec.Code)
	}
}

func TestMetricsCountsRoutePatterns(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()
	do(t, h, http.MethodGet, "/v1/agents/agent1", "")

	rec := do(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `route="/v1/agents/{id}"`) {
		t.Fatalf("expected route pattern label in metrics output")
	}
}

func TestStreamSendsSnapshotThenRecords(t *testing.T) {
	srv, svc := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx := context.Background()
	info, err := svc.StartSession(ctx, "game1", "agent2", 8)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/sessions/" + info.ID + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first game.StreamMessage
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if first.Type != game.StreamSnapshot || first.Snapshot == nil || first.Snapshot.UserAgent != "BearHunter" {
		t.Fatalf("unexpected first frame: %+v", first)
	}

	if _, err := svc.Trade(ctx, info.ID, game.TradeInput{Symbol: "ETH", Side: "sell", Amount: 1}); err != nil {
		t.Fatalf("trade: %v", err)
	}
	var next game.StreamMessage
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("read record: %v", err)
	}
	if next.Type != game.StreamRecord || next.Record == nil || next.Record.Kind != sim.RecordActivity {
		t.Fatalf("unexpected record frame: %+v", next)
	}

	if _, err := svc.StopSession(ctx, info.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}
	for {
		var msg game.StreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.Fatalf("expected normal closure, got %v", err)
			}
			break
		}
	}
}

func TestStreamUnknownSession(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv.Handler(), http.MethodGet, "/v1/sessions/sess-missing/stream", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rec.Code)
	}
}
