package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"agentarena/internal/game"
	"agentarena/internal/sim"

	"github.com/gorilla/websocket"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			// Join and create pause server-side when latency simulation is on.
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Home(ctx context.Context) (game.Home, error) {
	var out game.Home
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/home", nil, &out)
	return out, err
}

func (c *Client) ListAgents(ctx context.Context) ([]game.Agent, error) {
	var out struct {
		Agents []game.Agent `json:"agents"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/agents", nil, &out)
	return out.Agents, err
}

func (c *Client) GetAgent(ctx context.Context, id string) (game.Agent, error) {
	var out game.Agent
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/agents/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) CreateAgent(ctx context.Context, in game.CreateAgentInput) (game.Agent, error) {
	var out game.Agent
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/agents", in, &out)
	return out, err
}

func (c *Client) UpdatePrompt(ctx context.Context, id, prompt string) (game.Agent, error) {
	var out game.Agent
	err := c.jsonRequest(ctx, http.MethodPut, "/v1/agents/"+url.PathEscape(id)+"/prompt", map[string]any{
		"prompt": prompt,
	}, &out)
	return out, err
}

func (c *Client) Templates(ctx context.Context) ([]game.AgentTemplate, error) {
	var out struct {
		Templates []game.AgentTemplate `json:"templates"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/agent-templates", nil, &out)
	return out.Templates, err
}

func (c *Client) ListGames(ctx context.Context, status string) ([]game.Game, error) {
	path := "/v1/games"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var out struct {
		Games []game.Game `json:"games"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, path, nil, &out)
	return out.Games, err
}

func (c *Client) JoinGame(ctx context.Context, gameID, agentID string) (game.JoinResult, error) {
	var out game.JoinResult
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/games/"+url.PathEscape(gameID)+"/join", map[string]any{
		"agent_id": agentID,
	}, &out)
	return out, err
}

func (c *Client) Lobby(ctx context.Context, gameID string) (sim.LobbyState, error) {
	var out sim.LobbyState
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/games/"+url.PathEscape(gameID)+"/lobby", nil, &out)
	return out, err
}

func (c *Client) StartSession(ctx context.Context, gameID, agentID string, seed int64) (game.SessionInfo, error) {
	var out game.SessionInfo
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/games/"+url.PathEscape(gameID)+"/sessions", map[string]any{
		"agent_id": agentID,
		"seed":     seed,
	}, &out)
	return out, err
}

func (c *Client) Session(ctx context.Context, id string) (game.SessionInfo, error) {
	var out game.SessionInfo
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) StopSession(ctx context.Context, id string) (game.SessionInfo, error) {
	var out game.SessionInfo
	err := c.jsonRequest(ctx, http.MethodDelete, "/v1/sessions/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) Feed(ctx context.Context, id string, opts sim.FeedOptions) ([]sim.Message, error) {
	q := url.Values{}
	q.Set("public", strconv.FormatBool(opts.Public))
	q.Set("thinking", strconv.FormatBool(opts.ShowThinking))
	var out struct {
		Messages []sim.Message `json:"messages"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(id)+"/feed?"+q.Encode(), nil, &out)
	return out.Messages, err
}

func (c *Client) Rankings(ctx context.Context, id string) ([]sim.AgentRanking, error) {
	var out struct {
		Rankings []sim.AgentRanking `json:"rankings"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(id)+"/rankings", nil, &out)
	return out.Rankings, err
}

// Trade places a manual trade. A non-empty in.IdempotencyKey is sent as the
// Idempotency-Key header, so retrying it never trades twice.
func (c *Client) Trade(ctx context.Context, id string, in game.TradeInput) (sim.Activity, error) {
	var out sim.Activity
	err := c.request(ctx, http.MethodPost, TradePath(id), in.IdempotencyKey, in, &out)
	return out, err
}

func TradePath(sessionID string) string {
	return "/v1/sessions/" + url.PathEscape(sessionID) + "/trades"
}

// Do replays a raw write, used for queued offline commands.
func (c *Client) Do(ctx context.Context, method, path string, body json.RawMessage, idempotencyKey string) error {
	var in any
	if len(body) > 0 {
		in = body
	}
	return c.request(ctx, method, path, idempotencyKey, in, nil)
}

func (c *Client) Leaderboard(ctx context.Context, category string) ([]game.LeaderboardEntry, error) {
	path := "/v1/leaderboard"
	if category != "" {
		path += "?category=" + url.QueryEscape(category)
	}
	var out struct {
		Entries []game.LeaderboardEntry `json:"entries"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, path, nil, &out)
	return out.Entries, err
}

func (c *Client) Assets(ctx context.Context) (game.Assets, error) {
	var out game.Assets
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/assets", nil, &out)
	return out, err
}

func (c *Client) ClaimReward(ctx context.Context, id string) (game.Reward, error) {
	var out game.Reward
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/rewards/"+url.PathEscape(id)+"/claim", nil, &out)
	return out, err
}

func (c *Client) ClaimAll(ctx context.Context) (int, error) {
	var out struct {
		Claimed int `json:"claimed"`
	}
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/rewards/claim-all", nil, &out)
	return out.Claimed, err
}

func (c *Client) Market(ctx context.Context) ([]game.MarketData, error) {
	var out struct {
		Market []game.MarketData `json:"market"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/market", nil, &out)
	return out.Market, err
}

func (c *Client) Conversation(ctx context.Context, agentID string, seed int64) (game.ConversationReplay, error) {
	path := "/v1/network/agents/" + url.PathEscape(agentID) + "/conversation"
	if seed != 0 {
		path += "?seed=" + strconv.FormatInt(seed, 10)
	}
	var out game.ConversationReplay
	err := c.jsonRequest(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// Stream is a live session feed read from the API's websocket.
type Stream struct {
	conn *websocket.Conn
}

// OpenStream dials the session stream. The first message is a snapshot.
func (c *Client) OpenStream(ctx context.Context, sessionID string) (*Stream, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/sessions/" + url.PathEscape(sessionID) + "/stream"
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return nil, fmt.Errorf("api status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		return nil, err
	}
	return &Stream{conn: conn}, nil
}

// Next blocks for the next message. It returns io.EOF once the server ends
// the stream normally.
func (s *Stream) Next() (game.StreamMessage, error) {
	var msg game.StreamMessage
	if err := s.conn.ReadJSON(&msg); err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return msg, io.EOF
		}
		return msg, err
	}
	return msg, nil
}

func (s *Stream) Close() error {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
		time.Now().Add(time.Second))
	return s.conn.Close()
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any) error {
	return c.request(ctx, method, path, "", in, out)
}

func (c *Client) request(ctx context.Context, method, path, idempotencyKey string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// APIError is a non-2xx reply from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		msg = payload.Error
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}

func (c *Client) Activities(ctx context.Context, id string, limit int) ([]sim.Activity, error) {
	var out struct {
		Activities []sim.Activity `json:"activities"`
	}
	path := "/v1/sessions/" + url.PathEscape(id) + "/activities?limit=" + strconv.Itoa(limit)
	err := c.jsonRequest(ctx, http.MethodGet, path, nil, &out)
	return out.Activities, err
}
