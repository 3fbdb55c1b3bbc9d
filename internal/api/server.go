package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"agentarena/internal/config"
	"agentarena/internal/game"
	"agentarena/internal/metrics"
	"agentarena/internal/sim"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
)

type Server struct {
	cfg      config.APIConfig
	log      *slog.Logger
	game     *game.Service
	mux      *chi.Mux
	upgrader websocket.Upgrader
}

func New(cfg config.APIConfig, logger *slog.Logger, gameSvc *game.Service) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:  cfg,
		log:  logger,
		game: gameSvc,
		mux:  chi.NewRouter(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4 * 1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(countRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		// The stream outlives any request timeout.
		r.Get("/sessions/{id}/stream", s.handleStream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Get("/home", s.handleHome)

			r.Get("/agents", s.handleAgentsList)
			r.Post("/agents", s.handleCreateAgent)
			r.Get("/agents/{id}", s.handleAgent)
			r.Put("/agents/{id}/prompt", s.handleUpdatePrompt)
			r.Get("/agent-templates", s.handleTemplates)

			r.Get("/games", s.handleGamesList)
			r.Get("/games/{id}", s.handleGame)
			r.Post("/games/{id}/join", s.handleJoinGame)
			r.Get("/games/{id}/lobby", s.handleLobby)
			r.Post("/games/{id}/sessions", s.handleStartSession)

			r.Get("/sessions", s.handleSessionsList)
			r.Get("/sessions/{id}", s.handleSession)
			r.Delete("/sessions/{id}", s.handleStopSession)
			r.Get("/sessions/{id}/feed", s.handleFeed)
			r.Get("/sessions/{id}/activities", s.handleActivities)
			r.Get("/sessions/{id}/rankings", s.handleRankings)
			r.Post("/sessions/{id}/trades", s.handleTrade)
			r.Get("/sessions/{id}/journal", s.handleJournal)

			r.Get("/leaderboard", s.handleLeaderboard)
			r.Get("/assets", s.handleAssets)
			r.Post("/rewards/claim-all", s.handleClaimAll)
			r.Post("/rewards/{id}/claim", s.handleClaimReward)
			r.Get("/market", s.handleMarket)

			r.Get("/network/agents", s.handleNetwork)
			r.Get("/network/agents/{id}/conversation", s.handleConversation)
		})
	})
}

// countRequests records every request under its route pattern so that IDs
// in the path do not explode label cardinality.
func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.ObserveRequest(r.Method, route, strconv.Itoa(status))
	})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.cfg.AllowedOrigins {
		if strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.game.Home(r.Context()))
}

func (s *Server) handleAgentsList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"agents": s.game.ListAgents(r.Context())})
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var in game.CreateAgentInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	agent, err := s.game.CreateAgent(r.Context(), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, agent)
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.game.GetAgent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) handleUpdatePrompt(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Prompt string `json:"prompt"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	agent, err := s.game.UpdateAgentPrompt(r.Context(), chi.URLParam(r, "id"), in.Prompt)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) handleTemplates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"templates": s.game.Templates()})
}

func (s *Server) handleGamesList(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	writeJSON(w, http.StatusOK, map[string]any{
		"games":          s.game.ListGames(r.Context(), status),
		"active_game_id": s.game.ActiveGameID(),
	})
}

func (s *Server) handleGame(w http.ResponseWriter, r *http.Request) {
	g, err := s.game.GetGame(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleJoinGame(w http.ResponseWriter, r *http.Request) {
	var in struct {
		AgentID string `json:"agent_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.game.JoinGame(r.Context(), chi.URLParam(r, "id"), in.AgentID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleLobby(w http.ResponseWriter, r *http.Request) {
	st, err := s.game.Lobby(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var in struct {
		AgentID string `json:"agent_id"`
		Seed    int64  `json:"seed"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	info, err := s.game.StartSession(r.Context(), chi.URLParam(r, "id"), in.AgentID, in.Seed)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) handleSessionsList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.game.Sessions(r.Context())})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	info, err := s.game.Session(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	info, err := s.game.StopSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := sim.FeedOptions{
		Public:       queryBool(q.Get("public"), true),
		ShowThinking: queryBool(q.Get("thinking"), false),
	}
	msgs, err := s.game.Feed(r.Context(), chi.URLParam(r, "id"), opts)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) handleActivities(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r.URL.Query().Get("limit"), 50)
	acts, err := s.game.Activities(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"activities": acts})
}

func (s *Server) handleRankings(w http.ResponseWriter, r *http.Request) {
	rows, err := s.game.Rankings(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rankings": rows})
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	var in game.TradeInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	in.IdempotencyKey = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	act, err := s.game.Trade(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, act)
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r.URL.Query().Get("limit"), 100)
	recs, err := s.game.Journal(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": recs})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	rows, err := s.game.Leaderboard(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": rows})
}

func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.game.Assets(r.Context()))
}

func (s *Server) handleClaimReward(w http.ResponseWriter, r *http.Request) {
	reward, err := s.game.ClaimReward(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reward)
}

func (s *Server) handleClaimAll(w http.ResponseWriter, r *http.Request) {
	n, err := s.game.ClaimAllRewards(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"claimed": n})
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"market": s.game.Market(r.Context())})
}

func (s *Server) handleNetwork(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"agents": s.game.Network()})
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	seed, _ := strconv.ParseInt(r.URL.Query().Get("seed"), 10, 64)
	replay, err := s.game.Conversation(r.Context(), chi.URLParam(r, "id"), seed)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, replay)
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrAgentNotFound), errors.Is(err, game.ErrGameNotFound),
		errors.Is(err, game.ErrSessionNotFound), errors.Is(err, game.ErrRewardNotFound),
		errors.Is(err, game.ErrNoLobby):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrUnknownAgentType), errors.Is(err, game.ErrInvalidAgentName),
		errors.Is(err, game.ErrInvalidPrompt), errors.Is(err, game.ErrInvalidTrade),
		errors.Is(err, game.ErrUnknownCategory):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, game.ErrGameFull), errors.Is(err, game.ErrGameClosed),
		errors.Is(err, game.ErrGameNotActive), errors.Is(err, game.ErrRewardClaimed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrPromptCooldown):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func queryBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return b
}

func queryInt(v string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
