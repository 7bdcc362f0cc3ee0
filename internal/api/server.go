package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"stockquest/internal/config"
	"stockquest/internal/game"
	"stockquest/internal/results"
	"stockquest/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	errLeaderboardDisabled = errors.New("leaderboard is disabled: no database configured")
	errLimitPrice          = errors.New("limit_price is not accepted: orders fill at the market price")
)

type Leaderboard interface {
	Leaderboard(ctx context.Context, limit int) ([]results.Result, error)
}

type Deps struct {
	Games *session.Registry
	// Leaderboard is nil when no database is configured.
	Leaderboard Leaderboard
}

type Server struct {
	cfg   config.APIConfig
	log   zerolog.Logger
	games *session.Registry
	board Leaderboard
	mux   *chi.Mux
}

func New(cfg config.APIConfig, logger zerolog.Logger, deps Deps) *Server {
	s := &Server{
		cfg:   cfg,
		log:   logger,
		games: deps.Games,
		board: deps.Leaderboard,
		mux:   chi.NewRouter(),
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
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "active_games": s.games.Len()})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/catalog", s.handleCatalog)
		r.Post("/games", s.handleCreateGame)
		r.Get("/games/{id}", s.handleGameState)
		r.Post("/games/{id}/rounds", s.handleAdvanceRound)
		r.Get("/games/{id}/analytics", s.handleAnalytics)
		r.Get("/leaderboard", s.handleLeaderboard)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func (s *Server) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, newCatalogView(s.games.Dataset()))
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Rounds   int       `json:"rounds"`
		Seed     game.Seed `json:"seed"`
		PlayerID string    `json:"player_id"`
	}
	if err := decodeJSON(r, &in); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	g, err := s.games.Create(r.Context(), session.Options{
		Rounds:   in.Rounds,
		Seed:     in.Seed,
		PlayerID: strings.TrimSpace(in.PlayerID),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, newGameView(g))
}

func (s *Server) handleGameState(w http.ResponseWriter, r *http.Request) {
	g, err := s.lookupGame(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newGameView(g))
}

func (s *Server) handleAdvanceRound(w http.ResponseWriter, r *http.Request) {
	id, err := gameID(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var in struct {
		Intents []intentRequest `json:"intents"`
	}
	if err := decodeJSON(r, &in); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	intents := make([]game.TradeIntent, 0, len(in.Intents))
	for _, req := range in.Intents {
		if req.LimitPrice != nil {
			writeError(w, http.StatusBadRequest, errLimitPrice.Error())
			return
		}
		intents = append(intents, req.intent())
	}

	res, g, err := s.games.Advance(r.Context(), id, intents, idempotencyKey(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newAdvanceView(res, g))
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	g, err := s.lookupGame(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newAnalyticsView(g))
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.board == nil {
		writeDomainError(w, errLeaderboardDisabled)
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}
	rows, err := s.board.Leaderboard(r.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("leaderboard query failed")
		writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (s *Server) lookupGame(r *http.Request) (session.Game, error) {
	id, err := gameID(r)
	if err != nil {
		return session.Game{}, err
	}
	return s.games.Get(id)
}

// gameID treats a malformed id like an unknown one.
func gameID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, session.ErrNotFound
	}
	return id, nil
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrRoundsTooLarge),
		errors.Is(err, game.ErrInvalidRounds),
		errors.Is(err, game.ErrNotEnoughNews):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errLeaderboardDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
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

// writeJSON answers 500 when payload cannot be encoded.
func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Int("status", status).Msg("encode response failed")
		writeError(w, http.StatusInternalServerError, "could not encode response")
		return
	}
	writeBody(w, status, raw)
}

func writeError(w http.ResponseWriter, status int, message string) {
	raw, _ := json.Marshal(map[string]string{"error": strings.TrimSpace(message)})
	writeBody(w, status, raw)
}

func writeBody(w http.ResponseWriter, status int, raw []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(raw, '\n'))
}

func idempotencyKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("Idempotency-Key"))
}
