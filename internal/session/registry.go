package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"stockquest/internal/game"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrNotFound       = errors.New("game not found")
	ErrRoundsTooLarge = errors.New("rounds exceeds the server limit")
)

type Config struct {
	DefaultRounds int
	MaxRounds     int
	TTL           time.Duration
}

type Options struct {
	Rounds   int
	Seed     game.Seed
	PlayerID string
}

// Game is a point-in-time copy of a registered session. State is shared
// with the registry but is never mutated after it is stored.
type Game struct {
	ID        uuid.UUID
	PlayerID  string
	CreatedAt time.Time
	UpdatedAt time.Time
	State     *game.GameState
}

// CompleteFunc runs after the advance that finishes a game. It is called
// outside the session lock.
type CompleteFunc func(ctx context.Context, g Game)

// maxRoundReplies bounds the replies cached while a game sits on one round.
const maxRoundReplies = 64

type entry struct {
	mu        sync.Mutex
	id        uuid.UUID
	playerID  string
	createdAt time.Time
	updatedAt time.Time
	state     *game.GameState

	// replies holds results for the current round. lastReplies holds the
	// previous round's, so a retried submission that advanced the game is
	// still answered from the cache.
	replies     map[string]game.AdvanceResult
	lastReplies map[string]game.AdvanceResult
}

func (e *entry) cachedReply(key string) (game.AdvanceResult, bool) {
	if res, ok := e.replies[key]; ok {
		return res, true
	}
	res, ok := e.lastReplies[key]
	return res, ok
}

func (e *entry) remember(key string, res game.AdvanceResult) {
	if len(res.Errors) == 0 {
		e.lastReplies = e.replies
		e.replies = make(map[string]game.AdvanceResult)
		if key != "" {
			e.lastReplies[key] = res
		}
		return
	}
	if key != "" && len(e.replies) < maxRoundReplies {
		e.replies[key] = res
	}
}

func (e *entry) view() Game {
	return Game{
		ID:        e.id,
		PlayerID:  e.playerID,
		CreatedAt: e.createdAt,
		UpdatedAt: e.updatedAt,
		State:     e.state,
	}
}

type Registry struct {
	cfg        Config
	dataset    game.Dataset
	log        zerolog.Logger
	onComplete CompleteFunc
	now        func() time.Time

	mu    sync.RWMutex
	games map[uuid.UUID]*entry
}

// NewRegistry caps MaxRounds, and DefaultRounds with it, at the longest game
// the dataset can schedule.
func NewRegistry(dataset game.Dataset, cfg Config, logger zerolog.Logger) *Registry {
	if cfg.DefaultRounds <= 0 {
		cfg.DefaultRounds = game.DefaultRounds
	}
	if cfg.MaxRounds < cfg.DefaultRounds {
		cfg.MaxRounds = cfg.DefaultRounds
	}
	if limit := dataset.MaxRounds(); limit > 0 && cfg.MaxRounds > limit {
		logger.Warn().
			Int("max_rounds", cfg.MaxRounds).
			Int("catalog_limit", limit).
			Msg("max rounds capped by catalog news")
		cfg.MaxRounds = limit
		cfg.DefaultRounds = min(cfg.DefaultRounds, limit)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 2 * time.Hour
	}
	return &Registry{
		cfg:     cfg,
		dataset: dataset,
		log:     logger,
		now:     time.Now,
		games:   make(map[uuid.UUID]*entry),
	}
}

// OnComplete sets the hook fired when a game finishes. Call before serving.
func (r *Registry) OnComplete(fn CompleteFunc) {
	r.onComplete = fn
}

func (r *Registry) Dataset() game.Dataset {
	return r.dataset
}

// Create starts a new game. A zero seed is replaced by a random one so every
// server-side game can be replayed later.
func (r *Registry) Create(_ context.Context, opts Options) (Game, error) {
	rounds := opts.Rounds
	if rounds == 0 {
		rounds = r.cfg.DefaultRounds
	}
	if rounds > r.cfg.MaxRounds {
		return Game{}, fmt.Errorf("%w: %d > %d", ErrRoundsTooLarge, rounds, r.cfg.MaxRounds)
	}
	seed := opts.Seed
	if seed.IsZero() {
		seed = game.StringSeed(uuid.NewString())
	}

	state, err := game.NewGameState(r.dataset, game.StateOptions{Rounds: rounds, Seed: seed})
	if err != nil {
		return Game{}, err
	}

	now := r.now()
	e := &entry{
		id:        uuid.New(),
		playerID:  opts.PlayerID,
		createdAt: now,
		updatedAt: now,
		state:     state,
		replies:   make(map[string]game.AdvanceResult),
	}
	r.mu.Lock()
	r.games[e.id] = e
	r.mu.Unlock()

	r.log.Info().
		Str("game_id", e.id.String()).
		Int("rounds", rounds).
		Str("seed", seed.String()).
		Msg("game created")
	return e.view(), nil
}

func (r *Registry) Get(id uuid.UUID) (Game, error) {
	e, err := r.lookup(id)
	if err != nil {
		return Game{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view(), nil
}

// Advance plays the current round of a game. When idemKey is not empty and
// was seen on this round or the one before, the stored result is returned and
// the game does not move. Rejected batches leave the game where it was.
func (r *Registry) Advance(ctx context.Context, id uuid.UUID, intents []game.TradeIntent, idemKey string) (game.AdvanceResult, Game, error) {
	e, err := r.lookup(id)
	if err != nil {
		return game.AdvanceResult{}, Game{}, err
	}

	e.mu.Lock()
	if idemKey != "" {
		if cached, ok := e.cachedReply(idemKey); ok {
			g := e.view()
			e.mu.Unlock()
			r.log.Debug().Str("game_id", id.String()).Str("idempotency_key", idemKey).Msg("replayed cached round")
			return cached, g, nil
		}
	}

	wasCompleted := e.state.Completed()
	res := game.AdvanceRound(e.state, intents, game.AdvanceOptions{})
	if len(res.Errors) == 0 {
		e.state = res.NextState
	}
	e.updatedAt = r.now()
	e.remember(idemKey, res)
	g := e.view()
	e.mu.Unlock()

	if len(res.Errors) > 0 {
		r.log.Debug().
			Str("game_id", id.String()).
			Str("code", string(res.Errors[0].Code)).
			Msg("round rejected")
		return res, g, nil
	}

	r.log.Info().
		Str("game_id", id.String()).
		Int("round", g.State.CurrentRound).
		Int("executions", len(res.Executions)).
		Float64("total_value", g.State.LatestSnapshot().TotalValue).
		Msg("round advanced")

	if !wasCompleted && res.RoundCompleted && r.onComplete != nil {
		r.onComplete(ctx, g)
	}
	return res, g, nil
}

// Sweep drops games idle for longer than the TTL and reports how many went.
func (r *Registry) Sweep(now time.Time) int {
	cutoff := now.Add(-r.cfg.TTL)
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, e := range r.games {
		e.mu.Lock()
		idle := e.updatedAt.Before(cutoff)
		e.mu.Unlock()
		if idle {
			delete(r.games, id)
			removed++
		}
	}
	return removed
}

func (r *Registry) MaxRounds() int {
	return r.cfg.MaxRounds
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.games)
}

// RunJanitor sweeps on every tick until ctx is done.
func (r *Registry) RunJanitor(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	r.log.Info().Dur("every", every).Dur("ttl", r.cfg.TTL).Msg("session janitor started")
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("session janitor shutdown")
			return
		case <-ticker.C:
			if n := r.Sweep(r.now()); n > 0 {
				r.log.Info().Int("removed", n).Int("active", r.Len()).Msg("expired games swept")
			}
		}
	}
}

func (r *Registry) lookup(id uuid.UUID) (*entry, error) {
	r.mu.RLock()
	e, ok := r.games[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}
