package results

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"stockquest/internal/game"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

var (
	ErrNotCompleted = errors.New("game is not completed")
	ErrBadValue     = errors.New("game value is not a finite number")
)

// DB is the part of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Result struct {
	GameID      uuid.UUID       `json:"game_id"`
	PlayerID    string          `json:"player_id,omitempty"`
	Seed        string          `json:"seed"`
	Rounds      int             `json:"rounds"`
	StartValue  decimal.Decimal `json:"start_value"`
	FinalValue  decimal.Decimal `json:"final_value"`
	ReturnPct   decimal.Decimal `json:"return_pct"`
	GoalReached bool            `json:"goal_reached"`
	FinishedAt  time.Time       `json:"finished_at"`
}

// FromState summarizes a finished game into a leaderboard row.
func FromState(id uuid.UUID, playerID string, state *game.GameState, finishedAt time.Time) (Result, error) {
	if !state.Completed() {
		return Result{}, fmt.Errorf("%w: %s", ErrNotCompleted, id)
	}
	sum := game.Summarize(state)
	for _, v := range []float64{sum.StartValue, sum.EndValue, sum.ReturnPct} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Result{}, fmt.Errorf("%w: %s", ErrBadValue, id)
		}
	}
	return Result{
		GameID:      id,
		PlayerID:    playerID,
		Seed:        state.Seed.String(),
		Rounds:      len(state.Rounds),
		StartValue:  decimal.NewFromFloat(sum.StartValue).Round(2),
		FinalValue:  decimal.NewFromFloat(sum.EndValue).Round(2),
		ReturnPct:   decimal.NewFromFloat(sum.ReturnPct).Round(6),
		GoalReached: sum.GoalReached,
		FinishedAt:  finishedAt.UTC(),
	}, nil
}

type Store struct {
	db DB
}

func NewStore(db DB) *Store {
	return &Store{db: db}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS game_results (
    game_id      UUID PRIMARY KEY,
    player_id    TEXT NOT NULL DEFAULT '',
    seed         TEXT NOT NULL,
    rounds       INTEGER NOT NULL,
    start_value  NUMERIC(20, 2) NOT NULL,
    final_value  NUMERIC(20, 2) NOT NULL,
    return_pct   NUMERIC(14, 6) NOT NULL,
    goal_reached BOOLEAN NOT NULL,
    finished_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS game_results_return_idx ON game_results (return_pct DESC, finished_at ASC);
`

func (s *Store) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure results schema: %w", err)
	}
	return nil
}

// Record stores a result once per game. It reports false when the game was
// already recorded.
func (s *Store) Record(ctx context.Context, r Result) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 4*time.Second)
	defer cancel()
	const insertSQL = `
        INSERT INTO game_results (
            game_id, player_id, seed, rounds,
            start_value, final_value, return_pct,
            goal_reached, finished_at
        )
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (game_id) DO NOTHING
    `
	tag, err := s.db.Exec(ctx, insertSQL,
		r.GameID,
		r.PlayerID,
		r.Seed,
		r.Rounds,
		r.StartValue,
		r.FinalValue,
		r.ReturnPct,
		r.GoalReached,
		r.FinishedAt,
	)
	if err != nil {
		return false, fmt.Errorf("record result %s: %w", r.GameID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) Leaderboard(ctx context.Context, limit int) ([]Result, error) {
	limit = ClampLimit(limit)
	ctx, cancel := context.WithTimeout(ctx, 4*time.Second)
	defer cancel()
	rows, err := s.db.Query(ctx, `
        SELECT game_id, player_id, seed, rounds,
               start_value, final_value, return_pct,
               goal_reached, finished_at
        FROM game_results
        ORDER BY return_pct DESC, finished_at ASC
        LIMIT $1
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	out := make([]Result, 0, limit)
	for rows.Next() {
		var r Result
		if err := rows.Scan(
			&r.GameID,
			&r.PlayerID,
			&r.Seed,
			&r.Rounds,
			&r.StartValue,
			&r.FinalValue,
			&r.ReturnPct,
			&r.GoalReached,
			&r.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}
	return out, nil
}

func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}
