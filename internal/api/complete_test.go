package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"stockquest/internal/game"
	"stockquest/internal/results"
	"stockquest/internal/rewards"
	"stockquest/internal/session"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	got []results.Result
	err error
}

func (f *fakeRecorder) Record(_ context.Context, r results.Result) (bool, error) {
	f.got = append(f.got, r)
	return f.err == nil, f.err
}

type fakePoster struct {
	got       []rewards.Reward
	requestID string
}

func (f *fakePoster) Post(_ context.Context, r rewards.Reward, requestID string) error {
	f.got = append(f.got, r)
	f.requestID = requestID
	return nil
}

func completedGame(t *testing.T, playerID string) session.Game {
	t.Helper()
	d, err := game.LoadDataset()
	require.NoError(t, err)
	s, err := game.NewGameState(d, game.StateOptions{Rounds: 1, Seed: game.NumericSeed(9)})
	require.NoError(t, err)
	s = game.AdvanceRound(s, nil, game.AdvanceOptions{}).NextState
	return session.Game{ID: uuid.New(), PlayerID: playerID, UpdatedAt: time.Now(), State: s}
}

func TestCompletionHookRecordsAndRewards(t *testing.T) {
	rec := &fakeRecorder{}
	post := &fakePoster{}
	g := completedGame(t, "zep-1")

	CompletionHook(zerolog.Nop(), rec, post, 4000)(context.Background(), g)

	require.Len(t, rec.got, 1)
	assert.Equal(t, g.ID, rec.got[0].GameID)
	require.Len(t, post.got, 1)
	assert.Equal(t, "zep-1", post.got[0].ZepUserID)
	assert.False(t, post.got[0].Success, "an untouched portfolio misses the goal")
	assert.Equal(t, int64(0), post.got[0].EarnedGold)
	assert.Equal(t, g.ID.String(), post.requestID)
}

func TestCompletionHookSkipsAnonymousPlayers(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("db down")}
	post := &fakePoster{}

	CompletionHook(zerolog.Nop(), rec, post, 4000)(context.Background(), completedGame(t, ""))

	assert.Len(t, rec.got, 1, "record failures do not stop the hook")
	assert.Empty(t, post.got)
}

func TestCompletionHookNilDeps(t *testing.T) {
	assert.NotPanics(t, func() {
		CompletionHook(zerolog.Nop(), nil, nil, 4000)(context.Background(), completedGame(t, "p"))
	})
}
