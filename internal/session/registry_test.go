package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"stockquest/internal/game"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, cfg Config) *Registry {
	t.Helper()
	d, err := game.LoadDataset()
	require.NoError(t, err)
	return NewRegistry(d, cfg, zerolog.Nop())
}

func firstTicker(r *Registry) string {
	return r.Dataset().Instruments[0].Ticker
}

func TestCreateAndGet(t *testing.T) {
	r := newTestRegistry(t, Config{DefaultRounds: 5, MaxRounds: 8})

	g, err := r.Create(context.Background(), Options{PlayerID: "zep-1"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, g.ID)
	assert.Equal(t, "zep-1", g.PlayerID)
	assert.Len(t, g.State.Rounds, 5)
	assert.False(t, g.State.Seed.IsZero(), "unseeded games get a generated seed")

	got, err := r.Get(g.ID)
	require.NoError(t, err)
	assert.Same(t, g.State, got.State)

	_, err = r.Get(uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateRejectsRounds(t *testing.T) {
	r := newTestRegistry(t, Config{DefaultRounds: 5, MaxRounds: 8})

	_, err := r.Create(context.Background(), Options{Rounds: 9})
	assert.ErrorIs(t, err, ErrRoundsTooLarge)
	_, err = r.Create(context.Background(), Options{Rounds: -1})
	assert.ErrorIs(t, err, game.ErrInvalidRounds)
	assert.Equal(t, 0, r.Len())
}

func TestCreateSeededGamesMatch(t *testing.T) {
	r := newTestRegistry(t, Config{})
	a, err := r.Create(context.Background(), Options{Seed: game.StringSeed("abc")})
	require.NoError(t, err)
	b, err := r.Create(context.Background(), Options{Seed: game.StringSeed("abc")})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, a.State.Rounds, b.State.Rounds)
}

func TestAdvanceIdempotencyKey(t *testing.T) {
	r := newTestRegistry(t, Config{DefaultRounds: 3})
	ctx := context.Background()
	g, err := r.Create(ctx, Options{Seed: game.NumericSeed(1)})
	require.NoError(t, err)

	intents := []game.TradeIntent{{Ticker: firstTicker(r), Side: game.SideBuy, Quantity: 1}}
	first, after, err := r.Advance(ctx, g.ID, intents, "key-1")
	require.NoError(t, err)
	require.Empty(t, first.Errors)
	assert.Equal(t, 1, after.State.CurrentRound)

	again, after2, err := r.Advance(ctx, g.ID, intents, "key-1")
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, 1, after2.State.CurrentRound, "repeated key does not advance")

	_, after3, err := r.Advance(ctx, g.ID, nil, "key-2")
	require.NoError(t, err)
	assert.Equal(t, 2, after3.State.CurrentRound)
}

func TestAdvanceReplyCacheIsBounded(t *testing.T) {
	r := newTestRegistry(t, Config{DefaultRounds: 4})
	ctx := context.Background()
	g, err := r.Create(ctx, Options{Seed: game.NumericSeed(7)})
	require.NoError(t, err)
	e, err := r.lookup(g.ID)
	require.NoError(t, err)

	oversell := []game.TradeIntent{{Ticker: firstTicker(r), Side: game.SideSell, Quantity: 1}}
	for i := range maxRoundReplies * 2 {
		res, _, err := r.Advance(ctx, g.ID, oversell, fmt.Sprintf("rejected-%d", i))
		require.NoError(t, err)
		require.Len(t, res.Errors, 1)
	}
	assert.Len(t, e.replies, maxRoundReplies)

	_, _, err = r.Advance(ctx, g.ID, nil, "round-1")
	require.NoError(t, err)
	assert.Empty(t, e.replies)
	_, _, err = r.Advance(ctx, g.ID, nil, "round-2")
	require.NoError(t, err)
	assert.Len(t, e.lastReplies, 1, "older rounds are forgotten")

	_, after, err := r.Advance(ctx, g.ID, nil, "round-2")
	require.NoError(t, err)
	assert.Equal(t, 2, after.State.CurrentRound, "retry of the last advancing key is still cached")

	_, after, err = r.Advance(ctx, g.ID, nil, "round-1")
	require.NoError(t, err)
	assert.Equal(t, 3, after.State.CurrentRound, "keys from older rounds are treated as new")
}

func TestNewRegistryCapsRoundsAtCatalog(t *testing.T) {
	d, err := game.LoadDataset()
	require.NoError(t, err)
	limit := d.MaxRounds()

	r := NewRegistry(d, Config{DefaultRounds: limit + 5, MaxRounds: limit + 20}, zerolog.Nop())
	assert.Equal(t, limit, r.MaxRounds())

	g, err := r.Create(context.Background(), Options{})
	require.NoError(t, err)
	assert.Len(t, g.State.Rounds, limit)

	_, err = r.Create(context.Background(), Options{Rounds: limit + 1})
	assert.ErrorIs(t, err, ErrRoundsTooLarge)
}

func TestAdvanceRejectedBatchKeepsState(t *testing.T) {
	r := newTestRegistry(t, Config{DefaultRounds: 3})
	ctx := context.Background()
	g, err := r.Create(ctx, Options{})
	require.NoError(t, err)

	res, after, err := r.Advance(ctx, g.ID, []game.TradeIntent{{Ticker: firstTicker(r), Side: game.SideSell, Quantity: 1}}, "")
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, game.CodeInsufficientShares, res.Errors[0].Code)
	assert.Same(t, g.State, after.State)
}

func TestAdvanceFiresOnCompleteOnce(t *testing.T) {
	r := newTestRegistry(t, Config{DefaultRounds: 2})
	var completed []Game
	r.OnComplete(func(_ context.Context, g Game) {
		completed = append(completed, g)
	})
	ctx := context.Background()
	g, err := r.Create(ctx, Options{PlayerID: "p"})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, _, err := r.Advance(ctx, g.ID, nil, "")
		require.NoError(t, err)
	}
	res, _, err := r.Advance(ctx, g.ID, nil, "")
	require.NoError(t, err)
	assert.Equal(t, game.CodeRoundCompleted, res.Errors[0].Code)

	require.Len(t, completed, 1)
	assert.Equal(t, g.ID, completed[0].ID)
	assert.True(t, completed[0].State.Completed())
}

func TestAdvanceUnknownGame(t *testing.T) {
	r := newTestRegistry(t, Config{})
	_, _, err := r.Advance(context.Background(), uuid.New(), nil, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdvanceConcurrentSameKey(t *testing.T) {
	r := newTestRegistry(t, Config{DefaultRounds: 5})
	ctx := context.Background()
	g, err := r.Create(ctx, Options{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = r.Advance(ctx, g.ID, nil, "same")
		}()
	}
	wg.Wait()

	got, err := r.Get(g.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.State.CurrentRound)
}

func TestSweep(t *testing.T) {
	r := newTestRegistry(t, Config{TTL: time.Hour})
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	r.now = func() time.Time { return clock }

	old, err := r.Create(context.Background(), Options{})
	require.NoError(t, err)
	clock = base.Add(50 * time.Minute)
	fresh, err := r.Create(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 0, r.Sweep(base.Add(59*time.Minute)))
	assert.Equal(t, 1, r.Sweep(base.Add(61*time.Minute)))

	_, err = r.Get(old.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.Get(fresh.ID)
	assert.NoError(t, err)
}

func TestRunJanitorStopsWithContext(t *testing.T) {
	r := newTestRegistry(t, Config{TTL: time.Nanosecond})
	_, err := r.Create(context.Background(), Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.RunJanitor(ctx, time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return r.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
