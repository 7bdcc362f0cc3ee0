package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"stockquest/internal/config"
	"stockquest/internal/game"
	"stockquest/internal/results"
	"stockquest/internal/session"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBoard struct {
	limit int
	rows  []results.Result
	err   error
}

func (f *fakeBoard) Leaderboard(_ context.Context, limit int) ([]results.Result, error) {
	f.limit = limit
	return f.rows, f.err
}

func newTestServer(t *testing.T, board Leaderboard) (*Server, *session.Registry) {
	t.Helper()
	d, err := game.LoadDataset()
	require.NoError(t, err)
	reg := session.NewRegistry(d, session.Config{DefaultRounds: 3, MaxRounds: 10}, zerolog.Nop())
	cfg := config.APIConfig{CORSOrigins: []string{"*"}}
	return New(cfg, zerolog.Nop(), Deps{Games: reg, Leaderboard: board}), reg
}

func do(t *testing.T, s *Server, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func createGame(t *testing.T, s *Server, body string) gameView {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/v1/games", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[gameView](t, rec)
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok": true, "active_games": 0}`, rec.Body.String())
}

func TestCatalogHidesNews(t *testing.T) {
	s, reg := newTestServer(t, nil)
	rec := do(t, s, http.MethodGet, "/v1/catalog", "")
	require.Equal(t, http.StatusOK, rec.Code)

	view := decode[catalogView](t, rec)
	assert.Equal(t, "KRW", view.Currency)
	assert.Len(t, view.Stocks, len(reg.Dataset().Instruments))
	assert.NotContains(t, rec.Body.String(), "expectedChange")
	assert.NotContains(t, rec.Body.String(), "headline")
}

func TestCreateGame(t *testing.T) {
	s, _ := newTestServer(t, nil)

	g := createGame(t, s, `{"rounds": 4, "seed": "abc", "player_id": "zep-1"}`)
	assert.Equal(t, 4, g.RoundsTotal)
	assert.Equal(t, 0, g.CurrentRound)
	assert.Equal(t, game.StringSeed("abc"), g.Seed)
	assert.Equal(t, "zep-1", g.PlayerID)
	assert.Len(t, g.Snapshots, 1)
	assert.NotEmpty(t, g.News)

	defaults := createGame(t, s, "")
	assert.Equal(t, 3, defaults.RoundsTotal)
}

func TestCreateGameRejects(t *testing.T) {
	s, _ := newTestServer(t, nil)
	tests := []struct {
		name string
		body string
	}{
		{"too many rounds", `{"rounds": 11}`},
		{"negative rounds", `{"rounds": -1}`},
		{"unknown field", `{"round": 3}`},
		{"bad seed", `{"seed": 1.5}`},
		{"bad json", `{`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/v1/games", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestGameStateHidesExpectedChange(t *testing.T) {
	s, _ := newTestServer(t, nil)
	g := createGame(t, s, `{"seed": 7}`)

	rec := do(t, s, http.MethodGet, "/v1/games/"+g.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"expectedChange"`)
	assert.NotContains(t, rec.Body.String(), `"expected_change"`)
	assert.NotContains(t, rec.Body.String(), "minPct")
}

func TestGameNotFound(t *testing.T) {
	s, _ := newTestServer(t, nil)
	for _, path := range []string{
		"/v1/games/" + uuid.NewString(),
		"/v1/games/not-a-uuid",
		"/v1/games/" + uuid.NewString() + "/analytics",
	} {
		rec := do(t, s, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
	rec := do(t, s, http.MethodPost, "/v1/games/"+uuid.NewString()+"/rounds", `{"intents": []}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdvanceRound(t *testing.T) {
	s, reg := newTestServer(t, nil)
	g := createGame(t, s, `{"seed": "abc"}`)
	ticker := reg.Dataset().Instruments[0].Ticker

	body := `{"intents": [{"ticker": "` + ticker + `", "side": "buy", "quantity": 2}]}`
	rec := do(t, s, http.MethodPost, "/v1/games/"+g.ID+"/rounds", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	view := decode[advanceView](t, rec)
	assert.Empty(t, view.Errors)
	require.Len(t, view.Executions, 1)
	assert.Equal(t, int64(2), view.Executions[0].Quantity)
	require.NotNil(t, view.Resolution)
	assert.Equal(t, 0, view.Resolution.RoundIndex)
	assert.Equal(t, 1, view.Game.CurrentRound)
	assert.False(t, view.RoundCompleted)
	assert.Contains(t, rec.Body.String(), `"errors":[]`)
}

func TestAdvanceRoundValidationIsData(t *testing.T) {
	s, reg := newTestServer(t, nil)
	g := createGame(t, s, `{}`)
	ticker := reg.Dataset().Instruments[0].Ticker

	tests := []struct {
		name   string
		intent string
		want   game.ValidationCode
	}{
		{"fractional quantity", `{"ticker": "` + ticker + `", "side": "buy", "quantity": 1.5}`, game.CodeInvalidQuantity},
		{"missing quantity", `{"ticker": "` + ticker + `", "side": "buy"}`, game.CodeInvalidQuantity},
		{"unknown stock", `{"ticker": "NOPE", "side": "buy", "quantity": 1}`, game.CodeUnknownStock},
		{"oversell", `{"ticker": "` + ticker + `", "side": "sell", "quantity": 1}`, game.CodeInsufficientShares},
		{"bad side", `{"ticker": "` + ticker + `", "side": "short", "quantity": 1}`, game.CodeInvalidSide},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/v1/games/"+g.ID+"/rounds", `{"intents": [`+tc.intent+`]}`)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			view := decode[advanceView](t, rec)
			require.Len(t, view.Errors, 1)
			assert.Equal(t, tc.want, view.Errors[0].Code)
			assert.Empty(t, view.Executions)
			assert.Nil(t, view.Resolution)
			assert.Equal(t, 0, view.Game.CurrentRound)
		})
	}
}

func TestAdvanceRoundRefusesLimitPrice(t *testing.T) {
	s, reg := newTestServer(t, nil)
	g := createGame(t, s, `{}`)
	ticker := reg.Dataset().Instruments[0].Ticker
	path := "/v1/games/" + g.ID + "/rounds"

	bought := do(t, s, http.MethodPost, path, `{"intents": [{"ticker": "`+ticker+`", "side": "buy", "quantity": 1}]}`)
	require.Equal(t, http.StatusOK, bought.Code, bought.Body.String())

	rec := do(t, s, http.MethodPost, path,
		`{"intents": [{"ticker": "`+ticker+`", "side": "sell", "quantity": 1, "limit_price": 1e9}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "limit_price")

	after, err := reg.Get(uuid.MustParse(g.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, after.State.CurrentRound)
	assert.Equal(t, int64(1), after.State.Holdings[ticker].Quantity)
	assert.Less(t, after.State.Cash, after.State.Metadata.InitialCapital)
}

func TestWriteJSONEncodeFailure(t *testing.T) {
	var logs bytes.Buffer
	d, err := game.LoadDataset()
	require.NoError(t, err)
	reg := session.NewRegistry(d, session.Config{}, zerolog.Nop())
	s := New(config.APIConfig{}, zerolog.New(&logs), Deps{Games: reg})

	rec := httptest.NewRecorder()
	s.writeJSON(rec, http.StatusOK, map[string]float64{"cash": math.NaN()})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error": "could not encode response"}`, rec.Body.String())
	assert.Contains(t, logs.String(), "encode response failed")
}

func TestAdvanceRoundWholeFloatQuantity(t *testing.T) {
	s, reg := newTestServer(t, nil)
	g := createGame(t, s, `{}`)
	ticker := reg.Dataset().Instruments[0].Ticker

	rec := do(t, s, http.MethodPost, "/v1/games/"+g.ID+"/rounds",
		`{"intents": [{"ticker": "`+ticker+`", "side": "BUY", "quantity": 3.0}]}`)
	view := decode[advanceView](t, rec)
	require.Empty(t, view.Errors)
	assert.Equal(t, int64(3), view.Executions[0].Quantity)
}

func TestAdvanceRoundIdempotencyKey(t *testing.T) {
	s, _ := newTestServer(t, nil)
	g := createGame(t, s, `{}`)
	path := "/v1/games/" + g.ID + "/rounds"

	first := decode[advanceView](t, do(t, s, http.MethodPost, path, `{"intents": []}`, "Idempotency-Key", "k1"))
	second := decode[advanceView](t, do(t, s, http.MethodPost, path, `{"intents": []}`, "Idempotency-Key", "k1"))
	assert.Equal(t, 1, first.Game.CurrentRound)
	assert.Equal(t, 1, second.Game.CurrentRound)

	third := decode[advanceView](t, do(t, s, http.MethodPost, path, `{"intents": []}`))
	assert.Equal(t, 2, third.Game.CurrentRound)
}

func TestAdvanceCompletedGame(t *testing.T) {
	s, _ := newTestServer(t, nil)
	g := createGame(t, s, `{"rounds": 1}`)
	path := "/v1/games/" + g.ID + "/rounds"

	done := decode[advanceView](t, do(t, s, http.MethodPost, path, ""))
	assert.True(t, done.RoundCompleted)
	assert.True(t, done.Game.Completed)
	assert.Empty(t, done.Game.News)

	again := decode[advanceView](t, do(t, s, http.MethodPost, path, `{"intents": []}`))
	require.Len(t, again.Errors, 1)
	assert.Equal(t, game.CodeRoundCompleted, again.Errors[0].Code)
}

func TestAnalytics(t *testing.T) {
	s, _ := newTestServer(t, nil)
	g := createGame(t, s, `{"rounds": 2, "seed": 3}`)
	do(t, s, http.MethodPost, "/v1/games/"+g.ID+"/rounds", "")

	rec := do(t, s, http.MethodGet, "/v1/games/"+g.ID+"/analytics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[analyticsView](t, rec)
	assert.Equal(t, 1, view.Summary.RoundsPlayed)
	assert.Equal(t, 2, view.Summary.RoundsTotal)
	assert.Len(t, view.Summary.ValueSeries, 2)
	assert.Empty(t, view.Holdings)
}

func TestLeaderboard(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s, http.MethodGet, "/v1/leaderboard", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	board := &fakeBoard{rows: []results.Result{{GameID: uuid.New(), Seed: "abc", Rounds: 10}}}
	s, _ = newTestServer(t, board)
	rec = do(t, s, http.MethodGet, "/v1/leaderboard?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, board.limit)
	assert.Contains(t, rec.Body.String(), `"seed":"abc"`)

	rec = do(t, s, http.MethodGet, "/v1/leaderboard?limit=many", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	board.err = errors.New("db down")
	rec = do(t, s, http.MethodGet, "/v1/leaderboard", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWholeQuantity(t *testing.T) {
	tests := []struct {
		in   json.Number
		want int64
	}{
		{"5", 5},
		{"-3", -3},
		{"2.0", 2},
		{"1e2", 100},
		{"1.5", 0},
		{"", 0},
		{"abc", 0},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, wholeQuantity(tc.in), "quantity %q", tc.in)
	}
}
