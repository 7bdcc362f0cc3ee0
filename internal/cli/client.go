package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"stockquest/internal/game"
)

// APIError is a non-2xx answer from the server. Anything else returned by
// Client is a transport failure.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Body)
}

func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Intent is one market order. The server fills every order at the
// current price.
type Intent struct {
	Ticker   string `json:"ticker"`
	Side     string `json:"side"`
	Quantity int64  `json:"quantity"`
}

func (c *Client) Catalog(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/catalog", nil, &out, "")
	return out, err
}

func (c *Client) NewGame(ctx context.Context, rounds int, seed game.Seed, playerID string) (map[string]any, error) {
	body := map[string]any{"seed": seed}
	if rounds != 0 {
		body["rounds"] = rounds
	}
	if playerID != "" {
		body["player_id"] = playerID
	}
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/games", body, &out, "")
	return out, err
}

func (c *Client) GameState(ctx context.Context, gameID string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, GamePath(gameID), nil, &out, "")
	return out, err
}

// RoundBody is the request body for a round submission. It is also what
// the offline queue stores.
func RoundBody(intents []Intent) map[string]any {
	rows := make([]any, 0, len(intents))
	for _, in := range intents {
		rows = append(rows, map[string]any{
			"ticker":   in.Ticker,
			"side":     in.Side,
			"quantity": in.Quantity,
		})
	}
	return map[string]any{"intents": rows}
}

func (c *Client) SubmitRound(ctx context.Context, gameID string, intents []Intent, idem string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodPost, RoundsPath(gameID), RoundBody(intents), &out, idem)
	return out, err
}

func (c *Client) Analytics(ctx context.Context, gameID string) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, GamePath(gameID)+"/analytics", nil, &out, "")
	return out, err
}

func (c *Client) Leaderboard(ctx context.Context, limit int) (map[string]any, error) {
	path := "/v1/leaderboard"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out map[string]any
	err := c.jsonRequest(ctx, http.MethodGet, path, nil, &out, "")
	return out, err
}

func (c *Client) Do(ctx context.Context, method, path string, body map[string]any, idem string) (map[string]any, error) {
	var out map[string]any
	var in any
	if body != nil {
		in = body
	}
	err := c.jsonRequest(ctx, method, path, in, &out, idem)
	return out, err
}

func GamePath(gameID string) string {
	return "/v1/games/" + url.PathEscape(gameID)
}

func RoundsPath(gameID string) string {
	return GamePath(gameID) + "/rounds"
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any, idem string) error {
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
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
