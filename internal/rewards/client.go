package rewards

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"stockquest/internal/game"

	"github.com/google/uuid"
)

const GameType = "stock"

var ErrNotEligible = errors.New("game is not eligible for a reward")

// Reward is the payload the user-profile service expects.
type Reward struct {
	ZepUserID  string `json:"zepUserId"`
	GameType   string `json:"gameType"`
	Success    bool   `json:"success"`
	EarnedGold int64  `json:"earnedGold"`
}

// Eligible decides what a finished game earns. Only completed games can be
// reported; a game that missed its goal earns nothing.
func Eligible(state *game.GameState, playerID string, successReward int64) (Reward, error) {
	if strings.TrimSpace(playerID) == "" {
		return Reward{}, fmt.Errorf("%w: no player id", ErrNotEligible)
	}
	if !state.Completed() {
		return Reward{}, fmt.Errorf("%w: game still in progress", ErrNotEligible)
	}
	success := game.GoalReached(state)
	earned := int64(0)
	if success {
		earned = successReward
	}
	return Reward{
		ZepUserID:  playerID,
		GameType:   GameType,
		Success:    success,
		EarnedGold: earned,
	}, nil
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Post reports a reward. requestID travels as the Idempotency-Key header so
// a retried post is not paid twice.
func (c *Client) Post(ctx context.Context, reward Reward, requestID string) error {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return c.postJSON(ctx, "/api/users/rewards", reward, requestID, nil)
}

func (c *Client) postJSON(ctx context.Context, path string, in any, requestID string, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", requestID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rewards request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("rewards status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
