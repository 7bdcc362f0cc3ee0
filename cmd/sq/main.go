package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	cl "stockquest/internal/cli"
	"stockquest/internal/config"
	"stockquest/internal/game"
	"stockquest/internal/logging"
	"stockquest/internal/syncq"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var logger = zerolog.Nop()

func main() {
	cfg, err := config.LoadCLIFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	logger = logging.New(logging.Config{Level: cfg.LogLevel, Pretty: true, Out: os.Stderr})
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "sq",
		Short:        "StockQuest news-driven trading game",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL for remote commands")

	root.AddCommand(
		newCatalogCmd(),
		newPlayCmd(),
		newReplayCmd(),
		newRemoteCmd(&apiBase),
		newSyncCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func newCatalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List the stocks in the built-in catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := game.LoadDataset()
			if err != nil {
				return err
			}
			renderCatalog(d)
			return nil
		},
	}
}

func newPlayCmd() *cobra.Command {
	var rounds int
	var seed string
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play a local game in this terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := game.LoadDataset()
			if err != nil {
				return err
			}
			state, err := game.NewGameState(d, game.StateOptions{Rounds: rounds, Seed: game.ParseSeed(seed)})
			if err != nil {
				return err
			}
			accent.Printf("\nStarting %d rounds with %s in cash. Goal: %s\n",
				len(state.Rounds), formatMoney(state.Cash, state.Metadata.Currency),
				formatMoney(game.GoalValue(state.Metadata), state.Metadata.Currency))

			for !state.Completed() {
				renderRound(state)
				intents, err := promptIntents(state)
				if err != nil {
					return err
				}
				res := game.AdvanceRound(state, intents, game.AdvanceOptions{})
				if len(res.Errors) > 0 {
					for _, e := range res.Errors {
						printError(e.Message)
					}
					printWarn("No orders were filled. Enter this round's orders again.")
					continue
				}
				renderExecutions(res.Executions, state.Metadata.Currency)
				renderResolution(res.Resolution, state.Metadata.Currency)
				state = res.NextState
			}
			renderSummary(state)
			return nil
		},
	}
	cmd.Flags().IntVar(&rounds, "rounds", game.DefaultRounds, "number of rounds")
	cmd.Flags().StringVar(&seed, "seed", "", "seed for a reproducible game")
	return cmd
}

type scriptIntent struct {
	Ticker     string   `json:"ticker"`
	Side       string   `json:"side"`
	Quantity   int64    `json:"quantity"`
	LimitPrice *float64 `json:"limit_price,omitempty"`
}

func newReplayCmd() *cobra.Command {
	var rounds int
	var seed, script string
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a scripted game deterministically",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(seed) == "" {
				return errors.New("--seed is required for a replay")
			}
			plan, err := loadScript(script)
			if err != nil {
				return err
			}
			d, err := game.LoadDataset()
			if err != nil {
				return err
			}
			state, err := game.NewGameState(d, game.StateOptions{Rounds: rounds, Seed: game.ParseSeed(seed)})
			if err != nil {
				return err
			}
			for !state.Completed() {
				var intents []game.TradeIntent
				if state.CurrentRound < len(plan) {
					intents = plan[state.CurrentRound]
				}
				res := game.AdvanceRound(state, intents, game.AdvanceOptions{})
				if len(res.Errors) > 0 {
					printWarn(fmt.Sprintf("Round %d orders rejected (%s), holding instead.", state.CurrentRound+1, res.Errors[0].Code))
					res = game.AdvanceRound(state, nil, game.AdvanceOptions{})
				}
				state = res.NextState
			}
			renderSummary(state)
			return nil
		},
	}
	cmd.Flags().IntVar(&rounds, "rounds", game.DefaultRounds, "number of rounds")
	cmd.Flags().StringVar(&seed, "seed", "", "seed of the game to replay")
	cmd.Flags().StringVar(&script, "script", "", "JSON file with one list of orders per round")
	return cmd
}

func loadScript(path string) ([][]game.TradeIntent, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	var rows [][]scriptIntent
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	out := make([][]game.TradeIntent, len(rows))
	for i, row := range rows {
		for _, in := range row {
			out[i] = append(out[i], game.TradeIntent{
				Ticker:     game.NormalizeTicker(in.Ticker),
				Side:       game.Side(strings.ToLower(strings.TrimSpace(in.Side))),
				Quantity:   in.Quantity,
				LimitPrice: in.LimitPrice,
			})
		}
	}
	return out, nil
}

func newRemoteCmd(apiBase *string) *cobra.Command {
	remote := &cobra.Command{
		Use:   "remote",
		Short: "Play a game hosted by the StockQuest API",
	}

	var rounds int
	var seed, player string
	newGame := &cobra.Command{
		Use:   "new",
		Short: "Start a remote game and make it current",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient(apiBase)
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := client.NewGame(ctx, rounds, game.ParseSeed(seed), player)
			if err != nil {
				return err
			}
			view, err := decodeInto[gamePayload](out)
			if err != nil {
				return err
			}
			if err := cl.SaveSession(cl.Session{
				GameID:     view.ID,
				APIBaseURL: client.BaseURL,
				PlayerID:   player,
				Seed:       view.Seed.String(),
			}); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Game %s started.", view.ID))
			renderGamePayload(view)
			return nil
		},
	}
	newGame.Flags().IntVar(&rounds, "rounds", 0, "number of rounds (server default when 0)")
	newGame.Flags().StringVar(&seed, "seed", "", "seed for a reproducible game")
	newGame.Flags().StringVar(&player, "player", "", "player id used for rewards")

	state := &cobra.Command{
		Use:   "state",
		Short: "Show the current remote game",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := currentGame()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).GameState(ctx, sess.GameID)
			if err != nil {
				return err
			}
			view, err := decodeInto[gamePayload](out)
			if err != nil {
				return err
			}
			renderGamePayload(view)
			return nil
		},
	}

	trade := &cobra.Command{
		Use:   "trade [buy|sell TICKER QTY]...",
		Short: "Submit this round's orders (no orders holds)",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args)%3 != 0 {
				return errors.New("orders are given as triples: side ticker quantity")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := currentGame()
			if err != nil {
				return err
			}
			intents, err := parseOrderArgs(args)
			if err != nil {
				return err
			}
			return submitRound(cmd, apiBase, sess.GameID, intents)
		},
	}

	analytics := &cobra.Command{
		Use:   "analytics",
		Short: "Show performance of the current remote game",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := currentGame()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Analytics(ctx, sess.GameID)
			if err != nil {
				return err
			}
			return renderAnalyticsPayload(out)
		},
	}

	var limit int
	leaderboard := &cobra.Command{
		Use:   "leaderboard",
		Short: "Best finished games",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Leaderboard(ctx, limit)
			if err != nil {
				return err
			}
			return renderLeaderboard(out)
		},
	}
	leaderboard.Flags().IntVar(&limit, "limit", 20, "rows to show")

	remote.AddCommand(newGame, state, trade, analytics, leaderboard)
	return remote
}

func currentGame() (cl.Session, error) {
	sess, err := cl.LoadSession()
	if err != nil {
		return cl.Session{}, fmt.Errorf("no current game, run `sq remote new`: %w", err)
	}
	return sess, nil
}

func parseOrderArgs(args []string) ([]cl.Intent, error) {
	intents := make([]cl.Intent, 0, len(args)/3)
	for i := 0; i+2 < len(args); i += 3 {
		side := strings.ToLower(strings.TrimSpace(args[i]))
		if side != string(game.SideBuy) && side != string(game.SideSell) {
			return nil, fmt.Errorf("unknown side %q", args[i])
		}
		ticker := game.NormalizeTicker(args[i+1])
		if err := game.ValidateTicker(ticker); err != nil {
			return nil, fmt.Errorf("%s: %w", args[i+1], err)
		}
		qty, err := strconv.ParseInt(strings.TrimSpace(args[i+2]), 10, 64)
		if err != nil || qty <= 0 {
			return nil, fmt.Errorf("invalid quantity %q", args[i+2])
		}
		intents = append(intents, cl.Intent{Ticker: ticker, Side: side, Quantity: qty})
	}
	return intents, nil
}

func submitRound(cmd *cobra.Command, apiBase *string, gameID string, intents []cl.Intent) error {
	idem := uuid.NewString()
	client := newClient(apiBase)
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	out, err := client.SubmitRound(ctx, gameID, intents, idem)
	if err != nil {
		return queueOnNetworkError(err, syncq.Command{
			Method:         "POST",
			Path:           cl.RoundsPath(gameID),
			Body:           cl.RoundBody(intents),
			IdempotencyKey: idem,
		})
	}
	return renderAdvancePayload(out)
}

func newSyncCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay round submissions queued while offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := syncq.Load()
			if err != nil {
				return err
			}
			if len(queue) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			out := syncq.Replay(ctx, newClient(apiBase), queue, cl.IsAPIError)
			for _, r := range out.Rejected {
				printError(fmt.Sprintf("Dropped %s %s: %v", r.Command.Method, r.Command.Path, r.Err))
			}
			if err := syncq.Save(out.Remaining); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d dropped=%d remaining=%d",
				out.Replayed, len(out.Rejected), len(out.Remaining)))
			return nil
		},
	}
}

func queueOnNetworkError(err error, cmd syncq.Command) error {
	if err == nil {
		return nil
	}
	if cl.IsAPIError(err) {
		return err
	}
	logger.Debug().Err(err).Str("path", cmd.Path).Msg("request failed, queueing")
	if qerr := syncq.Push(cmd); qerr != nil {
		return fmt.Errorf("request failed (%v) and could not be queued: %w", err, qerr)
	}
	printWarn("Server unreachable. The round was queued; run `sq sync` when back online.")
	return nil
}
