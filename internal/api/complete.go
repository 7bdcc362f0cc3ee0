package api

import (
	"context"
	"time"

	"stockquest/internal/results"
	"stockquest/internal/rewards"
	"stockquest/internal/session"

	"github.com/rs/zerolog"
)

type Recorder interface {
	Record(ctx context.Context, r results.Result) (bool, error)
}

type RewardPoster interface {
	Post(ctx context.Context, reward rewards.Reward, requestID string) error
}

// CompletionHook records finished games and reports rewards. Either
// dependency may be nil. Failures are logged; the player's round still
// succeeds.
func CompletionHook(logger zerolog.Logger, recorder Recorder, poster RewardPoster, successReward int64) session.CompleteFunc {
	return func(ctx context.Context, g session.Game) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()

		log := logger.With().Str("game_id", g.ID.String()).Logger()
		log.Info().
			Float64("total_value", g.State.LatestSnapshot().TotalValue).
			Msg("game completed")

		if recorder != nil {
			res, err := results.FromState(g.ID, g.PlayerID, g.State, g.UpdatedAt)
			if err != nil {
				log.Error().Err(err).Msg("build result")
			} else if inserted, err := recorder.Record(ctx, res); err != nil {
				log.Error().Err(err).Msg("record result")
			} else if !inserted {
				log.Warn().Msg("result already recorded")
			}
		}

		if poster == nil {
			return
		}
		reward, err := rewards.Eligible(g.State, g.PlayerID, successReward)
		if err != nil {
			log.Debug().Err(err).Msg("no reward posted")
			return
		}
		if err := poster.Post(ctx, reward, g.ID.String()); err != nil {
			log.Error().Err(err).Str("player_id", g.PlayerID).Msg("post reward")
			return
		}
		log.Info().
			Str("player_id", g.PlayerID).
			Bool("success", reward.Success).
			Int64("earned_gold", reward.EarnedGold).
			Msg("reward posted")
	}
}
