package game

import (
	"fmt"
	"maps"
)

type StateOptions struct {
	// Rounds defaults to DefaultRounds when zero.
	Rounds int
	Seed   Seed
	// RNG overrides the generator derived from Seed.
	RNG RNG
}

func NewGameState(d Dataset, opts StateOptions) (*GameState, error) {
	rounds := opts.Rounds
	if rounds == 0 {
		rounds = DefaultRounds
	}
	rng := opts.RNG
	if rng == nil {
		if opts.Seed.IsZero() {
			rng = NewEntropyRNG()
		} else {
			rng = NewRNG(opts.Seed)
		}
	}

	clone := d.Clone()
	plans, err := GenerateSchedule(clone, rounds, rng)
	if err != nil {
		return nil, fmt.Errorf("generate schedule: %w", err)
	}

	holdings := make(map[string]HoldingState, len(clone.Instruments))
	prices := make(map[string]float64, len(clone.Instruments))
	for _, inst := range clone.Instruments {
		holdings[inst.Ticker] = HoldingState{Ticker: inst.Ticker}
		prices[inst.Ticker] = inst.BasePrice
	}

	capital := clone.Metadata.InitialCapital
	return &GameState{
		Metadata:     clone.Metadata,
		Prices:       prices,
		Holdings:     holdings,
		Cash:         capital,
		Rounds:       plans,
		CurrentRound: 0,
		Snapshots: []PortfolioSnapshot{{
			RoundIndex: 0,
			Cash:       capital,
			TotalValue: capital,
			Prices:     clonePrices(prices),
			Holdings:   cloneHoldings(holdings),
		}},
		Resolutions: []RoundResolution{},
		Seed:        opts.Seed,
	}, nil
}

func clonePrices(src map[string]float64) map[string]float64 {
	return maps.Clone(src)
}

// cloneHoldings is a deep copy because HoldingState is a value type.
func cloneHoldings(src map[string]HoldingState) map[string]HoldingState {
	return maps.Clone(src)
}
