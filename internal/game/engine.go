package game

import (
	"maps"
	"slices"
)

type AdvanceOptions struct {
	// RNG overrides the per-round generator derived from the state's seed.
	RNG RNG
}

type AdvanceResult struct {
	NextState      *GameState
	Executions     []TradeExecution
	Errors         []TradeValidationError
	Resolution     *RoundResolution
	RoundCompleted bool
}

// AdvanceRound plays one round: it settles intents as a single batch, moves
// prices by the round's news, and records a snapshot.
//
// The batch is all-or-nothing. If any intent is rejected, or cash would go
// below -Epsilon or stop being finite after any trade, the original state
// pointer is returned with that one error and no executions. A completed game
// is returned unchanged with a ROUND_COMPLETED error. state is never modified.
func AdvanceRound(state *GameState, intents []TradeIntent, opts AdvanceOptions) AdvanceResult {
	if state.Completed() {
		return AdvanceResult{
			NextState: state,
			Errors: []TradeValidationError{{
				Code:    CodeRoundCompleted,
				Message: "All rounds have already been completed.",
			}},
			RoundCompleted: true,
		}
	}

	plan := state.Rounds[state.CurrentRound]
	rng := roundRNG(state, opts)

	holdings := cloneHoldings(state.Holdings)
	prices := clonePrices(state.Prices)
	cash := state.Cash
	feeRate := state.Metadata.TransactionFee
	executions := make([]TradeExecution, 0, len(intents))

	abort := func(e TradeValidationError) AdvanceResult {
		return AdvanceResult{
			NextState:      state,
			Errors:         []TradeValidationError{e},
			RoundCompleted: state.Completed(),
		}
	}

	for _, intent := range intents {
		if verr := ValidateIntent(intent, holdings, prices, cash, feeRate); verr != nil {
			return abort(*verr)
		}
		exec := ApplyTrade(intent, holdings, prices, feeRate)
		cash += exec.CashImpact
		executions = append(executions, exec)
		if cash < -Epsilon || !finite(cash) {
			return abort(TradeValidationError{
				Code:    CodeInsufficientFunds,
				Message: "Trade processing resulted in negative cash balance.",
				Ticker:  exec.Ticker,
			})
		}
	}

	resolution, nextPrices := ResolveRound(plan, prices, rng)
	snapshot := PortfolioSnapshot{
		RoundIndex: state.CurrentRound + 1,
		Cash:       cash,
		TotalValue: TotalValue(nextPrices, holdings, cash),
		Prices:     clonePrices(nextPrices),
		Holdings:   cloneHoldings(holdings),
	}

	next := &GameState{
		Metadata:     state.Metadata,
		Prices:       nextPrices,
		Holdings:     holdings,
		Cash:         cash,
		Rounds:       state.Rounds,
		CurrentRound: min(state.CurrentRound+1, len(state.Rounds)),
		Snapshots:    append(slices.Clip(state.Snapshots), snapshot),
		Resolutions:  append(slices.Clip(state.Resolutions), resolution),
		Seed:         state.Seed,
	}

	return AdvanceResult{
		NextState:      next,
		Executions:     executions,
		Errors:         []TradeValidationError{},
		Resolution:     &resolution,
		RoundCompleted: next.Completed(),
	}
}

func roundRNG(state *GameState, opts AdvanceOptions) RNG {
	if opts.RNG != nil {
		return opts.RNG
	}
	if state.Seed.IsZero() {
		return NewEntropyRNG()
	}
	return NewRNG(state.Seed.forRound(state.CurrentRound))
}

// TotalValue is cash plus every holding marked at its current price. A
// ticker without a price counts as zero. Holdings are summed in ticker order
// so the result is bit-for-bit reproducible.
func TotalValue(prices map[string]float64, holdings map[string]HoldingState, cash float64) float64 {
	equity := 0.0
	for _, ticker := range slices.Sorted(maps.Keys(holdings)) {
		equity += float64(holdings[ticker].Quantity) * prices[ticker]
	}
	return cash + equity
}
