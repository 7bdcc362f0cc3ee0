package game

import "math"

// ResolveRound applies the round's news to prices. The returned map is new;
// currentPrices is only read. Entries whose current price is missing or not
// finite are skipped.
func ResolveRound(plan RoundPlan, currentPrices map[string]float64, rng RNG) (RoundResolution, map[string]float64) {
	next := clonePrices(currentPrices)
	entries := make([]ResolvedNewsEntry, 0, len(plan.Entries))

	for _, entry := range plan.Entries {
		prev, ok := currentPrices[entry.Ticker]
		if !ok || math.IsNaN(prev) || math.IsInf(prev, 0) {
			continue
		}
		pct := drawChange(entry.News.ExpectedChange, rng)
		price := math.Max(0, roundHalfUp(prev*(1+pct)))
		next[entry.Ticker] = price
		entries = append(entries, ResolvedNewsEntry{
			RoundNewsEntry: entry,
			PreviousPrice:  prev,
			NewPrice:       price,
			PctChange:      pct,
		})
	}

	return RoundResolution{RoundIndex: plan.Index, Entries: entries}, next
}

// drawChange consumes one rng value for a non-degenerate range and none
// otherwise.
func drawChange(change ExpectedChange, rng RNG) float64 {
	switch c := change.(type) {
	case FixedChange:
		return c.Pct
	case RangeChange:
		lo, hi := c.Bounds()
		if hi-lo < Epsilon {
			return lo
		}
		return lo + rng.Float64()*(hi-lo)
	default:
		return 0
	}
}

func roundHalfUp(v float64) float64 {
	return math.Floor(v + 0.5)
}
