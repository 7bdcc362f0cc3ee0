package game

import (
	"fmt"
	"math"
)

// GenerateSchedule deals each instrument a distinct news item per round.
//
// Instruments are shuffled in dataset order, and each shuffle draws from rng
// from the last index down, so a fixed seed always yields the same schedule.
// A news pool shorter than rounds is a configuration error, reported as
// ErrNotEnoughNews.
func GenerateSchedule(d Dataset, rounds int, rng RNG) ([]RoundPlan, error) {
	if rounds <= 0 {
		return nil, ErrInvalidRounds
	}
	if rng == nil {
		return nil, ErrMissingRNG
	}
	for _, inst := range d.Instruments {
		if len(inst.NewsPool) < rounds {
			return nil, fmt.Errorf("%w: stock %s has %d news items for %d rounds",
				ErrNotEnoughNews, inst.Symbol, len(inst.NewsPool), rounds)
		}
	}

	plans := make([]RoundPlan, rounds)
	for i := range plans {
		plans[i] = RoundPlan{Index: i, Entries: make([]RoundNewsEntry, 0, len(d.Instruments))}
	}
	for _, inst := range d.Instruments {
		shuffled := shuffle(inst.NewsPool, rng)
		for i, news := range shuffled[:rounds] {
			plans[i].Entries = append(plans[i].Entries, RoundNewsEntry{
				Ticker:      inst.Ticker,
				Symbol:      inst.Symbol,
				DisplayName: inst.DisplayName,
				News:        news,
			})
		}
	}
	return plans, nil
}

// shuffle is Fisher-Yates on a copy of items.
func shuffle[T any](items []T, rng RNG) []T {
	out := make([]T, len(items))
	copy(out, items)
	for i := len(out) - 1; i > 0; i-- {
		j := int(math.Floor(rng.Float64() * float64(i+1)))
		out[i], out[j] = out[j], out[i]
	}
	return out
}
