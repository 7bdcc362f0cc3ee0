package game

import (
	"maps"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

type HoldingMetric struct {
	Ticker      string
	DisplayName string
	Quantity    int64
	AvgCost     float64
	MarketPrice float64
	MarketValue float64
	PnL         float64
	PnLPct      float64
}

type Summary struct {
	StartValue      float64
	EndValue        float64
	ReturnPct       float64
	GoalValue       float64
	GoalReached     bool
	Completed       bool
	RoundsPlayed    int
	RoundsTotal     int
	ValueSeries     []float64
	RoundReturns    []float64
	MeanRoundReturn float64
	RoundVolatility float64
	MaxDrawdown     float64
}

func ReturnPct(value, base float64) float64 {
	if base == 0 {
		return 0
	}
	return value/base - 1
}

func GoalValue(m Metadata) float64 {
	return m.InitialCapital * (1 + m.GoalReturnPct)
}

// GoalReached reports whether a finished game ended at or above its target.
func GoalReached(s *GameState) bool {
	if !s.Completed() || len(s.Snapshots) == 0 {
		return false
	}
	return s.LatestSnapshot().TotalValue >= GoalValue(s.Metadata)
}

// MaxBuyQuantity is the largest whole number of shares cash can pay for,
// fee included.
func MaxBuyQuantity(cash, price, feeRate float64) int64 {
	if math.IsNaN(cash) || math.IsInf(cash, 0) || !positive(price) || cash <= 0 {
		return 0
	}
	effective := price * (1 + math.Max(0, feeRate))
	if effective <= 0 {
		return 0
	}
	return int64(math.Max(0, math.Floor(cash/effective)))
}

func HoldingMetrics(s *GameState) []HoldingMetric {
	names := displayNames(s)
	out := make([]HoldingMetric, 0, len(s.Holdings))
	for _, ticker := range slices.Sorted(maps.Keys(s.Holdings)) {
		h := s.Holdings[ticker]
		if h.Quantity <= 0 {
			continue
		}
		price := s.Prices[ticker]
		basis := h.AvgCost * float64(h.Quantity)
		value := price * float64(h.Quantity)
		pnlPct := 0.0
		if basis != 0 {
			pnlPct = value/math.Max(1, basis) - 1
		}
		name := names[ticker]
		if name == "" {
			name = ticker
		}
		out = append(out, HoldingMetric{
			Ticker:      ticker,
			DisplayName: name,
			Quantity:    h.Quantity,
			AvgCost:     h.AvgCost,
			MarketPrice: price,
			MarketValue: value,
			PnL:         value - basis,
			PnLPct:      pnlPct,
		})
	}
	return out
}

func Summarize(s *GameState) Summary {
	series := make([]float64, len(s.Snapshots))
	for i, snap := range s.Snapshots {
		series[i] = snap.TotalValue
	}
	sum := Summary{
		GoalValue:    GoalValue(s.Metadata),
		GoalReached:  GoalReached(s),
		Completed:    s.Completed(),
		RoundsPlayed: s.CurrentRound,
		RoundsTotal:  len(s.Rounds),
		ValueSeries:  series,
		RoundReturns: []float64{},
	}
	if len(series) == 0 {
		return sum
	}
	sum.StartValue = series[0]
	sum.EndValue = series[len(series)-1]
	sum.ReturnPct = ReturnPct(sum.EndValue, sum.StartValue)

	for i := 1; i < len(series); i++ {
		sum.RoundReturns = append(sum.RoundReturns, ReturnPct(series[i], series[i-1]))
	}
	if len(sum.RoundReturns) > 0 {
		sum.MeanRoundReturn = stat.Mean(sum.RoundReturns, nil)
	}
	if len(sum.RoundReturns) > 1 {
		sum.RoundVolatility = stat.StdDev(sum.RoundReturns, nil)
	}
	sum.MaxDrawdown = maxDrawdown(series)
	return sum
}

// maxDrawdown is the largest peak-to-trough fall as a fraction of the peak.
func maxDrawdown(series []float64) float64 {
	peak, worst := 0.0, 0.0
	for _, v := range series {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			worst = math.Max(worst, (peak-v)/peak)
		}
	}
	return worst
}

func displayNames(s *GameState) map[string]string {
	names := make(map[string]string)
	if len(s.Rounds) == 0 {
		return names
	}
	for _, e := range s.Rounds[0].Entries {
		names[e.Ticker] = e.DisplayName
	}
	return names
}
