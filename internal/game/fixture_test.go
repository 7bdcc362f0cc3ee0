package game

import "fmt"

// seqRNG replays a fixed list of values and counts how many were drawn.
type seqRNG struct {
	values []float64
	draws  int
}

func (r *seqRNG) Float64() float64 {
	v := r.values[r.draws%len(r.values)]
	r.draws++
	return v
}

func constRNG(v float64) *seqRNG {
	return &seqRNG{values: []float64{v}}
}

type stockFixture struct {
	ticker string
	price  float64
	change ExpectedChange
	news   int
}

func fixtureDataset(stocks ...stockFixture) Dataset {
	d := Dataset{
		Metadata: Metadata{
			Currency:       "KRW",
			InitialCapital: 1_000_000,
			TransactionFee: 0.001,
			GoalReturnPct:  0.1,
			FXRates:        map[string]float64{"USD": 1380},
		},
	}
	for _, s := range stocks {
		inst := Instrument{
			Ticker:      s.ticker,
			Symbol:      s.ticker,
			DisplayName: s.ticker + " Corp",
			BasePrice:   s.price,
		}
		for i := 0; i < s.news; i++ {
			inst.NewsPool = append(inst.NewsPool, NewsItem{
				ID:             fmt.Sprintf("%s-%02d", s.ticker, i),
				Headline:       fmt.Sprintf("%s headline %d", s.ticker, i),
				ImpactHint:     ImpactNeutral,
				ExpectedChange: s.change,
			})
		}
		d.Instruments = append(d.Instruments, inst)
	}
	return d
}

// flatDataset has one stock priced at 1,000 whose news never moves the price.
func flatDataset() Dataset {
	return fixtureDataset(stockFixture{ticker: "FLAT", price: 1000, change: FixedChange{}, news: 10})
}

func newFixtureState(d Dataset, rounds int) *GameState {
	s, err := NewGameState(d, StateOptions{Rounds: rounds, Seed: StringSeed("fixture")})
	if err != nil {
		panic(err)
	}
	return s
}

func ptr[T any](v T) *T {
	return &v
}
