package api

import (
	"encoding/json"
	"maps"
	"math"
	"slices"
	"strings"
	"time"

	"stockquest/internal/game"
	"stockquest/internal/session"
)

type intentRequest struct {
	Ticker     string      `json:"ticker"`
	Side       string      `json:"side"`
	Quantity   json.Number `json:"quantity"`
	LimitPrice *float64    `json:"limit_price,omitempty"`
}

// intent converts a request row. A quantity that is not a whole number
// becomes zero so the engine rejects it as INVALID_QUANTITY in batch order.
// LimitPrice is refused by the handler; server games always fill at market.
func (r intentRequest) intent() game.TradeIntent {
	return game.TradeIntent{
		Ticker:   game.NormalizeTicker(r.Ticker),
		Side:     game.Side(strings.ToLower(strings.TrimSpace(r.Side))),
		Quantity: wholeQuantity(r.Quantity),
	}
}

func wholeQuantity(n json.Number) int64 {
	if q, err := n.Int64(); err == nil {
		return q
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0
	}
	return int64(f)
}

type stockView struct {
	Ticker      string  `json:"ticker"`
	Symbol      string  `json:"symbol"`
	DisplayName string  `json:"display_name"`
	BasePrice   float64 `json:"base_price"`
	NewsCount   int     `json:"news_count"`
}

type catalogView struct {
	Currency       string             `json:"currency"`
	InitialCapital float64            `json:"initial_capital"`
	TransactionFee float64            `json:"transaction_fee"`
	GoalReturnPct  float64            `json:"goal_return_pct"`
	GoalValue      float64            `json:"goal_value"`
	FXRates        map[string]float64 `json:"fx_rates,omitempty"`
	Stocks         []stockView        `json:"stocks"`
}

func newCatalogView(d game.Dataset) catalogView {
	out := catalogView{
		Currency:       d.Metadata.Currency,
		InitialCapital: d.Metadata.InitialCapital,
		TransactionFee: d.Metadata.TransactionFee,
		GoalReturnPct:  d.Metadata.GoalReturnPct,
		GoalValue:      game.GoalValue(d.Metadata),
		FXRates:        d.Metadata.FXRates,
		Stocks:         make([]stockView, 0, len(d.Instruments)),
	}
	for _, inst := range d.Instruments {
		out.Stocks = append(out.Stocks, stockView{
			Ticker:      inst.Ticker,
			Symbol:      inst.Symbol,
			DisplayName: inst.DisplayName,
			BasePrice:   inst.BasePrice,
			NewsCount:   len(inst.NewsPool),
		})
	}
	return out
}

// newsView never carries the expected change.
type newsView struct {
	Ticker      string          `json:"ticker"`
	Symbol      string          `json:"symbol"`
	DisplayName string          `json:"display_name"`
	ID          string          `json:"id"`
	Date        string          `json:"date,omitempty"`
	Headline    string          `json:"headline"`
	Summary     string          `json:"summary,omitempty"`
	ImpactHint  game.ImpactHint `json:"impact_hint"`
}

type holdingView struct {
	Ticker   string  `json:"ticker"`
	Quantity int64   `json:"quantity"`
	AvgCost  float64 `json:"avg_cost"`
	MaxBuy   int64   `json:"max_buy"`
}

type snapshotView struct {
	RoundIndex int     `json:"round_index"`
	Cash       float64 `json:"cash"`
	TotalValue float64 `json:"total_value"`
}

type gameView struct {
	ID           string             `json:"id"`
	PlayerID     string             `json:"player_id,omitempty"`
	Seed         game.Seed          `json:"seed"`
	Currency     string             `json:"currency"`
	CurrentRound int                `json:"current_round"`
	RoundsTotal  int                `json:"rounds_total"`
	Completed    bool               `json:"completed"`
	Cash         float64            `json:"cash"`
	TotalValue   float64            `json:"total_value"`
	GoalValue    float64            `json:"goal_value"`
	Prices       map[string]float64 `json:"prices"`
	Holdings     []holdingView      `json:"holdings"`
	News         []newsView         `json:"news"`
	Snapshots    []snapshotView     `json:"snapshots"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

func newGameView(g session.Game) gameView {
	s := g.State
	out := gameView{
		ID:           g.ID.String(),
		PlayerID:     g.PlayerID,
		Seed:         s.Seed,
		Currency:     s.Metadata.Currency,
		CurrentRound: s.CurrentRound,
		RoundsTotal:  len(s.Rounds),
		Completed:    s.Completed(),
		Cash:         s.Cash,
		TotalValue:   s.LatestSnapshot().TotalValue,
		GoalValue:    game.GoalValue(s.Metadata),
		Prices:       s.Prices,
		Holdings:     make([]holdingView, 0, len(s.Holdings)),
		News:         []newsView{},
		Snapshots:    make([]snapshotView, 0, len(s.Snapshots)),
		CreatedAt:    g.CreatedAt,
		UpdatedAt:    g.UpdatedAt,
	}
	for _, ticker := range slices.Sorted(maps.Keys(s.Holdings)) {
		h := s.Holdings[ticker]
		out.Holdings = append(out.Holdings, holdingView{
			Ticker:   ticker,
			Quantity: h.Quantity,
			AvgCost:  h.AvgCost,
			MaxBuy:   game.MaxBuyQuantity(s.Cash, s.Prices[ticker], s.Metadata.TransactionFee),
		})
	}
	if plan, ok := s.CurrentPlan(); ok {
		for _, e := range plan.Entries {
			out.News = append(out.News, newsView{
				Ticker:      e.Ticker,
				Symbol:      e.Symbol,
				DisplayName: e.DisplayName,
				ID:          e.News.ID,
				Date:        e.News.Date,
				Headline:    e.News.Headline,
				Summary:     e.News.Summary,
				ImpactHint:  e.News.ImpactHint,
			})
		}
	}
	for _, snap := range s.Snapshots {
		out.Snapshots = append(out.Snapshots, snapshotView{
			RoundIndex: snap.RoundIndex,
			Cash:       snap.Cash,
			TotalValue: snap.TotalValue,
		})
	}
	return out
}

type executionView struct {
	Ticker     string    `json:"ticker"`
	Side       game.Side `json:"side"`
	Quantity   int64     `json:"quantity"`
	Price      float64   `json:"price"`
	Fee        float64   `json:"fee"`
	CashImpact float64   `json:"cash_impact"`
}

type resolvedView struct {
	Ticker        string  `json:"ticker"`
	Symbol        string  `json:"symbol"`
	NewsID        string  `json:"news_id"`
	Headline      string  `json:"headline"`
	Insight       string  `json:"insight,omitempty"`
	PreviousPrice float64 `json:"previous_price"`
	NewPrice      float64 `json:"new_price"`
	PctChange     float64 `json:"pct_change"`
}

type resolutionView struct {
	RoundIndex int            `json:"round_index"`
	Entries    []resolvedView `json:"entries"`
}

type advanceView struct {
	Game           gameView                    `json:"game"`
	Executions     []executionView             `json:"executions"`
	Errors         []game.TradeValidationError `json:"errors"`
	Resolution     *resolutionView             `json:"resolution"`
	RoundCompleted bool                        `json:"round_completed"`
}

func newAdvanceView(res game.AdvanceResult, g session.Game) advanceView {
	out := advanceView{
		Game:           newGameView(g),
		Executions:     make([]executionView, 0, len(res.Executions)),
		Errors:         res.Errors,
		RoundCompleted: res.RoundCompleted,
	}
	if out.Errors == nil {
		out.Errors = []game.TradeValidationError{}
	}
	for _, e := range res.Executions {
		out.Executions = append(out.Executions, executionView(e))
	}
	if res.Resolution != nil {
		rv := &resolutionView{
			RoundIndex: res.Resolution.RoundIndex,
			Entries:    make([]resolvedView, 0, len(res.Resolution.Entries)),
		}
		for _, e := range res.Resolution.Entries {
			rv.Entries = append(rv.Entries, resolvedView{
				Ticker:        e.Ticker,
				Symbol:        e.Symbol,
				NewsID:        e.News.ID,
				Headline:      e.News.Headline,
				Insight:       e.News.Insight,
				PreviousPrice: e.PreviousPrice,
				NewPrice:      e.NewPrice,
				PctChange:     e.PctChange,
			})
		}
		out.Resolution = rv
	}
	return out
}

type holdingMetricView struct {
	Ticker      string  `json:"ticker"`
	DisplayName string  `json:"display_name"`
	Quantity    int64   `json:"quantity"`
	AvgCost     float64 `json:"avg_cost"`
	MarketPrice float64 `json:"market_price"`
	MarketValue float64 `json:"market_value"`
	PnL         float64 `json:"pnl"`
	PnLPct      float64 `json:"pnl_pct"`
}

type summaryView struct {
	StartValue      float64   `json:"start_value"`
	EndValue        float64   `json:"end_value"`
	ReturnPct       float64   `json:"return_pct"`
	GoalValue       float64   `json:"goal_value"`
	GoalReached     bool      `json:"goal_reached"`
	Completed       bool      `json:"completed"`
	RoundsPlayed    int       `json:"rounds_played"`
	RoundsTotal     int       `json:"rounds_total"`
	ValueSeries     []float64 `json:"value_series"`
	RoundReturns    []float64 `json:"round_returns"`
	MeanRoundReturn float64   `json:"mean_round_return"`
	RoundVolatility float64   `json:"round_volatility"`
	MaxDrawdown     float64   `json:"max_drawdown"`
}

type analyticsView struct {
	ID       string              `json:"id"`
	Summary  summaryView         `json:"summary"`
	Holdings []holdingMetricView `json:"holdings"`
}

func newAnalyticsView(g session.Game) analyticsView {
	out := analyticsView{
		ID:       g.ID.String(),
		Summary:  summaryView(game.Summarize(g.State)),
		Holdings: []holdingMetricView{},
	}
	for _, m := range game.HoldingMetrics(g.State) {
		out.Holdings = append(out.Holdings, holdingMetricView(m))
	}
	return out
}
