package game

type ImpactHint string

const (
	ImpactBullish ImpactHint = "bullish"
	ImpactBearish ImpactHint = "bearish"
	ImpactNeutral ImpactHint = "neutral"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type Metadata struct {
	Currency       string             `json:"currency"`
	InitialCapital float64            `json:"initialCapital"`
	TransactionFee float64            `json:"transactionFee"`
	GoalReturnPct  float64            `json:"goalReturnPct"`
	FXRates        map[string]float64 `json:"fxRates"`
}

type NewsItem struct {
	ID             string         `json:"id"`
	Date           string         `json:"date"`
	Headline       string         `json:"headline"`
	Summary        string         `json:"summary"`
	ImpactHint     ImpactHint     `json:"impactHint"`
	ExpectedChange ExpectedChange `json:"expectedChange"`
	Insight        string         `json:"insight,omitempty"`
	Source         string         `json:"source,omitempty"`
}

type Instrument struct {
	Ticker      string     `json:"ticker"`
	Symbol      string     `json:"symbol"`
	DisplayName string     `json:"displayName"`
	BasePrice   float64    `json:"basePrice"`
	NewsPool    []NewsItem `json:"newsPool"`
}

type Dataset struct {
	Metadata    Metadata     `json:"metadata"`
	Instruments []Instrument `json:"stocks"`
}

type RoundNewsEntry struct {
	Ticker      string
	Symbol      string
	DisplayName string
	News        NewsItem
}

type RoundPlan struct {
	Index   int
	Entries []RoundNewsEntry
}

// HoldingState is a position in one instrument. AvgCost is zero whenever
// Quantity is zero.
type HoldingState struct {
	Ticker   string
	Quantity int64
	AvgCost  float64
}

type PortfolioSnapshot struct {
	RoundIndex int
	Cash       float64
	TotalValue float64
	Prices     map[string]float64
	Holdings   map[string]HoldingState
}

type TradeIntent struct {
	Ticker     string
	Side       Side
	Quantity   int64
	LimitPrice *float64
}

type TradeExecution struct {
	Ticker     string
	Side       Side
	Quantity   int64
	Price      float64
	Fee        float64
	CashImpact float64
}

type ResolvedNewsEntry struct {
	RoundNewsEntry
	PreviousPrice float64
	NewPrice      float64
	PctChange     float64
}

type RoundResolution struct {
	RoundIndex int
	Entries    []ResolvedNewsEntry
}

// GameState is treated as immutable once built. AdvanceRound returns a new
// value and never writes to the one it was given.
type GameState struct {
	Metadata     Metadata
	Prices       map[string]float64
	Holdings     map[string]HoldingState
	Cash         float64
	Rounds       []RoundPlan
	CurrentRound int
	Snapshots    []PortfolioSnapshot
	Resolutions  []RoundResolution
	Seed         Seed
}

func (s *GameState) Completed() bool {
	return s.CurrentRound >= len(s.Rounds)
}

func (s *GameState) CurrentPlan() (RoundPlan, bool) {
	if s.Completed() {
		return RoundPlan{}, false
	}
	return s.Rounds[s.CurrentRound], true
}

func (s *GameState) LatestSnapshot() PortfolioSnapshot {
	if len(s.Snapshots) == 0 {
		return PortfolioSnapshot{}
	}
	return s.Snapshots[len(s.Snapshots)-1]
}
