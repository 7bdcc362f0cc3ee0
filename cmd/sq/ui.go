package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"

	"stockquest/internal/game"
	"stockquest/internal/results"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

type newsPayload struct {
	Ticker      string          `json:"ticker"`
	DisplayName string          `json:"display_name"`
	Date        string          `json:"date"`
	Headline    string          `json:"headline"`
	Summary     string          `json:"summary"`
	ImpactHint  game.ImpactHint `json:"impact_hint"`
}

type holdingPayload struct {
	Ticker   string  `json:"ticker"`
	Quantity int64   `json:"quantity"`
	AvgCost  float64 `json:"avg_cost"`
	MaxBuy   int64   `json:"max_buy"`
}

type gamePayload struct {
	ID           string             `json:"id"`
	Seed         game.Seed          `json:"seed"`
	Currency     string             `json:"currency"`
	CurrentRound int                `json:"current_round"`
	RoundsTotal  int                `json:"rounds_total"`
	Completed    bool               `json:"completed"`
	Cash         float64            `json:"cash"`
	TotalValue   float64            `json:"total_value"`
	GoalValue    float64            `json:"goal_value"`
	Prices       map[string]float64 `json:"prices"`
	Holdings     []holdingPayload   `json:"holdings"`
	News         []newsPayload      `json:"news"`
}

type resolvedPayload struct {
	Ticker        string  `json:"ticker"`
	Headline      string  `json:"headline"`
	Insight       string  `json:"insight"`
	PreviousPrice float64 `json:"previous_price"`
	NewPrice      float64 `json:"new_price"`
	PctChange     float64 `json:"pct_change"`
}

type executionPayload struct {
	Ticker     string    `json:"ticker"`
	Side       game.Side `json:"side"`
	Quantity   int64     `json:"quantity"`
	Price      float64   `json:"price"`
	Fee        float64   `json:"fee"`
	CashImpact float64   `json:"cash_impact"`
}

type advancePayload struct {
	Game       gamePayload                 `json:"game"`
	Executions []executionPayload          `json:"executions"`
	Errors     []game.TradeValidationError `json:"errors"`
	Resolution *struct {
		RoundIndex int               `json:"round_index"`
		Entries    []resolvedPayload `json:"entries"`
	} `json:"resolution"`
	RoundCompleted bool `json:"round_completed"`
}

type analyticsPayload struct {
	ID      string `json:"id"`
	Summary struct {
		StartValue      float64 `json:"start_value"`
		EndValue        float64 `json:"end_value"`
		ReturnPct       float64 `json:"return_pct"`
		GoalValue       float64 `json:"goal_value"`
		GoalReached     bool    `json:"goal_reached"`
		Completed       bool    `json:"completed"`
		RoundsPlayed    int     `json:"rounds_played"`
		RoundsTotal     int     `json:"rounds_total"`
		MeanRoundReturn float64 `json:"mean_round_return"`
		RoundVolatility float64 `json:"round_volatility"`
		MaxDrawdown     float64 `json:"max_drawdown"`
	} `json:"summary"`
	Holdings []struct {
		Ticker      string  `json:"ticker"`
		DisplayName string  `json:"display_name"`
		Quantity    int64   `json:"quantity"`
		AvgCost     float64 `json:"avg_cost"`
		MarketPrice float64 `json:"market_price"`
		MarketValue float64 `json:"market_value"`
		PnL         float64 `json:"pnl"`
		PnLPct      float64 `json:"pnl_pct"`
	} `json:"holdings"`
}

type leaderboardPayload struct {
	Rows []results.Result `json:"rows"`
}

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptChoice(label string, options []string, defaultValue string) (string, error) {
	normalized := make(map[string]struct{}, len(options))
	for _, opt := range options {
		normalized[strings.ToLower(strings.TrimSpace(opt))] = struct{}{}
	}
	for {
		fmt.Printf("%s (%s) [%s]: ", label, strings.Join(options, "/"), defaultValue)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.ToLower(strings.TrimSpace(text))
		if text == "" {
			text = strings.ToLower(strings.TrimSpace(defaultValue))
		}
		if _, ok := normalized[text]; ok {
			return text, nil
		}
		printWarn("Invalid option. Please pick one of the listed values.")
	}
}

func promptInt64(label string, min int64) (int64, error) {
	for {
		text, err := promptRequired(label)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			printWarn("Enter a whole number.")
			continue
		}
		if v < min {
			printWarn(fmt.Sprintf("Value must be >= %d", min))
			continue
		}
		return v, nil
	}
}

func promptTicker(label string, s *game.GameState) (string, error) {
	for {
		ticker, err := promptRequired(label)
		if err != nil {
			return "", err
		}
		ticker = game.NormalizeTicker(ticker)
		if err := game.ValidateTicker(ticker); err != nil {
			printWarn(err.Error())
			continue
		}
		if _, ok := s.Prices[ticker]; !ok {
			printWarn("No such stock in this game.")
			continue
		}
		return ticker, nil
	}
}

// promptIntents collects one round of orders. Cash and holdings shown in the
// prompts are not reduced by orders already entered; the engine checks the
// batch as a whole.
func promptIntents(s *game.GameState) ([]game.TradeIntent, error) {
	var intents []game.TradeIntent
	for {
		action, err := promptChoice("Order", []string{"buy", "sell", "done"}, "done")
		if err != nil {
			return nil, err
		}
		if action == "done" {
			return intents, nil
		}
		ticker, err := promptTicker("Ticker", s)
		if err != nil {
			return nil, err
		}
		label := "Quantity"
		switch game.Side(action) {
		case game.SideBuy:
			label = fmt.Sprintf("Quantity (max %d)", game.MaxBuyQuantity(s.Cash, s.Prices[ticker], s.Metadata.TransactionFee))
		case game.SideSell:
			label = fmt.Sprintf("Quantity (held %d)", s.Holdings[ticker].Quantity)
		}
		qty, err := promptInt64(label, 1)
		if err != nil {
			return nil, err
		}
		intents = append(intents, game.TradeIntent{Ticker: ticker, Side: game.Side(action), Quantity: qty})
	}
}

func renderCatalog(d game.Dataset) {
	m := d.Metadata
	accent.Println("\n== CATALOG ==")
	fmt.Printf("Starting cash:   %s\n", formatMoney(m.InitialCapital, m.Currency))
	fmt.Printf("Fee rate:        %s\n", decimal.NewFromFloat(m.TransactionFee*100).StringFixed(2)+"%")
	fmt.Printf("Goal:            %s\n", formatMoney(game.GoalValue(m), m.Currency))
	fmt.Println()
	fmt.Printf("%-10s %-24s %16s %6s\n", "TICKER", "NAME", "BASE PRICE", "NEWS")
	for _, inst := range d.Instruments {
		fmt.Printf("%-10s %-24s %16s %6d\n",
			inst.Ticker,
			truncate(inst.DisplayName, 24),
			formatMoney(inst.BasePrice, m.Currency),
			len(inst.NewsPool),
		)
	}
	fmt.Println()
}

func renderRound(s *game.GameState) {
	cur := s.Metadata.Currency
	accent.Printf("\n== ROUND %d / %d ==\n", s.CurrentRound+1, len(s.Rounds))
	fmt.Printf("Cash:        %s\n", formatMoney(s.Cash, cur))
	fmt.Printf("Total Value: %s\n", formatMoney(s.LatestSnapshot().TotalValue, cur))

	if plan, ok := s.CurrentPlan(); ok {
		fmt.Println()
		accent.Println("News")
		for _, e := range plan.Entries {
			fmt.Printf("[%s] %s  %s\n", e.Ticker, hintLabel(e.News.ImpactHint), e.News.Headline)
			if e.News.Summary != "" {
				neutral.Printf("    %s\n", e.News.Summary)
			}
		}
	}

	fmt.Println()
	fmt.Printf("%-10s %14s %8s %14s %8s\n", "TICKER", "PRICE", "QTY", "AVG COST", "MAX BUY")
	for _, inst := range tickersOf(s) {
		price := s.Prices[inst]
		h := s.Holdings[inst]
		fmt.Printf("%-10s %14s %8d %14s %8d\n",
			inst,
			formatMoney(price, cur),
			h.Quantity,
			formatMoney(h.AvgCost, cur),
			game.MaxBuyQuantity(s.Cash, price, s.Metadata.TransactionFee),
		)
	}
	fmt.Println()
}

func renderExecutions(execs []game.TradeExecution, currency string) {
	if len(execs) == 0 {
		printInfo("No trades this round.")
		return
	}
	fmt.Printf("%-6s %-10s %8s %14s %12s %16s\n", "SIDE", "TICKER", "QTY", "PRICE", "FEE", "CASH")
	for _, e := range execs {
		fmt.Printf("%-6s %-10s %8d %14s %12s %16s\n",
			strings.ToUpper(string(e.Side)),
			e.Ticker,
			e.Quantity,
			formatMoney(e.Price, currency),
			formatMoney(e.Fee, currency),
			colorizeMoney(e.CashImpact, currency),
		)
	}
}

func renderResolution(res *game.RoundResolution, currency string) {
	if res == nil {
		return
	}
	accent.Printf("\n-- Round %d results --\n", res.RoundIndex+1)
	for _, e := range res.Entries {
		fmt.Printf("%-10s %14s -> %14s %10s\n",
			e.Ticker,
			formatMoney(e.PreviousPrice, currency),
			formatMoney(e.NewPrice, currency),
			colorizePercent(e.PctChange*100),
		)
		if e.News.Insight != "" {
			neutral.Printf("    %s\n", e.News.Insight)
		}
	}
}

func renderSummary(s *game.GameState) {
	cur := s.Metadata.Currency
	sum := game.Summarize(s)
	accent.Println("\n== GAME OVER ==")
	fmt.Printf("Seed:            %s\n", s.Seed.String())
	fmt.Printf("Start Value:     %s\n", formatMoney(sum.StartValue, cur))
	fmt.Printf("Final Value:     %s\n", formatMoney(sum.EndValue, cur))
	fmt.Printf("Return:          %s\n", colorizePercent(sum.ReturnPct*100))
	fmt.Printf("Avg Round:       %s\n", colorizePercent(sum.MeanRoundReturn*100))
	fmt.Printf("Volatility:      %.2f%%\n", sum.RoundVolatility*100)
	fmt.Printf("Max Drawdown:    %.2f%%\n", sum.MaxDrawdown*100)

	metrics := game.HoldingMetrics(s)
	if len(metrics) > 0 {
		fmt.Println()
		fmt.Printf("%-10s %-20s %8s %14s %14s %16s %10s\n", "TICKER", "NAME", "QTY", "AVG COST", "PRICE", "P/L", "P/L%")
		for _, m := range metrics {
			fmt.Printf("%-10s %-20s %8d %14s %14s %16s %10s\n",
				m.Ticker,
				truncate(m.DisplayName, 20),
				m.Quantity,
				formatMoney(m.AvgCost, cur),
				formatMoney(m.MarketPrice, cur),
				colorizeMoney(m.PnL, cur),
				colorizePercent(m.PnLPct*100),
			)
		}
	}
	fmt.Println()
	if sum.GoalReached {
		printSuccess(fmt.Sprintf("Goal of %s reached.", formatMoney(sum.GoalValue, cur)))
	} else {
		printWarn(fmt.Sprintf("Goal of %s not reached.", formatMoney(sum.GoalValue, cur)))
	}
}

func renderGamePayload(g gamePayload) {
	cur := g.Currency
	if g.Completed {
		accent.Printf("\n== GAME %s (completed) ==\n", g.ID)
	} else {
		accent.Printf("\n== GAME %s round %d / %d ==\n", g.ID, g.CurrentRound+1, g.RoundsTotal)
	}
	fmt.Printf("Seed:        %s\n", g.Seed.String())
	fmt.Printf("Cash:        %s\n", formatMoney(g.Cash, cur))
	fmt.Printf("Total Value: %s\n", formatMoney(g.TotalValue, cur))
	fmt.Printf("Goal:        %s\n", formatMoney(g.GoalValue, cur))

	if len(g.News) > 0 {
		fmt.Println()
		accent.Println("News")
		for _, n := range g.News {
			fmt.Printf("[%s] %s  %s\n", n.Ticker, hintLabel(n.ImpactHint), n.Headline)
		}
	}
	fmt.Println()
	fmt.Printf("%-10s %14s %8s %14s %8s\n", "TICKER", "PRICE", "QTY", "AVG COST", "MAX BUY")
	for _, h := range g.Holdings {
		fmt.Printf("%-10s %14s %8d %14s %8d\n",
			h.Ticker,
			formatMoney(g.Prices[h.Ticker], cur),
			h.Quantity,
			formatMoney(h.AvgCost, cur),
			h.MaxBuy,
		)
	}
	fmt.Println()
}

func renderAdvancePayload(raw map[string]any) error {
	out, err := decodeInto[advancePayload](raw)
	if err != nil {
		return err
	}
	if len(out.Errors) > 0 {
		for _, e := range out.Errors {
			printError(e.Error())
		}
		printWarn("No orders were filled. Submit the round again.")
		return nil
	}
	cur := out.Game.Currency
	execs := make([]game.TradeExecution, 0, len(out.Executions))
	for _, e := range out.Executions {
		execs = append(execs, game.TradeExecution(e))
	}
	renderExecutions(execs, cur)
	if out.Resolution != nil {
		accent.Printf("\n-- Round %d results --\n", out.Resolution.RoundIndex+1)
		for _, e := range out.Resolution.Entries {
			fmt.Printf("%-10s %14s -> %14s %10s  %s\n",
				e.Ticker,
				formatMoney(e.PreviousPrice, cur),
				formatMoney(e.NewPrice, cur),
				colorizePercent(e.PctChange*100),
				truncate(e.Headline, 40),
			)
		}
	}
	renderGamePayload(out.Game)
	if out.RoundCompleted {
		printSuccess("Game finished. Run `sq remote analytics` for the summary.")
	}
	return nil
}

func renderAnalyticsPayload(raw map[string]any) error {
	out, err := decodeInto[analyticsPayload](raw)
	if err != nil {
		return err
	}
	s := out.Summary
	accent.Printf("\n== ANALYTICS %s ==\n", out.ID)
	fmt.Printf("Rounds:       %d / %d\n", s.RoundsPlayed, s.RoundsTotal)
	fmt.Printf("Start Value:  %s\n", formatMoney(s.StartValue, ""))
	fmt.Printf("End Value:    %s\n", formatMoney(s.EndValue, ""))
	fmt.Printf("Return:       %s\n", colorizePercent(s.ReturnPct*100))
	fmt.Printf("Avg Round:    %s\n", colorizePercent(s.MeanRoundReturn*100))
	fmt.Printf("Volatility:   %.2f%%\n", s.RoundVolatility*100)
	fmt.Printf("Max Drawdown: %.2f%%\n", s.MaxDrawdown*100)
	fmt.Printf("Goal Reached: %t\n", s.GoalReached)
	if len(out.Holdings) > 0 {
		fmt.Println()
		fmt.Printf("%-10s %-20s %8s %14s %16s %10s\n", "TICKER", "NAME", "QTY", "PRICE", "P/L", "P/L%")
		for _, h := range out.Holdings {
			fmt.Printf("%-10s %-20s %8d %14s %16s %10s\n",
				h.Ticker,
				truncate(h.DisplayName, 20),
				h.Quantity,
				formatMoney(h.MarketPrice, ""),
				colorizeMoney(h.PnL, ""),
				colorizePercent(h.PnLPct*100),
			)
		}
	}
	fmt.Println()
	return nil
}

func renderLeaderboard(raw map[string]any) error {
	out, err := decodeInto[leaderboardPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== LEADERBOARD ==")
	if len(out.Rows) == 0 {
		printInfo("No finished games yet.")
		return nil
	}
	fmt.Printf("%-4s %-16s %6s %18s %10s %-5s %-16s\n", "#", "PLAYER", "ROUNDS", "FINAL", "RETURN", "GOAL", "FINISHED")
	for i, r := range out.Rows {
		player := r.PlayerID
		if player == "" {
			player = "anonymous"
		}
		goal := "no"
		if r.GoalReached {
			goal = "yes"
		}
		fmt.Printf("%-4d %-16s %6d %18s %10s %-5s %-16s\n",
			i+1,
			truncate(player, 16),
			r.Rounds,
			formatDecimal(r.FinalValue, ""),
			colorizePercent(r.ReturnPct.Mul(decimal.NewFromInt(100)).InexactFloat64()),
			goal,
			r.FinishedAt.Local().Format("2006-01-02 15:04"),
		)
	}
	fmt.Println()
	return nil
}

func hintLabel(h game.ImpactHint) string {
	switch h {
	case game.ImpactBullish:
		return success.Sprint("▲")
	case game.ImpactBearish:
		return danger.Sprint("▼")
	default:
		return neutral.Sprint("•")
	}
}

func tickersOf(s *game.GameState) []string {
	return slices.Sorted(maps.Keys(s.Prices))
}

func decodeInto[T any](in any) (T, error) {
	var out T
	raw, err := json.Marshal(in)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

func colorizeMoney(v float64, currency string) string {
	text := formatMoney(v, currency)
	switch {
	case v > 0:
		return success.Sprint("+" + text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func colorizePercent(v float64) string {
	text := fmt.Sprintf("%+.2f%%", v)
	switch {
	case v > 0:
		return success.Sprint(text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func formatMoney(v float64, currency string) string {
	return formatDecimal(decimal.NewFromFloat(v), currency)
}

// formatDecimal prints two decimals with thousands separators, e.g.
// "-1,234.50 KRW".
func formatDecimal(d decimal.Decimal, currency string) string {
	d = d.Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	whole := d.Truncate(0)
	frac := d.Sub(whole).Shift(2).IntPart()
	text := fmt.Sprintf("%s%s.%02d", sign, comma(whole.IntPart()), frac)
	if currency != "" {
		text += " " + currency
	}
	return text
}

func comma(v int64) string {
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		if len(s) > pre {
			b.WriteByte(',')
		}
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
