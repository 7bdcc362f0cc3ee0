package game

import "math"

// ValidateIntent checks one order against the working holdings, prices and
// cash. Checks run in a fixed order and the first failure is returned; nil
// means the order can be applied.
func ValidateIntent(intent TradeIntent, holdings map[string]HoldingState, prices map[string]float64, cash, feeRate float64) *TradeValidationError {
	holding, ok := holdings[intent.Ticker]
	if !ok {
		return &TradeValidationError{
			Code:    CodeUnknownStock,
			Message: "Ticker " + intent.Ticker + " is not available in this game.",
			Ticker:  intent.Ticker,
		}
	}
	if intent.Quantity <= 0 {
		e := InvalidQuantity(intent.Ticker)
		return &e
	}

	price := resolvePrice(intent, prices)
	if !positive(price) {
		return &TradeValidationError{
			Code:    CodeInvalidPrice,
			Message: "Trade price must be a positive number.",
			Ticker:  intent.Ticker,
		}
	}

	gross := price * float64(intent.Quantity)
	fee := gross * feeRate
	if !finite(gross) || !finite(fee) || !finite(gross+fee) {
		return &TradeValidationError{
			Code:    CodeInvalidPrice,
			Message: "Trade value is out of range.",
			Ticker:  intent.Ticker,
		}
	}

	switch intent.Side {
	case SideBuy:
		if intent.Quantity > math.MaxInt64-holding.Quantity {
			e := InvalidQuantity(intent.Ticker)
			return &e
		}
		if gross+fee > cash+Epsilon {
			return &TradeValidationError{
				Code:    CodeInsufficientFunds,
				Message: "Not enough cash to execute the buy order.",
				Ticker:  intent.Ticker,
			}
		}
	case SideSell:
		if intent.Quantity > holding.Quantity {
			return &TradeValidationError{
				Code:    CodeInsufficientShares,
				Message: "Cannot sell more shares than currently held.",
				Ticker:  intent.Ticker,
			}
		}
	default:
		return &TradeValidationError{
			Code:    CodeInvalidSide,
			Message: "Trade side must be buy or sell.",
			Ticker:  intent.Ticker,
		}
	}
	return nil
}

// ApplyTrade settles a validated order into holdings, which it updates in
// place. Callers pass a working copy, never state they do not own.
func ApplyTrade(intent TradeIntent, holdings map[string]HoldingState, prices map[string]float64, feeRate float64) TradeExecution {
	price := resolvePrice(intent, prices)
	gross := price * float64(intent.Quantity)
	fee := gross * feeRate
	holding := holdings[intent.Ticker]

	exec := TradeExecution{
		Ticker:   intent.Ticker,
		Side:     intent.Side,
		Quantity: intent.Quantity,
		Price:    price,
		Fee:      fee,
	}

	if intent.Side == SideBuy {
		qty := holding.Quantity + intent.Quantity
		basis := holding.AvgCost*float64(holding.Quantity) + gross + fee
		avg := 0.0
		if qty > 0 {
			avg = basis / float64(qty)
		}
		holdings[intent.Ticker] = HoldingState{Ticker: intent.Ticker, Quantity: qty, AvgCost: avg}
		exec.CashImpact = -(gross + fee)
		return exec
	}

	qty := holding.Quantity - intent.Quantity
	avg := holding.AvgCost
	if qty <= 0 {
		avg = 0
	}
	holdings[intent.Ticker] = HoldingState{Ticker: intent.Ticker, Quantity: qty, AvgCost: avg}
	exec.CashImpact = gross - fee
	return exec
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func resolvePrice(intent TradeIntent, prices map[string]float64) float64 {
	if intent.LimitPrice != nil {
		return *intent.LimitPrice
	}
	price, ok := prices[intent.Ticker]
	if !ok {
		return math.NaN()
	}
	return price
}
