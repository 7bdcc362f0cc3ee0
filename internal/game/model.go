package game

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	DefaultRounds = 10

	// Epsilon absorbs float drift when comparing cash against order cost.
	Epsilon = 1e-6

	SuccessReward = int64(4000)
)

var (
	ErrInvalidTicker  = errors.New("ticker must be 1-12 uppercase letters or digits")
	ErrInvalidRounds  = errors.New("rounds must be greater than zero")
	ErrNotEnoughNews  = errors.New("not enough news items for requested rounds")
	ErrMalformedData  = errors.New("malformed dataset")
	ErrUnknownChange  = errors.New("unknown expected change type")
	ErrMissingRNG     = errors.New("rng is required")
	ErrRoundCompleted = errors.New("all rounds have already been completed")

	ErrUnknownStock       = errors.New("unknown stock")
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrInvalidPrice       = errors.New("invalid price")
	ErrInvalidSide        = errors.New("invalid side")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
)

type ValidationCode string

const (
	CodeRoundCompleted     ValidationCode = "ROUND_COMPLETED"
	CodeUnknownStock       ValidationCode = "UNKNOWN_STOCK"
	CodeInvalidQuantity    ValidationCode = "INVALID_QUANTITY"
	CodeInvalidPrice       ValidationCode = "INVALID_PRICE"
	CodeInvalidSide        ValidationCode = "INVALID_SIDE"
	CodeInsufficientFunds  ValidationCode = "INSUFFICIENT_FUNDS"
	CodeInsufficientShares ValidationCode = "INSUFFICIENT_SHARES"
)

var codeSentinels = map[ValidationCode]error{
	CodeRoundCompleted:     ErrRoundCompleted,
	CodeUnknownStock:       ErrUnknownStock,
	CodeInvalidQuantity:    ErrInvalidQuantity,
	CodeInvalidPrice:       ErrInvalidPrice,
	CodeInvalidSide:        ErrInvalidSide,
	CodeInsufficientFunds:  ErrInsufficientFunds,
	CodeInsufficientShares: ErrInsufficientShares,
}

// TradeValidationError is a player-facing rejection. It is returned as data
// from AdvanceRound and unwraps to the package sentinel for its code.
type TradeValidationError struct {
	Code    ValidationCode `json:"code"`
	Message string         `json:"message"`
	Ticker  string         `json:"ticker,omitempty"`
}

func (e TradeValidationError) Error() string {
	if e.Ticker == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s (%s): %s", e.Code, e.Ticker, e.Message)
}

func (e TradeValidationError) Unwrap() error {
	return codeSentinels[e.Code]
}

// InvalidQuantity builds the rejection used for quantities that cannot be
// represented as a positive whole number of shares.
func InvalidQuantity(ticker string) TradeValidationError {
	return TradeValidationError{
		Code:    CodeInvalidQuantity,
		Message: "Trade quantity must be a positive whole number.",
		Ticker:  ticker,
	}
}

var tickerRE = regexp.MustCompile(`^[A-Z0-9]{1,12}$`)

func ValidateTicker(ticker string) error {
	if !tickerRE.MatchString(strings.TrimSpace(ticker)) {
		return ErrInvalidTicker
	}
	return nil
}

func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}
