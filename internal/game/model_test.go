package game

import (
	"errors"
	"testing"
)

func TestValidateTicker(t *testing.T) {
	valid := []string{"MIRAE", "A", "005930", "HANBIT2024AB"}
	for _, s := range valid {
		if err := ValidateTicker(s); err != nil {
			t.Fatalf("expected ticker %q to be valid: %v", s, err)
		}
	}

	invalid := []string{"", "mirae", "TOOLONGTICKER1", "A_B", "A B"}
	for _, s := range invalid {
		if err := ValidateTicker(s); err == nil {
			t.Fatalf("expected ticker %q to fail", s)
		}
	}
}

func TestNormalizeTicker(t *testing.T) {
	if got := NormalizeTicker("  mirae "); got != "MIRAE" {
		t.Fatalf("got %q want MIRAE", got)
	}
}

func TestMaxBuyQuantity(t *testing.T) {
	tests := []struct {
		cash  float64
		price float64
		fee   float64
		want  int64
	}{
		{cash: 1_000_000, price: 1000, fee: 0, want: 1000},
		{cash: 1_000_000, price: 1000, fee: 0.001, want: 999},
		{cash: 999, price: 1000, fee: 0, want: 0},
		{cash: 0, price: 1000, fee: 0, want: 0},
		{cash: 1000, price: 0, fee: 0, want: 0},
		{cash: 1000, price: -5, fee: 0, want: 0},
	}
	for _, tc := range tests {
		got := MaxBuyQuantity(tc.cash, tc.price, tc.fee)
		if got != tc.want {
			t.Fatalf("cash=%v price=%v fee=%v got=%d want=%d", tc.cash, tc.price, tc.fee, got, tc.want)
		}
	}
}

func TestTradeValidationErrorUnwrap(t *testing.T) {
	err := error(TradeValidationError{Code: CodeInsufficientShares, Message: "no", Ticker: "MIRAE"})
	if !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("expected %v to unwrap to ErrInsufficientShares", err)
	}
	var verr TradeValidationError
	if !errors.As(err, &verr) || verr.Ticker != "MIRAE" {
		t.Fatalf("expected errors.As to recover the ticker, got %+v", verr)
	}
}
