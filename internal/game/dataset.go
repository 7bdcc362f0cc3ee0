package game

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"strings"
	"sync"
)

//go:embed data/catalog.json
var catalogJSON []byte

var canonicalDataset = sync.OnceValues(func() (Dataset, error) {
	return ParseDataset(catalogJSON)
})

// LoadDataset returns a deep copy of the built-in catalog. Callers may
// modify the result freely; the canonical copy is never handed out.
func LoadDataset() (Dataset, error) {
	d, err := canonicalDataset()
	if err != nil {
		return Dataset{}, fmt.Errorf("load catalog: %w", err)
	}
	return d.Clone(), nil
}

func ParseDataset(raw []byte) (Dataset, error) {
	var d Dataset
	if err := json.Unmarshal(raw, &d); err != nil {
		return Dataset{}, fmt.Errorf("%w: %w", ErrMalformedData, err)
	}
	if err := d.Validate(); err != nil {
		return Dataset{}, err
	}
	return d, nil
}

func (d Dataset) Validate() error {
	m := d.Metadata
	if strings.TrimSpace(m.Currency) == "" {
		return fmt.Errorf("%w: currency is required", ErrMalformedData)
	}
	if !positive(m.InitialCapital) {
		return fmt.Errorf("%w: initialCapital must be positive", ErrMalformedData)
	}
	if m.TransactionFee < 0 || math.IsNaN(m.TransactionFee) || math.IsInf(m.TransactionFee, 0) {
		return fmt.Errorf("%w: transactionFee must be a non-negative number", ErrMalformedData)
	}
	if len(d.Instruments) == 0 {
		return fmt.Errorf("%w: at least one stock is required", ErrMalformedData)
	}
	seen := make(map[string]bool, len(d.Instruments))
	for _, inst := range d.Instruments {
		if err := ValidateTicker(inst.Ticker); err != nil {
			return fmt.Errorf("%w: stock %q: %v", ErrMalformedData, inst.Ticker, err)
		}
		if seen[inst.Ticker] {
			return fmt.Errorf("%w: duplicate ticker %q", ErrMalformedData, inst.Ticker)
		}
		seen[inst.Ticker] = true
		if !positive(inst.BasePrice) {
			return fmt.Errorf("%w: stock %s: basePrice must be positive", ErrMalformedData, inst.Ticker)
		}
		for i, n := range inst.NewsPool {
			if strings.TrimSpace(n.ID) == "" {
				return fmt.Errorf("%w: stock %s: news #%d has no id", ErrMalformedData, inst.Ticker, i)
			}
			if n.ExpectedChange == nil {
				return fmt.Errorf("%w: stock %s: news %s has no expected change", ErrMalformedData, inst.Ticker, n.ID)
			}
		}
	}
	return nil
}

func (d Dataset) Clone() Dataset {
	out := Dataset{
		Metadata:    d.Metadata.Clone(),
		Instruments: make([]Instrument, len(d.Instruments)),
	}
	for i, inst := range d.Instruments {
		out.Instruments[i] = inst.Clone()
	}
	return out
}

func (m Metadata) Clone() Metadata {
	out := m
	out.FXRates = maps.Clone(m.FXRates)
	return out
}

// Clone copies the news pool. NewsItem holds only strings and an
// ExpectedChange value type, so copying the slice is a deep copy.
func (i Instrument) Clone() Instrument {
	out := i
	out.NewsPool = make([]NewsItem, len(i.NewsPool))
	copy(out.NewsPool, i.NewsPool)
	return out
}

func (d Dataset) Instrument(ticker string) (Instrument, bool) {
	for _, inst := range d.Instruments {
		if inst.Ticker == ticker {
			return inst, true
		}
	}
	return Instrument{}, false
}

// MaxRounds is the longest game the dataset can schedule: the smallest news
// pool among its instruments.
func (d Dataset) MaxRounds() int {
	if len(d.Instruments) == 0 {
		return 0
	}
	out := len(d.Instruments[0].NewsPool)
	for _, inst := range d.Instruments[1:] {
		out = min(out, len(inst.NewsPool))
	}
	return out
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
