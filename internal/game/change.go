package game

import (
	"encoding/json"
	"fmt"
	"math"
)

// ExpectedChange is the scripted price movement attached to a news item.
// The set of implementations is closed: FixedChange and RangeChange.
type ExpectedChange interface {
	expectedChange()
}

// FixedChange moves the price by exactly Pct (0.05 is +5%).
type FixedChange struct {
	Pct float64
}

// RangeChange draws a uniform percentage between MinPct and MaxPct. The
// bounds may be given in either order.
type RangeChange struct {
	MinPct float64
	MaxPct float64
}

func (FixedChange) expectedChange() {}
func (RangeChange) expectedChange() {}

// Bounds returns the range with min <= max.
func (c RangeChange) Bounds() (float64, float64) {
	return math.Min(c.MinPct, c.MaxPct), math.Max(c.MinPct, c.MaxPct)
}

const (
	changeTypeFixed = "fixed"
	changeTypeRange = "range"
)

type changeWire struct {
	Type   string   `json:"type"`
	Pct    *float64 `json:"pct,omitempty"`
	MinPct *float64 `json:"minPct,omitempty"`
	MaxPct *float64 `json:"maxPct,omitempty"`
}

func (c FixedChange) MarshalJSON() ([]byte, error) {
	return json.Marshal(changeWire{Type: changeTypeFixed, Pct: &c.Pct})
}

func (c RangeChange) MarshalJSON() ([]byte, error) {
	return json.Marshal(changeWire{Type: changeTypeRange, MinPct: &c.MinPct, MaxPct: &c.MaxPct})
}

func parseExpectedChange(raw json.RawMessage) (ExpectedChange, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("%w: expectedChange is missing", ErrMalformedData)
	}
	var w changeWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("%w: expectedChange: %v", ErrMalformedData, err)
	}
	switch w.Type {
	case changeTypeFixed:
		if w.Pct == nil {
			return nil, fmt.Errorf("%w: fixed change needs pct", ErrMalformedData)
		}
		return FixedChange{Pct: *w.Pct}, nil
	case changeTypeRange:
		if w.MinPct == nil || w.MaxPct == nil {
			return nil, fmt.Errorf("%w: range change needs minPct and maxPct", ErrMalformedData)
		}
		return RangeChange{MinPct: *w.MinPct, MaxPct: *w.MaxPct}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownChange, w.Type)
	}
}

func (n *NewsItem) UnmarshalJSON(data []byte) error {
	type plain NewsItem
	var aux struct {
		plain
		ExpectedChange json.RawMessage `json:"expectedChange"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	change, err := parseExpectedChange(aux.ExpectedChange)
	if err != nil {
		return fmt.Errorf("news %q: %w", aux.ID, err)
	}
	*n = NewsItem(aux.plain)
	n.ExpectedChange = change
	return nil
}
