package game

import (
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	mathrand "math/rand/v2"
	"strconv"
	"strings"
	"unicode/utf16"
)

// RNG yields floats in [0, 1). *Mulberry32 and *math/rand/v2.Rand both
// satisfy it.
type RNG interface {
	Float64() float64
}

// Seed fixes every random draw of a game. The zero Seed means "unseeded".
// A seed is either numeric or text; its String form is what per-round seeds
// are derived from, so 42 and "42" differ only in how the first generator is
// keyed.
type Seed struct {
	text    string
	numeric bool
	value   int64
	set     bool
}

func NumericSeed(v int64) Seed {
	return Seed{text: strconv.FormatInt(v, 10), numeric: true, value: v, set: true}
}

func StringSeed(s string) Seed {
	return Seed{text: s, set: true}
}

func (s Seed) IsZero() bool    { return !s.set }
func (s Seed) IsNumeric() bool { return s.numeric }
func (s Seed) String() string  { return s.text }

// ParseSeed treats an integer literal as a numeric seed and anything else as
// text. Empty input is the zero Seed.
func ParseSeed(raw string) Seed {
	if raw == "" {
		return Seed{}
	}
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return NumericSeed(v)
	}
	return StringSeed(raw)
}

func (s Seed) key() uint32 {
	if s.numeric {
		return uint32(s.value)
	}
	return hashString(s.text)
}

func (s Seed) forRound(index int) Seed {
	return StringSeed(s.text + ":" + strconv.Itoa(index))
}

func (s Seed) MarshalJSON() ([]byte, error) {
	switch {
	case !s.set:
		return []byte("null"), nil
	case s.numeric:
		return []byte(strconv.FormatInt(s.value, 10)), nil
	default:
		return json.Marshal(s.text)
	}
}

func (s *Seed) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	switch {
	case raw == "null":
		*s = Seed{}
	case strings.HasPrefix(raw, `"`):
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*s = StringSeed(text)
	default:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("seed must be an integer or a string: %w", errors.Unwrap(err))
		}
		*s = NumericSeed(v)
	}
	return nil
}

// hashString reduces text to 32 bits with h = 31*h + c over UTF-16 code
// units, wrapping at 32 bits.
func hashString(s string) uint32 {
	var h uint32
	for _, c := range utf16.Encode([]rune(s)) {
		h = 31*h + uint32(c)
	}
	return h
}

// Mulberry32 is a 32-bit state generator. The same seed yields the same
// sequence on every platform.
type Mulberry32 struct {
	state uint32
}

func NewRNG(seed Seed) *Mulberry32 {
	return &Mulberry32{state: seed.key()}
}

func (m *Mulberry32) Float64() float64 {
	m.state += 0x6D2B79F5
	t := m.state
	x := (t ^ (t >> 15)) * (t | 1)
	x ^= x + (x^(x>>7))*(x|61)
	return float64(x^(x>>14)) / 4294967296.0
}

// NewEntropyRNG returns a generator keyed from crypto/rand, for casual
// unseeded play.
func NewEntropyRNG() RNG {
	var key [32]byte
	_, _ = crand.Read(key[:])
	return mathrand.New(mathrand.NewChaCha8(key))
}
