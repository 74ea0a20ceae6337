package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Cents is a currency amount in minor units. It is encoded in JSON as a
// decimal amount ("72.50") so clients keep working with dollars.
type Cents int64

// MaxAmount bounds any decoded amount, in either direction. It keeps every
// amount well inside int64 cents so sums never wrap.
var MaxAmount = decimal.New(1, 12)

// ErrAmountOutOfRange is returned when a decoded amount exceeds MaxAmount.
var ErrAmountOutOfRange = errors.New("amount out of range")

// ParseCents parses a decimal amount ("12.5", "1e2") into cents, rounding
// half away from zero.
func ParseCents(s string) (Cents, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return centsFromDecimal(d)
}

// CentsFromFloat converts a decimal amount to cents, rounding half away from
// zero. Out-of-range amounts are an error.
func CentsFromFloat(amount float64) (Cents, error) {
	return centsFromDecimal(decimal.NewFromFloat(amount))
}

// MustCents is CentsFromFloat for literal amounts; it panics when out of range.
func MustCents(amount float64) Cents {
	c, err := CentsFromFloat(amount)
	if err != nil {
		panic(err)
	}
	return c
}

func centsFromDecimal(d decimal.Decimal) (Cents, error) {
	if d.Abs().GreaterThan(MaxAmount) {
		return 0, fmt.Errorf("%w: %s", ErrAmountOutOfRange, d.String())
	}
	return Cents(d.Shift(2).Round(0).IntPart()), nil
}

// Decimal returns the amount in major units.
func (c Cents) Decimal() decimal.Decimal { return decimal.New(int64(c), -2) }

// Float returns the decimal amount.
func (c Cents) Float() float64 { return c.Decimal().InexactFloat64() }

func (c Cents) String() string { return c.Decimal().StringFixed(2) }

func (c Cents) MarshalJSON() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Cents) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := ParseCents(s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}
