// Package money provides currency-safe amounts backed by go-money, and the
// locale-tolerant parser used for raw statement cells.
package money

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Common currency codes (ISO-4217)
const (
	USD = "USD"
	EUR = "EUR"
	GBP = "GBP"
	INR = "INR"
	BRL = "BRL"
	JPY = "JPY"
)

var (
	// ErrEmptyAmount is returned when a cell holds no digits at all.
	ErrEmptyAmount = errors.New("empty amount")
	// ErrInvalidAmount is returned when the cleaned cell is not a decimal number.
	ErrInvalidAmount = errors.New("invalid amount")
)

// Money represents a monetary value in minor units with its currency.
type Money struct {
	m *money.Money
}

// New creates Money from minor units (cents, paise).
func New(amountMinor int64, currencyCode string) *Money {
	return &Money{m: money.New(amountMinor, currencyCode)}
}

// NewFromDecimal creates Money from a decimal major-unit value, rounding half
// away from zero to the currency's fraction. Unknown codes fall back to USD.
func NewFromDecimal(amount decimal.Decimal, currencyCode string) *Money {
	currency := money.GetCurrency(currencyCode)
	if currency == nil {
		currencyCode = USD
		currency = money.GetCurrency(USD)
	}
	multiplier := decimal.New(1, int32(currency.Fraction))
	minor := amount.Mul(multiplier).Round(0).IntPart()
	return New(minor, currencyCode)
}

// Zero returns a zero Money value for the given currency
func Zero(currencyCode string) *Money {
	return New(0, currencyCode)
}

// Amount returns the amount in minor units
func (m *Money) Amount() int64 {
	if m == nil || m.m == nil {
		return 0
	}
	return m.m.Amount()
}

// Currency returns the ISO-4217 currency code
func (m *Money) Currency() string {
	if m == nil || m.m == nil {
		return ""
	}
	return m.m.Currency().Code
}

func (m *Money) IsZero() bool {
	return m == nil || m.m == nil || m.m.IsZero()
}

func (m *Money) IsNegative() bool {
	return m != nil && m.m != nil && m.m.IsNegative()
}

// Abs returns the absolute value
func (m *Money) Abs() *Money {
	if m == nil || m.m == nil {
		return nil
	}
	return &Money{m: m.m.Absolute()}
}

// Negate returns the value with its sign flipped
func (m *Money) Negate() *Money {
	if m == nil || m.m == nil {
		return nil
	}
	return &Money{m: m.m.Negative()}
}

// Add returns m + other. Both values must share a currency.
func (m *Money) Add(other *Money) (*Money, error) {
	if m == nil || other == nil {
		return nil, errors.New("cannot add nil money")
	}
	sum, err := m.m.Add(other.m)
	if err != nil {
		return nil, fmt.Errorf("failed to add %s and %s: %w", m.Currency(), other.Currency(), err)
	}
	return &Money{m: sum}, nil
}

// Equals reports whether both values have the same amount and currency.
func (m *Money) Equals(other *Money) bool {
	if m == nil || other == nil {
		return m == other
	}
	eq, err := m.m.Equals(other.m)
	return err == nil && eq
}

// Display returns a formatted string for display (e.g., "₹1,234.56")
func (m *Money) Display() string {
	if m == nil || m.m == nil {
		return ""
	}
	return m.m.Display()
}

// String returns the amount as a fixed decimal string (e.g., "1234.56")
func (m *Money) String() string {
	if m == nil || m.m == nil {
		return "0.00"
	}
	return m.ToDecimal().StringFixed(int32(m.m.Currency().Fraction))
}

// ToDecimal converts to major units.
func (m *Money) ToDecimal() decimal.Decimal {
	if m == nil || m.m == nil {
		return decimal.Zero
	}
	divisor := decimal.New(1, int32(m.m.Currency().Fraction))
	return decimal.NewFromInt(m.m.Amount()).Div(divisor)
}

var currencyTokens = []string{"R$", "US$", "$", "€", "£", "¥", "₹", "RS.", "RS", "INR", "USD", "EUR", "GBP", "BRL"}

// Parse converts a raw statement cell into a decimal. Thousands separators,
// whitespace and currency markers are stripped; "(12.50)", "-12.50",
// "12.50-" and "12.50 Dr" are negative. With european set, "." groups thousands and ","
// is the decimal separator.
func Parse(raw string, european bool) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, ErrEmptyAmount
	}

	negative := false
	upper := strings.ToUpper(s)
	switch {
	case strings.HasSuffix(upper, "DR"):
		negative = true
		upper = strings.TrimSuffix(upper, "DR")
	case strings.HasSuffix(upper, "CR"):
		upper = strings.TrimSuffix(upper, "CR")
	}
	for _, tok := range currencyTokens {
		upper = strings.ReplaceAll(upper, tok, "")
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '\'' {
			return -1
		}
		return r
	}, upper)

	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = !negative
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = strings.TrimPrefix(s, "-")
	} else if strings.HasSuffix(s, "-") {
		negative = !negative
		s = strings.TrimSuffix(s, "-")
	}
	s = strings.TrimPrefix(s, "+")

	if s == "" || strings.Trim(s, ".,") == "" {
		return decimal.Zero, ErrEmptyAmount
	}

	if european {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}
