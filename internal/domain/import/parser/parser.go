// Package parser coerces raw statement cells into typed statement lines.
// Parsing is best-effort: a cell that cannot be read becomes a field fault on
// its line instead of aborting the import.
package parser

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-reconciler/internal/domain/import/sniffer"
	"github.com/FACorreiaa/statement-reconciler/pkg/money"
)

// FieldError is a row-level fault on one field.
type FieldError struct {
	Row     int
	Field   sniffer.Field
	Message string
	Raw     string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("row %d, field %s: %s", e.Row, e.Field, e.Message)
}

// StatementLine is one coerced statement row. Debit and Credit are
// non-negative; exactly one is positive on a valid line.
type StatementLine struct {
	Row         int
	Date        time.Time
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Balance     decimal.NullDecimal
	Reference   string
	Faults      []FieldError
}

// Valid reports whether the line can be persisted. Balance faults are kept
// for display but do not invalidate the line.
func (l *StatementLine) Valid() bool {
	for _, f := range l.Faults {
		if f.Field != sniffer.FieldBalance {
			return false
		}
	}
	return true
}

// Amount is the signed movement: credit minus debit.
func (l *StatementLine) Amount() decimal.Decimal {
	return l.Credit.Sub(l.Debit)
}

// IsDebit reports an outflow.
func (l *StatementLine) IsDebit() bool {
	return l.Debit.IsPositive()
}

// Config drives coercion of one statement layout.
type Config struct {
	Mapping    sniffer.ColumnMapping
	Logic      sniffer.DebitCreditLogic
	DateFormat string
	European   bool
	DayFirst   bool
}

// Result is the coerced body of a statement.
type Result struct {
	Lines       []*StatementLine
	Faults      []FieldError
	TotalRows   int
	ValidRows   int
	SkippedRows int
}

// Coercer turns raw rows into statement lines.
type Coercer struct {
	config Config
}

// NewCoercer creates a Coercer. An empty Logic is inferred from the mapping.
func NewCoercer(cfg Config) *Coercer {
	if cfg.Logic == "" {
		cfg.Logic = cfg.Mapping.InferLogic()
	}
	return &Coercer{config: cfg}
}

// Parse coerces every row after headerRow. Row numbers in faults are 1-based
// positions in the matrix.
func (c *Coercer) Parse(rows [][]string, headerRow int) *Result {
	res := &Result{}
	for i := headerRow + 1; i < len(rows); i++ {
		res.add(c.Line(rows[i], i+1))
	}
	return res
}

func (r *Result) add(line *StatementLine) {
	r.TotalRows++
	if line == nil {
		r.SkippedRows++
		return
	}
	r.Lines = append(r.Lines, line)
	r.Faults = append(r.Faults, line.Faults...)
	if line.Valid() {
		r.ValidRows++
	}
}

// Line coerces a single record. Rows with neither a date nor an amount carry
// no transaction (blank lines, balance footers) and yield nil. A row with an
// amount but no date is kept with a date fault.
func (c *Coercer) Line(record []string, rowNum int) *StatementLine {
	get := func(f sniffer.Field) string {
		idx := c.config.Mapping.Col(f)
		if idx < 0 || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	dateRaw := get(sniffer.FieldDate)
	if dateRaw == "" && get(sniffer.FieldDebit) == "" && get(sniffer.FieldCredit) == "" && get(sniffer.FieldAmount) == "" {
		return nil
	}

	line := &StatementLine{
		Row:         rowNum,
		Description: CleanText(get(sniffer.FieldDescription)),
		Reference:   CleanText(get(sniffer.FieldReference)),
	}

	fault := func(f sniffer.Field, raw, msg string) {
		line.Faults = append(line.Faults, FieldError{Row: rowNum, Field: f, Message: msg, Raw: raw})
	}

	if dateRaw == "" {
		fault(sniffer.FieldDate, dateRaw, "missing date")
	} else if d, err := ParseDate(dateRaw, c.config.DateFormat, c.config.DayFirst); err != nil {
		fault(sniffer.FieldDate, dateRaw, err.Error())
	} else {
		line.Date = d
	}

	switch c.config.Logic {
	case sniffer.LogicSignedAmount:
		c.signedAmount(line, get(sniffer.FieldAmount), fault)
	case sniffer.LogicIndicatorColumn:
		c.indicatorAmount(line, get(sniffer.FieldAmount), get(sniffer.FieldIndicator), fault)
	default:
		c.separateColumns(line, get(sniffer.FieldDebit), get(sniffer.FieldCredit), fault)
	}

	if raw := get(sniffer.FieldBalance); raw != "" {
		if b, err := ParseMoney(raw, c.config.European); err != nil {
			fault(sniffer.FieldBalance, raw, err.Error())
		} else {
			line.Balance = decimal.NewNullDecimal(b)
		}
	}

	return line
}

type faultFunc func(f sniffer.Field, raw, msg string)

func (c *Coercer) separateColumns(line *StatementLine, debitRaw, creditRaw string, fault faultFunc) {
	ok := true
	if debitRaw != "" {
		d, err := ParseMoney(debitRaw, c.config.European)
		if err != nil {
			fault(sniffer.FieldDebit, debitRaw, err.Error())
			ok = false
		}
		line.Debit = d.Abs()
	}
	if creditRaw != "" {
		cr, err := ParseMoney(creditRaw, c.config.European)
		if err != nil {
			fault(sniffer.FieldCredit, creditRaw, err.Error())
			ok = false
		}
		line.Credit = cr.Abs()
	}
	if ok {
		checkDirection(line, debitRaw+"/"+creditRaw, fault)
	}
}

func (c *Coercer) signedAmount(line *StatementLine, raw string, fault faultFunc) {
	v, err := ParseMoney(raw, c.config.European)
	if err != nil {
		fault(sniffer.FieldAmount, raw, err.Error())
		return
	}
	if v.IsNegative() {
		line.Debit = v.Abs()
	} else {
		line.Credit = v
	}
	checkDirection(line, raw, fault)
}

func (c *Coercer) indicatorAmount(line *StatementLine, raw, indicator string, fault faultFunc) {
	v, err := ParseMoney(raw, c.config.European)
	if err != nil {
		fault(sniffer.FieldAmount, raw, err.Error())
		return
	}

	switch Direction(indicator) {
	case DirectionDebit:
		line.Debit = v.Abs()
	case DirectionCredit:
		line.Credit = v.Abs()
	default:
		// no usable indicator: fall back to the sign
		if v.IsNegative() {
			line.Debit = v.Abs()
		} else if indicator != "" {
			fault(sniffer.FieldIndicator, indicator, "unknown debit/credit indicator")
			return
		} else {
			line.Credit = v
		}
	}
	checkDirection(line, raw, fault)
}

func checkDirection(line *StatementLine, raw string, fault faultFunc) {
	switch {
	case line.Debit.IsZero() && line.Credit.IsZero():
		fault(sniffer.FieldAmount, raw, "debit and credit are both zero")
	case line.Debit.IsPositive() && line.Credit.IsPositive():
		fault(sniffer.FieldAmount, raw, "debit and credit are both set")
	}
}

// DirectionKind is the side of an indicator token.
type DirectionKind int

const (
	DirectionUnknown DirectionKind = iota
	DirectionDebit
	DirectionCredit
)

var indicatorTokens = map[string]DirectionKind{
	"DR": DirectionDebit, "D": DirectionDebit, "DEBIT": DirectionDebit, "W": DirectionDebit, "WDL": DirectionDebit,
	"CR": DirectionCredit, "C": DirectionCredit, "CREDIT": DirectionCredit, "DEP": DirectionCredit,
}

// Direction classifies a debit/credit indicator cell.
func Direction(raw string) DirectionKind {
	tok := strings.ToUpper(strings.Trim(strings.TrimSpace(raw), "."))
	return indicatorTokens[tok]
}

// ParseMoney parses an amount cell. Parenthesised values are negative and
// thousands separators are dropped.
func ParseMoney(raw string, european bool) (decimal.Decimal, error) {
	d, err := money.Parse(raw, european)
	if err != nil {
		if errors.Is(err, money.ErrEmptyAmount) {
			return decimal.Zero, fmt.Errorf("missing amount")
		}
		return decimal.Zero, fmt.Errorf("invalid amount %q", raw)
	}
	return d, nil
}

// CleanText collapses whitespace runs to a single space and trims.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
