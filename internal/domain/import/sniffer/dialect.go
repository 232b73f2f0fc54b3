package sniffer

import (
	"strings"
)

// RegionalDialect is the inferred regional formatting of amounts and dates.
type RegionalDialect struct {
	DecimalSeparator   rune    // '.' (US/IN) or ',' (EU)
	ThousandsSeparator rune    // ',' (US/IN) or '.' (EU)
	DayFirst           bool    // DD/MM when true, MM/DD otherwise
	CurrencyHint       string  // ISO code when a symbol was seen
	Confidence         float64 // share of hints agreeing with the verdict
	IsEuropeanFormat   bool    // comma is the decimal separator
}

// ProbeDialect inspects sample rows to infer decimal separators and day/month
// order. Ambiguous inputs keep the dot-decimal, day-first defaults most bank
// exports use.
func ProbeDialect(sampleRows [][]string, amountCols []int, dateCol int) *RegionalDialect {
	dialect := &RegionalDialect{
		DecimalSeparator:   '.',
		ThousandsSeparator: ',',
		DayFirst:           true,
		Confidence:         0.5,
	}

	europeanHints, usHints := 0, 0
	dayFirst, monthFirst := 0, 0

	for _, row := range sampleRows {
		for _, col := range amountCols {
			if col < 0 || col >= len(row) || strings.TrimSpace(row[col]) == "" {
				continue
			}
			switch hint := analyzeAmountFormat(row[col]); {
			case hint > 0:
				europeanHints++
			case hint < 0:
				usHints++
			}
		}

		if dateCol >= 0 && dateCol < len(row) {
			switch analyzeDateOrder(row[dateCol]) {
			case 1:
				dayFirst++
			case -1:
				monthFirst++
			}
		}

		for _, cell := range row {
			switch {
			case strings.Contains(cell, "€") || strings.Contains(cell, "EUR"):
				dialect.CurrencyHint = "EUR"
				europeanHints++
			case strings.Contains(cell, "R$") || strings.Contains(cell, "BRL"):
				dialect.CurrencyHint = "BRL"
				europeanHints++
			case strings.Contains(cell, "₹") || strings.Contains(cell, "INR"):
				dialect.CurrencyHint = "INR"
				usHints++
			case strings.Contains(cell, "$"):
				if dialect.CurrencyHint == "" {
					dialect.CurrencyHint = "USD"
				}
				usHints++
			}
		}
	}

	if europeanHints > usHints {
		dialect.DecimalSeparator = ','
		dialect.ThousandsSeparator = '.'
		dialect.IsEuropeanFormat = true
	}

	if total := europeanHints + usHints; total > 0 {
		winning := max(europeanHints, usHints)
		dialect.Confidence = float64(winning) / float64(total)
	}

	if monthFirst > 0 && dayFirst == 0 {
		dialect.DayFirst = false
	}

	return dialect
}

// analyzeAmountFormat returns >0 for European, <0 for US, 0 for ambiguous
func analyzeAmountFormat(val string) int {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' || r == ',' || r == '.' {
			return r
		}
		return -1
	}, val)

	if cleaned == "" {
		return 0
	}

	lastComma := strings.LastIndex(cleaned, ",")
	lastDot := strings.LastIndex(cleaned, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			return 1 // 1.234,56
		}
		return -1 // 1,234.56
	case lastComma >= 0:
		if len(cleaned)-lastComma-1 <= 2 {
			return 1
		}
		return 0
	case lastDot >= 0:
		if len(cleaned)-lastDot-1 <= 2 {
			return -1
		}
		return 0
	}
	return 0
}

// analyzeDateOrder returns 1 when the first component must be a day (>12),
// -1 when the second must be (month-first), 0 when ambiguous or ISO.
func analyzeDateOrder(dateVal string) int {
	parts := strings.FieldsFunc(strings.TrimSpace(dateVal), func(r rune) bool {
		return r == '/' || r == '-' || r == '.' || r == ' '
	})
	if len(parts) < 2 || len(parts[0]) == 4 {
		return 0
	}

	first, ok1 := leadingInt(parts[0])
	second, ok2 := leadingInt(parts[1])
	switch {
	case ok1 && first > 12 && first <= 31:
		return 1
	case ok1 && ok2 && second > 12 && second <= 31 && first <= 12:
		return -1
	}
	return 0
}

func leadingInt(s string) (int, bool) {
	n, digits := 0, 0
	for _, c := range s {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
		digits++
	}
	return n, digits > 0
}
