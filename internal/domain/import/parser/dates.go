package parser

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidDate = errors.New("invalid date")

var isoLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// Fallback layouts tried after ISO and the profile format. The month-first
// block is moved ahead of the day-first block for MM/DD dialects.
var (
	dayFirstLayouts = []string{
		"02-01-2006",
		"02/01/2006",
		"02.01.2006",
		"2-1-2006",
		"2/1/2006",
		"02-01-06",
		"02/01/06",
		"02/01/2006 15:04",
		"02/01/2006 15:04:05",
	}
	monthFirstLayouts = []string{
		"01/02/2006",
		"01-02-2006",
		"1/2/2006",
		"01/02/06",
		"01/02/2006 15:04",
	}
	namedMonthLayouts = []string{
		"02-Jan-2006",
		"02 Jan 2006",
		"02-Jan-06",
		"02 Jan 06",
		"2 Jan 2006",
		"Jan 02, 2006",
		"Jan 2, 2006",
		"02-January-2006",
		"02 January 2006",
		"2006/01/02",
	}
)

// Layouts returns the full fallback chain for a dialect.
func Layouts(dayFirst bool) []string {
	out := make([]string, 0, len(dayFirstLayouts)+len(monthFirstLayouts)+len(namedMonthLayouts))
	if dayFirst {
		out = append(out, dayFirstLayouts...)
		out = append(out, monthFirstLayouts...)
	} else {
		out = append(out, monthFirstLayouts...)
		out = append(out, dayFirstLayouts...)
	}
	return append(out, namedMonthLayouts...)
}

// ParseDate tries ISO-8601 first, then the profile layout, then the fallback
// chain. The first layout that parses wins.
func ParseDate(raw, layout string, dayFirst bool) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidDate)
	}

	for _, l := range isoLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return dateOnly(t), nil
		}
	}

	if layout != "" {
		if t, err := time.Parse(layout, s); err == nil {
			return dateOnly(t), nil
		}
	}

	// abbreviated months arrive in any case ("15-JAN-2024")
	titled := titleMonth(s)
	for _, l := range Layouts(dayFirst) {
		if t, err := time.Parse(l, s); err == nil {
			return dateOnly(t), nil
		}
		if titled != s {
			if t, err := time.Parse(l, titled); err == nil {
				return dateOnly(t), nil
			}
		}
	}

	return time.Time{}, fmt.Errorf("%w: unrecognized format %q", ErrInvalidDate, s)
}

// DetectDateFormat returns the first fallback layout that parses every
// non-empty sample, or "" when the samples are ISO or mixed.
func DetectDateFormat(samples []string, dayFirst bool) string {
	var vals []string
	for _, s := range samples {
		if s = strings.TrimSpace(s); s != "" {
			vals = append(vals, titleMonth(s))
		}
	}
	if len(vals) == 0 {
		return ""
	}

	if allParse(vals, "2006-01-02") {
		return ""
	}
	for _, l := range Layouts(dayFirst) {
		if allParse(vals, l) {
			return l
		}
	}
	return ""
}

func allParse(vals []string, layout string) bool {
	for _, v := range vals {
		if _, err := time.Parse(layout, v); err != nil {
			return false
		}
	}
	return true
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// titleMonth rewrites alphabetic runs as Title case so "JAN" and "jan" match "Jan".
func titleMonth(s string) string {
	b := []byte(s)
	start := true
	changed := false
	for i, c := range b {
		isLetter := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		if !isLetter {
			start = true
			continue
		}
		want := c
		if start && c >= 'a' && c <= 'z' {
			want = c - 32
		} else if !start && c >= 'A' && c <= 'Z' {
			want = c + 32
		}
		if want != c {
			b[i] = want
			changed = true
		}
		start = false
	}
	if !changed {
		return s
	}
	return string(b)
}
