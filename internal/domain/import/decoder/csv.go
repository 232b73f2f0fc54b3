package decoder

import (
	"fmt"
	"math"
	"strings"
)

var (
	delimiterCandidates = []rune{',', ';', '\t', '|'}
	quoteCandidates     = []rune{'"', '\'', '`'}
)

// sampleLines is how many non-empty lines feed delimiter and quote detection.
const sampleLines = 10

func decodeCSV(data []byte, opts Options) (*Result, error) {
	text, enc, err := toUTF8(data)
	if err != nil {
		return nil, err
	}

	sample := sampleNonEmpty(text, sampleLines)

	delim := opts.Delimiter
	if delim == 0 {
		delim = DetectDelimiter(sample)
	}
	quote := opts.Quote
	if quote == 0 {
		quote = DetectQuote(sample, delim)
	}

	records, openQuote := tokenize(text, delim, quote)

	var warnings []Warning
	rows := make([][]string, 0, len(records))
	for i, rec := range records {
		if !opts.KeepEmptyRows && isEmptyRow(rec) {
			continue
		}
		if i == openQuote {
			warnings = append(warnings, Warning{
				Row:     len(rows),
				Message: fmt.Sprintf("unterminated %c quote runs to end of file", quote),
			})
		}
		rows = append(rows, rec)
	}

	return &Result{
		Format:    FormatCSV,
		Rows:      rows,
		Delimiter: delim,
		Quote:     quote,
		Encoding:  enc,
		Warnings:  warnings,
	}, nil
}

func sampleNonEmpty(text string, n int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
		if len(out) == n {
			break
		}
	}
	return out
}

// DetectDelimiter scores each candidate by its mean count per line weighted by
// consistency across lines (1 - coefficient of variation, floored at zero).
// Comma wins ties and the no-signal case.
func DetectDelimiter(lines []string) rune {
	best := ','
	bestScore := 0.0
	if len(lines) == 0 {
		return best
	}

	counts := make([]float64, len(lines))
	for _, d := range delimiterCandidates {
		total := 0.0
		for i, line := range lines {
			counts[i] = float64(countOutsideQuotes(line, d, '"'))
			total += counts[i]
		}
		if total == 0 {
			continue
		}
		mean := total / float64(len(lines))
		variance := 0.0
		for _, c := range counts {
			variance += (c - mean) * (c - mean)
		}
		spread := math.Sqrt(variance/float64(len(lines))) / mean
		score := mean * math.Max(0, 1-spread)
		if score > bestScore {
			best = d
			bestScore = score
		}
	}
	return best
}

// DetectQuote counts balanced quote pairs that sit on field boundaries for
// each candidate and picks the most frequent. Double quote is the default.
func DetectQuote(lines []string, delim rune) rune {
	best := '"'
	bestPairs := 0
	for _, q := range quoteCandidates {
		pairs := 0
		for _, line := range lines {
			n := boundaryQuotes(line, q, delim)
			if n > 0 && n%2 == 0 {
				pairs += n / 2
			}
		}
		if pairs > bestPairs {
			best = q
			bestPairs = pairs
		}
	}
	return best
}

// boundaryQuotes counts quote runes that open or close a field.
func boundaryQuotes(line string, quote, delim rune) int {
	runes := []rune(line)
	n := 0
	for i, r := range runes {
		if r != quote {
			continue
		}
		atStart := i == 0 || runes[i-1] == delim || (runes[i-1] == ' ' && i > 1 && runes[i-2] == delim)
		atEnd := i == len(runes)-1 || runes[i+1] == delim
		if atStart || atEnd {
			n++
		}
	}
	return n
}

func countOutsideQuotes(line string, target, quote rune) int {
	inQuotes := false
	n := 0
	for _, r := range line {
		switch {
		case r == quote:
			inQuotes = !inQuotes
		case r == target && !inQuotes:
			n++
		}
	}
	return n
}

// Tokenize splits text into records. Quoted fields may contain the delimiter
// and newlines; a doubled quote inside a quoted field is a literal quote.
// A quote that does not open a field is kept as a literal character.
func Tokenize(text string, delim, quote rune) [][]string {
	records, _ := tokenize(text, delim, quote)
	return records
}

// tokenize also reports the index of the record holding a quote still open
// at end of input, or -1.
func tokenize(text string, delim, quote rune) ([][]string, int) {
	var (
		records  [][]string
		record   []string
		field    strings.Builder
		inQuotes bool
		openedIn int
		started  bool // current field has non-blank content or was quoted
		dirty    bool // current record has any field
	)

	endField := func() {
		record = append(record, field.String())
		field.Reset()
		started = false
		dirty = true
	}
	endRecord := func() {
		if dirty || field.Len() > 0 || started {
			endField()
			records = append(records, record)
		}
		record = nil
		dirty = false
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if inQuotes {
			if r == quote {
				if i+1 < len(runes) && runes[i+1] == quote {
					field.WriteRune(quote)
					i++
					continue
				}
				inQuotes = false
				continue
			}
			field.WriteRune(r)
			continue
		}

		switch {
		case r == quote && !started && strings.TrimSpace(field.String()) == "":
			field.Reset()
			inQuotes = true
			started = true
			openedIn = len(records)
		case r == delim:
			endField()
		case r == '\r':
			if i+1 < len(runes) && runes[i+1] == '\n' {
				continue
			}
			endRecord()
		case r == '\n':
			endRecord()
		default:
			field.WriteRune(r)
			if r != ' ' && r != '\t' {
				started = true
			}
		}
	}
	endRecord()

	if inQuotes {
		return records, openedIn
	}
	return records, -1
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
