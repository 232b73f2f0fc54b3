// Package sniffer locates the header row of a statement matrix and maps header
// cells to semantic fields by keyword scoring. It also derives the header
// signature used to recognise previously seen layouts.
package sniffer

import (
	"errors"
	"sort"
	"strings"
	"unicode"
)

// Field is a semantic statement column.
type Field string

const (
	FieldDate        Field = "date"
	FieldDescription Field = "description"
	FieldDebit       Field = "debit"
	FieldCredit      Field = "credit"
	FieldBalance     Field = "balance"
	FieldReference   Field = "bankReference"
	FieldAmount      Field = "amount"
	FieldIndicator   Field = "indicator"
)

// Fields lists every field in tie-break order.
var Fields = []Field{
	FieldDate, FieldDescription, FieldDebit, FieldCredit,
	FieldBalance, FieldReference, FieldAmount, FieldIndicator,
}

// Multi-language keyword dictionaries, compared after Normalize.
var fieldKeywords = map[Field][]string{
	FieldDate: {
		"date", "dt", "txn date", "txn dt", "tran date", "transaction date", "value date", "value dt", "posting date",
		"booking date", "data", "data mov", "data valor", "fecha", "datum",
	},
	FieldDescription: {
		"description", "narration", "particulars", "details", "transaction details",
		"remarks", "memo", "payee", "descrição", "descricao", "descripción", "descripcion",
	},
	FieldDebit: {
		"debit", "withdrawal", "withdrawals", "withdrawal amt", "withdrawal amount", "dr",
		"paid out", "money out", "debit amount", "débito", "debito", "cargo",
	},
	FieldCredit: {
		"credit", "deposit", "deposits", "deposit amt", "deposit amount", "cr",
		"paid in", "money in", "credit amount", "crédito", "credito", "abono",
	},
	FieldBalance: {
		"balance", "closing balance", "running balance", "available balance", "balance amt", "saldo",
	},
	FieldReference: {
		"reference", "ref", "ref no", "reference no", "chq ref no", "chq no", "cheque no",
		"utr", "utr no", "transaction id", "referência", "referencia",
	},
	FieldAmount: {
		"amount", "transaction amount", "txn amount", "valor", "importe", "montante", "value",
	},
	FieldIndicator: {
		"dr cr", "cr dr", "debit credit", "indicator", "type", "d c", "txn type",
	},
}

var (
	ErrEmptyFile      = errors.New("file is empty")
	ErrNoHeadersFound = errors.New("could not find data headers")
)

// Normalize lowercases s, collapses runs of non-alphanumerics into a single
// space and trims.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}

// KeywordScore scores a normalized header against a normalized keyword:
// 3 for an exact match, 2 if the header contains the keyword as whole words,
// 1 if the keyword contains the header as whole words, else 0.
func KeywordScore(header, keyword string) int {
	if header == "" || keyword == "" {
		return 0
	}
	switch {
	case header == keyword:
		return 3
	case containsWords(header, keyword):
		return 2
	case containsWords(keyword, header):
		return 1
	}
	return 0
}

func containsWords(s, sub string) bool {
	return strings.Contains(" "+s+" ", " "+sub+" ")
}

// FieldScore sums KeywordScore over every keyword of f.
func FieldScore(header string, f Field) int {
	h := Normalize(header)
	total := 0
	for _, kw := range fieldKeywords[f] {
		total += KeywordScore(h, Normalize(kw))
	}
	return total
}

// bestField returns the highest scoring field for a header cell.
func bestField(header string) (Field, int) {
	var (
		best      Field
		bestScore int
	)
	for _, f := range Fields {
		if s := FieldScore(header, f); s > bestScore {
			best, bestScore = f, s
		}
	}
	return best, bestScore
}

// CellScore is the best keyword score of a cell across all fields.
func CellScore(cell string) int {
	_, s := bestField(cell)
	return s
}

const (
	// DefaultScanRows is how many non-blank rows the locator inspects.
	DefaultScanRows = 20
	// minHeaderScore is the weakest score still accepted as a header.
	minHeaderScore = 2
)

// HeaderMatch is the located header row.
type HeaderMatch struct {
	Row     int      // index into the matrix
	Score   int      // keyword score of the row
	Headers []string // trimmed header cells
	Found   bool     // false when the locator fell back to row 0
}

// LocateHeader scores up to maxRows non-blank rows and returns the best one.
// When no row reaches the minimum score, row 0 is treated as the header.
func LocateHeader(rows [][]string, maxRows int) (HeaderMatch, error) {
	if len(rows) == 0 {
		return HeaderMatch{}, ErrEmptyFile
	}
	if maxRows <= 0 {
		maxRows = DefaultScanRows
	}

	bestRow, bestScore, scanned := -1, 0, 0
	for i, row := range rows {
		if scanned >= maxRows {
			break
		}
		if isBlank(row) {
			continue
		}
		scanned++

		score := 0
		for _, cell := range row {
			if strings.TrimSpace(cell) == "" {
				continue
			}
			score += CellScore(cell)
		}
		if score > bestScore {
			bestRow, bestScore = i, score
		}
	}

	match := HeaderMatch{Row: bestRow, Score: bestScore, Found: true}
	if bestRow < 0 || bestScore < minHeaderScore {
		match = HeaderMatch{Row: 0, Score: bestScore}
	}
	match.Headers = trimCells(rows[match.Row])
	return match, nil
}

// ColumnMapping maps fields to 0-based column indices.
type ColumnMapping map[Field]int

// Has reports whether f is mapped.
func (m ColumnMapping) Has(f Field) bool {
	_, ok := m[f]
	return ok
}

// Col returns the column for f or -1.
func (m ColumnMapping) Col(f Field) int {
	if idx, ok := m[f]; ok {
		return idx
	}
	return -1
}

// DebitCreditLogic is how a layout expresses the direction of money.
type DebitCreditLogic string

const (
	LogicSeparateColumns DebitCreditLogic = "SeparateColumns"
	LogicSignedAmount    DebitCreditLogic = "SignedAmount"
	LogicIndicatorColumn DebitCreditLogic = "IndicatorColumn"
)

// InferLogic derives the debit/credit convention from a mapping.
func (m ColumnMapping) InferLogic() DebitCreditLogic {
	switch {
	case m.Has(FieldDebit) || m.Has(FieldCredit):
		return LogicSeparateColumns
	case m.Has(FieldAmount) && m.Has(FieldIndicator):
		return LogicIndicatorColumn
	default:
		return LogicSignedAmount
	}
}

// HasAmountColumn reports whether any amount-bearing column is mapped.
func (m ColumnMapping) HasAmountColumn() bool {
	return m.Has(FieldDebit) || m.Has(FieldCredit) || m.Has(FieldAmount)
}

// Confidence scores an auto-detected mapping in [0,1]:
// ((required/2) + amount + 0.2*balance + 0.1*reference) / 2, capped at 1.
func Confidence(m ColumnMapping) float64 {
	required := 0
	if m.Has(FieldDate) {
		required++
	}
	if m.Has(FieldDescription) {
		required++
	}

	sum := float64(required) / 2
	if m.HasAmountColumn() {
		sum++
	}
	if m.Has(FieldBalance) {
		sum += 0.2
	}
	if m.Has(FieldReference) {
		sum += 0.1
	}

	c := sum / 2
	if c > 1 {
		c = 1
	}
	return c
}

type candidate struct {
	field Field
	col   int
	score int
}

// DetectColumns maps header cells to fields. Each column proposes its best
// field; proposals are sorted by score and assigned greedily so that no
// column or field is used twice.
func DetectColumns(headers []string) ColumnMapping {
	var cands []candidate
	for col, h := range headers {
		if strings.TrimSpace(h) == "" {
			continue
		}
		if f, s := bestField(h); s > 0 {
			cands = append(cands, candidate{field: f, col: col, score: s})
		}
	}

	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		return cands[i].col < cands[j].col
	})

	mapping := make(ColumnMapping)
	usedCols := make(map[int]bool)
	for _, c := range cands {
		if mapping.Has(c.field) || usedCols[c.col] {
			continue
		}
		mapping[c.field] = c.col
		usedCols[c.col] = true
	}
	return mapping
}

// Signature is the order-preserving "|" join of normalized, non-empty header cells.
func Signature(headers []string) string {
	parts := make([]string, 0, len(headers))
	for _, h := range headers {
		if n := Normalize(h); n != "" {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, "|")
}

// SignatureTokens splits a signature back into its header tokens.
func SignatureTokens(sig string) []string {
	if sig == "" {
		return nil
	}
	return strings.Split(sig, "|")
}

// HasDateLikeHeader reports whether any header cell scores against the date dictionary.
func HasDateLikeHeader(headers []string) bool {
	for _, h := range headers {
		if FieldScore(h, FieldDate) > 0 {
			return true
		}
	}
	return false
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func trimCells(row []string) []string {
	out := make([]string, len(row))
	for i, c := range row {
		out[i] = strings.TrimSpace(c)
	}
	return out
}
