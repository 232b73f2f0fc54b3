// Package dedupe computes the deterministic keys that stop a statement line
// from being imported twice. Storage enforces uniqueness; this package only
// derives the key.
package dedupe

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-reconciler/internal/domain/import/sniffer"
)

// Mode is the key derivation in use for a line.
type Mode string

const (
	ModeContent   Mode = "content"
	ModeReference Mode = "reference"
)

// Input is the subset of a statement line that identifies it.
type Input struct {
	Date        time.Time
	Amount      decimal.Decimal
	Description string
	BankAccount string
	Reference   string
}

// Engine derives dedupe keys. With PreferReference set, a non-empty bank
// reference replaces amount and description in the key.
type Engine struct {
	PreferReference bool
	Seed            uint32
}

// NewEngine creates an engine that prefers bank references when present.
func NewEngine() *Engine {
	return &Engine{PreferReference: true}
}

// Key returns the dedupe key and the mode used to derive it.
func (e *Engine) Key(in Input) (string, Mode) {
	if e.PreferReference {
		if ref := Normalize(in.Reference); ref != "" {
			return Hash(ReferenceMaterial(in.Date, ref), e.Seed), ModeReference
		}
	}
	return Hash(ContentMaterial(in), e.Seed), ModeContent
}

// ContentMaterial is "{ISO date}|{amount 2dp}|{description}|{account}".
func ContentMaterial(in Input) string {
	return strings.Join([]string{
		in.Date.Format("2006-01-02"),
		in.Amount.StringFixed(2),
		Normalize(in.Description),
		Normalize(in.BankAccount),
	}, "|")
}

// ReferenceMaterial is "{ISO date}|{reference}".
func ReferenceMaterial(date time.Time, normalizedRef string) string {
	return date.Format("2006-01-02") + "|" + normalizedRef
}

// Normalize lowercases, collapses punctuation and whitespace runs and trims.
func Normalize(s string) string {
	return sniffer.Normalize(s)
}

// Hash is a 53-bit non-cryptographic string hash rendered as lowercase hex.
// Two 32-bit multiply-xor lanes run over the UTF-16 code units of s and are
// folded into one 53-bit integer.
func Hash(s string, seed uint32) string {
	h1 := uint32(0xdeadbeef) ^ seed
	h2 := uint32(0x41c6ce57) ^ seed

	for _, r := range s {
		for _, ch := range utf16Units(r) {
			h1 = (h1 ^ ch) * 2654435761
			h2 = (h2 ^ ch) * 1597334677
		}
	}

	h1 = (h1 ^ (h1 >> 16)) * 2246822507
	h1 ^= (h2 ^ (h2 >> 13)) * 3266489909
	h2 = (h2 ^ (h2 >> 16)) * 2246822507
	h2 ^= (h1 ^ (h1 >> 13)) * 3266489909

	v := uint64(2097151&h2)<<32 | uint64(h1)
	return strconv.FormatUint(v, 16)
}

func utf16Units(r rune) []uint32 {
	if r < 0x10000 {
		return []uint32{uint32(r)}
	}
	r -= 0x10000
	return []uint32{uint32(0xD800 + (r>>10)&0x3FF), uint32(0xDC00 + r&0x3FF)}
}
