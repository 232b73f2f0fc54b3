// Package normalizer tags statement lines with a mode of payment and pulls a
// counterparty name out of bank narrations.
package normalizer

import (
	"regexp"
	"strings"
)

// PaymentMode is the normalized mode-of-payment tag.
type PaymentMode string

const (
	ModeUPI        PaymentMode = "UPI"
	ModeNEFT       PaymentMode = "NEFT"
	ModeRTGS       PaymentMode = "RTGS"
	ModeIMPS       PaymentMode = "IMPS"
	ModeCash       PaymentMode = "Cash"
	ModeCheque     PaymentMode = "Cheque"
	ModeCard       PaymentMode = "Card"
	ModeNACH       PaymentMode = "NACH"
	ModeNetBanking PaymentMode = "Net Banking"
	ModeWallet     PaymentMode = "Wallet"
	ModeInterest   PaymentMode = "Interest"
	ModeCharges    PaymentMode = "Bank Charges"
	ModeUnknown    PaymentMode = ""
)

// ModePattern maps a narration pattern to a payment mode.
type ModePattern struct {
	Pattern *regexp.Regexp
	Mode    PaymentMode
}

// PaymentModeDetector tags descriptions with a payment mode. Patterns are
// tried in order; the first match wins.
type PaymentModeDetector struct {
	patterns []ModePattern
}

// NewPaymentModeDetector creates a detector with the common bank narration patterns.
func NewPaymentModeDetector() *PaymentModeDetector {
	return &PaymentModeDetector{patterns: defaultModePatterns()}
}

// Detect returns the payment mode for a description, or ModeUnknown.
func (d *PaymentModeDetector) Detect(description string) PaymentMode {
	upper := strings.ToUpper(description)
	for _, p := range d.patterns {
		if p.Pattern.MatchString(upper) {
			return p.Mode
		}
	}
	return ModeUnknown
}

// AddPattern appends a custom pattern, tried after the built-in ones.
func (d *PaymentModeDetector) AddPattern(pattern string, mode PaymentMode) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	d.patterns = append(d.patterns, ModePattern{Pattern: re, Mode: mode})
	return nil
}

func defaultModePatterns() []ModePattern {
	return []ModePattern{
		{regexp.MustCompile(`\bUPI\b|@[A-Z]{2,}\b|\bBHIM\b`), ModeUPI},
		{regexp.MustCompile(`\bNEFT\b`), ModeNEFT},
		{regexp.MustCompile(`\bRTGS\b`), ModeRTGS},
		{regexp.MustCompile(`\bIMPS\b|\bMMT\b`), ModeIMPS},
		{regexp.MustCompile(`\bNACH\b|\bECS\b|\bACH\b|\bSI\s+DEBIT\b|\bAUTO\s*DEBIT\b`), ModeNACH},
		{regexp.MustCompile(`\bATM\b|\bCASH\b|\bCSH\b|\bWDL\b`), ModeCash},
		{regexp.MustCompile(`\bCHQ\b|\bCHEQUE\b|\bCHECK\b|\bCLG\b`), ModeCheque},
		{regexp.MustCompile(`\bPOS\b|\bCARD\b|\bVISA\b|\bMASTERCARD\b|\bRUPAY\b|\bDEBIT\s+CARD\b`), ModeCard},
		{regexp.MustCompile(`\bNET\s*BANKING\b|\bNETBANKING\b|\bINB\b|\bIB\s+FUNDS\b|\bBIL/`), ModeNetBanking},
		{regexp.MustCompile(`\bPAYTM\b|\bPHONEPE\b|\bWALLET\b|\bAMAZON\s*PAY\b|\bMOBIKWIK\b`), ModeWallet},
		{regexp.MustCompile(`\bINT\.?\s*(PD|CR|CREDIT)\b|\bINTEREST\b`), ModeInterest},
		{regexp.MustCompile(`\bCHARGES?\b|\bCHRG\b|\bFEE\b|\bGST\b|\bSMS\s+ALERT\b|\bAMC\b`), ModeCharges},
	}
}

var (
	refPattern   = regexp.MustCompile(`\b\d{6,}\b`)
	vpaPattern   = regexp.MustCompile(`[A-Za-z0-9._-]+@[A-Za-z0-9]+`)
	spacePattern = regexp.MustCompile(`\s+`)
	splitPattern = regexp.MustCompile(`[/\-:*|]+`)
)

// narration tokens that never name a counterparty
var noiseSegments = map[string]bool{
	"UPI": true, "NEFT": true, "RTGS": true, "IMPS": true, "P2A": true, "P2M": true, "P2P": true,
	"POS": true, "ATM": true, "WDL": true, "CASH": true, "ACH": true, "D": true, "C": true, "CR": true, "DR": true,
	"NACH": true, "ECS": true, "CHQ": true, "DEP": true, "PAYMENT": true, "TRANSFER": true, "TRF": true,
	"MMT": true, "INB": true, "BIL": true, "ONL": true, "REF": true, "TXN": true, "PAY": true, "SALARY": true,
}

// ExtractCounterparty pulls the most likely party name out of a bank
// narration such as "UPI/ACME STORES/PAYMENT". It returns "" when only noise remains.
func ExtractCounterparty(description string) string {
	cleaned := vpaPattern.ReplaceAllString(description, " ")
	cleaned = refPattern.ReplaceAllString(cleaned, " ")

	best := ""
	for _, seg := range splitPattern.Split(cleaned, -1) {
		seg = strings.TrimSpace(spacePattern.ReplaceAllString(seg, " "))
		if seg == "" || noiseSegments[strings.ToUpper(seg)] || !hasLetters(seg, 2) {
			continue
		}
		words := strings.Fields(seg)
		kept := words[:0]
		for _, w := range words {
			if !noiseSegments[strings.ToUpper(w)] && hasLetters(w, 1) {
				kept = append(kept, w)
			}
		}
		if len(kept) == 0 {
			continue
		}
		seg = strings.Join(kept, " ")
		if len(seg) > len(best) {
			best = seg
		}
	}
	return titleCase(best)
}

func hasLetters(s string, n int) bool {
	count := 0
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			count++
			if count >= n {
				return true
			}
		}
	}
	return false
}

// titleCase converts a string to title case
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		if len(word) > 0 {
			words[i] = strings.ToUpper(string(word[0])) + strings.ToLower(word[1:])
		}
	}
	return strings.Join(words, " ")
}
