package posting

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidVoucher    = errors.New("invalid voucher")
	ErrUnbalancedVoucher = errors.New("voucher debits and credits do not balance")
)

// Validation rule names.
const (
	RuleBalance   = "balance"
	RuleOneSide   = "one-side"
	RuleAccount   = "account"
	RuleLineCount = "line-count"
	RuleParty     = "party"
	RulePrecision = "precision"
	RuleDirection = "direction"
)

// ValidationError describes a single voucher rule violation.
type ValidationError struct {
	Rule        string `json:"rule"`
	Line        int    `json:"line,omitempty"`
	Description string `json:"description"`
}

func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s [line %d]: %s", e.Rule, e.Line, e.Description)
	}
	return fmt.Sprintf("%s: %s", e.Rule, e.Description)
}

func (e ValidationError) Unwrap() error {
	if e.Rule == RuleBalance {
		return ErrUnbalancedVoucher
	}
	return ErrInvalidVoucher
}

// ValidationErrors is every violation found on one voucher.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

func (errs ValidationErrors) Unwrap() []error {
	out := make([]error, len(errs))
	for i, e := range errs {
		out[i] = e
	}
	return out
}

var hundred = decimal.NewFromInt(100)

// ValidateVoucher checks a voucher before it is handed to the ledger.
func ValidateVoucher(v Voucher) ValidationErrors {
	var errs ValidationErrors

	lines := v.Lines()
	if len(lines) != 2 {
		errs = append(errs, ValidationError{
			Rule:        RuleLineCount,
			Description: fmt.Sprintf("expected 2 lines, got %d", len(lines)),
		})
	}

	if p, ok := v.(Payment); ok {
		if p.Party == "" {
			errs = append(errs, ValidationError{Rule: RuleParty, Description: "payment requires a party"})
		}
		if p.Direction != DirectionReceive && p.Direction != DirectionPay {
			errs = append(errs, ValidationError{Rule: RuleDirection, Description: fmt.Sprintf("unknown direction %q", p.Direction)})
		}
	}

	totalDebit := decimal.Zero
	totalCredit := decimal.Zero
	for i, l := range lines {
		n := i + 1
		totalDebit = totalDebit.Add(l.Debit)
		totalCredit = totalCredit.Add(l.Credit)

		if strings.TrimSpace(l.Account) == "" {
			errs = append(errs, ValidationError{Rule: RuleAccount, Line: n, Description: "account is empty"})
		}
		if l.Debit.IsNegative() || l.Credit.IsNegative() || l.Debit.IsPositive() == l.Credit.IsPositive() {
			errs = append(errs, ValidationError{Rule: RuleOneSide, Line: n, Description: "line must have exactly one positive debit or credit"})
		}
		for _, amt := range []decimal.Decimal{l.Debit, l.Credit} {
			if !amt.Mul(hundred).Equal(amt.Mul(hundred).Floor()) {
				errs = append(errs, ValidationError{Rule: RulePrecision, Line: n, Description: fmt.Sprintf("%s has more than 2 decimal places", amt)})
			}
		}
	}

	if !totalDebit.Equal(totalCredit) {
		errs = append(errs, ValidationError{
			Rule:        RuleBalance,
			Description: fmt.Sprintf("debits (%s) != credits (%s)", totalDebit.StringFixed(2), totalCredit.StringFixed(2)),
		})
	}
	return errs
}
