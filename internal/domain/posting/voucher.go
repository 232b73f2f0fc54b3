package posting

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// VoucherType names the kind of ledger document a posting creates.
type VoucherType string

const (
	VoucherPayment      VoucherType = "Payment"
	VoucherJournalEntry VoucherType = "Journal Entry"
)

// Direction of a Payment voucher.
type Direction string

const (
	DirectionReceive Direction = "Receive"
	DirectionPay     Direction = "Pay"
)

// Line is one leg of a voucher. Exactly one of Debit or Credit is positive.
type Line struct {
	Account string
	Party   string
	Debit   decimal.Decimal
	Credit  decimal.Decimal
}

// Header carries the fields shared by every voucher.
type Header struct {
	TransactionID uuid.UUID
	PostingDate   time.Time
	Currency      string
	Reference     string
	Remark        string
}

// Voucher is a Payment or a JournalEntry.
type Voucher interface {
	Type() VoucherType
	Meta() Header
	Lines() []Line
	// Amount is the absolute value moved.
	Amount() decimal.Decimal
	isVoucher()
}

// Payment moves money between the bank account and a counterparty.
type Payment struct {
	Header
	Direction    Direction
	Party        string
	BankAccount  string
	PartyAccount string
	Value        decimal.Decimal
}

func (p Payment) Type() VoucherType       { return VoucherPayment }
func (p Payment) Meta() Header            { return p.Header }
func (p Payment) Amount() decimal.Decimal { return p.Value }
func (Payment) isVoucher()                {}

// Lines debits the bank on Receive and credits it on Pay.
func (p Payment) Lines() []Line {
	bank := Line{Account: p.BankAccount}
	party := Line{Account: p.PartyAccount, Party: p.Party}
	if p.Direction == DirectionReceive {
		bank.Debit = p.Value
		party.Credit = p.Value
	} else {
		party.Debit = p.Value
		bank.Credit = p.Value
	}
	return []Line{bank, party}
}

// JournalEntry is a two-line entry between the bank and a category account.
type JournalEntry struct {
	Header
	Entries [2]Line
}

func (j JournalEntry) Type() VoucherType { return VoucherJournalEntry }
func (j JournalEntry) Meta() Header      { return j.Header }
func (j JournalEntry) Lines() []Line     { return j.Entries[:] }
func (JournalEntry) isVoucher()          {}

func (j JournalEntry) Amount() decimal.Decimal {
	total := decimal.Zero
	for _, l := range j.Entries {
		total = total.Add(l.Debit)
	}
	return total
}

// VoucherRef identifies a voucher created by the ledger.
type VoucherRef struct {
	Number string
	Type   VoucherType
}
