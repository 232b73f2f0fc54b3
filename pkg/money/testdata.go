package money

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
)

// TestDataGenerator generates realistic bank statement fixtures using gofakeit.
type TestDataGenerator struct {
	faker *gofakeit.Faker
}

// NewTestDataGenerator creates a new test data generator with a random seed.
func NewTestDataGenerator() *TestDataGenerator {
	return &TestDataGenerator{faker: gofakeit.New(0)}
}

// NewTestDataGeneratorWithSeed creates a generator with a specific seed for reproducibility.
func NewTestDataGeneratorWithSeed(seed int64) *TestDataGenerator {
	return &TestDataGenerator{faker: gofakeit.New(seed)}
}

// StatementLine is one generated statement row.
type StatementLine struct {
	Date        time.Time
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Balance     decimal.Decimal
	Reference   string
}

var descriptionTemplates = []string{
	"UPI/%s/PAYMENT",
	"NEFT-%s-SALARY",
	"IMPS/P2A/%s",
	"POS %s",
	"ATM WDL/CASH %s",
	"ACH D- %s",
	"CHQ DEP %s",
}

// RandomAmount returns a positive amount between min and max major units, two decimals.
func (g *TestDataGenerator) RandomAmount(min, max float64) decimal.Decimal {
	return decimal.NewFromFloat(g.faker.Price(min, max)).Round(2)
}

// StatementLine generates one line continuing from the given balance.
func (g *TestDataGenerator) StatementLine(balance decimal.Decimal) StatementLine {
	tpl := g.faker.RandomString(descriptionTemplates)
	line := StatementLine{
		Date:        g.faker.DateRange(time.Now().AddDate(-1, 0, 0), time.Now()).Truncate(24 * time.Hour),
		Description: fmt.Sprintf(tpl, g.faker.Company()),
		Reference:   g.faker.Numerify("############"),
	}
	amount := g.RandomAmount(1, 5000)
	if g.faker.Bool() {
		line.Debit = amount
		line.Balance = balance.Sub(amount)
	} else {
		line.Credit = amount
		line.Balance = balance.Add(amount)
	}
	return line
}

// Statement generates count consecutive lines starting from an opening balance.
func (g *TestDataGenerator) Statement(count int) []StatementLine {
	balance := g.RandomAmount(10000, 50000)
	lines := make([]StatementLine, 0, count)
	for i := 0; i < count; i++ {
		line := g.StatementLine(balance)
		balance = line.Balance
		lines = append(lines, line)
	}
	return lines
}

// StatementCSV renders count generated lines as a comma-separated statement
// with a two-line preamble before the header row.
func (g *TestDataGenerator) StatementCSV(count int) []byte {
	var buf bytes.Buffer
	buf.WriteString("Statement of account\n")
	buf.WriteString(fmt.Sprintf("Account No,%s\n", g.faker.Numerify("XXXX########")))

	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"Date", "Narration", "Chq./Ref.No.", "Withdrawal Amt.", "Deposit Amt.", "Closing Balance"})
	for _, line := range g.Statement(count) {
		_ = w.Write([]string{
			line.Date.Format("02/01/2006"),
			line.Description,
			line.Reference,
			blankIfZero(line.Debit),
			blankIfZero(line.Credit),
			line.Balance.StringFixed(2),
		})
	}
	w.Flush()
	return buf.Bytes()
}

func blankIfZero(d decimal.Decimal) string {
	if d.IsZero() {
		return ""
	}
	return d.StringFixed(2)
}
