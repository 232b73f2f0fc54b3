package commands

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/FACorreiaa/statement-reconciler/internal/domain/import/repository"
	importservice "github.com/FACorreiaa/statement-reconciler/internal/domain/import/service"
)

// Report outcomes.
const (
	outcomeParsed    = "parsed"
	outcomeInserted  = "inserted"
	outcomeDuplicate = "duplicate"
	outcomeFault     = "fault"
)

type reportRow struct {
	Row          int     `csv:"row"`
	Outcome      string  `csv:"outcome"`
	Date         string  `csv:"date"`
	Description  string  `csv:"description"`
	Debit        string  `csv:"debit"`
	Credit       string  `csv:"credit"`
	Balance      string  `csv:"balance"`
	Reference    string  `csv:"reference"`
	PaymentMode  string  `csv:"payment_mode"`
	Account      string  `csv:"account"`
	Counterparty string  `csv:"counterparty"`
	Confidence   float64 `csv:"confidence"`
	Error        string  `csv:"error"`
}

func transactionRow(t *repository.BankTransaction, outcome string) *reportRow {
	row := &reportRow{
		Row:          t.RowNumber,
		Outcome:      outcome,
		Date:         t.Date.Format(time.DateOnly),
		Description:  t.Description,
		Debit:        t.Debit.StringFixed(2),
		Credit:       t.Credit.StringFixed(2),
		Reference:    t.BankReference,
		PaymentMode:  t.PaymentMode,
		Account:      t.SuggestedAccount,
		Counterparty: t.SuggestedCounterparty,
		Confidence:   t.SuggestionConfidence,
	}
	if t.Balance.Valid {
		row.Balance = t.Balance.Decimal.StringFixed(2)
	}
	return row
}

func faultRows(a *importservice.Analysis) []*reportRow {
	rows := make([]*reportRow, 0, len(a.Faults))
	for _, f := range a.Faults {
		rows = append(rows, &reportRow{
			Row:     f.Row,
			Outcome: outcomeFault,
			Error:   f.Error(),
		})
	}
	return rows
}

func analysisRows(a *importservice.Analysis) []*reportRow {
	rows := make([]*reportRow, 0, len(a.Candidates)+len(a.Faults))
	for _, t := range a.Candidates {
		rows = append(rows, transactionRow(t, outcomeParsed))
	}
	return append(rows, faultRows(a)...)
}

func importRows(res *importservice.ImportResult) []*reportRow {
	rows := make([]*reportRow, 0, len(res.Inserted)+len(res.Duplicates))
	for _, t := range res.Inserted {
		rows = append(rows, transactionRow(t, outcomeInserted))
	}
	for _, t := range res.Duplicates {
		rows = append(rows, transactionRow(t, outcomeDuplicate))
	}
	return append(rows, faultRows(res.Analysis)...)
}

func writeReport(path string, rows []*reportRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	defer f.Close()

	if err := gocsv.MarshalFile(&rows, f); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func printSummary(w io.Writer, a *importservice.Analysis) {
	fmt.Fprintf(w, "File:        %s (%s", a.Filename, a.Format)
	if a.Encoding != "" {
		fmt.Fprintf(w, ", %s", a.Encoding)
	}
	fmt.Fprintln(w, ")")
	if a.Resolution != nil {
		fmt.Fprintf(w, "Mapping:     %s, %s (confidence %.2f)\n", a.Resolution.Source, a.Resolution.Logic, a.Resolution.Confidence)
	}
	fmt.Fprintf(w, "Header row:  %d %v\n", a.HeaderRow, a.Headers)
	if a.DateFormat != "" {
		fmt.Fprintf(w, "Date format: %s\n", a.DateFormat)
	}
	fmt.Fprintf(w, "Rows:        %d total, %d valid, %d faults, %d duplicates, %d categorized\n",
		a.TotalRows, a.ValidRows, len(a.Faults), a.Duplicates, a.Matched)
	if a.ProposedProfile != nil {
		fmt.Fprintf(w, "Profile:     new layout %q would be learned\n", a.ProposedProfile.HeaderSignature)
	} else if a.ProposalError != "" {
		fmt.Fprintf(w, "Profile:     not learned (%s)\n", a.ProposalError)
	}
	for _, warn := range a.Warnings {
		fmt.Fprintf(w, "Warning:     %s\n", warn)
	}
}

func printTransactions(w io.Writer, txns []*repository.BankTransaction) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tDATE\tDESCRIPTION\tDEBIT\tCREDIT\tMODE\tACCOUNT\tCONF")
	for _, t := range txns {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%.0f\n",
			t.RowNumber,
			t.Date.Format(time.DateOnly),
			truncate(t.Description, 40),
			t.Debit.StringFixed(2),
			t.Credit.StringFixed(2),
			t.PaymentMode,
			t.SuggestedAccount,
			t.SuggestionConfidence)
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
