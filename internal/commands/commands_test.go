package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/gocarina/gocsv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const statement = "Date,Description,Debit,Credit\n" +
	"15-01-2024,UPI Payment to Merchant,100.00,\n" +
	"16-01-2024,ATM WDL/CASH 0042,2000.00,\n" +
	"18-01-2024,Bad amount row,abc,\n" +
	"17-01-2024,NEFT SALARY ACME,,50000.00\n"

const rules = `
rules:
  - name: cash withdrawal
    priority: 20
    patterns: ["ATM WDL", "cash wdl"]
    account: Cash
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestAnalyze_PrintsSummaryAndReport(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "jan.csv", statement)
	rulesFile := writeFile(t, dir, "rules.yaml", rules)
	report := filepath.Join(dir, "report.csv")

	out, err := runCommand(t, "analyze", file,
		"--bank-account", "HDFC Current",
		"--rules", rulesFile,
		"--report", report)
	require.NoError(t, err)

	assert.Contains(t, out, "jan.csv (csv")
	assert.Contains(t, out, "4 total, 3 valid, 1 faults")
	assert.Contains(t, out, "ATM WDL/CASH 0042")
	assert.Contains(t, out, "Cash")

	f, err := os.Open(report)
	require.NoError(t, err)
	defer f.Close()

	var rows []*reportRow
	require.NoError(t, gocsv.UnmarshalFile(f, &rows))
	require.Len(t, rows, 4)

	byOutcome := map[string]int{}
	for _, r := range rows {
		byOutcome[r.Outcome]++
	}
	assert.Equal(t, 3, byOutcome[outcomeParsed])
	assert.Equal(t, 1, byOutcome[outcomeFault])

	assert.Equal(t, "2000.00", rows[1].Debit)
	assert.Equal(t, "Cash", rows[1].Account)
	assert.InDelta(t, 50.0, rows[1].Confidence, 1e-9)
	assert.Equal(t, "UPI", rows[0].PaymentMode)
}

func TestAnalyze_JSON(t *testing.T) {
	file := writeFile(t, t.TempDir(), "jan.csv", statement)

	out, err := runCommand(t, "analyze", file, "--bank-account", "HDFC Current", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"Filename": "jan.csv"`)
	assert.Contains(t, out, `"ProposedProfile"`)
}

func TestAnalyze_Errors(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "jan.csv", statement)

	_, err := runCommand(t, "analyze", file)
	assert.ErrorContains(t, err, "bank-account")

	_, err = runCommand(t, "analyze", filepath.Join(dir, "missing.csv"), "--bank-account", "HDFC")
	assert.ErrorContains(t, err, "failed to read statement")

	unmappable := writeFile(t, dir, "colours.csv", "Name,Colour\nfoo,blue\n")
	_, err = runCommand(t, "analyze", unmappable, "--bank-account", "HDFC")
	assert.Error(t, err)
}

func TestPost_RejectsBadIDs(t *testing.T) {
	_, err := runCommand(t, "post", "not-a-uuid")
	assert.ErrorContains(t, err, "invalid transaction id")

	_, err = runCommand(t, "delete-batch", "42")
	assert.ErrorContains(t, err, "invalid batch id")

	_, err = runCommand(t, "batch-file", "42")
	assert.ErrorContains(t, err, "invalid batch id")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
