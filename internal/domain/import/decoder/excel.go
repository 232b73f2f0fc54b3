package decoder

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// decodeExcel materializes the first sheet as a row-major matrix. Dates are
// rendered as ISO-8601, numbers as decimal strings and booleans as "0"/"1".
func decodeExcel(data []byte, opts Options) (*Result, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoData
	}
	sheet := sheets[0]

	raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}

	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}

	r := &cellRenderer{f: f, sheet: sheet, date1904: date1904, dateStyles: make(map[int]bool)}
	rows := make([][]string, 0, len(raw))
	for ri, row := range raw {
		cells := make([]string, len(row))
		for ci, v := range row {
			cells[ci] = r.render(ci, ri, v)
		}
		if !opts.KeepEmptyRows && isEmptyRow(cells) {
			continue
		}
		rows = append(rows, cells)
	}

	return &Result{
		Format: FormatExcel,
		Rows:   rows,
	}, nil
}

type cellRenderer struct {
	f          *excelize.File
	sheet      string
	date1904   bool
	dateStyles map[int]bool
}

func (r *cellRenderer) render(col, row int, raw string) string {
	if raw == "" {
		return ""
	}
	axis, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return raw
	}

	cellType, _ := r.f.GetCellType(r.sheet, axis)
	switch cellType {
	case excelize.CellTypeBool:
		if raw == "1" || strings.EqualFold(raw, "true") {
			return "1"
		}
		return "0"
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeFormula, excelize.CellTypeError:
		return raw
	case excelize.CellTypeDate:
		return isoDate(raw)
	}

	d, err := decimal.NewFromString(raw)
	if err != nil {
		return raw
	}
	if r.isDateStyled(axis) {
		t, err := excelize.ExcelDateToTime(d.InexactFloat64(), r.date1904)
		if err == nil {
			if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
				return t.Format("2006-01-02")
			}
			return t.Format("2006-01-02T15:04:05")
		}
	}
	return d.String()
}

func (r *cellRenderer) isDateStyled(axis string) bool {
	styleID, err := r.f.GetCellStyle(r.sheet, axis)
	if err != nil || styleID == 0 {
		return false
	}
	if cached, ok := r.dateStyles[styleID]; ok {
		return cached
	}

	isDate := false
	if style, err := r.f.GetStyle(styleID); err == nil && style != nil {
		switch {
		case style.CustomNumFmt != nil:
			isDate = isDateFormatCode(*style.CustomNumFmt)
		case style.NumFmt >= 14 && style.NumFmt <= 22, style.NumFmt >= 45 && style.NumFmt <= 47:
			isDate = true
		}
	}
	r.dateStyles[styleID] = isDate
	return isDate
}

// isDateFormatCode reports whether a custom number format renders a date,
// ignoring quoted literals and bracketed sections.
func isDateFormatCode(code string) bool {
	inQuote, inBracket := false, false
	for _, c := range strings.ToLower(code) {
		switch {
		case c == '"':
			inQuote = !inQuote
		case c == '[' && !inQuote:
			inBracket = true
		case c == ']' && !inQuote:
			inBracket = false
		case inQuote || inBracket:
		case c == 'y' || c == 'd':
			return true
		}
	}
	return false
}

// isoDate trims an ISO-8601 timestamp cell down to its date when it has no time.
func isoDate(raw string) string {
	if t, ok := strings.CutSuffix(raw, "T00:00:00Z"); ok {
		return t
	}
	if t, ok := strings.CutSuffix(raw, "T00:00:00"); ok {
		return t
	}
	return raw
}
