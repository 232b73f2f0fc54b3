// Package decoder turns raw statement bytes (CSV or spreadsheet) into a
// rectangular matrix of string cells. It has no knowledge of banking semantics.
package decoder

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	ErrNoData            = errors.New("no data found")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrLegacyExcel is returned for BIFF (OLE2) workbooks.
	ErrLegacyExcel = fmt.Errorf("%w: binary .xls workbook, save it as .xlsx or .csv", ErrUnsupportedFormat)
)

var (
	zipMagic  = []byte("PK\x03\x04")
	ole2Magic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// Format identifies how a file was decoded.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatExcel Format = "xlsx"
)

// Warning is a non-fatal observation about a decoded row.
type Warning struct {
	Row     int // 0-based matrix row
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("row %d: %s", w.Row, w.Message)
}

// Result is the decoded statement matrix and how it was read.
type Result struct {
	Format    Format
	Rows      [][]string
	Delimiter rune // CSV only
	Quote     rune // CSV only
	Encoding  string
	Warnings  []Warning
}

// Options tunes decoding. The zero value drops empty rows and auto-detects
// delimiter and quote.
type Options struct {
	KeepEmptyRows bool
	Delimiter     rune
	Quote         rune
}

// Decode sniffs the file extension and decodes data accordingly.
func Decode(filename string, data []byte) (*Result, error) {
	return DecodeWithOptions(filename, data, Options{})
}

// DecodeWithOptions is Decode with explicit options.
func DecodeWithOptions(filename string, data []byte, opts Options) (*Result, error) {
	if len(data) == 0 {
		return nil, ErrNoData
	}

	var (
		res *Result
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".csv", ".txt", ".tsv":
		res, err = decodeCSV(data, opts)
	case ".xlsx", ".xlsm":
		res, err = decodeExcel(data, opts)
	case ".xls":
		// Banks label OOXML workbooks, BIFF workbooks and tab-separated text
		// exports alike as .xls, so the content decides.
		switch {
		case bytes.HasPrefix(data, zipMagic):
			res, err = decodeExcel(data, opts)
		case bytes.HasPrefix(data, ole2Magic):
			return nil, ErrLegacyExcel
		default:
			res, err = decodeCSV(data, opts)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return nil, ErrNoData
	}
	return res, nil
}

// Fit pads short rows and truncates long rows after the header to the
// header's column count, returning one warning per adjusted row.
func Fit(rows [][]string, headerIdx int) ([][]string, []Warning) {
	if headerIdx < 0 || headerIdx >= len(rows) {
		return rows, nil
	}
	width := len(rows[headerIdx])
	var warnings []Warning

	out := make([][]string, len(rows))
	copy(out, rows)
	for i := headerIdx + 1; i < len(out); i++ {
		row := out[i]
		switch {
		case len(row) < width:
			padded := make([]string, width)
			copy(padded, row)
			out[i] = padded
			warnings = append(warnings, Warning{Row: i, Message: fmt.Sprintf("padded %d missing cells", width-len(row))})
		case len(row) > width:
			warnings = append(warnings, Warning{Row: i, Message: fmt.Sprintf("truncated %d extra cells", len(row)-width)})
			out[i] = row[:width]
		}
	}
	return out, warnings
}
