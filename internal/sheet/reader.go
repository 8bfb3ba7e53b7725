// Package sheet reads input tables and writes lookup results as CSV or
// Excel workbooks with embedded thumbnails.
package sheet

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/rshade/phonelookup/internal/engine"
)

// Supported file extensions.
const (
	ExtXLSX = ".xlsx"
	ExtCSV  = ".csv"
)

// Errors returned by ReadTable.
var (
	ErrMissingColumn     = errors.New("required column not found")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrNoHeader          = errors.New("input has no header row")
)

// Table is an input file: its header and one record per data row, in
// file order. Every record is as wide as the widest row; rows are padded
// with blanks and columns without a header are named Column_N.
type Table struct {
	Path         string
	Header       []string
	NumberColumn int
	Records      []engine.InputRecord
}

// Format returns the lowercase extension of path.
func Format(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// ReadTable loads path and locates numberColumn, matched case-insensitively.
// Nothing is returned for files that cannot be used, so a run never starts
// on a malformed input.
func ReadTable(path, numberColumn string) (*Table, error) {
	var (
		rows  [][]string
		typed []map[int]engine.TypedCell
		err   error
	)
	switch Format(path) {
	case ExtXLSX:
		rows, typed, err = readXLSX(path)
	case ExtCSV:
		rows, err = readCSV(path)
	default:
		return nil, fmt.Errorf("%w: %s (want %s or %s)", ErrUnsupportedFormat, filepath.Ext(path), ExtXLSX, ExtCSV)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 || isBlank(rows[0]) {
		return nil, fmt.Errorf("%w: %s", ErrNoHeader, path)
	}

	named := trimAll(rows[0])
	col := -1
	for i, h := range named {
		if strings.EqualFold(h, strings.TrimSpace(numberColumn)) {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("%w: %q in %s (columns: %s)", ErrMissingColumn, numberColumn, path, strings.Join(named, ", "))
	}

	width := len(named)
	for _, row := range rows[1:] {
		width = max(width, len(row))
	}
	header := fillHeader(named, width)

	t := &Table{Path: path, Header: header, NumberColumn: col}
	t.Records = make([]engine.InputRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		fields := make([]string, width)
		copy(fields, row)
		rec := engine.InputRecord{
			Index:  i,
			Number: strings.TrimSpace(fields[col]),
			Fields: fields,
		}
		if i+1 < len(typed) {
			rec.Typed = typed[i+1]
		}
		t.Records = append(t.Records, rec)
	}
	return t, nil
}

// fillHeader extends header to width and names every blank column
// Column_N (1-based), so cells under an unlabelled column are kept.
func fillHeader(header []string, width int) []string {
	out := make([]string, width)
	copy(out, header)
	seen := make(map[string]bool, width)
	for _, h := range out {
		if h != "" {
			seen[h] = true
		}
	}
	for i, h := range out {
		if h != "" {
			continue
		}
		name := fmt.Sprintf("Column_%d", i+1)
		for n := 2; seen[name]; n++ {
			name = fmt.Sprintf("Column_%d_%d", i+1, n)
		}
		seen[name] = true
		out[i] = name
	}
	return out
}

// Fingerprint hashes the header and every cell. A checkpoint is only
// reused for an input with the same fingerprint.
func (t *Table) Fingerprint() string {
	h := sha256.New()
	write := func(cells []string) {
		for _, c := range cells {
			_, _ = io.WriteString(h, c)
			_, _ = h.Write([]byte{0x1f})
		}
		_, _ = h.Write([]byte{0x1e})
	}
	write(t.Header)
	for _, r := range t.Records {
		write(r.Fields)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// readXLSX returns the active sheet's display text and, per row, the
// cells that hold numbers or booleans.
func readXLSX(path string) ([][]string, []map[int]engine.TypedCell, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening workbook %s: %w", path, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("reading sheet %q of %s: %w", sheet, path, err)
	}
	raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, nil, fmt.Errorf("reading sheet %q of %s: %w", sheet, path, err)
	}
	return rows, typedCells(f, sheet, raw), nil
}

// typedCells collects the non-text cells of every data row. Cells whose
// type cannot be read are treated as text.
func typedCells(f *excelize.File, sheet string, raw [][]string) []map[int]engine.TypedCell {
	styles := make(map[int]engine.TypedCell)
	out := make([]map[int]engine.TypedCell, len(raw))
	for r := 1; r < len(raw); r++ {
		for c, v := range raw[r] {
			if v == "" {
				continue
			}
			name, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				continue
			}
			kind, ok := cellKind(f, sheet, name, v)
			if !ok {
				continue
			}
			cell := numberFormat(f, sheet, name, styles)
			cell.Kind, cell.Raw = kind, v
			if out[r] == nil {
				out[r] = make(map[int]engine.TypedCell)
			}
			out[r][c] = cell
		}
	}
	return out
}

func cellKind(f *excelize.File, sheet, name, raw string) (engine.CellKind, bool) {
	typ, err := f.GetCellType(sheet, name)
	if err != nil {
		return "", false
	}
	switch typ {
	case excelize.CellTypeUnset, excelize.CellTypeNumber:
		if _, perr := strconv.ParseFloat(raw, 64); perr == nil {
			return engine.CellNumber, true
		}
	case excelize.CellTypeBool:
		return engine.CellBool, true
	default:
	}
	return "", false
}

// numberFormat returns the cell's number format, memoized by style id.
func numberFormat(f *excelize.File, sheet, name string, cache map[int]engine.TypedCell) engine.TypedCell {
	id, err := f.GetCellStyle(sheet, name)
	if err != nil || id <= 0 {
		return engine.TypedCell{}
	}
	if cell, ok := cache[id]; ok {
		return cell
	}
	var cell engine.TypedCell
	if st, styleErr := f.GetStyle(id); styleErr == nil && st != nil {
		cell.NumFmt = st.NumFmt
		if st.CustomNumFmt != nil {
			cell.CustomNumFmt = *st.CustomNumFmt
		}
	}
	cache[id] = cell
	return cell
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening csv %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv %s: %w", path, err)
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return rows, nil
}

func trimAll(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.TrimSpace(c)
	}
	return out
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
