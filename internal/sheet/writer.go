package sheet

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/rshade/phonelookup/internal/engine"
	"github.com/rshade/phonelookup/internal/statefile"
)

// SheetName is the worksheet written to output workbooks.
const SheetName = "Lookup Results"

// Default thumbnail cell geometry.
const (
	DefaultRowHeight   = 75
	DefaultColumnWidth = 15
)

// Style controls how thumbnails are laid out in a workbook.
type Style struct {
	// Embed places each thumbnail as a picture over its b64_N cell.
	Embed       bool
	RowHeight   float64
	ColumnWidth float64
}

func (s Style) normalized() Style {
	if s.RowHeight <= 0 {
		s.RowHeight = DefaultRowHeight
	}
	if s.ColumnWidth <= 0 {
		s.ColumnWidth = DefaultColumnWidth
	}
	return s
}

// Writer renders batch rows to a file. It implements batch.Persister;
// every call rewrites the whole file through a temp file and rename.
type Writer struct {
	path   string
	header []string
	limits engine.Layout
	style  Style
	logger zerolog.Logger
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithStyle sets the thumbnail layout for workbooks.
func WithStyle(s Style) WriterOption {
	return func(w *Writer) { w.style = s }
}

// WithLogger sets the writer logger.
func WithLogger(l zerolog.Logger) WriterOption {
	return func(w *Writer) { w.logger = l }
}

// NewWriter writes to path, whose extension picks the format. header is
// the input header; limits caps the dynamic lookup columns.
func NewWriter(path string, header []string, limits engine.Layout, opts ...WriterOption) (*Writer, error) {
	switch Format(path) {
	case ExtXLSX, ExtCSV:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	w := &Writer{
		path:   path,
		header: header,
		limits: limits,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.style = w.style.normalized()
	return w, nil
}

// Path returns the output file.
func (w *Writer) Path() string {
	return w.path
}

// Persist writes rows, one per input record.
func (w *Writer) Persist(ctx context.Context, rows []engine.OutputRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	layout := engine.LayoutFor(rows, w.limits)

	var (
		data []byte
		err  error
	)
	if Format(w.path) == ExtCSV {
		data, err = w.renderCSV(rows, layout)
	} else {
		data, err = w.renderXLSX(rows, layout)
	}
	if err != nil {
		return err
	}
	if err := statefile.WriteAtomic(w.path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", w.path, err)
	}
	w.logger.Debug().Str("path", w.path).Int("rows", len(rows)).Msg("output written")
	return nil
}

func (w *Writer) renderCSV(rows []engine.OutputRow, layout engine.Layout) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(layout.Header(w.header)); err != nil {
		return nil, fmt.Errorf("rendering csv: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(layout.Row(row, len(w.header))); err != nil {
			return nil, fmt.Errorf("rendering csv: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("rendering csv: %w", err)
	}
	return buf.Bytes(), nil
}

func (w *Writer) renderXLSX(rows []engine.OutputRow, layout engine.Layout) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, fmt.Errorf("rendering workbook: %w", err)
	}

	if err := setRow(f, 1, layout.Header(w.header)); err != nil {
		return nil, err
	}

	b64Col := len(w.header) + layout.B64Offset() + 1
	styles := make(map[engine.TypedCell]int)
	for i, row := range rows {
		excelRow := i + 2
		cells := layout.Row(row, len(w.header))
		for k := range layout.Images {
			// Text beyond the Excel cell limit is dropped; the picture
			// still carries the image.
			if c := b64Col - 1 + k; len(cells[c]) > excelize.TotalCellChars {
				cells[c] = ""
			}
		}
		if err := setRow(f, excelRow, cells); err != nil {
			return nil, err
		}
		if err := setTypedCells(f, excelRow, row.Record.Typed, len(w.header), styles); err != nil {
			return nil, err
		}
		if w.style.Embed {
			w.embedRow(f, excelRow, b64Col, row.Result.Images, layout.Images)
		}
	}

	if w.style.Embed && layout.Images > 0 {
		if err := sizeImageColumns(f, b64Col, layout.Images, w.style.ColumnWidth); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("rendering workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// embedRow places the row's thumbnails. A thumbnail that cannot be
// embedded is logged and left as text.
func (w *Writer) embedRow(f *excelize.File, excelRow, b64Col int, images []engine.ImagePayload, slots int) {
	embedded := false
	for k, img := range images {
		if k == slots {
			break
		}
		if !img.OK() {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(img.Base64)
		if err != nil {
			w.logger.Debug().Err(err).Int("row", excelRow).Msg("thumbnail is not valid base64")
			continue
		}
		if err := addPicture(f, SheetName, b64Col+k, excelRow, data); err != nil {
			w.logger.Debug().Err(err).Int("row", excelRow).Msg("thumbnail not embedded")
			continue
		}
		embedded = true
	}
	if embedded {
		_ = f.SetRowHeight(SheetName, excelRow, w.style.RowHeight)
	}
}

func setRow(f *excelize.File, excelRow int, cells []string) error {
	cell, err := excelize.CoordinatesToCellName(1, excelRow)
	if err != nil {
		return fmt.Errorf("rendering row %d: %w", excelRow, err)
	}
	values := make([]any, len(cells))
	for i, c := range cells {
		values[i] = c
	}
	if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
		return fmt.Errorf("rendering row %d: %w", excelRow, err)
	}
	return nil
}

// setTypedCells rewrites passthrough cells that were numbers or booleans
// in the input workbook with their raw value and number format. styles
// maps a format to its style id in f.
func setTypedCells(f *excelize.File, excelRow int, typed map[int]engine.TypedCell, width int, styles map[engine.TypedCell]int) error {
	for col, cell := range typed {
		if col >= width {
			continue
		}
		name, err := excelize.CoordinatesToCellName(col+1, excelRow)
		if err != nil {
			return fmt.Errorf("rendering row %d: %w", excelRow, err)
		}
		switch cell.Kind {
		case engine.CellNumber:
			v, parseErr := strconv.ParseFloat(cell.Raw, 64)
			if parseErr != nil {
				continue
			}
			err = f.SetCellFloat(SheetName, name, v, -1, 64)
		case engine.CellBool:
			err = f.SetCellBool(SheetName, name, cell.Raw == "1" || strings.EqualFold(cell.Raw, "true"))
		default:
			continue
		}
		if err != nil {
			return fmt.Errorf("rendering cell %s: %w", name, err)
		}

		format := engine.TypedCell{NumFmt: cell.NumFmt, CustomNumFmt: cell.CustomNumFmt}
		if format == (engine.TypedCell{}) {
			continue
		}
		id, ok := styles[format]
		if !ok {
			st := &excelize.Style{NumFmt: format.NumFmt}
			if format.CustomNumFmt != "" {
				st.CustomNumFmt = &format.CustomNumFmt
			}
			if id, err = f.NewStyle(st); err != nil {
				return fmt.Errorf("rendering cell %s: %w", name, err)
			}
			styles[format] = id
		}
		if err = f.SetCellStyle(SheetName, name, name, id); err != nil {
			return fmt.Errorf("rendering cell %s: %w", name, err)
		}
	}
	return nil
}

// addPicture replaces any picture anchored at the cell with jpeg.
func addPicture(f *excelize.File, sheet string, col, excelRow int, jpeg []byte) error {
	cell, err := excelize.CoordinatesToCellName(col, excelRow)
	if err != nil {
		return err
	}
	_ = f.DeletePicture(sheet, cell)
	return f.AddPictureFromBytes(sheet, cell, &excelize.Picture{
		Extension: ".jpg",
		File:      jpeg,
		Format: &excelize.GraphicOptions{
			AutoFit:         true,
			LockAspectRatio: true,
			Positioning:     "oneCell",
		},
	})
}

func sizeImageColumns(f *excelize.File, firstCol, n int, width float64) error {
	first, err := excelize.ColumnNumberToName(firstCol)
	if err != nil {
		return fmt.Errorf("sizing image columns: %w", err)
	}
	last, err := excelize.ColumnNumberToName(firstCol + n - 1)
	if err != nil {
		return fmt.Errorf("sizing image columns: %w", err)
	}
	if err := f.SetColWidth(SheetName, first, last, width); err != nil {
		return fmt.Errorf("sizing image columns: %w", err)
	}
	return nil
}
