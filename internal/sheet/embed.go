package sheet

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"

	"github.com/rshade/phonelookup/internal/engine"
	"github.com/rshade/phonelookup/internal/statefile"
)

// embedConcurrency bounds parallel image work in EmbedImages.
const embedConcurrency = 4

// EmbedStats reports what EmbedImages did.
type EmbedStats struct {
	Rows       int
	Embedded   int
	Downloaded int
	Failed     int
}

// EmbedOptions configures EmbedImages.
type EmbedOptions struct {
	Style  Style
	Logger zerolog.Logger
}

type slotJob struct {
	row    int
	slot   int
	source string
	inline bool
}

type slotResult struct {
	data []byte
	err  error
}

// EmbedImages re-embeds the thumbnails of a results workbook. For each
// row, b64_N cells that already hold data are decoded and resized again;
// empty b64 cells are filled, in order, from that row's Image_N URLs. The
// result is written to out, which may equal in.
func EmbedImages(ctx context.Context, in, out string, src engine.ImageSource, opts EmbedOptions) (EmbedStats, error) {
	if Format(in) != ExtXLSX || Format(out) != ExtXLSX {
		return EmbedStats{}, fmt.Errorf("%w: embedding needs %s files", ErrUnsupportedFormat, ExtXLSX)
	}
	style := opts.Style.normalized()
	log := opts.Logger

	f, err := excelize.OpenFile(in)
	if err != nil {
		return EmbedStats{}, fmt.Errorf("opening workbook %s: %w", in, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	rows, err := f.GetRows(sheet)
	if err != nil {
		return EmbedStats{}, fmt.Errorf("reading sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return EmbedStats{}, fmt.Errorf("%w: %s", ErrNoHeader, in)
	}

	imageCols := numberedColumns(rows[0], engine.PrefixImage)
	b64Cols := numberedColumns(rows[0], engine.PrefixB64)
	if len(b64Cols) == 0 {
		return EmbedStats{}, fmt.Errorf("%w: no %sN columns in %s", ErrMissingColumn, engine.PrefixB64, in)
	}

	stats := EmbedStats{Rows: len(rows) - 1}
	var jobs []slotJob
	for r, row := range rows[1:] {
		var urls []string
		for _, c := range imageCols {
			if v := strings.TrimSpace(cellAt(row, c)); v != "" {
				urls = append(urls, v)
			}
		}
		next := 0
		for k, c := range b64Cols {
			if v := strings.TrimSpace(cellAt(row, c)); v != "" {
				jobs = append(jobs, slotJob{row: r, slot: k, source: v, inline: true})
				continue
			}
			if next < len(urls) {
				jobs = append(jobs, slotJob{row: r, slot: k, source: urls[next]})
				next++
			}
		}
	}

	results := make([]slotResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for i, job := range jobs {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			if job.inline {
				results[i].data, results[i].err = src.FromBase64(job.source)
			} else {
				results[i].data, results[i].err = src.FromURL(gctx, job.source)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	sized := make(map[int]bool)
	for i, job := range jobs {
		excelRow := job.row + 2
		res := results[i]
		if res.err != nil {
			stats.Failed++
			log.Debug().Err(res.err).Int("row", excelRow).Str("source", job.source).Msg("image not embedded")
			continue
		}
		col := b64Cols[job.slot] + 1
		if !job.inline {
			stats.Downloaded++
			cell, cerr := excelize.CoordinatesToCellName(col, excelRow)
			if cerr != nil {
				return stats, cerr
			}
			if err := f.SetCellValue(sheet, cell, base64.StdEncoding.EncodeToString(res.data)); err != nil {
				return stats, fmt.Errorf("writing %s: %w", cell, err)
			}
		}
		if err := addPicture(f, sheet, col, excelRow, res.data); err != nil {
			stats.Failed++
			log.Debug().Err(err).Int("row", excelRow).Msg("image not embedded")
			continue
		}
		stats.Embedded++
		if !sized[excelRow] {
			_ = f.SetRowHeight(sheet, excelRow, style.RowHeight)
			sized[excelRow] = true
		}
	}

	for _, c := range b64Cols {
		name, cerr := excelize.ColumnNumberToName(c + 1)
		if cerr != nil {
			return stats, cerr
		}
		if err := f.SetColWidth(sheet, name, name, style.ColumnWidth); err != nil {
			return stats, fmt.Errorf("sizing column %s: %w", name, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return stats, fmt.Errorf("rendering workbook: %w", err)
	}
	if err := statefile.WriteAtomic(out, buf.Bytes(), 0o644); err != nil {
		return stats, fmt.Errorf("writing %s: %w", out, err)
	}
	return stats, nil
}

// numberedColumns returns the 0-based indexes of prefix1, prefix2, ... in
// header, ordered by their number.
func numberedColumns(header []string, prefix string) []int {
	byNum := make(map[int]int)
	maxN := 0
	for i, h := range header {
		rest, ok := strings.CutPrefix(strings.TrimSpace(h), prefix)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(rest)
		if err != nil || n < 1 {
			continue
		}
		byNum[n] = i
		maxN = max(maxN, n)
	}
	var out []int
	for n := 1; n <= maxN; n++ {
		if i, ok := byNum[n]; ok {
			out = append(out, i)
		}
	}
	return out
}

func cellAt(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
