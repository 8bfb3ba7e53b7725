package engine

import (
	"strconv"
	"strings"
	"time"
)

// Output column names.
const (
	ColStatus    = "Lookup_Status"
	ColTimestamp = "Lookup_Timestamp"
	ColError     = "Error_Message"

	PrefixName  = "Name_"
	PrefixImage = "Image_"
	PrefixB64   = "b64_"
)

// TimestampLayout formats Lookup_Timestamp cells.
const TimestampLayout = time.RFC3339

// Layout is the number of Name_N, Image_N and b64_N columns in an output table.
type Layout struct {
	Names     int
	ImageURLs int
	Images    int
}

// LayoutFor sizes the dynamic columns to the widest row, capped by limit.
func LayoutFor(rows []OutputRow, limit Layout) Layout {
	var l Layout
	for _, r := range rows {
		l.Names = max(l.Names, len(r.Result.Names))
		l.ImageURLs = max(l.ImageURLs, len(r.Result.ImageURLs))
		l.Images = max(l.Images, len(r.Result.Images))
	}
	l.Names = min(l.Names, limit.Names)
	l.ImageURLs = min(l.ImageURLs, limit.ImageURLs)
	l.Images = min(l.Images, limit.Images)
	return l
}

// Header returns the input header followed by the lookup columns.
func (l Layout) Header(input []string) []string {
	h := make([]string, 0, len(input)+l.Width())
	h = append(h, input...)
	h = append(h, ColStatus)
	h = appendNumbered(h, PrefixName, l.Names)
	h = appendNumbered(h, PrefixImage, l.ImageURLs)
	h = appendNumbered(h, PrefixB64, l.Images)
	return append(h, ColTimestamp, ColError)
}

// Width is the number of lookup columns appended to each row.
func (l Layout) Width() int {
	return 3 + l.Names + l.ImageURLs + l.Images
}

// B64Offset is the position of b64_1 within the lookup columns.
func (l Layout) B64Offset() int {
	return 1 + l.Names + l.ImageURLs
}

// Cells renders the lookup columns of row. Image slots that failed are
// left blank; their errors are appended to Error_Message.
func (l Layout) Cells(row OutputRow) []string {
	r := row.Result
	cells := make([]string, 0, l.Width())
	cells = append(cells, string(r.Status))
	cells = appendPadded(cells, r.Names, l.Names)
	cells = appendPadded(cells, r.ImageURLs, l.ImageURLs)

	b64 := make([]string, 0, len(r.Images))
	var slotErrs []string
	for i, img := range r.Images {
		b64 = append(b64, img.Base64)
		if img.Error != "" {
			slotErrs = append(slotErrs, "image "+strconv.Itoa(i+1)+": "+img.Error)
		}
	}
	cells = appendPadded(cells, b64, l.Images)

	ts := ""
	if !r.Timestamp.IsZero() {
		ts = r.Timestamp.Format(TimestampLayout)
	}
	msg := r.Error
	if len(slotErrs) > 0 {
		if msg != "" {
			msg += "; "
		}
		msg += strings.Join(slotErrs, "; ")
	}
	return append(cells, ts, msg)
}

// Row renders passthrough fields padded to inputWidth, then the lookup cells.
func (l Layout) Row(row OutputRow, inputWidth int) []string {
	out := make([]string, 0, inputWidth+l.Width())
	out = appendPadded(out, row.Record.Fields, inputWidth)
	return append(out, l.Cells(row)...)
}

func appendNumbered(dst []string, prefix string, n int) []string {
	for i := 1; i <= n; i++ {
		dst = append(dst, prefix+strconv.Itoa(i))
	}
	return dst
}

// appendPadded appends exactly n values from src, blank-filling or truncating.
func appendPadded(dst, src []string, n int) []string {
	for i := range n {
		if i < len(src) {
			dst = append(dst, src[i])
		} else {
			dst = append(dst, "")
		}
	}
	return dst
}

// Summary counts row outcomes.
type Summary struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	// Errors are rows whose lookup failed after reaching the API.
	Errors int `json:"errors"`
	// Skipped are rows never sent to the API: invalid numbers and quota skips.
	Skipped int `json:"skipped"`
	Pending int `json:"pending"`
}

// Summarize counts outcomes across rows.
func Summarize(rows []OutputRow) Summary {
	s := Summary{Total: len(rows)}
	for _, r := range rows {
		switch r.Result.Status {
		case StatusSuccess:
			s.Success++
		case StatusError:
			if r.Result.Attempts > 0 {
				s.Errors++
			} else {
				s.Skipped++
			}
		case StatusQuotaExceeded:
			s.Skipped++
		default:
			s.Pending++
		}
	}
	return s
}
