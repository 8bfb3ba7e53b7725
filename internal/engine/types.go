// Package engine holds the lookup data model and the per-row processor that
// turns one input record into one output row.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rshade/phonelookup/internal/usage"
)

// Status is the outcome of processing one row.
type Status string

// Row statuses as they appear in the Lookup_Status column.
const (
	StatusPending       Status = "Pending"
	StatusSuccess       Status = "Success"
	StatusError         Status = "Error"
	StatusQuotaExceeded Status = "Quota Exceeded"
)

// InputRecord is one data row of the source table. Fields holds every cell
// in header order, including the number column; Number is that cell.
// Typed holds, by column, workbook cells that are not text.
type InputRecord struct {
	Index  int               `json:"index"`
	Number string            `json:"number"`
	Fields []string          `json:"fields"`
	Typed  map[int]TypedCell `json:"typed,omitempty"`
}

// CellKind is the workbook type of a non-text cell.
type CellKind string

// Cell kinds kept for passthrough columns.
const (
	CellNumber CellKind = "number"
	CellBool   CellKind = "bool"
)

// TypedCell is a workbook cell's raw value and number format, so numbers
// and dates are written back as numbers rather than their display text.
type TypedCell struct {
	Kind CellKind `json:"kind"`
	Raw  string   `json:"raw"`
	// NumFmt is a built-in format id; CustomNumFmt a format code.
	NumFmt       int    `json:"num_fmt,omitempty"`
	CustomNumFmt string `json:"custom_num_fmt,omitempty"`
}

// ImagePayload is one thumbnail slot. Source is the URL it came from, or
// SourceInline for a payload the provider returned directly.
type ImagePayload struct {
	Source string `json:"source"`
	Base64 string `json:"base64,omitempty"`
	Error  string `json:"error,omitempty"`
}

// SourceInline marks an ImagePayload decoded from a provider base64 field.
const SourceInline = "inline"

// OK reports whether the slot holds an image.
func (p ImagePayload) OK() bool {
	return p.Base64 != "" && p.Error == ""
}

// LookupResult is the outcome of querying one number.
type LookupResult struct {
	Status    Status         `json:"status"`
	Names     []string       `json:"names,omitempty"`
	ImageURLs []string       `json:"image_urls,omitempty"`
	Images    []ImagePayload `json:"images,omitempty"`
	Error     string         `json:"error,omitempty"`
	// Attempts is the number of HTTP requests made. Zero means the API
	// was never called and no usage was consumed.
	Attempts  int       `json:"attempts"`
	Timestamp time.Time `json:"timestamp"`

	// InlineImages are raw provider base64 payloads, consumed by the
	// processor when it fills Images. Not persisted.
	InlineImages []string `json:"-"`
}

// OutputRow is an input record joined with its lookup result.
type OutputRow struct {
	Record InputRecord  `json:"record"`
	Result LookupResult `json:"result"`
}

// PendingRow returns the placeholder for a record not processed yet.
func PendingRow(rec InputRecord) OutputRow {
	return OutputRow{Record: rec, Result: LookupResult{Status: StatusPending}}
}

// QuotaRow returns the row for a record skipped because the monthly limit
// was reached.
func QuotaRow(rec InputRecord, limit int, at time.Time) OutputRow {
	return OutputRow{
		Record: rec,
		Result: LookupResult{
			Status:    StatusQuotaExceeded,
			Error:     fmt.Sprintf("monthly limit of %d lookups reached", limit),
			Timestamp: at,
		},
	}
}

// ErrorResult builds an error result that made no API call.
func ErrorResult(msg string, at time.Time) LookupResult {
	return LookupResult{Status: StatusError, Error: msg, Timestamp: at}
}

// Lookuper queries the provider for one normalized number. It never fails;
// problems are reported in the result.
type Lookuper interface {
	Lookup(ctx context.Context, number string) LookupResult
}

// UsageCounter is the quota bookkeeping the processor needs.
type UsageCounter interface {
	RecordCall() (usage.Record, error)
	IsOverLimit(limit int) bool
}

// ImageSource turns image references into JPEG thumbnail bytes.
type ImageSource interface {
	FromURL(ctx context.Context, url string) ([]byte, error)
	FromBase64(payload string) ([]byte, error)
}

// NumberNormalizer validates a raw cell and returns the number to look up.
type NumberNormalizer func(raw string) (string, error)
