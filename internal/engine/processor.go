package engine

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/rshade/phonelookup/internal/usage"
)

// ErrInvalidNumber is wrapped by normalizers for numbers that cannot be looked up.
var ErrInvalidNumber = errors.New("invalid phone number")

// ProcessorConfig holds the per-row limits.
type ProcessorConfig struct {
	// MonthlyLimit is the quota; zero or less disables the check.
	MonthlyLimit int
	// MaxImages is the number of thumbnail slots per row.
	MaxImages int
	// Normalize validates the number cell. Nil accepts the trimmed cell as is.
	Normalize NumberNormalizer
}

// UsageHook observes every usage increment, including failed persists.
type UsageHook func(rec usage.Record, err error)

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithClock replaces time.Now for row timestamps.
func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) { p.now = now }
}

// WithLogger sets the processor logger.
func WithLogger(l zerolog.Logger) ProcessorOption {
	return func(p *Processor) { p.logger = l }
}

// WithUsageHook registers fn to be called after each usage increment.
func WithUsageHook(fn UsageHook) ProcessorOption {
	return func(p *Processor) { p.onUsage = fn }
}

// Processor turns one InputRecord into one OutputRow.
type Processor struct {
	lookup    Lookuper
	usage     UsageCounter
	images    ImageSource
	maxImages int
	normalize NumberNormalizer
	limit     atomic.Int64
	now       func() time.Time
	logger    zerolog.Logger
	onUsage   UsageHook
}

// NewProcessor wires the processor. images may be nil, in which case no
// thumbnails are produced.
func NewProcessor(l Lookuper, u UsageCounter, images ImageSource, cfg ProcessorConfig, opts ...ProcessorOption) *Processor {
	p := &Processor{
		lookup:    l,
		usage:     u,
		images:    images,
		maxImages: max(0, cfg.MaxImages),
		normalize: cfg.Normalize,
		now:       time.Now,
		logger:    zerolog.Nop(),
	}
	p.limit.Store(int64(cfg.MonthlyLimit))
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MonthlyLimit returns the quota currently enforced.
func (p *Processor) MonthlyLimit() int {
	return int(p.limit.Load())
}

// SetMonthlyLimit changes the quota, e.g. after the user raises it when a
// run paused on quota. Safe to call while a run is active.
func (p *Processor) SetMonthlyLimit(limit int) {
	p.limit.Store(int64(limit))
}

// QuotaExhausted reports whether the next lookup would exceed the quota.
func (p *Processor) QuotaExhausted() bool {
	return p.usage.IsOverLimit(p.MonthlyLimit())
}

// Process looks up one record. An invalid number or an exhausted quota
// produces a row without calling the API; otherwise usage is recorded once
// if the client made at least one request, whatever the outcome.
func (p *Processor) Process(ctx context.Context, rec InputRecord) OutputRow {
	number := strings.TrimSpace(rec.Number)
	if p.normalize != nil {
		n, err := p.normalize(number)
		if err != nil {
			return OutputRow{Record: rec, Result: ErrorResult(err.Error(), p.now())}
		}
		number = n
	} else if number == "" {
		return OutputRow{Record: rec, Result: ErrorResult(ErrInvalidNumber.Error()+": empty", p.now())}
	}

	limit := p.MonthlyLimit()
	if p.usage.IsOverLimit(limit) {
		return QuotaRow(rec, limit, p.now())
	}

	res := p.lookup.Lookup(ctx, number)
	if res.Timestamp.IsZero() {
		res.Timestamp = p.now()
	}

	if res.Attempts > 0 {
		urec, err := p.usage.RecordCall()
		if err != nil {
			p.logger.Warn().Err(err).Int("row", rec.Index).Msg("usage increment not persisted")
		}
		if p.onUsage != nil {
			p.onUsage(urec, err)
		}
	}

	if res.Status == StatusSuccess {
		res.Images = p.fillImages(ctx, res)
	}
	res.InlineImages = nil

	p.logger.Debug().
		Int("row", rec.Index).
		Str("status", string(res.Status)).
		Int("names", len(res.Names)).
		Int("images", len(res.Images)).
		Int("attempts", res.Attempts).
		Msg("row processed")

	return OutputRow{Record: rec, Result: res}
}

// fillImages builds up to maxImages thumbnails, inline payloads first. A
// failed slot keeps its source and error.
func (p *Processor) fillImages(ctx context.Context, res LookupResult) []ImagePayload {
	if p.images == nil || p.maxImages == 0 {
		return nil
	}

	var out []ImagePayload
	for _, b64 := range res.InlineImages {
		if len(out) == p.maxImages {
			return out
		}
		out = append(out, encodeSlot(SourceInline, func() ([]byte, error) { return p.images.FromBase64(b64) }))
	}
	for _, url := range res.ImageURLs {
		if len(out) == p.maxImages || ctx.Err() != nil {
			return out
		}
		out = append(out, encodeSlot(url, func() ([]byte, error) { return p.images.FromURL(ctx, url) }))
	}
	return out
}

func encodeSlot(source string, load func() ([]byte, error)) ImagePayload {
	data, err := load()
	if err != nil {
		return ImagePayload{Source: source, Error: err.Error()}
	}
	if len(data) == 0 {
		return ImagePayload{Source: source, Error: "empty image"}
	}
	return ImagePayload{Source: source, Base64: base64.StdEncoding.EncodeToString(data)}
}
