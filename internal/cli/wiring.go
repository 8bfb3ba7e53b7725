package cli

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rshade/phonelookup/internal/config"
	"github.com/rshade/phonelookup/internal/engine"
	"github.com/rshade/phonelookup/internal/engine/cache"
	"github.com/rshade/phonelookup/internal/images"
	"github.com/rshade/phonelookup/internal/logging"
	"github.com/rshade/phonelookup/internal/lookup"
	"github.com/rshade/phonelookup/internal/retry"
	"github.com/rshade/phonelookup/internal/sheet"
	"github.com/rshade/phonelookup/internal/usage"
)

// services holds what the lookup commands share.
type services struct {
	cfg      *config.Config
	client   *lookup.Client
	counter  *usage.Counter
	pipeline *images.Pipeline
}

// newClient builds the lookup client from cfg.
func newClient(cfg *config.Config, log zerolog.Logger) (*lookup.Client, error) {
	if err := cfg.RequireAPIKey(); err != nil {
		return nil, err
	}
	return lookup.New(lookup.Config{
		Endpoint: cfg.API.URL(),
		Host:     cfg.API.Host,
		Key:      cfg.API.Key,
		Timeout:  cfg.API.Timeout,
		Retry:             retryPolicy(cfg),
		RequestDelay:      cfg.Lookup.RequestDelay,
		RequestsPerMinute: cfg.Lookup.MaxRequestsPerMinute,
		CountryCode:       cfg.Lookup.CountryCode,
		MaxNames:          cfg.Lookup.MaxNames,
		MaxImageURLs:      cfg.Lookup.MaxImageURLs,
	}, lookup.WithLogger(logging.ComponentLogger(log, "lookup")))
}

// retryPolicy is the lookup retry policy named by cfg.
func retryPolicy(cfg *config.Config) retry.Policy {
	return retry.Policy{
		MaxAttempts:  cfg.Lookup.MaxRetries,
		InitialDelay: cfg.Lookup.RetryDelay,
		MaxDelay:     cfg.Lookup.MaxRetryDelay,
		Multiplier:   cfg.Lookup.BackoffMultiplier,
	}
}

// openCounter opens the usage ledger named by cfg.
func openCounter(cfg *config.Config, log zerolog.Logger) (*usage.Counter, error) {
	path, err := cfg.UsageFile()
	if err != nil {
		return nil, err
	}
	c, err := usage.Open(path, usage.WithLogger(logging.ComponentLogger(log, "usage")))
	if err != nil {
		return nil, fmt.Errorf("opening usage ledger: %w", err)
	}
	return c, nil
}

// newPipeline builds the image pipeline, with the download cache when enabled.
// A cache that cannot be created only disables caching.
func newPipeline(cfg *config.Config, log zerolog.Logger) *images.Pipeline {
	log = logging.ComponentLogger(log, "images")
	opts := []images.Option{images.WithLogger(log)}

	if cfg.Cache.Enabled {
		if store, err := newImageCache(cfg); err != nil {
			log.Warn().Err(err).Msg("image cache unavailable, downloading without it")
		} else {
			opts = append(opts, images.WithCache(store))
		}
	}

	return images.NewPipeline(images.Config{
		Thumbnail: images.Options{
			MaxWidth:  cfg.Images.MaxWidth,
			MaxHeight: cfg.Images.MaxHeight,
			Quality:   cfg.Images.Quality,
		},
		DownloadTimeout:   cfg.Images.DownloadTimeout,
		RequestsPerMinute: cfg.Lookup.MaxRequestsPerMinute,
	}, opts...)
}

func newImageCache(cfg *config.Config) (*cache.FileStore, error) {
	dir, err := cfg.CacheDir()
	if err != nil {
		return nil, err
	}
	ttl := cfg.Cache.TTL
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	return cache.NewFileStore(dir, true, ttl)
}

// newServices opens everything a lookup needs. Config is validated first.
func newServices(cfg *config.Config, log zerolog.Logger) (*services, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := newClient(cfg, log)
	if err != nil {
		return nil, err
	}
	counter, err := openCounter(cfg, log)
	if err != nil {
		return nil, err
	}
	return &services{
		cfg:      cfg,
		client:   client,
		counter:  counter,
		pipeline: newPipeline(cfg, log),
	}, nil
}

// processor builds the row processor over the shared services.
func (s *services) processor(log zerolog.Logger, opts ...engine.ProcessorOption) *engine.Processor {
	var src engine.ImageSource = s.pipeline
	if s.cfg.Images.MaxPerRecord == 0 {
		src = nil
	}
	opts = append([]engine.ProcessorOption{engine.WithLogger(logging.ComponentLogger(log, "engine"))}, opts...)
	return engine.NewProcessor(s.client, s.counter, src, engine.ProcessorConfig{
		MonthlyLimit: s.cfg.Processing.MonthlyLimit,
		MaxImages:    s.cfg.Images.MaxPerRecord,
		Normalize:    lookup.Normalizer(s.cfg.Lookup.CountryCode),
	}, opts...)
}

// layoutLimits caps the dynamic output columns.
func layoutLimits(cfg *config.Config) engine.Layout {
	return engine.Layout{
		Names:     cfg.Lookup.MaxNames,
		ImageURLs: cfg.Lookup.MaxImageURLs,
		Images:    cfg.Images.MaxPerRecord,
	}
}

// sheetStyle is the thumbnail layout from cfg.
func sheetStyle(cfg *config.Config) sheet.Style {
	return sheet.Style{
		Embed:       cfg.Images.Embed,
		RowHeight:   cfg.Images.RowHeight,
		ColumnWidth: cfg.Images.ColumnWidth,
	}
}

// thresholds returns the usage alert thresholds for cfg.
func thresholds(cfg *config.Config) usage.Thresholds {
	return usage.Thresholds{
		Warning:  cfg.Usage.WarningThreshold,
		Critical: cfg.Usage.CriticalThreshold,
		Limit:    cfg.Processing.MonthlyLimit,
	}
}

func since(start time.Time) time.Duration {
	return time.Since(start).Round(time.Second)
}
