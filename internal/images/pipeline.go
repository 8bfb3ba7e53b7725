package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/rshade/phonelookup/internal/engine/cache"
	"github.com/rshade/phonelookup/pkg/version"
)

// maxDownloadBytes bounds a single image download.
const maxDownloadBytes = 8 << 20

// DefaultDownloadTimeout applies when Config.DownloadTimeout is zero.
const DefaultDownloadTimeout = 10 * time.Second

// ErrDownload wraps every failure to fetch an image URL.
var ErrDownload = errors.New("image download failed")

// Cache stores raw downloads by URL. *cache.FileStore satisfies it.
type Cache interface {
	Get(url string) ([]byte, error)
	Set(url string, data []byte) error
}

// Config controls downloads and thumbnail output.
type Config struct {
	Thumbnail       Options
	DownloadTimeout time.Duration
	// RequestsPerMinute paces downloads; zero or less means unlimited.
	RequestsPerMinute int
}

// Pipeline fetches or decodes images and returns JPEG thumbnails.
// It implements engine.ImageSource.
type Pipeline struct {
	cfg     Config
	http    *http.Client
	cache   Cache
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Pipeline) { p.http = hc }
}

// WithCache enables the download cache.
func WithCache(c Cache) Option {
	return func(p *Pipeline) { p.cache = c }
}

// WithLogger sets the pipeline logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline builds a Pipeline.
func NewPipeline(cfg Config, opts ...Option) *Pipeline {
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = DefaultDownloadTimeout
	}
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}
	p := &Pipeline{
		cfg:     cfg,
		http:    &http.Client{},
		limiter: rate.NewLimiter(limit, 1),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FromURL downloads rawURL, or reads it from the cache, and returns its thumbnail.
func (p *Pipeline) FromURL(ctx context.Context, rawURL string) ([]byte, error) {
	data, err := p.download(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return Thumbnail(data, p.cfg.Thumbnail)
}

// FromBase64 decodes an inline payload and returns its thumbnail.
func (p *Pipeline) FromBase64(payload string) ([]byte, error) {
	data, err := DecodeBase64(payload)
	if err != nil {
		return nil, err
	}
	return Thumbnail(data, p.cfg.Thumbnail)
}

func (p *Pipeline) download(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: unsupported URL %q", ErrDownload, rawURL)
	}

	if p.cache != nil {
		if data, cacheErr := p.cache.Get(rawURL); cacheErr == nil {
			p.logger.Debug().Str("url", rawURL).Msg("image cache hit")
			return data, nil
		} else if !errors.Is(cacheErr, cache.ErrCacheNotFound) && !errors.Is(cacheErr, cache.ErrCacheExpired) {
			p.logger.Debug().Err(cacheErr).Str("url", rawURL).Msg("image cache read failed")
		}
	}

	if waitErr := p.limiter.Wait(ctx); waitErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrDownload, waitErr)
	}

	reqCtx, cancel := context.WithTimeout(ctx, p.cfg.DownloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDownload, err)
	}
	req.Header.Set("User-Agent", "phonelookup/"+version.GetVersion())

	resp, err := p.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: timeout after %s", ErrDownload, p.cfg.DownloadTimeout)
		}
		return nil, fmt.Errorf("%w: %w", ErrDownload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDownloadBytes))
		return nil, fmt.Errorf("%w: HTTP %d", ErrDownload, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDownload, err)
	}
	if len(data) > maxDownloadBytes {
		return nil, fmt.Errorf("%w: larger than %d bytes", ErrDownload, maxDownloadBytes)
	}

	if p.cache != nil {
		if setErr := p.cache.Set(rawURL, data); setErr != nil {
			p.logger.Debug().Err(setErr).Str("url", rawURL).Msg("image cache write failed")
		}
	}
	return data, nil
}
