// Package lookup is the HTTP client for the caller identification API.
package lookup

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

	"github.com/rshade/phonelookup/internal/engine"
	"github.com/rshade/phonelookup/internal/retry"
	"github.com/rshade/phonelookup/pkg/version"
)

// maxBodyBytes bounds how much of a response is read.
const maxBodyBytes = 10 << 20

// ErrAuth is returned when the provider rejects the credentials.
var ErrAuth = errors.New("authentication failed")

// HTTPError is a non-2xx response.
type HTTPError struct {
	Code int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d %s", e.Code, http.StatusText(e.Code))
}

// Retryable reports whether the status is worth another attempt.
func (e *HTTPError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

// Config holds everything the client needs from configuration.
type Config struct {
	Endpoint          string
	Host              string
	Key               string
	Timeout           time.Duration
	Retry             retry.Policy
	RequestDelay      time.Duration
	RequestsPerMinute int
	CountryCode       string
	MaxNames          int
	MaxImageURLs      int
}

// Client performs lookups with retry, pacing and response normalization.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	sleep   retry.Sleeper
	now     func() time.Time
	logger  zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithSleeper replaces the sleeper used for retry backoff and the post-call delay.
func WithSleeper(s retry.Sleeper) Option {
	return func(c *Client) { c.sleep = s }
}

// WithClock replaces time.Now for result timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithLogger sets the client logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New validates cfg and builds a Client.
func New(cfg Config, opts ...Option) (*Client, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid lookup endpoint %q", cfg.Endpoint)
	}
	if cfg.Key == "" {
		return nil, errors.New("lookup api key is empty")
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}

	c := &Client{
		cfg:     cfg,
		http:    &http.Client{},
		limiter: rate.NewLimiter(limit, 1),
		sleep:   retry.Sleep,
		now:     time.Now,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Lookup queries number and always returns a result. Attempts counts the
// HTTP requests that were actually sent.
func (c *Client) Lookup(ctx context.Context, number string) engine.LookupResult {
	code, local := Split(number, c.cfg.CountryCode)
	log := c.logger.With().Str("code", code).Str("number", local).Logger()

	var (
		sent    int
		body    []byte
		lastErr error
	)
	_, err := retry.Do(ctx, c.cfg.Retry, c.sleep, func(attempt int) error {
		if waitErr := c.limiter.Wait(ctx); waitErr != nil {
			return retry.Permanent(waitErr)
		}
		sent++
		b, reqErr := c.request(ctx, code, local)
		if reqErr != nil {
			lastErr = reqErr
			log.Debug().Err(reqErr).Int("attempt", attempt).Msg("lookup attempt failed")
			return reqErr
		}
		body = b
		return nil
	})

	if sent > 0 && c.cfg.RequestDelay > 0 {
		_ = c.sleep(ctx, c.cfg.RequestDelay)
	}

	res := engine.LookupResult{Attempts: sent, Timestamp: c.now()}
	if err != nil {
		res.Status = engine.StatusError
		res.Error = describe(err, lastErr, sent)
		log.Warn().Int("attempts", sent).Str("error", res.Error).Msg("lookup failed")
		return res
	}

	cands, err := parseResponse(body, c.cfg.MaxNames, c.cfg.MaxImageURLs)
	if err != nil {
		res.Status = engine.StatusError
		res.Error = err.Error()
		log.Warn().Err(err).Msg("lookup response rejected")
		return res
	}

	res.Status = engine.StatusSuccess
	res.Names = cands.Names
	res.ImageURLs = cands.ImageURLs
	res.InlineImages = cands.Inline
	log.Debug().Int("names", len(res.Names)).Int("images", len(res.ImageURLs)).Msg("lookup succeeded")
	return res
}

// request performs one attempt. Errors that should not be retried are
// wrapped with retry.Permanent.
func (c *Client) request(ctx context.Context, code, local string) ([]byte, error) {
	reqCtx := ctx
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	q := url.Values{}
	q.Set("code", code)
	q.Set("number", local)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.cfg.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("x-rapidapi-host", c.cfg.Host)
	req.Header.Set("x-rapidapi-key", c.cfg.Key)
	req.Header.Set("User-Agent", "phonelookup/"+version.GetVersion())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, retry.Permanent(ctx.Err())
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("timeout after %s", c.cfg.Timeout)
		}
		return nil, fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		herr := &HTTPError{Code: resp.StatusCode}
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, retry.Permanent(fmt.Errorf("%w: %w", ErrAuth, herr))
		case herr.Retryable():
			return nil, herr
		default:
			return nil, retry.Permanent(herr)
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if ctx.Err() != nil {
			return nil, retry.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return body, nil
}

func describe(err, lastErr error, sent int) string {
	switch {
	case errors.Is(err, retry.ErrMaxAttemptsExceeded):
		return fmt.Sprintf("request failed after %d attempts: %v", sent, lastErr)
	case errors.Is(err, context.Canceled), errors.Is(err, retry.ErrContextCancelled):
		return "lookup cancelled"
	case lastErr != nil:
		return lastErr.Error()
	default:
		return err.Error()
	}
}
