package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/skylink/internal/cache"
	"github.com/ppiankov/skylink/internal/model"
	"github.com/ppiankov/skylink/internal/util"
	"github.com/ppiankov/skylink/internal/worker"
)

// fetchSleepFunc is swapped out by tests.
var fetchSleepFunc = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

const maxRetryAfter = 2 * time.Minute

// StatusError is a non-2xx response. The URL never carries the API key.
type StatusError struct {
	StatusCode int
	Status     string
	URL        string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %s (%s)", e.Status, e.URL)
}

// ErrorKind classifies the failure for exit codes.
func (e *StatusError) ErrorKind() string {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return "auth"
	case e.StatusCode >= 500:
		return "upstream"
	}
	return "request"
}

// Fetcher performs GET requests against the NASA hosts. Responses are cached
// by URL with credentials stripped, requests are throttled per host and
// transient failures are retried with exponential backoff.
type Fetcher struct {
	httpClient *http.Client
	limiter    *worker.Limiter
	cache      cache.Cache
	cacheTTL   time.Duration
	userAgent  string
	maxBytes   int64
	maxRetries int
	logger     *slog.Logger
}

// FetcherOptions configures NewFetcher. Zero values take defaults.
type FetcherOptions struct {
	Client     *http.Client
	Limiter    *worker.Limiter
	Cache      cache.Cache
	CacheTTL   time.Duration
	UserAgent  string
	MaxBytes   int64
	MaxRetries int
	Logger     *slog.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(opts FetcherOptions) *Fetcher {
	f := &Fetcher{
		httpClient: opts.Client,
		limiter:    opts.Limiter,
		cache:      opts.Cache,
		cacheTTL:   opts.CacheTTL,
		userAgent:  opts.UserAgent,
		maxBytes:   opts.MaxBytes,
		maxRetries: opts.MaxRetries,
		logger:     opts.Logger,
	}
	if f.httpClient == nil {
		f.httpClient = util.NewHTTPClient(30*time.Second, 3, "", "", "")
	}
	if f.limiter == nil {
		f.limiter = worker.NewLimiter(1, 3)
	}
	if f.cache == nil {
		f.cache = cache.Noop{}
	}
	if f.userAgent == "" {
		f.userAgent = model.DefaultConfig().HTTP.UserAgent
	}
	if f.maxBytes <= 0 {
		f.maxBytes = 8_000_000
	}
	if f.maxRetries <= 0 {
		f.maxRetries = 3
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	return f
}

// NewFetcherFromConfig wires a Fetcher from the loaded configuration.
func NewFetcherFromConfig(cfg *model.Config, logger *slog.Logger) *Fetcher {
	client := util.NewHTTPClient(cfg.HTTP.Timeout, 3, cfg.HTTP.HTTPProxy, cfg.HTTP.HTTPSProxy, cfg.HTTP.NoProxy)
	return NewFetcher(FetcherOptions{
		Client:     client,
		Limiter:    worker.NewLimiter(cfg.NASA.RequestsPerSecond, cfg.NASA.Burst),
		Cache:      cache.New(cfg.Cache), // each layer applies its own TTL
		UserAgent:  cfg.HTTP.UserAgent,
		MaxBytes:   cfg.HTTP.MaxBodyBytes,
		MaxRetries: cfg.HTTP.MaxRetries,
		Logger:     logger,
	})
}

// Client returns the underlying HTTP client.
func (f *Fetcher) Client() *http.Client {
	return f.httpClient
}

// UserAgent returns the User-Agent sent with every request.
func (f *Fetcher) UserAgent() string {
	return f.userAgent
}

// CacheStats reports response cache lookups. ok is false when the cache does
// not count them.
func (f *Fetcher) CacheStats() (stats cache.Stats, ok bool) {
	r, ok := f.cache.(cache.StatsReporter)
	if !ok {
		return cache.Stats{}, false
	}
	return r.Stats(), true
}

// Get returns the body at rawURL, from cache when possible.
func (f *Fetcher) Get(ctx context.Context, rawURL, accept string) ([]byte, error) {
	key := cache.CacheKey(rawURL)
	if body, ok := f.cache.Get(key); ok {
		f.logger.Debug("cache hit", "url", redactURL(rawURL))
		return body, nil
	}

	body, err := f.FetchWithRetry(ctx, rawURL, accept)
	if err != nil {
		return nil, err
	}

	if err := f.cache.Set(key, body, f.cacheTTL); err != nil {
		f.logger.Warn("cache write failed", "url", redactURL(rawURL), "error", err)
	}
	return body, nil
}

// FetchWithRetry fetches rawURL, retrying 429, 5xx and network errors.
func (f *Fetcher) FetchWithRetry(ctx context.Context, rawURL, accept string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < f.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			var se *StatusError
			if errors.As(lastErr, &se) && se.RetryAfter > backoff {
				backoff = se.RetryAfter
			}
			f.logger.Debug("retrying request", "url", redactURL(rawURL), "attempt", attempt+1, "backoff", backoff, "error", lastErr)
			if err := fetchSleepFunc(ctx, backoff); err != nil {
				return nil, err
			}
		}

		if err := f.limiter.Wait(ctx, rawURL); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}

		body, err := f.fetch(ctx, rawURL, accept)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if !isRetryableFetchError(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (f *Fetcher) fetch(ctx context.Context, rawURL, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", redactURL(rawURL), stripURLError(err))
	}
	defer resp.Body.Close()

	f.observeQuota(rawURL, resp.Header)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			URL:        redactURL(rawURL),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("read body: response from %s exceeds %d bytes", redactURL(rawURL), f.maxBytes)
	}
	return body, nil
}

// Robots loads a robots.txt file for util.RobotsPolicy. Error statuses are
// returned as statuses.
func (f *Fetcher) Robots(ctx context.Context, robotsURL string) (int, []byte, error) {
	body, err := f.Get(ctx, robotsURL, "text/plain")
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			return se.StatusCode, nil, nil
		}
		return 0, nil, err
	}
	return http.StatusOK, body, nil
}

// Throttle spaces requests to host at least delay apart.
func (f *Fetcher) Throttle(host string, delay time.Duration) {
	f.limiter.SlowHost(host, delay)
}

// isRetryableFetchError reports whether err is transient.
func isRetryableFetchError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, transient := range []string{"connection refused", "connection reset", "eof", "broken pipe", "no such host"} {
		if strings.Contains(msg, transient) && strings.HasPrefix(msg, "fetch") {
			return true
		}
	}
	return false
}

// observeQuota hands the hourly quota api.nasa.gov reports to the limiter.
func (f *Fetcher) observeQuota(rawURL string, h http.Header) {
	v := strings.TrimSpace(h.Get("X-RateLimit-Remaining"))
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	if f.limiter.Observe(rawURL, n) {
		f.logger.Warn("NASA API quota nearly used up, slowing requests", "remaining", n, "limit", h.Get("X-RateLimit-Limit"))
	}
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	var d time.Duration
	if secs, err := strconv.Atoi(v); err == nil {
		d = time.Duration(secs) * time.Second
	} else if t, err := http.ParseTime(v); err == nil {
		d = time.Until(t)
	}
	if d < 0 {
		return 0
	}
	if d > maxRetryAfter {
		return maxRetryAfter
	}
	return d
}

// redactURL masks credentials in the query string.
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	q := u.Query()
	if q.Has("api_key") {
		q.Set("api_key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// stripURLError drops the *url.Error wrapper, whose message repeats the full
// request URL including the API key.
func stripURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}
