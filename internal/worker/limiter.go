package worker

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// QuotaReserve is the remaining hourly quota below which a host is slowed
	// down, leaving room for retries and the next run.
	QuotaReserve = 10

	// quotaSlowInterval spaces requests to a host that is close to its quota.
	quotaSlowInterval = 10 * time.Second
)

// hostBucket is the throttle state of one host.
type hostBucket struct {
	limiter   *rate.Limiter
	remaining int // -1 until the host reports its quota
}

// Limiter throttles requests per host. api.nasa.gov keys carry an hourly
// quota that responses report in X-RateLimit-Remaining; Observe feeds it
// back so a host near its quota is slowed before it starts answering 429.
type Limiter struct {
	mu           sync.Mutex
	hosts        map[string]*hostBucket
	defaultRate  rate.Limit
	defaultBurst int
}

// NewLimiter creates a limiter with the default per-host rate and burst.
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 5
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &Limiter{
		hosts:        make(map[string]*hostBucket),
		defaultRate:  rate.Limit(requestsPerSecond),
		defaultBurst: burst,
	}
}

// Wait blocks until a request to rawURL may proceed.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host, err := hostOf(rawURL)
	if err != nil {
		return err
	}
	return l.bucket(host).limiter.Wait(ctx)
}

// Allow reports whether a request to rawURL may proceed now, consuming a
// token when it may.
func (l *Limiter) Allow(rawURL string) bool {
	host, err := hostOf(rawURL)
	if err != nil {
		return false
	}
	return l.bucket(host).limiter.Allow()
}

// SetHostRate overrides the limit for one host. A full URL is accepted too.
func (l *Limiter) SetHostRate(host string, requestsPerSecond float64, burst int) {
	if h, err := hostOf(host); err == nil && h != "" {
		host = h
	}
	if burst <= 0 {
		burst = l.defaultBurst
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.hosts[host] = &hostBucket{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst), remaining: -1}
}

// Observe records the quota a response from rawURL reported. It returns true
// when the host has just dropped below QuotaReserve and was slowed.
func (l *Limiter) Observe(rawURL string, remaining int) bool {
	host, err := hostOf(rawURL)
	if err != nil || remaining < 0 {
		return false
	}
	b := l.bucket(host)

	l.mu.Lock()
	defer l.mu.Unlock()

	wasLow := b.remaining >= 0 && b.remaining < QuotaReserve
	b.remaining = remaining
	if remaining >= QuotaReserve || wasLow {
		return false
	}
	b.slowTo(quotaSlowInterval)
	return true
}

// SlowHost spaces requests to host at least interval apart, unless the host
// is already slower. A full URL is accepted too.
func (l *Limiter) SlowHost(host string, interval time.Duration) {
	if interval <= 0 {
		return
	}
	if h, err := hostOf(host); err == nil && h != "" {
		host = h
	}
	b := l.bucket(host)

	l.mu.Lock()
	defer l.mu.Unlock()
	b.slowTo(interval)
}

// slowTo must be called with the limiter's mutex held.
func (b *hostBucket) slowTo(interval time.Duration) {
	slow := rate.Every(interval)
	if b.limiter.Limit() > slow {
		b.limiter.SetLimit(slow)
		b.limiter.SetBurst(1)
	}
}

// Remaining returns the last quota reported for the host of rawURL.
func (l *Limiter) Remaining(rawURL string) (int, bool) {
	host, err := hostOf(rawURL)
	if err != nil {
		return 0, false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.hosts[host]
	if !ok || b.remaining < 0 {
		return 0, false
	}
	return b.remaining, true
}

func (l *Limiter) bucket(host string) *hostBucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.hosts[host]
	if !ok {
		b = &hostBucket{limiter: rate.NewLimiter(l.defaultRate, l.defaultBurst), remaining: -1}
		l.hosts[host] = b
	}
	return b
}

func hostOf(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	return parsed.Host, nil
}
