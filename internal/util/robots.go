package util

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// RobotsGetter fetches a robots.txt body. A non-2xx answer is reported as a
// status with a nil error so that 4xx can allow and 5xx can deny.
type RobotsGetter func(ctx context.Context, robotsURL string) (status int, body []byte, err error)

// HostRules is what one host's robots.txt says for our agent.
type HostRules struct {
	data       *robotstxt.RobotsData // nil: unreachable, everything allowed
	CrawlDelay time.Duration
}

// Allows reports whether path may be fetched under these rules.
func (h *HostRules) Allows(path, agent string) bool {
	if h == nil || h.data == nil {
		return true
	}
	return h.data.TestAgent(path, agent)
}

// RobotsPolicy resolves robots.txt once per host and remembers the outcome,
// including unreachable files, for the life of the policy.
type RobotsPolicy struct {
	get        RobotsGetter
	agentToken string

	mu    sync.Mutex
	hosts map[string]*HostRules
}

// NewRobotsPolicy matches rules against the product token of userAgent and
// loads files through get.
func NewRobotsPolicy(get RobotsGetter, userAgent string) *RobotsPolicy {
	return &RobotsPolicy{
		get:        get,
		agentToken: NormalizeUserAgent(userAgent),
		hosts:      make(map[string]*HostRules),
	}
}

// Check returns whether rawURL may be fetched and the rules of its host.
// fresh is true only for the call that resolved the host.
func (p *RobotsPolicy) Check(ctx context.Context, rawURL string) (allowed bool, rules *HostRules, fresh bool, err error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false, nil, false, fmt.Errorf("parse url: %w", err)
	}
	if parsed.Host == "" {
		return false, nil, false, fmt.Errorf("parse url: %q has no host", rawURL)
	}

	rules, fresh, err = p.rulesFor(ctx, parsed)
	if err != nil {
		return false, nil, false, err
	}
	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	return rules.Allows(path, p.agentToken), rules, fresh, nil
}

func (p *RobotsPolicy) rulesFor(ctx context.Context, u *url.URL) (*HostRules, bool, error) {
	p.mu.Lock()
	rules, ok := p.hosts[u.Host]
	p.mu.Unlock()
	if ok {
		return rules, false, nil
	}

	robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"
	status, body, err := p.get(ctx, robotsURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		rules = &HostRules{}
	} else {
		data, perr := robotstxt.FromStatusAndBytes(status, body)
		if perr != nil {
			data = nil
		}
		rules = &HostRules{data: data}
		if data != nil {
			if g := data.FindGroup(p.agentToken); g != nil {
				rules.CrawlDelay = g.CrawlDelay
			}
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.hosts[u.Host]; ok {
		return existing, false, nil
	}
	p.hosts[u.Host] = rules
	return rules, true, nil
}

// Forget drops every remembered host.
func (p *RobotsPolicy) Forget() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.hosts)
}

// NormalizeUserAgent returns the product token of ua ("skylink/0.1 (+url)" → "skylink").
func NormalizeUserAgent(ua string) string {
	token, _, _ := strings.Cut(strings.TrimSpace(ua), " ")
	token, _, _ = strings.Cut(token, "/")
	return token
}
