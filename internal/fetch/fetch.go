// Package fetch retrieves feed documents and images over HTTP.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Rate limiting defaults
const (
	// DefaultConcurrencyPerDomain limits parallel requests to any single domain
	DefaultConcurrencyPerDomain = 2
	// DefaultDelayBetweenDomainRequests is the minimum delay between requests to the same domain
	DefaultDelayBetweenDomainRequests = 500 * time.Millisecond
	// DefaultTimeout bounds a single request.
	DefaultTimeout = 30 * time.Second
	// DefaultUserAgent is sent with every request.
	DefaultUserAgent = "feedmail/1.0 (+https://github.com/bryan-buckman/feedmail)"
	// MaxBodySize caps a downloaded document or image.
	MaxBodySize = 32 << 20
)

// domainLimiter controls rate limiting per domain to avoid overwhelming hosts.
type domainLimiter struct {
	mu          sync.Mutex
	perDomain   int
	delay       time.Duration
	semaphores  map[string]chan struct{}
	lastRequest map[string]time.Time
}

func newDomainLimiter(perDomain int, delay time.Duration) *domainLimiter {
	if perDomain < 1 {
		perDomain = 1
	}
	return &domainLimiter{
		perDomain:   perDomain,
		delay:       delay,
		semaphores:  make(map[string]chan struct{}),
		lastRequest: make(map[string]time.Time),
	}
}

// acquire gets a slot for the domain, blocking if necessary.
// It also enforces the minimum delay between requests to the same domain.
func (dl *domainLimiter) acquire(ctx context.Context, domain string) error {
	dl.mu.Lock()
	sem, ok := dl.semaphores[domain]
	if !ok {
		sem = make(chan struct{}, dl.perDomain)
		dl.semaphores[domain] = sem
	}
	dl.mu.Unlock()

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	dl.mu.Lock()
	lastReq := dl.lastRequest[domain]
	dl.mu.Unlock()

	if !lastReq.IsZero() {
		if elapsed := time.Since(lastReq); elapsed < dl.delay {
			select {
			case <-time.After(dl.delay - elapsed):
			case <-ctx.Done():
				<-sem
				return ctx.Err()
			}
		}
	}
	return nil
}

// release returns a slot for the domain and records the request time.
func (dl *domainLimiter) release(domain string) {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	dl.lastRequest[domain] = time.Now()
	if sem, ok := dl.semaphores[domain]; ok {
		<-sem
	}
}

func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host
}

// Options tune a Fetcher. Zero values select the defaults.
type Options struct {
	Timeout              time.Duration
	UserAgent            string
	ConcurrencyPerDomain int
	DelayPerDomain       time.Duration
}

// Fetcher downloads resources, politely.
type Fetcher struct {
	client        *http.Client
	userAgent     string
	domainLimiter *domainLimiter
}

// New creates a fetcher.
func New(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.ConcurrencyPerDomain <= 0 {
		opts.ConcurrencyPerDomain = DefaultConcurrencyPerDomain
	}
	if opts.DelayPerDomain < 0 {
		opts.DelayPerDomain = 0
	} else if opts.DelayPerDomain == 0 {
		opts.DelayPerDomain = DefaultDelayBetweenDomainRequests
	}
	return &Fetcher{
		client:        &http.Client{Timeout: opts.Timeout},
		userAgent:     opts.UserAgent,
		domainLimiter: newDomainLimiter(opts.ConcurrencyPerDomain, opts.DelayPerDomain),
	}
}

// Fetch downloads rawURL and returns the response body.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	domain := extractDomain(rawURL)
	if err := f.domainLimiter.acquire(ctx, domain); err != nil {
		return nil, fmt.Errorf("rate limit cancelled for %s: %w", rawURL, err)
	}
	defer f.domainLimiter.release(domain)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("get %s: unexpected status %s", rawURL, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}
	slog.Debug("fetched", "url", rawURL, "bytes", len(body))
	return body, nil
}
