// Package fetch implements the resilient HTTP layer: plain requests with
// User-Agent rotation and backoff, escalation to a stealth headless
// browser when a target blocks bots, and an archive mirror as the last
// resort for historical pages.
package fetch

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// userAgents is the rotation pool for plain-HTTP requests.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:124.0) Gecko/20100101 Firefox/124.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
}

// aggressiveDomains are known to block plain clients; the browser path is
// preferred for them from the first call.
var aggressiveDomains = map[string]bool{
	"www.bleepingcomputer.com": true,
	"therecord.media":          true,
}

// Document is the result of a successful fetch.
type Document struct {
	URL        string
	FinalURL   string
	StatusCode int
	Body       []byte
	Via        string // "http" | "browser" | "archive"
}

// Options tunes one Get call.
type Options struct {
	MaxRetries    int
	MinDelay      time.Duration
	MaxDelay      time.Duration
	AllowStatuses []int // extra statuses to retry on, beyond 5xx
	UseBrowser    bool  // permit browser escalation
	UseArchive    bool  // permit archive fallback for historical pages
	WaitSelector  string
	// ContentCheck, when set, validates the body semantically; a false
	// return triggers browser escalation even on HTTP 200.
	ContentCheck func(body []byte) bool
}

// DefaultOptions is the baseline used by adapters.
func DefaultOptions() Options {
	return Options{
		MaxRetries: 3,
		MinDelay:   500 * time.Millisecond,
		MaxDelay:   2 * time.Second,
		UseBrowser: true,
	}
}

// Browser renders a page with a real browser engine. Implemented by the
// chromedp renderer; stubbed in tests.
type Browser interface {
	Render(ctx context.Context, url string, waitSelector string) (string, error)
}

// Fetcher is the shared HTTP client for all adapters and the extractor.
type Fetcher struct {
	client  *http.Client
	browser Browser
	archive *Archive
	logger  *slog.Logger
	sleep   func(time.Duration)
	rng     *rand.Rand

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	failures map[string]int
}

// New creates a Fetcher. browser may be nil, which disables escalation.
func New(timeout time.Duration, browser Browser) *Fetcher {
	client := &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}
	f := &Fetcher{
		client:   client,
		browser:  browser,
		logger:   slog.Default().With("component", "fetch"),
		sleep:    time.Sleep,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		limiters: make(map[string]*rate.Limiter),
		failures: make(map[string]int),
	}
	f.archive = newArchive(client, f.logger)
	return f
}

// Get fetches a URL, escalating plain HTTP → stealth browser → archive
// mirror, stopping at the first success.
func (f *Fetcher) Get(ctx context.Context, rawURL string, opts Options) (*Document, error) {
	domain := hostOf(rawURL)
	browserFirst := f.browserFirst(domain)

	if !browserFirst {
		doc, err := f.plainGet(ctx, rawURL, opts)
		if err == nil {
			if opts.ContentCheck == nil || opts.ContentCheck(doc.Body) {
				f.recordSuccess(domain)
				return doc, nil
			}
			f.logger.Debug("content check failed, escalating", "url", rawURL)
		} else if !errors.Is(err, ErrBotWall) {
			// Transient exhaustion without a bot wall: browser will not
			// help a dead server, but try it once anyway if allowed.
			f.logger.Debug("plain fetch failed", "url", rawURL, "error", err)
		}
		f.recordFailure(domain)
	}

	if opts.UseBrowser && f.browser != nil {
		html, err := f.browser.Render(ctx, rawURL, opts.WaitSelector)
		if err == nil {
			body := []byte(html)
			if opts.ContentCheck == nil || opts.ContentCheck(body) {
				f.recordSuccess(domain)
				return &Document{URL: rawURL, FinalURL: rawURL, StatusCode: 200, Body: body, Via: "browser"}, nil
			}
		} else {
			f.logger.Debug("browser fetch failed", "url", rawURL, "error", err)
		}
		f.recordFailure(domain)
	}

	if browserFirst {
		// The direct attempt was skipped on the way in; give it one chance
		// before the archive.
		doc, err := f.plainGet(ctx, rawURL, opts)
		if err == nil && (opts.ContentCheck == nil || opts.ContentCheck(doc.Body)) {
			f.recordSuccess(domain)
			return doc, nil
		}
		f.recordFailure(domain)
	}

	if opts.UseArchive {
		doc, err := f.archive.Fetch(ctx, rawURL)
		if err == nil {
			return doc, nil
		}
		if !errors.Is(err, ErrNoSnapshot) {
			f.logger.Debug("archive fetch failed", "url", rawURL, "error", err)
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrUnfetchable, rawURL)
}

// plainGet performs the direct HTTP strategy with retries.
func (f *Fetcher) plainGet(ctx context.Context, rawURL string, opts Options) (*Document, error) {
	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 0 {
			f.sleep(computeBackoff(rawURL, attempt-1, defaultBackoff))
		}
		f.politeDelay(ctx, rawURL, opts)

		doc, err := f.doOnce(ctx, rawURL)
		if err != nil {
			lastErr = err
			var se *StatusError
			if errors.As(err, &se) {
				if botWallStatus(se.Status) {
					return nil, fmt.Errorf("%w: %s (status %d)", ErrBotWall, rawURL, se.Status)
				}
				if !retriableStatus(se.Status, opts.AllowStatuses) {
					return nil, err
				}
			}
			continue
		}
		return doc, nil
	}
	return nil, fmt.Errorf("fetch %s: retries exhausted: %w", rawURL, lastErr)
}

func (f *Fetcher) doOnce(ctx context.Context, rawURL string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgents[f.rng.Intn(len(userAgents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: rawURL, Status: resp.StatusCode}
	}

	body, err := decodeBody(resp)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}
	return &Document{
		URL:        rawURL,
		FinalURL:   resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Body:       body,
		Via:        "http",
	}, nil
}

func decodeBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer func() { _ = gz.Close() }()
		reader = gz
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer func() { _ = fl.Close() }()
		reader = fl
	}
	return io.ReadAll(io.LimitReader(reader, 16<<20))
}

// politeDelay waits out the per-domain limiter plus a random jitter inside
// [MinDelay, MaxDelay].
func (f *Fetcher) politeDelay(ctx context.Context, rawURL string, opts Options) {
	domain := hostOf(rawURL)

	f.mu.Lock()
	lim, ok := f.limiters[domain]
	if !ok {
		// One request per second per domain, small burst.
		lim = rate.NewLimiter(rate.Limit(1), 2)
		f.limiters[domain] = lim
	}
	jitterRange := opts.MaxDelay - opts.MinDelay
	delay := opts.MinDelay
	if jitterRange > 0 {
		delay += time.Duration(f.rng.Int63n(int64(jitterRange)))
	}
	f.mu.Unlock()

	_ = lim.Wait(ctx)
	if delay > 0 {
		f.sleep(delay)
	}
}

// browserFirst reports whether the browser path should be tried before a
// plain request: either the domain is on the aggressive list or it has
// failed twice already.
func (f *Fetcher) browserFirst(domain string) bool {
	if f.browser == nil {
		return false
	}
	if aggressiveDomains[domain] {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failures[domain] >= 2
}

func (f *Fetcher) recordFailure(domain string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[domain]++
}

func (f *Fetcher) recordSuccess(domain string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[domain] = 0
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host
}
