package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBrowser struct {
	html  string
	err   error
	calls int32
}

func (b *stubBrowser) Render(ctx context.Context, url, waitSelector string) (string, error) {
	atomic.AddInt32(&b.calls, 1)
	return b.html, b.err
}

func fastFetcher(browser Browser) *Fetcher {
	f := New(5*time.Second, browser)
	f.sleep = func(time.Duration) {}
	return f
}

func quickOpts() Options {
	o := DefaultOptions()
	o.MinDelay = 0
	o.MaxDelay = 0
	return o
}

func TestGet_PlainSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	f := fastFetcher(nil)
	doc, err := f.Get(context.Background(), srv.URL, quickOpts())
	require.NoError(t, err)
	assert.Equal(t, "http", doc.Via)
	assert.Contains(t, string(doc.Body), "ok")
}

func TestGet_RetriesTransient5xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	f := fastFetcher(nil)
	doc, err := f.Get(context.Background(), srv.URL, quickOpts())
	require.NoError(t, err)
	assert.Contains(t, string(doc.Body), "recovered")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGet_BotWallEscalatesToBrowser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	browser := &stubBrowser{html: "<html><body>rendered</body></html>"}
	f := fastFetcher(browser)
	doc, err := f.Get(context.Background(), srv.URL, quickOpts())
	require.NoError(t, err)
	assert.Equal(t, "browser", doc.Via)
	assert.Equal(t, int32(1), atomic.LoadInt32(&browser.calls))
}

func TestGet_ContentCheckEscalates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("please enable javascript"))
	}))
	defer srv.Close()

	browser := &stubBrowser{html: "<html><body>full article text</body></html>"}
	f := fastFetcher(browser)
	opts := quickOpts()
	opts.ContentCheck = func(body []byte) bool {
		return !strings.Contains(string(body), "enable javascript")
	}
	doc, err := f.Get(context.Background(), srv.URL, opts)
	require.NoError(t, err)
	assert.Equal(t, "browser", doc.Via)
}

func TestGet_UnfetchableAfterAllStrategies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	browser := &stubBrowser{err: errors.New("blocked")}
	f := fastFetcher(browser)
	_, err := f.Get(context.Background(), srv.URL, quickOpts())
	assert.ErrorIs(t, err, ErrUnfetchable)
}

func TestGet_BrowserFirstFallsBackToPlain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>served directly</body></html>"))
	}))
	defer srv.Close()

	browser := &stubBrowser{err: errors.New("render timeout")}
	f := fastFetcher(browser)
	domain := hostOf(srv.URL)
	f.recordFailure(domain)
	f.recordFailure(domain)
	require.True(t, f.browserFirst(domain))

	doc, err := f.Get(context.Background(), srv.URL, quickOpts())
	require.NoError(t, err)
	assert.Equal(t, "http", doc.Via)
	assert.Contains(t, string(doc.Body), "served directly")
	assert.Equal(t, int32(1), atomic.LoadInt32(&browser.calls))
}

func TestBrowserFirst_AfterRepeatedFailures(t *testing.T) {
	f := fastFetcher(&stubBrowser{})
	assert.False(t, f.browserFirst("example.com"))
	f.recordFailure("example.com")
	assert.False(t, f.browserFirst("example.com"))
	f.recordFailure("example.com")
	assert.True(t, f.browserFirst("example.com"))
	f.recordSuccess("example.com")
	assert.False(t, f.browserFirst("example.com"))
}

func TestComputeBackoff_Deterministic(t *testing.T) {
	a := computeBackoff("https://example.com/x", 2, defaultBackoff)
	b := computeBackoff("https://example.com/x", 2, defaultBackoff)
	assert.Equal(t, a, b)

	// Exponential growth until the cap.
	d0 := computeBackoff("u", 0, backoffPolicy{BaseMs: 100, MaxMs: 10_000})
	d3 := computeBackoff("u", 3, backoffPolicy{BaseMs: 100, MaxMs: 10_000})
	assert.Greater(t, d3, d0)

	capped := computeBackoff("u", 20, backoffPolicy{BaseMs: 100, MaxMs: 1_000})
	assert.LessOrEqual(t, capped, 1_000*time.Millisecond)
}

func TestStripArchiveChrome(t *testing.T) {
	snapshot := `<html><body>
		<div id="wm-ipp-base">wayback toolbar</div>
		<script src="https://archive.org/includes/wb.js"></script>
		<article>the preserved text</article>
	</body></html>`

	cleaned, err := stripArchiveChrome([]byte(snapshot))
	require.NoError(t, err)
	assert.NotContains(t, string(cleaned), "wayback toolbar")
	assert.NotContains(t, string(cleaned), "wb.js")
	assert.Contains(t, string(cleaned), "the preserved text")
}
