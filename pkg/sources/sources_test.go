package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduthreat/sentinel/pkg/config"
	"github.com/eduthreat/sentinel/pkg/fetch"
	"github.com/eduthreat/sentinel/pkg/model"
)

func testFetcher() *fetch.Fetcher {
	return fetch.New(5*time.Second, nil)
}

func collectAll(t *testing.T, a Adapter, opts CollectOptions) ([][]*model.Incident, error) {
	t.Helper()
	var batches [][]*model.Incident
	err := a.Collect(context.Background(), opts, func(batch []*model.Incident) error {
		batches = append(batches, batch)
		return nil
	})
	return batches, err
}

func flatten(batches [][]*model.Incident) []*model.Incident {
	var out []*model.Incident
	for _, b := range batches {
		out = append(out, b...)
	}
	return out
}

const curatedPage = `<html><body>
<article class="incident">
  <h2>Springfield School District hit by ransomware</h2>
  <time datetime="2024-11-01">November 1, 2024</time>
  <span class="country">USA</span>
  <a href="/incidents/springfield">details</a>
</article>
<article class="incident">
  <h2>Example University data breach</h2>
  <time datetime="2024-10-15">October 15, 2024</time>
  <span class="country">UK</span>
  <a href="/incidents/example-university">details</a>
</article>
<article class="incident">
  <h2>Block without a link is skipped</h2>
</article>
</body></html>`

func curatedSpec(baseURL string) config.SourceSpec {
	return config.SourceSpec{
		Name:  "test_curated",
		Group: "curated",
		Kind:  config.KindCurated,
		URL:   baseURL,
		Selectors: config.Selectors{
			Article: "article.incident",
			Title:   "h2",
			Date:    "time",
			Link:    "a",
			Country: ".country",
		},
	}
}

func TestCuratedAdapter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(curatedPage))
	}))
	defer srv.Close()

	a, err := New(curatedSpec(srv.URL), testFetcher())
	require.NoError(t, err)
	assert.Equal(t, model.GroupCurated, a.Group())

	batches, err := collectAll(t, a, CollectOptions{})
	require.NoError(t, err)
	require.Len(t, batches, 1)
	incidents := batches[0]
	require.Len(t, incidents, 2)

	first := incidents[0]
	assert.True(t, strings.HasPrefix(first.IncidentID, "test_curated_"))
	assert.Equal(t, "Springfield School District", first.UniversityName)
	assert.Equal(t, "2024-11-01", first.IncidentDate)
	assert.Equal(t, model.PrecisionDay, first.DatePrecision)
	assert.Equal(t, "United States", first.Country)
	assert.Equal(t, model.ConfidenceHigh, first.SourceConfidence)
	assert.Empty(t, first.PrimaryURL)
	require.Len(t, first.AllURLs, 1)
	assert.Contains(t, first.AllURLs[0], "/incidents/springfield")

	// Identical inputs always derive the identical id.
	assert.Equal(t, first.IncidentID, model.IncidentID("test_curated", first.AllURLs[0]))
}

func paginatedPage(links string) string {
	return fmt.Sprintf(`<html><body>
	%s
	<nav><a class="page-numbers" href="?page=1">1</a><a class="page-numbers" href="?page=2">2</a></nav>
	</body></html>`, links)
}

func TestPaginatedAdapter_WalksDiscoveredPages(t *testing.T) {
	var pagesServed []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pagesServed = append(pagesServed, r.URL.Path)
		article := fmt.Sprintf(`<article><h2 class="entry-title"><a href="/story%s">Story from %s College</a></h2></article>`,
			r.URL.Path, r.URL.Path)
		_, _ = w.Write([]byte(paginatedPage(article)))
	}))
	defer srv.Close()

	spec := config.SourceSpec{
		Name: "test_archive", Group: "news", Kind: config.KindPaginated,
		URL: srv.URL + "/page/%d", MaxPages: 10,
		Selectors: config.Selectors{
			Article:    "article",
			Title:      "h2.entry-title a",
			Link:       "h2.entry-title a",
			Pagination: "a.page-numbers",
		},
	}
	a, err := New(spec, testFetcher())
	require.NoError(t, err)

	batches, err := collectAll(t, a, CollectOptions{})
	require.NoError(t, err)
	assert.Len(t, batches, 2)
	assert.Equal(t, []string{"/page/1", "/page/2"}, pagesServed)
}

func TestPaginatedAdapter_RespectsMaxPagesOverride(t *testing.T) {
	var served int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served++
		article := `<article><h2 class="entry-title"><a href="/s">Some School story</a></h2></article>`
		pagination := `<a class="page-numbers">1</a><a class="page-numbers">5</a>`
		_, _ = w.Write([]byte("<html><body>" + article + pagination + "</body></html>"))
	}))
	defer srv.Close()

	spec := config.SourceSpec{
		Name: "test_archive", Group: "news", Kind: config.KindPaginated,
		URL: srv.URL + "/page/%d", MaxPages: 10,
		Selectors: config.Selectors{
			Article: "article", Title: "h2.entry-title a",
			Link: "h2.entry-title a", Pagination: "a.page-numbers",
		},
	}
	a, err := New(spec, testFetcher())
	require.NoError(t, err)

	_, err = collectAll(t, a, CollectOptions{MaxPages: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, served)
}

func TestKeywordAdapter_CaptchaAbortsWalk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><div class="g-recaptcha"></div>Please verify you are human</body></html>`))
	}))
	defer srv.Close()

	spec := config.SourceSpec{
		Name: "test_search", Group: "news", Kind: config.KindKeyword,
		SearchURL: srv.URL + "/search?q=%s&page=%d",
		Keywords:  []string{"university ransomware"},
		MaxPages:  3,
		Selectors: config.Selectors{Article: "div.result", Title: "a", Link: "a"},
	}
	a, err := New(spec, testFetcher())
	require.NoError(t, err)

	_, err = collectAll(t, a, CollectOptions{})
	assert.ErrorIs(t, err, ErrCaptcha)
}

func TestKeywordAdapter_StopsWithoutNextPage(t *testing.T) {
	var served int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served++
		_, _ = w.Write([]byte(`<html><body>
		<div class="result"><a href="/article1">College cyberattack reported</a></div>
		</body></html>`))
	}))
	defer srv.Close()

	spec := config.SourceSpec{
		Name: "test_search", Group: "news", Kind: config.KindKeyword,
		SearchURL: srv.URL + "/search?q=%s&page=%d",
		Keywords:  []string{"college cyberattack"},
		MaxPages:  5,
		Selectors: config.Selectors{
			Article: "div.result", Title: "a", Link: "a", NextPage: "a[rel=next]",
		},
	}
	a, err := New(spec, testFetcher())
	require.NoError(t, err)

	batches, err := collectAll(t, a, CollectOptions{})
	require.NoError(t, err)
	assert.Len(t, batches, 1)
	assert.Equal(t, 1, served)
}

const apiResponse = `[
  {"victim": "Example State University", "domain": "esu.edu", "date": "2024-11-20",
   "group": "lockbit", "country": "US", "activity": "Education",
   "post_url": "http://leak.onion/post/1", "screenshot": "https://cdn.example/shot1.png",
   "press": ["https://news.example.com/esu-attack"]},
  {"victim": "Springfield ISD", "domain": "springfield.k12.us", "date": "2024-11-22",
   "group": "medusa", "country": "US", "activity": "Education",
   "post_url": "http://leak.onion/post/2", "screenshot": ""},
  {"victim": "", "domain": "ignored.example", "date": "2024-11-23", "group": "x", "country": "US"}
]`

func TestAPIAdapter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(apiResponse))
	}))
	defer srv.Close()

	spec := config.SourceSpec{
		Name: "test_api", Group: "curated", Kind: config.KindAPI, URL: srv.URL,
	}
	a, err := New(spec, testFetcher())
	require.NoError(t, err)

	batches, err := collectAll(t, a, CollectOptions{})
	require.NoError(t, err)
	incidents := flatten(batches)
	require.Len(t, incidents, 2)

	esu := incidents[0]
	assert.Equal(t, "Example State University", esu.VictimRawName)
	assert.Equal(t, "United States", esu.Country)
	assert.Equal(t, "ransomware", esu.AttackTypeHint)
	assert.Equal(t, "http://leak.onion/post/1", esu.LeakSiteURL)
	assert.Equal(t, "https://cdn.example/shot1.png", esu.ScreenshotURL)
	// Leak-site and screenshot URLs never land in all_urls.
	assert.Equal(t, []string{"https://news.example.com/esu-attack"}, esu.AllURLs)

	springfield := incidents[1]
	assert.Empty(t, springfield.AllURLs)
	assert.Equal(t, "2024-11-22", springfield.IncidentDate)
}

func rssFeed(now time.Time) string {
	recent := now.AddDate(0, 0, -2).Format(time.RFC1123Z)
	older := now.AddDate(0, 0, -10).Format(time.RFC1123Z)
	stale := now.AddDate(0, 0, -90).Format(time.RFC1123Z)
	return fmt.Sprintf(`<?xml version="1.0"?>
<rss version="2.0"><channel><title>Breach News</title>
<item><title>Ransomware closes Example University campus</title>
  <link>https://news.example.com/rss-1</link>
  <category>Education</category>
  <pubDate>%s</pubDate>
  <description>The university cancelled classes.</description></item>
<item><title>School district restores systems after cyberattack</title>
  <link>https://news.example.com/rss-2</link>
  <pubDate>%s</pubDate>
  <description>A school district in Ohio.</description></item>
<item><title>Old university incident outside the window</title>
  <link>https://news.example.com/rss-old</link>
  <category>Education</category>
  <pubDate>%s</pubDate>
  <description>Too old.</description></item>
<item><title>Bank heist unrelated to schools</title>
  <link>https://news.example.com/rss-bank</link>
  <pubDate>%s</pubDate>
  <description>A bank was robbed.</description></item>
</channel></rss>`, recent, older, stale, recent)
}

func rssSpec(baseURL string) config.SourceSpec {
	return config.SourceSpec{
		Name: "test_rss", Group: "rss", Kind: config.KindRSS,
		URL: baseURL, MaxAgeDays: 30,
		Categories: []string{"education", "university", "school", "college"},
	}
}

func TestRSSAdapter_FiltersByAgeAndPredicate(t *testing.T) {
	now := time.Now().UTC()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(rssFeed(now)))
	}))
	defer srv.Close()

	a, err := New(rssSpec(srv.URL), testFetcher())
	require.NoError(t, err)

	batches, err := collectAll(t, a, CollectOptions{})
	require.NoError(t, err)
	incidents := flatten(batches)
	require.Len(t, incidents, 2)
	assert.Equal(t, []string{"https://news.example.com/rss-1"}, incidents[0].AllURLs)
	assert.Equal(t, "Example University", incidents[0].UniversityName)
	assert.Equal(t, []string{"https://news.example.com/rss-2"}, incidents[1].AllURLs)
}

func TestRSSAdapter_IncrementalWatermark(t *testing.T) {
	now := time.Now().UTC()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(rssFeed(now)))
	}))
	defer srv.Close()

	a, err := New(rssSpec(srv.URL), testFetcher())
	require.NoError(t, err)

	// Watermark between the two fresh items: only the newer one passes.
	batches, err := collectAll(t, a, CollectOptions{
		Incremental: true,
		LastPubdate: now.AddDate(0, 0, -5),
	})
	require.NoError(t, err)
	incidents := flatten(batches)
	require.Len(t, incidents, 1)
	assert.Equal(t, "https://news.example.com/rss-1", incidents[0].AllURLs[0])

	// Watermark ahead of everything: nothing is emitted.
	batches, err = collectAll(t, a, CollectOptions{
		Incremental: true,
		LastPubdate: now,
	})
	require.NoError(t, err)
	assert.Empty(t, flatten(batches))
}

func TestFromCatalog_FiltersByGroup(t *testing.T) {
	cat := config.DefaultCatalog()
	adapters, err := FromCatalog(cat, testFetcher(), nil, model.GroupRSS)
	require.NoError(t, err)
	require.Len(t, adapters, 1)
	assert.Equal(t, "edu_rss", adapters[0].Name())
}

func TestGuessInstitution(t *testing.T) {
	cases := map[string]string{
		"Ransomware closes Example University campus":    "Example University",
		"Springfield School District hit by ransomware":  "Springfield School District",
		"Hackers breach Lincoln College of Technology":   "Lincoln College of Technology",
		"No institution in this headline":                "No institution in this headline",
	}
	for in, want := range cases {
		assert.Equal(t, want, guessInstitution(in), in)
	}
}
