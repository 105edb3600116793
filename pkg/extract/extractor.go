// Package extract turns fetched pages into article text: readability
// parsing with a CSS selector cascade as fallback, charset decoding, and
// publish-date normalization.
package extract

import (
	"bytes"
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/eduthreat/sentinel/pkg/fetch"
	"github.com/eduthreat/sentinel/pkg/model"
)

// minContentChars is the floor below which extraction counts as failed.
const minContentChars = 50

// minGeneralSiteChars applies to general news sites, where anything this
// short is navigation chrome rather than an article.
const minGeneralSiteChars = 100

// contentSelectors is the fallback cascade tried when readability comes up
// short, most specific first.
var contentSelectors = []string{
	`article`,
	`[itemprop="articleBody"]`,
	`.article-body`, `.article-content`, `.articleBody`,
	`.post-content`, `.entry-content`, `.story-body`,
	`main .content`, `main`,
	`#content`,
}

// chromeSelectors is removed before text extraction.
var chromeSelectors = `nav, header, footer, aside, script, style, noscript, form, .sidebar, .comments, .related-articles, .newsletter-signup, .share-buttons, .advertisement`

// Extractor fetches a URL and extracts its article.
type Extractor struct {
	fetcher *fetch.Fetcher
	logger  *slog.Logger
}

// New creates an extractor over the given fetcher.
func New(fetcher *fetch.Fetcher) *Extractor {
	return &Extractor{
		fetcher: fetcher,
		logger:  slog.Default().With("component", "extract"),
	}
}

// Extract fetches one URL and returns the article. Failures are recorded
// on the article rather than returned: a fetch or extraction failure for
// one URL never fails the batch.
func (e *Extractor) Extract(ctx context.Context, incidentID, rawURL string) *model.Article {
	article := &model.Article{IncidentID: incidentID, URL: rawURL}

	opts := fetch.DefaultOptions()
	opts.ContentCheck = func(body []byte) bool {
		text, _, _ := extractText(body, rawURL)
		return len(text) >= minContentChars
	}

	doc, err := e.fetcher.Get(ctx, rawURL, opts)
	if err != nil {
		e.logger.Warn("fetch failed", "url", rawURL, "error", err)
		article.ErrorMessage = err.Error()
		return article
	}

	body := decodeCharset(doc.Body)
	text, meta, err := extractText(body, rawURL)
	if err != nil {
		article.ErrorMessage = "extraction failed: " + err.Error()
		return article
	}

	article.Title = meta.title
	article.Author = meta.author
	if iso, ok := NormalizeDate(meta.published); ok {
		article.PublishDate = iso
	}
	article.Content = text
	article.ContentLength = len(text)

	threshold := minContentChars
	if generalNewsSite(rawURL) {
		threshold = minGeneralSiteChars
	}
	if len(text) < threshold {
		article.ErrorMessage = "extracted content too short"
		return article
	}
	article.FetchSuccessful = true
	return article
}

type pageMeta struct {
	title     string
	author    string
	published string
}

// extractText runs readability first, then the selector cascade.
func extractText(body []byte, rawURL string) (string, pageMeta, error) {
	parsed, _ := url.Parse(rawURL)

	var meta pageMeta
	var text string

	if art, err := readability.FromReader(bytes.NewReader(body), parsed); err == nil {
		meta.title = strings.TrimSpace(art.Title)
		meta.author = strings.TrimSpace(art.Byline)
		text = collapseWhitespace(art.TextContent)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		if text != "" {
			return text, meta, nil
		}
		return "", meta, err
	}

	fillMeta(doc, &meta)

	if len(text) < minContentChars {
		doc.Find(chromeSelectors).Remove()
		for _, sel := range contentSelectors {
			candidate := collapseWhitespace(doc.Find(sel).First().Text())
			if len(candidate) >= minContentChars {
				text = candidate
				break
			}
		}
		if len(text) < minContentChars {
			// Last resort: the whole body with chrome stripped.
			text = collapseWhitespace(doc.Find("body").Text())
		}
	}
	return text, meta, nil
}

func fillMeta(doc *goquery.Document, meta *pageMeta) {
	if meta.title == "" {
		if v, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
			meta.title = strings.TrimSpace(v)
		}
	}
	if meta.title == "" {
		meta.title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if meta.author == "" {
		if v, ok := doc.Find(`meta[name="author"]`).Attr("content"); ok {
			meta.author = strings.TrimSpace(v)
		}
	}
	for _, sel := range []string{
		`meta[property="article:published_time"]`,
		`meta[name="date"]`,
		`meta[name="publish-date"]`,
		`meta[itemprop="datePublished"]`,
	} {
		if v, ok := doc.Find(sel).Attr("content"); ok && strings.TrimSpace(v) != "" {
			meta.published = strings.TrimSpace(v)
			return
		}
	}
	if v, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
		meta.published = strings.TrimSpace(v)
	}
}

var wsRe = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(wsRe.ReplaceAllString(s, " "))
}

// generalNewsSiteHosts lists broad outlets whose pages carry heavy chrome;
// short extractions from them are never real articles.
var generalNewsSiteHosts = []string{
	"reuters.com", "apnews.com", "bbc.com", "bbc.co.uk",
	"nytimes.com", "washingtonpost.com", "theguardian.com", "cnn.com",
}

func generalNewsSite(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for _, h := range generalNewsSiteHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

var charsetRe = regexp.MustCompile(`(?i)<meta[^>]+charset=["']?\s*([a-zA-Z0-9_\-]+)`)

// decodeCharset converts non-UTF-8 pages based on the declared meta
// charset. Anything undecodable passes through unchanged.
func decodeCharset(body []byte) []byte {
	head := body
	if len(head) > 2048 {
		head = head[:2048]
	}
	m := charsetRe.FindSubmatch(head)
	if m == nil {
		return body
	}
	name := strings.ToLower(string(m[1]))
	if name == "utf-8" || name == "utf8" {
		return body
	}
	enc, err := htmlindex.Get(name)
	if err != nil || enc == nil {
		return body
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return body
	}
	return decoded
}
