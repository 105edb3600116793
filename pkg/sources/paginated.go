package sources

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/eduthreat/sentinel/pkg/config"
	"github.com/eduthreat/sentinel/pkg/fetch"
	"github.com/eduthreat/sentinel/pkg/model"
)

// paginatedAdapter walks a numbered archive, page 1..N, discovering N from
// the pagination markup of the first page.
type paginatedAdapter struct {
	spec    config.SourceSpec
	fetcher *fetch.Fetcher
}

func (a *paginatedAdapter) Name() string       { return a.spec.Name }
func (a *paginatedAdapter) Group() model.Group { return model.Group(a.spec.Group) }

func (a *paginatedAdapter) Collect(ctx context.Context, opts CollectOptions, sink Sink) error {
	budget := a.spec.MaxPages
	if opts.MaxPages > 0 {
		budget = opts.MaxPages
	}
	if budget <= 0 {
		budget = 1
	}

	lastPage := 1
	for page := 1; page <= lastPage && page <= budget; page++ {
		pageURL := fmt.Sprintf(a.spec.URL, page)
		doc, err := a.fetcher.Get(ctx, pageURL, fetch.DefaultOptions())
		if err != nil {
			if page == 1 {
				return fmt.Errorf("source %s: %w", a.spec.Name, err)
			}
			// A missing later page ends the walk, partial progress stands.
			return nil
		}

		parsed, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.Body))
		if err != nil {
			return fmt.Errorf("source %s: parse page %d: %w", a.spec.Name, page, err)
		}

		if page == 1 {
			if n := discoverLastPage(parsed, a.spec.Selectors.Pagination); n > lastPage {
				lastPage = n
			}
		}

		incidents := parseListing(parsed, a.spec, pageURL)
		if len(incidents) == 0 {
			return nil
		}

		// Incremental mode stops at the first page that is entirely older
		// than the watermark; archives list newest first.
		if opts.Incremental && !opts.LastPubdate.IsZero() {
			fresh := incidents[:0]
			for _, inc := range incidents {
				if inc.SourcePublished.IsZero() || inc.SourcePublished.After(opts.LastPubdate) {
					fresh = append(fresh, inc)
				}
			}
			if len(fresh) == 0 {
				return nil
			}
			incidents = fresh
		}

		if err := sink(incidents); err != nil {
			return err
		}
	}
	return nil
}

// discoverLastPage returns the highest page number in the pagination
// links, or 1 when none parse.
func discoverLastPage(doc *goquery.Document, selector string) int {
	if selector == "" {
		return 1
	}
	last := 1
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		n, err := strconv.Atoi(strings.TrimSpace(s.Text()))
		if err == nil && n > last {
			last = n
		}
	})
	return last
}
