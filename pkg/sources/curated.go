package sources

import (
	"bytes"
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/eduthreat/sentinel/pkg/config"
	"github.com/eduthreat/sentinel/pkg/fetch"
	"github.com/eduthreat/sentinel/pkg/model"
)

// curatedAdapter collects from a single curated landing page.
type curatedAdapter struct {
	spec    config.SourceSpec
	fetcher *fetch.Fetcher
}

func (a *curatedAdapter) Name() string       { return a.spec.Name }
func (a *curatedAdapter) Group() model.Group { return model.Group(a.spec.Group) }

func (a *curatedAdapter) Collect(ctx context.Context, opts CollectOptions, sink Sink) error {
	fopts := fetch.DefaultOptions()
	if a.spec.RequiresBrowser {
		fopts.WaitSelector = a.spec.Selectors.Article
	}
	doc, err := a.fetcher.Get(ctx, a.spec.URL, fopts)
	if err != nil {
		return fmt.Errorf("source %s: %w", a.spec.Name, err)
	}

	page, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.Body))
	if err != nil {
		return fmt.Errorf("source %s: parse page: %w", a.spec.Name, err)
	}

	incidents := parseListing(page, a.spec, a.spec.URL)
	if len(incidents) == 0 {
		return nil
	}
	return sink(incidents)
}
