package sources

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/eduthreat/sentinel/pkg/config"
	"github.com/eduthreat/sentinel/pkg/fetch"
	"github.com/eduthreat/sentinel/pkg/model"
)

// rssAdapter ingests an RSS or Atom feed, keeping items that pass the age
// window, the incremental watermark, and the category predicate.
type rssAdapter struct {
	spec    config.SourceSpec
	fetcher *fetch.Fetcher
	now     func() time.Time
}

func (a *rssAdapter) Name() string       { return a.spec.Name }
func (a *rssAdapter) Group() model.Group { return model.Group(a.spec.Group) }

func (a *rssAdapter) Collect(ctx context.Context, opts CollectOptions, sink Sink) error {
	fopts := fetch.DefaultOptions()
	fopts.UseBrowser = false
	doc, err := a.fetcher.Get(ctx, a.spec.URL, fopts)
	if err != nil {
		return fmt.Errorf("source %s: %w", a.spec.Name, err)
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(doc.Body))
	if err != nil {
		return fmt.Errorf("source %s: parse feed: %w", a.spec.Name, err)
	}

	nowFn := a.now
	if nowFn == nil {
		nowFn = time.Now
	}
	var cutoff time.Time
	if a.spec.MaxAgeDays > 0 {
		cutoff = nowFn().AddDate(0, 0, -a.spec.MaxAgeDays)
	}

	var incidents []*model.Incident
	for _, item := range feed.Items {
		if item.Link == "" || item.PublishedParsed == nil {
			continue
		}
		published := item.PublishedParsed.UTC()
		if !cutoff.IsZero() && published.Before(cutoff) {
			continue
		}
		if opts.Incremental && !opts.LastPubdate.IsZero() && !published.After(opts.LastPubdate) {
			continue
		}
		if !a.relevant(item) {
			continue
		}

		inc := newIncident(a.spec, item.Link)
		inc.Title = strings.TrimSpace(item.Title)
		inc.UniversityName = guessInstitution(item.Title)
		inc.VictimRawName = strings.TrimSpace(item.Title)
		inc.Subtitle = strings.TrimSpace(item.Description)
		inc.SourcePublished = published
		inc.SetIncidentDate(published.Format("2006-01-02"), model.PrecisionDay)
		inc.AddURL(item.Link)
		incidents = append(incidents, inc)
	}
	if len(incidents) == 0 {
		return nil
	}
	return sink(incidents)
}

// relevant applies the category predicate: a feed category match, or a
// keyword hit in the title or description. An empty predicate keeps
// everything.
func (a *rssAdapter) relevant(item *gofeed.Item) bool {
	if len(a.spec.Categories) == 0 {
		return true
	}
	haystacks := make([]string, 0, len(item.Categories)+2)
	for _, c := range item.Categories {
		haystacks = append(haystacks, strings.ToLower(c))
	}
	haystacks = append(haystacks,
		strings.ToLower(item.Title), strings.ToLower(item.Description))

	for _, want := range a.spec.Categories {
		want = strings.ToLower(want)
		for _, hay := range haystacks {
			if strings.Contains(hay, want) {
				return true
			}
		}
	}
	return false
}
