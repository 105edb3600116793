// Package sources implements the per-source collectors: curated lists,
// paginated archives, keyword search, sector APIs, and RSS feeds. Each
// adapter emits normalized incidents through a sink callback so long runs
// persist partial progress.
package sources

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/eduthreat/sentinel/pkg/config"
	"github.com/eduthreat/sentinel/pkg/country"
	"github.com/eduthreat/sentinel/pkg/fetch"
	"github.com/eduthreat/sentinel/pkg/model"
)

// ErrCaptcha aborts the current keyword or page walk for one target. The
// orchestrator logs it and moves on to the next source.
var ErrCaptcha = errors.New("captcha challenge encountered")

// CollectOptions tunes one collection run.
type CollectOptions struct {
	// Incremental skips items at or before LastPubdate.
	Incremental bool
	LastPubdate time.Time
	// MaxPages overrides the catalog's page budget when > 0.
	MaxPages int
}

// Sink receives one batch of incidents, typically a page or API response.
// Returning an error stops the adapter.
type Sink func(batch []*model.Incident) error

// Adapter is one upstream source collector.
type Adapter interface {
	Name() string
	Group() model.Group
	Collect(ctx context.Context, opts CollectOptions, sink Sink) error
}

// New builds the adapter for a catalog entry.
func New(spec config.SourceSpec, fetcher *fetch.Fetcher) (Adapter, error) {
	switch spec.Kind {
	case config.KindCurated:
		return &curatedAdapter{spec: spec, fetcher: fetcher}, nil
	case config.KindPaginated:
		return &paginatedAdapter{spec: spec, fetcher: fetcher}, nil
	case config.KindKeyword:
		return &keywordAdapter{spec: spec, fetcher: fetcher}, nil
	case config.KindAPI:
		return &apiAdapter{spec: spec, fetcher: fetcher}, nil
	case config.KindRSS:
		return &rssAdapter{spec: spec, fetcher: fetcher}, nil
	default:
		return nil, fmt.Errorf("source %s: unknown kind %q", spec.Name, spec.Kind)
	}
}

// FromCatalog builds adapters for every enabled entry, optionally filtered
// by name and group.
func FromCatalog(cat *config.Catalog, fetcher *fetch.Fetcher, names []string, group model.Group) ([]Adapter, error) {
	var out []Adapter
	for _, spec := range cat.Enabled(names) {
		if group != "" && model.Group(spec.Group) != group {
			continue
		}
		a, err := New(spec, fetcher)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// confidenceFor maps the source class to its trust level.
func confidenceFor(kind config.SourceKind) model.Confidence {
	switch kind {
	case config.KindCurated:
		return model.ConfidenceHigh
	default:
		return model.ConfidenceMedium
	}
}

// newIncident builds the skeleton every adapter fills in. unique is the
// canonical article URL for news sources or a composite key for API rows.
func newIncident(spec config.SourceSpec, unique string) *model.Incident {
	now := time.Now().UTC()
	return &model.Incident{
		IncidentID:       model.IncidentID(spec.Name, unique),
		Source:           spec.Name,
		SourceEventID:    unique,
		DatePrecision:    model.PrecisionUnknown,
		Status:           model.StatusSuspected,
		SourceConfidence: confidenceFor(spec.Kind),
		IngestedAt:       now,
	}
}

// resolveURL makes href absolute against base.
func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return b.ResolveReference(h).String()
}

var institutionRe = regexp.MustCompile(
	`((?:[A-Z][\w'&.-]*\s+){0,5}(?:University|College|School District|School|Academy|Institute|District)(?:\s+of\s+[A-Z][\w'&.-]*(?:\s+[A-Z][\w'&.-]*)?)?)`)

// guessInstitution pulls the most likely institution name out of a
// headline. Falls back to the headline itself.
func guessInstitution(title string) string {
	if m := institutionRe.FindString(title); m != "" {
		return strings.TrimSpace(m)
	}
	return strings.TrimSpace(title)
}

// normalizeCountry maps a raw country string to its ISO full name; empty
// stays empty.
func normalizeCountry(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	return country.Normalize(raw)
}
