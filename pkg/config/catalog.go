package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SourceKind selects the adapter family for a catalog entry.
type SourceKind string

const (
	KindCurated   SourceKind = "curated"
	KindPaginated SourceKind = "paginated"
	KindKeyword   SourceKind = "keyword"
	KindAPI       SourceKind = "api"
	KindRSS       SourceKind = "rss"
)

// Selectors are the CSS selectors an HTML adapter uses against a site.
// Site-specific markup lives here, not in code, so a layout change is a
// catalog edit plus a fixture update.
type Selectors struct {
	Article    string `yaml:"article"`     // one incident block
	Title      string `yaml:"title"`
	Subtitle   string `yaml:"subtitle,omitempty"`
	Date       string `yaml:"date,omitempty"`
	Link       string `yaml:"link,omitempty"`
	Country    string `yaml:"country,omitempty"`
	Pagination string `yaml:"pagination,omitempty"` // page-number links
	NextPage   string `yaml:"next_page,omitempty"`
}

// SourceSpec describes one upstream source.
type SourceSpec struct {
	Name            string     `yaml:"name"`
	Group           string     `yaml:"group"` // curated | news | rss
	Kind            SourceKind `yaml:"kind"`
	URL             string     `yaml:"url"`
	SearchURL       string     `yaml:"search_url,omitempty"` // keyword adapters; %s = keyword, %d = page
	Keywords        []string   `yaml:"keywords,omitempty"`
	MaxPages        int        `yaml:"max_pages,omitempty"`
	MaxAgeDays      int        `yaml:"max_age_days,omitempty"`
	RequiresBrowser bool       `yaml:"requires_browser,omitempty"`
	Categories      []string   `yaml:"categories,omitempty"` // RSS category predicate
	Selectors       Selectors  `yaml:"selectors,omitempty"`
	Disabled        bool       `yaml:"disabled,omitempty"`
}

// Catalog is the full set of configured sources.
type Catalog struct {
	Sources []SourceSpec `yaml:"sources"`
}

// LoadCatalog reads a catalog from path, or returns the built-in default
// when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source catalog: %w", err)
	}
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse source catalog: %w", err)
	}
	for i, s := range cat.Sources {
		if s.Name == "" || s.Kind == "" {
			return nil, fmt.Errorf("source catalog entry %d: name and kind are required", i)
		}
	}
	return &cat, nil
}

// Enabled returns the active sources, optionally filtered by name.
func (c *Catalog) Enabled(names []string) []SourceSpec {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []SourceSpec
	for _, s := range c.Sources {
		if s.Disabled {
			continue
		}
		if len(want) > 0 && !want[s.Name] {
			continue
		}
		out = append(out, s)
	}
	return out
}

// DefaultCatalog returns the built-in source set.
func DefaultCatalog() *Catalog {
	return &Catalog{Sources: []SourceSpec{
		{
			Name:  "k12six",
			Group: "curated",
			Kind:  KindCurated,
			URL:   "https://www.k12six.org/map",
			Selectors: Selectors{
				Article: "article.incident",
				Title:   "h2",
				Date:    "time",
				Link:    "a",
			},
		},
		{
			Name:     "edu_breach_archive",
			Group:    "news",
			Kind:     KindPaginated,
			URL:      "https://www.databreaches.net/category/breach-reports/education/page/%d/",
			MaxPages: 50,
			Selectors: Selectors{
				Article:    "article",
				Title:      "h2.entry-title a",
				Date:       "time.entry-date",
				Link:       "h2.entry-title a",
				Pagination: "a.page-numbers",
			},
		},
		{
			Name:      "edu_news_search",
			Group:     "news",
			Kind:      KindKeyword,
			SearchURL: "https://www.bleepingcomputer.com/search/?q=%s&page=%d",
			Keywords:  []string{"university ransomware", "school district cyberattack", "college data breach"},
			MaxPages:  5,
			Selectors: Selectors{
				Article:  "div.bc_latest_news_text",
				Title:    "h4 a",
				Date:     "li.bc_news_date",
				Link:     "h4 a",
				NextPage: "a[rel=next]",
			},
		},
		{
			Name:  "ransomlook_edu",
			Group: "curated",
			Kind:  KindAPI,
			URL:   "https://www.ransomlook.io/api/sector/education",
		},
		{
			Name:       "edu_rss",
			Group:      "rss",
			Kind:       KindRSS,
			URL:        "https://www.databreaches.net/feed/",
			MaxAgeDays: 30,
			Categories: []string{"education", "university", "school", "college", "k-12"},
		},
	}}
}
