// Package model defines the core entities of the ingestion and enrichment
// pipeline: incidents, source events, articles, and enrichment outcomes.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Group classifies a source by ingestion family.
type Group string

const (
	GroupCurated Group = "curated"
	GroupNews    Group = "news"
	GroupRSS     Group = "rss"
)

// DatePrecision qualifies how precisely an incident date is known.
type DatePrecision string

const (
	PrecisionDay     DatePrecision = "day"
	PrecisionMonth   DatePrecision = "month"
	PrecisionYear    DatePrecision = "year"
	PrecisionUnknown DatePrecision = "unknown"
)

// Status marks whether an incident is confirmed or merely suspected.
type Status string

const (
	StatusSuspected Status = "suspected"
	StatusConfirmed Status = "confirmed"
)

// Confidence reflects the trust class of the originating source.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Incident is one observed cyber event affecting one educational institution.
type Incident struct {
	IncidentID    string `json:"incident_id"`
	Source        string `json:"source"`
	SourceEventID string `json:"source_event_id"`

	UniversityName  string `json:"university_name"`
	VictimRawName   string `json:"victim_raw_name"`
	InstitutionType string `json:"institution_type,omitempty"`
	Country         string `json:"country,omitempty"`
	Region          string `json:"region,omitempty"`
	City            string `json:"city,omitempty"`

	// IncidentDate is ISO YYYY-MM-DD; empty means unknown, which couples
	// with DatePrecision == PrecisionUnknown.
	IncidentDate  string        `json:"incident_date,omitempty"`
	DatePrecision DatePrecision `json:"date_precision"`

	SourcePublished time.Time `json:"source_published_date,omitempty"`
	IngestedAt      time.Time `json:"ingested_at"`

	Title    string `json:"title,omitempty"`
	Subtitle string `json:"subtitle,omitempty"`

	PrimaryURL      string   `json:"primary_url,omitempty"`
	AllURLs         []string `json:"all_urls,omitempty"`
	LeakSiteURL     string   `json:"leak_site_url,omitempty"`
	SourceDetailURL string   `json:"source_detail_url,omitempty"`
	ScreenshotURL   string   `json:"screenshot_url,omitempty"`

	AttackTypeHint   string     `json:"attack_type_hint,omitempty"`
	Status           Status     `json:"status"`
	SourceConfidence Confidence `json:"source_confidence"`
	Notes            string     `json:"notes,omitempty"`

	LLMEnriched   bool      `json:"llm_enriched"`
	LLMEnrichedAt time.Time `json:"llm_enriched_at,omitempty"`
	LLMSummary    string    `json:"llm_summary,omitempty"`
	LLMTimeline   string    `json:"llm_timeline,omitempty"`
	LLMMitre      string    `json:"llm_mitre_attack,omitempty"`
	LLMDynamics   string    `json:"llm_attack_dynamics,omitempty"`
	LastUpdatedAt time.Time `json:"last_updated_at,omitempty"`
}

// IncidentID derives the stable identifier for a (source, unique string)
// pair: "<source>_<16 hex>" where the hex is the first 8 bytes of
// SHA-256(source|unique). The same inputs always produce the same id.
func IncidentID(source, unique string) string {
	sum := sha256.Sum256([]byte(source + "|" + unique))
	return fmt.Sprintf("%s_%s", source, hex.EncodeToString(sum[:8]))
}

// CompositeEventKey builds the unique string for API-derived sources that
// have no canonical article URL.
func CompositeEventKey(victim, domain, date, group, country string) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s", victim, domain, date, group, country)
}

// AddURL appends a URL to AllURLs unless it is already present. Order of
// first discovery is preserved.
func (i *Incident) AddURL(url string) {
	if url == "" {
		return
	}
	for _, u := range i.AllURLs {
		if u == url {
			return
		}
	}
	i.AllURLs = append(i.AllURLs, url)
}

// SetIncidentDate sets date and precision together, keeping the invariant
// that an empty date always carries PrecisionUnknown.
func (i *Incident) SetIncidentDate(date string, precision DatePrecision) {
	if date == "" {
		i.IncidentDate = ""
		i.DatePrecision = PrecisionUnknown
		return
	}
	if precision == "" || precision == PrecisionUnknown {
		precision = PrecisionDay
	}
	i.IncidentDate = date
	i.DatePrecision = precision
}

// MergeURLs unions other into AllURLs preserving existing order and
// appending unseen elements in their given order.
func MergeURLs(existing, other []string) []string {
	out := make([]string, 0, len(existing)+len(other))
	seen := make(map[string]bool, len(existing)+len(other))
	for _, u := range existing {
		if u != "" && !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	for _, u := range other {
		if u != "" && !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}
