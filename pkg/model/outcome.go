package model

import "time"

// SourceEvent maps a source-native item identifier to the incident it
// produced. Used to detect already-ingested items cheaply.
type SourceEvent struct {
	Source        string    `json:"source"`
	SourceEventID string    `json:"source_event_id"`
	IncidentID    string    `json:"incident_id"`
	RegisteredAt  time.Time `json:"registered_at"`
}

// OutcomeKind classifies the result of enriching one incident. A skipped
// outcome is a legitimate classification, not a failure.
type OutcomeKind string

const (
	OutcomeEnriched        OutcomeKind = "enriched"
	OutcomeNotEducation    OutcomeKind = "not_education_related"
	OutcomeNoValidArticles OutcomeKind = "no_valid_articles"
	OutcomeFailed          OutcomeKind = "failed"
	// OutcomeNewerSchema means a stored enrichment written under a newer
	// schema major was kept instead of the candidate.
	OutcomeNewerSchema OutcomeKind = "newer_schema_kept"
)

// EnrichmentOutcome reports what happened to one incident during an
// enrichment pass.
type EnrichmentOutcome struct {
	Kind       OutcomeKind
	IncidentID string
	PrimaryURL string
	Coverage   int
	Reasoning  string // model reasoning for not_education_related
	Err        error
}
