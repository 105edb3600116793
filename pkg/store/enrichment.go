package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/eduthreat/sentinel/pkg/model"
)

// SaveEnrichmentParams carries everything one enrichment pass persists for
// an incident.
type SaveEnrichmentParams struct {
	IncidentID  string
	FullRecord  string // serialized full enrichment record
	RawResponse string // raw model output, kept for replay and audit
	Version     string // semver of the enrichment schema
	ContentHash string // SHA-256 of the canonical JSON of FullRecord

	Flat *model.FlatEnrichment

	PrimaryURL   string
	Summary      string
	TimelineJSON string
	MitreJSON    string
	DynamicsJSON string

	// Optional corrections discovered during enrichment.
	IncidentDate  string
	DatePrecision model.DatePrecision
	Country       string
}

// SaveEnrichment persists an enrichment atomically: the full record, the
// flat projection, the incident update, primary-article marking, and
// deletion of the non-primary articles all commit together or not at all.
func (s *Store) SaveEnrichment(ctx context.Context, p SaveEnrichmentParams) error {
	if p.Flat == nil {
		return fmt.Errorf("save enrichment %s: flat projection is required", p.IncidentID)
	}
	now := time.Now().UTC()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO incident_enrichments (incident_id, enrichment_data, raw_response,
				enrichment_version, content_hash, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(incident_id) DO UPDATE SET
				enrichment_data = excluded.enrichment_data,
				raw_response = excluded.raw_response,
				enrichment_version = excluded.enrichment_version,
				content_hash = excluded.content_hash,
				updated_at = excluded.updated_at`,
			p.IncidentID, p.FullRecord, nullStr(p.RawResponse), p.Version,
			nullStr(p.ContentHash), now.Format(timeLayout), now.Format(timeLayout))
		if err != nil {
			return fmt.Errorf("save enrichment %s: %w", p.IncidentID, err)
		}

		if err := upsertFlatTx(ctx, tx, p.IncidentID, p.Flat, now); err != nil {
			return err
		}

		set := []string{
			"llm_enriched = 1", "llm_enriched_at = ?", "primary_url = ?",
			"llm_summary = ?", "llm_timeline = ?", "llm_mitre_attack = ?",
			"llm_attack_dynamics = ?", "last_updated_at = ?",
		}
		args := []any{
			now.Format(timeLayout), nullStr(p.PrimaryURL),
			nullStr(p.Summary), nullStr(p.TimelineJSON), nullStr(p.MitreJSON),
			nullStr(p.DynamicsJSON), now.Format(timeLayout),
		}
		if p.IncidentDate != "" {
			set = append(set, "incident_date = ?", "date_precision = ?")
			prec := p.DatePrecision
			if prec == "" {
				prec = model.PrecisionDay
			}
			args = append(args, p.IncidentDate, string(prec))
		}
		if p.Country != "" {
			set = append(set, "country = ?")
			args = append(args, p.Country)
		}
		args = append(args, p.IncidentID)
		if _, err := tx.ExecContext(ctx,
			`UPDATE incidents SET `+strings.Join(set, ", ")+` WHERE incident_id = ?`, args...); err != nil {
			return fmt.Errorf("update incident %s: %w", p.IncidentID, err)
		}

		if p.PrimaryURL != "" {
			if _, err := tx.ExecContext(ctx,
				`UPDATE articles SET is_primary = 1 WHERE incident_id = ? AND url = ?`,
				p.IncidentID, p.PrimaryURL); err != nil {
				return fmt.Errorf("mark primary article: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM articles WHERE incident_id = ? AND url != ?`,
				p.IncidentID, p.PrimaryURL); err != nil {
				return fmt.Errorf("delete non-primary articles: %w", err)
			}
		}
		return nil
	})
}

// MarkEnrichmentSkipped flags an incident as processed without an
// enrichment record, recording the classification reason in notes.
func (s *Store) MarkEnrichmentSkipped(ctx context.Context, incidentID, reason string) error {
	now := time.Now().UTC().Format(timeLayout)
	marker := "LLM_ENRICHMENT_SKIPPED: " + reason
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE incidents SET llm_enriched = 1, llm_enriched_at = ?, last_updated_at = ?,
				notes = CASE WHEN notes IS NULL OR notes = '' THEN ? ELSE notes || char(10) || ? END
			 WHERE incident_id = ?`,
			now, now, marker, marker, incidentID)
		if err != nil {
			return fmt.Errorf("mark skipped %s: %w", incidentID, err)
		}
		return nil
	})
}

// GetEnrichmentVersion returns the stored enrichment schema version for an
// incident, or "" when none exists.
func (s *Store) GetEnrichmentVersion(ctx context.Context, incidentID string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT enrichment_version FROM incident_enrichments WHERE incident_id = ?`, incidentID).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get enrichment version: %w", err)
	}
	return v, nil
}

// ShouldUpgrade decides whether a candidate enrichment may replace an
// existing one. Within the same schema major version the answer is always
// yes (latest pass wins); a candidate from an older major version never
// overwrites a newer one.
func ShouldUpgrade(existingVersion, candidateVersion string) bool {
	if existingVersion == "" {
		return true
	}
	ev, err1 := semver.NewVersion(existingVersion)
	cv, err2 := semver.NewVersion(candidateVersion)
	if err1 != nil || err2 != nil {
		return true
	}
	return cv.Major() >= ev.Major()
}

// EnrichedRecord is the slice of an enriched incident the dedup pass needs.
type EnrichedRecord struct {
	IncidentID      string
	InstitutionName string
	IncidentDate    string
	Data            string
}

// ListEnriched returns every incident that has an enrichment record.
func (s *Store) ListEnriched(ctx context.Context) ([]*EnrichedRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.incident_id, COALESCE(f.institution_name, i.university_name), COALESCE(i.incident_date, ''), e.enrichment_data
		 FROM incident_enrichments e
		 JOIN incidents i ON i.incident_id = e.incident_id
		 LEFT JOIN incident_enrichments_flat f ON f.incident_id = e.incident_id`)
	if err != nil {
		return nil, fmt.Errorf("list enriched: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*EnrichedRecord
	for rows.Next() {
		var r EnrichedRecord
		if err := rows.Scan(&r.IncidentID, &r.InstitutionName, &r.IncidentDate, &r.Data); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// RevertEnrichment removes all enrichment state for one incident and moves
// it back to the unenriched state, including any skip marker in notes.
func (s *Store) RevertEnrichment(ctx context.Context, incidentID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return revertTx(ctx, tx, incidentID)
	})
}

// RevertAll reverts every enriched incident.
func (s *Store) RevertAll(ctx context.Context) error {
	ids := []string{}
	rows, err := s.db.QueryContext(ctx, `SELECT incident_id FROM incidents WHERE llm_enriched = 1`)
	if err != nil {
		return fmt.Errorf("list enriched incidents: %w", err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			if err := revertTx(ctx, tx, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func revertTx(ctx context.Context, tx *sql.Tx, incidentID string) error {
	for _, q := range []string{
		`DELETE FROM articles WHERE incident_id = ?`,
		`DELETE FROM incident_enrichments_flat WHERE incident_id = ?`,
		`DELETE FROM incident_enrichments WHERE incident_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, incidentID); err != nil {
			return fmt.Errorf("revert %s: %w", incidentID, err)
		}
	}

	var notes sql.NullString
	if err := tx.QueryRowContext(ctx,
		`SELECT notes FROM incidents WHERE incident_id = ?`, incidentID).Scan(&notes); err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("revert %s: %w", incidentID, err)
	}
	cleaned := stripSkipMarkers(notes.String)

	_, err := tx.ExecContext(ctx,
		`UPDATE incidents SET llm_enriched = 0, llm_enriched_at = NULL, primary_url = NULL,
			llm_summary = NULL, llm_timeline = NULL, llm_mitre_attack = NULL,
			llm_attack_dynamics = NULL, notes = ?, last_updated_at = ?
		 WHERE incident_id = ?`,
		nullStr(cleaned), time.Now().UTC().Format(timeLayout), incidentID)
	if err != nil {
		return fmt.Errorf("revert %s: %w", incidentID, err)
	}
	return nil
}

func stripSkipMarkers(notes string) string {
	if notes == "" {
		return ""
	}
	var kept []string
	for _, line := range strings.Split(notes, "\n") {
		if strings.HasPrefix(line, "LLM_ENRICHMENT_SKIPPED:") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
