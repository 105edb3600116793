package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/eduthreat/sentinel/pkg/model"
)

const incidentColumns = `incident_id, source, source_event_id, university_name, victim_raw_name,
	institution_type, country, region, city, incident_date, date_precision,
	source_published_date, ingested_at, title, subtitle, primary_url, all_urls,
	leak_site_url, source_detail_url, screenshot_url, attack_type_hint, status,
	source_confidence, notes, llm_enriched, llm_enriched_at, llm_summary,
	llm_timeline, llm_mitre_attack, llm_attack_dynamics, last_updated_at`

// InsertIncident inserts an incident, or on re-ingestion merges the new
// URLs into all_urls and refreshes ingested_at. A row is always added to
// incident_sources for the observing source.
func (s *Store) InsertIncident(ctx context.Context, inc *model.Incident) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertIncidentTx(ctx, tx, inc)
	})
}

func insertIncidentTx(ctx context.Context, tx *sql.Tx, inc *model.Incident) error {
	now := time.Now().UTC()
	if inc.IngestedAt.IsZero() {
		inc.IngestedAt = now
	}
	if inc.DatePrecision == "" {
		inc.DatePrecision = model.PrecisionUnknown
	}

	var existingURLs sql.NullString
	err := tx.QueryRowContext(ctx,
		`SELECT all_urls FROM incidents WHERE incident_id = ?`, inc.IncidentID).Scan(&existingURLs)
	switch {
	case err == sql.ErrNoRows:
		_, err = tx.ExecContext(ctx, `INSERT INTO incidents (`+incidentColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			inc.IncidentID, inc.Source, inc.SourceEventID, inc.UniversityName, nullStr(inc.VictimRawName),
			nullStr(inc.InstitutionType), nullStr(inc.Country), nullStr(inc.Region), nullStr(inc.City),
			nullStr(inc.IncidentDate), string(inc.DatePrecision),
			nullDate(inc.SourcePublished), inc.IngestedAt.Format(timeLayout),
			nullStr(inc.Title), nullStr(inc.Subtitle), nullStr(inc.PrimaryURL),
			strings.Join(inc.AllURLs, ";"),
			nullStr(inc.LeakSiteURL), nullStr(inc.SourceDetailURL), nullStr(inc.ScreenshotURL),
			nullStr(inc.AttackTypeHint), string(inc.Status), string(inc.SourceConfidence),
			nullStr(inc.Notes), boolInt(inc.LLMEnriched), nullTime(inc.LLMEnrichedAt),
			nullStr(inc.LLMSummary), nullStr(inc.LLMTimeline), nullStr(inc.LLMMitre),
			nullStr(inc.LLMDynamics), now.Format(timeLayout))
		if err != nil {
			return fmt.Errorf("insert incident %s: %w", inc.IncidentID, err)
		}
	case err != nil:
		return fmt.Errorf("lookup incident %s: %w", inc.IncidentID, err)
	default:
		merged := model.MergeURLs(splitURLs(existingURLs.String), inc.AllURLs)
		_, err = tx.ExecContext(ctx,
			`UPDATE incidents SET all_urls = ?, ingested_at = ?, last_updated_at = ? WHERE incident_id = ?`,
			strings.Join(merged, ";"), now.Format(timeLayout), now.Format(timeLayout), inc.IncidentID)
		if err != nil {
			return fmt.Errorf("merge incident %s: %w", inc.IncidentID, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO incident_sources (incident_id, source, observed_at) VALUES (?, ?, ?)`,
		inc.IncidentID, inc.Source, now.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("record incident source: %w", err)
	}
	return nil
}

// GetIncident loads one incident by id.
func (s *Store) GetIncident(ctx context.Context, incidentID string) (*model.Incident, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+incidentColumns+` FROM incidents WHERE incident_id = ?`, incidentID)
	inc, err := scanIncident(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return inc, err
}

// GetUnenrichedIncidents returns incidents awaiting enrichment, newest
// first. Incidents without any article URL are skipped: there is nothing
// to enrich from. limit <= 0 means no limit.
func (s *Store) GetUnenrichedIncidents(ctx context.Context, limit int) ([]*model.Incident, error) {
	q := `SELECT ` + incidentColumns + ` FROM incidents
		WHERE llm_enriched = 0 AND all_urls != '' ORDER BY ingested_at DESC`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.db.QueryContext(ctx, q+` LIMIT ?`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, q)
	}
	if err != nil {
		return nil, fmt.Errorf("query unenriched: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

// CountBySource returns incident counts keyed by source.
func (s *Store) CountBySource(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source, COUNT(*) FROM incidents GROUP BY source`)
	if err != nil {
		return nil, fmt.Errorf("count by source: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]int)
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, err
		}
		out[source] = n
	}
	return out, rows.Err()
}

// DeleteIncident removes an incident and, via foreign keys, its articles
// and enrichment rows. Used only by the post-enrichment dedup pass and
// administrative tooling.
func (s *Store) DeleteIncident(ctx context.Context, incidentID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM source_events WHERE incident_id = ?`, incidentID); err != nil {
			return fmt.Errorf("delete source events: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM incidents WHERE incident_id = ?`, incidentID); err != nil {
			return fmt.Errorf("delete incident: %w", err)
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncident(row rowScanner) (*model.Incident, error) {
	var inc model.Incident
	var (
		victimRaw, instType, ctry, region, city        sql.NullString
		incDate, precision, pubdate, ingested          sql.NullString
		title, subtitle, primaryURL, allURLs           sql.NullString
		leakURL, detailURL, shotURL, hint, status      sql.NullString
		confidence, notes, enrichedAt, summary         sql.NullString
		timeline, mitre, dynamics, updatedAt           sql.NullString
		enriched                                       int
	)
	err := row.Scan(&inc.IncidentID, &inc.Source, &inc.SourceEventID, &inc.UniversityName, &victimRaw,
		&instType, &ctry, &region, &city, &incDate, &precision,
		&pubdate, &ingested, &title, &subtitle, &primaryURL, &allURLs,
		&leakURL, &detailURL, &shotURL, &hint, &status,
		&confidence, &notes, &enriched, &enrichedAt, &summary,
		&timeline, &mitre, &dynamics, &updatedAt)
	if err != nil {
		return nil, err
	}
	inc.VictimRawName = victimRaw.String
	inc.InstitutionType = instType.String
	inc.Country = ctry.String
	inc.Region = region.String
	inc.City = city.String
	inc.IncidentDate = incDate.String
	inc.DatePrecision = model.DatePrecision(precision.String)
	inc.SourcePublished = parseTime(pubdate)
	inc.IngestedAt = parseTime(ingested)
	inc.Title = title.String
	inc.Subtitle = subtitle.String
	inc.PrimaryURL = primaryURL.String
	inc.AllURLs = splitURLs(allURLs.String)
	inc.LeakSiteURL = leakURL.String
	inc.SourceDetailURL = detailURL.String
	inc.ScreenshotURL = shotURL.String
	inc.AttackTypeHint = hint.String
	inc.Status = model.Status(status.String)
	inc.SourceConfidence = model.Confidence(confidence.String)
	inc.Notes = notes.String
	inc.LLMEnriched = enriched != 0
	inc.LLMEnrichedAt = parseTime(enrichedAt)
	inc.LLMSummary = summary.String
	inc.LLMTimeline = timeline.String
	inc.LLMMitre = mitre.String
	inc.LLMDynamics = dynamics.String
	inc.LastUpdatedAt = parseTime(updatedAt)
	return &inc, nil
}

func splitURLs(joined string) []string {
	if joined == "" {
		return nil
	}
	parts := strings.Split(joined, ";")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
