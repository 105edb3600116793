package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/eduthreat/sentinel/pkg/model"
)

// RegisterSourceEvent maps a source-native item id to an incident.
// Idempotent: re-registering the same (source, event) pair is a no-op.
func (s *Store) RegisterSourceEvent(ctx context.Context, source, eventID, incidentID string, at time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return registerSourceEventTx(ctx, tx, source, eventID, incidentID, at)
	})
}

func registerSourceEventTx(ctx context.Context, tx *sql.Tx, source, eventID, incidentID string, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO source_events (source, source_event_id, incident_id, registered_at)
		 VALUES (?, ?, ?, ?)`,
		source, eventID, incidentID, at.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("register source event %s/%s: %w", source, eventID, err)
	}
	return nil
}

// SourceEventExists reports whether the (source, event) pair was ingested
// before.
func (s *Store) SourceEventExists(ctx context.Context, source, eventID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM source_events WHERE source = ? AND source_event_id = ?`,
		source, eventID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check source event %s/%s: %w", source, eventID, err)
	}
	return true, nil
}

// GetLastPubdate returns the per-source watermark, or a zero time when no
// run has recorded one yet.
func (s *Store) GetLastPubdate(ctx context.Context, source string) (time.Time, error) {
	var d sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT last_pubdate FROM source_state WHERE source = ?`, source).Scan(&d)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get last pubdate %s: %w", source, err)
	}
	return parseTime(d), nil
}

// SetLastPubdate advances the per-source watermark. The watermark never
// moves backwards: older dates are ignored.
func (s *Store) SetLastPubdate(ctx context.Context, source string, date time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return setLastPubdateTx(ctx, tx, source, date)
	})
}

func setLastPubdateTx(ctx context.Context, tx *sql.Tx, source string, date time.Time) error {
	if date.IsZero() {
		return nil
	}
	var existing sql.NullString
	err := tx.QueryRowContext(ctx,
		`SELECT last_pubdate FROM source_state WHERE source = ?`, source).Scan(&existing)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("read watermark %s: %w", source, err)
	}
	if cur := parseTime(existing); !cur.IsZero() && !date.After(cur) {
		return nil
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO source_state (source, last_pubdate) VALUES (?, ?)
		 ON CONFLICT(source) DO UPDATE SET last_pubdate = excluded.last_pubdate`,
		source, date.UTC().Format(dateLayout))
	if err != nil {
		return fmt.Errorf("set watermark %s: %w", source, err)
	}
	return nil
}

// BatchResult summarizes one persisted adapter batch.
type BatchResult struct {
	Inserted int
	Skipped  int
}

// IngestBatch persists one adapter batch in a single transaction: for each
// incident, skip when its source event is already known, otherwise insert
// and register it; finally advance the source watermark to the newest
// publication date seen.
func (s *Store) IngestBatch(ctx context.Context, source string, batch []*model.Incident) (BatchResult, error) {
	var res BatchResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		var maxPub time.Time
		for _, inc := range batch {
			var one int
			err := tx.QueryRowContext(ctx,
				`SELECT 1 FROM source_events WHERE source = ? AND source_event_id = ?`,
				inc.Source, inc.SourceEventID).Scan(&one)
			switch {
			case err == nil:
				res.Skipped++
			case err == sql.ErrNoRows:
				if err := insertIncidentTx(ctx, tx, inc); err != nil {
					return err
				}
				if err := registerSourceEventTx(ctx, tx, inc.Source, inc.SourceEventID, inc.IncidentID, now); err != nil {
					return err
				}
				res.Inserted++
			default:
				return fmt.Errorf("check source event: %w", err)
			}
			if inc.SourcePublished.After(maxPub) {
				maxPub = inc.SourcePublished
			}
		}
		return setLastPubdateTx(ctx, tx, source, maxPub)
	})
	if err != nil {
		return BatchResult{}, err
	}
	return res, nil
}
