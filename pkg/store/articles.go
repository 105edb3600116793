package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/eduthreat/sentinel/pkg/model"
)

// SaveArticle upserts one fetched article.
func (s *Store) SaveArticle(ctx context.Context, a *model.Article) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO articles (incident_id, url, title, author, publish_date, content,
				fetch_successful, error_message, content_length, is_primary)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(incident_id, url) DO UPDATE SET
				title = excluded.title, author = excluded.author,
				publish_date = excluded.publish_date, content = excluded.content,
				fetch_successful = excluded.fetch_successful,
				error_message = excluded.error_message,
				content_length = excluded.content_length,
				is_primary = excluded.is_primary`,
			a.IncidentID, a.URL, nullStr(a.Title), nullStr(a.Author), nullStr(a.PublishDate),
			nullStr(a.Content), boolInt(a.FetchSuccessful), nullStr(a.ErrorMessage),
			a.ContentLength, boolInt(a.IsPrimary))
		if err != nil {
			return fmt.Errorf("save article %s: %w", a.URL, err)
		}
		return nil
	})
}

// GetArticles returns all articles stored for one incident, in insertion
// order.
func (s *Store) GetArticles(ctx context.Context, incidentID string) ([]*model.Article, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT incident_id, url, title, author, publish_date, content,
			fetch_successful, error_message, content_length, is_primary
		 FROM articles WHERE incident_id = ? ORDER BY rowid`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Article
	for rows.Next() {
		var a model.Article
		var title, author, pubdate, content, errMsg sql.NullString
		var ok, primary int
		if err := rows.Scan(&a.IncidentID, &a.URL, &title, &author, &pubdate, &content,
			&ok, &errMsg, &a.ContentLength, &primary); err != nil {
			return nil, err
		}
		a.Title = title.String
		a.Author = author.String
		a.PublishDate = pubdate.String
		a.Content = content.String
		a.ErrorMessage = errMsg.String
		a.FetchSuccessful = ok != 0
		a.IsPrimary = primary != 0
		out = append(out, &a)
	}
	return out, rows.Err()
}
