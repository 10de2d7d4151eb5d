package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pricelab/pipeline"
)

// QualityIssue is a row rejected while preparing an app's dataset.
type QualityIssue struct {
	App       string    `json:"app"`
	Rule      string    `json:"rule"`
	Row       int       `json:"row"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// SaveQualityIssues records the rows a training run rejected, in one
// transaction.
func (s *Store) SaveQualityIssues(ctx context.Context, app string, issues []pipeline.QualityIssue) error {
	if s == nil || s.database == nil {
		return ErrClosed
	}
	if app == "" {
		return errors.New("app required")
	}
	if len(issues) == 0 {
		return nil
	}

	tx, err := s.database.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction failed: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO data_quality (app, rule, row_index, message, created_at)
        VALUES (?, ?, ?, ?, ?)
    `)
	if err != nil {
		return fmt.Errorf("prepare statement failed: %w", err)
	}
	defer stmt.Close()

	for _, issue := range issues {
		at := issue.Timestamp
		if at.IsZero() {
			at = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, app, issue.Rule, issue.Row, issue.Message, at.UTC()); err != nil {
			return fmt.Errorf("insert issue failed: %w", err)
		}
	}
	return tx.Commit()
}

// QualityIssues returns the latest rejected rows of app, newest first.
func (s *Store) QualityIssues(app string, limit int) ([]QualityIssue, error) {
	if s == nil || s.database == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.database.Query(`
        SELECT app, rule, row_index, message, created_at
        FROM data_quality
        WHERE app = ?
        ORDER BY created_at DESC, id DESC
        LIMIT ?
    `, app, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]QualityIssue, 0)
	for rows.Next() {
		var q QualityIssue
		if err := rows.Scan(&q.App, &q.Rule, &q.Row, &q.Message, &q.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}
