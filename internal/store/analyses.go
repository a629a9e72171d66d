package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scanzie/smeal/internal/model"
)

const analysisColumns = `id, user_id, url, title, schema_version, technical, content, on_page, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (*model.AnalysisRecord, error) {
	var (
		r                          model.AnalysisRecord
		technical, content, onPage []byte
		createdAt, updatedAt       int64
	)
	if err := row.Scan(&r.ID, &r.UserID, &r.URL, &r.Title, &r.SchemaVersion,
		&technical, &content, &onPage, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := decodeSection(technical, &r.Technical); err != nil {
		return nil, fmt.Errorf("decode technical for %s: %w", r.ID, err)
	}
	if err := decodeSection(content, &r.Content); err != nil {
		return nil, fmt.Errorf("decode content for %s: %w", r.ID, err)
	}
	if err := decodeSection(onPage, &r.OnPage); err != nil {
		return nil, fmt.Errorf("decode on_page for %s: %w", r.ID, err)
	}
	r.CreatedAt = time.Unix(createdAt, 0).UTC()
	r.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	r.Upgrade()
	return &r, nil
}

func decodeSection[T any](raw []byte, dst **T) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	*dst = &v
	return nil
}

func encodeSection[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// GetAnalysisByURL returns the user's record for url or ErrNotFound.
func (s *Store) GetAnalysisByURL(ctx context.Context, userID, url string) (*model.AnalysisRecord, error) {
	row := s.queryRow(ctx,
		`SELECT `+analysisColumns+`
         FROM seo_analysis
         WHERE user_id = ? AND url = ?
         LIMIT 1`,
		userID, url,
	)
	r, err := scanAnalysis(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r, nil
}

// ListAnalyses returns all of the user's records, newest first.
func (s *Store) ListAnalyses(ctx context.Context, userID string) ([]*model.AnalysisRecord, error) {
	rows, err := s.query(ctx,
		`SELECT `+analysisColumns+`
         FROM seo_analysis
         WHERE user_id = ?
         ORDER BY created_at DESC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAnalyses(rows)
}

// ListAnalysesPage returns one page of the user's records, newest first,
// plus the total number of records the user owns.
func (s *Store) ListAnalysesPage(ctx context.Context, userID string, limit, offset int) ([]*model.AnalysisRecord, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM seo_analysis WHERE user_id = ?`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.query(ctx,
		`SELECT `+analysisColumns+`
         FROM seo_analysis
         WHERE user_id = ?
         ORDER BY created_at DESC, id ASC
         LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out, err := collectAnalyses(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func collectAnalyses(rows *sql.Rows) ([]*model.AnalysisRecord, error) {
	out := []*model.AnalysisRecord{}
	for rows.Next() {
		r, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertAnalysis inserts rec or overwrites the existing record for the same
// (user, url). The stored record is returned; on overwrite it keeps its
// original id and created_at.
func (s *Store) UpsertAnalysis(ctx context.Context, rec *model.AnalysisRecord) (*model.AnalysisRecord, error) {
	if rec == nil || rec.UserID == "" || rec.URL == "" {
		return nil, fmt.Errorf("upsert analysis: user id and url are required")
	}
	id := rec.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().Unix()

	technical, err := encodeSection(rec.Technical)
	if err != nil {
		return nil, fmt.Errorf("encode technical: %w", err)
	}
	content, err := encodeSection(rec.Content)
	if err != nil {
		return nil, fmt.Errorf("encode content: %w", err)
	}
	onPage, err := encodeSection(rec.OnPage)
	if err != nil {
		return nil, fmt.Errorf("encode on_page: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("upsert analysis: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Keep the version being replaced so changes can be compared later.
	if _, err := tx.ExecContext(ctx, s.rebind(
		`DELETE FROM seo_analysis_previous
         WHERE id IN (SELECT id FROM seo_analysis WHERE user_id = ? AND url = ?)`),
		rec.UserID, rec.URL); err != nil {
		return nil, fmt.Errorf("archive previous analysis: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.rebind(
		`INSERT INTO seo_analysis_previous (`+analysisColumns+`)
         SELECT `+analysisColumns+` FROM seo_analysis WHERE user_id = ? AND url = ?`),
		rec.UserID, rec.URL); err != nil {
		return nil, fmt.Errorf("archive previous analysis: %w", err)
	}

	_, err = tx.ExecContext(ctx, s.rebind(
		`INSERT INTO seo_analysis (`+analysisColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT (user_id, url) DO UPDATE SET
             title = excluded.title,
             schema_version = excluded.schema_version,
             technical = excluded.technical,
             content = excluded.content,
             on_page = excluded.on_page,
             updated_at = excluded.updated_at`),
		id, rec.UserID, rec.URL, rec.Title, model.CurrentSchemaVersion,
		technical, content, onPage, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert analysis: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("upsert analysis: %w", err)
	}
	return s.GetAnalysisByURL(ctx, rec.UserID, rec.URL)
}

// DeleteAnalysis removes the record with id only if it belongs to userID.
// It returns the number of rows removed.
func (s *Store) DeleteAnalysis(ctx context.Context, userID, id string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("delete analysis: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM seo_analysis WHERE id = ? AND user_id = ?`), id, userID)
	if err != nil {
		return 0, fmt.Errorf("delete analysis: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete analysis: %w", err)
	}
	if n == 0 {
		return 0, nil
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM seo_analysis_previous WHERE id = ? AND user_id = ?`), id, userID); err != nil {
		return 0, fmt.Errorf("delete previous analysis: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("delete analysis: %w", err)
	}
	return n, nil
}

// GetPreviousAnalysis returns the version of the user's record id that the
// latest overwrite replaced, or ErrNotFound when it was never overwritten.
func (s *Store) GetPreviousAnalysis(ctx context.Context, userID, id string) (*model.AnalysisRecord, error) {
	row := s.queryRow(ctx,
		`SELECT `+analysisColumns+` FROM seo_analysis_previous WHERE id = ? AND user_id = ? LIMIT 1`,
		id, userID,
	)
	r, err := scanAnalysis(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r, nil
}

// GetAnalysisByID returns the user's record with id or ErrNotFound.
func (s *Store) GetAnalysisByID(ctx context.Context, userID, id string) (*model.AnalysisRecord, error) {
	row := s.queryRow(ctx,
		`SELECT `+analysisColumns+` FROM seo_analysis WHERE id = ? AND user_id = ? LIMIT 1`,
		id, userID,
	)
	r, err := scanAnalysis(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r, nil
}
