package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/cel-labs/cel-translate/internal/content"
)

// DocumentStore implements content.Store on SQLite.
type DocumentStore struct {
	db *sql.DB
}

func (s *DocumentStore) Get(ctx context.Context, id string) (*content.Document, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, title, body, excerpt, type, status FROM documents WHERE id = ?`,
		id,
	)
	var doc content.Document
	if err := row.Scan(&doc.ID, &doc.Title, &doc.Body, &doc.Excerpt, &doc.Type, &doc.Status); err != nil {
		if err == sql.ErrNoRows {
			return nil, content.ErrNotFound
		}
		return nil, err
	}
	return &doc, nil
}

func (s *DocumentStore) Create(ctx context.Context, doc *content.Document) (string, error) {
	id := doc.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UnixNano()
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO documents (id, title, body, excerpt, type, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		doc.Title,
		doc.Body,
		doc.Excerpt,
		doc.Type,
		doc.Status,
		now,
		now,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *DocumentStore) Update(ctx context.Context, doc *content.Document) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE documents SET title = ?, body = ?, excerpt = ?, type = ?, status = ?, updated_at = ?
		 WHERE id = ?`,
		doc.Title,
		doc.Body,
		doc.Excerpt,
		doc.Type,
		doc.Status,
		time.Now().UnixNano(),
		doc.ID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return content.ErrNotFound
	}
	return nil
}

func (s *DocumentStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return content.ErrNotFound
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM document_meta WHERE document_id = ?`, id)
	return err
}

// List returns all documents ordered by creation time.
func (s *DocumentStore) List(ctx context.Context) ([]*content.Document, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, title, body, excerpt, type, status FROM documents ORDER BY created_at ASC, id ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*content.Document, 0)
	for rows.Next() {
		var doc content.Document
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.Body, &doc.Excerpt, &doc.Type, &doc.Status); err != nil {
			return nil, err
		}
		ret = append(ret, &doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *DocumentStore) GetMeta(ctx context.Context, id, key string) (string, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT value FROM document_meta WHERE document_id = ? AND key = ?`,
		id,
		key,
	)
	var value string
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

func (s *DocumentStore) SetMeta(ctx context.Context, id, key, value string) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO document_meta (document_id, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(document_id, key) DO UPDATE SET value = excluded.value`,
		id,
		key,
		value,
	)
	return err
}

func (s *DocumentStore) ListIDsByMeta(ctx context.Context, key, value string) ([]string, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT document_id FROM document_meta WHERE key = ? AND value = ? ORDER BY document_id ASC`,
		key,
		value,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ret = append(ret, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}
