package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"latdyn/internal/services"
)

// Collections written by the pipeline.
const (
	CollectionLatticeDynamics       = "lattice_dynamics"
	CollectionRenormLatticeDynamics = "renormalized_lattice_dynamics"
	CollectionThermalConductivity   = "lattice_thermal_conductivity"
)

// Document is one stored JSON document.
type Document struct {
	ID         int64
	Collection string
	Body       json.RawMessage
	CreatedAt  time.Time
}

// Decode unmarshals the document body into v.
func (d Document) Decode(v any) error {
	return json.Unmarshal(d.Body, v)
}

// InsertDocument sanitizes doc and stores it in collection, returning the row id.
func (s *Store) InsertDocument(ctx context.Context, collection string, doc any) (int64, error) {
	if strings.TrimSpace(collection) == "" {
		return 0, services.Wrap(services.ErrValidation, "store", "insert document", "collection required", nil)
	}
	clean, err := Sanitize(doc)
	if err != nil {
		return 0, fmt.Errorf("sanitize document: %w", err)
	}
	body, err := json.Marshal(clean)
	if err != nil {
		return 0, fmt.Errorf("encode document: %w", err)
	}
	res, err := s.execWithRetry(ctx,
		"INSERT INTO documents (collection, body, created_at) VALUES (?, ?, ?)",
		collection, string(body), formatTime(time.Now()),
	)
	if err != nil {
		return 0, fmt.Errorf("insert document: %w", err)
	}
	return res.LastInsertId()
}

// GetDocument fetches a document by id.
func (s *Store) GetDocument(ctx context.Context, id int64) (*Document, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		"SELECT id, collection, body, created_at FROM documents WHERE id = ?", id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "store", "get document", fmt.Sprintf("document %d", id), nil)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// FindDocuments returns documents in collection whose top-level field equals
// value, oldest first. An empty field returns the whole collection.
func (s *Store) FindDocuments(ctx context.Context, collection, field string, value any) ([]Document, error) {
	ctx = ensureContext(ctx)
	query := "SELECT id, collection, body, created_at FROM documents WHERE collection = ?"
	args := []any{collection}
	if field != "" {
		query += " AND json_extract(body, ?) = ?"
		args = append(args, "$."+field, value)
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(scanner rowScanner) (*Document, error) {
	var (
		doc       Document
		body      string
		createdAt sql.NullString
	)
	if err := scanner.Scan(&doc.ID, &doc.Collection, &body, &createdAt); err != nil {
		return nil, err
	}
	doc.Body = json.RawMessage(body)
	if createdAt.Valid {
		doc.CreatedAt = parseTime(createdAt.String)
	}
	return &doc, nil
}
