package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kmorozov/guideline-copilot/internal/core/domain"
)

// Registry is the durable document registry: one row per document, with the
// content fingerprint held unique alongside the doc_id.
type Registry struct {
	db *sql.DB
}

func NewRegistry(db *sql.DB) *Registry {
	return &Registry{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *Registry) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent api startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	title TEXT,
	source TEXT,
	category TEXT,
	fingerprint TEXT NOT NULL UNIQUE,
	storage_path TEXT NOT NULL,
	pages INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *Registry) LookupByFingerprint(ctx context.Context, fingerprint string) (string, bool, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id FROM documents WHERE fingerprint = $1
`, fingerprint)

	var docID string
	if err := row.Scan(&docID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("scan fingerprint lookup: %w", err)
	}
	return docID, true, nil
}

func (r *Registry) Get(ctx context.Context, docID string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, title, source, category, fingerprint, storage_path, pages, created_at
FROM documents
WHERE id = $1
`, docID)

	var doc domain.Document
	err := row.Scan(
		&doc.ID, &doc.Title, &doc.Source, &doc.Category,
		&doc.Fingerprint, &doc.StoragePath, &doc.Pages, &doc.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "registry get", fmt.Errorf("doc_id %q", docID))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return &doc, nil
}

func (r *Registry) List(ctx context.Context) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, title, source, category, fingerprint, storage_path, pages, created_at
FROM documents
ORDER BY id
`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []domain.Document
	for rows.Next() {
		var doc domain.Document
		if err := rows.Scan(
			&doc.ID, &doc.Title, &doc.Source, &doc.Category,
			&doc.Fingerprint, &doc.StoragePath, &doc.Pages, &doc.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

// Commit records the document and its fingerprint mapping in one transaction.
// The row lock on the doc_id makes the existence check and insert a single
// critical section across processes.
func (r *Registry) Commit(ctx context.Context, doc *domain.Document) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx, `
SELECT fingerprint FROM documents WHERE id = $1 FOR UPDATE
`, doc.ID)

	var existingFingerprint string
	switch err := row.Scan(&existingFingerprint); {
	case errors.Is(err, sql.ErrNoRows):
		// New doc_id, free to insert.
	case err != nil:
		return fmt.Errorf("scan existing document: %w", err)
	case existingFingerprint != doc.Fingerprint:
		return domain.WrapError(domain.ErrConflict, "registry commit", fmt.Errorf("doc_id %q already registered", doc.ID))
	default:
		// Same content re-committed, nothing to write.
		return tx.Commit()
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO documents (id, title, source, category, fingerprint, storage_path, pages, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`, doc.ID, doc.Title, doc.Source, doc.Category, doc.Fingerprint, doc.StoragePath, doc.Pages, doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit registry tx: %w", err)
	}
	return nil
}
