package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/models"
	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/storage"
)

type DocumentRepository interface {
	// GetDocument returns nil, nil when the document does not exist.
	GetDocument(ctx context.Context, id int64) (*models.Document, error)
	// GetComparisonPool lists every other document of the course ordered by id.
	GetComparisonPool(ctx context.Context, courseCode string, excludeID int64) ([]models.Document, error)
	LoadContent(ctx context.Context, doc *models.Document) ([]byte, error)
	ListByStatus(ctx context.Context, status models.DocumentStatus, limit int) ([]models.Document, error)
	// MarkPending stores opts with the pending status so a later sweep can
	// honour them.
	MarkPending(ctx context.Context, id int64, opts models.CheckOptions) error
	// MarkFailed moves a pending document to Failed. Other statuses are kept.
	MarkFailed(ctx context.Context, id int64) error
	Ping(ctx context.Context) error
}

type documentRepository struct {
	*PostgresRepository
	blobs storage.BlobStore
}

func NewDocumentRepository(db *sql.DB, blobs storage.BlobStore, logger zerolog.Logger) DocumentRepository {
	return &documentRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
		blobs:              blobs,
	}
}

const documentColumns = `id, filename, course_code, submitter_id, submitter_name, file_key, status, submitted_at,
	requested_exclude_references, requested_exclude_quotes`

func (r *documentRepository) GetDocument(ctx context.Context, id int64) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`

	doc, err := scanDocument(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %d: %w", id, err)
	}
	return doc, nil
}

func (r *documentRepository) GetComparisonPool(ctx context.Context, courseCode string, excludeID int64) ([]models.Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE course_code = $1 AND id <> $2
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, courseCode, excludeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query comparison pool: %w", err)
	}
	defer rows.Close()

	return collectDocuments(rows)
}

func (r *documentRepository) ListByStatus(ctx context.Context, status models.DocumentStatus, limit int) ([]models.Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE status = $1
		ORDER BY submitted_at, id
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents by status: %w", err)
	}
	defer rows.Close()

	return collectDocuments(rows)
}

func (r *documentRepository) MarkPending(ctx context.Context, id int64, opts models.CheckOptions) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE documents
		SET status = $2,
			requested_exclude_references = $3,
			requested_exclude_quotes = $4,
			updated_at = NOW()
		WHERE id = $1
	`, id, string(models.DocumentStatusPending), opts.ExcludeReferences, opts.ExcludeQuotes)
	if err != nil {
		return fmt.Errorf("failed to mark document pending: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *documentRepository) MarkFailed(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE documents
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`, id, string(models.DocumentStatusFailed), string(models.DocumentStatusPending))
	if err != nil {
		return fmt.Errorf("failed to mark document %d failed: %w", id, err)
	}
	return nil
}

// LoadContent returns doc.Content when already populated, otherwise the
// bytes stored under doc.FileKey.
func (r *documentRepository) LoadContent(ctx context.Context, doc *models.Document) ([]byte, error) {
	if len(doc.Content) > 0 {
		return doc.Content, nil
	}
	if doc.FileKey == "" {
		return nil, fmt.Errorf("document %d has no file key", doc.ID)
	}

	data, err := r.blobs.Get(ctx, doc.FileKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load content of document %d: %w", doc.ID, err)
	}
	return data, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		doc           models.Document
		status        string
		excludeRefs   sql.NullBool
		excludeQuotes sql.NullBool
	)
	err := row.Scan(
		&doc.ID,
		&doc.Filename,
		&doc.CourseCode,
		&doc.SubmitterID,
		&doc.SubmitterName,
		&doc.FileKey,
		&status,
		&doc.SubmittedAt,
		&excludeRefs,
		&excludeQuotes,
	)
	if err != nil {
		return nil, err
	}
	doc.Status = models.DocumentStatus(status)
	if excludeRefs.Valid && excludeQuotes.Valid {
		doc.Requested = &models.CheckOptions{
			ExcludeReferences: excludeRefs.Bool,
			ExcludeQuotes:     excludeQuotes.Bool,
		}
	}
	return &doc, nil
}

func collectDocuments(rows *sql.Rows) ([]models.Document, error) {
	var docs []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}
