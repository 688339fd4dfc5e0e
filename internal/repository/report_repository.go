package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/models"
)

type ReportRepository interface {
	// Persist replaces the document's report and, when grade is non-nil,
	// its grade fields in a single transaction.
	Persist(ctx context.Context, documentID int64, report *models.PlagiarismReport, grade *models.GradeUpdate) error
	// GetReport returns nil, nil when the document or its report is missing.
	GetReport(ctx context.Context, documentID int64) (*models.PlagiarismReport, error)
}

type reportRepository struct {
	*PostgresRepository
}

func NewReportRepository(db *sql.DB, logger zerolog.Logger) ReportRepository {
	return &reportRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

func (r *reportRepository) Persist(ctx context.Context, documentID int64, report *models.PlagiarismReport, grade *models.GradeUpdate) (err error) {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	tx, err := r.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				r.logger.Error().Err(rbErr).Int64("document_id", documentID).Msg("Failed to rollback report transaction")
			}
		}
	}()

	// Concurrent checks of one document serialize here; the later commit wins.
	var locked int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM documents WHERE id = $1 FOR UPDATE`, documentID).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to lock document: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE documents
		SET plagiarism_report = $2,
			plagiarism_percentage = $3,
			status = $4,
			checked_at = $5,
			requested_exclude_references = NULL,
			requested_exclude_quotes = NULL,
			updated_at = NOW()
		WHERE id = $1
	`, documentID, payload, report.PlagiarismPercent, string(models.DocumentStatusChecked), report.CheckedAt)
	if err != nil {
		return fmt.Errorf("failed to store report: %w", err)
	}

	if grade != nil {
		_, err = tx.ExecContext(ctx, `
			UPDATE documents
			SET totalmarks = $2, obtmarks = $3, auto_graded = $4, comment = $5
			WHERE id = $1
		`, documentID, grade.TotalMarks, grade.ObtainedMarks, grade.AutoGraded, grade.Comment)
		if err != nil {
			return fmt.Errorf("failed to store grade: %w", err)
		}
	}

	matched := make([]int64, 0, len(report.Matches))
	for _, m := range report.Matches {
		matched = append(matched, m.PeerID)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO plagiarism_checks (
			report_id, document_id, plagiarism_percentage, threshold, passed,
			strategy, matched_document_ids, processing_time_ms, checked_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		report.ID,
		documentID,
		report.PlagiarismPercent,
		report.Threshold,
		report.Passed,
		report.Strategy,
		pq.Array(matched),
		report.ProcessingTimeMs,
		report.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record check history: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit report: %w", err)
	}
	return nil
}

func (r *reportRepository) GetReport(ctx context.Context, documentID int64) (*models.PlagiarismReport, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT plagiarism_report FROM documents WHERE id = $1`, documentID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	if len(payload) == 0 {
		return nil, nil
	}

	var report models.PlagiarismReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("failed to decode stored report: %w", err)
	}
	return &report, nil
}
