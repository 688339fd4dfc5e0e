package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/models"
)

type CourseConfigRepository interface {
	// GetCourseConfig returns nil, nil when the course has no stored policy.
	GetCourseConfig(ctx context.Context, courseCode string) (*models.CourseConfig, error)
}

type courseConfigRepository struct {
	*PostgresRepository
}

func NewCourseConfigRepository(db *sql.DB, logger zerolog.Logger) CourseConfigRepository {
	return &courseConfigRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

func (r *courseConfigRepository) GetCourseConfig(ctx context.Context, courseCode string) (*models.CourseConfig, error) {
	query := `
		SELECT course_code, plagiarism_threshold, include_references
		FROM course_policies
		WHERE course_code = $1
	`

	var cfg models.CourseConfig
	err := r.db.QueryRowContext(ctx, query, courseCode).Scan(
		&cfg.CourseCode,
		&cfg.PlagiarismThreshold,
		&cfg.IncludeReferences,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get course policy: %w", err)
	}
	return &cfg, nil
}
