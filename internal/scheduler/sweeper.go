package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/models"
	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/repository"
	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/service"
)

// PendingSweeper periodically checks documents left in the Pending state,
// for example when the broker was unavailable or a queued check was dropped.
type PendingSweeper struct {
	documents repository.DocumentRepository
	courses   repository.CourseConfigRepository
	checks    service.PlagiarismService
	batchSize int
	timeout   time.Duration
	logger    zerolog.Logger

	cron *cron.Cron
}

func NewPendingSweeper(
	documents repository.DocumentRepository,
	courses repository.CourseConfigRepository,
	checks service.PlagiarismService,
	batchSize int,
	timeout time.Duration,
	logger zerolog.Logger,
) *PendingSweeper {
	if batchSize <= 0 {
		batchSize = 20
	}
	return &PendingSweeper{
		documents: documents,
		courses:   courses,
		checks:    checks,
		batchSize: batchSize,
		timeout:   timeout,
		logger:    logger,
	}
}

// Start schedules RunOnce on spec. Overlapping runs are skipped.
func (s *PendingSweeper) Start(ctx context.Context, spec string) error {
	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	_, err := s.cron.AddFunc(spec, func() {
		s.logger.Info().Msg("Running pending document sweep")
		checked, err := s.RunOnce(ctx)
		if err != nil {
			s.logger.Error().Err(err).Int("checked", checked).Msg("Pending sweep failed")
			return
		}
		s.logger.Info().Int("checked", checked).Msg("Pending sweep completed")
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}

	s.cron.Start()
	s.logger.Info().Str("spec", spec).Int("batch_size", s.batchSize).Msg("Pending sweeper started")
	return nil
}

// Stop waits for a running sweep to finish.
func (s *PendingSweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// RunOnce checks up to one batch of pending documents and returns how many
// checks completed. Options stored with a queued request win; otherwise
// reference exclusion follows the course policy. Documents whose own file
// cannot be read are moved to Failed so they leave the pending batch.
func (s *PendingSweeper) RunOnce(ctx context.Context) (int, error) {
	docs, err := s.documents.ListByStatus(ctx, models.DocumentStatusPending, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending documents: %w", err)
	}

	checked := 0
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return checked, err
		}

		opts, err := s.options(ctx, doc)
		if err != nil {
			return checked, err
		}

		checkCtx, cancel := s.checkContext(ctx)
		_, err = s.checks.Check(checkCtx, doc.ID, opts.ExcludeReferences, opts.ExcludeQuotes)
		cancel()

		switch {
		case err == nil:
			checked++
		case errors.Is(err, context.Canceled) && ctx.Err() != nil:
			return checked, err
		case errors.Is(err, service.ErrTargetExtraction), errors.Is(err, service.ErrDocumentNotFound):
			s.logger.Warn().Err(err).Int64("document_id", doc.ID).Msg("Document cannot be checked, marking failed")
			if err := s.documents.MarkFailed(ctx, doc.ID); err != nil {
				s.logger.Error().Err(err).Int64("document_id", doc.ID).Msg("Failed to mark document failed")
			}
		default:
			s.logger.Warn().Err(err).Int64("document_id", doc.ID).Msg("Scheduled check failed")
		}
	}

	return checked, nil
}

func (s *PendingSweeper) options(ctx context.Context, doc models.Document) (models.CheckOptions, error) {
	if doc.Requested != nil {
		return *doc.Requested, nil
	}

	opts := models.CheckOptions{ExcludeReferences: true}
	policy, err := s.courses.GetCourseConfig(ctx, doc.CourseCode)
	if err != nil {
		return opts, fmt.Errorf("failed to load course policy: %w", err)
	}
	if policy != nil {
		opts.ExcludeReferences = !policy.IncludeReferences
	}
	return opts, nil
}

func (s *PendingSweeper) checkContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}
