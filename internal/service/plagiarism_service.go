package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/metrics"
	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/models"
	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/repository"
	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/service/analyzer"
	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/service/extractor"
	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/service/integration"
	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/service/textproc"
)

// CheckState is a step of a single plagiarism check.
type CheckState string

const (
	StateLoading         CheckState = "LOADING"
	StatePreparingCorpus CheckState = "PREPARING_CORPUS"
	StateScoring         CheckState = "SCORING"
	StateAdvising        CheckState = "ADVISING"
	StateFinalizing      CheckState = "FINALIZING"
	StatePersisted       CheckState = "PERSISTED"
	StateAborted         CheckState = "ABORTED"
)

// AutoGradeTotalMarks is the total written with an automatic zero.
const AutoGradeTotalMarks = 100

type PlagiarismService interface {
	Check(ctx context.Context, documentID int64, excludeReferences, excludeQuotes bool) (*models.PlagiarismReport, error)
	GetExistingReport(ctx context.Context, documentID int64) (*models.PlagiarismReport, error)
	// RequestCheck marks the document pending and queues an asynchronous check.
	RequestCheck(ctx context.Context, documentID int64, excludeReferences, excludeQuotes bool) error
}

// EventPublisher is the broker side of a check. Implementations must be
// safe for concurrent use.
type EventPublisher interface {
	PublishCheckRequested(ctx context.Context, event models.PlagiarismCheckRequestedEvent) error
	PublishChecked(ctx context.Context, event models.PlagiarismCheckedEvent) error
}

type PlagiarismConfig struct {
	DefaultThreshold float64
	PeerWorkers      int
	AdvisorTimeout   time.Duration

	// OnTransition, when set, observes every state change of every check.
	OnTransition func(documentID int64, from, to CheckState)
}

type plagiarismService struct {
	documents repository.DocumentRepository
	courses   repository.CourseConfigRepository
	reports   repository.ReportRepository
	extractor extractor.Extractor
	primary   analyzer.Strategy
	fallback  analyzer.Strategy
	advisor   integration.SearchClient
	publisher EventPublisher
	logger    zerolog.Logger
	config    PlagiarismConfig
	now       func() time.Time
}

// NewPlagiarismService wires a check pipeline. publisher may be nil, in
// which case no events are emitted and RequestCheck only marks documents
// pending for the scheduler.
func NewPlagiarismService(
	documents repository.DocumentRepository,
	courses repository.CourseConfigRepository,
	reports repository.ReportRepository,
	ext extractor.Extractor,
	primary analyzer.Strategy,
	fallback analyzer.Strategy,
	advisor integration.SearchClient,
	publisher EventPublisher,
	logger zerolog.Logger,
	config PlagiarismConfig,
) PlagiarismService {
	if config.PeerWorkers <= 0 {
		config.PeerWorkers = 1
	}
	if config.AdvisorTimeout <= 0 {
		config.AdvisorTimeout = 10 * time.Second
	}
	return &plagiarismService{
		documents: documents,
		courses:   courses,
		reports:   reports,
		extractor: ext,
		primary:   primary,
		fallback:  fallback,
		advisor:   advisor,
		publisher: publisher,
		logger:    logger,
		config:    config,
		now:       time.Now,
	}
}

// checkRun carries one check through its states.
type checkRun struct {
	svc   *plagiarismService
	docID int64
	state CheckState
	log   zerolog.Logger
	start time.Time
}

func (r *checkRun) to(next CheckState) {
	prev := r.state
	r.state = next
	r.log.Debug().Str("from", string(prev)).Str("to", string(next)).Msg("Check state transition")
	if r.svc.config.OnTransition != nil {
		r.svc.config.OnTransition(r.docID, prev, next)
	}
}

func (r *checkRun) abort(err error) error {
	r.to(StateAborted)
	metrics.ChecksTotal.WithLabelValues("failed").Inc()
	r.log.Error().Err(err).Str("elapsed", time.Since(r.start).String()).Msg("Plagiarism check aborted")
	return err
}

// preparedPeer is the normalized text of one pool member; ok is false when
// the member was skipped.
type preparedPeer struct {
	peer analyzer.Peer
	text string
	ok   bool
}

func (s *plagiarismService) Check(ctx context.Context, documentID int64, excludeReferences, excludeQuotes bool) (*models.PlagiarismReport, error) {
	run := &checkRun{
		svc:   s,
		docID: documentID,
		log:   s.logger.With().Int64("document_id", documentID).Logger(),
		start: s.now(),
	}
	run.to(StateLoading)

	if documentID <= 0 {
		return nil, run.abort(ErrInvalidDocumentID)
	}
	if err := ctx.Err(); err != nil {
		return nil, run.abort(err)
	}

	doc, err := s.documents.GetDocument(ctx, documentID)
	if err != nil {
		return nil, run.abort(fmt.Errorf("failed to load document: %w", err))
	}
	if doc == nil {
		return nil, run.abort(fmt.Errorf("%w: %d", ErrDocumentNotFound, documentID))
	}

	threshold, err := s.threshold(ctx, doc.CourseCode)
	if err != nil {
		return nil, run.abort(err)
	}

	pool, err := s.documents.GetComparisonPool(ctx, doc.CourseCode, doc.ID)
	if err != nil {
		return nil, run.abort(fmt.Errorf("failed to load comparison pool: %w", err))
	}

	opts := textproc.Options{RemoveReferences: excludeReferences, RemoveQuotes: excludeQuotes}

	report := &models.PlagiarismReport{
		ID:                uuid.New().String(),
		AssignmentID:      doc.ID,
		Filename:          doc.Filename,
		Matches:           []models.SimilarityMatch{},
		ExternalSources:   []models.ExternalSource{},
		Threshold:         threshold,
		Strategy:          models.StrategyNone,
		ExcludeReferences: excludeReferences,
		ExcludeQuotes:     excludeQuotes,
	}

	var grade *models.GradeUpdate
	if len(pool) == 0 {
		// Nothing to compare against: the target is not read and the
		// advisor is not consulted.
		run.log.Info().Str("course_code", doc.CourseCode).Msg("Comparison pool is empty")
		report.Passed = true
	} else {
		grade, err = s.analyze(ctx, run, doc, pool, opts, report)
		if err != nil {
			return nil, run.abort(err)
		}
	}

	run.to(StateFinalizing)
	if err := ctx.Err(); err != nil {
		return nil, run.abort(err)
	}

	finishedAt := s.now()
	report.CheckedAt = finishedAt.UTC()
	report.ProcessingTimeMs = finishedAt.Sub(run.start).Milliseconds()

	if err := s.reports.Persist(ctx, doc.ID, report, grade); err != nil {
		return nil, run.abort(fmt.Errorf("%w: %w", ErrPersistence, err))
	}
	run.to(StatePersisted)

	s.record(report, grade)
	s.publishChecked(ctx, run, report, grade)

	run.log.Info().
		Float64("plagiarism_percentage", report.PlagiarismPercent).
		Float64("threshold", report.Threshold).
		Bool("passed", report.Passed).
		Str("strategy", report.Strategy).
		Int("matches", len(report.Matches)).
		Int("compared", report.ComparedCount).
		Int("skipped", report.SkippedCount).
		Int("external_sources", len(report.ExternalSources)).
		Int64("processing_time_ms", report.ProcessingTimeMs).
		Msg("Plagiarism check completed")

	return report, nil
}

// analyze runs PREPARING_CORPUS, SCORING and ADVISING and fills report. It
// returns the grade update when the auto-grade policy fires.
func (s *plagiarismService) analyze(
	ctx context.Context,
	run *checkRun,
	doc *models.Document,
	pool []models.Document,
	opts textproc.Options,
	report *models.PlagiarismReport,
) (*models.GradeUpdate, error) {
	run.to(StatePreparingCorpus)

	content, err := s.documents.LoadContent(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to load target content: %w", err)
	}
	rawText, err := s.extractor.Extract(content, doc.Filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTargetExtraction, err)
	}
	targetText := textproc.Normalize(rawText, opts)

	// The advisor only needs the raw target text, so it runs alongside
	// corpus preparation and scoring under its own deadline.
	advisorCtx, cancelAdvisor := context.WithTimeout(ctx, s.config.AdvisorTimeout)
	defer cancelAdvisor()
	sourcesCh := make(chan []models.ExternalSource, 1)
	go func() {
		sourcesCh <- s.advisor.FindSources(advisorCtx, rawText)
	}()

	prepared, err := s.preparePeers(ctx, run, pool, opts)
	if err != nil {
		return nil, err
	}

	peers := make([]analyzer.Peer, 0, len(prepared))
	texts := make([]string, 0, len(prepared))
	for _, p := range prepared {
		if !p.ok {
			continue
		}
		peers = append(peers, p.peer)
		texts = append(texts, p.text)
	}
	report.ComparedCount = len(texts)
	report.SkippedCount = len(pool) - len(texts)

	run.to(StateScoring)
	if len(texts) > 0 {
		outcome := s.score(run, targetText, texts)
		if outcome.Failed() {
			return nil, outcome.Err
		}

		matches, err := analyzer.BuildMatches(peers, outcome.Scores, analyzer.SignificanceFloor)
		if err != nil {
			return nil, err
		}
		report.Matches = matches
		report.PlagiarismPercent = analyzer.PlagiarismPercent(matches)
		report.Strategy = outcome.Strategy
	} else {
		run.log.Warn().Int("pool_size", len(pool)).Msg("No comparison document could be prepared")
	}

	run.to(StateAdvising)
	select {
	case sources := <-sourcesCh:
		if sources != nil {
			report.ExternalSources = sources
		}
	case <-advisorCtx.Done():
		if ctx.Err() == nil {
			metrics.AdvisorFailuresTotal.WithLabelValues("timeout").Inc()
			run.log.Warn().Dur("timeout", s.config.AdvisorTimeout).Msg("External source lookup timed out")
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report.Passed = report.PlagiarismPercent < report.Threshold
	if report.Passed {
		return nil, nil
	}
	return &models.GradeUpdate{
		TotalMarks:    AutoGradeTotalMarks,
		ObtainedMarks: 0,
		AutoGraded:    true,
		Comment:       fmt.Sprintf("Automatic Grade: 0 (Plagiarism detected: %.2f%%)", report.PlagiarismPercent),
	}, nil
}

// preparePeers loads, extracts and normalizes pool members concurrently.
// The result is index-aligned with pool; members that fail are skipped.
func (s *plagiarismService) preparePeers(ctx context.Context, run *checkRun, pool []models.Document, opts textproc.Options) ([]preparedPeer, error) {
	prepared := make([]preparedPeer, len(pool))

	var g errgroup.Group
	g.SetLimit(s.config.PeerWorkers)

	for i := range pool {
		i := i
		peerDoc := &pool[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			content, err := s.documents.LoadContent(ctx, peerDoc)
			if err == nil {
				var raw string
				raw, err = s.extractor.Extract(content, peerDoc.Filename)
				if err == nil {
					prepared[i] = preparedPeer{
						peer: analyzer.Peer{
							ID:          peerDoc.ID,
							Filename:    peerDoc.Filename,
							DisplayName: peerDoc.SubmitterName,
						},
						text: textproc.Normalize(raw, opts),
						ok:   true,
					}
					return nil
				}
			}

			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			metrics.SkippedPeersTotal.Inc()
			run.log.Warn().
				Err(err).
				Int64("peer_id", peerDoc.ID).
				Str("filename", peerDoc.Filename).
				Msg("Skipping comparison document")
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return prepared, nil
}

// score runs the primary strategy and falls back only when it fails.
func (s *plagiarismService) score(run *checkRun, target string, peers []string) analyzer.Outcome {
	outcome := s.primary.Score(target, peers)
	if !outcome.Failed() {
		return outcome
	}

	metrics.FallbackTotal.Inc()
	run.log.Warn().
		Err(outcome.Err).
		Str("primary", s.primary.Name()).
		Str("fallback", s.fallback.Name()).
		Msg("Primary similarity strategy failed, using fallback")

	return s.fallback.Score(target, peers)
}

func (s *plagiarismService) threshold(ctx context.Context, courseCode string) (float64, error) {
	cfg, err := s.courses.GetCourseConfig(ctx, courseCode)
	if err != nil {
		return 0, fmt.Errorf("failed to load course policy: %w", err)
	}
	if cfg == nil {
		return s.config.DefaultThreshold, nil
	}
	return cfg.PlagiarismThreshold, nil
}

func (s *plagiarismService) record(report *models.PlagiarismReport, grade *models.GradeUpdate) {
	outcome := "passed"
	if !report.Passed {
		outcome = "flagged"
	}
	metrics.ChecksTotal.WithLabelValues(outcome).Inc()
	metrics.StrategyTotal.WithLabelValues(report.Strategy).Inc()
	metrics.CheckDuration.Observe(float64(report.ProcessingTimeMs) / 1000)
	if grade != nil {
		metrics.AutoGradedTotal.Inc()
	}
}

// publishChecked is best effort: the report is already committed.
func (s *plagiarismService) publishChecked(ctx context.Context, run *checkRun, report *models.PlagiarismReport, grade *models.GradeUpdate) {
	if s.publisher == nil {
		return
	}
	event := models.PlagiarismCheckedEvent{
		EventID:           uuid.New().String(),
		DocumentID:        report.AssignmentID,
		ReportID:          report.ID,
		PlagiarismPercent: report.PlagiarismPercent,
		Threshold:         report.Threshold,
		Passed:            report.Passed,
		AutoGraded:        grade != nil,
		Strategy:          report.Strategy,
		CheckedAt:         report.CheckedAt,
	}
	if err := s.publisher.PublishChecked(ctx, event); err != nil {
		run.log.Warn().Err(err).Msg("Failed to publish check completed event")
	}
}

func (s *plagiarismService) GetExistingReport(ctx context.Context, documentID int64) (*models.PlagiarismReport, error) {
	if documentID <= 0 {
		return nil, ErrInvalidDocumentID
	}
	report, err := s.reports.GetReport(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return report, nil
}

func (s *plagiarismService) RequestCheck(ctx context.Context, documentID int64, excludeReferences, excludeQuotes bool) error {
	if documentID <= 0 {
		return ErrInvalidDocumentID
	}

	opts := models.CheckOptions{ExcludeReferences: excludeReferences, ExcludeQuotes: excludeQuotes}
	if err := s.documents.MarkPending(ctx, documentID, opts); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %d", ErrDocumentNotFound, documentID)
		}
		return err
	}

	if s.publisher == nil {
		s.logger.Info().Int64("document_id", documentID).Msg("Check queued for scheduled sweep")
		return nil
	}

	event := models.PlagiarismCheckRequestedEvent{
		DocumentID:        documentID,
		ExcludeReferences: excludeReferences,
		ExcludeQuotes:     excludeQuotes,
		Timestamp:         s.now().Unix(),
	}
	if err := s.publisher.PublishCheckRequested(ctx, event); err != nil {
		// The document stays pending, so the sweep still picks it up.
		return fmt.Errorf("%w: %w", ErrQueueUnavailable, err)
	}

	s.logger.Info().Int64("document_id", documentID).Msg("Check request published")
	return nil
}
