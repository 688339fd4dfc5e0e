package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/models"
	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/repository"
	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/service/analyzer"
	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/service/extractor"
)

type fakeDocuments struct {
	mu       sync.Mutex
	docs     map[int64]*models.Document
	loadErr  map[int64]error
	poolErr  error
	pending  []int64
	onLoad   func(id int64)
	poolSeen string
}

func newFakeDocuments(docs ...models.Document) *fakeDocuments {
	f := &fakeDocuments{docs: map[int64]*models.Document{}, loadErr: map[int64]error{}}
	for i := range docs {
		d := docs[i]
		f.docs[d.ID] = &d
	}
	return f
}

func (f *fakeDocuments) GetDocument(_ context.Context, id int64) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDocuments) GetComparisonPool(_ context.Context, courseCode string, excludeID int64) ([]models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.poolSeen = courseCode
	if f.poolErr != nil {
		return nil, f.poolErr
	}
	var out []models.Document
	for id := int64(1); id <= 1000; id++ {
		d, ok := f.docs[id]
		if ok && d.CourseCode == courseCode && d.ID != excludeID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeDocuments) LoadContent(_ context.Context, doc *models.Document) ([]byte, error) {
	if f.onLoad != nil {
		f.onLoad(doc.ID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadErr[doc.ID]; err != nil {
		return nil, err
	}
	return doc.Content, nil
}

func (f *fakeDocuments) ListByStatus(_ context.Context, status models.DocumentStatus, limit int) ([]models.Document, error) {
	return nil, nil
}

func (f *fakeDocuments) MarkPending(_ context.Context, id int64, opts models.CheckOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return repository.ErrNotFound
	}
	d.Status = models.DocumentStatusPending
	d.Requested = &opts
	f.pending = append(f.pending, id)
	return nil
}

func (f *fakeDocuments) MarkFailed(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.docs[id]; ok && d.Status == models.DocumentStatusPending {
		d.Status = models.DocumentStatusFailed
	}
	return nil
}

func (f *fakeDocuments) Ping(context.Context) error { return nil }

type fakeCourses struct {
	configs map[string]*models.CourseConfig
}

func (f *fakeCourses) GetCourseConfig(_ context.Context, courseCode string) (*models.CourseConfig, error) {
	return f.configs[courseCode], nil
}

type persistCall struct {
	documentID int64
	report     models.PlagiarismReport
	grade      *models.GradeUpdate
}

type fakeReports struct {
	mu    sync.Mutex
	calls []persistCall
	err   error
}

func (f *fakeReports) Persist(_ context.Context, documentID int64, report *models.PlagiarismReport, grade *models.GradeUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, persistCall{documentID: documentID, report: *report, grade: grade})
	return nil
}

func (f *fakeReports) GetReport(_ context.Context, documentID int64) (*models.PlagiarismReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].documentID == documentID {
			r := f.calls[i].report
			return &r, nil
		}
	}
	return nil, nil
}

type fakeAdvisor struct {
	calls   int32
	sources []models.ExternalSource
	delay   time.Duration
}

func (f *fakeAdvisor) FindSources(ctx context.Context, rawText string) []models.ExternalSource {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return []models.ExternalSource{}
		}
	}
	if f.sources == nil {
		return []models.ExternalSource{}
	}
	return f.sources
}

type fakeStrategy struct {
	name   string
	scores []float64
	err    error
	calls  int
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Score(target string, peers []string) analyzer.Outcome {
	f.calls++
	if f.err != nil {
		return analyzer.Failed(f.name, f.err)
	}
	if f.scores != nil {
		return analyzer.Scored(f.name, f.scores)
	}
	return analyzer.Scored(f.name, make([]float64, len(peers)))
}

type fakePublisher struct {
	mu        sync.Mutex
	checked   []models.PlagiarismCheckedEvent
	requested []models.PlagiarismCheckRequestedEvent
	err       error
}

func (f *fakePublisher) PublishCheckRequested(_ context.Context, e models.PlagiarismCheckRequestedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.requested = append(f.requested, e)
	return nil
}

func (f *fakePublisher) PublishChecked(_ context.Context, e models.PlagiarismCheckedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.checked = append(f.checked, e)
	return nil
}

type harness struct {
	docs      *fakeDocuments
	courses   *fakeCourses
	reports   *fakeReports
	advisor   *fakeAdvisor
	publisher *fakePublisher
	primary   analyzer.Strategy
	fallback  analyzer.Strategy
	config    PlagiarismConfig
}

func newHarness(docs ...models.Document) *harness {
	return &harness{
		docs:      newFakeDocuments(docs...),
		courses:   &fakeCourses{configs: map[string]*models.CourseConfig{}},
		reports:   &fakeReports{},
		advisor:   &fakeAdvisor{},
		publisher: &fakePublisher{},
		primary:   analyzer.NewTFIDFStrategy(analyzer.DefaultTFIDFConfig()),
		fallback:  analyzer.NewJaccardStrategy(nil),
		config: PlagiarismConfig{
			DefaultThreshold: 40,
			PeerWorkers:      2,
			AdvisorTimeout:   time.Second,
		},
	}
}

func (h *harness) service() PlagiarismService {
	return NewPlagiarismService(
		h.docs, h.courses, h.reports, extractor.New(),
		h.primary, h.fallback, h.advisor, h.publisher,
		zerolog.Nop(), h.config,
	)
}

func txtDoc(id int64, course, text string) models.Document {
	return models.Document{
		ID:            id,
		Filename:      "essay.txt",
		CourseCode:    course,
		SubmitterID:   id * 10,
		SubmitterName: "student",
		FileKey:       "key",
		Status:        models.DocumentStatusNotChecked,
		Content:       []byte(text),
	}
}

const (
	essayA = "The mitochondria is the powerhouse of the cell and produces energy through respiration."
	essayB = "Quantum computers exploit superposition and entanglement to solve certain problems quickly."
)

func TestCheckDisjointPeer(t *testing.T) {
	h := newHarness(txtDoc(1, "CS101", essayA), txtDoc(2, "CS101", essayB))

	report, err := h.service().Check(context.Background(), 1, false, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.PlagiarismPercent != 0 || len(report.Matches) != 0 || !report.Passed {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Strategy != models.StrategyTFIDF {
		t.Fatalf("strategy = %s", report.Strategy)
	}
	if len(h.reports.calls) != 1 || h.reports.calls[0].grade != nil {
		t.Fatalf("expected one persist without grade, got %+v", h.reports.calls)
	}
}

func TestCheckIdenticalPeer(t *testing.T) {
	h := newHarness(txtDoc(1, "CS101", essayA), txtDoc(2, "CS101", essayA), txtDoc(3, "CS101", essayB))

	report, err := h.service().Check(context.Background(), 1, false, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Matches) != 1 {
		t.Fatalf("expected one match, got %+v", report.Matches)
	}
	m := report.Matches[0]
	if m.PeerID != 2 || m.SimilarityPercent < 99.99 {
		t.Fatalf("unexpected match %+v", m)
	}
	if report.PlagiarismPercent < 99.99 || report.Passed {
		t.Fatalf("identical peer should fail the check: %+v", report)
	}

	grade := h.reports.calls[0].grade
	if grade == nil || !grade.AutoGraded || grade.ObtainedMarks != 0 || grade.TotalMarks != 100 {
		t.Fatalf("unexpected grade %+v", grade)
	}
	if !strings.HasPrefix(grade.Comment, "Automatic Grade: 0 (Plagiarism detected: 100.00%") {
		t.Fatalf("unexpected comment %q", grade.Comment)
	}
	if len(h.publisher.checked) != 1 || !h.publisher.checked[0].AutoGraded {
		t.Fatalf("expected completed event, got %+v", h.publisher.checked)
	}
}

func TestCheckThresholdBoundary(t *testing.T) {
	cases := []struct {
		score  float64
		passed bool
	}{
		{40.0, false},
		{39.99, true},
	}
	for _, tc := range cases {
		h := newHarness(txtDoc(1, "CS101", essayA), txtDoc(2, "CS101", essayB))
		h.primary = &fakeStrategy{name: models.StrategyTFIDF, scores: []float64{tc.score}}

		report, err := h.service().Check(context.Background(), 1, false, false)
		if err != nil {
			t.Fatalf("score %v: unexpected error: %v", tc.score, err)
		}
		if report.Passed != tc.passed {
			t.Fatalf("score %v: passed = %v, want %v", tc.score, report.Passed, tc.passed)
		}
		if graded := h.reports.calls[0].grade != nil; graded == tc.passed {
			t.Fatalf("score %v: graded = %v", tc.score, graded)
		}
	}
}

func TestCheckCourseThreshold(t *testing.T) {
	h := newHarness(txtDoc(1, "CS101", essayA), txtDoc(2, "CS101", essayB))
	h.courses.configs["CS101"] = &models.CourseConfig{CourseCode: "CS101", PlagiarismThreshold: 20}
	h.primary = &fakeStrategy{name: models.StrategyTFIDF, scores: []float64{25}}

	report, err := h.service().Check(context.Background(), 1, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if report.Threshold != 20 || report.Passed {
		t.Fatalf("course threshold not applied: %+v", report)
	}
}

func TestCheckSkipsFailingPeer(t *testing.T) {
	bad := txtDoc(3, "CS101", essayA)
	bad.Filename = "broken.exe"
	h := newHarness(
		txtDoc(1, "CS101", essayA),
		txtDoc(2, "CS101", essayA),
		bad,
		txtDoc(4, "CS101", essayB),
	)
	h.docs.loadErr[4] = errors.New("blob missing")
	h.docs.docs[5] = &models.Document{ID: 5, Filename: "ok.txt", CourseCode: "CS101", Content: []byte(essayB)}

	report, err := h.service().Check(context.Background(), 1, false, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.ComparedCount != 2 || report.SkippedCount != 2 {
		t.Fatalf("compared=%d skipped=%d", report.ComparedCount, report.SkippedCount)
	}
	if len(report.Matches) != 1 || report.Matches[0].PeerID != 2 {
		t.Fatalf("unexpected matches %+v", report.Matches)
	}
}

func TestCheckAdvisorFailureStillPersists(t *testing.T) {
	h := newHarness(txtDoc(1, "CS101", essayA), txtDoc(2, "CS101", essayB))

	report, err := h.service().Check(context.Background(), 1, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if report.ExternalSources == nil || len(report.ExternalSources) != 0 {
		t.Fatalf("expected empty external sources, got %#v", report.ExternalSources)
	}
	if len(h.reports.calls) != 1 {
		t.Fatal("report not persisted")
	}
}

func TestCheckAdvisorSources(t *testing.T) {
	h := newHarness(txtDoc(1, "CS101", essayA), txtDoc(2, "CS101", essayB))
	h.advisor.sources = []models.ExternalSource{{URL: "https://x.example", Title: "X"}}

	report, err := h.service().Check(context.Background(), 1, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.ExternalSources) != 1 || report.ExternalSources[0].URL != "https://x.example" {
		t.Fatalf("unexpected sources %+v", report.ExternalSources)
	}
}

func TestCheckAdvisorTimeout(t *testing.T) {
	h := newHarness(txtDoc(1, "CS101", essayA), txtDoc(2, "CS101", essayB))
	h.advisor.delay = 5 * time.Second
	h.advisor.sources = []models.ExternalSource{{URL: "https://late.example"}}
	h.config.AdvisorTimeout = 20 * time.Millisecond

	start := time.Now()
	report, err := h.service().Check(context.Background(), 1, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("check waited past the advisor deadline")
	}
	if len(report.ExternalSources) != 0 {
		t.Fatalf("late sources leaked into report: %+v", report.ExternalSources)
	}
}

func TestCheckEmptyPool(t *testing.T) {
	h := newHarness(txtDoc(1, "CS101", essayA), txtDoc(2, "MATH1", essayA))
	h.config.DefaultThreshold = 0

	var states []CheckState
	h.config.OnTransition = func(_ int64, _, to CheckState) { states = append(states, to) }

	report, err := h.service().Check(context.Background(), 1, true, true)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Passed || report.PlagiarismPercent != 0 || len(report.Matches) != 0 {
		t.Fatalf("unexpected empty-pool report %+v", report)
	}
	if report.Strategy != models.StrategyNone || !report.ExcludeReferences || !report.ExcludeQuotes {
		t.Fatalf("unexpected report metadata %+v", report)
	}
	if atomic.LoadInt32(&h.advisor.calls) != 0 {
		t.Fatal("advisor must not run for an empty pool")
	}
	if len(h.reports.calls) != 1 || h.reports.calls[0].grade != nil {
		t.Fatalf("empty pool must persist without grading: %+v", h.reports.calls)
	}

	want := []CheckState{StateLoading, StateFinalizing, StatePersisted}
	if len(states) != len(want) {
		t.Fatalf("states = %v", states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("states = %v, want %v", states, want)
		}
	}
}

func TestCheckFallbackOnlyOnFailure(t *testing.T) {
	h := newHarness(txtDoc(1, "CS101", essayA), txtDoc(2, "CS101", essayB))
	primary := &fakeStrategy{name: models.StrategyTFIDF, err: errors.New("empty vocabulary")}
	fallback := &fakeStrategy{name: models.StrategyJaccard, scores: []float64{12.5}}
	h.primary, h.fallback = primary, fallback

	report, err := h.service().Check(context.Background(), 1, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if fallback.calls != 1 || report.Strategy != models.StrategyJaccard || report.PlagiarismPercent != 12.5 {
		t.Fatalf("fallback not used: calls=%d report=%+v", fallback.calls, report)
	}

	h = newHarness(txtDoc(1, "CS101", essayA), txtDoc(2, "CS101", essayB))
	primary = &fakeStrategy{name: models.StrategyTFIDF, scores: []float64{0}}
	fallback = &fakeStrategy{name: models.StrategyJaccard}
	h.primary, h.fallback = primary, fallback

	if _, err := h.service().Check(context.Background(), 1, false, false); err != nil {
		t.Fatal(err)
	}
	if fallback.calls != 0 {
		t.Fatal("fallback ran although the primary strategy succeeded")
	}
}

func TestCheckStopWordsOnlyFallsBackToJaccard(t *testing.T) {
	h := newHarness(txtDoc(1, "CS101", "the and of"), txtDoc(2, "CS101", "a an the"))

	report, err := h.service().Check(context.Background(), 1, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if report.Strategy != models.StrategyJaccard {
		t.Fatalf("strategy = %s, want jaccard", report.Strategy)
	}
}

func TestCheckIsRepeatable(t *testing.T) {
	h := newHarness(
		txtDoc(1, "CS101", essayA),
		txtDoc(2, "CS101", essayA+" Also it stores ATP."),
		txtDoc(3, "CS101", essayB),
	)
	svc := h.service()

	first, err := svc.Check(context.Background(), 1, false, false)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Check(context.Background(), 1, false, false)
	if err != nil {
		t.Fatal(err)
	}

	if first.PlagiarismPercent != second.PlagiarismPercent || len(first.Matches) != len(second.Matches) {
		t.Fatalf("reports differ: %+v vs %+v", first, second)
	}
	for i := range first.Matches {
		if first.Matches[i] != second.Matches[i] {
			t.Fatalf("match %d differs: %+v vs %+v", i, first.Matches[i], second.Matches[i])
		}
	}
	if first.ID == second.ID {
		t.Fatal("each check must produce a new report id")
	}

	stored, err := svc.GetExistingReport(context.Background(), 1)
	if err != nil || stored == nil || stored.ID != second.ID {
		t.Fatalf("latest report not returned: %+v (%v)", stored, err)
	}
}

func TestCheckDocumentNotFound(t *testing.T) {
	h := newHarness()

	_, err := h.service().Check(context.Background(), 42, false, false)
	if !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if _, err := h.service().Check(context.Background(), 0, false, false); !errors.Is(err, ErrInvalidDocumentID) {
		t.Fatalf("expected ErrInvalidDocumentID, got %v", err)
	}
	if len(h.reports.calls) != 0 {
		t.Fatal("nothing should be persisted")
	}
}

func TestCheckTargetExtractionFailure(t *testing.T) {
	target := txtDoc(1, "CS101", "%PDF-not really")
	target.Filename = "essay.pdf"
	h := newHarness(target, txtDoc(2, "CS101", essayB))

	var last CheckState
	h.config.OnTransition = func(_ int64, _, to CheckState) { last = to }

	_, err := h.service().Check(context.Background(), 1, false, false)
	if !errors.Is(err, ErrTargetExtraction) {
		t.Fatalf("expected ErrTargetExtraction, got %v", err)
	}
	if !errors.Is(err, extractor.ErrParseFailed) {
		t.Fatalf("extraction cause lost: %v", err)
	}
	if last != StateAborted {
		t.Fatalf("final state = %s", last)
	}
	if len(h.reports.calls) != 0 || len(h.publisher.checked) != 0 {
		t.Fatal("aborted check must not persist or publish")
	}
}

func TestCheckPersistenceFailure(t *testing.T) {
	h := newHarness(txtDoc(1, "CS101", essayA), txtDoc(2, "CS101", essayB))
	h.reports.err = errors.New("connection reset")

	_, err := h.service().Check(context.Background(), 1, false, false)
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if len(h.publisher.checked) != 0 {
		t.Fatal("no event may be published for an uncommitted report")
	}
}

func TestCheckCancelledBeforeWrite(t *testing.T) {
	h := newHarness(txtDoc(1, "CS101", essayA), txtDoc(2, "CS101", essayB), txtDoc(3, "CS101", essayB))
	ctx, cancel := context.WithCancel(context.Background())
	h.docs.onLoad = func(id int64) {
		if id == 2 {
			cancel()
		}
	}

	_, err := h.service().Check(ctx, 1, false, false)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(h.reports.calls) != 0 {
		t.Fatal("cancelled check must not write")
	}
}

func TestCheckPublisherFailureIsBestEffort(t *testing.T) {
	h := newHarness(txtDoc(1, "CS101", essayA), txtDoc(2, "CS101", essayB))
	h.publisher.err = errors.New("broker down")

	if _, err := h.service().Check(context.Background(), 1, false, false); err != nil {
		t.Fatalf("publish failure must not fail the check: %v", err)
	}
	if len(h.reports.calls) != 1 {
		t.Fatal("report not persisted")
	}
}

func TestCheckExcludesReferences(t *testing.T) {
	shared := "Photosynthesis converts sunlight into sugars stored within glucose molecules."
	h := newHarness(
		txtDoc(1, "CS101", essayA+"\nReferences\n"+shared),
		txtDoc(2, "CS101", shared),
	)

	with, err := h.service().Check(context.Background(), 1, false, false)
	if err != nil {
		t.Fatal(err)
	}
	without, err := h.service().Check(context.Background(), 1, true, false)
	if err != nil {
		t.Fatal(err)
	}
	if with.PlagiarismPercent <= without.PlagiarismPercent {
		t.Fatalf("reference removal had no effect: %.2f vs %.2f", with.PlagiarismPercent, without.PlagiarismPercent)
	}
	if without.PlagiarismPercent != 0 {
		t.Fatalf("expected no overlap once references are removed, got %.2f", without.PlagiarismPercent)
	}
}

func TestRequestCheck(t *testing.T) {
	h := newHarness(txtDoc(1, "CS101", essayA))
	svc := h.service()

	if err := svc.RequestCheck(context.Background(), 1, true, false); err != nil {
		t.Fatal(err)
	}
	if len(h.docs.pending) != 1 || len(h.publisher.requested) != 1 {
		t.Fatalf("pending=%v requested=%v", h.docs.pending, h.publisher.requested)
	}
	if ev := h.publisher.requested[0]; ev.DocumentID != 1 || !ev.ExcludeReferences {
		t.Fatalf("unexpected event %+v", ev)
	}
	stored, _ := h.docs.GetDocument(context.Background(), 1)
	if stored.Requested == nil || !stored.Requested.ExcludeReferences || stored.Requested.ExcludeQuotes {
		t.Fatalf("requested options not stored: %+v", stored.Requested)
	}

	if err := svc.RequestCheck(context.Background(), 9, false, false); !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}

	h.publisher.err = errors.New("broker down")
	if err := svc.RequestCheck(context.Background(), 1, false, false); !errors.Is(err, ErrQueueUnavailable) {
		t.Fatalf("expected ErrQueueUnavailable, got %v", err)
	}
}
