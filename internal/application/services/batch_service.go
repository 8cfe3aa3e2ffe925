package services

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/entities"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/providers"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/domain/repositories"
	"github.com/zatekoja/Readmissionriskdashboard/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/Readmissionriskdashboard/backend/pkg/errors"
	"github.com/zatekoja/Readmissionriskdashboard/backend/pkg/utils"
)

// AcceptedExtensions are the spreadsheet suffixes a batch accepts.
var AcceptedExtensions = []string{".xls", ".xlsx"}

// ProgressFunc observes a batch after every processed record.
type ProgressFunc func(entities.Progress)

// workspace is one user's dashboard state: the visible result list and the
// batch that is (or was last) running.
type workspace struct {
	results  []entities.ExplanationResult
	progress entities.Progress
	current  *entities.BatchRun
	cancel   context.CancelFunc
}

// BatchService drives ingestion, normalization and sequential explanation,
// and owns every user's result list.
type BatchService struct {
	reader     providers.SpreadsheetReader
	normalizer *utils.RecordNormalizer
	explainer  providers.Explainer
	samples    *SampleService
	events     providers.EventBus
	repo       repositories.BatchRunRepository
	metrics    *observability.Metrics

	mu         sync.Mutex
	workspaces map[string]*workspace
}

// NewBatchService creates a new batch service. events and repo may be nil.
func NewBatchService(
	reader providers.SpreadsheetReader,
	normalizer *utils.RecordNormalizer,
	explainer providers.Explainer,
	samples *SampleService,
	events providers.EventBus,
	repo repositories.BatchRunRepository,
	metrics *observability.Metrics,
) *BatchService {
	return &BatchService{
		reader:     reader,
		normalizer: normalizer,
		explainer:  explainer,
		samples:    samples,
		events:     events,
		repo:       repo,
		metrics:    metrics,
		workspaces: make(map[string]*workspace),
	}
}

// ValidateFilename rejects anything that is not an .xls or .xlsx file.
func ValidateFilename(filename string) error {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
	for _, accepted := range AcceptedExtensions {
		if ext == accepted {
			return nil
		}
	}
	return apperrors.NewValidationError(fmt.Sprintf("unsupported file type %q: upload an .xls or .xlsx file", filepath.Base(filename)))
}

// RunBatch runs a whole batch in the caller's goroutine and returns the
// finished run. Ingestion failures return a ValidationFailure and a run in
// the failed state; per-record failures are recorded inline. Cancelling ctx
// stops the batch between records.
func (s *BatchService) RunBatch(ctx context.Context, userID, filename string, r io.Reader, onProgress ProgressFunc) (*entities.BatchRun, error) {
	run, runCtx, err := s.begin(ctx, userID)
	if err != nil {
		return nil, err
	}

	records, err := s.prepare(runCtx, run, filename, r)
	if err != nil {
		return s.snapshot(run), err
	}

	s.process(runCtx, run, records, onProgress)
	return s.snapshot(run), nil
}

// StartBatch validates and reads the file synchronously, then processes the
// records in the background. The returned snapshot is in the processing
// state.
func (s *BatchService) StartBatch(ctx context.Context, userID, filename string, r io.Reader) (*entities.BatchRun, error) {
	// The batch outlives the request that started it.
	run, runCtx, err := s.begin(context.WithoutCancel(ctx), userID)
	if err != nil {
		return nil, err
	}

	records, err := s.prepare(runCtx, run, filename, r)
	if err != nil {
		return s.snapshot(run), err
	}

	s.mu.Lock()
	run.Progress = entities.Progress{Done: 0, Total: len(records)}
	event, err := s.transition(runCtx, run, entities.BatchStateProcessing)
	snap := run.Snapshot()
	s.mu.Unlock()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to start processing", err)
	}
	s.emit(runCtx, event)

	go s.process(runCtx, run, records, nil)
	return snap, nil
}

// CancelBatch asks the user's running batch to stop after the record in
// flight. It reports whether there was a batch to cancel.
func (s *BatchService) CancelBatch(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws := s.workspaces[userID]
	if ws == nil || ws.current == nil || ws.current.State.Terminal() || ws.cancel == nil {
		return false
	}
	ws.cancel()
	return true
}

// RunSingle explains one manually entered row and prepends the result to
// the user's list, numbered after the existing results.
func (s *BatchService) RunSingle(ctx context.Context, userID string, raw map[string]any) (entities.ExplanationResult, error) {
	ws, current, err := s.claim(userID)
	if err != nil {
		return entities.ExplanationResult{}, err
	}

	record := s.normalizer.Normalize(raw)
	result := s.explainOne(ctx, 0, record)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.unchanged(userID, ws, current); err != nil {
		return entities.ExplanationResult{}, err
	}
	result.Index = len(ws.results) + 1
	ws.results = append([]entities.ExplanationResult{result}, ws.results...)
	return result, nil
}

// RunSample explains one random sample row and replaces the user's list
// with that single result.
func (s *BatchService) RunSample(ctx context.Context, userID string) (entities.ExplanationResult, error) {
	ws, current, err := s.claim(userID)
	if err != nil {
		return entities.ExplanationResult{}, err
	}

	record := s.normalizer.Normalize(s.samples.Pick(ctx))
	result := s.explainOne(ctx, 1, record)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.unchanged(userID, ws, current); err != nil {
		return entities.ExplanationResult{}, err
	}
	ws.results = []entities.ExplanationResult{result}
	ws.progress = entities.Progress{Done: 1, Total: 1}
	return result, nil
}

// Results returns a copy of the user's result list.
func (s *BatchService) Results(userID string) []entities.ExplanationResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws := s.workspaces[userID]
	if ws == nil {
		return []entities.ExplanationResult{}
	}
	return append([]entities.ExplanationResult{}, ws.results...)
}

// Result finds the result with the given index.
func (s *BatchService) Result(userID string, index int) (entities.ExplanationResult, error) {
	for _, r := range s.Results(userID) {
		if r.Index == index {
			return r, nil
		}
	}
	return entities.ExplanationResult{}, apperrors.NewNotFoundError(fmt.Sprintf("no result with index %d", index))
}

// Chart derives the contribution chart for the result with the given index.
func (s *BatchService) Chart(userID string, index int) (entities.ContributionChart, error) {
	result, err := s.Result(userID, index)
	if err != nil {
		return entities.ContributionChart{}, err
	}
	return BuildChart(result), nil
}

// Progress returns the progress of the latest run or single submission.
func (s *BatchService) Progress(userID string) entities.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ws := s.workspaces[userID]; ws != nil {
		return ws.progress
	}
	return entities.Progress{}
}

// Current returns a snapshot of the user's latest batch, or nil.
func (s *BatchService) Current(userID string) *entities.BatchRun {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws := s.workspaces[userID]
	if ws == nil || ws.current == nil {
		return nil
	}
	return ws.current.Snapshot()
}

// History returns the user's persisted runs, newest first.
func (s *BatchService) History(ctx context.Context, userID string, limit int) ([]*entities.BatchRun, error) {
	if s.repo == nil {
		return []*entities.BatchRun{}, nil
	}
	return s.repo.ListByUser(ctx, userID, limit)
}

// ClearWorkspace cancels any running batch and forgets the user's results.
func (s *BatchService) ClearWorkspace(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ws := s.workspaces[userID]; ws != nil && ws.cancel != nil {
		ws.cancel()
	}
	delete(s.workspaces, userID)
}

// begin registers a new run as the user's current batch and clears the
// visible results. Only one batch per user may be in flight.
func (s *BatchService) begin(ctx context.Context, userID string) (*entities.BatchRun, context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws := s.workspace(userID)
	if ws.current != nil && !ws.current.State.Terminal() {
		return nil, nil, apperrors.NewConflictError("a batch is already in progress")
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := &entities.BatchRun{
		ID:        uuid.New().String(),
		UserID:    userID,
		State:     entities.BatchStateIdle,
		StartedAt: time.Now(),
	}
	ws.current = run
	ws.cancel = cancel
	ws.results = nil
	ws.progress = entities.Progress{}

	return run, runCtx, nil
}

// prepare runs validating, reading and normalizing. A failure moves the run
// to the failed state and returns a ValidationFailure.
func (s *BatchService) prepare(ctx context.Context, run *entities.BatchRun, filename string, r io.Reader) ([]entities.PatientRecord, error) {
	s.mu.Lock()
	run.Source = filepath.Base(filename)
	event, _ := s.transition(ctx, run, entities.BatchStateValidating)
	s.mu.Unlock()
	s.emit(ctx, event)

	if err := ValidateFilename(filename); err != nil {
		s.fail(ctx, run, err)
		return nil, err
	}

	s.mu.Lock()
	event, _ = s.transition(ctx, run, entities.BatchStateReading)
	s.mu.Unlock()
	s.emit(ctx, event)

	rows, err := s.reader.ReadRows(filename, r)
	if err != nil {
		if !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
			err = apperrors.NewValidationError(fmt.Sprintf("could not read spreadsheet: %v", err))
		}
		s.fail(ctx, run, err)
		return nil, err
	}
	if len(rows) == 0 {
		err := apperrors.NewValidationError("the spreadsheet has no rows")
		s.fail(ctx, run, err)
		return nil, err
	}

	s.mu.Lock()
	event, _ = s.transition(ctx, run, entities.BatchStateNormalizing)
	s.mu.Unlock()
	s.emit(ctx, event)

	return s.normalizer.NormalizeAll(rows), nil
}

// process explains records one at a time. The next call starts only after
// the previous result and progress are visible.
func (s *BatchService) process(ctx context.Context, run *entities.BatchRun, records []entities.PatientRecord, onProgress ProgressFunc) {
	ctx, span := observability.StartSpan(ctx, "BatchService.process")
	defer span.End()
	observability.SetSpanAttributes(span,
		attribute.String("batch.id", run.ID),
		attribute.Int("batch.total", len(records)),
	)

	s.mu.Lock()
	var event *entities.BatchEvent
	if run.State != entities.BatchStateProcessing {
		run.Progress = entities.Progress{Done: 0, Total: len(records)}
		event, _ = s.transition(ctx, run, entities.BatchStateProcessing)
	}
	if ws := s.workspaces[run.UserID]; ws != nil && ws.current == run {
		ws.progress = run.Progress
	}
	s.mu.Unlock()
	s.emit(ctx, event)

	final := entities.BatchStateDone
	for i, record := range records {
		if ctx.Err() != nil {
			final = entities.BatchStateCancelled
			break
		}

		// Cancellation is honoured between records, never mid-call.
		result := s.explainOne(context.WithoutCancel(ctx), i+1, record)

		s.mu.Lock()
		run.Results = append(run.Results, result)
		run.Progress.Done = i + 1
		progress := run.Progress
		if ws := s.workspaces[run.UserID]; ws != nil && ws.current == run {
			ws.results = append(ws.results, result)
			ws.progress = progress
		}
		event := s.newEvent(run, entities.BatchEventProgress)
		s.mu.Unlock()

		s.emit(ctx, event)
		if onProgress != nil {
			onProgress(progress)
		}
	}

	s.mu.Lock()
	event, _ = s.transition(ctx, run, final)
	snap := run.Snapshot()
	s.release(run)
	s.mu.Unlock()
	s.emit(ctx, event)

	observability.RecordBatchDuration(ctx, s.metrics, string(final), time.Since(run.StartedAt))
	summary := snap.Summary()
	observability.LoggerFromContext(ctx).Info().
		Str("batch_id", run.ID).
		Str("state", string(final)).
		Int("total", summary.Total).
		Int("failed", summary.Failed).
		Int("high_risk", summary.HighRisk).
		Msg("Batch finished")

	s.persist(ctx, snap)
}

// explainOne never fails: a RemoteFailure becomes the result's error.
func (s *BatchService) explainOne(ctx context.Context, index int, record entities.PatientRecord) entities.ExplanationResult {
	explanation, err := s.explainer.Explain(ctx, record)
	if err != nil {
		observability.RecordBatchRecord(ctx, s.metrics, "failure")
		return entities.NewFailedResult(index, record, apperrors.MessageOf(err))
	}
	observability.RecordBatchRecord(ctx, s.metrics, "success")
	return entities.NewSuccessResult(index, record, explanation)
}

func (s *BatchService) fail(ctx context.Context, run *entities.BatchRun, cause error) {
	s.mu.Lock()
	run.Error = apperrors.MessageOf(cause)
	event, _ := s.transition(ctx, run, entities.BatchStateFailed)
	snap := run.Snapshot()
	s.release(run)
	s.mu.Unlock()
	s.emit(ctx, event)

	s.persist(ctx, snap)
}

// transition must be called with s.mu held. The returned event is
// published by the caller once the lock is released.
func (s *BatchService) transition(ctx context.Context, run *entities.BatchRun, to entities.BatchState) (*entities.BatchEvent, error) {
	if err := run.Transition(to); err != nil {
		observability.LoggerFromContext(ctx).Error().Err(err).Msg("Batch state machine violation")
		return nil, err
	}
	observability.LoggerFromContext(ctx).Info().
		Str("batch_id", run.ID).
		Str("state", string(to)).
		Int("done", run.Progress.Done).
		Int("total", run.Progress.Total).
		Msg("Batch state changed")

	return s.newEvent(run, entities.BatchEventStateChanged), nil
}

// newEvent must be called with s.mu held.
func (s *BatchService) newEvent(run *entities.BatchRun, eventType entities.BatchEventType) *entities.BatchEvent {
	return &entities.BatchEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		BatchID:   run.ID,
		UserID:    run.UserID,
		State:     run.State,
		Progress:  run.Progress,
		Timestamp: time.Now(),
	}
}

func (s *BatchService) emit(ctx context.Context, event *entities.BatchEvent) {
	if s.events == nil || event == nil {
		return
	}
	if err := s.events.Publish(context.WithoutCancel(ctx), providers.GetUserChannel(event.UserID), event); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Str("batch_id", event.BatchID).Msg("Failed to publish batch event")
	}
}

func (s *BatchService) persist(ctx context.Context, run *entities.BatchRun) {
	if s.repo == nil {
		return
	}
	if err := s.repo.Save(context.WithoutCancel(ctx), run); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Str("batch_id", run.ID).Msg("Failed to persist batch run")
	}
}

// claim returns the user's workspace and its latest batch, refusing while
// that batch is still running. A single submission commits only if both
// are unchanged when its prediction returns.
func (s *BatchService) claim(userID string) (*workspace, *entities.BatchRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws := s.workspace(userID)
	if ws.current != nil && !ws.current.State.Terminal() {
		return nil, nil, apperrors.NewConflictError("a batch is in progress")
	}
	return ws, ws.current, nil
}

// unchanged must be called with s.mu held.
func (s *BatchService) unchanged(userID string, ws *workspace, current *entities.BatchRun) error {
	if s.workspaces[userID] != ws {
		return apperrors.NewConflictError("the workspace was cleared while the prediction was running")
	}
	if ws.current != current {
		return apperrors.NewConflictError("a batch started while the prediction was running")
	}
	return nil
}

// release must be called with s.mu held.
func (s *BatchService) release(run *entities.BatchRun) {
	if ws := s.workspaces[run.UserID]; ws != nil && ws.current == run && ws.cancel != nil {
		ws.cancel()
		ws.cancel = nil
	}
}

func (s *BatchService) snapshot(run *entities.BatchRun) *entities.BatchRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return run.Snapshot()
}

// workspace must be called with s.mu held.
func (s *BatchService) workspace(userID string) *workspace {
	ws := s.workspaces[userID]
	if ws == nil {
		ws = &workspace{}
		s.workspaces[userID] = ws
	}
	return ws
}
