package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mfriedrich/ocrtrack/internal/domain"
	"github.com/mfriedrich/ocrtrack/internal/logger"
	"github.com/mfriedrich/ocrtrack/internal/repository"
)

// snapshotReader is the store surface batch execution needs.
type snapshotReader interface {
	GetByID(ctx context.Context, id int64) (*domain.DocumentSnapshot, error)
}

// ledgerAppender persists run events. Append is only ever called from the
// executor's collector goroutine, which keeps ledger writes single-writer.
type ledgerAppender interface {
	Append(ctx context.Context, event *domain.RunEvent) error
}

// batchExporter writes post-run text artifacts. Wired through AttachExporter;
// sync-only deployments run without one.
type batchExporter interface {
	ExportDocument(ctx context.Context, doc *domain.DocumentSnapshot, engine domain.EngineKind, text string, formats []domain.ExportFormat) ([]domain.ExportRecord, error)
}

// ExecutorConfig holds batch execution settings.
type ExecutorConfig struct {
	Workers        int
	Timeout        time.Duration
	SnapshotMaxAge time.Duration
}

// Executor drives OCR run batches through a bounded worker pool. Each worker
// owns one candidate end to end: before-read, engine execution, after-read,
// classification. Completed events funnel through a single collector that
// appends them to the ledger one at a time.
type Executor struct {
	snapshots      snapshotReader
	ledger         ledgerAppender
	api            documentAPI
	engines        map[domain.EngineKind]Engine
	exporter       batchExporter
	logger         *logger.Logger
	workers        int
	timeout        time.Duration
	snapshotMaxAge time.Duration
}

// NewExecutor creates a new Executor.
// Parameters:
//   - snapshots: snapshot store for before-state reads.
//   - ledger: run event ledger.
//   - api: management API client for fresh point reads.
//   - engines: available engines keyed by kind.
//   - log: base logger.
//   - cfg: worker pool and timeout settings.
// Returns:
//   - *Executor: initialized executor.
func NewExecutor(
	snapshots snapshotReader,
	ledger ledgerAppender,
	api documentAPI,
	engines []Engine,
	log *logger.Logger,
	cfg *ExecutorConfig,
) *Executor {
	byKind := make(map[domain.EngineKind]Engine, len(engines))
	for _, eng := range engines {
		byKind[eng.Name()] = eng
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	snapshotMaxAge := cfg.SnapshotMaxAge
	if snapshotMaxAge <= 0 {
		snapshotMaxAge = 10 * time.Minute
	}

	return &Executor{
		snapshots:      snapshots,
		ledger:         ledger,
		api:            api,
		engines:        byKind,
		logger:         log,
		workers:        workers,
		timeout:        timeout,
		snapshotMaxAge: snapshotMaxAge,
	}
}

// AttachExporter wires post-run export into the batch flow. Paths of the
// files written for a run land on its event before the event is appended.
func (e *Executor) AttachExporter(exp batchExporter) {
	e.exporter = exp
}

func (e *Executor) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return e.logger
}

// BatchResult summarizes one executed run batch.
type BatchResult struct {
	BatchID   string
	Engine    domain.EngineKind
	Events    []domain.RunEvent
	Counts    map[domain.Outcome]int
	Texts     map[int64]string
	StartTime time.Time
	EndTime   time.Time
}

type workerResult struct {
	event *domain.RunEvent
	text  string
	snap  *domain.DocumentSnapshot
}

// RunBatch executes OCR runs for all candidates with the named engine.
// Cancelling ctx stops feeding new candidates; runs already in flight
// finish or hit their per-candidate timeout. Every candidate that entered
// the pool ends up with exactly one ledger event. When exportFormats is
// non-empty and an exporter is attached, each run that produced text is
// exported before its event is appended, so the event carries the paths.
// Parameters:
//   - ctx: context for cancellation.
//   - candidates: documents to run, with selection reasons.
//   - engineKind: which engine to execute with.
//   - exportFormats: formats to export post-run text to; empty disables.
// Returns:
//   - *BatchResult: events, per-outcome counts, and post-run texts.
//   - error: non-nil if the engine is unknown.
func (e *Executor) RunBatch(ctx context.Context, candidates []domain.RunCandidate, engineKind domain.EngineKind, exportFormats []domain.ExportFormat) (*BatchResult, error) {
	engine, ok := e.engines[engineKind]
	if !ok {
		return nil, fmt.Errorf("unknown engine %q", engineKind)
	}

	result := &BatchResult{
		BatchID:   uuid.New().String(),
		Engine:    engineKind,
		Counts:    make(map[domain.Outcome]int),
		Texts:     make(map[int64]string),
		StartTime: time.Now(),
	}

	ctx = logger.SetBatchID(ctx, result.BatchID)
	ctx = logger.SetEngine(ctx, string(engineKind))
	e.log(ctx).WithField(logger.FieldCount, len(candidates)).Info("Starting run batch")

	itemsChan := make(chan domain.RunCandidate, e.workers*2)
	resultsChan := make(chan *workerResult, e.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cand := range itemsChan {
				event, text, snap := e.runOne(ctx, cand, engine)
				resultsChan <- &workerResult{event: event, text: text, snap: snap}
			}
		}()
	}

	// Single collector serializes ledger appends and exports. Both use a
	// background context so in-flight events still land after cancellation.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for res := range resultsChan {
			e.exportOne(ctx, res, engineKind, exportFormats)
			if err := e.ledger.Append(context.Background(), res.event); err != nil {
				e.log(ctx).WithField(logger.FieldDocumentID, res.event.DocumentID).
					WithError(err).Error("Failed to append run event")
				continue
			}
			result.Events = append(result.Events, *res.event)
			result.Counts[res.event.Outcome]++
			if res.text != "" {
				result.Texts[res.event.DocumentID] = res.text
			}
		}
	}()

feed:
	for _, cand := range candidates {
		select {
		case itemsChan <- cand:
		case <-ctx.Done():
			e.log(ctx).Warn("Batch cancelled, not feeding remaining candidates")
			break feed
		}
	}

	close(itemsChan)
	wg.Wait()
	close(resultsChan)
	<-done

	result.EndTime = time.Now()

	logger.With(logger.Fields{
		string(domain.OutcomeSuccess):           result.Counts[domain.OutcomeSuccess],
		string(domain.OutcomeFailPartialOutput): result.Counts[domain.OutcomeFailPartialOutput],
		string(domain.OutcomeFailNoChange):      result.Counts[domain.OutcomeFailNoChange],
		string(domain.OutcomeFailError):         result.Counts[domain.OutcomeFailError],
		logger.FieldDurationMs:                  result.EndTime.Sub(result.StartTime).Milliseconds(),
	}).Info(ctx, "Run batch completed")

	return result, nil
}

// exportOne writes the run's text to the requested formats and feeds the
// written paths into the event. Export trouble never touches the outcome;
// the event is appended regardless.
func (e *Executor) exportOne(ctx context.Context, res *workerResult, engineKind domain.EngineKind, formats []domain.ExportFormat) {
	if e.exporter == nil || len(formats) == 0 || res.text == "" || res.snap == nil {
		return
	}
	records, err := e.exporter.ExportDocument(context.Background(), res.snap, engineKind, res.text, formats)
	if err != nil {
		e.log(ctx).WithField(logger.FieldDocumentID, res.event.DocumentID).
			WithError(err).Error("Failed to export run text")
	}
	for _, rec := range records {
		if rec.OutputPath != "" {
			res.event.ExportedPaths = append(res.event.ExportedPaths, rec.OutputPath)
		}
	}
}

// runOne executes a single candidate and always produces exactly one fully
// formed event, classifying engine failures instead of propagating them.
func (e *Executor) runOne(ctx context.Context, cand domain.RunCandidate, engine Engine) (*domain.RunEvent, string, *domain.DocumentSnapshot) {
	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	cctx = logger.SetDocumentID(cctx, cand.DocumentID)

	started := time.Now().UTC()

	snap, before, err := e.beforeState(cctx, cand.DocumentID)
	var res *ExecResult
	if err == nil {
		res, err = engine.Execute(cctx, snap)
	}

	after := before
	attempts := 1
	var text, detail string
	if res != nil {
		if res.Attempts > 0 {
			attempts = res.Attempts
		}
		detail = res.Detail
		if err == nil {
			after = RunObservation{ContentLength: res.ContentLength, ArchiveFilename: res.ArchiveFilename}
			text = res.Text
		}
	}

	outcome := ClassifyOutcome(before, after, err != nil)

	event := &domain.RunEvent{
		ID:                    uuid.New().String(),
		DocumentID:            cand.DocumentID,
		Engine:                engine.Name(),
		StartedAt:             started,
		FinishedAt:            time.Now().UTC(),
		ContentLengthBefore:   before.ContentLength,
		ContentLengthAfter:    after.ContentLength,
		ArchiveFilenameBefore: before.ArchiveFilename,
		ArchiveFilenameAfter:  after.ArchiveFilename,
		Outcome:               outcome,
		Attempts:              attempts,
	}
	if err != nil {
		event.ErrorDetail = err.Error()
	}

	entry := logger.With(logger.Fields{}).
		WithOutcome(string(outcome)).
		WithAttempts(attempts)
	if err != nil {
		entry.Error(cctx, "Run failed: %v", err)
	} else if detail != "" {
		entry.Info(cctx, "Run finished (%s)", detail)
	} else {
		entry.Info(cctx, "Run finished")
	}

	return event, text, snap
}

// beforeState resolves the pre-run observation. The stored snapshot is
// trusted while fresh; otherwise, or when the store has no row, a point
// read against the remote supplies it.
func (e *Executor) beforeState(ctx context.Context, id int64) (*domain.DocumentSnapshot, RunObservation, error) {
	snap, err := e.snapshots.GetByID(ctx, id)
	if err != nil && !repository.IsNotFound(err) {
		return nil, RunObservation{}, fmt.Errorf("read snapshot %d: %w", id, err)
	}

	if snap != nil && time.Since(snap.SyncedAt) <= e.snapshotMaxAge {
		return snap, RunObservation{
			ContentLength:   snap.ContentLength,
			ArchiveFilename: snap.ArchiveFilename,
		}, nil
	}

	doc, err := e.api.GetDocument(ctx, id)
	if err != nil {
		return nil, RunObservation{}, fmt.Errorf("point read %d: %w", id, err)
	}
	fresh := snapshotFromRemote(doc, time.Now().UTC())
	if snap != nil {
		fresh.FirstSeenAt = snap.FirstSeenAt
		fresh.CreatedAt = snap.CreatedAt
	}
	return fresh, RunObservation{
		ContentLength:   fresh.ContentLength,
		ArchiveFilename: fresh.ArchiveFilename,
	}, nil
}
