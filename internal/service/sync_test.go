package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mfriedrich/ocrtrack/internal/domain"
	"github.com/mfriedrich/ocrtrack/internal/paperless"
	"gorm.io/gorm"
)

type fakeLister struct {
	pages   [][]paperless.Document
	failAt  int // 1-based page that errors; 0 disables
	failErr error
}

func (f *fakeLister) ListDocumentsPage(ctx context.Context, page int) ([]paperless.Document, bool, error) {
	if f.failAt > 0 && page == f.failAt {
		return nil, false, f.failErr
	}
	if page > len(f.pages) {
		return nil, false, nil
	}
	return f.pages[page-1], page < len(f.pages), nil
}

type fakeSnapshotWriter struct {
	rows    map[int64]*domain.DocumentSnapshot
	missing int64
	pruned  int64
}

func newFakeSnapshotWriter() *fakeSnapshotWriter {
	return &fakeSnapshotWriter{rows: make(map[int64]*domain.DocumentSnapshot)}
}

func (f *fakeSnapshotWriter) Upsert(ctx context.Context, snap *domain.DocumentSnapshot) error {
	cp := *snap
	f.rows[snap.ID] = &cp
	return nil
}

func (f *fakeSnapshotWriter) GetByID(ctx context.Context, id int64) (*domain.DocumentSnapshot, error) {
	if snap, ok := f.rows[id]; ok {
		cp := *snap
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeSnapshotWriter) MarkMissing(ctx context.Context, syncStartedAt time.Time) (int64, error) {
	var count int64
	for _, snap := range f.rows {
		if snap.Active && snap.SyncedAt.Before(syncStartedAt) {
			snap.Active = false
			count++
		}
	}
	f.missing = count
	return count, nil
}

func (f *fakeSnapshotWriter) PruneInactive(ctx context.Context) (int64, error) {
	for id, snap := range f.rows {
		if !snap.Active {
			delete(f.rows, id)
			f.pruned++
		}
	}
	return f.pruned, nil
}

type fakeSyncRunStore struct {
	created *domain.SyncRun
	updated *domain.SyncRun
}

func (f *fakeSyncRunStore) Create(ctx context.Context, run *domain.SyncRun) error {
	cp := *run
	f.created = &cp
	return nil
}

func (f *fakeSyncRunStore) Update(ctx context.Context, run *domain.SyncRun) error {
	cp := *run
	f.updated = &cp
	return nil
}

func remoteDoc(id int64, title string, contentLength int64) paperless.Document {
	return paperless.Document{
		ID:            id,
		Title:         title,
		ContentLength: contentLength,
		ModifiedAt:    time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestSyncFirstPassCountsEverythingNew(t *testing.T) {
	lister := &fakeLister{pages: [][]paperless.Document{
		{remoteDoc(1, "a", 10), remoteDoc(2, "b", 20)},
		{remoteDoc(3, "c", 30)},
	}}
	store := newFakeSnapshotWriter()
	runs := &fakeSyncRunStore{}
	svc := NewSyncService(lister, store, runs, testLogger())

	run, err := svc.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if run.Status != domain.SyncStatusCompleted {
		t.Errorf("status = %q, want %q", run.Status, domain.SyncStatusCompleted)
	}
	if run.PagesFetched != 2 {
		t.Errorf("pages = %d, want 2", run.PagesFetched)
	}
	if run.TotalDocuments != 3 || run.NewCount != 3 || run.ChangedCount != 0 || run.UnchangedCount != 0 {
		t.Errorf("counts = total %d new %d changed %d unchanged %d",
			run.TotalDocuments, run.NewCount, run.ChangedCount, run.UnchangedCount)
	}
	if len(store.rows) != 3 {
		t.Errorf("stored rows = %d, want 3", len(store.rows))
	}
	if runs.updated == nil || runs.updated.Status != domain.SyncStatusCompleted {
		t.Error("completed run was not persisted")
	}
}

func TestSyncRerunIsIdempotent(t *testing.T) {
	lister := &fakeLister{pages: [][]paperless.Document{
		{remoteDoc(1, "a", 10), remoteDoc(2, "b", 20)},
	}}
	store := newFakeSnapshotWriter()
	runs := &fakeSyncRunStore{}
	svc := NewSyncService(lister, store, runs, testLogger())

	if _, err := svc.Sync(context.Background()); err != nil {
		t.Fatalf("first Sync() error = %v", err)
	}
	firstSeen := store.rows[1].FirstSeenAt

	run, err := svc.Sync(context.Background())
	if err != nil {
		t.Fatalf("second Sync() error = %v", err)
	}

	if run.NewCount != 0 || run.UnchangedCount != 2 {
		t.Errorf("second pass: new %d unchanged %d, want 0 and 2", run.NewCount, run.UnchangedCount)
	}
	if !store.rows[1].FirstSeenAt.Equal(firstSeen) {
		t.Error("first_seen_at was not preserved across passes")
	}
}

func TestSyncDetectsChangedDocuments(t *testing.T) {
	lister := &fakeLister{pages: [][]paperless.Document{
		{remoteDoc(1, "a", 10)},
	}}
	store := newFakeSnapshotWriter()
	svc := NewSyncService(lister, store, &fakeSyncRunStore{}, testLogger())

	if _, err := svc.Sync(context.Background()); err != nil {
		t.Fatalf("first Sync() error = %v", err)
	}

	// Content grew on the remote between passes.
	lister.pages = [][]paperless.Document{{remoteDoc(1, "a", 999)}}
	run, err := svc.Sync(context.Background())
	if err != nil {
		t.Fatalf("second Sync() error = %v", err)
	}

	if run.ChangedCount != 1 || run.UnchangedCount != 0 {
		t.Errorf("changed %d unchanged %d, want 1 and 0", run.ChangedCount, run.UnchangedCount)
	}
}

func TestSyncMarksMissingDocuments(t *testing.T) {
	lister := &fakeLister{pages: [][]paperless.Document{
		{remoteDoc(1, "a", 10), remoteDoc(2, "b", 20)},
	}}
	store := newFakeSnapshotWriter()
	svc := NewSyncService(lister, store, &fakeSyncRunStore{}, testLogger())

	if _, err := svc.Sync(context.Background()); err != nil {
		t.Fatalf("first Sync() error = %v", err)
	}

	// Document 2 disappeared from the remote.
	lister.pages = [][]paperless.Document{{remoteDoc(1, "a", 10)}}
	run, err := svc.Sync(context.Background())
	if err != nil {
		t.Fatalf("second Sync() error = %v", err)
	}

	if run.MissingCount != 1 {
		t.Errorf("missing = %d, want 1", run.MissingCount)
	}
	if store.rows[2].Active {
		t.Error("missing document still active")
	}
	if !store.rows[1].Active {
		t.Error("present document was deactivated")
	}

	pruned, err := svc.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}
	if _, ok := store.rows[2]; ok {
		t.Error("inactive row survived prune")
	}
}

func TestSyncPageFailureAbortsButKeepsEarlierRows(t *testing.T) {
	cause := errors.New("boom")
	lister := &fakeLister{
		pages: [][]paperless.Document{
			{remoteDoc(1, "a", 10)},
			{remoteDoc(2, "b", 20)},
		},
		failAt:  2,
		failErr: cause,
	}
	store := newFakeSnapshotWriter()
	runs := &fakeSyncRunStore{}
	svc := NewSyncService(lister, store, runs, testLogger())

	run, err := svc.Sync(context.Background())
	if !errors.Is(err, cause) {
		t.Fatalf("Sync() error = %v, want %v", err, cause)
	}

	if run.Status != domain.SyncStatusFailed {
		t.Errorf("status = %q, want %q", run.Status, domain.SyncStatusFailed)
	}
	if run.ErrorLog == "" {
		t.Error("error log is empty")
	}
	if _, ok := store.rows[1]; !ok {
		t.Error("page 1 rows should survive a page 2 failure")
	}
	if _, ok := store.rows[2]; ok {
		t.Error("no rows from the failed page should exist")
	}
}

func TestFingerprintChangesWithMetadata(t *testing.T) {
	a := remoteDoc(1, "a", 10)
	b := remoteDoc(1, "a", 10)

	if Fingerprint(&a) != Fingerprint(&b) {
		t.Error("identical documents produced different fingerprints")
	}

	b.ContentLength = 11
	if Fingerprint(&a) == Fingerprint(&b) {
		t.Error("content length change not reflected in fingerprint")
	}
}
