package service

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/mfriedrich/ocrtrack/internal/domain"
	"github.com/mfriedrich/ocrtrack/internal/logger"
)

type fakeSnapshotQuerier struct {
	byID           map[int64]domain.DocumentSnapshot
	missingArchive []domain.DocumentSnapshot
	lowContent     []domain.DocumentSnapshot
	activeIDs      []int64
}

func (f *fakeSnapshotQuerier) GetByIDs(ctx context.Context, ids []int64) ([]domain.DocumentSnapshot, error) {
	var out []domain.DocumentSnapshot
	for _, id := range ids {
		if snap, ok := f.byID[id]; ok {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (f *fakeSnapshotQuerier) ListMissingArchive(ctx context.Context) ([]domain.DocumentSnapshot, error) {
	return append([]domain.DocumentSnapshot(nil), f.missingArchive...), nil
}

func (f *fakeSnapshotQuerier) ListLowContent(ctx context.Context, threshold int64) ([]domain.DocumentSnapshot, error) {
	var out []domain.DocumentSnapshot
	for _, snap := range f.lowContent {
		if snap.ContentLength < threshold {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (f *fakeSnapshotQuerier) ListActiveIDs(ctx context.Context) ([]int64, error) {
	return append([]int64(nil), f.activeIDs...), nil
}

type fakeRunHistory struct {
	lastSuccess map[int64]*domain.RunEvent
}

func (f *fakeRunHistory) LatestSuccess(ctx context.Context, documentID int64, engine domain.EngineKind) (*domain.RunEvent, error) {
	return f.lastSuccess[documentID], nil
}

func testLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: "error", Format: "text"})
}

func snapWithContent(id, contentLength int64, modified time.Time) domain.DocumentSnapshot {
	return domain.DocumentSnapshot{
		ID:            id,
		ContentLength: contentLength,
		ModifiedAt:    modified,
		Active:        true,
	}
}

func candidateIDs(cands []domain.RunCandidate) []int64 {
	ids := make([]int64, 0, len(cands))
	for _, c := range cands {
		ids = append(ids, c.DocumentID)
	}
	return ids
}

func TestSelectExplicitIDsKeepOrderAndDedup(t *testing.T) {
	store := &fakeSnapshotQuerier{}
	sel := NewSelector(store, &fakeRunHistory{}, testLogger())

	got, err := sel.Select(context.Background(), SelectCriteria{
		ExplicitIDs: []int64{42, 7, 42, 99, 7},
	})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	want := []int64{42, 7, 99}
	if !reflect.DeepEqual(candidateIDs(got), want) {
		t.Errorf("ids = %v, want %v", candidateIDs(got), want)
	}
	for _, c := range got {
		if c.Reason != domain.ReasonExplicitID {
			t.Errorf("reason for %d = %q, want %q", c.DocumentID, c.Reason, domain.ReasonExplicitID)
		}
	}
}

func TestSelectLowContentThreshold(t *testing.T) {
	now := time.Now()
	store := &fakeSnapshotQuerier{
		lowContent: []domain.DocumentSnapshot{
			snapWithContent(10, 10, now),
			snapWithContent(11, 50, now),
		},
	}
	sel := NewSelector(store, &fakeRunHistory{}, testLogger())

	got, err := sel.Select(context.Background(), SelectCriteria{
		LowContentThreshold: 50,
	})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	// Strictly below the threshold: 10 qualifies, 50 does not.
	want := []int64{10}
	if !reflect.DeepEqual(candidateIDs(got), want) {
		t.Errorf("ids = %v, want %v", candidateIDs(got), want)
	}
}

func TestSelectFreshnessExclusion(t *testing.T) {
	modified := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeSnapshotQuerier{
		missingArchive: []domain.DocumentSnapshot{
			snapWithContent(1, 0, modified),
			snapWithContent(2, 0, modified),
		},
	}
	history := &fakeRunHistory{
		lastSuccess: map[int64]*domain.RunEvent{
			// Newer than the modification: excluded unless forced.
			1: {DocumentID: 1, FinishedAt: modified.Add(time.Hour)},
			// Older than the modification: stays in.
			2: {DocumentID: 2, FinishedAt: modified.Add(-time.Hour)},
		},
	}
	sel := NewSelector(store, history, testLogger())

	got, err := sel.Select(context.Background(), SelectCriteria{
		MissingArchive: true,
		Engine:         domain.EngineInternal,
	})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if want := []int64{2}; !reflect.DeepEqual(candidateIDs(got), want) {
		t.Errorf("ids = %v, want %v", candidateIDs(got), want)
	}

	forced, err := sel.Select(context.Background(), SelectCriteria{
		MissingArchive: true,
		Engine:         domain.EngineInternal,
		Force:          true,
	})
	if err != nil {
		t.Fatalf("Select() with force error = %v", err)
	}
	if want := []int64{1, 2}; !reflect.DeepEqual(candidateIDs(forced), want) {
		t.Errorf("forced ids = %v, want %v", candidateIDs(forced), want)
	}
}

func TestSelectSeededSampleIsReproducible(t *testing.T) {
	store := &fakeSnapshotQuerier{
		activeIDs: []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
	}
	sel := NewSelector(store, &fakeRunHistory{}, testLogger())

	seed := int64(1234)
	criteria := SelectCriteria{SampleSize: 4, Seed: &seed}

	first, err := sel.Select(context.Background(), criteria)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	second, err := sel.Select(context.Background(), criteria)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	if len(first) != 4 {
		t.Fatalf("sample size = %d, want 4", len(first))
	}
	if !reflect.DeepEqual(candidateIDs(first), candidateIDs(second)) {
		t.Errorf("seeded samples differ: %v vs %v", candidateIDs(first), candidateIDs(second))
	}

	ids := candidateIDs(first)
	for i := 1; i < len(ids); i++ {
		if ids[i-1] >= ids[i] {
			t.Errorf("sample not in ascending order: %v", ids)
		}
	}
	for _, c := range first {
		if c.Reason != domain.ReasonRandomSample {
			t.Errorf("reason = %q, want %q", c.Reason, domain.ReasonRandomSample)
		}
	}
}

func TestSelectSampleSmallerPoolReturnsAll(t *testing.T) {
	store := &fakeSnapshotQuerier{activeIDs: []int64{3, 5}}
	sel := NewSelector(store, &fakeRunHistory{}, testLogger())

	got, err := sel.Select(context.Background(), SelectCriteria{SampleSize: 10})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if want := []int64{3, 5}; !reflect.DeepEqual(candidateIDs(got), want) {
		t.Errorf("ids = %v, want %v", candidateIDs(got), want)
	}
}

func TestSelectFirstReasonWins(t *testing.T) {
	now := time.Now()
	store := &fakeSnapshotQuerier{
		missingArchive: []domain.DocumentSnapshot{snapWithContent(5, 0, now)},
		lowContent:     []domain.DocumentSnapshot{snapWithContent(5, 1, now)},
	}
	sel := NewSelector(store, &fakeRunHistory{}, testLogger())

	got, err := sel.Select(context.Background(), SelectCriteria{
		ExplicitIDs:         []int64{5},
		MissingArchive:      true,
		LowContentThreshold: 100,
	})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Reason != domain.ReasonExplicitID {
		t.Errorf("reason = %q, want %q", got[0].Reason, domain.ReasonExplicitID)
	}
}
