package service

import (
	"context"
	"encoding/csv"
	"os"
	"testing"
	"time"

	"github.com/mfriedrich/ocrtrack/internal/domain"
)

type fakeSnapshotNamer struct {
	names map[int64]string
}

func (f *fakeSnapshotNamer) GetByIDs(ctx context.Context, ids []int64) ([]domain.DocumentSnapshot, error) {
	var out []domain.DocumentSnapshot
	for _, id := range ids {
		if name, ok := f.names[id]; ok {
			out = append(out, domain.DocumentSnapshot{ID: id, OriginalFilename: name})
		}
	}
	return out, nil
}

func sampleBatchResult() *BatchResult {
	return &BatchResult{
		BatchID: "batch-test",
		Engine:  domain.EngineInternal,
		Events: []domain.RunEvent{
			{
				DocumentID:          1,
				ContentLengthBefore: 100,
				ContentLengthAfter:  300,
				Outcome:             domain.OutcomeSuccess,
			},
			{
				DocumentID:          2,
				ContentLengthBefore: 50,
				ContentLengthAfter:  50,
				Outcome:             domain.OutcomeFailError,
				ErrorDetail:         "reprocess task failed",
			},
		},
		Counts: map[domain.Outcome]int{
			domain.OutcomeSuccess:   1,
			domain.OutcomeFailError: 1,
		},
		StartTime: time.Now().Add(-time.Minute),
		EndTime:   time.Now(),
	}
}

func TestBuildRows(t *testing.T) {
	namer := &fakeSnapshotNamer{names: map[int64]string{1: "invoice.pdf", 2: "letter.pdf"}}
	rep := NewReporter(namer, t.TempDir(), testLogger())

	rows, err := rep.BuildRows(context.Background(), sampleBatchResult())
	if err != nil {
		t.Fatalf("BuildRows() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}

	if rows[0].Filename != "invoice.pdf" || rows[0].Delta != 200 {
		t.Errorf("row 0 = %+v", rows[0])
	}
	if rows[1].Outcome != domain.OutcomeFailError || rows[1].ErrorDetail == "" {
		t.Errorf("row 1 = %+v", rows[1])
	}
}

func TestWriteCSV(t *testing.T) {
	dir := t.TempDir()
	namer := &fakeSnapshotNamer{names: map[int64]string{1: "invoice.pdf", 2: "letter.pdf"}}
	rep := NewReporter(namer, dir, testLogger())

	path, err := rep.WriteCSV(context.Background(), sampleBatchResult())
	if err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening report: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("parsing report: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("report lines = %d, want header + 2 rows", len(records))
	}

	header := records[0]
	want := []string{"id", "filename", "content_length_before", "content_length_after", "delta", "outcome", "error_detail"}
	for i, col := range want {
		if header[i] != col {
			t.Errorf("header[%d] = %q, want %q", i, header[i], col)
		}
	}
	if records[1][0] != "1" || records[1][4] != "200" || records[1][5] != string(domain.OutcomeSuccess) {
		t.Errorf("row 1 = %v", records[1])
	}
	if records[2][6] != "reprocess task failed" {
		t.Errorf("row 2 error detail = %q", records[2][6])
	}
}
