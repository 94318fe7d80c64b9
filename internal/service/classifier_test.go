package service

import (
	"testing"

	"github.com/mfriedrich/ocrtrack/internal/domain"
)

func TestClassifyOutcome(t *testing.T) {
	tests := []struct {
		name    string
		before  RunObservation
		after   RunObservation
		errored bool
		want    domain.Outcome
	}{
		{
			name:    "content grew",
			before:  RunObservation{ContentLength: 100, ArchiveFilename: "a.pdf"},
			after:   RunObservation{ContentLength: 250, ArchiveFilename: "a.pdf"},
			errored: false,
			want:    domain.OutcomeSuccess,
		},
		{
			name:    "content grew from zero",
			before:  RunObservation{ContentLength: 0},
			after:   RunObservation{ContentLength: 1},
			errored: false,
			want:    domain.OutcomeSuccess,
		},
		{
			name:    "archive changed but content equal",
			before:  RunObservation{ContentLength: 100, ArchiveFilename: "a.pdf"},
			after:   RunObservation{ContentLength: 100, ArchiveFilename: "b.pdf"},
			errored: false,
			want:    domain.OutcomeFailPartialOutput,
		},
		{
			name:    "nothing changed",
			before:  RunObservation{ContentLength: 100, ArchiveFilename: "a.pdf"},
			after:   RunObservation{ContentLength: 100, ArchiveFilename: "a.pdf"},
			errored: false,
			want:    domain.OutcomeFailNoChange,
		},
		{
			name:    "content shrank",
			before:  RunObservation{ContentLength: 100, ArchiveFilename: "a.pdf"},
			after:   RunObservation{ContentLength: 40, ArchiveFilename: "a.pdf"},
			errored: false,
			want:    domain.OutcomeFailNoChange,
		},
		{
			name:    "content shrank and archive changed",
			before:  RunObservation{ContentLength: 100, ArchiveFilename: "a.pdf"},
			after:   RunObservation{ContentLength: 40, ArchiveFilename: "b.pdf"},
			errored: false,
			want:    domain.OutcomeFailNoChange,
		},
		{
			name:    "error wins even when content grew",
			before:  RunObservation{ContentLength: 100, ArchiveFilename: "a.pdf"},
			after:   RunObservation{ContentLength: 500, ArchiveFilename: "a.pdf"},
			errored: true,
			want:    domain.OutcomeFailError,
		},
		{
			name:    "error with unchanged state",
			before:  RunObservation{ContentLength: 100},
			after:   RunObservation{ContentLength: 100},
			errored: true,
			want:    domain.OutcomeFailError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyOutcome(tt.before, tt.after, tt.errored)
			if got != tt.want {
				t.Errorf("ClassifyOutcome() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassifyOutcomeIsDeterministic(t *testing.T) {
	before := RunObservation{ContentLength: 10, ArchiveFilename: "x.pdf"}
	after := RunObservation{ContentLength: 10, ArchiveFilename: "y.pdf"}

	first := ClassifyOutcome(before, after, false)
	for i := 0; i < 100; i++ {
		if got := ClassifyOutcome(before, after, false); got != first {
			t.Fatalf("classification changed between calls: %q vs %q", got, first)
		}
	}
}
