package service

import "github.com/mfriedrich/ocrtrack/internal/domain"

// RunObservation is the before/after view of a document that the outcome
// rules compare. Only the fields the rules read are captured.
type RunObservation struct {
	ContentLength   int64
	ArchiveFilename string
}

// ClassifyOutcome applies the ordered outcome rules to a finished run.
// The first matching rule wins:
//  1. the run errored before an after-state could be observed
//  2. the content grew
//  3. the archive artifact changed but the content length did not
//  4. nothing observable changed
//
// The function is pure; swapping in a smarter diff later only means
// replacing this one spot.
// Parameters:
//   - before: document state observed before the run.
//   - after: document state observed after the run.
//   - errored: true when the engine failed before producing an after-state.
// Returns:
//   - domain.Outcome: classified outcome.
func ClassifyOutcome(before, after RunObservation, errored bool) domain.Outcome {
	if errored {
		return domain.OutcomeFailError
	}
	if after.ContentLength > before.ContentLength {
		return domain.OutcomeSuccess
	}
	if after.ArchiveFilename != before.ArchiveFilename && after.ContentLength == before.ContentLength {
		return domain.OutcomeFailPartialOutput
	}
	return domain.OutcomeFailNoChange
}
