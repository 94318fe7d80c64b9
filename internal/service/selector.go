package service

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/mfriedrich/ocrtrack/internal/domain"
	"github.com/mfriedrich/ocrtrack/internal/logger"
)

// snapshotQuerier is the store surface candidate selection needs.
type snapshotQuerier interface {
	GetByIDs(ctx context.Context, ids []int64) ([]domain.DocumentSnapshot, error)
	ListMissingArchive(ctx context.Context) ([]domain.DocumentSnapshot, error)
	ListLowContent(ctx context.Context, threshold int64) ([]domain.DocumentSnapshot, error)
	ListActiveIDs(ctx context.Context) ([]int64, error)
}

// runHistory answers whether a document already had a successful run.
type runHistory interface {
	LatestSuccess(ctx context.Context, documentID int64, engine domain.EngineKind) (*domain.RunEvent, error)
}

// SelectCriteria describes which documents to pick for a run batch. The
// variants combine; a document picked by several keeps the first reason in
// the order explicit, missing archive, low content, random sample.
type SelectCriteria struct {
	// ExplicitIDs pass through in caller order, deduplicated, without any
	// freshness exclusion.
	ExplicitIDs []int64
	// MissingArchive picks active documents without an archive artifact.
	MissingArchive bool
	// LowContent picks active documents with content shorter than
	// LowContentThreshold. Zero threshold disables the variant.
	LowContentThreshold int64
	// SampleSize picks that many random active documents; zero disables.
	SampleSize int
	// Seed makes the random sample reproducible when non-nil.
	Seed *int64
	// Engine scopes the freshness exclusion to runs of this engine.
	Engine domain.EngineKind
	// Force disables the freshness exclusion for the heuristic variants.
	Force bool
}

// Selector picks run candidates from the snapshot store.
type Selector struct {
	snapshots snapshotQuerier
	ledger    runHistory
	logger    *logger.Logger
}

// NewSelector creates a new Selector.
// Parameters:
//   - snapshots: snapshot store.
//   - ledger: run event history.
//   - log: base logger.
// Returns:
//   - *Selector: initialized selector.
func NewSelector(snapshots snapshotQuerier, ledger runHistory, log *logger.Logger) *Selector {
	return &Selector{
		snapshots: snapshots,
		ledger:    ledger,
		logger:    log,
	}
}

func (s *Selector) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// Select resolves the criteria into an ordered candidate list. Explicit IDs
// come first in caller order; the heuristic variants follow in ascending ID
// order; the random sample comes last. Identical criteria against identical
// store state yield identical results (given a seed for sampling).
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - criteria: selection criteria.
// Returns:
//   - []domain.RunCandidate: selected candidates with their reasons.
//   - error: non-nil if a store query fails.
func (s *Selector) Select(ctx context.Context, criteria SelectCriteria) ([]domain.RunCandidate, error) {
	var out []domain.RunCandidate
	picked := make(map[int64]bool)

	add := func(id int64, reason domain.CandidateReason) {
		if picked[id] {
			return
		}
		picked[id] = true
		out = append(out, domain.RunCandidate{DocumentID: id, Reason: reason})
	}

	for _, id := range criteria.ExplicitIDs {
		add(id, domain.ReasonExplicitID)
	}

	if criteria.MissingArchive {
		snaps, err := s.snapshots.ListMissingArchive(ctx)
		if err != nil {
			return nil, fmt.Errorf("list missing archive: %w", err)
		}
		kept, err := s.applyFreshnessExclusion(ctx, snaps, criteria)
		if err != nil {
			return nil, err
		}
		for _, snap := range kept {
			add(snap.ID, domain.ReasonMissingArchive)
		}
	}

	if criteria.LowContentThreshold > 0 {
		snaps, err := s.snapshots.ListLowContent(ctx, criteria.LowContentThreshold)
		if err != nil {
			return nil, fmt.Errorf("list low content: %w", err)
		}
		kept, err := s.applyFreshnessExclusion(ctx, snaps, criteria)
		if err != nil {
			return nil, err
		}
		for _, snap := range kept {
			add(snap.ID, domain.ReasonLowContent)
		}
	}

	if criteria.SampleSize > 0 {
		ids, err := s.sample(ctx, criteria.SampleSize, criteria.Seed, picked)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			add(id, domain.ReasonRandomSample)
		}
	}

	s.log(ctx).WithField(logger.FieldCount, len(out)).Info("Selected run candidates")
	return out, nil
}

// applyFreshnessExclusion drops documents whose latest successful run with
// the same engine is newer than the document's last modification. Force
// keeps everything.
func (s *Selector) applyFreshnessExclusion(ctx context.Context, snaps []domain.DocumentSnapshot, criteria SelectCriteria) ([]domain.DocumentSnapshot, error) {
	if criteria.Force || criteria.Engine == "" {
		return snaps, nil
	}
	kept := snaps[:0]
	for _, snap := range snaps {
		last, err := s.ledger.LatestSuccess(ctx, snap.ID, criteria.Engine)
		if err != nil {
			return nil, fmt.Errorf("lookup last success for %d: %w", snap.ID, err)
		}
		if last != nil && last.FinishedAt.After(snap.ModifiedAt) {
			continue
		}
		kept = append(kept, snap)
	}
	return kept, nil
}

// sample picks n random active documents not already selected. With a seed
// the pick is reproducible; without one it varies per call. The returned
// IDs are sorted ascending.
func (s *Selector) sample(ctx context.Context, n int, seed *int64, picked map[int64]bool) ([]int64, error) {
	ids, err := s.snapshots.ListActiveIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active ids: %w", err)
	}

	pool := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !picked[id] {
			pool = append(pool, id)
		}
	}
	if len(pool) <= n {
		return pool, nil
	}

	var rng *rand.Rand
	if seed != nil {
		rng = rand.New(rand.NewSource(*seed))
	} else {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	sampled := pool[:n]
	sort.Slice(sampled, func(i, j int) bool { return sampled[i] < sampled[j] })
	return sampled, nil
}
