package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultLockStaleAfter is how old a persisted sync lease must be before
// another process may take it over.
const DefaultLockStaleAfter = time.Hour

// maxRunNotes caps how many entry warnings are written verbatim into a run.
const maxRunNotes = 50

// Service is the core of the catalog: it runs syncs, records human decisions
// and answers aggregate queries. Collaborators never reach the store directly.
type Service struct {
	store          Store
	sources        SourceOpener
	logger         Logger
	clock          Clock
	idgen          IDGenerator
	lockStaleAfter time.Duration

	running atomic.Bool
	mu      sync.Mutex
	phase   Phase
}

// NewService creates a Service with the provided dependencies.
func NewService(store Store, sources SourceOpener, logger Logger, clock Clock, idgen IDGenerator) *Service {
	return &Service{
		store:          store,
		sources:        sources,
		logger:         logger,
		clock:          clock,
		idgen:          idgen,
		lockStaleAfter: DefaultLockStaleAfter,
		phase:          PhaseIdle,
	}
}

// SetLockStaleAfter overrides DefaultLockStaleAfter. Non-positive values are ignored.
func (s *Service) SetLockStaleAfter(d time.Duration) {
	if d > 0 {
		s.lockStaleAfter = d
	}
}

// Phase returns the state of the sync orchestrator.
func (s *Service) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Service) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

// Sync walks the source at locator, upserts every candidate and then archives
// every active resource the walk did not touch. It is the only operation that
// changes resource liveness.
//
// A second Sync while one is running, in this process or another one sharing
// the store, fails with a *ConcurrencyError and changes nothing. If the walk
// fails, the sweep is skipped and a *FatalSyncError is returned together with
// the failed run; upserts already made are kept.
func (s *Service) Sync(ctx context.Context, locator string) (*SyncRun, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, &ConcurrencyError{Holder: "this process"}
	}
	defer s.running.Store(false)

	lease := &syncLease{holder: s.idgen.New(), renewedAt: s.clock.Now()}
	holder := lease.holder
	if err := s.store.AcquireSyncLock(ctx, holder, lease.renewedAt, s.lockStaleAfter); err != nil {
		if errors.Is(err, ErrSyncInProgress) {
			return nil, err
		}
		return nil, &FatalSyncError{Phase: PhaseIdle, Err: fmt.Errorf("acquiring sync lock: %w", err)}
	}
	defer func() {
		if err := s.store.ReleaseSyncLock(context.WithoutCancel(ctx), holder); err != nil {
			s.logger.Error("releasing sync lock", "holder", holder, "error", err)
		}
	}()

	run, err := s.runSync(ctx, locator, lease)
	if err != nil {
		s.setPhase(PhaseFailed)
		s.logger.Error("sync failed", "locator", locator, "error", err)
	} else {
		s.setPhase(PhaseDone)
	}

	if run != nil {
		if rerr := s.store.InsertSyncRun(context.WithoutCancel(ctx), run); rerr != nil {
			rerr = fmt.Errorf("recording sync run: %w", rerr)
			if err == nil {
				return run, &FatalSyncError{Phase: PhaseDone, Err: rerr}
			}
			s.logger.Error("recording failed sync run", "error", rerr)
		}
	}
	return run, err
}

// runSync performs one pass. The returned run is non-nil once the watermark
// has been fixed, including for failed passes.
func (s *Service) runSync(ctx context.Context, locator string, lease *syncLease) (*SyncRun, error) {
	s.setPhase(PhaseIdle)

	watermark, err := s.watermark(ctx)
	if err != nil {
		return nil, &FatalSyncError{Phase: PhaseIdle, Err: err}
	}

	run := &SyncRun{
		StartedAt: watermark,
		Locator:   locator,
		Status:    RunFailed,
	}

	before, err := s.store.CountActive(ctx)
	if err != nil {
		return s.failRun(ctx, run, PhaseIdle, fmt.Errorf("counting active resources: %w", err))
	}
	run.ActiveBefore = before

	src, err := s.sources.Open(ctx, locator)
	if err != nil {
		return s.failRun(ctx, run, PhaseIdle, fmt.Errorf("opening source: %w", err))
	}
	defer src.Close()
	run.SourceKind = src.Kind()

	s.logger.Info("sync started", "source", src.Kind(), "locator", src.Locator(), "watermark", watermark.Format(time.RFC3339Nano))

	s.setPhase(PhaseWalking)
	var warnings []EntryWarning
	warn := func(w EntryWarning) {
		warnings = append(warnings, w)
		s.logger.Warn("entry skipped", "path", w.Path, "error", w.Err)
	}
	visit := func(c Candidate) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.renewLease(ctx, lease); err != nil {
			return err
		}
		return s.observe(ctx, run, src.Kind(), c, watermark, warn)
	}

	walkErr := src.Walk(ctx, visit, warn)
	run.Warnings = len(warnings)
	run.Notes = summarizeWarnings(warnings)
	if walkErr != nil {
		return s.failRun(ctx, run, PhaseWalking, walkErr)
	}

	s.setPhase(PhaseSweeping)
	archived, err := s.store.ArchiveStale(ctx, watermark)
	if err != nil {
		return s.failRun(ctx, run, PhaseSweeping, fmt.Errorf("archiving stale resources: %w", err))
	}
	run.Archived = archived

	after, err := s.store.CountActive(ctx)
	if err != nil {
		return s.failRun(ctx, run, PhaseSweeping, fmt.Errorf("counting active resources: %w", err))
	}
	run.ActiveAfter = after
	run.Status = RunDone
	run.FinishedAt = s.finishedAt(watermark)

	s.logger.Info("sync complete",
		"added", run.Added,
		"reactivated", run.Reactivated,
		"refreshed", run.Refreshed,
		"unchanged", run.Unchanged,
		"archived", run.Archived,
		"warnings", run.Warnings,
		"active_before", run.ActiveBefore,
		"active_after", run.ActiveAfter,
	)
	return run, nil
}

// syncLease is the persisted sync lock held by one pass.
type syncLease struct {
	holder    string
	renewedAt time.Time
}

// renewLease refreshes the lease once a quarter of lockStaleAfter has passed,
// so a long walk is never taken over as stale. Losing the lease fails the walk.
func (s *Service) renewLease(ctx context.Context, l *syncLease) error {
	now := s.clock.Now()
	if now.Sub(l.renewedAt) < s.lockStaleAfter/4 {
		return nil
	}
	if err := s.store.RenewSyncLock(ctx, l.holder, now); err != nil {
		return fmt.Errorf("renewing sync lock: %w", err)
	}
	l.renewedAt = now
	s.logger.Debug("sync lock renewed", "holder", l.holder)
	return nil
}

// observe derives and upserts one candidate, tallying the outcome into run.
func (s *Service) observe(ctx context.Context, run *SyncRun, kind string, c Candidate, watermark time.Time, warn func(EntryWarning)) error {
	id, err := Derive(c)
	if err != nil {
		warn(EntryWarning{Path: c.Path, Err: err})
		return nil
	}

	obs := Observation{
		Identity:      id,
		Count:         1,
		ContentsCount: c.ContentsCount,
		IsPlaceholder: c.IsPlaceholder,
		Source:        kind,
	}
	if c.IsPlaceholder {
		obs.Count = 0
	}

	outcome, err := s.store.Upsert(ctx, obs, watermark)
	if err != nil {
		return fmt.Errorf("upserting %s: %w", id.Key, err)
	}

	switch outcome {
	case OutcomeInserted:
		run.Added++
	case OutcomeReactivated:
		run.Reactivated++
	case OutcomeRefreshed:
		run.Refreshed++
	default:
		run.Unchanged++
	}
	s.logger.Debug("resource observed", "key", id.Key, "outcome", outcome.String())
	return nil
}

// watermark returns the timestamp for this pass. It is strictly after every
// last_seen already stored, so a stalled or skewed clock can never leave a
// stale row looking touched.
func (s *Service) watermark(ctx context.Context) (time.Time, error) {
	now := s.clock.Now().UTC()
	latest, err := s.store.LatestSeen(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("reading latest watermark: %w", err)
	}
	if !latest.Before(now) {
		return latest.Add(time.Nanosecond).UTC(), nil
	}
	return now, nil
}

func (s *Service) finishedAt(watermark time.Time) time.Time {
	now := s.clock.Now().UTC()
	if now.Before(watermark) {
		return watermark
	}
	return now
}

// failRun completes run as failed. The sweep never runs after this.
func (s *Service) failRun(ctx context.Context, run *SyncRun, phase Phase, err error) (*SyncRun, error) {
	run.Status = RunFailed
	run.Error = err.Error()
	run.FinishedAt = s.finishedAt(run.StartedAt)
	if n, cerr := s.store.CountActive(context.WithoutCancel(ctx)); cerr == nil {
		run.ActiveAfter = n
	}
	return run, &FatalSyncError{Phase: phase, Err: err}
}

func summarizeWarnings(warnings []EntryWarning) string {
	if len(warnings) == 0 {
		return ""
	}
	var b strings.Builder
	for i, w := range warnings {
		if i == maxRunNotes {
			fmt.Fprintf(&b, "... and %d more\n", len(warnings)-maxRunNotes)
			break
		}
		b.WriteString(w.String())
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// ListRuns returns the most recent sync runs, newest first.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]*SyncRun, error) {
	runs, err := s.store.ListSyncRuns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sync runs: %w", err)
	}
	return runs, nil
}
