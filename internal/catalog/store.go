package catalog

import (
	"context"
	"time"
)

// Totals is the pair of canonical measures over a scope.
type Totals struct {
	Rows  int `json:"rows"`
	Count int `json:"count"`
}

// Group is one bucket of a breakdown.
type Group struct {
	Value string `json:"value"`
	Totals
}

// Store is the only access path to persisted resources and sync runs.
// Every read path takes a Scope, so no caller can query outside the
// canonical filter.
type Store interface {
	// Upsert reconciles one observation against stored state in its own
	// transaction. It never modifies review, investment or first_seen.
	Upsert(ctx context.Context, obs Observation, seenAt time.Time) (Outcome, error)

	// ArchiveStale archives every active row with last_seen before watermark,
	// atomically, and returns how many rows it archived.
	ArchiveStale(ctx context.Context, watermark time.Time) (int, error)

	// CountActive returns the number of non-archived rows, placeholders included.
	CountActive(ctx context.Context) (int, error)

	// LatestSeen returns the greatest last_seen of any row, or the zero time.
	LatestSeen(ctx context.Context) (time.Time, error)

	// FindResource returns the resource with key, or nil if there is none.
	FindResource(ctx context.Context, key string) (*Resource, error)

	// SetReview replaces the review decision of one row.
	SetReview(ctx context.Context, key string, review Review) error

	// SetInvestment replaces the investment decision of one row.
	SetInvestment(ctx context.Context, key string, inv Investment) error

	// SetClassification sets field on every canonical-scope row in keys in one
	// transaction and returns how many rows changed.
	SetClassification(ctx context.Context, keys []string, field ClassificationField, value string) (int, error)

	// List returns the rows in scope ordered by key.
	List(ctx context.Context, scope Scope) ([]*Resource, error)

	// Sum returns the row count and summed count over scope.
	Sum(ctx context.Context, scope Scope) (Totals, error)

	// Breakdown groups scope by field. Rows with an empty value form their
	// own group with Value "".
	Breakdown(ctx context.Context, scope Scope, by Field) ([]Group, error)

	// AcquireSyncLock takes the persisted sync lease for holder. It returns a
	// *ConcurrencyError if another holder has a lease younger than staleAfter.
	AcquireSyncLock(ctx context.Context, holder string, now time.Time, staleAfter time.Duration) error

	// RenewSyncLock refreshes the lease of holder to now. It returns a
	// *ConcurrencyError if holder no longer owns the lease.
	RenewSyncLock(ctx context.Context, holder string, now time.Time) error

	// ReleaseSyncLock drops the lease if holder owns it.
	ReleaseSyncLock(ctx context.Context, holder string) error

	// InsertSyncRun appends a completed run and sets its ID.
	InsertSyncRun(ctx context.Context, run *SyncRun) error

	// ListSyncRuns returns the most recent runs, newest first.
	ListSyncRuns(ctx context.Context, limit int) ([]*SyncRun, error)

	// Close closes the underlying connection.
	Close() error
}
