package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"tcm-go/internal/api"
	"tcm-go/internal/backup"
	"tcm-go/internal/catalog"
	"tcm-go/internal/config"
	"tcm-go/internal/database"
	"tcm-go/internal/source"
)

// TCMApp is the application layer between the CLI and catalog.Service.
// It constructs all dependencies from config, snapshots the database after
// it changes, and manages the DB lifecycle on Close.
type TCMApp struct {
	cfg       *config.Config
	db        *database.SQLiteDatabase
	service   *catalog.Service
	snapshots *backup.Snapshotter // nil when backups are disabled
	logger    catalog.Logger
	op        *Operation
	logFile   io.Closer
}

// NewTCMApp creates a fully wired TCMApp from the given config.
// operation identifies the CLI command being run (e.g. "Sync", "RecordReview").
// The caller must call Close when done.
func NewTCMApp(ctx context.Context, cfg *config.Config, operation string) (*TCMApp, error) {
	staleAfter, err := cfg.Sync.LockStaleAfterDuration()
	if err != nil {
		return nil, err
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date (run `tcm db migrate`): %w", err)
	}

	op := NewOperation(operation, time.Now())
	slogger, logFile, err := newLogger(cfg.LogDir, op.ID)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	store, err := backup.NewStoreFromConfig(ctx, cfg.Backup, cfg.S3)
	if err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating backup store: %w", err)
	}
	keys, err := backup.KeyPairFromConfig(cfg.Backup)
	if err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("loading backup keys: %w", err)
	}

	svc := catalog.NewService(db, source.NewOpener(cfg.Layout, cfg.S3), logger, catalog.RealClock{}, catalog.UUIDGenerator{})
	if staleAfter > 0 {
		svc.SetLockStaleAfter(staleAfter)
	}

	a := &TCMApp{
		cfg:     cfg,
		db:      db,
		service: svc,
		logger:  logger,
		op:      op,
		logFile: logFile,
	}
	if store != nil {
		a.snapshots = backup.NewSnapshotter(db, store, keys, catalog.RealClock{}, logger)
	}
	return a, nil
}

// Migrate applies pending schema migrations to the configured database.
func Migrate(cfg *config.Config) error {
	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return fmt.Errorf("creating database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return nil
}

// Schema returns the CREATE statements of the configured database.
func Schema(ctx context.Context, cfg *config.Config) (string, error) {
	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return "", fmt.Errorf("creating database: %w", err)
	}
	defer db.Close()

	return db.Schema(ctx)
}

// Sync runs one sync and, when it succeeds, snapshots the database. A
// failed snapshot is logged; the sync result stands.
func (a *TCMApp) Sync(ctx context.Context, locator string) (*catalog.SyncRun, error) {
	run, err := a.service.Sync(ctx, locator)
	if err != nil {
		return run, err
	}
	a.op.MarkDirty()
	a.snapshotIfDirty(ctx)
	return run, nil
}

// RecordReview stores a review decision for one resource.
func (a *TCMApp) RecordReview(ctx context.Context, key string, in catalog.ReviewInput) error {
	if err := a.service.RecordReview(ctx, key, in); err != nil {
		return err
	}
	a.op.MarkDirty()
	return nil
}

// RecordInvestment stores an investment decision for one resource.
func (a *TCMApp) RecordInvestment(ctx context.Context, key string, in catalog.InvestmentInput) error {
	if err := a.service.RecordInvestment(ctx, key, in); err != nil {
		return err
	}
	a.op.MarkDirty()
	return nil
}

// BulkUpdateClassification sets one hand-maintained field on many resources.
// Returns the number of rows updated.
func (a *TCMApp) BulkUpdateClassification(ctx context.Context, keys []string, field, value string) (int, error) {
	n, err := a.service.BulkUpdateClassification(ctx, keys, field, value)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		a.op.MarkDirty()
	}
	return n, nil
}

// ListActive returns the canonical-scope resources matching filters.
func (a *TCMApp) ListActive(ctx context.Context, filters map[string][]string) ([]*catalog.Resource, error) {
	return a.service.ListActive(ctx, filters)
}

// GetByScope returns the resources in a named scope.
func (a *TCMApp) GetByScope(ctx context.Context, name string) ([]*catalog.Resource, error) {
	return a.service.GetByScope(ctx, name)
}

// Aggregate computes a named metric, optionally grouped by a field.
func (a *TCMApp) Aggregate(ctx context.Context, metric, groupBy string) (*catalog.Aggregate, error) {
	return a.service.Aggregate(ctx, metric, groupBy)
}

// ListRuns returns the most recent sync runs.
func (a *TCMApp) ListRuns(ctx context.Context, limit int) ([]*catalog.SyncRun, error) {
	return a.service.ListRuns(ctx, limit)
}

// Reconcile cross-checks independently computed totals.
func (a *TCMApp) Reconcile(ctx context.Context) (*catalog.Reconciliation, error) {
	return a.service.Reconcile(ctx)
}

// Serve runs the HTTP API until ctx is cancelled. Syncs started over HTTP
// snapshot like CLI syncs; decisions written over HTTP are covered by the
// snapshot taken on Close.
func (a *TCMApp) Serve(ctx context.Context) error {
	return api.Serve(ctx, a.cfg.API.Addr, a.router(), a.logger)
}

func (a *TCMApp) router() http.Handler {
	return api.NewRouter(a.cfg.API, api.NewHandler(a.service, a, a.logger))
}

// ErrBackupsDisabled is returned by backup operations when no backup store
// is configured.
var ErrBackupsDisabled = errors.New("backups are disabled: set [backup] type in the config")

// Snapshot stores a snapshot of the database now.
func (a *TCMApp) Snapshot(ctx context.Context) (*backup.Snapshot, error) {
	if a.snapshots == nil {
		return nil, ErrBackupsDisabled
	}
	wasDirty := a.op.takeDirty()
	snap, err := a.snapshots.Snapshot(ctx)
	if err != nil {
		if wasDirty {
			a.op.MarkDirty()
		}
		return nil, err
	}
	return snap, nil
}

// ListSnapshots returns stored snapshots, newest first.
func (a *TCMApp) ListSnapshots(ctx context.Context) ([]backup.Snapshot, error) {
	if a.snapshots == nil {
		return nil, ErrBackupsDisabled
	}
	return a.snapshots.List(ctx)
}

// RestoreSnapshot writes the named snapshot to destPath. passphrase unlocks
// the private key for encrypted snapshots.
func (a *TCMApp) RestoreSnapshot(ctx context.Context, name, destPath, passphrase string) error {
	if a.snapshots == nil {
		return ErrBackupsDisabled
	}
	return a.snapshots.Restore(ctx, name, destPath, passphrase)
}

func (a *TCMApp) snapshotIfDirty(ctx context.Context) {
	if a.snapshots == nil || !a.op.takeDirty() {
		return
	}
	if _, err := a.snapshots.Snapshot(ctx); err != nil {
		a.op.MarkDirty()
		a.logger.Error("snapshot failed", "op", a.op.Name, "error", err)
	}
}

// Close snapshots the database if this operation changed it since the last
// snapshot, then closes all resources.
func (a *TCMApp) Close() error {
	a.snapshotIfDirty(context.Background())

	var firstErr error
	if err := a.db.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing log file: %w", err)
		}
	}
	return firstErr
}
