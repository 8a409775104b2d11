package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tcm-go/internal/catalog"
	"tcm-go/internal/database/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// memoryPath opens a private in-memory database.
const memoryPath = ":memory:"

// maxKeysPerStatement bounds the IN list of a bulk update.
const maxKeysPerStatement = 500

// SQLiteDatabase implements catalog.Store on SQLite. Timestamps are stored as
// Unix nanoseconds so watermark comparisons are exact.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase opens the database at path. path can be a file path or
// ":memory:" for an in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteDatabase{db: db, path: path}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{db: db}
}

// OpenConnection opens and configures a SQLite connection. Writes take the
// database lock when their transaction begins so that concurrent writers
// queue on busy_timeout instead of failing mid-transaction.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_txlock=immediate&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if path == memoryPath {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// DB returns the underlying connection pool.
func (s *SQLiteDatabase) DB() *sql.DB { return s.db }

// Resource writes

func (s *SQLiteDatabase) Upsert(ctx context.Context, obs catalog.Observation, seenAt time.Time) (catalog.Outcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	ts := seenAt.UnixNano()

	var cur storedObservation
	err = tx.QueryRowContext(ctx, `
		SELECT type, path, name, url, department, sub_department, bucket, training_type,
		       resource_count, contents_count, source, is_placeholder, is_archived
		FROM resources WHERE resource_key = ?`, obs.Key).Scan(
		&cur.Type, &cur.Path, &cur.Name, &cur.URL,
		&cur.Department, &cur.SubDepartment, &cur.Bucket, &cur.TrainingType,
		&cur.Count, &cur.ContentsCount, &cur.Source, &cur.IsPlaceholder, &cur.IsArchived,
	)

	var outcome catalog.Outcome
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, `
			INSERT INTO resources (
				resource_key, type, path, name, url,
				department, sub_department, bucket, training_type,
				resource_count, contents_count, source, is_placeholder, is_archived,
				first_seen, last_seen
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
			obs.Key, string(obs.Type), obs.Path, obs.Name, obs.URL,
			obs.Department, obs.SubDepartment, obs.Bucket, obs.TrainingType,
			obs.Count, obs.ContentsCount, obs.Source, obs.IsPlaceholder,
			ts, ts,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting resource: %w", err)
		}
		outcome = catalog.OutcomeInserted

	case err != nil:
		return 0, fmt.Errorf("finding resource: %w", err)

	default:
		// Review, investment, hand-set classification and first_seen are
		// deliberately absent from this statement.
		_, err = tx.ExecContext(ctx, `
			UPDATE resources SET
				type = ?, path = ?, name = ?, url = ?,
				department = ?, sub_department = ?, bucket = ?, training_type = ?,
				resource_count = ?, contents_count = ?, source = ?, is_placeholder = ?,
				is_archived = 0, last_seen = ?
			WHERE resource_key = ?`,
			string(obs.Type), obs.Path, obs.Name, obs.URL,
			obs.Department, obs.SubDepartment, obs.Bucket, obs.TrainingType,
			obs.Count, obs.ContentsCount, obs.Source, obs.IsPlaceholder,
			ts, obs.Key,
		)
		if err != nil {
			return 0, fmt.Errorf("updating resource: %w", err)
		}
		switch {
		case cur.IsArchived:
			outcome = catalog.OutcomeReactivated
		case !cur.matches(obs):
			outcome = catalog.OutcomeRefreshed
		default:
			outcome = catalog.OutcomeUnchanged
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return outcome, nil
}

// storedObservation is the refreshable part of a stored row.
type storedObservation struct {
	catalog.Observation
	IsArchived bool
}

func (c *storedObservation) matches(obs catalog.Observation) bool {
	return c.Type == obs.Type &&
		c.Path == obs.Path &&
		c.Name == obs.Name &&
		c.URL == obs.URL &&
		c.Classification == obs.Classification &&
		c.Count == obs.Count &&
		c.ContentsCount == obs.ContentsCount &&
		c.Source == obs.Source &&
		c.IsPlaceholder == obs.IsPlaceholder
}

func (s *SQLiteDatabase) ArchiveStale(ctx context.Context, watermark time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE resources SET is_archived = 1 WHERE is_archived = 0 AND last_seen < ?`,
		watermark.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("archiving stale resources: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting archived resources: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteDatabase) SetReview(ctx context.Context, key string, r catalog.Review) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE resources SET
			scrub_status = ?, scrub_reason = ?, scrub_owner = ?, scrub_notes = ?, scrub_updated_at = ?
		WHERE resource_key = ?`,
		string(r.Status), string(r.Reason), r.Owner, r.Notes, unixNano(r.UpdatedAt), key)
	if err != nil {
		return fmt.Errorf("updating review: %w", err)
	}
	return requireRow(res, key)
}

func (s *SQLiteDatabase) SetInvestment(ctx context.Context, key string, inv catalog.Investment) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE resources SET
			invest_decision = ?, invest_owner = ?, invest_effort = ?, invest_notes = ?, invest_updated_at = ?
		WHERE resource_key = ?`,
		string(inv.Decision), inv.Owner, inv.Effort, inv.Notes, unixNano(inv.UpdatedAt), key)
	if err != nil {
		return fmt.Errorf("updating investment: %w", err)
	}
	return requireRow(res, key)
}

func (s *SQLiteDatabase) SetClassification(ctx context.Context, keys []string, field catalog.ClassificationField, value string) (int, error) {
	col, ok := classificationColumns[field]
	if !ok {
		return 0, fmt.Errorf("unknown classification field: %q", field)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	total := 0
	for start := 0; start < len(keys); start += maxKeysPerStatement {
		chunk := keys[start:min(start+maxKeysPerStatement, len(keys))]
		args := make([]any, 0, len(chunk)+1)
		args = append(args, value)
		for _, k := range chunk {
			args = append(args, k)
		}

		query := fmt.Sprintf(`UPDATE resources SET %s = ? WHERE %s AND resource_key IN (%s)`,
			col, canonicalWhere, placeholders(len(chunk)))
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("updating %s: %w", col, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("counting updated rows: %w", err)
		}
		total += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return total, nil
}

// Resource reads

func (s *SQLiteDatabase) CountActive(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM resources WHERE is_archived = 0`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting active resources: %w", err)
	}
	return n, nil
}

func (s *SQLiteDatabase) LatestSeen(ctx context.Context) (time.Time, error) {
	var ns sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(last_seen) FROM resources`).Scan(&ns); err != nil {
		return time.Time{}, fmt.Errorf("reading latest last_seen: %w", err)
	}
	if !ns.Valid {
		return time.Time{}, nil
	}
	return fromUnixNano(ns.Int64), nil
}

func (s *SQLiteDatabase) FindResource(ctx context.Context, key string) (*catalog.Resource, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+resourceColumns+` FROM resources WHERE resource_key = ?`, key)
	r, err := scanResource(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding resource: %w", err)
	}
	return r, nil
}

func (s *SQLiteDatabase) List(ctx context.Context, scope catalog.Scope) ([]*catalog.Resource, error) {
	where, args, err := whereClause(scope)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+resourceColumns+` FROM resources WHERE `+where+` ORDER BY resource_key`, args...)
	if err != nil {
		return nil, fmt.Errorf("listing resources: %w", err)
	}
	defer rows.Close()

	var out []*catalog.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning resource: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing resources: %w", err)
	}
	return out, nil
}

func (s *SQLiteDatabase) Sum(ctx context.Context, scope catalog.Scope) (catalog.Totals, error) {
	where, args, err := whereClause(scope)
	if err != nil {
		return catalog.Totals{}, err
	}

	var t catalog.Totals
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(resource_count), 0) FROM resources WHERE `+where, args...).
		Scan(&t.Rows, &t.Count)
	if err != nil {
		return catalog.Totals{}, fmt.Errorf("summing resources: %w", err)
	}
	return t, nil
}

func (s *SQLiteDatabase) Breakdown(ctx context.Context, scope catalog.Scope, by catalog.Field) ([]catalog.Group, error) {
	col, ok := fieldColumns[by]
	if !ok {
		return nil, fmt.Errorf("unknown group field: %q", by)
	}
	where, args, err := whereClause(scope)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %[1]s, COUNT(*), COALESCE(SUM(resource_count), 0)
		FROM resources WHERE %[2]s GROUP BY %[1]s ORDER BY %[1]s`, col, where)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("grouping resources: %w", err)
	}
	defer rows.Close()

	var out []catalog.Group
	for rows.Next() {
		var g catalog.Group
		if err := rows.Scan(&g.Value, &g.Rows, &g.Count); err != nil {
			return nil, fmt.Errorf("scanning group: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("grouping resources: %w", err)
	}
	return out, nil
}

// Sync bookkeeping

func (s *SQLiteDatabase) AcquireSyncLock(ctx context.Context, holder string, now time.Time, staleAfter time.Duration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var current string
	var acquired int64
	err = tx.QueryRowContext(ctx, `SELECT holder, acquired_at FROM sync_lock WHERE id = 1`).Scan(&current, &acquired)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("reading sync lock: %w", err)
	case current != holder && now.Sub(fromUnixNano(acquired)) < staleAfter:
		return &catalog.ConcurrencyError{Holder: current}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sync_lock (id, holder, acquired_at) VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET holder = excluded.holder, acquired_at = excluded.acquired_at`,
		holder, now.UnixNano())
	if err != nil {
		return fmt.Errorf("writing sync lock: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) RenewSyncLock(ctx context.Context, holder string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sync_lock SET acquired_at = ? WHERE id = 1 AND holder = ?`, now.UnixNano(), holder)
	if err != nil {
		return fmt.Errorf("renewing sync lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("renewing sync lock: %w", err)
	}
	if n == 1 {
		return nil
	}

	var current string
	err = s.db.QueryRowContext(ctx, `SELECT holder FROM sync_lock WHERE id = 1`).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		current = "nobody"
	case err != nil:
		return fmt.Errorf("reading sync lock: %w", err)
	}
	return &catalog.ConcurrencyError{Holder: current}
}

func (s *SQLiteDatabase) ReleaseSyncLock(ctx context.Context, holder string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sync_lock WHERE id = 1 AND holder = ?`, holder); err != nil {
		return fmt.Errorf("releasing sync lock: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) InsertSyncRun(ctx context.Context, run *catalog.SyncRun) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (
			started_at, finished_at, source_kind, locator, status,
			active_before, active_after, added_count, reactivated_count, refreshed_count,
			unchanged_count, archived_count, warning_count, notes, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.StartedAt.UnixNano(), run.FinishedAt.UnixNano(), run.SourceKind, run.Locator, string(run.Status),
		run.ActiveBefore, run.ActiveAfter, run.Added, run.Reactivated, run.Refreshed,
		run.Unchanged, run.Archived, run.Warnings, run.Notes, run.Error,
	)
	if err != nil {
		return fmt.Errorf("inserting sync run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading sync run id: %w", err)
	}
	run.ID = id
	return nil
}

func (s *SQLiteDatabase) ListSyncRuns(ctx context.Context, limit int) ([]*catalog.SyncRun, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, started_at, finished_at, source_kind, locator, status,
		       active_before, active_after, added_count, reactivated_count, refreshed_count,
		       unchanged_count, archived_count, warning_count, notes, error
		FROM sync_runs ORDER BY run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sync runs: %w", err)
	}
	defer rows.Close()

	var out []*catalog.SyncRun
	for rows.Next() {
		var r catalog.SyncRun
		var started, finished int64
		var status string
		err := rows.Scan(&r.ID, &started, &finished, &r.SourceKind, &r.Locator, &status,
			&r.ActiveBefore, &r.ActiveAfter, &r.Added, &r.Reactivated, &r.Refreshed,
			&r.Unchanged, &r.Archived, &r.Warnings, &r.Notes, &r.Error)
		if err != nil {
			return nil, fmt.Errorf("scanning sync run: %w", err)
		}
		r.StartedAt = fromUnixNano(started)
		r.FinishedAt = fromUnixNano(finished)
		r.Status = catalog.RunStatus(status)
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing sync runs: %w", err)
	}
	return out, nil
}

// Maintenance

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// Migrate applies any pending schema migrations.
func (s *SQLiteDatabase) Migrate() error {
	return migrations.MigrateUp(s.db)
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// BackupTo writes a consistent copy of the database to destPath using VACUUM INTO.
// destPath must not exist.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// helpers

const resourceColumns = `resource_key, type, path, name, url,
	department, sub_department, bucket, training_type,
	resource_count, contents_count, source, is_placeholder, is_archived,
	scrub_status, scrub_reason, scrub_owner, scrub_notes, scrub_updated_at,
	invest_decision, invest_owner, invest_effort, invest_notes, invest_updated_at,
	audience, sales_stage, first_seen, last_seen`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResource(row rowScanner) (*catalog.Resource, error) {
	var r catalog.Resource
	var typ, status, reason, decision string
	var scrubAt, investAt, first, last int64
	err := row.Scan(
		&r.Key, &typ, &r.Path, &r.Name, &r.URL,
		&r.Department, &r.SubDepartment, &r.Bucket, &r.TrainingType,
		&r.Count, &r.ContentsCount, &r.Source, &r.IsPlaceholder, &r.IsArchived,
		&status, &reason, &r.Review.Owner, &r.Review.Notes, &scrubAt,
		&decision, &r.Investment.Owner, &r.Investment.Effort, &r.Investment.Notes, &investAt,
		&r.Audience, &r.SalesStage, &first, &last,
	)
	if err != nil {
		return nil, err
	}
	r.Type = catalog.ResourceType(typ)
	r.Review.Status = catalog.ScrubStatus(status)
	r.Review.Reason = catalog.ScrubReason(reason)
	r.Review.UpdatedAt = fromUnixNano(scrubAt)
	r.Investment.Decision = catalog.InvestDecision(decision)
	r.Investment.UpdatedAt = fromUnixNano(investAt)
	r.FirstSeen = fromUnixNano(first)
	r.LastSeen = fromUnixNano(last)
	return &r, nil
}

func requireRow(res sql.Result, key string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("counting updated rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", catalog.ErrNotFound, key)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// unixNano maps the zero time to 0 so "never set" survives a round trip.
func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

// Compile-time check that SQLiteDatabase implements catalog.Store.
var _ catalog.Store = (*SQLiteDatabase)(nil)
