package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"tcm-go/internal/catalog"

	"github.com/google/go-cmp/cmp"
)

var t0 = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// newTestDB creates a new in-memory database with migrations applied.
func newTestDB(t *testing.T) *SQLiteDatabase {
	t.Helper()

	db, err := NewSQLiteDatabase(memoryPath)
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		t.Fatalf("failed to apply migrations: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func observation(t *testing.T, c catalog.Candidate) catalog.Observation {
	t.Helper()
	id, err := catalog.Derive(c)
	if err != nil {
		t.Fatalf("Derive() error = %v", err)
	}
	obs := catalog.Observation{Identity: id, Count: 1, ContentsCount: c.ContentsCount, IsPlaceholder: c.IsPlaceholder, Source: "directory"}
	if c.IsPlaceholder {
		obs.Count = 0
	}
	return obs
}

func mustUpsert(t *testing.T, db *SQLiteDatabase, obs catalog.Observation, at time.Time) catalog.Outcome {
	t.Helper()
	out, err := db.Upsert(context.Background(), obs, at)
	if err != nil {
		t.Fatalf("Upsert(%q) error = %v", obs.Key, err)
	}
	return out
}

func mustFind(t *testing.T, db *SQLiteDatabase, key string) *catalog.Resource {
	t.Helper()
	r, err := db.FindResource(context.Background(), key)
	if err != nil {
		t.Fatalf("FindResource(%q) error = %v", key, err)
	}
	if r == nil {
		t.Fatalf("FindResource(%q) = nil", key)
	}
	return r
}

func TestSQLiteDatabase_Upsert(t *testing.T) {
	db := newTestDB(t)
	guide := observation(t, catalog.Candidate{Type: catalog.TypeFile, Path: "Sales/Enablement/01 Onboarding/Self Directed/Guide.pdf"})

	t.Run("inserts", func(t *testing.T) {
		if got := mustUpsert(t, db, guide, t0); got != catalog.OutcomeInserted {
			t.Errorf("Upsert() = %s, want inserted", got)
		}
		r := mustFind(t, db, guide.Key)
		if !r.FirstSeen.Equal(t0) || !r.LastSeen.Equal(t0) {
			t.Errorf("seen = %v..%v, want both %v", r.FirstSeen, r.LastSeen, t0)
		}
		if r.Review.Status != catalog.StatusNotReviewed || r.Bucket != "onboarding" {
			t.Errorf("resource = %+v", r)
		}
	})

	t.Run("unchanged only moves last_seen", func(t *testing.T) {
		if got := mustUpsert(t, db, guide, t0.Add(time.Hour)); got != catalog.OutcomeUnchanged {
			t.Errorf("Upsert() = %s, want unchanged", got)
		}
		r := mustFind(t, db, guide.Key)
		if !r.FirstSeen.Equal(t0) || !r.LastSeen.Equal(t0.Add(time.Hour)) {
			t.Errorf("seen = %v..%v", r.FirstSeen, r.LastSeen)
		}
	})

	t.Run("refreshes descriptive fields", func(t *testing.T) {
		moved := guide
		moved.Source = "archive"
		if got := mustUpsert(t, db, moved, t0.Add(2*time.Hour)); got != catalog.OutcomeRefreshed {
			t.Errorf("Upsert() = %s, want refreshed", got)
		}
		if got := mustFind(t, db, guide.Key).Source; got != "archive" {
			t.Errorf("Source = %q, want archive", got)
		}
	})

	t.Run("preserves decisions", func(t *testing.T) {
		ctx := context.Background()
		review := catalog.Review{Status: catalog.StatusSunset, Reason: catalog.ReasonDuplicate, Owner: "dana", UpdatedAt: t0}
		if err := db.SetReview(ctx, guide.Key, review); err != nil {
			t.Fatalf("SetReview() error = %v", err)
		}
		if _, err := db.SetClassification(ctx, []string{guide.Key}, catalog.AudienceField, "POS"); err != nil {
			t.Fatalf("SetClassification() error = %v", err)
		}

		mustUpsert(t, db, guide, t0.Add(3*time.Hour))

		r := mustFind(t, db, guide.Key)
		if diff := cmp.Diff(review, r.Review); diff != "" {
			t.Errorf("Review mismatch (-want +got):\n%s", diff)
		}
		if r.Audience != "POS" {
			t.Errorf("Audience = %q, want POS", r.Audience)
		}
	})
}

func TestSQLiteDatabase_ArchiveStale(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	a := observation(t, catalog.Candidate{Type: catalog.TypeFile, Path: "A/B/C/D/a.pdf"})
	b := observation(t, catalog.Candidate{Type: catalog.TypeFile, Path: "A/B/C/D/b.pdf"})

	mustUpsert(t, db, a, t0)
	mustUpsert(t, db, b, t0)
	mustUpsert(t, db, a, t0.Add(time.Minute))

	n, err := db.ArchiveStale(ctx, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("ArchiveStale() error = %v", err)
	}
	if n != 1 {
		t.Errorf("ArchiveStale() = %d, want 1", n)
	}
	if !mustFind(t, db, b.Key).IsArchived || mustFind(t, db, a.Key).IsArchived {
		t.Error("wrong row archived")
	}

	active, err := db.CountActive(ctx)
	if err != nil {
		t.Fatalf("CountActive() error = %v", err)
	}
	if active != 1 {
		t.Errorf("CountActive() = %d, want 1", active)
	}

	if got := mustUpsert(t, db, b, t0.Add(2*time.Minute)); got != catalog.OutcomeReactivated {
		t.Errorf("Upsert() = %s, want reactivated", got)
	}

	latest, err := db.LatestSeen(ctx)
	if err != nil {
		t.Fatalf("LatestSeen() error = %v", err)
	}
	if !latest.Equal(t0.Add(2 * time.Minute)) {
		t.Errorf("LatestSeen() = %v", latest)
	}
}

func TestSQLiteDatabase_LatestSeen_Empty(t *testing.T) {
	latest, err := newTestDB(t).LatestSeen(context.Background())
	if err != nil {
		t.Fatalf("LatestSeen() error = %v", err)
	}
	if !latest.IsZero() {
		t.Errorf("LatestSeen() = %v, want zero", latest)
	}
}

func TestSQLiteDatabase_WritesToMissingKeys(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	if err := db.SetReview(ctx, "missing", catalog.Review{Status: catalog.StatusKeep}); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("SetReview() error = %v, want ErrNotFound", err)
	}
	if err := db.SetInvestment(ctx, "missing", catalog.Investment{Decision: catalog.DecisionBuy}); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("SetInvestment() error = %v, want ErrNotFound", err)
	}
	r, err := db.FindResource(ctx, "missing")
	if err != nil || r != nil {
		t.Errorf("FindResource() = (%v, %v), want (nil, nil)", r, err)
	}
}

func TestSQLiteDatabase_Scopes(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	for _, c := range []catalog.Candidate{
		{Type: catalog.TypeFolder, Path: "Sales", IsPlaceholder: true},
		{Type: catalog.TypeFile, Path: "Sales/Enablement/01 Onboarding/Self Directed/a.pdf"},
		{Type: catalog.TypeFile, Path: "Sales/Enablement/01 Onboarding/Self Directed/b.pdf"},
		{Type: catalog.TypeLink, Path: "HR/People/02 Upskilling/Job Aids/links.txt", URL: "https://a.example/x"},
		{Type: catalog.TypeFile, Path: "HR/People/02 Upskilling/Job Aids/gone.pdf"},
	} {
		mustUpsert(t, db, observation(t, c), t0)
	}
	mustUpsert(t, db, observation(t, catalog.Candidate{Type: catalog.TypeFile, Path: "Sales/Enablement/01 Onboarding/Self Directed/a.pdf"}), t0.Add(time.Second))
	mustUpsert(t, db, observation(t, catalog.Candidate{Type: catalog.TypeFile, Path: "Sales/Enablement/01 Onboarding/Self Directed/b.pdf"}), t0.Add(time.Second))
	mustUpsert(t, db, observation(t, catalog.Candidate{Type: catalog.TypeLink, Path: "HR/People/02 Upskilling/Job Aids/links.txt", URL: "https://a.example/x"}), t0.Add(time.Second))
	mustUpsert(t, db, observation(t, catalog.Candidate{Type: catalog.TypeFolder, Path: "Sales", IsPlaceholder: true}), t0.Add(time.Second))
	if _, err := db.ArchiveStale(ctx, t0.Add(time.Second)); err != nil {
		t.Fatalf("ArchiveStale() error = %v", err)
	}

	tests := []struct {
		name  string
		scope catalog.Scope
		want  catalog.Totals
	}{
		{name: "canonical excludes archived and placeholders", scope: catalog.ActiveScope(), want: catalog.Totals{Rows: 3, Count: 3}},
		{name: "department", scope: catalog.ActiveScope().Where(catalog.FieldEquals(catalog.FieldDepartment, "Sales")), want: catalog.Totals{Rows: 2, Count: 2}},
		{name: "in list", scope: catalog.ActiveScope().Where(catalog.FieldIn(catalog.FieldType, "link", "folder")), want: catalog.Totals{Rows: 1, Count: 1}},
		{name: "empty in list matches nothing", scope: catalog.ActiveScope().Where(catalog.FieldIn(catalog.FieldType)), want: catalog.Totals{}},
		{name: "count positive", scope: catalog.ActiveScope().Where(catalog.CountPositive()), want: catalog.Totals{Rows: 3, Count: 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.Sum(ctx, tt.scope)
			if err != nil {
				t.Fatalf("Sum() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Sum() = %+v, want %+v", got, tt.want)
			}

			listed, err := db.List(ctx, tt.scope)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(listed) != tt.want.Rows {
				t.Errorf("len(List()) = %d, want %d", len(listed), tt.want.Rows)
			}
		})
	}

	groups, err := db.Breakdown(ctx, catalog.ActiveScope(), catalog.FieldTrainingType)
	if err != nil {
		t.Fatalf("Breakdown() error = %v", err)
	}
	want := []catalog.Group{
		{Value: "job_aids", Totals: catalog.Totals{Rows: 1, Count: 1}},
		{Value: "self_directed", Totals: catalog.Totals{Rows: 2, Count: 2}},
	}
	if len(groups) != len(want) || groups[0] != want[0] || groups[1] != want[1] {
		t.Errorf("Breakdown() = %+v, want %+v", groups, want)
	}

	if _, err := db.Breakdown(ctx, catalog.ActiveScope(), "resource_key"); err == nil {
		t.Error("Breakdown(resource_key) expected error")
	}
}

func TestSQLiteDatabase_SetClassification(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	var keys []string
	for i := range 1200 {
		obs := observation(t, catalog.Candidate{Type: catalog.TypeLink, Path: "A/B/C/D/links.txt", URL: fmt.Sprintf("https://a.example/%d", i)})
		mustUpsert(t, db, obs, t0)
		keys = append(keys, obs.Key)
	}
	placeholder := observation(t, catalog.Candidate{Type: catalog.TypeFolder, Path: "A", IsPlaceholder: true})
	mustUpsert(t, db, placeholder, t0)
	keys = append(keys, placeholder.Key, "missing")

	n, err := db.SetClassification(ctx, keys, catalog.SalesStageField, "stage_1_identify")
	if err != nil {
		t.Fatalf("SetClassification() error = %v", err)
	}
	if n != 1200 {
		t.Errorf("SetClassification() = %d, want 1200", n)
	}
	if got := mustFind(t, db, placeholder.Key).SalesStage; got != "" {
		t.Errorf("placeholder SalesStage = %q, want untouched", got)
	}

	groups, err := db.Breakdown(ctx, catalog.ActiveScope(), catalog.FieldSalesStage)
	if err != nil {
		t.Fatalf("Breakdown() error = %v", err)
	}
	if len(groups) != 1 || groups[0].Value != "stage_1_identify" || groups[0].Rows != 1200 {
		t.Errorf("Breakdown() = %+v", groups)
	}
}

func TestSQLiteDatabase_SyncLock(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	if err := db.AcquireSyncLock(ctx, "a", t0, time.Hour); err != nil {
		t.Fatalf("AcquireSyncLock(a) error = %v", err)
	}
	if err := db.AcquireSyncLock(ctx, "a", t0.Add(time.Minute), time.Hour); err != nil {
		t.Errorf("re-acquire by the holder error = %v", err)
	}

	err := db.AcquireSyncLock(ctx, "b", t0.Add(30*time.Minute), time.Hour)
	var cerr *catalog.ConcurrencyError
	if !errors.As(err, &cerr) || cerr.Holder != "a" {
		t.Fatalf("AcquireSyncLock(b) error = %v, want held by a", err)
	}

	if err := db.ReleaseSyncLock(ctx, "b"); err != nil {
		t.Fatalf("ReleaseSyncLock(b) error = %v", err)
	}
	if err := db.AcquireSyncLock(ctx, "b", t0.Add(30*time.Minute), time.Hour); err == nil {
		t.Error("release by a non-holder dropped the lease")
	}

	if err := db.AcquireSyncLock(ctx, "b", t0.Add(2*time.Hour), time.Hour); err != nil {
		t.Errorf("takeover of a stale lease error = %v", err)
	}

	if err := db.ReleaseSyncLock(ctx, "b"); err != nil {
		t.Fatalf("ReleaseSyncLock(b) error = %v", err)
	}
	if err := db.AcquireSyncLock(ctx, "c", t0.Add(2*time.Hour), time.Hour); err != nil {
		t.Errorf("AcquireSyncLock(c) after release error = %v", err)
	}
}

func TestSQLiteDatabase_RenewSyncLock(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	if err := db.AcquireSyncLock(ctx, "a", t0, time.Hour); err != nil {
		t.Fatalf("AcquireSyncLock(a) error = %v", err)
	}
	if err := db.RenewSyncLock(ctx, "a", t0.Add(50*time.Minute)); err != nil {
		t.Fatalf("RenewSyncLock(a) error = %v", err)
	}
	if err := db.AcquireSyncLock(ctx, "b", t0.Add(90*time.Minute), time.Hour); err == nil {
		t.Error("renewed lease taken over before it went stale")
	}

	var cerr *catalog.ConcurrencyError
	err := db.RenewSyncLock(ctx, "b", t0.Add(90*time.Minute))
	if !errors.As(err, &cerr) || cerr.Holder != "a" {
		t.Errorf("RenewSyncLock(b) error = %v, want held by a", err)
	}

	if err := db.ReleaseSyncLock(ctx, "a"); err != nil {
		t.Fatalf("ReleaseSyncLock(a) error = %v", err)
	}
	if err := db.RenewSyncLock(ctx, "a", t0.Add(2*time.Hour)); !errors.As(err, &cerr) {
		t.Errorf("RenewSyncLock(a) after release error = %v, want ConcurrencyError", err)
	}
}

func TestSQLiteDatabase_SyncRuns(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	for i := range 3 {
		run := &catalog.SyncRun{
			StartedAt:  t0.Add(time.Duration(i) * time.Hour),
			FinishedAt: t0.Add(time.Duration(i)*time.Hour + time.Minute),
			SourceKind: "directory",
			Locator:    "/srv/training",
			Status:     catalog.RunDone,
			Added:      i,
		}
		if err := db.InsertSyncRun(ctx, run); err != nil {
			t.Fatalf("InsertSyncRun() error = %v", err)
		}
		if run.ID != int64(i+1) {
			t.Errorf("run.ID = %d, want %d", run.ID, i+1)
		}
	}

	runs, err := db.ListSyncRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListSyncRuns() error = %v", err)
	}
	if len(runs) != 2 || runs[0].ID != 3 || runs[1].ID != 2 {
		t.Fatalf("ListSyncRuns(2) = %+v, want runs 3 and 2", runs)
	}
	if runs[0].Duration() != time.Minute || runs[0].Added != 2 {
		t.Errorf("runs[0] = %+v", runs[0])
	}

	all, err := db.ListSyncRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListSyncRuns(0) error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("len(ListSyncRuns(0)) = %d, want 3", len(all))
	}

	if _, err := db.DB().ExecContext(ctx, `DELETE FROM sync_runs`); err == nil {
		t.Error("sync_runs accepted a delete")
	}
}

func TestSQLiteDatabase_BackupTo(t *testing.T) {
	db := newTestDB(t)
	obs := observation(t, catalog.Candidate{Type: catalog.TypeFile, Path: "A/B/C/D/a.pdf"})
	mustUpsert(t, db, obs, t0)

	destPath := filepath.Join(t.TempDir(), "backup.db")
	if err := db.BackupTo(destPath); err != nil {
		t.Fatalf("BackupTo() error = %v", err)
	}

	backup, err := NewSQLiteDatabase(destPath)
	if err != nil {
		t.Fatalf("opening backup: %v", err)
	}
	defer backup.Close()

	if err := backup.CheckMigrations(); err != nil {
		t.Errorf("backup CheckMigrations() error = %v", err)
	}
	if r := mustFind(t, backup, obs.Key); r.Name != "a.pdf" {
		t.Errorf("backup resource = %+v", r)
	}
}

func TestSQLiteDatabase_CheckMigrations(t *testing.T) {
	t.Run("fails on DB without migrations applied", func(t *testing.T) {
		db, err := NewSQLiteDatabase(memoryPath)
		if err != nil {
			t.Fatalf("NewSQLiteDatabase() error = %v", err)
		}
		defer db.Close()

		if err := db.CheckMigrations(); err == nil {
			t.Error("CheckMigrations() expected error for missing schema")
		}
	})

	t.Run("passes after Migrate", func(t *testing.T) {
		if err := newTestDB(t).CheckMigrations(); err != nil {
			t.Errorf("CheckMigrations() error = %v", err)
		}
	})
}
