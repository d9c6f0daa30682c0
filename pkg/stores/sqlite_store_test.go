package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"

	"github.com/chartkit/chartkit/pkg/engine"
)

// setupTestStore creates a migrated store in a temporary directory.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := Open(context.Background(), Config{
		Path: filepath.Join(t.TempDir(), "chartkit.db"),
	})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleRun(id string, started time.Time) engine.RunRecord {
	return engine.RunRecord{
		ID:        id,
		Paths:     []string{"charts/"},
		Outdir:    "out",
		Strict:    true,
		StartedAt: started,
		Duration:  1500 * time.Millisecond,
		Files: []engine.FileRecord{
			{File: "charts/costs.yaml", ChartType: "bar", Succeeded: true, Artifacts: []string{"out/costs.json"}, Warnings: 1},
			{File: "charts/broken.yaml", Message: "invalid YAML syntax"},
		},
	}
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, table := range []string{"runs", "run_files"} {
		var count int
		if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}

	// a second migration is a no-op
	if err := store.Migrate(ctx); err != nil {
		t.Errorf("Migrate() again error = %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestRecordAndGetRun(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	id := uuid.NewString()
	started := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	if err := store.RecordRun(ctx, sampleRun(id, started)); err != nil {
		t.Fatalf("RecordRun() error = %v", err)
	}

	run, err := store.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	want := &Run{
		ID:        id,
		Paths:     []string{"charts/"},
		Outdir:    "out",
		Strict:    true,
		StartedAt: started,
		Duration:  1500 * time.Millisecond,
		Succeeded: 1,
		Failed:    1,
		Files: []*RunFile{
			{RunID: id, Position: 0, File: "charts/costs.yaml", ChartType: "bar", Succeeded: true, Artifacts: []string{"out/costs.json"}, Warnings: 1, StartedAt: started},
			{RunID: id, Position: 1, File: "charts/broken.yaml", Artifacts: []string{}, Message: "invalid YAML syntax", StartedAt: started},
		},
	}
	opts := cmp.Options{
		cmpopts.IgnoreFields(Run{}, "CreatedAt"),
		cmpopts.EquateApproxTime(time.Millisecond),
	}
	if diff := cmp.Diff(want, run, opts); diff != "" {
		t.Errorf("GetRun() mismatch (-want +got):\n%s", diff)
	}

	byPrefix, err := store.GetRun(ctx, id[:8])
	if err != nil {
		t.Fatalf("GetRun(prefix) error = %v", err)
	}
	if byPrefix.ID != id {
		t.Errorf("GetRun(prefix) = %s, want %s", byPrefix.ID, id)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetRun(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun() error = %v, want ErrNotFound", err)
	}
}

func TestRecordRun_DuplicateID(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	rec := sampleRun(uuid.NewString(), time.Now())
	if err := store.RecordRun(ctx, rec); err != nil {
		t.Fatalf("RecordRun() error = %v", err)
	}
	if err := store.RecordRun(ctx, rec); err == nil {
		t.Fatal("expected error for duplicate run")
	}

	run, err := store.GetRun(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if len(run.Files) != 2 {
		t.Errorf("rolled back insert left %d files", len(run.Files))
	}
}

func TestListRunsAndHistory(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	ids := make([]string, 3)
	for i := range ids {
		ids[i] = uuid.NewString()
		rec := sampleRun(ids[i], base.Add(time.Duration(i)*time.Hour))
		if i == 1 {
			// all documents succeeded
			rec.Files = rec.Files[:1]
		}
		if err := store.RecordRun(ctx, rec); err != nil {
			t.Fatalf("RecordRun() error = %v", err)
		}
	}

	tests := []struct {
		name   string
		filter RunFilter
		want   []string
	}{
		{"newest first", RunFilter{}, []string{ids[2], ids[1], ids[0]}},
		{"limit", RunFilter{Limit: 1}, []string{ids[2]}},
		{"offset", RunFilter{Limit: 1, Offset: 1}, []string{ids[1]}},
		{"since", RunFilter{Since: base.Add(time.Hour)}, []string{ids[2], ids[1]}},
		{"failed only", RunFilter{FailedOnly: true}, []string{ids[2], ids[0]}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := store.ListRuns(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListRuns() error = %v", err)
			}
			var got []string
			for _, r := range runs {
				got = append(got, r.ID)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ListRuns() mismatch (-want +got):\n%s", diff)
			}
		})
	}

	history, err := store.FileHistory(ctx, "charts/broken.yaml", 0)
	if err != nil {
		t.Fatalf("FileHistory() error = %v", err)
	}
	if len(history) != 2 || history[0].RunID != ids[2] || history[1].RunID != ids[0] {
		t.Errorf("FileHistory() = %+v", history)
	}
}

func TestPruneRuns(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	old := uuid.NewString()
	recent := uuid.NewString()
	now := time.Now().UTC()
	if err := store.RecordRun(ctx, sampleRun(old, now.Add(-48*time.Hour))); err != nil {
		t.Fatal(err)
	}
	if err := store.RecordRun(ctx, sampleRun(recent, now)); err != nil {
		t.Fatal(err)
	}

	n, err := store.PruneRuns(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PruneRuns() error = %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d runs, want 1", n)
	}
	if _, err := store.GetRun(ctx, old); !errors.Is(err, ErrNotFound) {
		t.Errorf("pruned run still present: %v", err)
	}

	var files int
	if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM run_files").Scan(&files); err != nil {
		t.Fatal(err)
	}
	if files != 2 {
		t.Errorf("%d run files left, want only the recent run's 2", files)
	}
}
