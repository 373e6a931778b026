package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "ledger.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	run := Run{ID: "run-1", StartedAt: started, OutputRoot: "/out", Format: "glb", Settings: json.RawMessage(`{"steps":30}`)}
	if err := store.StartRun(ctx, run); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	items := []Item{
		{RunID: "run-1", Position: 0, Image: "a.png", OutputFolder: "/out/a_1", Success: true, Duration: 2.5, Stats: json.RawMessage(`{"number_of_faces":10}`)},
		{RunID: "run-1", Position: 1, Image: "b.png", OutputFolder: "/out/b_2", ErrorMessage: "decode image"},
		{RunID: "run-1", Position: 2, Image: "c.png", OutputFolder: "/out/c_3", Success: true, Degraded: true, Duration: 1.5},
	}
	for _, item := range items {
		if err := store.RecordItem(ctx, item); err != nil {
			t.Fatalf("RecordItem: %v", err)
		}
	}

	run.FinishedAt = started.Add(time.Minute)
	run.Total, run.Processed, run.Errors, run.Degraded = 3, 2, 1, 1
	run.TotalTime, run.AverageTime = 4, 2
	if err := store.FinishRun(ctx, run); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if !got.Finished() || got.Total != 3 || got.Errors != 1 || got.Degraded != 1 || got.AverageTime != 2 {
		t.Fatalf("unexpected run %+v", got)
	}
	if !got.StartedAt.Equal(started) || string(got.Settings) != `{"steps":30}` {
		t.Fatalf("unexpected run metadata %+v", got)
	}

	stored, err := store.ListItems(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("expected 3 items, got %d", len(stored))
	}
	if stored[1].Success || stored[1].ErrorMessage != "decode image" || stored[1].Stats != nil {
		t.Fatalf("unexpected failed item %+v", stored[1])
	}
	if !stored[2].Degraded || stored[0].Image != "a.png" {
		t.Fatalf("items out of order or lost flags: %+v", stored)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		if err := store.StartRun(ctx, Run{ID: id, StartedAt: base.Add(time.Duration(i) * time.Hour), OutputRoot: "/out", Format: "obj"}); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := store.ListRuns(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != "new" || runs[1].ID != "mid" {
		t.Fatalf("unexpected order %+v", runs)
	}
	if runs[0].Finished() {
		t.Fatal("unfinished run reported as finished")
	}
}

func TestMissingRun(t *testing.T) {
	store := openStore(t)
	if _, err := store.GetRun(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.FinishRun(context.Background(), Run{ID: "nope"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReopenKeepsSchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")
	store, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.StartRun(ctx, Run{ID: "r", OutputRoot: "/o", Format: "obj"}); err != nil {
		t.Fatal(err)
	}
	_ = store.Close()

	reopened, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if _, err := reopened.GetRun(ctx, "r"); err != nil {
		t.Fatalf("run lost after reopen: %v", err)
	}

	if _, err := reopened.db.ExecContext(ctx, "UPDATE schema_version SET version = 99"); err != nil {
		t.Fatal(err)
	}
	_ = reopened.Close()
	if _, err := Open(ctx, path); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
