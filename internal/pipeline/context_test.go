package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestItemContextTimingsAreAdditive(t *testing.T) {
	ic := newItemContext(Item{Path: "/in/a.png"}, t.TempDir())
	ic.AddTiming(StageShapeGeneration, 2*time.Second)
	ic.AddTiming(StageShapeGeneration, 500*time.Millisecond)
	ic.AddTiming(StageLoad, time.Second)

	if got := ic.Timing(StageShapeGeneration); got != 2.5 {
		t.Fatalf("expected 2.5s, got %f", got)
	}
	timings := ic.Timings()
	timings[StageLoad] = 99
	if ic.Timing(StageLoad) != 1 {
		t.Fatal("Timings must return a copy")
	}
}

func TestItemContextCleanupRemovesTempFiles(t *testing.T) {
	dir := t.TempDir()
	ic := newItemContext(Item{}, dir)
	kept := filepath.Join(dir, "white_mesh.obj")
	temp := filepath.Join(dir, "white_mesh.intermediate.obj")
	for _, path := range []string{kept, temp} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	ic.TrackTemp(temp)
	ic.TrackTemp(filepath.Join(dir, "never-created.obj"))
	ic.Cleanup()

	if _, err := os.Stat(temp); !os.IsNotExist(err) {
		t.Fatal("temp file should be removed")
	}
	if _, err := os.Stat(kept); err != nil {
		t.Fatal("untracked file must survive cleanup")
	}
}

func TestItemNames(t *testing.T) {
	if got := (Item{Path: "/in/chair.final.png"}).Stem(); got != "chair.final" {
		t.Fatalf("unexpected stem %q", got)
	}
	if got := (Item{Caption: "a chair"}).Name(); got != "caption" {
		t.Fatalf("unexpected caption item name %q", got)
	}
}
