package batch_test

import (
	"context"
	"encoding/json"
	"errors"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"meshforge/internal/batch"
	"meshforge/internal/capability"
	"meshforge/internal/config"
	"meshforge/internal/convert"
	"meshforge/internal/ledger"
	"meshforge/internal/metrics"
	"meshforge/internal/notifications"
	"meshforge/internal/pipeline"
	"meshforge/internal/services"
	"meshforge/internal/testsupport"
)

func newRunner(t *testing.T, cfg *config.Config) *pipeline.Runner {
	t.Helper()
	backends, err := convert.BackendsFromConfig(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	reg := convert.NewRegistry(context.Background(), backends, time.Second, nil)
	runner, err := pipeline.NewRunner(cfg, convert.NewConverter(reg))
	if err != nil {
		t.Fatal(err)
	}
	return runner
}

// writeInputs creates one valid image per name; names ending in "!" become
// corrupt files.
func writeInputs(t *testing.T, cfg *config.Config, names ...string) []pipeline.Item {
	t.Helper()
	dir := filepath.Join(testsupport.BaseDir(cfg), "in")
	for _, name := range names {
		if corrupt, ok := strings.CutSuffix(name, "!"); ok {
			testsupport.WriteFile(t, filepath.Join(dir, corrupt), 64)
			continue
		}
		testsupport.WriteImage(t, filepath.Join(dir, name), 64, color.NRGBA{R: 200, G: 40, B: 40, A: 255})
	}
	items, err := batch.Discover(dir)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	return items
}

func readSummary(t *testing.T, root string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, batch.SummaryFileName))
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	return out
}

func TestRunIsolatesCorruptItem(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutLedger())
	items := writeInputs(t, cfg, "a.png", "b.png!", "c.png")
	shape := &testsupport.StubShape{}
	factory, _ := testsupport.SharedFactory(shape)

	summary, err := batch.New(cfg, factory, newRunner(t, cfg)).Run(context.Background(), items)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.TotalImages != 3 || summary.Processed != 2 || summary.Errors != 1 {
		t.Fatalf("unexpected counts %+v", summary)
	}
	if shape.Calls() != 2 {
		t.Fatalf("expected shape generation for the two valid images, got %d", shape.Calls())
	}

	failed := summary.Results[1]
	if failed.Success || failed.Stats != nil || failed.Error == nil {
		t.Fatalf("unexpected failed result %+v", failed)
	}
	if failed.Error.Kind != services.KindStage || failed.Error.Stage != pipeline.StageLoad {
		t.Fatalf("unexpected error details %+v", failed.Error)
	}
	if _, err := os.Stat(failed.OutputFolder); err != nil {
		t.Fatalf("failed item folder should exist: %v", err)
	}
	if pipeline.HasStats(failed.OutputFolder) {
		t.Fatal("failed item folder must not contain stats.json")
	}
	for _, i := range []int{0, 2} {
		if !summary.Results[i].Success || !pipeline.HasStats(summary.Results[i].OutputFolder) {
			t.Fatalf("result %d should be a complete success: %+v", i, summary.Results[i])
		}
	}

	want := summary.Results[0].Duration + summary.Results[2].Duration
	if summary.TotalTime != want {
		t.Fatalf("total_time %v, want %v", summary.TotalTime, want)
	}
	if summary.AverageTime != want/2 {
		t.Fatalf("average_time %v, want %v", summary.AverageTime, want/2)
	}

	onDisk := readSummary(t, cfg.Paths.OutputDir)
	if onDisk["processed"].(float64) != 2 || onDisk["errors"].(float64) != 1 {
		t.Fatalf("unexpected summary on disk %v", onDisk)
	}
	if _, ok := onDisk["settings"].(map[string]any); !ok {
		t.Fatalf("summary should echo settings: %v", onDisk)
	}
}

func TestRunFolderNamesAreUniquePerItem(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutLedger())
	items := writeInputs(t, cfg, "cat.png")
	items = append(items, pipeline.Item{Index: 1, Path: items[0].Path})
	factory, _ := testsupport.SharedFactory(&testsupport.StubShape{})

	summary, err := batch.New(cfg, factory, newRunner(t, cfg)).Run(context.Background(), items)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	a, b := summary.Results[0].OutputFolder, summary.Results[1].OutputFolder
	if a == b {
		t.Fatalf("same input processed twice must get distinct folders, got %s", a)
	}
	for _, dir := range []string{a, b} {
		if !strings.HasPrefix(filepath.Base(dir), "cat_") || len(filepath.Base(dir)) != len("cat_")+8 {
			t.Fatalf("unexpected folder name %s", dir)
		}
	}
}

func TestRunDegradedConversionCountsAsSuccess(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutLedger(), testsupport.WithFormat("fbx"))
	items := writeInputs(t, cfg, "a.png")
	factory, _ := testsupport.SharedFactory(&testsupport.StubShape{})

	summary, err := batch.New(cfg, factory, newRunner(t, cfg)).Run(context.Background(), items)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != 1 || summary.Errors != 0 || summary.Degraded != 1 {
		t.Fatalf("unexpected counts %+v", summary)
	}
	result := summary.Results[0]
	if !result.Success || !result.Degraded {
		t.Fatalf("expected degraded success, got %+v", result)
	}
	if _, err := os.Stat(filepath.Join(result.OutputFolder, "white_mesh_fallback.obj")); err != nil {
		t.Fatalf("missing fallback mesh: %v", err)
	}
}

func TestRunCancellationStopsNewItems(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutLedger())
	items := writeInputs(t, cfg, "1.png", "2.png", "3.png", "4.png", "5.png")
	factory, _ := testsupport.SharedFactory(&testsupport.StubShape{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	finished := 0
	orch := batch.New(cfg, factory, newRunner(t, cfg), batch.WithItemCallback(func(batch.ItemResult) {
		finished++
		if finished == 2 {
			cancel()
		}
	}))

	summary, err := orch.Run(ctx, items)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.TotalImages != 2 || summary.Processed != 2 {
		t.Fatalf("expected two attempted items, got %+v", summary)
	}
	if !summary.Cancelled || summary.NotStarted != 3 {
		t.Fatalf("expected cancelled run with 3 unstarted items, got %+v", summary)
	}
	entries, err := os.ReadDir(cfg.Paths.OutputDir)
	if err != nil {
		t.Fatal(err)
	}
	folders := 0
	for _, entry := range entries {
		if entry.IsDir() {
			folders++
		}
	}
	if folders != 2 {
		t.Fatalf("unstarted items must not get folders, found %d", folders)
	}
}

func TestRunInFlightItemFinishesAfterCancel(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutLedger())
	items := writeInputs(t, cfg, "1.png", "2.png")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	shape := &testsupport.StubShape{Hook: func(call int64) {
		if call == 1 {
			cancel()
		}
	}}
	factory, _ := testsupport.SharedFactory(shape)

	summary, err := batch.New(cfg, factory, newRunner(t, cfg)).Run(ctx, items)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.TotalImages != 1 || !summary.Results[0].Success {
		t.Fatalf("in-flight item should complete, got %+v", summary)
	}
	if !pipeline.HasStats(summary.Results[0].OutputFolder) {
		t.Fatal("in-flight item should have written stats.json")
	}
}

func TestRunWorkersPreserveInputOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutLedger(), testsupport.WithWorkers(3))
	names := []string{"a.png", "b.png", "c.png", "d.png", "e.png", "f.png"}
	items := writeInputs(t, cfg, names...)
	shape := &testsupport.StubShape{Hook: func(call int64) {
		time.Sleep(time.Duration(7-call) * 5 * time.Millisecond)
	}}
	factory, slots := testsupport.SharedFactory(shape)

	var mu sync.Mutex
	var completion []int
	orch := batch.New(cfg, factory, newRunner(t, cfg), batch.WithItemCallback(func(r batch.ItemResult) {
		mu.Lock()
		completion = append(completion, r.Index)
		mu.Unlock()
	}))
	summary, err := orch.Run(context.Background(), items)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != len(names) {
		t.Fatalf("expected all items processed, got %+v", summary)
	}
	for i, result := range summary.Results {
		if filepath.Base(result.Image) != names[i] {
			t.Fatalf("result %d is %s, want %s", i, result.Image, names[i])
		}
	}
	got := slots()
	slices.Sort(got)
	if !slices.Equal(got, []int{0, 1, 2}) {
		t.Fatalf("expected one capability set per worker slot, got %v", got)
	}
	if len(completion) != len(names) {
		t.Fatalf("callback ran %d times", len(completion))
	}
}

func TestRunWorkersCappedByItemCount(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutLedger(), testsupport.WithWorkers(8))
	items := writeInputs(t, cfg, "a.png", "b.png")
	factory, slots := testsupport.SharedFactory(&testsupport.StubShape{})

	if _, err := batch.New(cfg, factory, newRunner(t, cfg)).Run(context.Background(), items); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(slots()) != 2 {
		t.Fatalf("expected two worker sets, got %v", slots())
	}
}

func TestRunFactoryErrorAbortsBeforeItems(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutLedger())
	items := writeInputs(t, cfg, "a.png")
	factory := func(int) (*capability.Set, error) { return nil, errors.New("no device") }

	_, err := batch.New(cfg, factory, newRunner(t, cfg)).Run(context.Background(), items)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestRunLowVRAMReleasesAfterEveryItem(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutLedger())
	cfg.Device.LowVRAM = true
	items := writeInputs(t, cfg, "a.png", "b.png!", "c.png")
	shape := &testsupport.StubShape{}
	factory, _ := testsupport.SharedFactory(shape)

	if _, err := batch.New(cfg, factory, newRunner(t, cfg)).Run(context.Background(), items); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if shape.Releases() != 3 {
		t.Fatalf("expected a release after each item, got %d", shape.Releases())
	}
}

func TestRunRejectsConcurrentRunOnSameRoot(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutLedger())
	items := writeInputs(t, cfg, "a.png")
	if err := os.MkdirAll(cfg.Paths.OutputDir, 0o755); err != nil {
		t.Fatal(err)
	}
	held := flock.New(filepath.Join(cfg.Paths.OutputDir, batch.LockFileName))
	if ok, err := held.TryLock(); err != nil || !ok {
		t.Fatalf("hold lock: ok=%v err=%v", ok, err)
	}
	defer held.Unlock()
	factory, _ := testsupport.SharedFactory(&testsupport.StubShape{})

	_, err := batch.New(cfg, factory, newRunner(t, cfg)).Run(context.Background(), items)
	if !errors.Is(err, services.ErrEnvironment) {
		t.Fatalf("expected environment error, got %v", err)
	}
}

func TestRunRecordsLedgerAndMetrics(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Metrics.Enabled = true
	items := writeInputs(t, cfg, "a.png", "b.png!")
	store, err := ledger.Open(context.Background(), cfg.Paths.LedgerPath)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	factory, _ := testsupport.SharedFactory(&testsupport.StubShape{})

	summary, err := batch.New(cfg, factory, newRunner(t, cfg),
		batch.WithLedger(store),
		batch.WithMetrics(metrics.New()),
	).Run(context.Background(), items)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	run, err := store.GetRun(context.Background(), summary.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if !run.Finished() || run.Processed != 1 || run.Errors != 1 || run.Total != 2 {
		t.Fatalf("unexpected ledger run %+v", run)
	}
	rows, err := store.ListItems(context.Background(), summary.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || !rows[0].Success || rows[1].Success || rows[1].ErrorMessage == "" {
		t.Fatalf("unexpected ledger items %+v", rows)
	}

	data, err := os.ReadFile(filepath.Join(cfg.Paths.OutputDir, "metrics.prom"))
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	for _, want := range []string{`meshforge_items_total{status="success"} 1`, `meshforge_items_total{status="failure"} 1`} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("metrics missing %q:\n%s", want, data)
		}
	}
}

func TestBuildWiresOrchestrator(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Shape.Kind = "relief"
	cfg.Output.Texture = false
	items := writeInputs(t, cfg, "a.png")

	assembly, err := batch.Build(context.Background(), cfg, nil, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer assembly.Close()
	if assembly.Ledger == nil {
		t.Fatal("expected ledger to be opened")
	}
	statuses := assembly.Registry.Statuses()
	if len(statuses) != 1 || statuses[0].Name != "native" || !statuses[0].Available {
		t.Fatalf("unexpected backend statuses %+v", statuses)
	}

	summary, err := assembly.Orchestrator.Run(context.Background(), items)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != 1 {
		t.Fatalf("expected relief generation to succeed, got %+v", summary.Results)
	}
	runs, err := assembly.Ledger.ListRuns(context.Background(), 10)
	if err != nil || len(runs) != 1 {
		t.Fatalf("expected one ledger run, got %v (%v)", runs, err)
	}
}

func TestRemoveBackgrounds(t *testing.T) {
	base := t.TempDir()
	in := filepath.Join(base, "in")
	testsupport.WriteImage(t, filepath.Join(in, "one.png"), 48, color.NRGBA{R: 10, G: 200, B: 10, A: 255})
	testsupport.WriteFile(t, filepath.Join(in, "two.jpg"), 32)
	testsupport.WriteFile(t, filepath.Join(in, "notes.txt"), 8)
	out := filepath.Join(base, "out")

	result, err := batch.RemoveBackgrounds(context.Background(), capability.BorderRemover{Tolerance: 48}, in, out, nil)
	if err != nil {
		t.Fatalf("RemoveBackgrounds: %v", err)
	}
	if result.Processed != 1 || result.Errors != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if _, err := os.Stat(filepath.Join(out, "one"+batch.RembgSuffix)); err != nil {
		t.Fatalf("missing output: %v", err)
	}
}

func TestRunNotifiesStartAndCompletion(t *testing.T) {
	var mu sync.Mutex
	var titles, bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		titles = append(titles, r.Header.Get("Title"))
		bodies = append(bodies, string(body))
		mu.Unlock()
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithoutLedger())
	cfg.Notifications.NtfyTopic = server.URL
	items := writeInputs(t, cfg, "a.png", "b.png!")
	factory, _ := testsupport.SharedFactory(&testsupport.StubShape{})

	_, err := batch.New(cfg, factory, newRunner(t, cfg),
		batch.WithNotifier(notifications.NewService(cfg)),
	).Run(context.Background(), items)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"meshforge - Batch Started", "meshforge - Batch Complete (with errors)"}
	if !slices.Equal(titles, want) {
		t.Fatalf("unexpected notifications %v", titles)
	}
	if !strings.HasPrefix(bodies[1], "1 succeeded, 1 failed") {
		t.Fatalf("unexpected completion body %q", bodies[1])
	}
}

// modelServer is a remote shape server holding one model instance. It records
// the highest number of overlapping /generate calls and any /release that
// arrived while a generation was running.
type modelServer struct {
	*httptest.Server
	mu            sync.Mutex
	inFlight      int
	maxInFlight   int
	releases      int
	busyReleases  int
	generateCalls int
}

func newModelServer(t *testing.T) *modelServer {
	t.Helper()
	s := &modelServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/generate":
			s.mu.Lock()
			s.inFlight++
			s.generateCalls++
			s.maxInFlight = max(s.maxInFlight, s.inFlight)
			s.mu.Unlock()
			_, _ = io.Copy(io.Discard, r.Body)
			time.Sleep(30 * time.Millisecond)
			s.mu.Lock()
			s.inFlight--
			s.mu.Unlock()
			_, _ = io.WriteString(w, "v 0 0 0\nv 1 0 0\nv 0 1 0\nv 0 0 1\nf 1 2 3\nf 1 3 4\nf 1 4 2\nf 2 4 3\n")
		case "/release":
			s.mu.Lock()
			s.releases++
			if s.inFlight > 0 {
				s.busyReleases++
			}
			s.mu.Unlock()
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func TestBuildGivesEachWorkerItsOwnRemoteModel(t *testing.T) {
	first, second := newModelServer(t), newModelServer(t)
	cfg := testsupport.NewConfig(t, testsupport.WithoutLedger(), testsupport.WithWorkers(2))
	cfg.Shape.Kind = "remote"
	cfg.Shape.Endpoint = first.URL
	cfg.Shape.Endpoints = []string{second.URL}
	cfg.Device.LowVRAM = true
	cfg.Output.Texture = false
	cfg.Output.Previews = false
	items := writeInputs(t, cfg, "a.png", "b.png", "c.png", "d.png")

	assembly, err := batch.Build(context.Background(), cfg, nil, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer assembly.Close()
	summary, err := assembly.Orchestrator.Run(context.Background(), items)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Processed != 4 || summary.Errors != 0 {
		t.Fatalf("expected 4 successes, got %+v", summary.Results)
	}

	total := 0
	for name, server := range map[string]*modelServer{"first": first, "second": second} {
		server.mu.Lock()
		if server.maxInFlight > 1 {
			t.Errorf("%s model ran %d generations at once", name, server.maxInFlight)
		}
		if server.busyReleases != 0 {
			t.Errorf("%s model got %d releases during a generation", name, server.busyReleases)
		}
		if server.releases != server.generateCalls {
			t.Errorf("%s model: %d releases for %d generations", name, server.releases, server.generateCalls)
		}
		total += server.generateCalls
		server.mu.Unlock()
	}
	if total != 4 {
		t.Fatalf("expected 4 generations across both models, got %d", total)
	}
}
