package batch

import (
	"path/filepath"
	"time"

	"meshforge/internal/config"
	"meshforge/internal/fileutil"
	"meshforge/internal/pipeline"
	"meshforge/internal/services"
)

// SummaryFileName is the run-level report written into the output root.
const SummaryFileName = "batch_summary.json"

// ItemResult is the outcome of one item. It is never mutated after creation.
type ItemResult struct {
	Index        int                   `json:"-"`
	Image        string                `json:"image"`
	OutputFolder string                `json:"output_folder"`
	Success      bool                  `json:"success"`
	Degraded     bool                  `json:"degraded"`
	Duration     float64               `json:"duration"`
	Error        *services.ErrorDetails `json:"error,omitempty"`
	Stats        *pipeline.Stats       `json:"stats"`
}

// RunSummary aggregates every attempted item of a run, in input order.
type RunSummary struct {
	RunID       string          `json:"run_id"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
	OutputRoot  string          `json:"output_root"`
	TotalImages int             `json:"total_images"`
	Processed   int             `json:"processed"`
	Errors      int             `json:"errors"`
	Degraded    int             `json:"degraded_count"`
	TotalTime   float64         `json:"total_time"`
	AverageTime float64         `json:"average_time"`
	WallTime    float64         `json:"wall_time"`
	Cancelled   bool            `json:"cancelled"`
	NotStarted  int             `json:"not_started"`
	Results     []ItemResult    `json:"results"`
	Settings    config.Settings `json:"settings"`
}

// Aggregator accumulates item results into run totals. It is not safe for
// concurrent use; the orchestrator feeds it after collecting results.
type Aggregator struct {
	results   []ItemResult
	processed int
	errors    int
	degraded  int
	totalTime float64
}

// Add folds one result into the totals.
func (a *Aggregator) Add(result ItemResult) {
	a.results = append(a.results, result)
	if !result.Success {
		a.errors++
		return
	}
	a.processed++
	if result.Degraded {
		a.degraded++
	}
	a.totalTime += result.Duration
}

// Total returns the number of attempted items.
func (a *Aggregator) Total() int { return len(a.results) }

// Summary builds the RunSummary over everything added so far. total_time sums
// successful items and average_time divides it by max(processed, 1).
func (a *Aggregator) Summary() RunSummary {
	return RunSummary{
		TotalImages: len(a.results),
		Processed:   a.processed,
		Errors:      a.errors,
		Degraded:    a.degraded,
		TotalTime:   a.totalTime,
		AverageTime: a.totalTime / float64(max(a.processed, 1)),
		Results:     append([]ItemResult{}, a.results...),
	}
}

// WriteSummary persists summary as root/batch_summary.json.
func WriteSummary(root string, summary *RunSummary) (string, error) {
	path := filepath.Join(root, SummaryFileName)
	if err := fileutil.WriteJSON(path, summary); err != nil {
		return "", err
	}
	return path, nil
}
