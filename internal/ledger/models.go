package ledger

import (
	"encoding/json"
	"time"
)

// Run is one batch run as recorded in the ledger.
type Run struct {
	ID          string          `json:"id"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at,omitzero"`
	OutputRoot  string          `json:"output_root"`
	Format      string          `json:"format"`
	Total       int             `json:"total"`
	Processed   int             `json:"processed"`
	Errors      int             `json:"errors"`
	Degraded    int             `json:"degraded"`
	TotalTime   float64         `json:"total_time"`
	AverageTime float64         `json:"average_time"`
	Cancelled   bool            `json:"cancelled"`
	Settings    json.RawMessage `json:"settings,omitempty"`
}

// Finished reports whether the run was closed with FinishRun.
func (r Run) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// Item is one ItemResult row of a run, in input order.
type Item struct {
	RunID        string          `json:"run_id"`
	Position     int             `json:"position"`
	Image        string          `json:"image"`
	OutputFolder string          `json:"output_folder"`
	Success      bool            `json:"success"`
	Degraded     bool            `json:"degraded"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Duration     float64         `json:"duration"`
	Stats        json.RawMessage `json:"stats,omitempty"`
}
