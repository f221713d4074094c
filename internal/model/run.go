package model

import "time"

// RunStatus tracks an enrichment run through its pipeline stages.
type RunStatus string

const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusCollecting RunStatus = "collecting"
	RunStatusMerging    RunStatus = "merging"
	RunStatusValidating RunStatus = "validating"
	RunStatusScoring    RunStatus = "scoring"
	RunStatusComplete   RunStatus = "complete"
	RunStatusFailed     RunStatus = "failed"
)

// Terminal reports whether the status is an end state.
func (s RunStatus) Terminal() bool {
	return s == RunStatusComplete || s == RunStatusFailed
}

// Run records a single enrichment run for one school.
type Run struct {
	ID        string              `json:"id"`
	School    School              `json:"school"`
	Status    RunStatus           `json:"status"`
	Result    *OrganizationResult `json:"result,omitempty"`
	Error     string              `json:"error,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// StageStatus tracks one stage within a run.
type StageStatus string

const (
	StageStatusRunning  StageStatus = "running"
	StageStatusComplete StageStatus = "complete"
	StageStatusFailed   StageStatus = "failed"
)

// RunStage is a persisted record of one in-flight pipeline stage.
type RunStage struct {
	ID        string      `json:"id"`
	RunID     string      `json:"run_id"`
	Name      string      `json:"name"`
	Status    StageStatus `json:"status"`
	StartedAt time.Time   `json:"started_at"`
}

// StageResult holds the outcome of one pipeline stage, for observability.
type StageResult struct {
	Name     string         `json:"name"`
	Status   StageStatus    `json:"status"`
	Duration int64          `json:"duration_ms"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// BatchStatus is the terminal state reported for a batch of organizations.
type BatchStatus string

const (
	BatchCompleted BatchStatus = "completed"
	BatchFailed    BatchStatus = "failed"
)

// BatchSummary tracks monotonically increasing counts across a batch.
// Counts only ever grow; the summary is reported to the job tracker after
// every organization.
type BatchSummary struct {
	Total     int         `json:"total"`
	Processed int         `json:"processed"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Status    BatchStatus `json:"status,omitempty"`
	StartedAt time.Time   `json:"started_at"`
	EndedAt   *time.Time  `json:"ended_at,omitempty"`
}

// Batch is a persisted batch job with its running summary.
type Batch struct {
	ID      string       `json:"id"`
	Summary BatchSummary `json:"summary"`
}

// Record folds one organization outcome into the summary.
func (b *BatchSummary) Record(failed bool) {
	b.Processed++
	if failed {
		b.Failed++
	} else {
		b.Succeeded++
	}
}

// Finish marks the batch terminal: failed when every organization failed,
// completed otherwise.
func (b *BatchSummary) Finish(at time.Time) {
	b.EndedAt = &at
	if b.Processed > 0 && b.Failed == b.Processed {
		b.Status = BatchFailed
		return
	}
	b.Status = BatchCompleted
}
