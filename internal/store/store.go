package store

import (
	"context"
	"time"

	"github.com/edulead/leadgen-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status     model.RunStatus `json:"status,omitempty"`
	SchoolName string          `json:"school_name,omitempty"`
	Limit      int             `json:"limit,omitempty"`
	Offset     int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the enrichment pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, school model.School) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	UpdateRunResult(ctx context.Context, runID string, result *model.OrganizationResult) error
	FailRun(ctx context.Context, runID string, reason string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Stages
	CreateStage(ctx context.Context, runID string, name string) (*model.RunStage, error)
	CompleteStage(ctx context.Context, stageID string, result *model.StageResult) error

	// Verification cache: email probe outcomes are expensive and stable,
	// so they are reusable across runs until the TTL lapses.
	GetCachedVerification(ctx context.Context, value string) (model.VerificationStatus, bool, error)
	SetCachedVerification(ctx context.Context, value string, status model.VerificationStatus, ttl time.Duration) error
	DeleteExpiredVerifications(ctx context.Context) (int, error)

	// ArchiveLeads flattens results into one row per decision-maker for
	// downstream analysis.
	ArchiveLeads(ctx context.Context, results []model.OrganizationResult) (int64, error)

	// Batches
	CreateBatch(ctx context.Context, total int) (*model.Batch, error)
	UpdateBatch(ctx context.Context, batchID string, summary model.BatchSummary) error
	GetBatch(ctx context.Context, batchID string) (*model.Batch, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
