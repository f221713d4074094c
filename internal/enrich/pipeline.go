// Package enrich drives one school through the full pipeline: collect
// documents, extract candidates, merge, validate, score. Each run is
// isolated; nothing is shared across schools except the store.
package enrich

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/edulead/leadgen-cli/internal/config"
	"github.com/edulead/leadgen-cli/internal/merge"
	"github.com/edulead/leadgen-cli/internal/model"
	"github.com/edulead/leadgen-cli/internal/normalize"
	"github.com/edulead/leadgen-cli/internal/score"
	"github.com/edulead/leadgen-cli/internal/store"
	"github.com/edulead/leadgen-cli/internal/validate"
)

// FailureNoDocuments is the reason recorded when collection yields
// nothing at all. Zero candidates from non-empty documents is not a
// failure; only an empty document set is.
const FailureNoDocuments = "no documents"

// Collector gathers raw documents and any organization-level identity
// signals for one school.
type Collector interface {
	Collect(ctx context.Context, school model.School) ([]model.Document, model.Identity, error)
}

// Extractor turns one document into structured person candidates.
type Extractor interface {
	Extract(ctx context.Context, school model.School, doc model.Document) ([]model.RawCandidate, error)
}

// EmailVerifier runs the deliverability check for one email contact.
// Implementations never return an error; ambiguity maps to a status.
type EmailVerifier interface {
	Verify(ctx context.Context, contact model.NormalizedContact) model.VerificationStatus
}

// Pipeline orchestrates enrichment for single schools.
type Pipeline struct {
	cfg       *config.Config
	store     store.Store
	collector Collector
	extractor Extractor
	emails    EmailVerifier
	merger    *merge.Merger
}

// New creates a Pipeline with all dependencies.
func New(cfg *config.Config, st store.Store, collector Collector, extractor Extractor, emails EmailVerifier) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		store:     st,
		collector: collector,
		extractor: extractor,
		emails:    emails,
		merger:    merge.NewMerger(),
	}
}

// Run enriches a single school. A school with no usable people is still
// a successful run; only a collector that produces zero documents marks
// the result failed. The returned result always carries the run ID of
// its persisted record.
func (p *Pipeline) Run(ctx context.Context, school model.School) (*model.OrganizationResult, string, error) {
	run, err := p.store.CreateRun(ctx, school)
	if err != nil {
		return nil, "", eris.Wrap(err, "enrich: create run")
	}
	result, err := p.Execute(ctx, run)
	return result, run.ID, err
}

// Execute drives an already-created run through the pipeline stages. The
// HTTP server creates the run record up front so it can hand the caller
// a run ID before the work starts.
func (p *Pipeline) Execute(ctx context.Context, run *model.Run) (*model.OrganizationResult, error) {
	school := run.School
	log := zap.L().With(zap.String("school", school.Name), zap.String("location", school.Location))
	log.Info("enrich: starting run")

	setStatus := func(status model.RunStatus) {
		if statusErr := p.store.UpdateRunStatus(ctx, run.ID, status); statusErr != nil {
			log.Warn("enrich: failed to update status", zap.Error(statusErr))
		}
	}

	trackStage := func(name string, fn func() error) error {
		stage, stageErr := p.store.CreateStage(ctx, run.ID, name)
		if stageErr != nil {
			log.Warn("enrich: failed to create stage", zap.String("stage", name), zap.Error(stageErr))
		}

		start := time.Now()
		fnErr := fn()
		duration := time.Since(start).Milliseconds()

		result := &model.StageResult{
			Name:     name,
			Status:   model.StageStatusComplete,
			Duration: duration,
		}
		if fnErr != nil {
			result.Status = model.StageStatusFailed
			result.Error = fnErr.Error()
			log.Error("enrich: stage failed",
				zap.String("stage", name),
				zap.Int64("duration_ms", duration),
				zap.Error(fnErr),
			)
		} else {
			log.Info("enrich: stage complete",
				zap.String("stage", name),
				zap.Int64("duration_ms", duration),
			)
		}
		if stage != nil {
			_ = p.store.CompleteStage(ctx, stage.ID, result)
		}
		return fnErr
	}

	result := &model.OrganizationResult{School: school}

	// ===== Collecting =====
	setStatus(model.RunStatusCollecting)

	var docs []model.Document
	var candidates []model.RawCandidate
	err := trackStage("collecting", func() error {
		var collectErr error
		docs, result.Identity, collectErr = p.collector.Collect(ctx, school)
		if collectErr != nil {
			return eris.Wrap(collectErr, "enrich: collect")
		}
		if limit := p.cfg.Pipeline.MaxDocuments; limit > 0 && len(docs) > limit {
			docs = docs[:limit]
		}
		for _, doc := range docs {
			result.SourceURLs = append(result.SourceURLs, doc.URL)
			extracted, extractErr := p.extractor.Extract(ctx, school, doc)
			if extractErr != nil {
				// A bad document costs its own candidates, never the run.
				log.Warn("enrich: extraction failed",
					zap.String("url", doc.URL),
					zap.Error(extractErr),
				)
				continue
			}
			candidates = append(candidates, extracted...)
		}
		return nil
	})
	if err != nil || len(docs) == 0 {
		reason := FailureNoDocuments
		if err != nil {
			reason = err.Error()
		}
		result.FailureReason = reason
		result.ProcessedAt = time.Now().UTC()
		if failErr := p.store.FailRun(ctx, run.ID, reason); failErr != nil {
			log.Warn("enrich: failed to mark run failed", zap.Error(failErr))
		}
		log.Warn("enrich: run failed", zap.String("reason", reason))
		return result, nil
	}

	if err := p.checkpoint(ctx, run.ID, log); err != nil {
		return nil, err
	}

	// ===== Merging =====
	setStatus(model.RunStatusMerging)
	_ = trackStage("merging", func() error {
		result.DecisionMakers = p.merger.Merge(candidates, normalize.OrgDomain(result.Identity.Website))
		return nil
	})

	if err := p.checkpoint(ctx, run.ID, log); err != nil {
		return nil, err
	}

	// ===== Validating =====
	setStatus(model.RunStatusValidating)
	_ = trackStage("validating", func() error {
		p.validateLeads(ctx, result.DecisionMakers)
		return nil
	})

	if err := p.checkpoint(ctx, run.ID, log); err != nil {
		return nil, err
	}

	// ===== Scoring =====
	setStatus(model.RunStatusScoring)
	_ = trackStage("scoring", func() error {
		score.Apply(result)
		return nil
	})

	result.ProcessedAt = time.Now().UTC()
	result.ProcessingNotes = fmt.Sprintf("%d documents, %d candidates, %d decision-makers",
		len(docs), len(candidates), len(result.DecisionMakers))

	if err := p.store.UpdateRunResult(ctx, run.ID, result); err != nil {
		return nil, eris.Wrap(err, "enrich: save result")
	}

	log.Info("enrich: run complete",
		zap.Int("decision_makers", len(result.DecisionMakers)),
		zap.Float64("data_quality", result.DataQuality),
	)
	return result, nil
}

// checkpoint enforces stage-boundary cancellation: an in-flight school
// aborts between stages, never mid-validation.
func (p *Pipeline) checkpoint(ctx context.Context, runID string, log *zap.Logger) error {
	if err := ctx.Err(); err != nil {
		if failErr := p.store.FailRun(context.WithoutCancel(ctx), runID, "cancelled"); failErr != nil {
			log.Warn("enrich: failed to mark run cancelled", zap.Error(failErr))
		}
		return eris.Wrap(err, "enrich: cancelled")
	}
	return nil
}

// validateLeads annotates every contact with its verification status.
// Leads are independent, so they are verified in parallel; each lead
// only ever touches its own contacts.
func (p *Pipeline) validateLeads(ctx context.Context, leads []model.PersonLead) {
	g := new(errgroup.Group)
	workers := p.cfg.Validation.Workers
	if workers <= 0 {
		workers = 1
	}
	g.SetLimit(workers)

	for i := range leads {
		lead := &leads[i]
		g.Go(func() error {
			if lead.WhatsApp != nil {
				lead.WhatsApp.Status = validate.WhatsApp(*lead.WhatsApp)
			}
			if lead.Email != nil {
				lead.Email.Status = p.verifyEmail(ctx, *lead.Email)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// verifyEmail consults the store-backed cache before probing. Statuses
// are cached whatever the outcome; an unverified answer is still worth
// keeping for the TTL window to avoid re-probing.
func (p *Pipeline) verifyEmail(ctx context.Context, contact model.NormalizedContact) model.VerificationStatus {
	if cached, ok, err := p.store.GetCachedVerification(ctx, contact.Value); err == nil && ok {
		return cached
	}

	timeout := p.cfg.Validation.StageTimeout()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	// Three stages at most, each bounded by its own stage timeout.
	callCtx, cancel := context.WithTimeout(ctx, 3*timeout)
	defer cancel()

	status := p.emails.Verify(callCtx, contact)

	if err := p.store.SetCachedVerification(ctx, contact.Value, status, p.cfg.Validation.CacheTTL()); err != nil {
		zap.L().Warn("enrich: failed to cache verification",
			zap.String("value", contact.Value),
			zap.Error(err),
		)
	}
	return status
}
