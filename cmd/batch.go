package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/edulead/leadgen-cli/internal/export"
	"github.com/edulead/leadgen-cli/internal/model"
	"github.com/edulead/leadgen-cli/internal/resilience"
	"github.com/edulead/leadgen-cli/internal/store"
)

var (
	batchInput  string
	batchOutput string
	batchLimit  int
	batchXLSX   bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Enrich a CSV of schools and export the leads",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("enrich"); err != nil {
			return err
		}

		schools, err := readSchoolsCSV(batchInput)
		if err != nil {
			return err
		}
		if batchLimit > 0 && len(schools) > batchLimit {
			schools = schools[:batchLimit]
		}
		if len(schools) == 0 {
			zap.L().Info("no schools in input")
			return nil
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		results, err := processBatch(ctx, env.Store, env.Pipeline, schools)
		if err != nil {
			return err
		}

		if err := os.MkdirAll(batchOutput, 0o755); err != nil {
			return eris.Wrap(err, "create output dir")
		}
		return writeExports(results, batchOutput, batchXLSX)
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchInput, "input", "", "input CSV of schools (required)")
	batchCmd.Flags().StringVar(&batchOutput, "output", "out", "output directory for exports")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of schools to process (0 = all)")
	batchCmd.Flags().BoolVar(&batchXLSX, "xlsx", false, "also write an Excel workbook")
	_ = batchCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(batchCmd)
}

// readSchoolsCSV loads the input roster. Rows without a school name are
// dropped.
func readSchoolsCSV(path string) ([]model.School, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "read input csv")
	}

	var rows []model.School
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return nil, eris.Wrap(err, "parse input csv")
	}

	schools := rows[:0]
	for _, s := range rows {
		if s.Name != "" {
			schools = append(schools, s)
		}
	}
	return schools, nil
}

// schoolRunner is the slice of the pipeline the batch loop needs.
type schoolRunner interface {
	Run(ctx context.Context, school model.School) (*model.OrganizationResult, string, error)
}

// processBatch enriches schools concurrently. A failed school is recorded
// in the results with its failure reason; only a cancelled context stops
// the batch.
func processBatch(ctx context.Context, st store.Store, pipeline schoolRunner, schools []model.School) ([]model.OrganizationResult, error) {
	batch, err := st.CreateBatch(ctx, len(schools))
	if err != nil {
		return nil, eris.Wrap(err, "create batch")
	}
	summary := batch.Summary

	zap.L().Info("processing batch",
		zap.String("batch_id", batch.ID),
		zap.Int("schools", len(schools)),
		zap.Int("concurrency", cfg.Batch.MaxConcurrentSchools),
	)

	// Pace school starts so the search and scrape targets see a steady
	// request rate no matter the concurrency.
	limiter := rate.NewLimiter(rate.Every(cfg.Batch.Delay()), 1)

	var mu sync.Mutex
	results := make([]model.OrganizationResult, len(schools))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Batch.MaxConcurrentSchools)

	var interrupted error
	scheduled := 0
	for i, school := range schools {
		if werr := limiter.Wait(gctx); werr != nil {
			interrupted = werr
			break
		}
		scheduled++
		g.Go(func() error {
			result, runID, err := pipeline.Run(gctx, school)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				zap.L().Error("school enrichment failed",
					zap.String("school", school.Name),
					zap.String("error_type", resilience.ClassifyError(err)),
					zap.Error(err),
				)
				result = &model.OrganizationResult{School: school, FailureReason: err.Error()}
			} else {
				zap.L().Info("school enriched",
					zap.String("school", school.Name),
					zap.String("run_id", runID),
					zap.Int("decision_makers", len(result.DecisionMakers)),
				)
			}

			mu.Lock()
			results[i] = *result
			summary.Record(result.Failed())
			snapshot := summary
			mu.Unlock()

			if err := st.UpdateBatch(gctx, batch.ID, snapshot); err != nil {
				zap.L().Warn("batch summary update failed", zap.Error(err))
			}
			return nil
		})
	}

	err = g.Wait()
	if err == nil {
		err = interrupted
	}
	// Schools never scheduled before an interrupt have no result slot.
	results = results[:scheduled]
	summary.Finish(time.Now())
	if err != nil {
		summary.Status = model.BatchFailed
	}
	if uerr := st.UpdateBatch(context.WithoutCancel(ctx), batch.ID, summary); uerr != nil {
		zap.L().Warn("final batch summary update failed", zap.Error(uerr))
	}
	if err != nil {
		return nil, eris.Wrap(err, "batch interrupted")
	}

	if n, aerr := st.ArchiveLeads(ctx, results); aerr != nil {
		zap.L().Warn("lead archive failed", zap.Error(aerr))
	} else {
		zap.L().Info("leads archived", zap.Int64("rows", n))
	}

	zap.L().Info("batch complete",
		zap.String("batch_id", batch.ID),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
	)
	return results, nil
}

// writeExports emits every delivery format into dir.
func writeExports(results []model.OrganizationResult, dir string, xlsx bool) error {
	if err := export.WriteOrgCSV(results, filepath.Join(dir, "schools.csv")); err != nil {
		return err
	}
	if err := export.WritePersonCSV(results, filepath.Join(dir, "leads.csv")); err != nil {
		return err
	}
	if err := export.WriteFoundationCSV(results, filepath.Join(dir, "foundations.csv")); err != nil {
		return err
	}
	if err := export.WriteJSON(results, filepath.Join(dir, "results.json")); err != nil {
		return err
	}
	if xlsx {
		if err := export.WriteXLSX(results, filepath.Join(dir, "results.xlsx")); err != nil {
			return err
		}
	}
	zap.L().Info("exports written", zap.String("dir", dir))
	return nil
}
