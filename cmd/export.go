package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/edulead/leadgen-cli/internal/model"
	"github.com/edulead/leadgen-cli/internal/store"
)

var (
	exportOutput string
	exportSchool string
	exportLimit  int
	exportXLSX   bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored enrichment results without re-running",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		runs, err := st.ListRuns(ctx, store.RunFilter{
			SchoolName: exportSchool,
			Limit:      exportLimit,
		})
		if err != nil {
			return eris.Wrap(err, "export: list runs")
		}

		results := collectResults(runs)
		if len(results) == 0 {
			fmt.Fprintln(os.Stderr, "No finished runs to export.")
			return nil
		}

		if err := os.MkdirAll(exportOutput, 0o755); err != nil {
			return eris.Wrap(err, "export: create output dir")
		}
		if err := writeExports(results, exportOutput, exportXLSX); err != nil {
			return err
		}

		zap.L().Info("export complete",
			zap.Int("organizations", len(results)),
			zap.String("dir", exportOutput),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOutput, "output", "out", "output directory for exports")
	exportCmd.Flags().StringVar(&exportSchool, "school", "", "filter by school name")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 1000, "max number of runs to export")
	exportCmd.Flags().BoolVar(&exportXLSX, "xlsx", false, "also write an Excel workbook")
	rootCmd.AddCommand(exportCmd)
}

// collectResults keeps the most recent terminal outcome per school. Runs
// arrive newest first; a failed run is included so the failure reason reaches the
// org CSV, but a later successful run for the same school wins.
func collectResults(runs []model.Run) []model.OrganizationResult {
	seen := make(map[string]bool)
	var results []model.OrganizationResult

	for _, r := range runs {
		if seen[r.School.Name] {
			continue
		}
		switch r.Status {
		case model.RunStatusComplete:
			if r.Result != nil {
				seen[r.School.Name] = true
				results = append(results, *r.Result)
			}
		case model.RunStatusFailed:
			seen[r.School.Name] = true
			results = append(results, model.OrganizationResult{
				School:        r.School,
				FailureReason: r.Error,
				ProcessedAt:   r.UpdatedAt,
			})
		}
	}
	return results
}
