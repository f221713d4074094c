package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/edulead/leadgen-cli/internal/export"
	"github.com/edulead/leadgen-cli/internal/model"
)

var (
	runName     string
	runType     string
	runLocation string
	runWebsite  string
	runOutput   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Enrich a single school",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("enrich"); err != nil {
			return err
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		school := model.School{
			Name:     runName,
			Type:     runType,
			Location: runLocation,
			Website:  runWebsite,
		}

		result, runID, err := env.Pipeline.Run(ctx, school)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("enrichment complete",
			zap.String("school", school.Name),
			zap.String("run_id", runID),
			zap.Int("decision_makers", len(result.DecisionMakers)),
			zap.Float64("data_quality", result.DataQuality),
		)

		if runOutput != "" {
			if err := export.WriteJSON([]model.OrganizationResult{*result}, runOutput); err != nil {
				return err
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	runCmd.Flags().StringVar(&runName, "name", "", "school name (required)")
	runCmd.Flags().StringVar(&runType, "type", "", "school type, e.g. SMA Swasta")
	runCmd.Flags().StringVar(&runLocation, "location", "", "city or region")
	runCmd.Flags().StringVar(&runWebsite, "website", "", "official website, skips website discovery")
	runCmd.Flags().StringVar(&runOutput, "output", "", "also write the result JSON to this path")
	_ = runCmd.MarkFlagRequired("name")
	rootCmd.AddCommand(runCmd)
}
