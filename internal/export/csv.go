// Package export writes enrichment results to the delivery formats:
// flattened per-organization CSV, person-centric CSV, nested JSON, and
// Excel workbooks.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/edulead/leadgen-cli/internal/model"
)

// maxFlattenedLeads bounds the numbered DM columns in the flat CSV.
const maxFlattenedLeads = 3

// orgColumns defines the ordered per-organization CSV columns.
var orgColumns = buildOrgColumns()

func buildOrgColumns() []string {
	cols := []string{
		"School/Org Name",
		"Type",
		"Location",
		"Foundation",
		"NPSN",
		"Website",
		"Official Email",
		"Official WhatsApp",
	}
	for i := 1; i <= maxFlattenedLeads; i++ {
		cols = append(cols,
			fmt.Sprintf("DM%d Name", i),
			fmt.Sprintf("DM%d Role", i),
			fmt.Sprintf("DM%d WhatsApp", i),
			fmt.Sprintf("DM%d Email", i),
			fmt.Sprintf("DM%d LinkedIn", i),
		)
	}
	return append(cols, "Data Quality", "Status")
}

// WriteOrgCSV writes one row per organization with decision-makers
// flattened into numbered columns.
func WriteOrgCSV(results []model.OrganizationResult, outputPath string) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return eris.Wrap(err, "export: create csv")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write(orgColumns); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	for i := range results {
		if err := w.Write(buildOrgRow(&results[i])); err != nil {
			return eris.Wrap(err, "export: write row")
		}
	}
	return nil
}

// buildOrgRow maps an OrganizationResult to a flat CSV row.
func buildOrgRow(r *model.OrganizationResult) []string {
	row := []string{
		r.School.Name,
		r.School.Type,
		r.School.Location,
		r.Identity.FoundationName,
		r.Identity.NPSN,
		firstNonEmpty(r.Identity.Website, r.School.Website),
		r.Identity.OfficialEmail,
		r.Identity.OfficialWhatsApp,
	}

	for i := 0; i < maxFlattenedLeads; i++ {
		if i >= len(r.DecisionMakers) {
			row = append(row, "", "", "", "", "")
			continue
		}
		dm := r.DecisionMakers[i]
		row = append(row, dm.Name, dm.RoleDisplay, contactValue(dm.WhatsApp), contactValue(dm.Email), dm.LinkedIn)
	}

	status := "OK"
	if r.Failed() {
		status = "FAILED: " + r.FailureReason
	}
	return append(row, formatQuality(r.DataQuality), status)
}

// personColumns defines the person-centric CSV layout, one row per
// decision-maker for CRM import.
var personColumns = []string{
	"Name",
	"Role",
	"Priority Tier",
	"WhatsApp",
	"WhatsApp Status",
	"Email",
	"Email Status",
	"LinkedIn",
	"Confidence",
	"School/Org Name",
	"Location",
	"Source URLs",
}

// WritePersonCSV writes one row per decision-maker across all results.
// Failed organizations contribute no rows.
func WritePersonCSV(results []model.OrganizationResult, outputPath string) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return eris.Wrap(err, "export: create person csv")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write(personColumns); err != nil {
		return eris.Wrap(err, "export: write person header")
	}
	for i := range results {
		r := &results[i]
		for _, dm := range r.DecisionMakers {
			row := []string{
				dm.Name,
				dm.RoleDisplay,
				fmt.Sprintf("%d", dm.Tier),
				contactValue(dm.WhatsApp),
				contactStatus(dm.WhatsApp),
				contactValue(dm.Email),
				contactStatus(dm.Email),
				dm.LinkedIn,
				fmt.Sprintf("%.2f", dm.Confidence),
				r.School.Name,
				r.School.Location,
				strings.Join(dm.SourceURLs, " "),
			}
			if err := w.Write(row); err != nil {
				return eris.Wrap(err, "export: write person row")
			}
		}
	}
	return nil
}

func contactValue(c *model.NormalizedContact) string {
	if c == nil {
		return ""
	}
	return c.Value
}

func contactStatus(c *model.NormalizedContact) string {
	if c == nil {
		return ""
	}
	return string(c.Status)
}

func formatQuality(q float64) string {
	return fmt.Sprintf("%.0f%%", q*100)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
