package export

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/edulead/leadgen-cli/internal/model"
)

// WriteXLSX writes an Excel workbook with two sheets: the flattened
// per-organization view and the person-centric lead list.
func WriteXLSX(results []model.OrganizationResult, outputPath string) error {
	wb := xlsx.NewFile()

	orgs, err := wb.AddSheet("Schools")
	if err != nil {
		return eris.Wrap(err, "export: add schools sheet")
	}
	writeRow(orgs, orgColumns)
	for i := range results {
		writeRow(orgs, buildOrgRow(&results[i]))
	}

	people, err := wb.AddSheet("Leads")
	if err != nil {
		return eris.Wrap(err, "export: add leads sheet")
	}
	writeRow(people, personColumns)
	for i := range results {
		r := &results[i]
		for _, dm := range r.DecisionMakers {
			writeRow(people, []string{
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
			})
		}
	}

	return eris.Wrap(wb.Save(outputPath), "export: save workbook")
}

func writeRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
