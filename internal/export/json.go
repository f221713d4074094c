package export

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"

	"github.com/edulead/leadgen-cli/internal/model"
)

// WriteJSON writes the full nested result set, preserving every lead
// and contact annotation the tabular formats flatten away.
func WriteJSON(results []model.OrganizationResult, outputPath string) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return eris.Wrap(err, "export: create json")
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return eris.Wrap(err, "export: encode json")
	}
	return nil
}
