package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/edulead/leadgen-cli/internal/model"
)

// FoundationCluster groups the schools operated by one foundation, so a
// single chairman-level contact can cover the whole cluster.
type FoundationCluster struct {
	Foundation string
	Schools    []string
	// BestLead is the most senior decision-maker with a direct channel
	// across every school in the cluster, if any.
	BestLead *model.PersonLead
}

// ClusterByFoundation groups results on their foundation name. Results
// without a foundation are left out; a school network is only visible
// when the identity stage found its operator.
func ClusterByFoundation(results []model.OrganizationResult) []FoundationCluster {
	byKey := make(map[string]*FoundationCluster)

	for i := range results {
		r := &results[i]
		name := strings.TrimSpace(r.Identity.FoundationName)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)

		cluster, ok := byKey[key]
		if !ok {
			cluster = &FoundationCluster{Foundation: name}
			byKey[key] = cluster
		}
		cluster.Schools = append(cluster.Schools, r.School.Name)

		if lead := r.PrimaryContact(); lead != nil {
			if cluster.BestLead == nil || lead.Tier < cluster.BestLead.Tier ||
				(lead.Tier == cluster.BestLead.Tier && lead.Confidence > cluster.BestLead.Confidence) {
				cluster.BestLead = lead
			}
		}
	}

	clusters := make([]FoundationCluster, 0, len(byKey))
	for _, c := range byKey {
		sort.Strings(c.Schools)
		clusters = append(clusters, *c)
	}
	// Largest networks first; ties alphabetical.
	sort.Slice(clusters, func(i, j int) bool {
		if len(clusters[i].Schools) != len(clusters[j].Schools) {
			return len(clusters[i].Schools) > len(clusters[j].Schools)
		}
		return clusters[i].Foundation < clusters[j].Foundation
	})
	return clusters
}

var foundationColumns = []string{
	"Foundation",
	"School Count",
	"Schools",
	"Best Contact",
	"Best Contact Role",
	"Best Contact WhatsApp",
	"Best Contact Email",
}

// WriteFoundationCSV writes one row per foundation cluster.
func WriteFoundationCSV(results []model.OrganizationResult, outputPath string) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return eris.Wrap(err, "export: create foundation csv")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write(foundationColumns); err != nil {
		return eris.Wrap(err, "export: write foundation header")
	}
	for _, c := range ClusterByFoundation(results) {
		row := []string{
			c.Foundation,
			fmt.Sprintf("%d", len(c.Schools)),
			strings.Join(c.Schools, "; "),
			"", "", "", "",
		}
		if c.BestLead != nil {
			row[3] = c.BestLead.Name
			row[4] = c.BestLead.RoleDisplay
			row[5] = contactValue(c.BestLead.WhatsApp)
			row[6] = contactValue(c.BestLead.Email)
		}
		if err := w.Write(row); err != nil {
			return eris.Wrap(err, "export: write foundation row")
		}
	}
	return nil
}
