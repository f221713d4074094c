// Package score computes per-person confidence and per-organization
// data quality from merged, validated leads. Both scores are pure
// functions of the record; scoring never mutates channel state.
package score

import (
	"github.com/edulead/leadgen-cli/internal/model"
	"github.com/edulead/leadgen-cli/internal/roles"
)

const (
	personBase          = 0.3
	personNamedRole     = 0.2
	personPerChannel    = 0.2
	personChannelCap    = 0.4
	personMultiSource   = 0.1
	orgSeniorWeight     = 0.3
	orgVerifiedWeight   = 0.3
	orgCoverageWeight   = 0.2
	orgIdentityWeight   = 0.2
	orgCoverageTargetDM = 3
)

// Person computes a lead's confidence in [0,1]. Verified channels and a
// recognized role raise it; corroboration across documents adds a
// smaller bump.
func Person(lead model.PersonLead) float64 {
	score := personBase

	if lead.Name != "" && roles.Known(lead.RoleDisplay) {
		score += personNamedRole
	}

	var channels float64
	if lead.WhatsApp != nil && lead.WhatsApp.Verified() {
		channels += personPerChannel
	}
	if lead.Email != nil && lead.Email.Verified() {
		channels += personPerChannel
	}
	if channels > personChannelCap {
		channels = personChannelCap
	}
	score += channels

	if len(lead.SourceURLs) > 1 {
		score += personMultiSource
	}

	return clamp(score)
}

// Organization computes the result's data quality score in [0,1]: a
// weighted mix of senior-contact presence, verified reachability,
// decision-maker coverage, and identity completeness.
func Organization(result model.OrganizationResult) float64 {
	var senior, verified, identity float64

	for _, dm := range result.DecisionMakers {
		if roles.Senior(dm.Tier) {
			senior = 1
		}
		if (dm.WhatsApp != nil && dm.WhatsApp.Verified()) ||
			(dm.Email != nil && dm.Email.Verified()) {
			verified = 1
		}
	}
	if result.Identity.OfficialEmail != "" || result.Identity.OfficialWhatsApp != "" {
		// Org-level channels count toward reachability once present.
		verified = 1
	}
	if result.Identity.HasIdentity() {
		identity = 1
	}

	coverage := float64(len(result.DecisionMakers)) / orgCoverageTargetDM
	if coverage > 1 {
		coverage = 1
	}

	return clamp(orgSeniorWeight*senior +
		orgVerifiedWeight*verified +
		orgCoverageWeight*coverage +
		orgIdentityWeight*identity)
}

// Apply scores every lead in place and stamps the organization's data
// quality. Leads are re-sorted so the strongest contacts come first.
func Apply(result *model.OrganizationResult) {
	for i := range result.DecisionMakers {
		result.DecisionMakers[i].Confidence = Person(result.DecisionMakers[i])
	}
	model.SortLeads(result.DecisionMakers)
	result.DataQuality = Organization(*result)
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
