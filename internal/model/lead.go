package model

import (
	"sort"
	"time"
)

// PersonLead is the merged, canonical view of one decision-maker at one
// organization. Created by the merger from one or more raw candidates and
// owned exclusively by the OrganizationResult that contains it.
type PersonLead struct {
	Name        string             `json:"name"`
	RoleDisplay string             `json:"role_display"`
	// Tier is always derived from RoleDisplay by the role classifier,
	// never set independently. 1 is the most senior, 6 the least.
	Tier       int                `json:"priority_tier"`
	WhatsApp   *NormalizedContact `json:"whatsapp,omitempty"`
	Email      *NormalizedContact `json:"email,omitempty"`
	LinkedIn   string             `json:"linkedin,omitempty"`
	Confidence float64            `json:"confidence"`
	SourceURLs []string           `json:"source_urls"`
}

// HasContact reports whether the lead carries at least one direct channel.
func (p PersonLead) HasContact() bool {
	return p.WhatsApp != nil || p.Email != nil || p.LinkedIn != ""
}

// OrganizationResult is one row of pipeline output: the enriched view of
// one school for one run. Never mutated after emission; a re-run produces
// a fresh result.
type OrganizationResult struct {
	School          School       `json:"school"`
	Identity        Identity     `json:"identity"`
	DecisionMakers  []PersonLead `json:"decision_makers"`
	DataQuality     float64      `json:"data_quality_score"`
	FailureReason   string       `json:"failure_reason,omitempty"`
	ProcessingNotes string       `json:"processing_notes,omitempty"`
	SourceURLs      []string     `json:"source_urls,omitempty"`
	ProcessedAt     time.Time    `json:"processed_at"`
}

// Failed reports whether the organization terminated in the failed state.
func (r *OrganizationResult) Failed() bool {
	return r.FailureReason != ""
}

// PrimaryContact returns the most senior decision-maker that has a direct
// channel, or nil when none do.
func (r *OrganizationResult) PrimaryContact() *PersonLead {
	for i := range r.DecisionMakers {
		if r.DecisionMakers[i].HasContact() {
			return &r.DecisionMakers[i]
		}
	}
	return nil
}

// SortLeads orders decision-makers by ascending tier, then descending
// confidence, then name for a stable output order.
func SortLeads(leads []PersonLead) {
	sort.SliceStable(leads, func(i, j int) bool {
		if leads[i].Tier != leads[j].Tier {
			return leads[i].Tier < leads[j].Tier
		}
		if leads[i].Confidence != leads[j].Confidence {
			return leads[i].Confidence > leads[j].Confidence
		}
		return leads[i].Name < leads[j].Name
	})
}
