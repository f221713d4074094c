// Package roles maps free-text role strings to a fixed seniority tier.
//
// The hierarchy is an ordered rule table, evaluated top to bottom with
// first match winning. This encodes a strict total order of
// decision-making authority rather than a scored match: comparisons like
// "which role is more senior" reduce to comparing tier integers.
package roles

import "strings"

// Tier bounds. Tier 1 is the most senior role; unknown roles sink to
// TierUnknown and are kept, never dropped.
const (
	TierChairman  = 1
	TierPatron    = 2
	TierDirector  = 3
	TierPrincipal = 4
	TierVice      = 5
	TierTreasurer = 6
	// TierUnknown is shared with TierTreasurer: unrecognized roles sink
	// to the lowest tier rather than being dropped.
	TierUnknown = 6
)

// rule binds a canonical display label to the keyword set that selects it.
// Keywords cover both Bahasa Indonesia and the English gloss, since source
// documents mix the two.
type rule struct {
	tier     int
	display  string
	keywords []string
}

// rules is ordered by descending seniority; ordering is load-bearing.
var rules = []rule{
	{TierChairman, "Ketua Yayasan", []string{
		"ketua yayasan", "foundation chairman", "chairman of the board",
		"ketua pengurus", "pendiri", "founder",
	}},
	{TierPatron, "Pembina", []string{
		"pembina", "patron", "supervisor", "dewan pembina",
	}},
	{TierDirector, "Direktur", []string{
		"direktur", "director",
	}},
	{TierPrincipal, "Kepala Sekolah", []string{
		"kepala sekolah", "principal", "operator sekolah",
		"head of school", "headmaster", "headmistress",
	}},
	{TierVice, "Wakil Kepala", []string{
		"wakil kepala", "vice principal",
	}},
	{TierTreasurer, "Bendahara", []string{
		"bendahara", "treasurer",
	}},
}

// Classify maps a role string to its priority tier and canonical display
// label. Matching is case-insensitive and substring-based; when several
// keyword sets match, the numerically lowest tier wins because the table
// is evaluated in seniority order. Unmatched text returns TierUnknown with
// the original text preserved as the display label.
func Classify(roleText string) (int, string) {
	needle := strings.ToLower(strings.TrimSpace(roleText))
	if needle == "" {
		return TierUnknown, ""
	}

	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(needle, kw) {
				return r.tier, r.display
			}
		}
	}

	return TierUnknown, strings.TrimSpace(roleText)
}

// Known reports whether the role text matches a recognized rule, as
// opposed to sinking to the unknown-role fallback.
func Known(roleText string) bool {
	needle := strings.ToLower(strings.TrimSpace(roleText))
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(needle, kw) {
				return true
			}
		}
	}
	return false
}

// Senior reports whether the tier identifies a senior decision-maker
// (chairman, patron, or director level).
func Senior(tier int) bool {
	return tier <= TierDirector
}
