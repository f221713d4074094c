// Package merge consolidates raw candidates extracted from multiple
// documents into one record per person. Identity resolution keys on a
// normalized form of the name; conflicting fields resolve by seniority
// and source confidence rather than recency alone.
package merge

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/edulead/leadgen-cli/internal/model"
	"github.com/edulead/leadgen-cli/internal/normalize"
	"github.com/edulead/leadgen-cli/internal/roles"
)

// honorifics are titles stripped from the front of a name before
// keying. Indonesian address terms plus common academic prefixes.
var honorifics = []string{
	"bapak", "ibu", "pak", "bu", "sdr", "sdri",
	"dr", "drs", "dra", "ir", "h", "hj", "ust", "ustadz", "ustadzah",
	"prof", "kh",
}

var foldDiacritics = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// candidate accumulates the merged state for one person before the
// result is frozen into a PersonLead.
type candidate struct {
	name       string
	tier       int
	roleText   string
	phone      *channelPick
	email      *channelPick
	linkedIn   *channelPick
	sourceURLs map[string]struct{}
	firstSeen  int
}

// channelPick records a channel value together with the confidence and
// arrival order of the document that supplied it, so later candidates
// never silently overwrite an earlier, better-sourced value.
type channelPick struct {
	value      string
	confidence float64
	order      int
}

func (p *channelPick) beats(confidence float64, order int) bool {
	if p == nil {
		return false
	}
	if p.confidence != confidence {
		return p.confidence >= confidence
	}
	return p.order <= order
}

// Merger folds raw candidates into deduplicated leads.
type Merger struct{}

// NewMerger returns a Merger.
func NewMerger() *Merger {
	return &Merger{}
}

// Merge deduplicates the candidate list into one lead per person. The
// output is independent of input order: channels resolve by descending
// source confidence, then by earliest arrival; names keep the longest
// observed spelling; roles keep the most senior classification seen.
// orgDomain, when known, marks emails on the organization's own domain
// as non-personal; pass "" when the website was never resolved.
func (m *Merger) Merge(raw []model.RawCandidate, orgDomain string) []model.PersonLead {
	byKey := make(map[string]*candidate)
	var order []string

	for i, rc := range raw {
		key := NameKey(rc.Name)
		if key == "" {
			continue
		}

		c, ok := byKey[key]
		if !ok {
			c = &candidate{
				tier:       roles.TierUnknown + 1,
				sourceURLs: make(map[string]struct{}),
				firstSeen:  i,
			}
			byKey[key] = c
			order = append(order, key)
		}
		c.absorb(rc, i)
	}

	// Deterministic output: candidates sorted by first appearance.
	sort.Slice(order, func(i, j int) bool {
		return byKey[order[i]].firstSeen < byKey[order[j]].firstSeen
	})

	leads := make([]model.PersonLead, 0, len(order))
	for _, key := range order {
		leads = append(leads, byKey[key].freeze(orgDomain))
	}
	return leads
}

func (c *candidate) absorb(rc model.RawCandidate, position int) {
	name := CleanName(rc.Name)
	if len(name) > len(c.name) {
		c.name = name
	}

	// Seniority wins regardless of which document was more confident.
	tier, display := roles.Classify(rc.RoleText)
	if tier < c.tier || (tier == c.tier && c.roleText == "" && display != "") {
		c.tier = tier
		c.roleText = display
	}

	if rc.PhoneRaw != "" && !c.phone.beats(rc.SourceConfidence, position) {
		c.phone = &channelPick{rc.PhoneRaw, rc.SourceConfidence, position}
	}
	if rc.EmailRaw != "" && !c.email.beats(rc.SourceConfidence, position) {
		c.email = &channelPick{rc.EmailRaw, rc.SourceConfidence, position}
	}
	if rc.LinkedInRaw != "" && !c.linkedIn.beats(rc.SourceConfidence, position) {
		c.linkedIn = &channelPick{rc.LinkedInRaw, rc.SourceConfidence, position}
	}

	if rc.SourceURL != "" {
		c.sourceURLs[rc.SourceURL] = struct{}{}
	}
}

func (c *candidate) freeze(orgDomain string) model.PersonLead {
	lead := model.PersonLead{
		Name:        c.name,
		RoleDisplay: c.roleText,
		Tier:        c.tier,
	}

	if c.phone != nil {
		if contact, err := normalize.Phone(c.phone.value); err == nil {
			lead.WhatsApp = &contact
		}
	}
	if c.email != nil {
		if contact, err := normalize.Email(c.email.value, orgDomain); err == nil {
			lead.Email = &contact
		}
	}
	if c.linkedIn != nil {
		lead.LinkedIn = c.linkedIn.value
	}

	lead.SourceURLs = make([]string, 0, len(c.sourceURLs))
	for url := range c.sourceURLs {
		lead.SourceURLs = append(lead.SourceURLs, url)
	}
	sort.Strings(lead.SourceURLs)
	return lead
}

// CleanName strips honorific prefixes and collapses whitespace while
// preserving the original casing of the remaining words.
func CleanName(name string) string {
	fields := strings.Fields(name)
	for len(fields) > 0 {
		stripped := strings.ToLower(strings.Trim(fields[0], ".,"))
		if !isHonorific(stripped) {
			break
		}
		fields = fields[1:]
	}
	return strings.Join(fields, " ")
}

// NameKey reduces a name to its dedup key: honorifics stripped,
// diacritics folded, lowercased, punctuation removed. Anything after a
// comma is dropped so degree suffixes ("Budi Santoso, S.Pd.") key the
// same as the bare name.
func NameKey(name string) string {
	cleaned := CleanName(name)
	if i := strings.IndexByte(cleaned, ','); i >= 0 {
		cleaned = cleaned[:i]
	}
	if folded, _, err := transform.String(foldDiacritics, cleaned); err == nil {
		cleaned = folded
	}

	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(cleaned) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case !lastSpace:
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

func isHonorific(word string) bool {
	for _, h := range honorifics {
		if word == h {
			return true
		}
	}
	return false
}
