package model

// School represents one organization queued for enrichment. Identity
// fields are supplied by the caller (CSV, API request) and passed through
// unchanged; the pipeline never derives them.
type School struct {
	Name     string `json:"name" csv:"School Name"`
	Type     string `json:"type" csv:"School Type"`
	Location string `json:"location" csv:"Location"`
	Website  string `json:"website,omitempty" csv:"Website"`
	Notes    string `json:"notes,omitempty" csv:"Notes"`
}

// Identity holds the official identifiers and organization-level contact
// channels discovered for a school. These are pass-through data: the core
// validates shapes (NPSN length) but never fabricates values.
type Identity struct {
	NPSN             string `json:"npsn,omitempty"`
	FoundationName   string `json:"foundation_name,omitempty"`
	Website          string `json:"website,omitempty"`
	OfficialEmail    string `json:"official_email,omitempty"`
	OfficialWhatsApp string `json:"official_whatsapp,omitempty"`
	Instagram        string `json:"instagram,omitempty"`
	Facebook         string `json:"facebook,omitempty"`
}

// HasIdentity reports whether any of the identity fields that feed the
// quality score are populated.
func (id Identity) HasIdentity() bool {
	return id.NPSN != "" || id.FoundationName != "" || id.Website != ""
}
