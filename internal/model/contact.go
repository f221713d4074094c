package model

// Channel identifies the kind of contact a NormalizedContact holds.
type Channel string

const (
	ChannelPhone Channel = "phone"
	ChannelEmail Channel = "email"
)

// VerificationStatus is the outcome of contact validation. Ambiguous
// network responses stay at unverified; only explicit failures move a
// contact to invalid or undeliverable.
type VerificationStatus string

const (
	StatusUnverified    VerificationStatus = "unverified"
	StatusValid         VerificationStatus = "valid"
	StatusInvalid       VerificationStatus = "invalid"
	StatusUndeliverable VerificationStatus = "undeliverable"
)

// NormalizedContact is a phone number or email address in canonical form.
type NormalizedContact struct {
	Channel Channel `json:"channel"`
	Value   string  `json:"value"`
	// IsLandline is set for phone contacts matching a known Indonesian
	// area-code prefix. Mobile numbers (+628...) leave it false.
	IsLandline bool `json:"is_landline,omitempty"`
	// IsPersonal applies to email contacts only: false when the address
	// uses the organization's domain or a generic local-part.
	IsPersonal bool               `json:"is_personal,omitempty"`
	Status     VerificationStatus `json:"verification_status"`
}

// Verified reports whether the contact passed validation.
func (c NormalizedContact) Verified() bool {
	return c.Status == StatusValid
}
