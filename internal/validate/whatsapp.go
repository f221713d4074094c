// Package validate verifies normalized contact channels. WhatsApp
// verification is a pure format re-check; email verification runs a
// bounded three-stage network probe (syntax, MX lookup, SMTP handshake).
// Every operation resolves to a VerificationStatus and never propagates
// an error into the pipeline.
package validate

import (
	"regexp"

	"github.com/edulead/leadgen-cli/internal/model"
)

var (
	// Indonesian mobile numbers: +628 followed by 8-11 digits.
	mobileRE = regexp.MustCompile(`^\+628\d{8,11}$`)
	// Landline numbers: +62, a non-8 area code, 7-11 further digits.
	landlineRE = regexp.MustCompile(`^\+62[1-79]\d{7,11}$`)
)

// WhatsApp re-checks a normalized phone number against the complete
// Indonesian mobile and landline patterns. No live presence check is
// performed, so the result is either valid or invalid, never blocking.
func WhatsApp(contact model.NormalizedContact) model.VerificationStatus {
	if contact.Channel != model.ChannelPhone || contact.Value == "" {
		return model.StatusInvalid
	}
	if mobileRE.MatchString(contact.Value) {
		return model.StatusValid
	}
	if contact.IsLandline && landlineRE.MatchString(contact.Value) {
		return model.StatusValid
	}
	return model.StatusInvalid
}
