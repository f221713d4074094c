// Package normalize canonicalizes phone numbers and email addresses into
// comparable forms. All functions are pure: identical input always yields
// identical output, and nothing here performs I/O.
package normalize

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/edulead/leadgen-cli/internal/model"
)

// ErrInvalidFormat is returned when a raw value cannot be canonicalized.
// Callers recover locally by skipping the channel; it never fails a run.
var ErrInvalidFormat = eris.New("normalize: invalid format")

const (
	minPhoneDigits = 9
	maxPhoneDigits = 15
)

// landlineAreaCodes lists known Indonesian landline area codes without the
// leading trunk zero, longest first so prefix matching is unambiguous.
var landlineAreaCodes = []string{
	"274", "251", "271", "341", "361", "411", "542", "741", "751", "761",
	"21", // Jakarta
	"22", // Bandung
	"24", // Semarang
	"31", // Surabaya
	"61", // Medan
}

var (
	waMeRE     = regexp.MustCompile(`wa\.me/(\d+)`)
	waAPIRE    = regexp.MustCompile(`api\.whatsapp\.com/send\?[^"'\s]*phone=(\d+)`)
	nonPhoneRE = regexp.MustCompile(`[^\d+]`)
)

// Phone canonicalizes an Indonesian phone number into +62 form. It accepts
// plain numbers ("0812...", "62812...", "+62 812..."), as well as numbers
// embedded in wa.me and api.whatsapp.com links. Landline numbers matching a
// known area code are tagged distinctly from mobile numbers (+628...).
func Phone(raw string) (model.NormalizedContact, error) {
	if m := waMeRE.FindStringSubmatch(raw); m != nil {
		raw = m[1]
	} else if m := waAPIRE.FindStringSubmatch(raw); m != nil {
		raw = m[1]
	}

	cleaned := nonPhoneRE.ReplaceAllString(raw, "")
	// Keep a single leading +, drop any stray ones inside the number.
	hadPlus := strings.HasPrefix(cleaned, "+")
	cleaned = strings.ReplaceAll(cleaned, "+", "")
	if hadPlus {
		cleaned = "+" + cleaned
	}

	digits := strings.TrimPrefix(cleaned, "+")
	if len(digits) < minPhoneDigits || len(digits) > maxPhoneDigits {
		return model.NormalizedContact{}, eris.Wrapf(ErrInvalidFormat, "phone %q: %d digits", raw, len(digits))
	}

	var canonical string
	switch {
	case strings.HasPrefix(cleaned, "+62"):
		canonical = cleaned
	case strings.HasPrefix(cleaned, "62"):
		canonical = "+" + cleaned
	case strings.HasPrefix(cleaned, "0"):
		canonical = "+62" + cleaned[1:]
	default:
		return model.NormalizedContact{}, eris.Wrapf(ErrInvalidFormat, "phone %q: not an Indonesian number", raw)
	}

	national := strings.TrimPrefix(canonical, "+62")
	if len(national) < minPhoneDigits-2 {
		return model.NormalizedContact{}, eris.Wrapf(ErrInvalidFormat, "phone %q: too short after country code", raw)
	}

	return model.NormalizedContact{
		Channel:    model.ChannelPhone,
		Value:      canonical,
		IsLandline: isLandline(national),
		Status:     model.StatusUnverified,
	}, nil
}

// isLandline matches the national number (country code stripped) against
// the known area-code table. Mobile numbers begin with 8.
func isLandline(national string) bool {
	if strings.HasPrefix(national, "8") {
		return false
	}
	for _, code := range landlineAreaCodes {
		if strings.HasPrefix(national, code) {
			return true
		}
	}
	return false
}

// IsMobile reports whether a canonical +62 number is an Indonesian mobile
// number.
func IsMobile(canonical string) bool {
	return strings.HasPrefix(canonical, "+628")
}
