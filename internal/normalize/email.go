package normalize

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/edulead/leadgen-cli/internal/model"
)

// genericLocalParts are local-part prefixes that mark an address as an
// organization mailbox rather than a personal one, regardless of domain.
var genericLocalParts = []string{
	"info", "admin", "contact", "office", "sekolah",
	"kontak", "hubungi", "support", "noreply", "no-reply", "webmaster",
}

// emailRE enforces the local-part@domain shape with dotted labels and an
// alphabetic TLD of at least two characters.
var emailRE = regexp.MustCompile(`^[a-z0-9!#$%&'*+/=?^_` + "`" + `{|}~.-]+@(?:[a-z0-9](?:[a-z0-9-]*[a-z0-9])?\.)+[a-z]{2,}$`)

// Email canonicalizes an address (lowercase, trimmed) and classifies it as
// personal or organizational. orgDomain may be empty when the organization
// domain is unknown.
func Email(raw, orgDomain string) (model.NormalizedContact, error) {
	addr := strings.ToLower(strings.TrimSpace(raw))
	addr = strings.TrimPrefix(addr, "mailto:")

	if !emailRE.MatchString(addr) {
		return model.NormalizedContact{}, eris.Wrapf(ErrInvalidFormat, "email %q", raw)
	}

	at := strings.LastIndex(addr, "@")
	local, domain := addr[:at], addr[at+1:]
	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") || strings.Contains(local, "..") {
		return model.NormalizedContact{}, eris.Wrapf(ErrInvalidFormat, "email %q", raw)
	}

	personal := true
	if orgDomain != "" && domain == strings.ToLower(strings.TrimSpace(orgDomain)) {
		personal = false
	}
	for _, prefix := range genericLocalParts {
		if strings.HasPrefix(local, prefix) {
			personal = false
			break
		}
	}

	return model.NormalizedContact{
		Channel:    model.ChannelEmail,
		Value:      addr,
		IsPersonal: personal,
		Status:     model.StatusUnverified,
	}, nil
}

// OrgDomain reduces a website URL to the bare hostname used for the
// email ownership check. A leading "www." is dropped; an unparseable
// site yields the empty string, which disables the check.
func OrgDomain(site string) string {
	s := strings.TrimSpace(site)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// Domain returns the domain part of a canonical email address.
func Domain(addr string) string {
	at := strings.LastIndex(addr, "@")
	if at < 0 {
		return ""
	}
	return addr[at+1:]
}
