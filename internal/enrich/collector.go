package enrich

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/edulead/leadgen-cli/internal/model"
	"github.com/edulead/leadgen-cli/internal/normalize"
	"github.com/edulead/leadgen-cli/pkg/scraper"
	"github.com/edulead/leadgen-cli/pkg/serper"
)

// Source confidence by provenance. Scraped official pages outrank search
// snippets, which outrank secondary scraped pages only found via links.
const (
	confOfficialPage = 0.9
	confContactPage  = 0.8
	confSnippet      = 0.6
)

// SearchCollector gathers documents for a school by running targeted
// searches and scraping the official site.
type SearchCollector struct {
	search     serper.Client
	pages      scraper.Client
	maxResults int
	maxPages   int
}

// NewCollector builds a SearchCollector.
func NewCollector(search serper.Client, pages scraper.Client, maxResults, maxPages int) *SearchCollector {
	if maxResults <= 0 {
		maxResults = 10
	}
	if maxPages <= 0 {
		maxPages = 5
	}
	return &SearchCollector{
		search:     search,
		pages:      pages,
		maxResults: maxResults,
		maxPages:   maxPages,
	}
}

// searchQueries builds the query set for one school. The mix targets
// leadership names, foundation structure, contact pages, and the
// ministry NPSN registry.
func searchQueries(school model.School) []string {
	name := school.Name
	loc := school.Location
	return []string{
		fmt.Sprintf(`"%s" %s (kepala sekolah OR "Ketua Yayasan" OR direktur)`, name, loc),
		fmt.Sprintf(`"%s" Yayasan (struktur OR organisasi OR pengurus)`, name),
		fmt.Sprintf(`"%s" (WhatsApp OR "Hubungi kami" OR Kontak OR Email)`, name),
		fmt.Sprintf(`"%s" NPSN site:sekolah.data.kemdikbud.go.id`, name),
		fmt.Sprintf(`"%s" ("Ketua Yayasan" OR "Kepala Sekolah" OR Principal) site:linkedin.com`, name),
	}
}

// Collect runs the search and scrape passes and returns the documents
// plus the organization identity signals harvested along the way.
// Partial failure is tolerated: a query or page that errors is logged
// and skipped, and Collect only fails when nothing at all was gathered.
func (c *SearchCollector) Collect(ctx context.Context, school model.School) ([]model.Document, model.Identity, error) {
	var (
		docs     []model.Document
		identity model.Identity
		seen     = make(map[string]bool)
		failures int
	)

	queries := searchQueries(school)
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return nil, identity, err
		}
		resp, err := c.search.Search(ctx, q, serper.WithNum(c.maxResults))
		if err != nil {
			failures++
			zap.L().Warn("search query failed",
				zap.String("school", school.Name),
				zap.String("query", q),
				zap.Error(err),
			)
			continue
		}
		for _, r := range resp.Organic {
			if r.Link == "" || seen[r.Link] || r.Snippet == "" {
				continue
			}
			seen[r.Link] = true
			docs = append(docs, model.Document{
				URL:        r.Link,
				Title:      r.Title,
				Text:       r.Title + "\n" + r.Snippet,
				Confidence: confSnippet,
			})
		}
	}

	if failures == len(queries) && len(docs) == 0 {
		return nil, identity, eris.Errorf("collect: all %d search queries failed for %q", failures, school.Name)
	}

	website := school.Website
	if website == "" {
		website = pickOfficialWebsite(docs)
	}
	identity.Website = website

	if website != "" && c.pages != nil {
		c.scrapeSite(ctx, website, &docs, &identity)
	}

	for i := range docs {
		harvestIdentity(&identity, docs[i].Text)
	}

	zap.L().Info("documents collected",
		zap.String("school", school.Name),
		zap.Int("documents", len(docs)),
		zap.String("website", website),
	)
	return docs, identity, nil
}

// scrapeSite fetches the official site and up to maxPages of its
// contact-looking subpages, appending a document per page and folding
// the link-level contact signals into the identity and document text.
func (c *SearchCollector) scrapeSite(ctx context.Context, website string, docs *[]model.Document, identity *model.Identity) {
	queue := []string{website}
	visited := make(map[string]bool)
	conf := confOfficialPage

	for len(queue) > 0 && len(visited) < c.maxPages {
		if ctx.Err() != nil {
			return
		}
		pageURL := queue[0]
		queue = queue[1:]
		if visited[pageURL] {
			continue
		}
		visited[pageURL] = true

		page, err := c.pages.Fetch(ctx, pageURL)
		if err != nil {
			zap.L().Warn("page fetch failed", zap.String("url", pageURL), zap.Error(err))
			conf = confContactPage
			continue
		}

		*docs = append(*docs, model.Document{
			URL:        page.URL,
			Title:      page.Title,
			Text:       page.Text + "\n" + signalLines(page),
			Confidence: conf,
		})
		applyPageSignals(identity, page)

		queue = append(queue, page.ContactLinks...)
		// Only the landing page carries the top confidence.
		conf = confContactPage
	}
}

// signalLines renders the link-derived contacts as labeled text lines so
// the extraction stage sees them next to the page body.
func signalLines(page *scraper.Page) string {
	var b strings.Builder
	for _, e := range page.Emails {
		fmt.Fprintf(&b, "Email: %s\n", e)
	}
	for _, p := range page.Phones {
		fmt.Fprintf(&b, "Telepon: %s\n", p)
	}
	for _, w := range page.WhatsAppLinks {
		fmt.Fprintf(&b, "WhatsApp: %s\n", w)
	}
	for _, s := range page.SocialLinks {
		fmt.Fprintf(&b, "Sosial: %s\n", s)
	}
	return b.String()
}

// generalMailboxes are organization-level email prefixes, kept apart
// from personal addresses.
var generalMailboxes = []string{"info", "admin", "contact", "kontak", "hubungi", "humas", "tu", "sekretariat"}

func applyPageSignals(identity *model.Identity, page *scraper.Page) {
	if identity.OfficialEmail == "" {
		for _, e := range page.Emails {
			contact, err := normalize.Email(e, "")
			if err != nil {
				continue
			}
			local, _, _ := strings.Cut(contact.Value, "@")
			for _, g := range generalMailboxes {
				if local == g {
					identity.OfficialEmail = contact.Value
					break
				}
			}
			if identity.OfficialEmail != "" {
				break
			}
		}
	}

	if identity.OfficialWhatsApp == "" {
		for _, w := range page.WhatsAppLinks {
			contact, err := normalize.Phone(w)
			if err == nil && normalize.IsMobile(contact.Value) {
				identity.OfficialWhatsApp = contact.Value
				break
			}
		}
	}

	for _, s := range page.SocialLinks {
		lower := strings.ToLower(s)
		switch {
		case identity.Instagram == "" && strings.Contains(lower, "instagram.com"):
			identity.Instagram = s
		case identity.Facebook == "" && strings.Contains(lower, "facebook.com"):
			identity.Facebook = s
		}
	}
}

var (
	npsnRE     = regexp.MustCompile(`(?i)(?:NPSN|Nomor\s+Pokok\s+Sekolah(?:\s+Nasional)?)\s*[:=]?\s*(\d{8})\b`)
	yayasanRE  = regexp.MustCompile(`\b(Yayasan(?:\s+[A-Z][\w'.-]*){1,6})`)
	skipHosts  = []string{"linkedin.com", "facebook.com", "instagram.com", "twitter.com", "youtube.com", "tiktok.com", "kemdikbud.go.id", "wikipedia.org", "google.com"}
	schoolTLDs = []string{".sch.id", ".ac.id"}
)

// harvestIdentity fills empty identity fields from document text.
func harvestIdentity(identity *model.Identity, text string) {
	if identity.NPSN == "" {
		if m := npsnRE.FindStringSubmatch(text); m != nil {
			identity.NPSN = m[1]
		}
	}
	if identity.FoundationName == "" {
		// The pattern needs at least one capitalized word after
		// "Yayasan", so a bare mention never matches. Sentence-final
		// punctuation rides along in the last token and is trimmed so
		// the same foundation always yields the same name.
		if m := yayasanRE.FindStringSubmatch(text); m != nil {
			identity.FoundationName = strings.TrimRight(strings.TrimSpace(m[1]), ".,;:'-")
		}
	}
}

// pickOfficialWebsite chooses the most likely official site from search
// results: Indonesian school domains first, then the first non-directory
// hit.
func pickOfficialWebsite(docs []model.Document) string {
	var fallback string
	for _, d := range docs {
		lower := strings.ToLower(d.URL)
		if hostMatchesAny(lower, skipHosts) {
			continue
		}
		for _, tld := range schoolTLDs {
			if strings.Contains(lower, tld) {
				return d.URL
			}
		}
		if fallback == "" {
			fallback = d.URL
		}
	}
	return fallback
}

func hostMatchesAny(lowerURL string, hosts []string) bool {
	for _, h := range hosts {
		if strings.Contains(lowerURL, h) {
			return true
		}
	}
	return false
}
