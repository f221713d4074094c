// Package scraper fetches web pages and extracts the text and contact
// signals used by the enrichment pipeline.
package scraper

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/edulead/leadgen-cli/internal/resilience"
)

// Page is a fetched document with the signals harvested from its markup.
// Link-derived contacts (mailto:, tel:, wa.me) are kept separate from the
// body text so extraction can weigh them as explicit publications.
type Page struct {
	URL   string
	Title string
	Text  string

	Emails        []string
	Phones        []string
	WhatsAppLinks []string
	SocialLinks   []string

	// ContactLinks are same-host links that look like contact or profile
	// pages, candidates for follow-up fetches.
	ContactLinks []string
}

// Client fetches and parses a single page.
type Client interface {
	Fetch(ctx context.Context, pageURL string) (*Page, error)
}

// Option configures the scraper.
type Option func(*fetcher)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *fetcher) {
		f.userAgent = ua
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *fetcher) {
		f.http.Timeout = d
	}
}

// WithMaxBodySize caps how many bytes of a response body are read.
func WithMaxBodySize(n int64) Option {
	return func(f *fetcher) {
		f.maxBodySize = n
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(f *fetcher) {
		f.http = hc
	}
}

// WithRateLimit sets the per-host request rate.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(f *fetcher) {
		f.hostRate = r
		f.hostBurst = burst
	}
}

type fetcher struct {
	http        *http.Client
	userAgent   string
	maxBodySize int64

	hostRate  rate.Limit
	hostBurst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	breakers *resilience.ServiceBreakers
}

// New creates a scraper with per-host rate limiting and circuit breaking.
func New(opts ...Option) Client {
	f := &fetcher{
		http: &http.Client{
			Timeout: 20 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		userAgent:   "leadgen-cli/1.0",
		maxBodySize: 2 << 20,
		hostRate:    2,
		hostBurst:   2,
		limiters:    make(map[string]*rate.Limiter),
		breakers:    resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig()),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *fetcher) limiterFor(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = rate.NewLimiter(f.hostRate, f.hostBurst)
		f.limiters[host] = lim
	}
	return lim
}

// Fetch downloads and parses a page. Hosts that keep failing trip a
// circuit breaker and are skipped for a cooldown period.
func (f *fetcher) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, eris.Wrapf(err, "scraper: parse url %q", pageURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, eris.Errorf("scraper: unsupported scheme %q", u.Scheme)
	}

	if err := f.limiterFor(u.Host).Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "scraper: rate limiter wait")
	}

	cb := f.breakers.Get(u.Host)
	page, err := resilience.ExecuteVal(ctx, cb, func(ctx context.Context) (*Page, error) {
		return f.fetch(ctx, u)
	})
	if err != nil {
		if eris.Is(err, resilience.ErrCircuitOpen) {
			zap.L().Debug("skipping host with open circuit", zap.String("host", u.Host))
		}
		return nil, err
	}
	return page, nil
}

func (f *fetcher) fetch(ctx context.Context, u *url.URL) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "scraper: create request")
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "scraper: fetch %s", u)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("scraper: status %d from %s", resp.StatusCode, u)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") && !strings.Contains(ct, "text/plain") {
		return nil, eris.Errorf("scraper: unsupported content type %q from %s", ct, u)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		return nil, eris.Wrapf(err, "scraper: parse %s", u)
	}

	return parsePage(u, doc), nil
}

var contactPathHints = []string{
	"kontak", "contact", "hubungi",
	"tentang", "about", "profil", "profile",
	"struktur", "organisasi", "yayasan", "pengurus", "guru", "staff",
}

func parsePage(base *url.URL, doc *goquery.Document) *Page {
	page := &Page{
		URL:   base.String(),
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
	}

	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || seen[href] {
			return
		}
		seen[href] = true
		classifyLink(page, base, href)
	})

	doc.Find("script, style, noscript, iframe, svg").Remove()
	page.Text = collapseWhitespace(doc.Find("body").Text())
	return page
}

func classifyLink(page *Page, base *url.URL, href string) {
	lower := strings.ToLower(href)
	switch {
	case strings.HasPrefix(lower, "mailto:"):
		addr := strings.TrimPrefix(href, "mailto:")
		if i := strings.IndexByte(addr, '?'); i >= 0 {
			addr = addr[:i]
		}
		if addr != "" {
			page.Emails = append(page.Emails, addr)
		}
		return
	case strings.HasPrefix(lower, "tel:"):
		if num := strings.TrimPrefix(href, "tel:"); num != "" {
			page.Phones = append(page.Phones, num)
		}
		return
	}

	u, err := base.Parse(href)
	if err != nil {
		return
	}

	host := strings.ToLower(u.Host)
	switch {
	case host == "wa.me" || host == "api.whatsapp.com" || strings.HasSuffix(host, ".wa.me"):
		page.WhatsAppLinks = append(page.WhatsAppLinks, u.String())
	case strings.Contains(host, "linkedin.com"),
		strings.Contains(host, "facebook.com"),
		strings.Contains(host, "instagram.com"):
		page.SocialLinks = append(page.SocialLinks, u.String())
	case u.Host == base.Host:
		path := strings.ToLower(u.Path)
		for _, hint := range contactPathHints {
			if strings.Contains(path, hint) {
				page.ContactLinks = append(page.ContactLinks, u.String())
				return
			}
		}
	}
}

var whitespaceRE = regexp.MustCompile(`[ \t\r\f\v]+`)
var blankLinesRE = regexp.MustCompile(`\n{3,}`)

func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(whitespaceRE.ReplaceAllString(line, " "))
	}
	out := strings.Join(lines, "\n")
	out = blankLinesRE.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}
