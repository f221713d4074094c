package enrich

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edulead/leadgen-cli/internal/model"
	"github.com/edulead/leadgen-cli/pkg/scraper"
	"github.com/edulead/leadgen-cli/pkg/serper"
)

type stubSearch struct {
	byQuery map[string]*serper.SearchResponse
	err     error
	queries []string
}

func (s *stubSearch) Search(_ context.Context, query string, _ ...serper.SearchOption) (*serper.SearchResponse, error) {
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	for key, resp := range s.byQuery {
		if strings.Contains(query, key) {
			return resp, nil
		}
	}
	return &serper.SearchResponse{}, nil
}

type stubScraper struct {
	pages map[string]*scraper.Page
	errs  map[string]error
}

func (s *stubScraper) Fetch(_ context.Context, pageURL string) (*scraper.Page, error) {
	if err, ok := s.errs[pageURL]; ok {
		return nil, err
	}
	if p, ok := s.pages[pageURL]; ok {
		return p, nil
	}
	return nil, assert.AnError
}

func TestCollectSearchAndScrape(t *testing.T) {
	search := &stubSearch{byQuery: map[string]*serper.SearchResponse{
		"kepala sekolah": {Organic: []serper.OrganicResult{
			{
				Title:   "SMA Tunas Bangsa",
				Link:    "https://tunasbangsa.sch.id",
				Snippet: "Kepala Sekolah Ibu Siti Rahayu memimpin sejak 2020.",
			},
			{
				Title:   "Profil di LinkedIn",
				Link:    "https://www.linkedin.com/in/budi-santoso",
				Snippet: "Budi Santoso, Ketua Yayasan Tunas Bangsa.",
			},
		}},
		"NPSN": {Organic: []serper.OrganicResult{
			{
				Title:   "Data Sekolah",
				Link:    "https://sekolah.data.kemdikbud.go.id/profil/123",
				Snippet: "SMA TUNAS BANGSA NPSN: 20100001 Status: Swasta",
			},
		}},
	}}

	pages := &stubScraper{pages: map[string]*scraper.Page{
		"https://tunasbangsa.sch.id": {
			URL:           "https://tunasbangsa.sch.id",
			Title:         "Beranda",
			Text:          "Selamat datang di SMA Tunas Bangsa, dikelola Yayasan Tunas Bangsa.",
			Emails:        []string{"info@tunasbangsa.sch.id"},
			WhatsAppLinks: []string{"https://wa.me/6281234567890"},
			SocialLinks:   []string{"https://www.instagram.com/tunasbangsa"},
			ContactLinks:  []string{"https://tunasbangsa.sch.id/kontak"},
		},
		"https://tunasbangsa.sch.id/kontak": {
			URL:   "https://tunasbangsa.sch.id/kontak",
			Title: "Kontak",
			Text:  "Hubungi Ketua Yayasan Bapak Budi Santoso, HP: 0812-3456-7890.",
		},
	}}

	collector := NewCollector(search, pages, 10, 5)
	docs, identity, err := collector.Collect(context.Background(), model.School{
		Name: "SMA Tunas Bangsa", Location: "Surabaya",
	})
	require.NoError(t, err)

	// Three snippets plus two scraped pages.
	require.Len(t, docs, 5)
	assert.Equal(t, confSnippet, docs[0].Confidence)
	assert.Equal(t, confOfficialPage, docs[3].Confidence)
	assert.Equal(t, confContactPage, docs[4].Confidence)
	assert.Contains(t, docs[3].Text, "WhatsApp: https://wa.me/6281234567890")

	assert.Equal(t, "https://tunasbangsa.sch.id", identity.Website)
	assert.Equal(t, "20100001", identity.NPSN)
	assert.Equal(t, "Yayasan Tunas Bangsa", identity.FoundationName)
	assert.Equal(t, "info@tunasbangsa.sch.id", identity.OfficialEmail)
	assert.Equal(t, "+6281234567890", identity.OfficialWhatsApp)
	assert.Equal(t, "https://www.instagram.com/tunasbangsa", identity.Instagram)
}

func TestCollectAllSearchesFail(t *testing.T) {
	search := &stubSearch{err: assert.AnError}
	collector := NewCollector(search, nil, 10, 5)

	_, _, err := collector.Collect(context.Background(), model.School{Name: "SMA Gagal"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search queries failed")
}

func TestCollectToleratesScrapeFailure(t *testing.T) {
	search := &stubSearch{byQuery: map[string]*serper.SearchResponse{
		"kepala sekolah": {Organic: []serper.OrganicResult{
			{Title: "Situs", Link: "https://sekolah.sch.id", Snippet: "Profil sekolah."},
		}},
	}}
	pages := &stubScraper{errs: map[string]error{"https://sekolah.sch.id": assert.AnError}}

	collector := NewCollector(search, pages, 10, 5)
	docs, identity, err := collector.Collect(context.Background(), model.School{Name: "Sekolah"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "https://sekolah.sch.id", identity.Website)
}

func TestCollectUsesProvidedWebsite(t *testing.T) {
	search := &stubSearch{byQuery: map[string]*serper.SearchResponse{}}
	pages := &stubScraper{pages: map[string]*scraper.Page{
		"https://known.sch.id": {URL: "https://known.sch.id", Text: "Beranda resmi."},
	}}

	collector := NewCollector(search, pages, 10, 5)
	docs, identity, err := collector.Collect(context.Background(), model.School{
		Name: "Sekolah", Website: "https://known.sch.id",
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "https://known.sch.id", identity.Website)
}

func TestCollectDeduplicatesURLs(t *testing.T) {
	dup := serper.OrganicResult{Title: "Sama", Link: "https://dup.sch.id", Snippet: "Halaman yang sama."}
	search := &stubSearch{byQuery: map[string]*serper.SearchResponse{
		"kepala sekolah": {Organic: []serper.OrganicResult{dup}},
		"Kontak":         {Organic: []serper.OrganicResult{dup}},
	}}

	collector := NewCollector(search, nil, 10, 5)
	docs, _, err := collector.Collect(context.Background(), model.School{Name: "Sekolah"})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestPickOfficialWebsitePrefersSchoolDomains(t *testing.T) {
	docs := []model.Document{
		{URL: "https://www.facebook.com/sekolah"},
		{URL: "https://directory.example.com/sekolah"},
		{URL: "https://tunasbangsa.sch.id/profil"},
	}
	assert.Equal(t, "https://tunasbangsa.sch.id/profil", pickOfficialWebsite(docs))
}

func TestPickOfficialWebsiteFallsBack(t *testing.T) {
	docs := []model.Document{
		{URL: "https://www.instagram.com/sekolah"},
		{URL: "https://blog.example.com/sekolah"},
	}
	assert.Equal(t, "https://blog.example.com/sekolah", pickOfficialWebsite(docs))
	assert.Equal(t, "", pickOfficialWebsite(nil))
}

func TestHarvestIdentityNPSNAndFoundation(t *testing.T) {
	var id model.Identity
	harvestIdentity(&id, "Sekolah ini (NPSN: 20123456) dikelola Yayasan Pendidikan Harapan Kita sejak 1995.")
	assert.Equal(t, "20123456", id.NPSN)
	assert.Equal(t, "Yayasan Pendidikan Harapan Kita", id.FoundationName)

	// Existing values are never overwritten.
	harvestIdentity(&id, "NPSN: 99999999 Yayasan Lain")
	assert.Equal(t, "20123456", id.NPSN)
	assert.Equal(t, "Yayasan Pendidikan Harapan Kita", id.FoundationName)
}

func TestHarvestIdentityTrimsSentencePunctuation(t *testing.T) {
	var withPeriod, bare model.Identity
	harvestIdentity(&withPeriod, "Sekolah ini dikelola oleh Yayasan Tunas Bangsa.")
	harvestIdentity(&bare, "Profil Yayasan Tunas Bangsa")

	assert.Equal(t, "Yayasan Tunas Bangsa", withPeriod.FoundationName)
	assert.Equal(t, bare.FoundationName, withPeriod.FoundationName)
}

func TestHarvestIdentityIgnoresBareYayasan(t *testing.T) {
	var id model.Identity
	harvestIdentity(&id, "Didirikan oleh Yayasan pada tahun 1980.")
	assert.Equal(t, "", id.FoundationName)
}
