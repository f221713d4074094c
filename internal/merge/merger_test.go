package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edulead/leadgen-cli/internal/model"
)

func TestMergeDeduplicatesAcrossHonorifics(t *testing.T) {
	raw := []model.RawCandidate{
		{
			Name:             "Bapak Budi Santoso",
			RoleText:         "Kepala Sekolah",
			PhoneRaw:         "081234567890",
			SourceURL:        "https://sekolah.sch.id/tentang",
			SourceConfidence: 0.8,
		},
		{
			Name:             "Budi Santoso, S.Pd.",
			RoleText:         "Ketua Yayasan",
			EmailRaw:         "budi@sekolah.sch.id",
			SourceURL:        "https://dapo.kemdikbud.go.id/sekolah/x",
			SourceConfidence: 0.6,
		},
	}

	leads := NewMerger().Merge(raw, "")
	require.Len(t, leads, 1)

	lead := leads[0]
	assert.Equal(t, "Budi Santoso, S.Pd.", lead.Name, "longest spelling wins")
	assert.Equal(t, 1, lead.Tier, "most senior role wins even from a lower-confidence source")
	assert.Equal(t, "Ketua Yayasan", lead.RoleDisplay)
	require.NotNil(t, lead.WhatsApp)
	assert.Equal(t, "+6281234567890", lead.WhatsApp.Value)
	require.NotNil(t, lead.Email)
	assert.Equal(t, "budi@sekolah.sch.id", lead.Email.Value)
	assert.Equal(t, []string{
		"https://dapo.kemdikbud.go.id/sekolah/x",
		"https://sekolah.sch.id/tentang",
	}, lead.SourceURLs)
}

func TestMergeOrderIndependent(t *testing.T) {
	raw := []model.RawCandidate{
		{Name: "Siti Rahayu", RoleText: "Bendahara", PhoneRaw: "0812-1111-2222", SourceURL: "https://a.example.id", SourceConfidence: 0.5},
		{Name: "Ibu Siti Rahayu", RoleText: "Kepala Sekolah", PhoneRaw: "0812-3333-4444", SourceURL: "https://b.example.id", SourceConfidence: 0.9},
		{Name: "Agus Wijaya", RoleText: "Direktur", SourceURL: "https://a.example.id", SourceConfidence: 0.5},
	}
	reversed := []model.RawCandidate{raw[2], raw[1], raw[0]}

	forward := NewMerger().Merge(raw, "")
	backward := NewMerger().Merge(reversed, "")

	require.Len(t, forward, 2)
	require.Len(t, backward, 2)

	byName := func(leads []model.PersonLead) map[string]model.PersonLead {
		m := make(map[string]model.PersonLead)
		for _, l := range leads {
			m[l.Name] = l
		}
		return m
	}
	f, b := byName(forward), byName(backward)

	for name, lead := range f {
		other, ok := b[name]
		require.True(t, ok, "lead %q missing after reorder", name)
		assert.Equal(t, lead.Tier, other.Tier)
		assert.Equal(t, lead.RoleDisplay, other.RoleDisplay)
		assert.Equal(t, lead.SourceURLs, other.SourceURLs)
		require.Equal(t, lead.WhatsApp == nil, other.WhatsApp == nil,
			"lead %q channel presence differs after reorder", name)
		if lead.WhatsApp != nil {
			assert.Equal(t, lead.WhatsApp.Value, other.WhatsApp.Value)
		}
	}

	siti := f["Ibu Siti Rahayu"]
	if siti.Name == "" {
		siti = f["Siti Rahayu"]
	}
	require.NotNil(t, siti.WhatsApp)
	assert.Equal(t, "+6281233334444", siti.WhatsApp.Value,
		"higher-confidence source supplies the phone regardless of order")
}

func TestMergeTierIgnoresConfidence(t *testing.T) {
	raw := []model.RawCandidate{
		{Name: "Budi Santoso", RoleText: "Ketua Yayasan", SourceConfidence: 0.5},
		{Name: "Budi Santoso", RoleText: "Pembina", SourceConfidence: 0.9},
	}

	for _, ordering := range [][]model.RawCandidate{raw, {raw[1], raw[0]}} {
		leads := NewMerger().Merge(ordering, "")
		require.Len(t, leads, 1)
		assert.Equal(t, 1, leads[0].Tier)
		assert.Equal(t, "Ketua Yayasan", leads[0].RoleDisplay)
	}
}

func TestMergeChannelConfidenceTieKeepsEarlier(t *testing.T) {
	raw := []model.RawCandidate{
		{Name: "Dewi Lestari", RoleText: "Pembina", PhoneRaw: "0811-0000-1111", SourceConfidence: 0.7},
		{Name: "Dewi Lestari", RoleText: "Pembina", PhoneRaw: "0811-2222-3333", SourceConfidence: 0.7},
	}

	leads := NewMerger().Merge(raw, "")
	require.Len(t, leads, 1)
	require.NotNil(t, leads[0].WhatsApp)
	assert.Equal(t, "+6281100001111", leads[0].WhatsApp.Value)
}

func TestMergeSkipsUnusableCandidates(t *testing.T) {
	raw := []model.RawCandidate{
		{Name: "", RoleText: "Kepala Sekolah", PhoneRaw: "081234567890"},
		{Name: "Bapak", RoleText: "Ketua Yayasan"},
		{Name: "Rina Hartati", RoleText: "Wakil Kepala"},
	}

	leads := NewMerger().Merge(raw, "")
	require.Len(t, leads, 1)
	assert.Equal(t, "Rina Hartati", leads[0].Name)
	assert.Equal(t, 5, leads[0].Tier)
}

func TestMergeOrgDomainMarksOrganizationalEmail(t *testing.T) {
	raw := []model.RawCandidate{
		{Name: "Budi Santoso", RoleText: "Kepala Sekolah", EmailRaw: "budi.santoso@smatunasbangsa.sch.id"},
		{Name: "Siti Rahayu", RoleText: "Bendahara", EmailRaw: "siti.rahayu88@gmail.com"},
	}

	leads := NewMerger().Merge(raw, "smatunasbangsa.sch.id")
	require.Len(t, leads, 2)

	byName := map[string]model.PersonLead{}
	for _, l := range leads {
		byName[l.Name] = l
	}

	budi := byName["Budi Santoso"]
	require.NotNil(t, budi.Email)
	assert.False(t, budi.Email.IsPersonal)

	siti := byName["Siti Rahayu"]
	require.NotNil(t, siti.Email)
	assert.True(t, siti.Email.IsPersonal)
}

func TestMergeKeepsUnparseableChannelsOff(t *testing.T) {
	raw := []model.RawCandidate{
		{Name: "Joko Susilo", RoleText: "Operator Sekolah", PhoneRaw: "not a number", EmailRaw: "broken@@example"},
	}

	leads := NewMerger().Merge(raw, "")
	require.Len(t, leads, 1)
	assert.Nil(t, leads[0].WhatsApp)
	assert.Nil(t, leads[0].Email)
	assert.False(t, leads[0].HasContact())
}

func TestNameKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Bapak Budi Santoso", "budi santoso"},
		{"BUDI SANTOSO, S.Pd.", "budi santoso"},
		{"Dr. H. Agus Wijaya", "agus wijaya"},
		{"Stéphanie Rémy", "stephanie remy"},
		{"  Ibu   Siti   Rahayu ", "siti rahayu"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NameKey(tt.in), "input %q", tt.in)
	}
}

func TestCleanNamePreservesCasing(t *testing.T) {
	assert.Equal(t, "Siti Rahayu", CleanName("Ibu Siti Rahayu"))
	assert.Equal(t, "Budi Santoso, S.Pd.", CleanName("Bapak Budi Santoso, S.Pd."))
}
