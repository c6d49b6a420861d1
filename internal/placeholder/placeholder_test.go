package placeholder

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dynodocs/template-engine/internal/session"
	"github.com/dynodocs/template-engine/internal/tenant"
)

func TestResolveText_EveryKnownToken(t *testing.T) {
	for _, m := range []Map{TenantDefaults(), SampleDefaults()} {
		for token, want := range m {
			text := "before " + token + " middle " + token + " after"
			got := ResolveText(text, m)

			assert.NotContains(t, got, token)
			assert.Equal(t, "before "+want+" middle "+want+" after", got)
		}
	}
}

func TestResolveText_UnknownTokensVerbatim(t *testing.T) {
	m := Map{AgencyName: "Acme Travel"}

	got := ResolveText("{{agency_name}} presents {{not_wired_yet}}", m)
	assert.Equal(t, "Acme Travel presents {{not_wired_yet}}", got)
}

func TestResolveText_LiteralMatching(t *testing.T) {
	m := Map{"{{a.b}}": "dot", AgencyName: "Acme"}

	// no wildcard semantics: "{{axb}}" must not match "{{a.b}}"
	assert.Equal(t, "{{axb}} dot", ResolveText("{{axb}} {{a.b}}", m))
	// spacing inside braces is a different token
	assert.Equal(t, "{{ agency_name }}", ResolveText("{{ agency_name }}", m))
}

func TestResolveText_SinglePass(t *testing.T) {
	m := Map{AgencyName: "{{contact_phone}}", ContactPhone: "555"}

	assert.Equal(t, "{{contact_phone}}", ResolveText(AgencyName, m))
}

func TestResolveText_EndToEnd(t *testing.T) {
	got := ResolveText("Hello {{agency_name}}", Map{"{{agency_name}}": "Acme Travel"})
	assert.Equal(t, "Hello Acme Travel", got)
}

func TestResolveImageSource(t *testing.T) {
	m := Map{
		AgencyLogoURL: "https://cdn.example.com/logo.png",
		CoverImageURL: "https://cdn.example.com/cover.jpg",
	}

	tests := []struct {
		name     string
		src      string
		fallback string
		want     string
	}{
		{"absolute url wins over fallback", "https://img.example.com/a.png", CoverImageURL, "https://img.example.com/a.png"},
		{"data uri as-is", "data:image/png;base64,AAAA", CoverImageURL, "data:image/png;base64,AAAA"},
		{"known token wins over fallback", AgencyLogoURL, CoverImageURL, "https://cdn.example.com/logo.png"},
		{"unknown token uses resolved fallback", "{{mystery}}", CoverImageURL, "https://cdn.example.com/cover.jpg"},
		{"empty src uses fallback", "", "https://img.example.com/b.png", "https://img.example.com/b.png"},
		{"unresolvable fallback uses default", "{{mystery}}", "{{also_unknown}}", DefaultCoverImage},
		{"nothing set uses default", "", "", DefaultCoverImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveImageSource(tt.src, tt.fallback, m)
			assert.Equal(t, tt.want, got)
			assert.NotEmpty(t, got)
		})
	}
}

func TestNormalizeImageValue(t *testing.T) {
	assert.Equal(t, "", NormalizeImageValue(""))
	assert.Equal(t, "https://x/y.png", NormalizeImageValue("https://x/y.png"))
	assert.Equal(t, "data:image/jpeg;base64,AA", NormalizeImageValue("data:image/jpeg;base64,AA"))
	assert.Equal(t, "data:image/png;base64,iVBORw0KGgo", NormalizeImageValue("iVBORw0KGgo"))
}

func TestTokens(t *testing.T) {
	got := Tokens("{{b}} and {{a}} and {{b}} but not {{ c }} or {a}")
	assert.Equal(t, []string{"{{b}}", "{{a}}"}, got)
}

func TestMerge_SkipsEmptyOverrides(t *testing.T) {
	base := Map{AgencyName: "Default Agency", ContactPhone: "000"}
	merged := base.Merge(Map{AgencyName: "", ContactPhone: "555"})

	assert.Equal(t, "Default Agency", merged[AgencyName])
	assert.Equal(t, "555", merged[ContactPhone])
	assert.Equal(t, "000", base[ContactPhone], "merge must not mutate the receiver")
}

type fakeSource struct {
	info *tenant.Info
	err  error
}

func (f fakeSource) Tenant(ctx context.Context, tenantID string) (*tenant.Info, error) {
	return f.info, f.err
}

func TestTenantProvider_Overrides(t *testing.T) {
	p := &TenantProvider{
		Source: fakeSource{info: &tenant.Info{
			ID:           "acme",
			AgencyName:   "Acme Travel",
			Logo:         "iVBORw0KGgo",
			ContactPhone: "+44 20 7946 0000",
		}},
		Session: session.Static{Tenant: "acme"},
	}

	m := p.Placeholders(context.Background())
	assert.Equal(t, "Acme Travel", m[AgencyName])
	assert.Equal(t, "data:image/png;base64,iVBORw0KGgo", m[AgencyLogoURL])
	assert.Equal(t, "+44 20 7946 0000", m[ContactPhone])
	// not supplied by the tenant: default survives
	assert.Equal(t, TenantDefaults()[ContactAddress], m[ContactAddress])
}

func TestTenantProvider_LookupFailureUsesDefaults(t *testing.T) {
	p := &TenantProvider{
		Source:  fakeSource{err: errors.New("connection refused")},
		Session: session.Static{Tenant: "acme"},
	}

	assert.Equal(t, TenantDefaults(), p.Placeholders(context.Background()))
}

func TestTenantProvider_SessionFromContext(t *testing.T) {
	p := &TenantProvider{Source: fakeSource{info: &tenant.Info{AgencyName: "Ctx Travel"}}}

	ctx := session.WithContext(context.Background(), session.Static{Tenant: "ctx"})
	assert.Equal(t, "Ctx Travel", p.Placeholders(ctx)[AgencyName])

	// no tenant at all
	assert.Equal(t, TenantDefaults(), p.Placeholders(context.Background()))
}

func TestVocabulariesStayDistinct(t *testing.T) {
	sample := SampleDefaults()
	tenantMap := TenantDefaults()

	_, ok := sample[AgencyName]
	assert.False(t, ok)
	_, ok = tenantMap[ReportTitle]
	assert.False(t, ok)

	for k, v := range sample {
		require.NotEmpty(t, v, k)
		require.True(t, strings.HasPrefix(k, "{{"))
	}
}
