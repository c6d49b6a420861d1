package placeholder

import (
	"context"

	"go.uber.org/zap"

	"github.com/dynodocs/template-engine/internal/session"
	"github.com/dynodocs/template-engine/internal/tenant"
)

// Provider supplies the placeholder map used to resolve a design
type Provider interface {
	Placeholders(ctx context.Context) Map
}

// Tokens understood by the tenant-aware renderer and editor
var (
	AgencyName       = Token("agency_name")
	AgencyLogoURL    = Token("agency_logo_url")
	HeroImageURL     = Token("hero_image_url")
	FooterTextureURL = Token("footer_texture_url")
	ContactPhone     = Token("contact_phone")
	ContactWebsite   = Token("contact_website")
	ContactAddress   = Token("contact_address")
	TourismBoardLogo = Token("tourism_board_logo")
	CoverImageURL    = Token("cover_image_url")
)

// Tokens understood by the marketplace preview
var (
	ReportTitle        = Token("report_title")
	CustomerName       = Token("customer_name")
	DestinationCity    = Token("destination_city")
	DestinationCountry = Token("destination_country")
	BottomLogo         = Token("bottom_logo")
	TripLength         = Token("trip_length")
	TravelerCount      = Token("traveler_count")
	SummaryHighlights  = Token("summary_highlights")
	GeneratedDate      = Token("generated_date")
)

// TenantDefaults returns the values used for tenant tokens before any
// tenant data is known
func TenantDefaults() Map {
	return Map{
		AgencyName:       "Your Travel Agency",
		AgencyLogoURL:    "https://placehold.co/240x80/png?text=Agency+Logo",
		HeroImageURL:     "https://images.unsplash.com/photo-1469854523086-cc02fe5d8800?w=1200&q=80",
		FooterTextureURL: "https://images.unsplash.com/photo-1502082553048-f009c37129b9?w=1200&q=60",
		ContactPhone:     "+1 (555) 010-0199",
		ContactWebsite:   "www.youragency.travel",
		ContactAddress:   "123 Harbour Street, Suite 4",
		TourismBoardLogo: "https://placehold.co/160x60/png?text=Tourism+Board",
		CoverImageURL:    DefaultCoverImage,
	}
}

// SampleDefaults returns the sample values shown in marketplace previews
func SampleDefaults() Map {
	return Map{
		ReportTitle:        "Your Personalized Travel Report",
		CustomerName:       "Alex Morgan",
		DestinationCity:    "Lisbon",
		DestinationCountry: "Portugal",
		BottomLogo:         "https://placehold.co/200x60/png?text=DynoDocs",
		TripLength:         "7 nights",
		TravelerCount:      "2 travelers",
		SummaryHighlights:  "Tram 28 through Alfama, sunset at Miradouro da Senhora do Monte, day trip to Sintra.",
		GeneratedDate:      "March 14, 2025",
		CoverImageURL:      DefaultCoverImage,
	}
}

// SampleProvider serves the fixed marketplace sample values
type SampleProvider struct{}

// Placeholders returns the sample map
func (SampleProvider) Placeholders(ctx context.Context) Map {
	return SampleDefaults()
}

// TenantProvider resolves tenant tokens from the caller's tenant branding,
// falling back to TenantDefaults for anything missing
type TenantProvider struct {
	Source  tenant.Source
	Session session.Context
	Logger  *zap.Logger
}

// Placeholders returns the defaults merged with the tenant overrides.
// A failed lookup quietly yields the defaults.
func (p *TenantProvider) Placeholders(ctx context.Context) Map {
	defaults := TenantDefaults()

	sc := p.Session
	if sc == nil {
		sc = session.FromContext(ctx)
	}
	tenantID := sc.TenantID()
	if p.Source == nil || tenantID == "" {
		return defaults
	}

	info, err := p.Source.Tenant(ctx, tenantID)
	if err != nil {
		p.logger().Debug("tenant lookup failed, using default placeholders",
			zap.String("tenant_id", tenantID), zap.Error(err))
		return defaults
	}

	return defaults.Merge(FromTenant(info))
}

func (p *TenantProvider) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

// FromTenant maps tenant branding onto tenant tokens. Raw base64 logos are
// turned into data URIs.
func FromTenant(info *tenant.Info) Map {
	if info == nil {
		return Map{}
	}
	return Map{
		AgencyName:     info.AgencyName,
		AgencyLogoURL:  NormalizeImageValue(info.Logo),
		ContactPhone:   info.ContactPhone,
		ContactAddress: info.Address,
		ContactWebsite: info.Website,
	}
}

// Static is a Provider over a fixed map
type Static Map

// Placeholders returns a copy of the map
func (s Static) Placeholders(ctx context.Context) Map {
	return Map(s).Clone()
}
