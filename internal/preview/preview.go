// Package preview loads stored templates and renders them for a caller
package preview

import (
	"bytes"
	"context"
	"fmt"
	"image/png"

	"go.uber.org/zap"

	"github.com/dynodocs/template-engine/internal/jobs"
	"github.com/dynodocs/template-engine/internal/placeholder"
	"github.com/dynodocs/template-engine/internal/renderer"
	"github.com/dynodocs/template-engine/internal/session"
	"github.com/dynodocs/template-engine/internal/store"
	"github.com/dynodocs/template-engine/internal/tenant"
	"github.com/dynodocs/template-engine/pkg/designformat"
)

// Templates loads stored templates
type Templates interface {
	Get(ctx context.Context, id string) (*store.Template, error)
}

// Service renders stored templates
type Service struct {
	Templates  Templates
	Tenants    tenant.Source
	Rasterizer *renderer.Rasterizer
	Logger     *zap.Logger
}

// New creates a preview service
func New(templates Templates, tenants tenant.Source, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		Templates:  templates,
		Tenants:    tenants,
		Rasterizer: renderer.NewRasterizer(logger),
		Logger:     logger,
	}
}

// TenantProvider returns the tenant placeholder provider for sc
func (s *Service) TenantProvider(sc session.Context) placeholder.Provider {
	return &placeholder.TenantProvider{Source: s.Tenants, Session: sc, Logger: s.Logger}
}

// Tree loads template id and lays it out with the provider's placeholders
func (s *Service) Tree(ctx context.Context, id string, width float64, p placeholder.Provider) (*renderer.Tree, error) {
	t, err := s.Templates.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	var m placeholder.Map
	if p != nil {
		m = p.Placeholders(ctx)
	}
	d := designformat.ParseOrDefault(t.Design)
	return renderer.Layout(d, m, width), nil
}

// HTML renders template id as an HTML document
func (s *Service) HTML(ctx context.Context, id string, width float64, p placeholder.Provider) ([]byte, error) {
	tree, err := s.Tree(ctx, id, width, p)
	if err != nil {
		return nil, err
	}
	return renderer.RenderHTML(tree)
}

// Fragment renders template id as a bare page element for embedding
func (s *Service) Fragment(ctx context.Context, id string, width float64, p placeholder.Provider) ([]byte, error) {
	tree, err := s.Tree(ctx, id, width, p)
	if err != nil {
		return nil, err
	}
	return renderer.RenderFragment(tree)
}

// PNG renders template id as a PNG image
func (s *Service) PNG(ctx context.Context, id string, width float64, p placeholder.Provider) ([]byte, error) {
	tree, err := s.Tree(ctx, id, width, p)
	if err != nil {
		return nil, err
	}
	img, err := s.Rasterizer.Render(ctx, tree)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Tokens lists the placeholder tokens a template references
func (s *Service) Tokens(ctx context.Context, id string) ([]string, error) {
	t, err := s.Templates.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return DesignTokens(designformat.ParseOrDefault(t.Design)), nil
}

// DesignTokens lists the tokens used by the text, image and pill fields of
// every page, in order of first appearance
func DesignTokens(d *designformat.Design) []string {
	seen := make(map[string]bool)
	out := make([]string, 0)
	add := func(text string) {
		for _, tok := range placeholder.Tokens(text) {
			if !seen[tok] {
				seen[tok] = true
				out = append(out, tok)
			}
		}
	}
	for _, page := range d.Pages {
		for _, el := range page.Elements {
			add(el.Content)
			add(el.Src)
			add(el.Fallback)
			add(el.Label)
			add(el.Value)
		}
	}
	return out
}

// RenderJob renders a queued job for the tenant it names
func (s *Service) RenderJob(ctx context.Context, job jobs.Job) ([]byte, string, error) {
	p := s.TenantProvider(session.Static{Tenant: job.TenantID})
	switch job.Format {
	case jobs.FormatHTML:
		out, err := s.HTML(ctx, job.TemplateID, job.Width, p)
		return out, "text/html; charset=utf-8", err
	default:
		out, err := s.PNG(ctx, job.TemplateID, job.Width, p)
		return out, "image/png", err
	}
}
