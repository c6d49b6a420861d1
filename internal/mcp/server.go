// Package mcpserver exposes template previews as MCP tools over stdio
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dynodocs/template-engine/internal/placeholder"
	"github.com/dynodocs/template-engine/internal/preview"
	"github.com/dynodocs/template-engine/internal/session"
	"github.com/dynodocs/template-engine/internal/store"
)

// Templates lists stored templates
type Templates interface {
	List(ctx context.Context) ([]store.Summary, error)
}

// Deps holds what the tools read from
type Deps struct {
	Templates Templates
	Preview   *preview.Service
	Logger    *zap.Logger
}

// Server is the MCP server for template previews
type Server struct {
	mcp       *server.MCPServer
	templates Templates
	preview   *preview.Service
	logger    *zap.Logger
}

// New creates the server and registers its tools
func New(deps Deps, version string) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		templates: deps.Templates,
		preview:   deps.Preview,
		logger:    logger,
	}

	s.mcp = server.NewMCPServer(
		"dynodocs-templates",
		version,
		server.WithToolCapabilities(true),
	)
	s.registerTools()

	return s
}

// ServeStdio serves on stdin/stdout until the input closes
func (s *Server) ServeStdio() error {
	s.logger.Info("starting MCP stdio server")
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("list_templates",
		mcp.WithDescription("List stored templates with their IDs and names"),
	), s.handleListTemplates)

	s.mcp.AddTool(mcp.NewTool("get_template_tokens",
		mcp.WithDescription("List the placeholder tokens a template uses"),
		mcp.WithString("templateId", mcp.Description("Template ID"), mcp.Required()),
	), s.handleTemplateTokens)

	s.mcp.AddTool(mcp.NewTool("resolve_text",
		mcp.WithDescription("Replace placeholder tokens in text with tenant or sample values"),
		mcp.WithString("text", mcp.Description("Text containing {{tokens}}"), mcp.Required()),
		mcp.WithString("tenantId", mcp.Description("Tenant whose profile supplies values (optional)")),
		mcp.WithBoolean("sample", mcp.Description("Use the marketplace sample vocabulary instead")),
	), s.handleResolveText)

	s.mcp.AddTool(mcp.NewTool("render_template_html",
		mcp.WithDescription("Render a stored template to a standalone HTML document"),
		mcp.WithString("templateId", mcp.Description("Template ID"), mcp.Required()),
		mcp.WithNumber("width", mcp.Description("Container width in pixels (optional, defaults to 595)")),
		mcp.WithString("tenantId", mcp.Description("Tenant whose profile supplies values (optional)")),
		mcp.WithBoolean("sample", mcp.Description("Use the marketplace sample vocabulary instead")),
	), s.handleRenderHTML)
}

func (s *Server) handleListTemplates(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.templates.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return jsonResult(list)
}

func (s *Server) handleTemplateTokens(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("templateId", "")
	if id == "" {
		return nil, fmt.Errorf("templateId is required")
	}
	tokens, err := s.preview.Tokens(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("template tokens: %w", err)
	}
	return jsonResult(tokens)
}

func (s *Server) handleResolveText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := req.GetString("text", "")
	m := s.provider(req).Placeholders(ctx)
	return textResult(placeholder.ResolveText(text, m)), nil
}

func (s *Server) handleRenderHTML(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("templateId", "")
	if id == "" {
		return nil, fmt.Errorf("templateId is required")
	}
	width := getFloat(req.GetArguments(), "width", 0)

	out, err := s.preview.HTML(ctx, id, width, s.provider(req))
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	return textResult(string(out)), nil
}

func (s *Server) provider(req mcp.CallToolRequest) placeholder.Provider {
	if sample, _ := req.GetArguments()["sample"].(bool); sample {
		return placeholder.SampleProvider{}
	}
	return s.preview.TenantProvider(session.Static{Tenant: req.GetString("tenantId", "")})
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

func getFloat(args map[string]any, key string, fallback float64) float64 {
	if v, ok := args[key].(float64); ok {
		return v
	}
	return fallback
}
