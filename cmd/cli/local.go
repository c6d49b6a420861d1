package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	"github.com/dynodocs/template-engine/internal/editor"
	"github.com/dynodocs/template-engine/internal/placeholder"
	"github.com/dynodocs/template-engine/internal/preview"
	"github.com/dynodocs/template-engine/internal/renderer"
	"github.com/dynodocs/template-engine/internal/tenant"
	"github.com/dynodocs/template-engine/internal/tui"
	"github.com/dynodocs/template-engine/pkg/designformat"
)

var (
	renderOut     string
	renderWidth   float64
	renderSample  bool
	tenantsPath   string
	useServer     bool
	editRemote    bool
	editWidth     float64
	placeholderKV []string
)

var renderCmd = &cobra.Command{
	Use:   "render <design-file>",
	Short: "Render a design file to PNG, JPEG or HTML",
	Long: `Renders the first page of a design file. The output format follows the
extension of --out (.png, .jpg, .html). Placeholders come from the sample
vocabulary (--sample), a tenant (--tenant with --tenants or --use-server)
or tenant defaults. Local image paths resolve inside the design file's
directory.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := designformat.ParseFile(args[0])
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		provider, err := localProvider()
		if err != nil {
			return err
		}
		tree := renderer.Layout(d, provider.Placeholders(ctx), renderWidth)

		out := renderOut
		if out == "" {
			out = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + ".png"
		}

		switch strings.ToLower(filepath.Ext(out)) {
		case ".html", ".htm":
			html, err := renderer.RenderHTMLTitled(tree, filepath.Base(args[0]))
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, html, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
		default:
			r := renderer.NewRasterizer(logger)
			loader := renderer.NewSourceLoader()
			loader.BaseDir = filepath.Dir(args[0])
			loader.AllowPrivate = true
			r.Loader = loader
			img, err := r.Render(ctx, tree)
			if err != nil {
				return err
			}
			if err := imaging.Save(img, out); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Rendered %s (%.0fx%.0f)\n", out, tree.Width, tree.Height)
		return nil
	},
}

var tokensCmd = &cobra.Command{
	Use:   "tokens <design-file>",
	Short: "List the placeholder tokens a design uses",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := designformat.ParseFile(args[0])
		if err != nil {
			return err
		}
		for _, tok := range preview.DesignTokens(d) {
			fmt.Fprintln(cmd.OutOrStdout(), tok)
		}
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <design-file>",
	Short: "Check a design file for structural problems",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := designformat.ParseFile(args[0])
		if err != nil {
			return err
		}
		if err := designformat.Validate(d); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is valid (%d pages)\n", args[0], len(d.Pages))
		return nil
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <design-file | template-id>",
	Short: "Edit a design in the terminal",
	Long: `Opens the terminal editor. A local file is saved back in place; with
--remote the argument is a template ID loaded from and saved to the server.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		tracker := editor.NewTracker()
		opts := editor.Options{
			TemplateID:     args[0],
			Session:        identity(),
			Tracker:        tracker,
			ContainerWidth: editWidth,
			Logger:         logger,
		}
		title := args[0]

		if editRemote {
			c := client()
			loadCtx, cancel := context.WithTimeout(ctx, timeout)
			t, err := c.Template(loadCtx, args[0])
			cancel()
			if err != nil {
				return err
			}
			opts.Markup = t.Design
			opts.Saver = c
			opts.Provider = &placeholder.TenantProvider{Source: c, Session: identity(), Logger: logger}
			title = t.Name
		} else {
			data, err := os.ReadFile(args[0])
			if err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to read design: %w", err)
			}
			opts.Markup = string(data)
			opts.Saver = editor.FileSaver{Path: args[0]}
			provider, err := localProvider()
			if err != nil {
				return err
			}
			opts.Provider = provider
		}

		s := editor.Open(ctx, opts)
		return tui.New(ctx, s, tracker, title).Run()
	},
}

func init() {
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "", "Output file (default: design name with .png)")
	renderCmd.Flags().Float64VarP(&renderWidth, "width", "w", designformat.BaseWidth, "Target width in pixels (never upscaled)")

	for _, c := range []*cobra.Command{renderCmd, editCmd} {
		c.Flags().BoolVar(&renderSample, "sample", false, "Use the marketplace sample vocabulary")
		c.Flags().StringVar(&tenantsPath, "tenants", "", "Local tenant registry file for --tenant")
		c.Flags().BoolVar(&useServer, "use-server", false, "Fetch --tenant branding from the server")
		c.Flags().StringArrayVar(&placeholderKV, "set", nil, "Override a placeholder, e.g. --set agency_name=Acme")
	}

	editCmd.Flags().BoolVar(&editRemote, "remote", false, "Treat the argument as a template ID on the server")
	editCmd.Flags().Float64Var(&editWidth, "width", designformat.BaseWidth, "Container width the drag scale is based on")
}

// localProvider picks the placeholder source for local rendering and editing
func localProvider() (placeholder.Provider, error) {
	overrides := placeholder.Map{}
	for _, kv := range placeholderKV {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --set %q, want key=value", kv)
		}
		overrides[placeholder.Token(strings.Trim(key, "{} "))] = value
	}

	var base placeholder.Provider
	switch {
	case renderSample:
		base = placeholder.SampleProvider{}
	case useServer:
		base = &placeholder.TenantProvider{Source: client(), Session: identity(), Logger: logger}
	case tenantsPath != "":
		reg, err := tenant.NewRegistry(tenantsPath)
		if err != nil {
			return nil, err
		}
		base = &placeholder.TenantProvider{Source: reg, Session: identity(), Logger: logger}
	default:
		base = placeholder.Static(placeholder.TenantDefaults())
	}

	if len(overrides) == 0 {
		return base, nil
	}
	return overrideProvider{base: base, overrides: overrides}, nil
}

type overrideProvider struct {
	base      placeholder.Provider
	overrides placeholder.Map
}

func (p overrideProvider) Placeholders(ctx context.Context) placeholder.Map {
	return p.base.Placeholders(ctx).Merge(p.overrides)
}
