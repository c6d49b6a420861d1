package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dynodocs/template-engine/internal/api"
	"github.com/dynodocs/template-engine/internal/config"
	"github.com/dynodocs/template-engine/internal/jobs"
	"github.com/dynodocs/template-engine/internal/logging"
	mcpserver "github.com/dynodocs/template-engine/internal/mcp"
	"github.com/dynodocs/template-engine/internal/preview"
	"github.com/dynodocs/template-engine/internal/store"
	"github.com/dynodocs/template-engine/internal/tenant"
	"github.com/dynodocs/template-engine/internal/watch"
)

// Version is set during build via ldflags
var Version = "dev"

var (
	configPath string
	port       string
	verbose    bool
	mcpMode    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "dynodocs-server",
	Short: "DynoDocs template service",
	Long: `Serves stored template designs over HTTP: previews, tenant branding,
render jobs and live change events. With --mcp it serves the same
templates as MCP tools on stdin/stdout instead.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if port != "" {
			host, _, splitErr := net.SplitHostPort(cfg.Server.Addr)
			if splitErr != nil {
				host = "0.0.0.0"
			}
			cfg.Server.Addr = net.JoinHostPort(host, port)
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}

		// stdout carries protocol frames in MCP mode
		if mcpMode {
			logger, err = logging.Stderr(cfg.Logging.Level)
		} else {
			logger, err = logging.New(cfg.Logging.Level, cfg.Logging.JSON)
		}
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if mcpMode {
			return runMCP(ctx)
		}
		return runServer(ctx)
	},
}

var initConfigCmd = &cobra.Command{
	Use:   "init-config [path]",
	Short: "Write the effective configuration as YAML",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			path = filepath.Join(config.DefaultDataDir(), "config.yaml")
		}
		if err := cfg.Save(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.Flags().StringVar(&port, "port", "", "Listen port (overrides config and SERVER_PORT)")
	rootCmd.Flags().BoolVar(&mcpMode, "mcp", false, "Serve MCP tools on stdin/stdout instead of HTTP")
	rootCmd.AddCommand(initConfigCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type services struct {
	store   *store.Store
	tenants *tenant.Registry
	preview *preview.Service
}

func openServices() (*services, error) {
	st, err := store.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, err
	}
	tenants, err := tenant.NewRegistry(cfg.Storage.TenantsPath)
	if err != nil {
		st.Close()
		return nil, err
	}

	pv := preview.New(st, tenants, logger)
	for family, path := range cfg.FontMap() {
		pv.Rasterizer.Fonts[family] = path
	}

	logger.Info("storage ready",
		zap.String("database", cfg.Storage.DatabasePath),
		zap.String("tenants", cfg.Storage.TenantsPath))
	return &services{store: st, tenants: tenants, preview: pv}, nil
}

func runServer(ctx context.Context) error {
	svc, err := openServices()
	if err != nil {
		return err
	}
	defer svc.store.Close()

	hub := api.NewHub(logger)
	defer hub.Close()

	queue := jobs.NewQueue(svc.preview.RenderJob, cfg.Render.MaxRetries,
		jobs.WithRetryDelay(cfg.RetryDelay()),
		jobs.WithLogger(logger),
		jobs.OnDone(hub.BroadcastJob),
	)
	defer queue.Stop()

	watcher := watch.New(svc.store, cfg.WatchInterval(), hub.BroadcastChange, logger)
	watcher.Start()
	defer watcher.Stop()

	server := api.NewServer(api.Options{
		Store:        svc.store,
		Tenants:      svc.tenants,
		Queue:        queue,
		Preview:      svc.preview,
		Hub:          hub,
		JWTSecret:    cfg.Auth.JWTSecret,
		AllowOrigins: cfg.Server.AllowOrigins,
		Logger:       logger,
	})

	if cfg.Auth.JWTSecret == "" {
		logger.Warn("no JWT secret configured, trusting X-Tenant-ID and X-User-ID headers")
	}
	logger.Info("DynoDocs template service starting", zap.String("version", Version))
	return server.Run(ctx, cfg.Server.Addr)
}

func runMCP(ctx context.Context) error {
	svc, err := openServices()
	if err != nil {
		return err
	}
	defer svc.store.Close()

	srv := mcpserver.New(mcpserver.Deps{
		Templates: svc.store,
		Preview:   svc.preview,
		Logger:    logger,
	}, Version)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeStdio() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	}
}
