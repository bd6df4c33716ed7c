package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/funcsim-mcp/internal/config"
	"github.com/dshills/funcsim-mcp/internal/ghidra"
	"github.com/dshills/funcsim-mcp/internal/ingest"
	"github.com/dshills/funcsim-mcp/internal/logging"
	"github.com/dshills/funcsim-mcp/internal/ranker"
	"github.com/dshills/funcsim-mcp/internal/resolver"
	"github.com/dshills/funcsim-mcp/internal/service"
	"github.com/dshills/funcsim-mcp/internal/session"
	"github.com/dshills/funcsim-mcp/internal/signature"
	"github.com/dshills/funcsim-mcp/internal/storage"
)

// app holds the wired components shared by every subcommand
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	conn   *session.Connector
	svc    *service.Service
}

// loadApp reads configuration named by the --config flag and wires the service.
func loadApp(cmd *cobra.Command) (*app, error) {
	cfgPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	// stdout is reserved for the MCP protocol
	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	return newApp(cfg, logger)
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	var cat *signature.Catalog
	if cfg.Catalog.Path != "" {
		loaded, err := signature.LoadCatalog(cfg.Catalog.Path)
		if err != nil {
			return nil, fmt.Errorf("loading catalog: %w", err)
		}
		cat = loaded
		logger.Info("catalog loaded", "path", cfg.Catalog.Path, "functions", cat.FunctionCount())
	}
	catalog := signature.NewCatalogProvider(cat)
	signatures := signature.NewCachedProvider(catalog, cfg.Catalog.CacheSize)

	conn := session.NewConnector(session.StoreOpener{Pool: cfg.Store.Postgres.Pool()}, logger)

	client, err := ghidra.NewClient(cfg.Ghidra.ClientConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("creating ghidra client: %w", err)
	}

	svc := service.New(service.Deps{
		Connector:  conn,
		Catalog:    catalog,
		Signatures: signatures,
		Ranker:     ranker.New(conn, signatures, cfg.Ranker.RankerSettings(), logger),
		Resolver:   resolver.New(conn, client, client, cfg.Resolver.Budgets(), logger),
		Ingester:   ingest.New(conn, ingest.Config{Workers: cfg.Ingest.Workers}, logger),
		Logger:     logger,
	})

	return &app{cfg: cfg, logger: logger, conn: conn, svc: svc}, nil
}

// connectDefault opens store.default when one is configured
func (a *app) connectDefault(ctx context.Context) error {
	if a.cfg.Store.Default == "" {
		return nil
	}
	status, err := a.svc.ConnectStore(ctx, a.cfg.Store.Default)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", a.cfg.Store.Default, err)
	}
	attrs := []any{"location", status.Location, "kind", status.Kind}
	if status.Store != nil {
		attrs = append(attrs, "functions", status.Store.Functions)
	}
	a.logger.Info("store connected", attrs...)
	return nil
}

func (a *app) close() {
	if _, err := a.svc.DisconnectStore(); err != nil {
		a.logger.Warn("disconnect failed", "error", err)
	}
}

func startupAttrs() []any {
	return []any{
		"build_mode", storage.BuildMode,
		"driver", storage.DriverName,
		"vector_extension", storage.VectorExtensionAvailable,
	}
}
