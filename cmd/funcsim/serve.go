package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/funcsim-mcp/internal/mcp"
	"github.com/dshills/funcsim-mcp/internal/observability"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP tools on stdio",
		Long:  "Connect the configured default store, expose metrics if enabled, and answer MCP requests on stdin/stdout.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.logger.Info("funcsim starting", append([]any{"version", version}, startupAttrs()...)...)

	if err := a.connectDefault(ctx); err != nil {
		// The client can still select a store through bsim_select_database
		a.logger.Warn("default store unavailable", "error", err)
	}

	if addr := a.cfg.Metrics.Listen; addr != "" {
		go func() {
			if err := observability.Serve(ctx, addr, a.logger); err != nil {
				a.logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	server, err := mcp.NewServer(a.svc, a.logger)
	if err != nil {
		return err
	}

	a.logger.Info("MCP server ready, listening on stdio")
	if err := server.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Info("server stopped")
	return nil
}
