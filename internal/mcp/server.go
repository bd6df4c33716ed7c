package mcp

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/funcsim-mcp/internal/logging"
	"github.com/dshills/funcsim-mcp/internal/observability"
	"github.com/dshills/funcsim-mcp/internal/service"
)

const (
	// ServerName is the MCP server name
	ServerName = "funcsim-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp    *server.MCPServer
	svc    *service.Service
	logger *slog.Logger
}

// toolEntry pairs a tool definition with its handler
type toolEntry struct {
	tool    mcp.Tool
	handler server.ToolHandlerFunc
}

// NewServer creates a new MCP server instance
func NewServer(svc *service.Service, logger *slog.Logger) (*Server, error) {
	if svc == nil {
		return nil, errors.New("service is required")
	}

	s := &Server{
		mcp: server.NewMCPServer(
			ServerName,
			ServerVersion,
			server.WithToolCapabilities(false),
		),
		svc:    svc,
		logger: logging.OrNoop(logger),
	}

	s.registerTools()
	return s, nil
}

// Serve runs the MCP server on stdio until ctx is cancelled or stdin closes
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// tools lists every tool the server exposes
func (s *Server) tools() []toolEntry {
	return []toolEntry{
		{selectDatabaseTool(), s.handleSelectDatabase},
		{disconnectTool(), s.handleDisconnect},
		{statusTool(), s.handleStatus},
		{queryFunctionTool(), s.handleQueryFunction},
		{queryAllFunctionsTool(), s.handleQueryAllFunctions},
		{matchDisassemblyTool(), s.handleMatchDisassembly},
		{matchDecompileTool(), s.handleMatchDecompile},
		{findExactMatchTool(), s.handleFindExactMatch},
		{createDatabaseTool(), s.handleCreateDatabase},
		{ingestCatalogTool(), s.handleIngestCatalog},
		{loadCatalogTool(), s.handleLoadCatalog},
	}
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	for _, t := range s.tools() {
		s.mcp.AddTool(t.tool, s.instrument(t.tool.Name, t.handler))
	}
}

// instrument counts calls per tool and result
func (s *Server) instrument(name string, next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := next(ctx, request)
		observability.ToolCallsTotal.WithLabelValues(name, resultLabel(err)).Inc()
		if err != nil {
			s.logger.Debug("tool call failed", "tool", name, "error", err)
		}
		return result, err
	}
}
