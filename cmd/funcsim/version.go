package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/funcsim-mcp/internal/mcp"
	"github.com/dshills/funcsim-mcp/internal/storage"
)

// Build-time variables set via ldflags.
var (
	version   = "dev"
	buildTime = "unknown"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(),
				"%s %s (built: %s)\nBuild Mode: %s\nSQLite Driver: %s\nVector Extension: %v\n",
				mcp.ServerName, version, buildTime,
				storage.BuildMode, storage.DriverName, storage.VectorExtensionAvailable)
			return err
		},
	}
}
