package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the funcsim command. Without a subcommand it serves MCP on stdio.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "funcsim",
		Short:         "Binary function similarity search over MCP",
		Long:          "funcsim answers similarity queries against a function signature store and resolves matches through a Ghidra plugin.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")

	root.AddCommand(
		newServeCmd(),
		newCreateCmd(),
		newIngestCmd(),
		newVersionCmd(),
	)

	return root
}
