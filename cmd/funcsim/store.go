package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <path>",
		Short: "Create an empty embedded store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			status, err := a.svc.CreateStore(cmd.Context(), args[0], false)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", status.Location)
			return err
		},
	}
}

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <catalog>",
		Short: "Write a signature catalog into a store",
		Long:  "Connect to --store (or store.default) and upsert every program and function of the catalog file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if location, _ := cmd.Flags().GetString("store"); location != "" {
				a.cfg.Store.Default = location
			}
			if a.cfg.Store.Default == "" {
				return fmt.Errorf("no store: pass --store or set store.default")
			}
			if err := a.connectDefault(cmd.Context()); err != nil {
				return err
			}

			stats, err := a.svc.IngestCatalog(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintf(out, "ingested %d functions from %d programs (%d failed) in %s\n",
				stats.FunctionsIngested, stats.Programs, stats.FunctionsFailed, stats.Duration); err != nil {
				return err
			}
			for _, msg := range stats.ErrorMessages {
				if _, err := fmt.Fprintf(out, "  %s\n", msg); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().String("store", "", "store location (file path or postgres:// URL)")
	return cmd
}
