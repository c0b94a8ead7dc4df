package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <catalog.yaml>",
	Short: "Seed the local replica from a YAML catalog file",
	Long: `Import loads panels with their gene memberships, gene symbol aliases,
and cached coordinate records from a YAML catalog file into the local
database. Existing panels are updated in place.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, _, _, err := newEngine()
		if err != nil {
			return err
		}
		defer func() { _ = engine.Close() }()

		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()

		return engine.ImportCatalog(ctx, args[0])
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
