package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/genomicsops/panelmap/pkg/types"
)

var panelConfidence string

var panelsCmd = &cobra.Command{
	Use:   "panels",
	Short: "Inspect locally tracked panels",
}

var panelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every locally tracked panel",
	RunE: func(cmd *cobra.Command, _ []string) error {
		engine, _, _, err := newEngine()
		if err != nil {
			return err
		}
		defer func() { _ = engine.Close() }()

		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()

		panels, err := engine.Store().Panels(ctx)
		if err != nil {
			return err
		}
		return printJSON(panels)
	},
}

var panelsShowCmd = &cobra.Command{
	Use:   "show <rcode>",
	Short: "Show a panel's current gene membership",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tier, ok := types.ParseConfidence(panelConfidence)
		if !ok {
			tier = types.ConfidenceAll
		}

		engine, _, _, err := newEngine()
		if err != nil {
			return err
		}
		defer func() { _ = engine.Close() }()

		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()

		content, err := engine.PanelContent(ctx, args[0], tier)
		if err != nil {
			return err
		}
		return printJSON(content)
	},
}

var panelsRecordsCmd = &cobra.Command{
	Use:   "records <rcode>",
	Short: "List every patient test record for a panel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, _, _, err := newEngine()
		if err != nil {
			return err
		}
		defer func() { _ = engine.Close() }()

		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()

		records, err := engine.PanelHistory(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(records)
	},
}

func init() {
	panelsShowCmd.Flags().StringVar(&panelConfidence, "confidence", "All", "confidence tier filter (Green, Amber, Red, All)")

	panelsCmd.AddCommand(panelsListCmd)
	panelsCmd.AddCommand(panelsShowCmd)
	panelsCmd.AddCommand(panelsRecordsCmd)
	rootCmd.AddCommand(panelsCmd)
}
