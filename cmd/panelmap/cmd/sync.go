package cmd

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/genomicsops/panelmap/pkg/errors"
)

var syncAll bool

var syncCmd = &cobra.Command{
	Use:   "sync [rcode]",
	Short: "Synchronize local panels with the upstream catalog",
	Long: `Sync checks the upstream catalog for a newer signed-off version of the
panel serving the given request code. When the versions differ the
current membership is archived and replaced. With --all, every
signed-off panel upstream is synchronized and panels not yet tracked
locally are registered.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !syncAll && len(args) == 0 {
			return errors.NewValidationError("rcode", nil, "provide a request code or --all")
		}

		engine, _, _, err := newEngine()
		if err != nil {
			return err
		}
		defer func() { _ = engine.Close() }()

		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()

		if syncAll {
			report, err := engine.RefreshAll(ctx)
			if err != nil {
				return err
			}
			return printJSON(report)
		}

		result, err := engine.Sync(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncAll, "all", false, "synchronize every signed-off panel")
	rootCmd.AddCommand(syncCmd)
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
