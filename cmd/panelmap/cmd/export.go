package cmd

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	panelmap "github.com/genomicsops/panelmap"
	"github.com/genomicsops/panelmap/pkg/errors"
	"github.com/genomicsops/panelmap/pkg/sources"
	"github.com/genomicsops/panelmap/pkg/types"
)

var (
	exportOut        string
	exportBuild      string
	exportSet        string
	exportConfidence string
	exportVersion    float64
	exportPatient    string
	exportGenes      []string
)

var exportCmd = &cobra.Command{
	Use:   "export [rcode]",
	Short: "Export BED interval files",
	Long: `Export writes a tab-separated BED file for a panel's genes, resolved
to transcript coordinates on the chosen reference assembly. With
--patient the export covers the high-confidence genes of the panel
version that patient was last tested against. With --genes the export
reads the locally cached coordinate tables instead of the upstream
resolver.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, _, _, err := newEngine()
		if err != nil {
			return err
		}
		defer func() { _ = engine.Close() }()

		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()

		out, closeOut, err := openOutput(exportOut)
		if err != nil {
			return err
		}
		defer closeOut()

		build := sources.GRCh38
		if exportBuild != "" {
			var ok bool
			if build, ok = sources.ParseBuild(exportBuild); !ok {
				return errors.NewValidationError("build", exportBuild, "unknown genome build")
			}
		}
		set := sources.SetMANESelect
		if exportSet != "" {
			var ok bool
			if set, ok = sources.ParseTranscriptSet(exportSet); !ok {
				return errors.NewValidationError("transcripts", exportSet, "unknown transcript set")
			}
		}

		if len(exportGenes) > 0 {
			return engine.ExportLocalBED(ctx, out, exportGenes, build)
		}

		if len(args) == 0 {
			return errors.NewValidationError("rcode", nil, "a request code is required")
		}
		rcode := args[0]

		if exportPatient != "" {
			return engine.ExportPatientBED(ctx, out, exportPatient, rcode, set, build)
		}

		tier, ok := types.ParseConfidence(exportConfidence)
		if !ok {
			return errors.NewValidationError("confidence", exportConfidence, "unknown confidence level")
		}
		return engine.ExportPanelBED(ctx, out, panelmap.ExportRequest{
			Rcode:   rcode,
			Version: exportVersion,
			Tier:    tier,
			Set:     set,
			Build:   build,
		})
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "-", "output file (- for stdout)")
	exportCmd.Flags().StringVar(&exportBuild, "build", "GRCh38", "genome build (GRCh37 or GRCh38)")
	exportCmd.Flags().StringVar(&exportSet, "transcripts", "mane_select", "transcript set (mane, mane_select, canonical)")
	exportCmd.Flags().StringVar(&exportConfidence, "confidence", "All", "confidence tier filter (Green, Amber, Red, All)")
	exportCmd.Flags().Float64Var(&exportVersion, "panel-version", 0, "export a specific archived panel version")
	exportCmd.Flags().StringVar(&exportPatient, "patient", "", "export for this patient's last tested version")
	exportCmd.Flags().StringSliceVar(&exportGenes, "genes", nil, "export cached coordinates for these gene IDs")
	rootCmd.AddCommand(exportCmd)
}

// openOutput opens the export destination, defaulting to stdout.
func openOutput(path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	if !strings.HasSuffix(path, ".bed") {
		path += ".bed"
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, errors.WrapIO("create", path, err)
	}
	return f, func() { _ = f.Close() }, nil
}
