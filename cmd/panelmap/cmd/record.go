package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/genomicsops/panelmap/pkg/errors"
	"github.com/genomicsops/panelmap/pkg/types"
)

var (
	recordRcode   string
	recordVersion float64
	recordDate    string
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Manage patient test records",
}

var recordAddCmd = &cobra.Command{
	Use:   "add <patient-id>",
	Short: "Record which panel version a patient was tested against",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, _, _, err := newEngine()
		if err != nil {
			return err
		}
		defer func() { _ = engine.Close() }()

		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()

		record := types.PatientRecord{
			PatientID: args[0],
			Rcode:     recordRcode,
			Version:   recordVersion,
		}
		if recordDate != "" {
			date, err := time.Parse("2006-01-02", recordDate)
			if err != nil {
				return errors.NewValidationError("date", recordDate, "date must be YYYY-MM-DD")
			}
			record.Date = date
		}
		return engine.AddRecord(ctx, record)
	},
}

var recordListCmd = &cobra.Command{
	Use:   "list <patient-id>",
	Short: "List a patient's test records, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, _, _, err := newEngine()
		if err != nil {
			return err
		}
		defer func() { _ = engine.Close() }()

		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()

		records, err := engine.PatientHistory(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(records)
	},
}

var recordCheckCmd = &cobra.Command{
	Use:   "check <patient-id>",
	Short: "Compare a patient's tested panel version against the current one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if recordRcode == "" {
			return errors.NewValidationError("rcode", recordRcode, "the --rcode flag is required")
		}

		engine, _, _, err := newEngine()
		if err != nil {
			return err
		}
		defer func() { _ = engine.Close() }()

		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()

		result, err := engine.Reconcile(ctx, args[0], recordRcode)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

func init() {
	recordAddCmd.Flags().StringVar(&recordRcode, "rcode", "", "clinical request code the test used")
	recordAddCmd.Flags().Float64Var(&recordVersion, "panel-version", 0, "panel version the test used")
	recordAddCmd.Flags().StringVar(&recordDate, "date", "", "test date (YYYY-MM-DD, defaults to today)")
	_ = recordAddCmd.MarkFlagRequired("rcode")
	_ = recordAddCmd.MarkFlagRequired("panel-version")

	recordCheckCmd.Flags().StringVar(&recordRcode, "rcode", "", "clinical request code to reconcile against")

	recordCmd.AddCommand(recordAddCmd)
	recordCmd.AddCommand(recordListCmd)
	recordCmd.AddCommand(recordCheckCmd)
	rootCmd.AddCommand(recordCmd)
}
