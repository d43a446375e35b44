package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/copyleftdev/replaykit/internal/export"
	"github.com/spf13/cobra"
)

var recordsJSON bool

var recordsCmd = &cobra.Command{
	Use:   "records <run-id>",
	Short: "Show the trace log of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecords,
}

func init() {
	recordsCmd.Flags().BoolVar(&recordsJSON, "json", false, "Print the records as JSON")
}

func runRecords(cmd *cobra.Command, args []string) error {
	a, err := loadApp(false)
	if err != nil {
		return err
	}
	records, err := export.RunRecords(a.workDir, args[0])
	if err != nil {
		return err
	}
	if recordsJSON {
		return printJSON(cmd, records)
	}
	if len(records) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "no records for run %s\n", args[0])
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tTOOL\tOK\tLOCATOR")
	for _, rec := range records {
		loc := "-"
		if export.HasValidChosenLocator(rec) {
			loc = rec.Element.ChosenLocator.Code
		}
		step := "-"
		if rec.StepIndex != nil {
			step = fmt.Sprint(*rec.StepIndex)
		}
		ok := "yes"
		if !rec.Outcome.OK {
			ok = "no (" + rec.Outcome.ErrorCode + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", step, rec.ToolName, ok, loc)
	}
	return tw.Flush()
}
