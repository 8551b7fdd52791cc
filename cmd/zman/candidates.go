package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sigreer/zman/internal/report"
)

var candidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "List unused block devices that could serve as writeback targets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		cands, err := a.probe.Candidates(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOut {
			return report.PrintJSON(os.Stdout, cands)
		}
		report.PrintCandidates(os.Stdout, cands)
		return nil
	},
}

func init() {
	candidatesCmd.Flags().Bool("json", false, "Output as JSON")
}
