package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sigreer/zman/internal/report"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configured zram devices and their compression stats",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		devices, err := a.disc.List()
		if err != nil {
			return err
		}
		if jsonOut {
			return report.PrintJSON(os.Stdout, devices)
		}
		report.PrintDevices(os.Stdout, devices)
		return nil
	},
}

func init() {
	statusCmd.Flags().Bool("json", false, "Output as JSON")
}
