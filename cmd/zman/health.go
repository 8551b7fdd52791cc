package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/sigreer/zman/internal/health"
	"github.com/sigreer/zman/internal/report"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the host is ready for zram",
	Long: `Check the environment zman depends on:
  - sysfs and the zram module / hot-add control
  - zswap state, including a zswap.enabled=0 boot override
  - systemctl, blkid, lsblk and friends on PATH
  - the live swap table`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		r := a.health().Check()
		if jsonOut {
			if err := report.PrintJSON(os.Stdout, r); err != nil {
				return err
			}
		} else {
			report.PrintHealth(os.Stdout, r)
		}
		if r.Status == health.StatusCritical {
			return reported{errors.New("health check failed")}
		}
		return nil
	},
}

func init() {
	healthCmd.Flags().Bool("json", false, "Output as JSON")
}
