package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sigreer/zman/internal/orchestrator"
	"github.com/sigreer/zman/internal/report"
)

var writebackCmd = &cobra.Command{
	Use:   "writeback",
	Short: "Inspect or change a device's writeback (backing) device",
}

var writebackStatusCmd = &cobra.Command{
	Use:   "status <device>",
	Short: "Show the backing device and writeback counters",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		dev, err := a.orch.WritebackStatus(args[0])
		if err != nil {
			return err
		}
		if jsonOut {
			return report.PrintJSON(os.Stdout, dev)
		}
		report.PrintDevice(os.Stdout, dev)
		return nil
	},
}

var writebackSetCmd = &cobra.Command{
	Use:   "set <device> <backing-device>",
	Short: "Attach a backing device to a zram device",
	Long: `Attach a backing device to a zram device.

The backing device must be an unused block device without any filesystem
or swap signature. The zram device is reset to apply the change; its size,
compression algorithm and stream count are restored afterwards. A device
that is swapped on or mounted is only reset with --force.

With --persist the writeback-device is also recorded in the zram-generator
configuration so it applies on the next boot.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWriteback(cmd, args[0], args[1])
	},
}

var writebackClearCmd = &cobra.Command{
	Use:   "clear <device>",
	Short: "Detach the backing device from a zram device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWriteback(cmd, args[0], "")
	},
}

func runWriteback(cmd *cobra.Command, device, backing string) error {
	jsonOut, _ := cmd.Flags().GetBool("json")
	force, _ := cmd.Flags().GetBool("force")
	persist, _ := cmd.Flags().GetBool("persist")
	bootOnly, _ := cmd.Flags().GetBool("boot-only")
	restartFlag, _ := cmd.Flags().GetString("restart")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if restartFlag == "" {
		restartFlag = a.cfg.RestartMode
	}
	mode, err := orchestrator.ParseRestartMode(restartFlag)
	if err != nil {
		return err
	}
	opts := orchestrator.WritebackOptions{Force: force, Restart: mode}

	var res *orchestrator.Result
	if persist || bootOnly {
		res = a.orch.PersistWriteback(cmd.Context(), device, backing, !bootOnly, opts)
	} else {
		res = a.orch.EnsureWritebackState(cmd.Context(), device, backing, opts)
	}
	return finishResult(res, jsonOut)
}

func init() {
	writebackStatusCmd.Flags().Bool("json", false, "Output as JSON")

	for _, c := range []*cobra.Command{writebackSetCmd, writebackClearCmd} {
		c.Flags().Bool("json", false, "Output as JSON")
		c.Flags().BoolP("force", "f", false, "reset the device even if it is swapped on or mounted")
		c.Flags().Bool("persist", false, "also record the change in zram-generator.conf")
		c.Flags().Bool("boot-only", false, "only record the change in zram-generator.conf")
		c.Flags().String("restart", "", "unit restart mode: none, try or force (default from config)")
	}

	writebackCmd.AddCommand(writebackStatusCmd)
	writebackCmd.AddCommand(writebackSetCmd)
	writebackCmd.AddCommand(writebackClearCmd)
}
