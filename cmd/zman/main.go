package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sigreer/zman/internal/fault"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "zman",
	Short: "zram device and zram-generator management tool",
	Long: `zman inspects and reconfigures zram devices through sysfs and keeps
the systemd zram-generator configuration in sync without losing comments
or formatting. Changes to protected files and units go through zman-helper
when zman is not run as root.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/zman/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(writebackCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(candidatesCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch fault.KindOf(err) {
	case fault.KindValidation, fault.KindNotBlockDevice:
		return 2
	case fault.KindNotSupported:
		return 3
	case fault.KindCommandFailed:
		return 4
	default:
		return 1
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var shown reported
		if !errors.As(err, &shown) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(exitCode(err))
	}
}
