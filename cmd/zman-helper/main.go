// Command zman-helper performs the few mutations zman needs root for. It is
// meant to be started through pkexec and trusts nothing it is given: every
// path and unit is checked against a fixed allow-list again here.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/sigreer/zman/internal/command"
	"github.com/sigreer/zman/internal/db"
	"github.com/sigreer/zman/internal/privileged"
	"github.com/sigreer/zman/internal/version"
)

var (
	opID     string
	noBackup bool
	dbPath   string
)

var rootCmd = &cobra.Command{
	Use:           "zman-helper",
	Short:         "Privileged helper for zman",
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if unix.Geteuid() != 0 {
			return fmt.Errorf("zman-helper must run as root")
		}
		return nil
	},
}

var writeCmd = &cobra.Command{
	Use:   "write <path>",
	Short: "Atomically replace an allow-listed file with stdin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHelper(cmd.Context(), func(ctx context.Context, h *privileged.Helper) error {
			return h.Write(ctx, args[0], os.Stdin, os.Stdout)
		})
	},
}

var reloadCmd = &cobra.Command{
	Use:   "daemon-reload",
	Short: "Run systemctl daemon-reload",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHelper(cmd.Context(), func(ctx context.Context, h *privileged.Helper) error {
			return h.DaemonReload(ctx)
		})
	},
}

func unitCmd(action privileged.UnitAction) *cobra.Command {
	return &cobra.Command{
		Use:   string(action) + " <service>",
		Short: fmt.Sprintf("Run systemctl %s on a zram setup unit", action),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHelper(cmd.Context(), func(ctx context.Context, h *privileged.Helper) error {
				return h.Unit(ctx, string(action), args[0])
			})
		},
	}
}

var allowedCmd = &cobra.Command{
	Use:   "allowed",
	Short: "List the files this helper may write",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, p := range privileged.AllowedPaths() {
			fmt.Println(p)
		}
		return nil
	},
}

// withHelper builds a Helper journaling to the history database and runs fn
// with the caller's operation ID attached.
func withHelper(ctx context.Context, fn func(context.Context, *privileged.Helper) error) error {
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	local := privileged.NewLocal(command.Exec{}, !noBackup, nil, log)

	if journal, err := db.New(dbPath); err != nil {
		log.Warn("could not open history database", "path", dbPath, "err", err)
	} else {
		defer journal.Close()
		local.Journal = journal
	}

	if opID != "" {
		ctx = privileged.WithOperation(ctx, opID)
	}
	return fn(ctx, &privileged.Helper{Local: local})
}

func init() {
	rootCmd.PersistentFlags().StringVar(&opID, "op", "", "operation ID to record in the journal")
	rootCmd.PersistentFlags().BoolVar(&noBackup, "no-backup", false, "do not keep a .bak copy of replaced files")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", db.DefaultPath, "history database")

	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(reloadCmd)
	rootCmd.AddCommand(unitCmd(privileged.Restart))
	rootCmd.AddCommand(unitCmd(privileged.Stop))
	rootCmd.AddCommand(unitCmd(privileged.Start))
	rootCmd.AddCommand(allowedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
