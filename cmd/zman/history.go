package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sigreer/zman/internal/db"
	"github.com/sigreer/zman/internal/report"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show journaled config writes and unit operations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOut, _ := cmd.Flags().GetBool("json")
		limit, _ := cmd.Flags().GetInt("limit")
		opID, _ := cmd.Flags().GetString("op")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		database := a.db
		if database == nil {
			if database, err = db.New(journalPath(a.cfg)); err != nil {
				return err
			}
			defer database.Close()
		}

		var (
			writes []*db.ConfigWrite
			units  []*db.UnitOperation
		)
		if opID != "" {
			writes, units, err = database.GetOperation(opID)
		} else {
			if writes, err = database.GetRecentWrites(limit); err == nil {
				units, err = database.GetRecentUnitOperations(limit)
			}
		}
		if err != nil {
			return err
		}

		if jsonOut {
			return report.PrintJSON(os.Stdout, map[string]any{
				"config_writes":   writes,
				"unit_operations": units,
			})
		}
		report.PrintHistory(os.Stdout, writes, units)
		return nil
	},
}

func init() {
	historyCmd.Flags().Bool("json", false, "Output as JSON")
	historyCmd.Flags().IntP("limit", "n", 20, "number of entries of each kind")
	historyCmd.Flags().String("op", "", "show only entries of one operation ID")
}
