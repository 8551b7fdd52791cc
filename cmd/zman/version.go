package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sigreer/zman/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the zman version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("zman", version.String())
	},
}
