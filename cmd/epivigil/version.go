package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/epivigil/epivigil"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of epivigil",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("epivigil version %s\n", strings.TrimSpace(epivigil.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
