package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "epivigil",
	Short: "EpiVigil is an SRAG surveillance analytics assistant",
	Long: `EpiVigil orchestrates epidemiological workflows over the Brazilian SRAG
surveillance database: automated situation reports and a conversational
assistant grounded on metrics, SQL and recent news.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Path to the YAML configuration file")
}
