package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/epivigil/epivigil"
	"github.com/epivigil/epivigil/internal/presentation/tui"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate the SRAG situation report",
	Long: `Runs the deterministic report workflow once and renders the resulting
Markdown report to the terminal. Metrics, chart data and news gathering run
concurrently; the synthesis and audit steps run after the fan-in.`,
	Run: func(cmd *cobra.Command, args []string) {
		settings, err := loadSettings(cmd)
		if err != nil {
			fmt.Printf("Error loading configuration: %v\n", err)
			os.Exit(1)
		}

		days, _ := cmd.Flags().GetInt("days")
		region, _ := cmd.Flags().GetString("state")
		threadID, _ := cmd.Flags().GetString("thread")
		raw, _ := cmd.Flags().GetBool("raw")

		logger := newLogger(settings)
		engine, err := buildEngine(settings, logger, nil)
		if err != nil {
			fmt.Printf("Error initializing engine: %v\n", err)
			os.Exit(1)
		}

		result, err := engine.Report(cmd.Context(), epivigil.ReportRequest{
			Days:     days,
			Region:   region,
			ThreadID: threadID,
		})
		if err != nil {
			fmt.Printf("Error generating report: %v\n", err)
			os.Exit(1)
		}

		printReport(cmd.Context(), result, raw)
	},
}

func printReport(_ context.Context, result *epivigil.ReportResult, raw bool) {
	if raw {
		fmt.Println(result.Report)
	} else {
		render := tui.NewRenderer()
		out, err := render(result.Report)
		if err != nil {
			out = result.Report
		}
		fmt.Println(out)
	}

	if result.Err != "" {
		fmt.Fprintf(os.Stderr, "Warning: partial data, %s\n", result.Err)
	}
	fmt.Fprintf(os.Stderr, "Thread: %s\n", result.ThreadID)
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().IntP("days", "d", 30, "Analysis window in days")
	reportCmd.Flags().StringP("state", "s", "", "Optional UF filter, e.g. SP")
	reportCmd.Flags().String("thread", "", "Thread ID to checkpoint the run under")
	reportCmd.Flags().Bool("raw", false, "Print raw Markdown without terminal styling")
}
