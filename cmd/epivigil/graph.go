package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	presentation "github.com/epivigil/epivigil/internal/presentation/graph"
	"github.com/epivigil/epivigil/internal/workflows"
	"github.com/epivigil/epivigil/pkg/graph"
)

var graphCmd = &cobra.Command{
	Use:   "graph [topology]",
	Short: "Print a workflow topology as a Mermaid diagram",
	Long: `Renders the compiled step graph of a topology (report or chat) as
Mermaid flowchart syntax, for documentation or debugging.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name := workflows.TopologyReport
		if len(args) > 0 {
			name = args[0]
		}

		var (
			topo *graph.Topology
			err  error
		)
		switch name {
		case workflows.TopologyReport:
			topo, err = workflows.BuildReport(nil, nil, nil, nil)
		case workflows.TopologyChat:
			topo, err = workflows.BuildChat(nil, nil, nil)
		default:
			fmt.Printf("Unknown topology %q. Supported: %s, %s\n", name, workflows.TopologyReport, workflows.TopologyChat)
			os.Exit(1)
		}
		if err != nil {
			fmt.Printf("Error compiling topology: %v\n", err)
			os.Exit(1)
		}

		fmt.Println(presentation.GenerateMermaid(topo))
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
