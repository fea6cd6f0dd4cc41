package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/epivigil/epivigil"
	"github.com/epivigil/epivigil/internal/presentation/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Talk to the SRAG data assistant",
	Long: `Starts an interactive conversation with the assistant, or answers a
single question when a message argument is given. The conversation is
checkpointed per thread, so a later session with the same thread ID resumes
where it left off.`,
	Run: func(cmd *cobra.Command, args []string) {
		settings, err := loadSettings(cmd)
		if err != nil {
			fmt.Printf("Error loading configuration: %v\n", err)
			os.Exit(1)
		}

		threadID, _ := cmd.Flags().GetString("thread")
		if threadID == "" {
			threadID = uuid.NewString()
		}

		logger := newLogger(settings)
		engine, err := buildEngine(settings, logger, nil)
		if err != nil {
			fmt.Printf("Error initializing engine: %v\n", err)
			os.Exit(1)
		}

		render := tui.NewRenderer()

		// One-shot mode: answer and exit.
		if len(args) > 0 {
			ask(cmd, engine, render, strings.Join(args, " "), threadID)
			return
		}

		tui.PrintBanner()
		fmt.Printf("Thread: %s (digite 'sair' para encerrar)\n\n", threadID)

		reader := bufio.NewReader(os.Stdin)
		for {
			fmt.Print("> ")
			line, err := reader.ReadString('\n')
			if err != nil {
				break
			}
			message := strings.TrimSpace(line)
			if message == "" {
				continue
			}
			if message == "sair" || message == "exit" || message == "quit" {
				fmt.Println("Até logo!")
				break
			}
			ask(cmd, engine, render, message, threadID)
		}
	},
}

func ask(cmd *cobra.Command, engine *epivigil.Engine, render func(string) (string, error), message, threadID string) {
	verbose, _ := cmd.Flags().GetBool("verbose")

	result, err := engine.Chat(cmd.Context(), epivigil.ChatRequest{Message: message, ThreadID: threadID})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	if verbose {
		for _, call := range result.ToolCalls {
			fmt.Fprintf(os.Stderr, "[tool] %s: %s\n", call.Name, call.ResultPreview)
		}
	}

	out, err := render(result.Response)
	if err != nil {
		out = result.Response
	}
	fmt.Println(out)

	if result.Exhausted {
		fmt.Fprintln(os.Stderr, "Note: the reasoning loop hit its step ceiling; the answer may be partial.")
	}
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringP("thread", "t", "", "Thread ID to resume or start")
	chatCmd.Flags().BoolP("verbose", "v", false, "Show tool calls as they happen")
}
