package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "arbor",
	Short: "Arbor is a dialog engine for conversational agents",
	Long: `Arbor hosts multi-turn conversations on top of stateless turns.
Each inbound activity reconstructs the suspended dialog stack from storage,
runs exactly one turn and persists the stack again, so the same flows work
unchanged on a console, behind a webhook or as MCP tools.`,
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Path to the config file (default ./arbor.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().String("redis", "", "Redis address; shorthand for the redis storage driver")
}
