// Package cmd provides the command-line interface of vmsim.
package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vmsim",
	Short: "vmsim simulates the virtual memory system of a teaching kernel.",
	Long: `vmsim boots a machine with a frame table, a hashed page table and ` +
		`one MMU per core, then runs processes that fault their pages in, ` +
		`fork and exit. Defaults can be set in a .env file.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		// A missing .env file is not an error.
		_ = godotenv.Load()
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
