package cmd

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "finchat",
	Short: "Role-aware chat over your company's internal documents",
	Long: `Finchat answers employee questions from your company's internal documents
using retrieval augmented generation. Documents are indexed into a
department-scoped vector database, and every answer is grounded in
sources the asking role is allowed to read, with citations back to the
original files.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", ".finchat.yml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
