package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/finchat/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize finchat configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to configure finchat for your workspace and generates a .finchat.yml file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard()
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
