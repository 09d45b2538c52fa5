package cmd

import (
	"github.com/spf13/cobra"

	"github.com/evolvekit/kb-evolve/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize kb-evolve configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to configure kb-evolve and generates a .kbevolve.yml file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard()
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
