package cmd

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "kbevolve",
	Short: "Evolutionary optimization for AI knowledge documents",
	Long: `kb-evolve improves knowledge documents the way selection pressure improves
organisms: user feedback triggers generation of rewritten candidates, an
LLM judge scores them pairwise against the current content, and only a
decisively better candidate replaces it. Interpretation rules adopted
along the way earn or lose fitness from live ratings.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", ".kbevolve.yml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
