package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/evolvekit/kb-evolve/internal/db"
	mcpserver "github.com/evolvekit/kb-evolve/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server for AI agent integration",
	Long:  `Starts a Model Context Protocol (MCP) server on stdio, exposing evolution, rule lookup, and feedback tools for AI agents like Claude Code.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		database, err := db.Open(cfg.Database)
		if err != nil {
			return err
		}
		defer database.Close()

		provider, err := createProvider(cfg)
		if err != nil {
			return err
		}
		eng := buildEngine(cfg, database, provider)

		// Set version from the cmd package variable.
		mcpserver.Version = Version

		fmt.Fprintf(os.Stderr, "kbevolve MCP server started on stdio (db=%s)\n", cfg.Database)

		srv := mcpserver.NewServer(eng.orchestrator, eng.jobs, eng.ruleStore, eng.recorder, eng.selfRunner)
		return srv.Serve()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
