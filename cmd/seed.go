package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/evolvekit/kb-evolve/internal/db"
	"github.com/evolvekit/kb-evolve/internal/knowledge"
)

var seedCmd = &cobra.Command{
	Use:   "seed <file.md> [file2.md ...]",
	Short: "Seed the knowledge base from markdown files",
	Long:  `Creates one knowledge document per file. The title defaults to the file name; pass --title to override it for a single file.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		if title != "" && len(args) > 1 {
			return fmt.Errorf("--title only applies to a single file")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		database, err := db.Open(cfg.Database)
		if err != nil {
			return err
		}
		defer database.Close()

		docs := knowledge.NewStore(database)
		ctx := context.Background()

		for _, path := range args {
			content, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}

			docTitle := title
			if docTitle == "" {
				docTitle = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			}

			doc, err := docs.Create(ctx, knowledge.Document{
				Title:   docTitle,
				Content: string(content),
			})
			if err != nil {
				return fmt.Errorf("creating document from %s: %w", path, err)
			}
			fmt.Printf("Created document %s (%s)\n", doc.ID, doc.Title)
		}
		return nil
	},
}

func init() {
	seedCmd.Flags().String("title", "", "document title (single file only)")
	rootCmd.AddCommand(seedCmd)
}
