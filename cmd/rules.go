package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evolvekit/kb-evolve/internal/db"
	"github.com/evolvekit/kb-evolve/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and manage interpretation rules",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rules ordered by score",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, database, err := openRuleStore()
		if err != nil {
			return err
		}
		defer database.Close()

		documentID, _ := cmd.Flags().GetString("document")
		all, _ := cmd.Flags().GetBool("all")

		list, err := store.List(context.Background(), rules.ListFilter{
			DocumentID:  documentID,
			EnabledOnly: !all,
		})
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No rules found.")
			return nil
		}

		for _, rule := range list {
			state := "enabled"
			if !rule.Enabled {
				state = "disabled"
			}
			fmt.Printf("%s  score=%.2f  [%s, %s]\n    %s\n", rule.ID, rule.Score, rule.RuleType, state, rule.Content)
			if rule.TriggerPattern != "" {
				fmt.Printf("    trigger: %s\n", rule.TriggerPattern)
			}
		}
		return nil
	},
}

var rulesEnableCmd = &cobra.Command{
	Use:   "enable <rule-id>",
	Short: "Re-enable a disabled rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setRuleEnabled(args[0], true)
	},
}

var rulesDisableCmd = &cobra.Command{
	Use:   "disable <rule-id>",
	Short: "Disable a rule without deleting it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setRuleEnabled(args[0], false)
	},
}

func openRuleStore() (*rules.Store, *db.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	database, err := db.Open(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return rules.NewStore(database), database, nil
}

func setRuleEnabled(ruleID string, enabled bool) error {
	store, database, err := openRuleStore()
	if err != nil {
		return err
	}
	defer database.Close()

	if err := store.SetEnabled(context.Background(), ruleID, enabled); err != nil {
		return err
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	fmt.Printf("Rule %s %s.\n", ruleID, state)
	return nil
}

func init() {
	rulesListCmd.Flags().String("document", "", "filter by document id")
	rulesListCmd.Flags().Bool("all", false, "include disabled rules")
	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesEnableCmd)
	rulesCmd.AddCommand(rulesDisableCmd)
	rootCmd.AddCommand(rulesCmd)
}
