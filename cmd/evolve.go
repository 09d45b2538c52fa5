package cmd

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/evolvekit/kb-evolve/internal/db"
	"github.com/evolvekit/kb-evolve/internal/evolution"
	"github.com/evolvekit/kb-evolve/internal/progress"
)

var evolveCmd = &cobra.Command{
	Use:   "evolve",
	Short: "Run the evolution pipeline over eligible documents",
	Long: `Finds documents whose unprocessed bad-feedback count meets the configured
threshold, generates rewritten candidates for each, evaluates them pairwise
against the current content, and adopts a candidate only when it wins
decisively. With --self, probes a document with synthetic questions instead
of waiting for user feedback.`,
	RunE: runEvolve,
}

func init() {
	evolveCmd.Flags().String("document", "", "evolve only this document id")
	evolveCmd.Flags().Bool("force", false, "run even below the feedback threshold (requires --document)")
	evolveCmd.Flags().Bool("self", false, "run self-evolution (synthetic questions) instead of feedback-driven evolution")
	evolveCmd.Flags().Bool("dry-run", false, "show what would run without making API calls")
	rootCmd.AddCommand(evolveCmd)
}

func runEvolve(cmd *cobra.Command, args []string) error {
	start := time.Now()
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	documentID, _ := cmd.Flags().GetString("document")
	force, _ := cmd.Flags().GetBool("force")
	selfMode, _ := cmd.Flags().GetBool("self")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	if force && documentID == "" {
		return fmt.Errorf("--force requires --document")
	}
	if selfMode && documentID == "" {
		return fmt.Errorf("--self requires --document")
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

	if selfMode {
		return runSelfEvolve(ctx, eng, documentID, dryRun, cfg.SelfEvolution.QuestionCount)
	}

	eligible, err := eng.signals.EligibleDocuments(ctx, cfg.Evolution.BadFeedbackThreshold)
	if err != nil {
		return err
	}

	if dryRun {
		return printEvolveDryRun(eligible, documentID, cfg.Evolution.MaxSampleQuestions)
	}

	var jobs []*evolution.Job
	if documentID != "" {
		job, err := eng.orchestrator.RunDocument(ctx, documentID, force)
		if err != nil {
			return err
		}
		if job == nil {
			fmt.Println("Nothing to evolve: document is below the feedback threshold.")
			return nil
		}
		jobs = append(jobs, job)
	} else {
		if len(eligible) == 0 {
			fmt.Println("Nothing to evolve: no document has enough unprocessed bad feedback.")
			return nil
		}

		reporter := progress.NewReporter()
		reporter.Start(len(eligible))
		var done atomic.Int64
		eng.orchestrator.SetProgress(func(jobID, docID string, status evolution.JobStatus) {
			switch status {
			case evolution.StatusCompleted, evolution.StatusFailed:
				reporter.Update(int(done.Add(1)), fmt.Sprintf("document %s: %s", docID, status))
			default:
				if verbose {
					fmt.Fprintf(os.Stderr, "job %s (document %s): %s\n", jobID, docID, status)
				}
			}
		})

		jobs, err = eng.orchestrator.RunAll(ctx)
		reporter.Finish()
		if err != nil {
			return err
		}
	}

	printJobSummary(jobs, time.Since(start))
	return nil
}

func runSelfEvolve(ctx context.Context, eng *engine, documentID string, dryRun bool, questionCount int) error {
	if dryRun {
		fmt.Printf("Would generate %d synthetic questions for document %s, judge each with and without the enabled rule set, and evaluate one rule candidate per diagnosed weakness.\n", questionCount, documentID)
		return nil
	}

	report, err := eng.selfRunner.Run(ctx, documentID)
	if err != nil {
		return err
	}

	fmt.Printf("Self-evolution for document %s:\n", documentID)
	fmt.Printf("  Questions generated: %d\n", len(report.Questions))
	fmt.Printf("  Weaknesses found:    %d\n", len(report.Weaknesses))
	fmt.Printf("  Rules adopted:       %d\n", len(report.AdoptedRuleIDs))
	for _, w := range report.Weaknesses {
		marker := "rejected"
		if w.AdoptedRuleID != "" {
			marker = "adopted " + w.AdoptedRuleID
		}
		fmt.Printf("  - [%s] %q (score %.2f) -> %s\n", w.Kind, w.Question, w.ScoreWithout, marker)
	}
	return nil
}

func printEvolveDryRun(eligible map[string]int, documentID string, sampleQuestions int) error {
	if documentID != "" {
		n, ok := eligible[documentID]
		if !ok {
			fmt.Printf("Document %s is below the feedback threshold; nothing would run.\n", documentID)
			return nil
		}
		eligible = map[string]int{documentID: n}
	}
	if len(eligible) == 0 {
		fmt.Println("No eligible documents; nothing would run.")
		return nil
	}

	// 6 generation calls per job, then per candidate: 2 responses + 1
	// verdict per sample question.
	perJob := 6 + 6*sampleQuestions*3
	fmt.Printf("Would run %d evolution job(s) (~%d LLM calls each):\n", len(eligible), perJob)
	for docID, n := range eligible {
		fmt.Printf("  - document %s (%d unprocessed bad feedback)\n", docID, n)
	}
	return nil
}

func printJobSummary(jobs []*evolution.Job, elapsed time.Duration) {
	var adopted, noWinner, failed int
	for _, job := range jobs {
		switch {
		case job.Status == evolution.StatusFailed:
			failed++
		case job.WinnerID != "":
			adopted++
		default:
			noWinner++
		}
	}

	fmt.Printf("\nEvolution finished in %s: %d job(s), %d adopted a winner, %d kept the baseline, %d failed.\n",
		elapsed.Round(time.Second), len(jobs), adopted, noWinner, failed)
	for _, job := range jobs {
		if job.Status == evolution.StatusFailed {
			fmt.Printf("  - job %s (document %s) failed: %s\n", job.ID, job.DocumentID, job.Error)
		} else if verbose {
			fmt.Printf("  - job %s (document %s): winner=%q candidates=%d\n", job.ID, job.DocumentID, job.WinnerID, len(job.Candidates))
		}
	}
}
